package canonical

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleV11(leadID string) *V11 {
	risk := 62
	conf := 80
	return &V11{
		Version: VersionV11,
		LeadID:  leadID,
		Facts: &Facts{
			Name:              "Elif Aksoy",
			Phone:             "+90 532 111 22 33",
			Email:             "elif@example.com",
			Source:            "instagram",
			Country:           "DE",
			TreatmentInterest: []string{"implants", "veneers"},
			Budget:            "around 6000 EUR",
			TimeWindow:        "next 3 months",
			Objections:        []string{"worried about travel logistics"},
		},
		EventsSummary: []string{"2026-08-12 whatsapp: asked for implant quote", "2026-08-14 call: no answer"},
		NextBestAction: NextAction{
			Label:    "Send revised implant quote",
			DueHours: 24,
			Channel:  "whatsapp",
			Script:   []string{"Share the updated quote", "Offer a video consult slot"},
		},
		MissingFields:  []string{"travel_date"},
		OpenQuestions:  []string{"Does she need hotel arrangements?"},
		RiskScore:      &risk,
		Confidence:     &conf,
		Sources:        Sources{NotesUsed: 4, EventsUsed: 2, ContactsUsed: 1},
		ReviewRequired: false,
	}
}

func TestNoteRoundTripV11(t *testing.T) {
	original := FromV11(sampleV11("ld_rt"))

	encoded, err := EncodeNote(original)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(encoded, TagV11+"\n"))
	assert.True(t, IsNote(encoded))

	decoded, err := DecodeNote(encoded)
	require.NoError(t, err)
	require.NotNil(t, decoded.V11)
	assert.Equal(t, original.V11, decoded.V11)
}

func TestNoteRoundTripV10(t *testing.T) {
	original := FromV10(&V10{
		Version:           VersionV10,
		LeadID:            "ld_old",
		Summary:           "Warm lead, comparing clinics",
		Bullets:           []string{"asked about all-on-4"},
		Priority:          "warm",
		RiskScore:         40,
		Confidence:        70,
		TreatmentInterest: []string{"all-on-4"},
		NextBestAction:    V10NextAction{Label: "Follow up", DueHours: 48},
		MissingFields:     []string{"phone", "email"},
	})

	encoded, err := EncodeNote(original)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(encoded, TagV10+"\n"))

	decoded, err := DecodeNote(encoded)
	require.NoError(t, err)
	require.NotNil(t, decoded.V10)
	assert.Equal(t, original.V10, decoded.V10)
}

func TestDecodeNoteRejectsUntagged(t *testing.T) {
	_, err := DecodeNote(`{"version":"1.1","lead_id":"ld_x"}`)
	assert.ErrorIs(t, err, ErrParse)

	_, err = DecodeNote("manual note about pricing")
	assert.ErrorIs(t, err, ErrParse)
}

func TestFactMapVersions(t *testing.T) {
	v11 := FromV11(sampleV11("ld_f"))
	facts := v11.FactMap()
	assert.Equal(t, "Elif Aksoy", facts["name"])
	assert.Equal(t, "implants, veneers", facts["treatment_interest"])
	assert.NotContains(t, facts, "travel_date")

	v10 := FromV10(&V10{Version: VersionV10, LeadID: "ld_f", Priority: "hot", Constraints: V10Constraints{Budget: "5k"}})
	old := v10.FactMap()
	assert.Equal(t, "hot", old["priority"])
	assert.Equal(t, "5k", old["budget"])
	assert.NotContains(t, old, "phone")
	assert.NotContains(t, old, "email")
}
