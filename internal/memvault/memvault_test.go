package memvault

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"denticlinic/api/internal/canonical"
	"denticlinic/api/internal/canonical/diff"
	"denticlinic/api/internal/firewall"
)

func testCanonical() *canonical.Canonical {
	risk := 55
	conf := 82
	return canonical.FromV11(&canonical.V11{
		Version: canonical.VersionV11,
		LeadID:  "ld_mem",
		Facts: &canonical.Facts{
			Name:              "Elif Aksoy",
			Phone:             "+90 532 111 22 33",
			Email:             "elif@example.com",
			Source:            "instagram",
			Country:           "DE",
			TreatmentInterest: []string{"implants", "veneers"},
			Budget:            "6000 EUR",
			TimeWindow:        "autumn",
			Objections:        []string{"price"},
			Preferences:       []string{"evening calls"},
		},
		EventsSummary: []string{"2026-08-12 whatsapp inquiry", "2026-08-14 call attempt, no answer"},
		NextBestAction: canonical.NextAction{
			Label:    "Confirm consult",
			DueHours: 24,
			Channel:  "whatsapp",
			Script: []string{
				"Confirm the consult slot",
				"If unreachable, email elif@example.com or call +90 532 111 22 33",
			},
		},
		MissingFields: []string{"travel_date"},
		OpenQuestions: []string{"Hotel needed?"},
		RiskScore:     &risk,
		Confidence:    &conf,
		Sources:       canonical.Sources{NotesUsed: 3, EventsUsed: 2, ContactsUsed: 1},
	})
}

func testTruth() diff.GroundTruth {
	return diff.GroundTruth{Name: "Elif Aksoy", Phone: "+90 532 111 22 33", Email: "elif@example.com", Source: "instagram"}
}

func factKeys(memory MemoryV1) map[string]string {
	keys := map[string]string{}
	for _, fact := range memory.Facts {
		keys[fact.Key] = fact.Value
	}
	return keys
}

func TestBuildPatientExcludesPII(t *testing.T) {
	memory, err := Build(testCanonical(), testTruth(), ScopePatient)
	require.NoError(t, err)

	keys := factKeys(memory)
	assert.NotContains(t, keys, "name")
	assert.NotContains(t, keys, "phone")
	assert.NotContains(t, keys, "email")
	assert.Contains(t, keys, "treatment_interest")
	assert.Contains(t, keys, "budget")

	require.NotNil(t, memory.NextBestAction)
	for _, line := range memory.NextBestAction.Script {
		assert.Falsef(t, firewall.ContainsContact(line), "script line leaked contact info: %q", line)
	}
	assert.True(t, memory.Safety.PIIRedacted)
}

func TestBuildDoctorIncludesGroundTruthContacts(t *testing.T) {
	truth := testTruth()
	truth.Phone = "+90 532 777 66 55" // record disagrees with the snapshot

	memory, err := Build(testCanonical(), truth, ScopeDoctor)
	require.NoError(t, err)

	keys := factKeys(memory)
	assert.Equal(t, truth.Phone, keys["phone"], "ground truth wins")
	assert.Equal(t, "elif@example.com", keys["email"])
	assert.NotContains(t, keys, "source", "source is internal-only")

	require.NotNil(t, memory.NextBestAction)
	assert.Equal(t, testCanonical().NextAction().Script, memory.NextBestAction.Script, "staff scripts are verbatim")
}

func TestBuildInternalSuperset(t *testing.T) {
	memory, err := Build(testCanonical(), testTruth(), ScopeInternal)
	require.NoError(t, err)

	keys := factKeys(memory)
	assert.Contains(t, keys, "source")
	assert.Contains(t, keys, "country")
	assert.Contains(t, keys, "name")
	assert.Equal(t, canonical.Sources{NotesUsed: 3, EventsUsed: 2, ContactsUsed: 1}, memory.Sources)
}

func TestBuildPreferencesAndConstraints(t *testing.T) {
	memory, err := Build(testCanonical(), testTruth(), ScopeInternal)
	require.NoError(t, err)

	assert.Contains(t, memory.Preferences, "evening calls")
	assert.Contains(t, memory.Preferences, "prefers contact via whatsapp")
	assert.Contains(t, memory.Constraints, "budget: 6000 EUR")
	assert.Contains(t, memory.Constraints, "unknown: travel_date")
}

func TestBuildFailsFastOnMissingFacts(t *testing.T) {
	broken := canonical.FromV11(&canonical.V11{Version: canonical.VersionV11, LeadID: "ld_mem"})

	_, err := Build(broken, testTruth(), ScopePatient)
	assert.ErrorIs(t, err, ErrMalformedCanonical)

	_, err = Build(nil, testTruth(), ScopePatient)
	assert.ErrorIs(t, err, ErrMalformedCanonical)
}

func TestBuildUnknownScope(t *testing.T) {
	_, err := Build(testCanonical(), testTruth(), "superuser")
	assert.Error(t, err)
}

func TestBuildSafetyMirrorsFirewall(t *testing.T) {
	c := testCanonical()
	c.V11.Security = &canonical.Security{Firewall: canonical.Firewall{InjectionDetected: true, PhonesRedacted: 2}}

	memory, err := Build(c, testTruth(), ScopeInternal)
	require.NoError(t, err)
	assert.True(t, memory.Safety.InjectionDetected)
	assert.True(t, memory.Safety.PIIRedacted)
}

func TestBuildV10Snapshot(t *testing.T) {
	c := canonical.FromV10(&canonical.V10{
		Version:           canonical.VersionV10,
		LeadID:            "ld_old",
		Priority:          "warm",
		RiskScore:         40,
		Confidence:        70,
		TreatmentInterest: []string{"crowns"},
		Constraints:       canonical.V10Constraints{Budget: "3000 EUR"},
		NextBestAction:    canonical.V10NextAction{Label: "Follow up", Script: []string{"Mention 555-123-4567 only internally"}},
	})

	memory, err := Build(c, testTruth(), ScopePatient)
	require.NoError(t, err)
	keys := factKeys(memory)
	assert.Contains(t, keys, "treatment_interest")
	require.NotNil(t, memory.NextBestAction)
	assert.False(t, firewall.ContainsContact(memory.NextBestAction.Script[0]))
}
