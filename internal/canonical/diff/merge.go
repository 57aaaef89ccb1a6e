package diff

import "denticlinic/api/internal/canonical"

// SafeMerge overlays the lead record's contact fields onto a snapshot's
// facts so that persisted snapshots never contradict the database of record.
// The input is left untouched; v1.0 snapshots carry no contact facts and
// pass through unchanged.
func SafeMerge(c *canonical.Canonical, truth GroundTruth) *canonical.Canonical {
	if c == nil || c.V11 == nil {
		return c
	}

	merged := *c.V11
	if merged.Facts == nil {
		merged.Facts = &canonical.Facts{}
	} else {
		facts := *merged.Facts
		merged.Facts = &facts
	}

	if truth.Phone != "" {
		merged.Facts.Phone = truth.Phone
	}
	if truth.Email != "" {
		merged.Facts.Email = truth.Email
	}
	if truth.Source != "" {
		merged.Facts.Source = truth.Source
	}
	return canonical.FromV11(&merged)
}
