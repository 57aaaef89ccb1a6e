// Package diff compares two canonical snapshots and produces the changelog
// persisted alongside a new snapshot. Ground-truth contact fields from the
// lead record always win over AI-derived values; any disagreement is
// reported as a conflict, never silently merged.
package diff

import (
	"fmt"
	"sort"

	"denticlinic/api/internal/canonical"
)

// GroundTruth carries the lead's authoritative database fields.
type GroundTruth struct {
	Name   string
	Phone  string
	Email  string
	Source string
}

func (g GroundTruth) value(key string) string {
	switch key {
	case "phone":
		return g.Phone
	case "email":
		return g.Email
	}
	return ""
}

// Changelog lists the field-level transitions between two snapshots.
type Changelog struct {
	Added     []string `json:"added"`
	Updated   []string `json:"updated"`
	Removed   []string `json:"removed"`
	Conflicts []string `json:"conflicts"`
}

func (c Changelog) Empty() bool {
	return len(c.Added) == 0 && len(c.Updated) == 0 && len(c.Removed) == 0 && len(c.Conflicts) == 0
}

// Lines flattens the changelog into the string list stored on a v1.1
// snapshot, conflicts last.
func (c Changelog) Lines() []string {
	out := make([]string, 0, len(c.Added)+len(c.Updated)+len(c.Removed)+len(c.Conflicts))
	out = append(out, c.Added...)
	out = append(out, c.Updated...)
	out = append(out, c.Removed...)
	out = append(out, c.Conflicts...)
	return out
}

// Diff computes the changelog between the previous and the new snapshot.
// A nil prev with a non-nil next is the first run and yields exactly the
// single initial entry, whatever next contains; conflict reporting starts
// with the second run, once there is a baseline to disagree with. Comparison
// is by serialized value, so reordering a list counts as a change.
func Diff(prev, next *canonical.Canonical, truth GroundTruth) Changelog {
	var log Changelog
	if next == nil {
		return log
	}
	if prev == nil {
		log.Added = append(log.Added, "Initial snapshot created")
		return log
	}

	prevFacts := prev.FactMap()
	nextFacts := next.FactMap()
	log.Conflicts = append(log.Conflicts, contactConflicts(next, truth)...)

	conflicted := map[string]bool{}
	for _, key := range []string{"phone", "email"} {
		truthVal := truth.value(key)
		if aiVal, ok := nextFacts[key]; ok && truthVal != "" && aiVal != truthVal {
			conflicted[key] = true
		}
	}

	for _, key := range sortedKeys(prevFacts, nextFacts) {
		if conflicted[key] {
			continue
		}
		before, hadBefore := prevFacts[key]
		after, hasAfter := nextFacts[key]
		switch {
		case !hadBefore && hasAfter:
			log.Added = append(log.Added, fmt.Sprintf("%s: %q", key, after))
		case hadBefore && !hasAfter:
			log.Removed = append(log.Removed, fmt.Sprintf("%s (was %q)", key, before))
		case before != after:
			log.Updated = append(log.Updated, fmt.Sprintf("%s: %q → %q", key, before, after))
		}
	}

	diffScalar(&log, "Risk", riskOf(prev), riskOf(next))
	diffScalar(&log, "Confidence", confidenceOf(prev), confidenceOf(next))
	diffAction(&log, prev.NextAction(), next.NextAction())
	diffSet(&log, prev.MissingFields(), next.MissingFields(), "Identified missing: %s", "Resolved: %s")
	diffSet(&log, prev.OpenQuestions(), next.OpenQuestions(), "Open question: %s", "Answered: %s")

	return log
}

// contactConflicts reports AI contact facts that contradict the lead record.
func contactConflicts(next *canonical.Canonical, truth GroundTruth) []string {
	var out []string
	facts := next.FactMap()
	for _, key := range []string{"phone", "email"} {
		truthVal := truth.value(key)
		aiVal, ok := facts[key]
		if !ok || truthVal == "" || aiVal == truthVal {
			continue
		}
		out = append(out, fmt.Sprintf("%s: AI suggested %q but record shows %q", key, aiVal, truthVal))
	}
	return out
}

type scalar struct {
	value int
	ok    bool
}

func riskOf(c *canonical.Canonical) scalar {
	v, ok := c.RiskScore()
	return scalar{value: v, ok: ok}
}

func confidenceOf(c *canonical.Canonical) scalar {
	v, ok := c.Confidence()
	return scalar{value: v, ok: ok}
}

func diffScalar(log *Changelog, label string, before, after scalar) {
	switch {
	case !before.ok && after.ok:
		log.Added = append(log.Added, fmt.Sprintf("%s score: %d", label, after.value))
	case before.ok && !after.ok:
		log.Removed = append(log.Removed, fmt.Sprintf("%s score (was %d)", label, before.value))
	case before.ok && after.ok && before.value != after.value:
		log.Updated = append(log.Updated, fmt.Sprintf("%s changed: %d → %d", label, before.value, after.value))
	}
}

func diffAction(log *Changelog, before, after canonical.NextAction) {
	fields := []struct {
		key    string
		before string
		after  string
	}{
		{"next_action.label", before.Label, after.Label},
		{"next_action.channel", before.Channel, after.Channel},
		{"next_action.due_hours", formatHours(before.DueHours), formatHours(after.DueHours)},
	}
	for _, f := range fields {
		switch {
		case f.before == "" && f.after != "":
			log.Added = append(log.Added, fmt.Sprintf("%s: %q", f.key, f.after))
		case f.before != "" && f.after == "":
			log.Removed = append(log.Removed, fmt.Sprintf("%s (was %q)", f.key, f.before))
		case f.before != f.after:
			log.Updated = append(log.Updated, fmt.Sprintf("%s: %q → %q", f.key, f.before, f.after))
		}
	}
}

func formatHours(h int) string {
	if h == 0 {
		return ""
	}
	return fmt.Sprintf("%dh", h)
}

// diffSet reports membership transitions only: entries joining the list go
// to added, entries leaving it go to updated.
func diffSet(log *Changelog, before, after []string, addedFormat, resolvedFormat string) {
	beforeSet := toSet(before)
	afterSet := toSet(after)
	for _, item := range after {
		if !beforeSet[item] {
			log.Added = append(log.Added, fmt.Sprintf(addedFormat, item))
		}
	}
	for _, item := range before {
		if !afterSet[item] {
			log.Updated = append(log.Updated, fmt.Sprintf(resolvedFormat, item))
		}
	}
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, item := range items {
		set[item] = true
	}
	return set
}

func sortedKeys(a, b map[string]string) []string {
	seen := map[string]bool{}
	var keys []string
	for key := range a {
		if !seen[key] {
			seen[key] = true
			keys = append(keys, key)
		}
	}
	for key := range b {
		if !seen[key] {
			seen[key] = true
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}
