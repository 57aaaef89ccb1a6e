package memvault

import (
	"fmt"
	"strings"

	"denticlinic/api/internal/rbac"
)

// ContextPack selects the single most privileged memory the role may read
// (internal, then doctor, then patient, falling back when a scope is
// absent) and renders it as a flat bullet block for a completion context
// window. It always returns a usable string.
func ContextPack(role rbac.Role, memories map[string]MemoryV1) string {
	memory, ok := selectMemory(role, memories)
	if !ok {
		return NoMemoryAvailable
	}
	return render(memory)
}

func selectMemory(role rbac.Role, memories map[string]MemoryV1) (MemoryV1, bool) {
	var order []string
	switch rbac.MemoryScope(role) {
	case ScopeInternal:
		order = []string{ScopeInternal, ScopeDoctor, ScopePatient}
	case ScopeDoctor:
		order = []string{ScopeDoctor, ScopePatient}
	default:
		order = []string{ScopePatient}
	}
	for _, scope := range order {
		if memory, ok := memories[scope]; ok {
			return memory, true
		}
	}
	return MemoryV1{}, false
}

func render(memory MemoryV1) string {
	var b strings.Builder

	writeSection(&b, "Facts", factLines(memory.Facts))
	writeSection(&b, "What happened", memory.EventsSummary)
	if action := memory.NextBestAction; action != nil {
		lines := []string{action.Label}
		if action.DueHours > 0 {
			lines[0] = fmt.Sprintf("%s (within %dh)", action.Label, action.DueHours)
		}
		lines = append(lines, action.Script...)
		writeSection(&b, "Next action", lines)
	}
	writeSection(&b, "Open questions", memory.OpenQuestions)
	writeSection(&b, "Missing info", memory.MissingFields)

	text := strings.TrimRight(b.String(), "\n")
	if text == "" {
		return NoMemoryAvailable
	}
	return text
}

func factLines(facts []Fact) []string {
	lines := make([]string, 0, len(facts))
	for _, fact := range facts {
		lines = append(lines, fact.Key+": "+fact.Value)
	}
	return lines
}

func writeSection(b *strings.Builder, title string, lines []string) {
	if len(lines) == 0 {
		return
	}
	b.WriteString(title + ":\n")
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		b.WriteString("- " + line + "\n")
	}
}
