package memvault

import (
	"encoding/json"
	"fmt"
	"strings"

	"denticlinic/api/internal/canonical"
)

const memoryTagPrefix = "[AI_MEMORY_V1 scope="

// EncodeNote renders a memory in the persisted note format:
// [AI_MEMORY_V1 scope=<scope>] + newline + pretty-printed JSON.
func EncodeNote(memory MemoryV1) (string, error) {
	payload, err := json.MarshalIndent(memory, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode memory note: %w", err)
	}
	return memoryTagPrefix + memory.Scope + "]\n" + string(payload), nil
}

// IsNote reports whether a note body carries a memory tag, and for which
// scope.
func IsNote(content string) (scope string, ok bool) {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, memoryTagPrefix) {
		return "", false
	}
	rest := strings.TrimPrefix(trimmed, memoryTagPrefix)
	end := strings.IndexByte(rest, ']')
	if end < 0 {
		return "", false
	}
	return rest[:end], true
}

// DecodeNote parses a persisted memory note body.
func DecodeNote(content string) (MemoryV1, error) {
	if _, ok := IsNote(content); !ok {
		return MemoryV1{}, fmt.Errorf("%w: missing memory note tag", canonical.ErrParse)
	}
	start := strings.IndexByte(content, '{')
	if start < 0 {
		return MemoryV1{}, fmt.Errorf("%w: missing JSON body", canonical.ErrParse)
	}
	var memory MemoryV1
	if err := json.Unmarshal([]byte(content[start:]), &memory); err != nil {
		return MemoryV1{}, fmt.Errorf("%w: %v", canonical.ErrParse, err)
	}
	return memory, nil
}
