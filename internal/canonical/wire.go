package canonical

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Note rows are typed by a literal text prefix followed by a newline and a
// pretty-printed JSON body. The prefixes are a compatibility contract with
// every other consumer of the notes table and must not change.
const (
	TagV10 = "[AI_CANONICAL_NOTE v1.0]"
	TagV11 = "[AI_CANONICAL_NOTE v1.1]"
)

// EncodeNote renders a snapshot in the persisted note format.
func EncodeNote(c *Canonical) (string, error) {
	var (
		tag  string
		body any
	)
	switch {
	case c == nil:
		return "", fmt.Errorf("%w: nil snapshot", ErrValidation)
	case c.V11 != nil:
		tag, body = TagV11, c.V11
	case c.V10 != nil:
		tag, body = TagV10, c.V10
	default:
		return "", fmt.Errorf("%w: empty snapshot", ErrValidation)
	}
	payload, err := json.MarshalIndent(body, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode canonical note: %w", err)
	}
	return tag + "\n" + string(payload), nil
}

// IsNote reports whether a note body carries a canonical snapshot tag.
func IsNote(content string) bool {
	trimmed := strings.TrimSpace(content)
	return strings.HasPrefix(trimmed, TagV10) || strings.HasPrefix(trimmed, TagV11)
}

// DecodeNote parses a persisted note body back into a snapshot: locate the
// tag, then the first brace, and parse to end of string.
func DecodeNote(content string) (*Canonical, error) {
	if !IsNote(content) {
		return nil, fmt.Errorf("%w: missing canonical note tag", ErrParse)
	}
	start := strings.IndexByte(content, '{')
	if start < 0 {
		return nil, fmt.Errorf("%w: missing JSON body", ErrParse)
	}
	return Parse([]byte(content[start:]))
}
