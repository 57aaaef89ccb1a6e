package canonical

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ExtractJSON pulls the first JSON object out of a free-text completion
// response. Markdown code fences are stripped first, then a balanced-brace
// scan (string- and escape-aware, unlike a lastIndex slice) finds the object
// boundary.
func ExtractJSON(raw string) (string, error) {
	text := stripFences(raw)

	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", fmt.Errorf("%w: no JSON object found", ErrParse)
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		ch := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], nil
			}
		}
	}
	return "", fmt.Errorf("%w: unbalanced JSON object", ErrParse)
}

func stripFences(raw string) string {
	text := strings.TrimSpace(raw)
	if !strings.Contains(text, "```") {
		return text
	}
	var out strings.Builder
	for _, line := range strings.Split(text, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			continue
		}
		out.WriteString(line)
		out.WriteByte('\n')
	}
	return out.String()
}

// Parse narrows a JSON snapshot onto the matching schema version and checks
// the identity fields. Callers that received free text should run
// ExtractJSON first.
func Parse(data []byte) (*Canonical, error) {
	var probe struct {
		Version    string `json:"version"`
		LeadID     string `json:"lead_id"`
		LeadIDCaml string `json:"leadId"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}

	switch probe.Version {
	case VersionV10:
		var v V10
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrParse, err)
		}
		if strings.TrimSpace(v.LeadID) == "" {
			return nil, fmt.Errorf("%w: leadId", ErrValidation)
		}
		return FromV10(&v), nil
	case VersionV11:
		var v V11
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrParse, err)
		}
		if strings.TrimSpace(v.LeadID) == "" {
			return nil, fmt.Errorf("%w: lead_id", ErrValidation)
		}
		return FromV11(&v), nil
	case "":
		return nil, fmt.Errorf("%w: version", ErrValidation)
	default:
		return nil, fmt.Errorf("%w: unsupported version %q", ErrValidation, probe.Version)
	}
}

// ParseResponse is the full defensive path for a completion response:
// extract, parse, and verify the snapshot belongs to the expected lead.
func ParseResponse(raw, leadID string) (*Canonical, error) {
	body, err := ExtractJSON(raw)
	if err != nil {
		return nil, err
	}
	snapshot, err := Parse([]byte(body))
	if err != nil {
		return nil, err
	}
	if snapshot.LeadID() != leadID {
		return nil, fmt.Errorf("%w: snapshot lead %q does not match %q", ErrValidation, snapshot.LeadID(), leadID)
	}
	return snapshot, nil
}
