package wire

import (
	"fmt"
	"strings"
)

// FormatProperties renders t as a "{key=value,...}" property list.
// Values must not contain ',' or '}'; encode free text with MethodBase64.
func FormatProperties(t *Table) string {
	var sb strings.Builder
	sb.WriteByte('{')
	for i, k := range t.keys {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(t.values[k])
	}
	sb.WriteByte('}')
	return sb.String()
}

// ParseProperties parses a "{key=value,...}" property list.
// Elements without '=' are ignored.
func ParseProperties(s string) (*Table, error) {
	s = strings.TrimSpace(s)
	if len(s) < 2 || s[0] != '{' || s[len(s)-1] != '}' {
		return nil, fmt.Errorf("%w: %.32q", ErrMalformedProperties, s)
	}
	t := NewTable()
	body := s[1 : len(s)-1]
	if body == "" {
		return t, nil
	}
	for _, elem := range strings.Split(body, ",") {
		k, v, ok := strings.Cut(elem, "=")
		if !ok {
			continue
		}
		t.Set(strings.TrimSpace(k), strings.TrimSpace(v))
	}
	return t, nil
}
