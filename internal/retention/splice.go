package retention

import (
	"slices"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// spliceBlock replaces the table block whose header is path (and any
// sub-table blocks under it) with block, or appends block when no such
// header exists. Comment and blank lines directly before the next header
// stay with that header.
func spliceBlock(raw []byte, path []string, block []byte) []byte {
	lines := strings.SplitAfter(string(raw), "\n")
	start, end := -1, len(lines)

	var multi string
	for i, line := range lines {
		if multi != "" {
			if strings.Count(line, multi)%2 == 1 {
				multi = ""
			}
			continue
		}

		hdr, ok := headerPath(strings.TrimSpace(line))
		if !ok {
			multi = openMultiline(line)
			continue
		}
		if start < 0 {
			if slices.Equal(hdr, path) {
				start = i
			}
			continue
		}
		if !isDescendant(hdr, path) {
			end = i
			break
		}
	}

	if start < 0 {
		var b strings.Builder
		b.Write(raw)
		if len(raw) > 0 {
			if raw[len(raw)-1] != '\n' {
				b.WriteByte('\n')
			}
			b.WriteByte('\n')
		}
		b.Write(block)
		return []byte(b.String())
	}

	cut := end
	for cut > start+1 {
		t := strings.TrimSpace(lines[cut-1])
		if t != "" && !strings.HasPrefix(t, "#") {
			break
		}
		cut--
	}
	// Keep a separator line when the next header follows directly.
	trailing := strings.Join(lines[cut:], "")
	if cut == end && end < len(lines) {
		trailing = "\n" + trailing
	}

	var b strings.Builder
	b.WriteString(strings.Join(lines[:start], ""))
	b.Write(block)
	b.WriteString(trailing)
	return []byte(b.String())
}

// headerPath returns the dotted key path of a [table] or [[array]] header
// line.
func headerPath(line string) ([]string, bool) {
	if !strings.HasPrefix(line, "[") {
		return nil, false
	}
	m := map[string]any{}
	if err := toml.Unmarshal([]byte(line), &m); err != nil {
		return nil, false
	}

	var path []string
	cur := m
	for len(cur) == 1 {
		var next any
		for k, v := range cur {
			path = append(path, k)
			next = v
		}
		t, ok := next.(map[string]any)
		if !ok {
			break
		}
		cur = t
	}
	return path, len(path) > 0
}

// openMultiline returns the multi-line string delimiter left open by line.
func openMultiline(line string) string {
	if strings.HasPrefix(strings.TrimSpace(line), "#") {
		return ""
	}
	basic := strings.Index(line, `"""`)
	literal := strings.Index(line, `'''`)
	delim := ""
	switch {
	case basic >= 0 && (literal < 0 || basic < literal):
		delim = `"""`
	case literal >= 0:
		delim = `'''`
	default:
		return ""
	}
	if strings.Count(line, delim)%2 == 1 {
		return delim
	}
	return ""
}

func isDescendant(hdr, path []string) bool {
	return len(hdr) > len(path) && slices.Equal(hdr[:len(path)], path)
}
