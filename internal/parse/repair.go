package parse

import "strings"

// balancedPrefix locates the longest prefix of a damaged JSON text that
// can be closed into a valid document at a report boundary. For an array
// this is the prefix through the last complete top-level element, with the
// closing bracket appended; for a bare object it is the prefix through the
// point where the object closes. Returns false when nothing complete was
// consumed before the damage.
func balancedPrefix(text string) (string, bool) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "", false
	}

	start := strings.IndexAny(trimmed, "[{")
	if start < 0 {
		return "", false
	}
	trimmed = trimmed[start:]
	isArray := trimmed[0] == '['

	var (
		stack          []byte
		inString       bool
		escaped        bool
		lastElementEnd = -1 // byte after the last complete top-level array element
		closedAt       = -1 // byte after the document closed at depth 0
	)

	for i := 0; i < len(trimmed); i++ {
		c := trimmed[i]

		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			inString = true
		case '{', '[':
			stack = append(stack, c)
		case '}', ']':
			if len(stack) == 0 {
				return "", false
			}
			open := stack[len(stack)-1]
			if (c == '}' && open != '{') || (c == ']' && open != '[') {
				return "", false
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				closedAt = i + 1
			} else if isArray && len(stack) == 1 && c == '}' {
				lastElementEnd = i + 1
			}
		}
	}

	if closedAt > 0 {
		return trimmed[:closedAt], true
	}
	if isArray && lastElementEnd > 0 {
		return trimmed[:lastElementEnd] + "]", true
	}
	return "", false
}
