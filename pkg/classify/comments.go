package classify

import "strings"

// StripComments removes SQL line comments (-- to end of line) and
// nested block comments (/* ... */, which PostgreSQL allows to nest)
// from sql, preserving everything inside string and quoted-identifier
// literals untouched.
func StripComments(sql string) string {
	var b strings.Builder
	b.Grow(len(sql))

	runes := []rune(sql)
	n := len(runes)
	i := 0
	for i < n {
		c := runes[i]

		switch {
		case c == '-' && i+1 < n && runes[i+1] == '-':
			for i < n && runes[i] != '\n' {
				i++
			}
		case c == '/' && i+1 < n && runes[i+1] == '*':
			depth := 1
			i += 2
			for i < n && depth > 0 {
				if runes[i] == '/' && i+1 < n && runes[i+1] == '*' {
					depth++
					i += 2
					continue
				}
				if runes[i] == '*' && i+1 < n && runes[i+1] == '/' {
					depth--
					i += 2
					continue
				}
				i++
			}
		case c == '\'':
			b.WriteRune(c)
			i++
			for i < n {
				b.WriteRune(runes[i])
				if runes[i] == '\'' {
					if i+1 < n && runes[i+1] == '\'' {
						b.WriteRune(runes[i+1])
						i += 2
						continue
					}
					i++
					break
				}
				i++
			}
		case c == '"':
			b.WriteRune(c)
			i++
			for i < n {
				b.WriteRune(runes[i])
				if runes[i] == '"' {
					i++
					break
				}
				i++
			}
		default:
			b.WriteRune(c)
			i++
		}
	}

	return b.String()
}
