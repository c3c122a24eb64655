package copy

import "bytes"

var textNullMarker = []byte(`\N`)

// splitTextFields splits one already-newline-delimited TEXT format row
// into its raw (still-escaped) tab-separated fields.
func splitTextFields(line []byte) [][]byte {
	return bytes.Split(line, []byte{'\t'})
}

// unescapeTextField decodes one TEXT format field: the exact bytes `\N`
// mean SQL NULL, otherwise backslash escapes are resolved.
func unescapeTextField(field []byte) (value []byte, isNull bool) {
	if bytes.Equal(field, textNullMarker) {
		return nil, true
	}
	if bytes.IndexByte(field, '\\') < 0 {
		return field, false
	}

	out := make([]byte, 0, len(field))
	for i := 0; i < len(field); i++ {
		c := field[i]
		if c != '\\' || i == len(field)-1 {
			out = append(out, c)
			continue
		}
		i++
		switch field[i] {
		case 'b':
			out = append(out, '\b')
		case 'f':
			out = append(out, '\f')
		case 'n':
			out = append(out, '\n')
		case 'r':
			out = append(out, '\r')
		case 't':
			out = append(out, '\t')
		case 'v':
			out = append(out, '\v')
		case '\\':
			out = append(out, '\\')
		default:
			out = append(out, field[i])
		}
	}
	return out, false
}

// escapeTextField encodes a raw value for COPY OUT text output.
func escapeTextField(value []byte) []byte {
	out := make([]byte, 0, len(value))
	for _, c := range value {
		switch c {
		case '\\':
			out = append(out, '\\', '\\')
		case '\t':
			out = append(out, '\\', 't')
		case '\n':
			out = append(out, '\\', 'n')
		case '\r':
			out = append(out, '\\', 'r')
		default:
			out = append(out, c)
		}
	}
	return out
}
