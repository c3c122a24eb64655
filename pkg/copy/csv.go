package copy

import "bytes"

// csvScanner extracts complete CSV records from a byte stream that may
// arrive across multiple CopyData frames, tracking quote state so a
// newline inside a quoted field is not mistaken for a row boundary.
type csvScanner struct {
	opts CSVOptions

	fields   [][]byte
	current  bytes.Buffer
	inQuotes bool
	sawQuote bool
}

func newCSVScanner(opts CSVOptions) *csvScanner {
	return &csvScanner{opts: opts}
}

// feed consumes buf and returns any rows it completed. Leftover partial
// state (an open quote, an unterminated field) is retained internally.
func (s *csvScanner) feed(buf []byte) (rows [][][]byte) {
	for i := 0; i < len(buf); i++ {
		c := buf[i]
		switch {
		case s.inQuotes:
			if c == s.opts.Escape && s.opts.Escape != s.opts.Quote && i+1 < len(buf) {
				s.current.WriteByte(buf[i+1])
				i++
				continue
			}
			if c == s.opts.Quote {
				if i+1 < len(buf) && buf[i+1] == s.opts.Quote {
					s.current.WriteByte(s.opts.Quote)
					i++
					continue
				}
				s.inQuotes = false
				continue
			}
			s.current.WriteByte(c)
		case c == s.opts.Quote && s.current.Len() == 0 && !s.sawQuote:
			s.inQuotes = true
			s.sawQuote = true
		case c == s.opts.Delimiter:
			s.endField()
		case c == '\n':
			s.endField()
			rows = append(rows, s.fields)
			s.fields = nil
		case c == '\r':
			// swallowed; a following \n ends the record
		default:
			s.current.WriteByte(c)
		}
	}
	return rows
}

func (s *csvScanner) endField() {
	field := append([]byte(nil), s.current.Bytes()...)
	s.fields = append(s.fields, field)
	s.current.Reset()
	s.sawQuote = false
}

// flush returns a final row if the stream ended without a trailing
// newline but with buffered content.
func (s *csvScanner) flush() [][]byte {
	if s.current.Len() == 0 && len(s.fields) == 0 {
		return nil
	}
	s.endField()
	row := s.fields
	s.fields = nil
	return row
}

// resolveCSVField applies the configured null sentinel to a raw,
// already-unquoted CSV field.
func resolveCSVField(field []byte, opts CSVOptions) (value []byte, isNull bool) {
	if string(field) == opts.Null {
		return nil, true
	}
	return field, false
}
