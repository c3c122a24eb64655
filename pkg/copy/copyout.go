package copy

import (
	"bytes"
	"context"
	"errors"
	"io"

	"github.com/sqlgateway/pgadapter/pkg/backend"
	"github.com/sqlgateway/pgadapter/pkg/codec"
)

// OutState drives one COPY ... TO STDOUT: it pulls decoded rows from
// the backend and encodes them under the chosen framing, producing one
// CopyData frame's payload at a time.
type OutState struct {
	reader  backend.CopyReader
	format  Format
	csv     CSVOptions
	columns []backend.ResultColumn

	headerSent  bool
	trailerSent bool
}

// NewOutState prepares a COPY OUT sourced from reader.
func NewOutState(reader backend.CopyReader, format Format, csv CSVOptions, columns []backend.ResultColumn) *OutState {
	return &OutState{reader: reader, format: format, csv: csv, columns: columns}
}

// NextChunk returns the bytes for the next CopyData frame, or io.EOF
// once the reader is exhausted and any trailer has been emitted.
func (s *OutState) NextChunk(ctx context.Context) ([]byte, error) {
	var buf bytes.Buffer

	if s.format == FormatBinary && !s.headerSent {
		if err := encodeBinaryHeader(&buf); err != nil {
			return nil, err
		}
		s.headerSent = true
	}

	if s.format == FormatCSV && s.csv.Header && !s.headerSent {
		s.writeCSVHeader(&buf)
		s.headerSent = true
	}

	row, err := s.reader.ReadRow(ctx)
	if errors.Is(err, io.EOF) {
		if s.format == FormatBinary && !s.trailerSent {
			s.trailerSent = true
			if encErr := encodeBinaryTrailer(&buf); encErr != nil {
				return nil, encErr
			}
			return buf.Bytes(), nil
		}
		if buf.Len() > 0 {
			return buf.Bytes(), nil
		}
		return nil, io.EOF
	}
	if err != nil {
		return nil, err
	}

	if err := s.encodeRow(&buf, row); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (s *OutState) writeCSVHeader(buf *bytes.Buffer) {
	for i, col := range s.columns {
		if i > 0 {
			buf.WriteByte(s.csv.Delimiter)
		}
		buf.WriteString(col.Name)
	}
	buf.WriteByte('\n')
}

func (s *OutState) encodeRow(buf *bytes.Buffer, row []backend.Value) error {
	switch s.format {
	case FormatBinary:
		fields := make([][]byte, len(row))
		for i, v := range row {
			if v == nil {
				continue
			}
			enc, err := codec.Encode(s.columns[i].OID, codec.FormatBinary, v)
			if err != nil {
				return err
			}
			fields[i] = enc
		}
		return encodeBinaryRow(buf, fields)
	case FormatCSV:
		return s.encodeCSVRow(buf, row)
	default:
		return s.encodeTextRow(buf, row)
	}
}

func (s *OutState) encodeTextRow(buf *bytes.Buffer, row []backend.Value) error {
	for i, v := range row {
		if i > 0 {
			buf.WriteByte('\t')
		}
		if v == nil {
			buf.Write(textNullMarker)
			continue
		}
		enc, err := codec.Encode(s.columns[i].OID, codec.FormatText, v)
		if err != nil {
			return err
		}
		buf.Write(escapeTextField(enc))
	}
	buf.WriteByte('\n')
	return nil
}

func (s *OutState) encodeCSVRow(buf *bytes.Buffer, row []backend.Value) error {
	for i, v := range row {
		if i > 0 {
			buf.WriteByte(s.csv.Delimiter)
		}
		if v == nil {
			buf.WriteString(s.csv.Null)
			continue
		}
		enc, err := codec.Encode(s.columns[i].OID, codec.FormatText, v)
		if err != nil {
			return err
		}
		s.writeCSVField(buf, enc)
	}
	buf.WriteByte('\n')
	return nil
}

func (s *OutState) writeCSVField(buf *bytes.Buffer, field []byte) {
	needsQuote := bytes.ContainsAny(field, string([]byte{s.csv.Delimiter, s.csv.Quote, '\n', '\r'}))
	if !needsQuote {
		buf.Write(field)
		return
	}
	buf.WriteByte(s.csv.Quote)
	for _, c := range field {
		if c == s.csv.Quote {
			buf.WriteByte(s.csv.Escape)
		}
		buf.WriteByte(c)
	}
	buf.WriteByte(s.csv.Quote)
}
