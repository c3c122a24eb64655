package copy

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

var binarySignature = []byte("PGCOPY\n\xff\r\n\x00")

// binaryScanner extracts complete tuples from the BINARY COPY framing:
// an 11-byte signature, a flags word, a header extension, then a
// sequence of tuples each starting with an int16 field count (-1 ends
// the stream) followed by length-prefixed field bytes.
type binaryScanner struct {
	buf         bytes.Buffer
	sawHeader   bool
	done        bool
	extensionSz int32
	haveExtSz   bool
}

func newBinaryScanner() *binaryScanner {
	return &binaryScanner{}
}

// feed appends buf to the internal buffer and returns any tuples that
// became fully available. Each tuple is a slice of raw field bytes,
// with a nil entry representing SQL NULL.
func (s *binaryScanner) feed(buf []byte) (rows [][][]byte, err error) {
	if s.done {
		return nil, nil
	}
	s.buf.Write(buf)

	if !s.sawHeader {
		if s.buf.Len() < len(binarySignature)+8 {
			return nil, nil
		}
		data := s.buf.Bytes()
		if !bytes.Equal(data[:len(binarySignature)], binarySignature) {
			return nil, &FormatError{Cause: fmt.Errorf("bad binary COPY signature")}
		}
		flags := int32(binary.BigEndian.Uint32(data[len(binarySignature):]))
		_ = flags
		extLen := int32(binary.BigEndian.Uint32(data[len(binarySignature)+4:]))
		hdr := len(binarySignature) + 8 + int(extLen)
		if s.buf.Len() < hdr {
			return nil, nil
		}
		s.buf.Next(hdr)
		s.sawHeader = true
	}

	for {
		data := s.buf.Bytes()
		if len(data) < 2 {
			return rows, nil
		}
		fieldCount := int16(binary.BigEndian.Uint16(data[:2]))
		if fieldCount == -1 {
			s.buf.Next(2)
			s.done = true
			return rows, nil
		}
		if fieldCount < 0 {
			return rows, &FormatError{Cause: fmt.Errorf("negative field count %d", fieldCount)}
		}

		offset := 2
		row := make([][]byte, 0, fieldCount)
		complete := true
		for i := 0; i < int(fieldCount); i++ {
			if offset+4 > len(data) {
				complete = false
				break
			}
			flen := int32(binary.BigEndian.Uint32(data[offset : offset+4]))
			offset += 4
			if flen == -1 {
				row = append(row, nil)
				continue
			}
			if flen < 0 || offset+int(flen) > len(data) {
				complete = false
				break
			}
			row = append(row, data[offset:offset+int(flen)])
			offset += int(flen)
		}
		if !complete {
			return rows, nil
		}
		rowCopy := make([][]byte, len(row))
		for i, f := range row {
			if f != nil {
				cp := make([]byte, len(f))
				copy(cp, f)
				rowCopy[i] = cp
			}
		}
		rows = append(rows, rowCopy)
		s.buf.Next(offset)
	}
}

// encodeBinaryHeader writes the fixed BINARY COPY OUT preamble.
func encodeBinaryHeader(w io.Writer) error {
	if _, err := w.Write(binarySignature); err != nil {
		return err
	}
	var hdr [8]byte // flags=0, header extension length=0
	_, err := w.Write(hdr[:])
	return err
}

// encodeBinaryRow writes one tuple in BINARY COPY OUT framing. A nil
// field encodes as SQL NULL (length -1).
func encodeBinaryRow(w io.Writer, fields [][]byte) error {
	var countBuf [2]byte
	binary.BigEndian.PutUint16(countBuf[:], uint16(len(fields)))
	if _, err := w.Write(countBuf[:]); err != nil {
		return err
	}
	for _, f := range fields {
		var lenBuf [4]byte
		if f == nil {
			nullLen := int32(-1)
			binary.BigEndian.PutUint32(lenBuf[:], uint32(nullLen))
			if _, err := w.Write(lenBuf[:]); err != nil {
				return err
			}
			continue
		}
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(f)))
		if _, err := w.Write(lenBuf[:]); err != nil {
			return err
		}
		if _, err := w.Write(f); err != nil {
			return err
		}
	}
	return nil
}

func encodeBinaryTrailer(w io.Writer) error {
	var trailer [2]byte
	binary.BigEndian.PutUint16(trailer[:], uint16(0xFFFF))
	_, err := w.Write(trailer[:])
	return err
}
