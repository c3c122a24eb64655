package codec

import (
	"encoding/binary"
	"fmt"
	"strings"
)

var arrayElementOID = map[uint32]uint32{
	OIDBoolArray:        OIDBool,
	OIDInt2Array:        OIDInt2,
	OIDInt4Array:        OIDInt4,
	OIDInt8Array:        OIDInt8,
	OIDTextArray:        OIDText,
	OIDVarcharArray:     OIDVarchar,
	OIDFloat4Array:      OIDFloat4,
	OIDFloat8Array:      OIDFloat8,
	OIDNumericArray:     OIDNumeric,
	OIDTimestampArray:   OIDTimestamp,
	OIDTimestamptzArray: OIDTimestamptz,
	OIDDateArray:        OIDDate,
}

// decodeArray handles one-dimensional arrays only; multi-dimensional
// arrays are outside this adapter's scope (see non-goals).
func decodeArray(oid uint32, format Format, src []byte) ([]any, error) {
	elemOID, ok := arrayElementOID[oid]
	if !ok {
		return nil, fmt.Errorf("unsupported array oid %d", oid)
	}

	if format == FormatBinary {
		return decodeArrayBinary(elemOID, src)
	}
	return decodeArrayText(elemOID, src)
}

func decodeArrayBinary(elemOID uint32, src []byte) ([]any, error) {
	if len(src) < 12 {
		return nil, fmt.Errorf("truncated array header")
	}
	ndim := int32(binary.BigEndian.Uint32(src[0:4]))
	if ndim == 0 {
		return []any{}, nil
	}
	if ndim != 1 {
		return nil, fmt.Errorf("only one-dimensional arrays are supported, got %d dims", ndim)
	}
	// src[4:8] is the has-null flag, src[8:12] the declared element OID;
	// both are informational here since elemOID is already known.
	dimSize := int32(binary.BigEndian.Uint32(src[12:16]))
	// src[16:20] is the lower bound.
	off := 20

	out := make([]any, 0, dimSize)
	for i := int32(0); i < dimSize; i++ {
		if off+4 > len(src) {
			return nil, fmt.Errorf("truncated array element length")
		}
		l := int32(binary.BigEndian.Uint32(src[off : off+4]))
		off += 4
		if l < 0 {
			out = append(out, nil)
			continue
		}
		if off+int(l) > len(src) {
			return nil, fmt.Errorf("truncated array element data")
		}
		v, err := Decode(elemOID, FormatBinary, src[off:off+int(l)])
		if err != nil {
			return nil, err
		}
		out = append(out, v)
		off += int(l)
	}
	return out, nil
}

func decodeArrayText(elemOID uint32, src []byte) ([]any, error) {
	s := strings.TrimSpace(string(src))
	if len(s) < 2 || s[0] != '{' || s[len(s)-1] != '}' {
		return nil, fmt.Errorf("invalid array literal")
	}
	inner := s[1 : len(s)-1]
	elems := splitArrayLiteral(inner)

	out := make([]any, 0, len(elems))
	for _, e := range elems {
		if e == "NULL" {
			out = append(out, nil)
			continue
		}
		unquoted := unquoteArrayElement(e)
		v, err := Decode(elemOID, FormatText, []byte(unquoted))
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// splitArrayLiteral splits a comma-separated PostgreSQL array literal
// body, respecting double-quoted elements that may themselves contain
// escaped commas or quotes.
func splitArrayLiteral(s string) []string {
	if s == "" {
		return nil
	}
	var parts []string
	var cur strings.Builder
	inQuotes := false
	escaped := false
	for _, r := range s {
		switch {
		case escaped:
			cur.WriteRune(r)
			escaped = false
		case r == '\\':
			escaped = true
		case r == '"':
			inQuotes = !inQuotes
			cur.WriteRune(r)
		case r == ',' && !inQuotes:
			parts = append(parts, cur.String())
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	parts = append(parts, cur.String())
	return parts
}

func unquoteArrayElement(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		inner := s[1 : len(s)-1]
		inner = strings.ReplaceAll(inner, `\"`, `"`)
		inner = strings.ReplaceAll(inner, `\\`, `\`)
		return inner
	}
	return s
}

func encodeArray(oid uint32, format Format, v any) ([]byte, error) {
	elemOID, ok := arrayElementOID[oid]
	if !ok {
		return nil, fmt.Errorf("unsupported array oid %d", oid)
	}
	elems, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("expected []any, got %T", v)
	}

	if format == FormatBinary {
		return encodeArrayBinary(elemOID, elems)
	}
	return encodeArrayText(elemOID, elems)
}

func encodeArrayBinary(elemOID uint32, elems []any) ([]byte, error) {
	if len(elems) == 0 {
		buf := make([]byte, 12)
		binary.BigEndian.PutUint32(buf[8:12], elemOID)
		return buf, nil
	}

	buf := make([]byte, 20)
	binary.BigEndian.PutUint32(buf[0:4], 1)
	binary.BigEndian.PutUint32(buf[4:8], 0)
	binary.BigEndian.PutUint32(buf[8:12], elemOID)
	binary.BigEndian.PutUint32(buf[12:16], uint32(len(elems)))
	binary.BigEndian.PutUint32(buf[16:20], 1)

	for _, e := range elems {
		if e == nil {
			lenBuf := make([]byte, 4)
			binary.BigEndian.PutUint32(lenBuf, 0xFFFFFFFF)
			buf = append(buf, lenBuf...)
			continue
		}
		encoded, err := Encode(elemOID, FormatBinary, e)
		if err != nil {
			return nil, err
		}
		lenBuf := make([]byte, 4)
		binary.BigEndian.PutUint32(lenBuf, uint32(len(encoded)))
		buf = append(buf, lenBuf...)
		buf = append(buf, encoded...)
	}
	return buf, nil
}

func encodeArrayText(elemOID uint32, elems []any) ([]byte, error) {
	var b strings.Builder
	b.WriteByte('{')
	for i, e := range elems {
		if i > 0 {
			b.WriteByte(',')
		}
		if e == nil {
			b.WriteString("NULL")
			continue
		}
		encoded, err := Encode(elemOID, FormatText, e)
		if err != nil {
			return nil, err
		}
		b.WriteString(quoteArrayElement(string(encoded)))
	}
	b.WriteByte('}')
	return []byte(b.String()), nil
}

func quoteArrayElement(s string) string {
	if s == "" || strings.ContainsAny(s, `,{}" \\`) {
		s = strings.ReplaceAll(s, `\`, `\\`)
		s = strings.ReplaceAll(s, `"`, `\"`)
		return `"` + s + `"`
	}
	return s
}
