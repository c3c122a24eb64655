// Package codec translates between the PostgreSQL wire representation of
// a value (text or binary, tagged by OID) and the Go values the backend
// and session packages pass around.
package codec

import (
	"fmt"

	"github.com/jackc/pgx/v5/pgtype"
)

// Format distinguishes the two wire encodings a Bind/Describe message can
// request per column.
type Format int16

const (
	FormatText   Format = 0
	FormatBinary Format = 1
)

// OIDs used throughout the adapter. These mirror pgtype's well-known
// type OIDs; re-exporting them here keeps callers from having to know
// which package owns the constant.
const (
	OIDBool        = pgtype.BoolOID
	OIDBytea       = pgtype.ByteaOID
	OIDInt2        = pgtype.Int2OID
	OIDInt4        = pgtype.Int4OID
	OIDInt8        = pgtype.Int8OID
	OIDText        = pgtype.TextOID
	OIDVarchar     = pgtype.VarcharOID
	OIDBPChar      = pgtype.BPCharOID
	OIDFloat4      = pgtype.Float4OID
	OIDFloat8      = pgtype.Float8OID
	OIDDate        = pgtype.DateOID
	OIDTimestamp   = pgtype.TimestampOID
	OIDTimestamptz = pgtype.TimestamptzOID
	OIDNumeric     = pgtype.NumericOID
	OIDJSONB       = pgtype.JSONBOID

	OIDBoolArray        = pgtype.BoolArrayOID
	OIDInt2Array        = pgtype.Int2ArrayOID
	OIDInt4Array        = pgtype.Int4ArrayOID
	OIDInt8Array        = pgtype.Int8ArrayOID
	OIDTextArray        = pgtype.TextArrayOID
	OIDVarcharArray     = pgtype.VarcharArrayOID
	OIDFloat4Array      = pgtype.Float4ArrayOID
	OIDFloat8Array      = pgtype.Float8ArrayOID
	OIDNumericArray     = pgtype.NumericArrayOID
	OIDTimestampArray   = pgtype.TimestampArrayOID
	OIDTimestamptzArray = pgtype.TimestamptzArrayOID
	OIDDateArray        = pgtype.DateArrayOID
)

// DecodeError is returned when the wire bytes for a value don't match
// what its declared OID requires.
type DecodeError struct {
	OID    uint32
	Format Format
	Cause  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("codec: decode oid=%d format=%d: %v", e.OID, e.Format, e.Cause)
}

func (e *DecodeError) Unwrap() error { return e.Cause }

// Decode converts wire bytes for the given OID/format into a Go value.
// A nil src represents SQL NULL and always decodes to nil.
func Decode(oid uint32, format Format, src []byte) (any, error) {
	if src == nil {
		return nil, nil
	}

	var v any
	var err error
	switch oid {
	case OIDBool:
		v, err = decodeBool(format, src)
	case OIDInt2:
		v, err = decodeInt2(format, src)
	case OIDInt4:
		v, err = decodeInt4(format, src)
	case OIDInt8:
		v, err = decodeInt8(format, src)
	case OIDFloat4:
		v, err = decodeFloat4(format, src)
	case OIDFloat8:
		v, err = decodeFloat8(format, src)
	case OIDText, OIDVarchar, OIDBPChar:
		v, err = decodeText(format, src)
	case OIDBytea:
		v, err = decodeBytea(format, src)
	case OIDNumeric:
		v, err = decodeNumeric(format, src)
	case OIDDate:
		v, err = decodeDate(format, src)
	case OIDTimestamp:
		v, err = decodeTimestamp(format, src, false)
	case OIDTimestamptz:
		v, err = decodeTimestamp(format, src, true)
	case OIDJSONB:
		v, err = decodeJSONB(format, src)
	case OIDBoolArray, OIDInt2Array, OIDInt4Array, OIDInt8Array, OIDTextArray,
		OIDVarcharArray, OIDFloat4Array, OIDFloat8Array, OIDNumericArray,
		OIDTimestampArray, OIDTimestamptzArray, OIDDateArray:
		v, err = decodeArray(oid, format, src)
	default:
		// Unknown OIDs are passed through as raw bytes / string so that
		// statements touching types this adapter doesn't specially
		// understand still round-trip when the backend accepts text.
		if format == FormatText {
			v, err = string(src), nil
		} else {
			v, err = append([]byte(nil), src...), nil
		}
	}
	if err != nil {
		return nil, &DecodeError{OID: oid, Format: format, Cause: err}
	}
	return v, nil
}

// Encode converts a Go value produced by the backend into wire bytes for
// the given OID/format. A nil value encodes to a nil slice, i.e. SQL
// NULL.
func Encode(oid uint32, format Format, v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}

	switch oid {
	case OIDBool:
		return encodeBool(format, v)
	case OIDInt2:
		return encodeInt2(format, v)
	case OIDInt4:
		return encodeInt4(format, v)
	case OIDInt8:
		return encodeInt8(format, v)
	case OIDFloat4:
		return encodeFloat4(format, v)
	case OIDFloat8:
		return encodeFloat8(format, v)
	case OIDText, OIDVarchar, OIDBPChar:
		return encodeText(format, v)
	case OIDBytea:
		return encodeBytea(format, v)
	case OIDNumeric:
		return encodeNumeric(format, v)
	case OIDDate:
		return encodeDate(format, v)
	case OIDTimestamp:
		return encodeTimestamp(format, v, false)
	case OIDTimestamptz:
		return encodeTimestamp(format, v, true)
	case OIDJSONB:
		return encodeJSONB(format, v)
	case OIDBoolArray, OIDInt2Array, OIDInt4Array, OIDInt8Array, OIDTextArray,
		OIDVarcharArray, OIDFloat4Array, OIDFloat8Array, OIDNumericArray,
		OIDTimestampArray, OIDTimestamptzArray, OIDDateArray:
		return encodeArray(oid, format, v)
	default:
		switch t := v.(type) {
		case string:
			return []byte(t), nil
		case []byte:
			return t, nil
		default:
			return nil, fmt.Errorf("codec: no encoder for oid %d", oid)
		}
	}
}

// OverflowError is the specific encode failure for binary date/timestamp
// values whose day or microsecond count would not fit in the wire's
// int32/int64 representation once shifted to the 2000-01-01 epoch. The
// session layer maps this to SQLSTATE 22008 (datetime_field_overflow).
type OverflowError struct {
	Kind string
}

func (e *OverflowError) Error() string {
	return fmt.Sprintf("codec: %s value out of range for binary wire format", e.Kind)
}
