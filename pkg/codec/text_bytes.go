package codec

import (
	"encoding/hex"
	"fmt"
)

func decodeText(format Format, src []byte) (string, error) {
	// Text and binary formats are identical for character types: raw
	// bytes interpreted as the session's client encoding, which this
	// adapter always treats as UTF-8.
	return string(src), nil
}

func encodeText(format Format, v any) ([]byte, error) {
	switch s := v.(type) {
	case string:
		return []byte(s), nil
	case []byte:
		return s, nil
	default:
		return nil, fmt.Errorf("expected string, got %T", v)
	}
}

func decodeBytea(format Format, src []byte) ([]byte, error) {
	if format == FormatBinary {
		return append([]byte(nil), src...), nil
	}
	// Text format bytea uses the "\x" hex escape PostgreSQL has emitted
	// by default since 9.0.
	if len(src) >= 2 && src[0] == '\\' && src[1] == 'x' {
		return hex.DecodeString(string(src[2:]))
	}
	return nil, fmt.Errorf("unsupported bytea text encoding (expected \\x prefix)")
}

func encodeBytea(format Format, v any) ([]byte, error) {
	b, ok := v.([]byte)
	if !ok {
		return nil, fmt.Errorf("expected []byte, got %T", v)
	}
	if format == FormatBinary {
		return b, nil
	}
	out := make([]byte, 2+hex.EncodedLen(len(b)))
	out[0], out[1] = '\\', 'x'
	hex.Encode(out[2:], b)
	return out, nil
}
