package codec

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
)

func decodeBool(format Format, src []byte) (bool, error) {
	if format == FormatBinary {
		if len(src) != 1 {
			return false, fmt.Errorf("invalid binary bool length %d", len(src))
		}
		return src[0] != 0, nil
	}
	switch string(src) {
	case "t", "true", "TRUE", "1":
		return true, nil
	case "f", "false", "FALSE", "0":
		return false, nil
	default:
		return false, fmt.Errorf("invalid bool text %q", src)
	}
}

func encodeBool(format Format, v any) ([]byte, error) {
	b, ok := v.(bool)
	if !ok {
		return nil, fmt.Errorf("expected bool, got %T", v)
	}
	if format == FormatBinary {
		if b {
			return []byte{1}, nil
		}
		return []byte{0}, nil
	}
	if b {
		return []byte("t"), nil
	}
	return []byte("f"), nil
}

func decodeInt2(format Format, src []byte) (int64, error) {
	if format == FormatBinary {
		if len(src) != 2 {
			return 0, fmt.Errorf("invalid binary int2 length %d", len(src))
		}
		return int64(int16(binary.BigEndian.Uint16(src))), nil
	}
	n, err := strconv.ParseInt(string(src), 10, 16)
	return n, err
}

func encodeInt2(format Format, v any) ([]byte, error) {
	n, err := asInt64(v)
	if err != nil {
		return nil, err
	}
	if n < math.MinInt16 || n > math.MaxInt16 {
		return nil, fmt.Errorf("int2 out of range: %d", n)
	}
	if format == FormatBinary {
		buf := make([]byte, 2)
		binary.BigEndian.PutUint16(buf, uint16(int16(n)))
		return buf, nil
	}
	return []byte(strconv.FormatInt(n, 10)), nil
}

func decodeInt4(format Format, src []byte) (int64, error) {
	if format == FormatBinary {
		if len(src) != 4 {
			return 0, fmt.Errorf("invalid binary int4 length %d", len(src))
		}
		return int64(int32(binary.BigEndian.Uint32(src))), nil
	}
	n, err := strconv.ParseInt(string(src), 10, 32)
	return n, err
}

func encodeInt4(format Format, v any) ([]byte, error) {
	n, err := asInt64(v)
	if err != nil {
		return nil, err
	}
	if n < math.MinInt32 || n > math.MaxInt32 {
		return nil, fmt.Errorf("int4 out of range: %d", n)
	}
	if format == FormatBinary {
		buf := make([]byte, 4)
		binary.BigEndian.PutUint32(buf, uint32(int32(n)))
		return buf, nil
	}
	return []byte(strconv.FormatInt(n, 10)), nil
}

func decodeInt8(format Format, src []byte) (int64, error) {
	if format == FormatBinary {
		if len(src) != 8 {
			return 0, fmt.Errorf("invalid binary int8 length %d", len(src))
		}
		return int64(binary.BigEndian.Uint64(src)), nil
	}
	return strconv.ParseInt(string(src), 10, 64)
}

func encodeInt8(format Format, v any) ([]byte, error) {
	n, err := asInt64(v)
	if err != nil {
		return nil, err
	}
	if format == FormatBinary {
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, uint64(n))
		return buf, nil
	}
	return []byte(strconv.FormatInt(n, 10)), nil
}

func decodeFloat4(format Format, src []byte) (float64, error) {
	if format == FormatBinary {
		if len(src) != 4 {
			return 0, fmt.Errorf("invalid binary float4 length %d", len(src))
		}
		bits := binary.BigEndian.Uint32(src)
		return float64(math.Float32frombits(bits)), nil
	}
	f, err := strconv.ParseFloat(string(src), 32)
	return f, err
}

func encodeFloat4(format Format, v any) ([]byte, error) {
	f, err := asFloat64(v)
	if err != nil {
		return nil, err
	}
	if format == FormatBinary {
		buf := make([]byte, 4)
		binary.BigEndian.PutUint32(buf, math.Float32bits(float32(f)))
		return buf, nil
	}
	return []byte(strconv.FormatFloat(f, 'g', -1, 32)), nil
}

func decodeFloat8(format Format, src []byte) (float64, error) {
	if format == FormatBinary {
		if len(src) != 8 {
			return 0, fmt.Errorf("invalid binary float8 length %d", len(src))
		}
		bits := binary.BigEndian.Uint64(src)
		return math.Float64frombits(bits), nil
	}
	return strconv.ParseFloat(string(src), 64)
}

func encodeFloat8(format Format, v any) ([]byte, error) {
	f, err := asFloat64(v)
	if err != nil {
		return nil, err
	}
	if format == FormatBinary {
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, math.Float64bits(f))
		return buf, nil
	}
	return []byte(strconv.FormatFloat(f, 'g', -1, 64)), nil
}

func asInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int32:
		return int64(n), nil
	case int:
		return int64(n), nil
	case float64:
		return int64(n), nil
	default:
		return 0, fmt.Errorf("expected integer, got %T", v)
	}
}

func asFloat64(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("expected float, got %T", v)
	}
}
