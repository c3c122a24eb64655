package codec

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
)

// jsonbVersion is the single version byte PostgreSQL's binary jsonb wire
// format is currently defined to carry.
const jsonbVersion = 1

func decodeJSONB(format Format, src []byte) ([]byte, error) {
	var raw []byte
	if format == FormatBinary {
		if len(src) < 1 || src[0] != jsonbVersion {
			return nil, fmt.Errorf("unsupported jsonb version byte")
		}
		raw = src[1:]
	} else {
		raw = src
	}
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("invalid json")
	}
	return canonicalizeJSON(raw)
}

func encodeJSONB(format Format, v any) ([]byte, error) {
	var raw []byte
	switch b := v.(type) {
	case []byte:
		raw = b
	case string:
		raw = []byte(b)
	default:
		return nil, fmt.Errorf("expected []byte or string, got %T", v)
	}

	canon, err := canonicalizeJSON(raw)
	if err != nil {
		return nil, err
	}

	if format == FormatText {
		return canon, nil
	}
	out := make([]byte, 0, len(canon)+1)
	out = append(out, jsonbVersion)
	out = append(out, canon...)
	return out, nil
}

// canonicalizeJSON re-serializes JSON with a single space after each
// object key's colon, matching how PostgreSQL's jsonb output function
// formats keys (jsonb loses whitespace and key order is preserved but
// re-rendered with ": " separators).
func canonicalizeJSON(raw []byte) ([]byte, error) {
	result := gjson.ParseBytes(raw)
	return canonicalizeValue(result)
}

func canonicalizeValue(v gjson.Result) ([]byte, error) {
	switch {
	case v.IsObject():
		var buf bytes.Buffer
		buf.WriteByte('{')
		first := true
		var outerErr error
		v.ForEach(func(key, value gjson.Result) bool {
			if !first {
				buf.WriteString(", ")
			}
			first = false
			keyJSON, err := json.Marshal(key.String())
			if err != nil {
				outerErr = err
				return false
			}
			buf.Write(keyJSON)
			buf.WriteString(": ")
			child, err := canonicalizeValue(value)
			if err != nil {
				outerErr = err
				return false
			}
			buf.Write(child)
			return true
		})
		if outerErr != nil {
			return nil, outerErr
		}
		buf.WriteByte('}')
		return buf.Bytes(), nil
	case v.IsArray():
		var buf bytes.Buffer
		buf.WriteByte('[')
		first := true
		var outerErr error
		v.ForEach(func(_, value gjson.Result) bool {
			if !first {
				buf.WriteString(", ")
			}
			first = false
			child, err := canonicalizeValue(value)
			if err != nil {
				outerErr = err
				return false
			}
			buf.Write(child)
			return true
		})
		if outerErr != nil {
			return nil, outerErr
		}
		buf.WriteByte(']')
		return buf.Bytes(), nil
	default:
		return []byte(v.Raw), nil
	}
}
