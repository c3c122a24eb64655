package codec

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// pgEpoch is the reference date PostgreSQL's binary date/timestamp wire
// formats count from: 2000-01-01.
var pgEpoch = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

const dateLayout = "2006-01-02"
const timestampLayout = "2006-01-02 15:04:05.999999"
const timestamptzLayout = "2006-01-02 15:04:05.999999Z07"

func decodeDate(format Format, src []byte) (time.Time, error) {
	if format == FormatBinary {
		if len(src) != 4 {
			return time.Time{}, fmt.Errorf("invalid binary date length %d", len(src))
		}
		days := int32(binary.BigEndian.Uint32(src))
		return pgEpoch.AddDate(0, 0, int(days)), nil
	}
	return time.ParseInLocation(dateLayout, string(src), time.UTC)
}

func encodeDate(format Format, v any) ([]byte, error) {
	t, err := asTime(v)
	if err != nil {
		return nil, err
	}
	if format == FormatText {
		return []byte(t.UTC().Format(dateLayout)), nil
	}
	secs := t.Unix() - pgEpoch.Unix()
	days := secs / 86400
	if secs%86400 < 0 {
		days--
	}
	if days < math.MinInt32 || days > math.MaxInt32 {
		return nil, &OverflowError{Kind: "date"}
	}
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, uint32(int32(days)))
	return buf, nil
}

func decodeTimestamp(format Format, src []byte, tz bool) (time.Time, error) {
	if format == FormatBinary {
		if len(src) != 8 {
			return time.Time{}, fmt.Errorf("invalid binary timestamp length %d", len(src))
		}
		micros := int64(binary.BigEndian.Uint64(src))
		return pgEpoch.Add(time.Duration(micros) * time.Microsecond), nil
	}
	layout := timestampLayout
	if tz {
		layout = timestamptzLayout
	}
	return time.ParseInLocation(layout, string(src), time.UTC)
}

func encodeTimestamp(format Format, v any, tz bool) ([]byte, error) {
	t, err := asTime(v)
	if err != nil {
		return nil, err
	}
	if format == FormatText {
		layout := timestampLayout
		if tz {
			layout = timestamptzLayout
		}
		return []byte(t.UTC().Format(layout)), nil
	}

	// The offset is taken in whole seconds (time.Duration saturates
	// about 292 years from the epoch) and range-checked before scaling,
	// so a value that can't be represented as an int64 microsecond
	// count surfaces as an overflow rather than wrapping.
	secs := t.Unix() - pgEpoch.Unix()
	if secs > math.MaxInt64/1_000_000-1 || secs < math.MinInt64/1_000_000+1 {
		return nil, &OverflowError{Kind: "timestamp"}
	}
	micros := secs*1_000_000 + int64(t.Nanosecond()/1000)
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(micros))
	return buf, nil
}

func asTime(v any) (time.Time, error) {
	t, ok := v.(time.Time)
	if !ok {
		return time.Time{}, fmt.Errorf("expected time.Time, got %T", v)
	}
	return t, nil
}
