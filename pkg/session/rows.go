package session

import (
	"github.com/sqlgateway/pgadapter/pkg/backend"
	"github.com/sqlgateway/pgadapter/pkg/codec"
)

// encodeRowValues converts one decoded result row into the wire bytes
// DataRow expects, honoring the per-column (or single overall) result
// format codes negotiated by Bind.
func encodeRowValues(cols []backend.ResultColumn, resultFmt []int16, row []backend.Value) [][]byte {
	out := make([][]byte, len(row))
	for i, v := range row {
		if v == nil {
			continue
		}
		format := codec.FormatText
		switch {
		case len(resultFmt) == 1:
			format = codec.Format(resultFmt[0])
		case i < len(resultFmt):
			format = codec.Format(resultFmt[i])
		}
		var oid uint32
		if i < len(cols) {
			oid = cols[i].OID
		} else {
			oid = codec.OIDText
		}
		enc, err := codec.Encode(oid, format, v)
		if err != nil {
			// Malformed values should have been caught earlier; fall
			// back to NULL rather than corrupt the wire stream.
			continue
		}
		out[i] = enc
	}
	return out
}
