package pgwire

// TxStatus is the single-byte transaction status reported in ReadyForQuery.
// Only the three values PostgreSQL itself defines are valid on the wire;
// there is no "active" status distinct from idle.
type TxStatus byte

const (
	TxIdle          TxStatus = 'I'
	TxInTransaction TxStatus = 'T'
	TxFailed        TxStatus = 'E'
)

func (s TxStatus) Byte() byte { return byte(s) }
