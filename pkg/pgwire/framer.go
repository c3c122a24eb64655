package pgwire

import (
	"fmt"
	"io"

	"github.com/jackc/pgx/v5/pgproto3"
)

// Framer reads and writes whole PostgreSQL wire protocol messages over a
// byte stream. It hides frame-length handling and buffering from callers:
// Receive blocks until a complete frame has arrived, and Send only queues
// bytes until Flush (or the next blocking Receive) pushes them out.
//
// pgproto3.Backend already implements exactly this contract, so Framer is
// a thin seam that lets the rest of the adapter depend on an interface
// instead of the concrete pgproto3 type.
type Framer interface {
	Receive() (pgproto3.FrontendMessage, error)
	Send(pgproto3.BackendMessage)
	Flush() error
	ReceiveStartupMessage() (*pgproto3.StartupMessage, error)
	SetAuthType(authType uint32)
}

// NewFramer builds a Framer over rw using pgproto3's backend codec.
func NewFramer(rw io.ReadWriter) Framer {
	return &backendFramer{Backend: pgproto3.NewBackend(rw, rw)}
}

// backendFramer adapts pgproto3.Backend to the Framer interface: the
// underlying ReceiveStartupMessage returns the broader FrontendMessage
// interface (it also covers SSLRequest/GSSEncRequest/CancelRequest), while
// Framer narrows this to the StartupMessage case that the rest of the
// adapter handles.
type backendFramer struct {
	*pgproto3.Backend
}

func (b *backendFramer) SetAuthType(authType uint32) {
	_ = b.Backend.SetAuthType(authType)
}

func (b *backendFramer) ReceiveStartupMessage() (*pgproto3.StartupMessage, error) {
	msg, err := b.Backend.ReceiveStartupMessage()
	if err != nil {
		return nil, err
	}
	startup, ok := msg.(*pgproto3.StartupMessage)
	if !ok {
		return nil, fmt.Errorf("pgwire: unsupported startup message type %T", msg)
	}
	return startup, nil
}
