package session_test

import (
	"context"
	"io"
	"testing"

	"github.com/jackc/pgx/v5/pgproto3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sqlgateway/pgadapter/pkg/backend"
	"github.com/sqlgateway/pgadapter/pkg/backend/backendtest"
	"github.com/sqlgateway/pgadapter/pkg/codec"
	"github.com/sqlgateway/pgadapter/pkg/config"
	"github.com/sqlgateway/pgadapter/pkg/session"
)

// fakeFramer replays a fixed inbound message queue and records every
// outbound message, standing in for pgwire.Framer in tests that drive
// Session.Run end to end without a real socket.
type fakeFramer struct {
	inbound []pgproto3.FrontendMessage
	pos     int
	Sent    []pgproto3.BackendMessage
}

func (f *fakeFramer) Receive() (pgproto3.FrontendMessage, error) {
	if f.pos >= len(f.inbound) {
		return nil, io.EOF
	}
	m := f.inbound[f.pos]
	f.pos++
	return m, nil
}

func (f *fakeFramer) Send(msg pgproto3.BackendMessage) { f.Sent = append(f.Sent, msg) }
func (f *fakeFramer) Flush() error                     { return nil }
func (f *fakeFramer) ReceiveStartupMessage() (*pgproto3.StartupMessage, error) {
	return &pgproto3.StartupMessage{}, nil
}
func (f *fakeFramer) SetAuthType(uint32) {}

func (f *fakeFramer) errorResponses() []*pgproto3.ErrorResponse {
	var out []*pgproto3.ErrorResponse
	for _, m := range f.Sent {
		if e, ok := m.(*pgproto3.ErrorResponse); ok {
			out = append(out, e)
		}
	}
	return out
}

func (f *fakeFramer) commandTags() []string {
	var out []string
	for _, m := range f.Sent {
		if c, ok := m.(*pgproto3.CommandComplete); ok {
			out = append(out, string(c.CommandTag))
		}
	}
	return out
}

func defaultPolicy() config.AdapterPolicy {
	return config.AdapterPolicy{MaxBatchStatements: 16, CopyMutationLimit: 20000}
}

func newTestSession(framer *fakeFramer, driver *backendtest.Driver) *session.Session {
	return session.New(framer, driver, defaultPolicy(), nil, "testdb", "tester", 1)
}

func TestSimpleQuery_HelloWorld(t *testing.T) {
	driver := backendtest.NewDriver()
	driver.Handlers["SELECT 1"] = func(params []backend.Value) (*backend.Result, error) {
		return &backend.Result{
			Columns: []backend.ResultColumn{{Name: "?column?", OID: codec.OIDInt8}},
			Rows:    [][]backend.Value{{int64(1)}},
			Tag:     "SELECT 1",
		}, nil
	}

	framer := &fakeFramer{inbound: []pgproto3.FrontendMessage{
		&pgproto3.Query{String: "SELECT 1;"},
	}}
	s := newTestSession(framer, driver)

	err := s.Run(context.Background())
	require.NoError(t, err)

	assert.Empty(t, framer.errorResponses())
	assert.Contains(t, framer.commandTags(), "SELECT 1")
	assert.True(t, driver.Txs[0].Committed, "the implicit transaction wrapping the bare SELECT should commit")

	// spec scenario 1's literal wire sequence: RowDescription must precede
	// the DataRow it describes, and CommandComplete precedes ReadyForQuery.
	// Run's first frame is the ReadyForQuery that ends startup, so the
	// query's own reply starts at index 1.
	require.Len(t, framer.Sent, 5)
	_, ok := framer.Sent[0].(*pgproto3.ReadyForQuery)
	require.True(t, ok, "expected the startup ReadyForQuery first, got %T", framer.Sent[0])

	rowDesc, ok := framer.Sent[1].(*pgproto3.RowDescription)
	require.True(t, ok, "expected RowDescription second, got %T", framer.Sent[1])
	require.Len(t, rowDesc.Fields, 1)
	assert.Equal(t, "?column?", string(rowDesc.Fields[0].Name))
	assert.Equal(t, uint32(codec.OIDInt8), rowDesc.Fields[0].DataTypeOID)

	_, ok = framer.Sent[2].(*pgproto3.DataRow)
	assert.True(t, ok, "expected DataRow third, got %T", framer.Sent[2])

	cmd, ok := framer.Sent[3].(*pgproto3.CommandComplete)
	require.True(t, ok, "expected CommandComplete fourth, got %T", framer.Sent[3])
	assert.Equal(t, "SELECT 1", string(cmd.CommandTag))

	_, ok = framer.Sent[4].(*pgproto3.ReadyForQuery)
	assert.True(t, ok, "expected ReadyForQuery last, got %T", framer.Sent[4])
}

func TestSimpleQuery_MidStringFailureAbortsExplicitTransaction(t *testing.T) {
	driver := backendtest.NewDriver()
	driver.Handlers["INSERT INTO t VALUES (1)"] = func([]backend.Value) (*backend.Result, error) {
		return &backend.Result{Tag: "INSERT 0 1"}, nil
	}
	driver.Handlers["INSERT INTO t VALUES (bad)"] = func([]backend.Value) (*backend.Result, error) {
		return nil, &backend.Error{Code: "22P02", Message: "invalid input syntax"}
	}

	framer := &fakeFramer{inbound: []pgproto3.FrontendMessage{
		&pgproto3.Query{String: "BEGIN; INSERT INTO t VALUES (1); INSERT INTO t VALUES (bad); INSERT INTO t VALUES (1);"},
	}}
	s := newTestSession(framer, driver)

	require.NoError(t, s.Run(context.Background()))

	errs := framer.errorResponses()
	require.Len(t, errs, 2, "the bad insert and the trailing statement rejected by the failed-transaction gate")
	assert.Equal(t, "25P02", errs[1].Code, "statements after a failure in an explicit transaction are rejected with in-failed-sql-transaction")

	require.Len(t, driver.Txs, 1, "BEGIN opens exactly one explicit transaction for the whole string")
	assert.False(t, driver.Txs[0].Committed)
	assert.True(t, driver.Txs[0].RolledBack, "Run's cleanup rolls back the still-open transaction when the client disconnects")

	var readyForQuery *pgproto3.ReadyForQuery
	for _, m := range framer.Sent {
		if r, ok := m.(*pgproto3.ReadyForQuery); ok {
			readyForQuery = r
		}
	}
	require.NotNil(t, readyForQuery)
	assert.Equal(t, byte('E'), readyForQuery.TxStatus, "the client, not the engine, must issue ROLLBACK to leave FAILED_TRANSACTION")
}

func TestSimpleQuery_MidStringFailureAbortsImplicitTransaction(t *testing.T) {
	driver := backendtest.NewDriver()
	driver.Handlers["INSERT INTO t VALUES (1)"] = func([]backend.Value) (*backend.Result, error) {
		return &backend.Result{Tag: "INSERT 0 1"}, nil
	}
	driver.Handlers["INSERT INTO t VALUES (NOT_A_NUMBER)"] = func([]backend.Value) (*backend.Result, error) {
		return nil, &backend.Error{Code: "22P02", Message: "invalid input syntax"}
	}
	driver.Handlers["INSERT INTO t VALUES (3)"] = func([]backend.Value) (*backend.Result, error) {
		return &backend.Result{Tag: "INSERT 0 1"}, nil
	}

	framer := &fakeFramer{inbound: []pgproto3.FrontendMessage{
		&pgproto3.Query{String: "INSERT INTO t VALUES (1); INSERT INTO t VALUES (NOT_A_NUMBER); INSERT INTO t VALUES (3);"},
	}}
	s := newTestSession(framer, driver)

	require.NoError(t, s.Run(context.Background()))

	tags := framer.commandTags()
	assert.Equal(t, []string{"INSERT 0 1"}, tags, "the third statement must not run once the implicit transaction has failed")

	errs := framer.errorResponses()
	require.Len(t, errs, 1)
	assert.Equal(t, "22P02", errs[0].Code)

	require.Len(t, driver.Txs, 1, "each bare statement shares one implicit transaction until the string aborts")
	assert.False(t, driver.Txs[0].Committed)
	assert.True(t, driver.Txs[0].RolledBack, "the failed implicit transaction rolls back rather than staying open")

	var readyForQuery *pgproto3.ReadyForQuery
	for _, m := range framer.Sent {
		if r, ok := m.(*pgproto3.ReadyForQuery); ok {
			readyForQuery = r
		}
	}
	require.NotNil(t, readyForQuery)
	assert.Equal(t, byte('I'), readyForQuery.TxStatus, "an implicit transaction's failure never leaves the session in FAILED_TRANSACTION")
}

func TestExtendedQuery_ParseBindDescribeExecuteSync(t *testing.T) {
	driver := backendtest.NewDriver()
	driver.Handlers["INSERT INTO t (a) VALUES ($1)"] = func(params []backend.Value) (*backend.Result, error) {
		return &backend.Result{Tag: "INSERT 0 1"}, nil
	}

	framer := &fakeFramer{inbound: []pgproto3.FrontendMessage{
		&pgproto3.Parse{Name: "s1", Query: "INSERT INTO t (a) VALUES ($1)", ParameterOIDs: []uint32{codec.OIDInt4}},
		&pgproto3.Bind{DestinationPortal: "p1", PreparedStatement: "s1", Parameters: [][]byte{[]byte("7")}},
		&pgproto3.Execute{Portal: "p1"},
		&pgproto3.Sync{},
	}}
	s := newTestSession(framer, driver)

	require.NoError(t, s.Run(context.Background()))

	assert.Empty(t, framer.errorResponses())
	assert.Contains(t, framer.commandTags(), "INSERT 0 1")
	require.Len(t, driver.Txs, 1)
	assert.True(t, driver.Txs[0].Committed, "a non-SELECT batch flushed at Sync commits its implicit transaction")
}

func TestExtendedQuery_ErrorSuppressesUntilSync(t *testing.T) {
	driver := backendtest.NewDriver()

	framer := &fakeFramer{inbound: []pgproto3.FrontendMessage{
		&pgproto3.Bind{DestinationPortal: "p1", PreparedStatement: "does-not-exist"},
		&pgproto3.Describe{ObjectType: 'P', Name: "p1"},
		&pgproto3.Execute{Portal: "p1"},
		&pgproto3.Sync{},
		&pgproto3.Parse{Name: "s2", Query: "SELECT 1"},
	}}
	s := newTestSession(framer, driver)

	require.NoError(t, s.Run(context.Background()))

	errs := framer.errorResponses()
	require.Len(t, errs, 1, "Describe/Execute after the Bind failure are suppressed until Sync")

	var parseCompletes int
	for _, m := range framer.Sent {
		if _, ok := m.(*pgproto3.ParseComplete); ok {
			parseCompletes++
		}
	}
	assert.Equal(t, 1, parseCompletes, "Sync clears extendedFailed so the next Parse succeeds normally")
}

func TestExtendedQuery_PortalSuspension(t *testing.T) {
	driver := backendtest.NewDriver()
	driver.Handlers["SELECT * FROM t"] = func([]backend.Value) (*backend.Result, error) {
		rows := make([][]backend.Value, 5)
		for i := range rows {
			rows[i] = []backend.Value{int64(i)}
		}
		return &backend.Result{
			Columns: []backend.ResultColumn{{Name: "n", OID: codec.OIDInt8}},
			Rows:    rows,
		}, nil
	}

	framer := &fakeFramer{inbound: []pgproto3.FrontendMessage{
		&pgproto3.Parse{Name: "s1", Query: "SELECT * FROM t"},
		&pgproto3.Bind{DestinationPortal: "p1", PreparedStatement: "s1"},
		&pgproto3.Execute{Portal: "p1", MaxRows: 2},
		&pgproto3.Execute{Portal: "p1", MaxRows: 2},
		&pgproto3.Execute{Portal: "p1", MaxRows: 2},
		&pgproto3.Sync{},
	}}
	s := newTestSession(framer, driver)

	require.NoError(t, s.Run(context.Background()))

	assert.Empty(t, framer.errorResponses())

	var dataRows, suspensions int
	for _, m := range framer.Sent {
		switch m.(type) {
		case *pgproto3.DataRow:
			dataRows++
		case *pgproto3.PortalSuspended:
			suspensions++
		}
	}
	assert.Equal(t, 5, dataRows)
	assert.Equal(t, 2, suspensions, "5 rows at maxRows=2 suspends after the first two Executes and drains on the third")
}
