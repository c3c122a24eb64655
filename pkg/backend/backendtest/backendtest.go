// Package backendtest provides an in-memory fake backend.Driver/backend.Tx
// pair for exercising pkg/session and pkg/copy without a live Postgres-
// wire backend.
package backendtest

import (
	"context"
	"io"
	"sync"

	"github.com/sqlgateway/pgadapter/pkg/backend"
)

// Handler computes a Result for one Execute call against sql/params. Tests
// register handlers by exact SQL text; DefaultHandler covers anything not
// explicitly registered.
type Handler func(params []backend.Value) (*backend.Result, error)

// Driver is a scriptable backend.Driver. Zero value is ready to use.
type Driver struct {
	mu sync.Mutex

	// Handlers maps exact statement SQL to a canned response.
	Handlers map[string]Handler

	// DefaultHandler answers any statement with no registered Handler.
	// The zero default returns an empty, tagless Result.
	DefaultHandler Handler

	// SessionParams records SetSessionParameter calls and backs
	// GetSessionParameter.
	SessionParams map[string]string

	// CopyRows, keyed by the requesting Statement.SQL, records rows a test
	// wants CopyReader to produce, and where CopyWriter should deposit
	// rows a test wants to assert on.
	CopyRows map[string][][]backend.Value

	Closed bool

	Txs []*Tx
}

// NewDriver builds a Driver with empty tables ready for a test to
// populate.
func NewDriver() *Driver {
	return &Driver{
		Handlers:      make(map[string]Handler),
		SessionParams: make(map[string]string),
		CopyRows:      make(map[string][][]backend.Value),
	}
}

func (d *Driver) Begin(ctx context.Context, readOnly bool) (backend.Tx, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	tx := &Tx{driver: d, readOnly: readOnly}
	d.Txs = append(d.Txs, tx)
	return tx, nil
}

func (d *Driver) SetSessionParameter(ctx context.Context, name, value string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.SessionParams[name] = value
	return nil
}

func (d *Driver) GetSessionParameter(name string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, ok := d.SessionParams[name]
	return v, ok
}

func (d *Driver) Close(ctx context.Context) error {
	d.Closed = true
	return nil
}

func (d *Driver) resolve(sql string) Handler {
	d.mu.Lock()
	defer d.mu.Unlock()
	if h, ok := d.Handlers[sql]; ok {
		return h
	}
	if d.DefaultHandler != nil {
		return d.DefaultHandler
	}
	return func([]backend.Value) (*backend.Result, error) {
		return &backend.Result{Tag: "OK"}, nil
	}
}

// Tx is a single unit of work against a Driver. Committed and RolledBack
// are recorded so a test can assert on the transaction's final outcome.
type Tx struct {
	driver   *Driver
	readOnly bool

	Committed  bool
	RolledBack bool

	// Writers records every CopyWriter handed out by CopyWriter, keyed by
	// the requesting statement's SQL, so a test can inspect WrittenRows.
	Writers map[string]*CopyWriter

	// cursors holds the not-yet-returned rows of a statement suspended by
	// a prior maxRows-limited Execute, keyed by Statement identity, so a
	// later Execute against the same *backend.Statement resumes rather
	// than re-running the handler from scratch.
	cursors map[*backend.Statement]*cursor
}

type cursor struct {
	columns []backend.ResultColumn
	tag     string
	rows    [][]backend.Value
}

func (t *Tx) Execute(ctx context.Context, stmt *backend.Statement, params []backend.Value, maxRows int) (*backend.Result, error) {
	c, resuming := t.cursors[stmt]
	if !resuming {
		h := t.driver.resolve(stmt.SQL)
		res, err := h(params)
		if err != nil {
			return nil, err
		}
		c = &cursor{columns: res.Columns, tag: res.Tag, rows: res.Rows}
	}

	rows := c.rows
	if maxRows > 0 && len(rows) > maxRows {
		if t.cursors == nil {
			t.cursors = make(map[*backend.Statement]*cursor)
		}
		t.cursors[stmt] = &cursor{columns: c.columns, tag: c.tag, rows: rows[maxRows:]}
		return &backend.Result{Columns: c.columns, Rows: rows[:maxRows], Suspended: true, Tag: c.tag}, nil
	}

	delete(t.cursors, stmt)
	return &backend.Result{Columns: c.columns, Rows: rows, Tag: c.tag}, nil
}

func (t *Tx) ExecuteBatch(ctx context.Context, batch []backend.BatchItem, atomic bool) ([]*backend.Result, error) {
	results := make([]*backend.Result, 0, len(batch))
	for _, item := range batch {
		res, err := t.Execute(ctx, item.Statement, item.Params, 0)
		if err != nil {
			if atomic {
				return nil, err
			}
			results = append(results, &backend.Result{Err: err})
			continue
		}
		results = append(results, res)
	}
	return results, nil
}

func (t *Tx) Commit(ctx context.Context) error {
	t.Committed = true
	return nil
}

func (t *Tx) Rollback(ctx context.Context) error {
	t.RolledBack = true
	return nil
}

func (t *Tx) CopyWriter(ctx context.Context, stmt *backend.Statement) (backend.CopyWriter, error) {
	if t.Writers == nil {
		t.Writers = make(map[string]*CopyWriter)
	}
	w := &CopyWriter{}
	t.Writers[stmt.SQL] = w
	return w, nil
}

func (t *Tx) CopyReader(ctx context.Context, stmt *backend.Statement) (backend.CopyReader, error) {
	rows := t.driver.CopyRows[stmt.SQL]
	return &CopyReader{rows: rows}, nil
}

// CopyWriter accumulates rows in WrittenRows for the test to assert on; it
// never mutates the Driver's CopyRows table (a test that wants COPY OUT to
// see what COPY IN wrote should do so explicitly).
type CopyWriter struct {
	WrittenRows [][]backend.Value
	Aborted     bool
	AbortReason error
}

func (w *CopyWriter) WriteRow(ctx context.Context, row []backend.Value) error {
	w.WrittenRows = append(w.WrittenRows, row)
	return nil
}

func (w *CopyWriter) Commit(ctx context.Context) error {
	return nil
}

func (w *CopyWriter) Abort(ctx context.Context, reason error) error {
	w.Aborted = true
	w.AbortReason = reason
	return nil
}

// CopyReader replays a fixed row set for COPY ... TO STDOUT.
type CopyReader struct {
	rows [][]backend.Value
	pos  int
}

func (r *CopyReader) ReadRow(ctx context.Context) ([]backend.Value, error) {
	if r.pos >= len(r.rows) {
		return nil, io.EOF
	}
	row := r.rows[r.pos]
	r.pos++
	return row, nil
}

func (r *CopyReader) Close() error { return nil }
