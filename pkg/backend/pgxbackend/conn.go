package pgxbackend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sqlgateway/pgadapter/pkg/backend"
	"github.com/sqlgateway/pgadapter/pkg/config"
)

// sessionDriver is the backend.Driver handed to one frontend session. It
// draws physical connections from the shared Pool for the session's
// lifetime; each Begin acquires (and Commit/Rollback releases) one.
type sessionDriver struct {
	pool     *Pool
	connPool *pgxpool.Pool
	user     config.UserConfig

	mu     sync.Mutex
	params map[string]string
}

func (d *sessionDriver) Begin(ctx context.Context, readOnly bool) (backend.Tx, error) {
	conn, err := d.pool.acquire(ctx, d.user)
	if err != nil {
		return nil, wrapPgErr(err)
	}

	txOpts := pgx.TxOptions{}
	if readOnly {
		txOpts.AccessMode = pgx.ReadOnly
	}

	tx, err := conn.BeginTx(ctx, txOpts)
	if err != nil {
		conn.Release()
		return nil, wrapPgErr(err)
	}

	return &txImpl{conn: conn, tx: tx}, nil
}

func (d *sessionDriver) SetSessionParameter(ctx context.Context, name, value string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.params[name] = value
	return nil
}

func (d *sessionDriver) GetSessionParameter(name string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, ok := d.params[name]
	return v, ok
}

func (d *sessionDriver) Close(ctx context.Context) error {
	return nil
}

// txImpl adapts a pgx.Tx (held open on a leased pgxpool.Conn) to
// backend.Tx.
type txImpl struct {
	conn *pgxpool.Conn
	tx   pgx.Tx
}

func (t *txImpl) Execute(ctx context.Context, stmt *backend.Statement, params []backend.Value, maxRows int) (*backend.Result, error) {
	rows, err := t.tx.Query(ctx, stmt.SQL, params...)
	if err != nil {
		return nil, wrapPgErr(err)
	}
	defer rows.Close()

	result := &backend.Result{Columns: stmt.ResultColumns}

	fields := rows.FieldDescriptions()
	if len(result.Columns) == 0 && len(fields) > 0 {
		result.Columns = make([]backend.ResultColumn, len(fields))
		for i, f := range fields {
			result.Columns[i] = backend.ResultColumn{Name: f.Name, OID: f.DataTypeOID, TypeModifier: f.TypeModifier}
		}
	}

	n := 0
	for rows.Next() {
		if maxRows > 0 && n >= maxRows {
			result.Suspended = true
			break
		}
		vals, err := rows.Values()
		if err != nil {
			return nil, wrapPgErr(err)
		}
		result.Rows = append(result.Rows, vals)
		n++
	}
	if err := rows.Err(); err != nil {
		return nil, wrapPgErr(err)
	}

	tag := rows.CommandTag()
	result.Tag = tag.String()
	result.RowsAffected = tag.RowsAffected()
	return result, nil
}

func (t *txImpl) ExecuteBatch(ctx context.Context, items []backend.BatchItem, atomic bool) ([]*backend.Result, error) {
	batch := &pgx.Batch{}
	for _, item := range items {
		batch.Queue(item.Statement.SQL, item.Params...)
	}

	br := t.tx.SendBatch(ctx, batch)
	defer br.Close()

	results := make([]*backend.Result, 0, len(items))
	for _, item := range items {
		rows, err := br.Query()
		if err != nil {
			if atomic {
				return nil, wrapPgErr(err)
			}
			results = append(results, &backend.Result{Err: wrapPgErr(err)})
			continue
		}

		result := &backend.Result{Columns: item.Statement.ResultColumns}
		for rows.Next() {
			vals, verr := rows.Values()
			if verr != nil {
				err = verr
				break
			}
			result.Rows = append(result.Rows, vals)
		}
		if err == nil {
			err = rows.Err()
		}
		rows.Close()
		if err != nil {
			if atomic {
				return nil, wrapPgErr(err)
			}
			results = append(results, &backend.Result{Err: wrapPgErr(err)})
			continue
		}

		tag := rows.CommandTag()
		result.Tag = tag.String()
		result.RowsAffected = tag.RowsAffected()
		results = append(results, result)
	}

	return results, nil
}

func (t *txImpl) Commit(ctx context.Context) error {
	defer t.conn.Release()
	return wrapPgErr(t.tx.Commit(ctx))
}

func (t *txImpl) Rollback(ctx context.Context) error {
	defer t.conn.Release()
	return wrapPgErr(t.tx.Rollback(ctx))
}

func (t *txImpl) CopyWriter(ctx context.Context, stmt *backend.Statement) (backend.CopyWriter, error) {
	return newCopyInWriter(t.tx, stmt), nil
}

func (t *txImpl) CopyReader(ctx context.Context, stmt *backend.Statement) (backend.CopyReader, error) {
	return newCopyOutReader(ctx, t.tx, stmt)
}

// copyInWriter buffers rows and hands them to pgx's CopyFrom on Commit,
// since pgx has no incremental COPY-in API of its own.
type copyInWriter struct {
	tx    pgx.Tx
	stmt  *backend.Statement
	table pgx.Identifier
	cols  []string
	rows  [][]backend.Value
}

func newCopyInWriter(tx pgx.Tx, stmt *backend.Statement) *copyInWriter {
	cols := make([]string, len(stmt.ResultColumns))
	for i, c := range stmt.ResultColumns {
		cols[i] = c.Name
	}
	return &copyInWriter{tx: tx, stmt: stmt, table: pgx.Identifier{stmt.Name}, cols: cols}
}

func (w *copyInWriter) WriteRow(ctx context.Context, row []backend.Value) error {
	w.rows = append(w.rows, row)
	return nil
}

func (w *copyInWriter) Commit(ctx context.Context) error {
	_, err := w.tx.CopyFrom(ctx, w.table, w.cols, pgx.CopyFromRows(w.rows))
	return wrapPgErr(err)
}

func (w *copyInWriter) Abort(ctx context.Context, reason error) error {
	w.rows = nil
	return nil
}

// copyOutReader streams rows for COPY ... TO STDOUT via an ordinary
// query over the same transaction.
type copyOutReader struct {
	rows pgx.Rows
}

func newCopyOutReader(ctx context.Context, tx pgx.Tx, stmt *backend.Statement) (*copyOutReader, error) {
	rows, err := tx.Query(ctx, stmt.SQL)
	if err != nil {
		return nil, wrapPgErr(err)
	}
	return &copyOutReader{rows: rows}, nil
}

func (r *copyOutReader) ReadRow(ctx context.Context) ([]backend.Value, error) {
	if !r.rows.Next() {
		if err := r.rows.Err(); err != nil {
			return nil, wrapPgErr(err)
		}
		return nil, io.EOF
	}
	return r.rows.Values()
}

func (r *copyOutReader) Close() error {
	r.rows.Close()
	return nil
}

// wrapPgErr attaches the upstream SQLSTATE to errors coming back from
// pgx, so the session engine can forward it verbatim instead of
// collapsing every backend failure into a generic internal error.
func wrapPgErr(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return &backend.Error{Code: pgErr.Code, Message: pgErr.Message, Cause: err}
	}
	return fmt.Errorf("pgxbackend: %w", err)
}
