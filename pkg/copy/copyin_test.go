package copy_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sqlgateway/pgadapter/pkg/backend"
	"github.com/sqlgateway/pgadapter/pkg/backend/backendtest"
	"github.com/sqlgateway/pgadapter/pkg/codec"
	"github.com/sqlgateway/pgadapter/pkg/copy"
)

func twoColumnStatement() *backend.Statement {
	return &backend.Statement{
		SQL: "COPY t (id, name) FROM STDIN",
		ResultColumns: []backend.ResultColumn{
			{Name: "id", OID: codec.OIDInt4},
			{Name: "name", OID: codec.OIDText},
		},
	}
}

func TestCopyIn_TextSmall(t *testing.T) {
	driver := backendtest.NewDriver()
	tx, err := driver.Begin(context.Background(), false)
	require.NoError(t, err)

	stmt := twoColumnStatement()
	policy := copy.MutationPolicy{Atomic: false, Limit: 20000}
	in := copy.NewInState(tx, stmt, copy.FormatText, copy.DefaultCSVOptions(), policy)

	ctx := context.Background()
	require.NoError(t, in.Feed(ctx, []byte("1\tOne\n2\tTwo\n")))
	rowCount, err := in.Done(ctx)
	require.NoError(t, err)

	assert.Equal(t, int64(2), rowCount, "COPY 2")

	backendTx := tx.(*backendtest.Tx)
	writer, ok := backendTx.Writers[stmt.SQL]
	require.True(t, ok, "COPY IN must open a CopyWriter for the target statement")
	require.Len(t, writer.WrittenRows, 2)
	assert.Equal(t, []backend.Value{int64(1), "One"}, writer.WrittenRows[0])
	assert.Equal(t, []backend.Value{int64(2), "Two"}, writer.WrittenRows[1])
	assert.False(t, writer.Aborted)
}

func TestCopyIn_TextNullAndEscapes(t *testing.T) {
	driver := backendtest.NewDriver()
	tx, err := driver.Begin(context.Background(), false)
	require.NoError(t, err)

	stmt := twoColumnStatement()
	in := copy.NewInState(tx, stmt, copy.FormatText, copy.DefaultCSVOptions(), copy.MutationPolicy{Limit: 20000})

	ctx := context.Background()
	require.NoError(t, in.Feed(ctx, []byte("3\t\\N\n4\tTab\\there\n")))
	rowCount, err := in.Done(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), rowCount)

	backendTx := tx.(*backendtest.Tx)
	writer := backendTx.Writers[stmt.SQL]
	require.Len(t, writer.WrittenRows, 2)
	assert.Equal(t, []backend.Value{int64(3), nil}, writer.WrittenRows[0])
	assert.Equal(t, []backend.Value{int64(4), "Tab\there"}, writer.WrittenRows[1])
}

func TestCopyIn_AtomicExceedsMutationLimit(t *testing.T) {
	driver := backendtest.NewDriver()
	tx, err := driver.Begin(context.Background(), false)
	require.NoError(t, err)

	cols := make([]backend.ResultColumn, 10)
	for i := range cols {
		cols[i] = backend.ResultColumn{Name: "c", OID: codec.OIDInt4}
	}
	stmt := &backend.Statement{SQL: "COPY wide FROM STDIN", ResultColumns: cols}

	// 1819 rows * (10 columns + 1 indexed column) = 20009 mutations,
	// just over the 20000 ceiling.
	policy := copy.MutationPolicy{Atomic: true, Limit: 20000, IndexedColumns: 1}
	in := copy.NewInState(tx, stmt, copy.FormatText, copy.DefaultCSVOptions(), policy)

	var sb strings.Builder
	for i := 0; i < 1819; i++ {
		for c := 0; c < 10; c++ {
			if c > 0 {
				sb.WriteByte('\t')
			}
			sb.WriteByte('1')
		}
		sb.WriteByte('\n')
	}

	ctx := context.Background()
	require.NoError(t, in.Feed(ctx, []byte(sb.String())))
	rowCount, err := in.Done(ctx)

	require.Error(t, err)
	assert.ErrorIs(t, err, copy.ErrMutationLimitExceeded)
	assert.Equal(t, int64(0), rowCount)

	backendTx := tx.(*backendtest.Tx)
	_, wrote := backendTx.Writers[stmt.SQL]
	assert.False(t, wrote, "an atomic COPY that exceeds the mutation ceiling must fail before ever opening a CopyWriter")
}

func TestCopyIn_MalformedRowDrainsUntilDone(t *testing.T) {
	driver := backendtest.NewDriver()
	tx, err := driver.Begin(context.Background(), false)
	require.NoError(t, err)

	stmt := twoColumnStatement()
	in := copy.NewInState(tx, stmt, copy.FormatText, copy.DefaultCSVOptions(), copy.MutationPolicy{Limit: 20000})

	ctx := context.Background()
	// three tab-separated fields where only two columns are expected.
	require.NoError(t, in.Feed(ctx, []byte("1\tOne\textra\n2\tTwo\n")))
	require.NoError(t, in.Feed(ctx, []byte("3\tThree\n")))

	rowCount, err := in.Done(ctx)
	require.Error(t, err)
	assert.Equal(t, int64(0), rowCount)
}
