package session

import (
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"

	"github.com/sqlgateway/pgadapter/pkg/backend"
	"github.com/sqlgateway/pgadapter/pkg/classify"
	"github.com/sqlgateway/pgadapter/pkg/codec"
	"github.com/sqlgateway/pgadapter/pkg/copy"
	"github.com/sqlgateway/pgadapter/pkg/pgwire"
)

// errInFailedTransaction is returned by statement handlers when the
// session is in FAILED_TRANSACTION and the incoming statement is not a
// ROLLBACK.
var errInFailedTransaction = pgwire.NewErr(pgwire.Error, pgerrcode.InFailedSQLTransaction,
	"current transaction is aborted, commands ignored until end of transaction block", nil)

// errMultiStatementParse is the extended-query pipeline's rejection of a
// Parse message whose text contains more than one statement.
var errMultiStatementParse = pgwire.NewErr(pgwire.Error, pgerrcode.SyntaxError,
	"cannot insert multiple commands into a prepared statement", nil)

// toWireError classifies an arbitrary error raised while executing a
// statement into the ErrorResponse the client should see.
func toWireError(err error) *pgwire.Err {
	if err == nil {
		return nil
	}

	var wireErr *pgwire.Err
	if errors.As(err, &wireErr) {
		return wireErr
	}

	var overflow *codec.OverflowError
	if errors.As(err, &overflow) {
		return pgwire.NewErr(pgwire.Error, pgerrcode.DatetimeFieldOverflow,
			fmt.Sprintf("%s out of range", overflow.Kind), err)
	}

	var decodeErr *codec.DecodeError
	if errors.As(err, &decodeErr) {
		return pgwire.NewErr(pgwire.Error, pgerrcode.InvalidTextRepresentation, decodeErr.Error(), err)
	}

	var fmtErr *copy.FormatError
	if errors.As(err, &fmtErr) {
		return pgwire.NewErr(pgwire.Error, pgerrcode.BadCopyFileFormat, fmtErr.Error(), err)
	}

	if errors.Is(err, copy.ErrMutationLimitExceeded) {
		return pgwire.NewErr(pgwire.Error, pgerrcode.ProgramLimitExceeded, err.Error(), err)
	}

	var sqlErr backend.SQLStateError
	if errors.As(err, &sqlErr) {
		return pgwire.NewErr(pgwire.Error, sqlErr.SQLState(), sqlErr.Error(), err)
	}

	return pgwire.NewErr(pgwire.Error, pgerrcode.InternalError, err.Error(), err)
}

func newSyntaxError(detail string) *pgwire.Err {
	return pgwire.NewErr(pgwire.Error, pgerrcode.SyntaxError, detail, nil)
}

// classifyPlaceholderMismatch reports a Bind whose parameter count does
// not match the statement's declared placeholder count.
func classifyPlaceholderMismatch(stmt *classify.Statement, got int) *pgwire.Err {
	want := 0
	if len(stmt.Placeholders) > 0 {
		want = classify.MaxPlaceholder(stmt.Placeholders)
	}
	return pgwire.NewErr(pgwire.Error, pgerrcode.ProtocolViolation,
		fmt.Sprintf("bind message supplies %d parameters, but statement requires %d", got, want), nil)
}
