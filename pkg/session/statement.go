package session

import (
	"github.com/sqlgateway/pgadapter/pkg/backend"
	"github.com/sqlgateway/pgadapter/pkg/classify"
	"github.com/sqlgateway/pgadapter/pkg/pgwire"
)

// statementCache holds classify.Classify results across every Session in
// the process, since classification depends only on query text and not
// on which connection sent it.
var statementCache = pgwire.NewStatementCache(4096)

// NamedStatement is the result of a Parse message: a classified,
// possibly-rewritten statement plus the parameter/result type metadata
// needed to answer later Describe/Bind/Execute messages against it.
type NamedStatement struct {
	Name       string
	Classified *classify.Statement
	Backend    *backend.Statement
}

// statementRegistry tracks named statements for one session. The
// unnamed statement ("") is just another entry that Parse overwrites
// each time it is reused, per protocol rules.
type statementRegistry struct {
	byName map[string]*NamedStatement
}

func newStatementRegistry() *statementRegistry {
	return &statementRegistry{byName: make(map[string]*NamedStatement)}
}

func (r *statementRegistry) put(stmt *NamedStatement) {
	r.byName[stmt.Name] = stmt
}

func (r *statementRegistry) get(name string) (*NamedStatement, bool) {
	s, ok := r.byName[name]
	return s, ok
}

func (r *statementRegistry) close(name string) {
	delete(r.byName, name)
}
