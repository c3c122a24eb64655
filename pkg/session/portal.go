package session

import "github.com/sqlgateway/pgadapter/pkg/backend"

// portalState tracks where a portal's cursor is: freshly bound and
// never executed, suspended partway through its result set by a
// maxRows-limited Execute, or fully drained.
type portalState int

const (
	portalNotExecuted portalState = iota
	portalSuspended
	portalDrained
)

// Portal is a bound instance of a NamedStatement: concrete parameter
// values and result-format codes, plus whatever cursor state Execute
// calls with a row limit have left it in.
type Portal struct {
	Name      string
	Statement *NamedStatement
	Params    []backend.Value
	ResultFmt []int16

	State  portalState
	Result *backend.Result

	// tx and txImplicit pin the transaction a suspended portal is
	// executing within, so a later Execute against the same portal
	// resumes in the same transaction rather than opening a new implicit
	// one per message.
	tx         backend.Tx
	txImplicit bool
}

type portalRegistry struct {
	byName map[string]*Portal
}

func newPortalRegistry() *portalRegistry {
	return &portalRegistry{byName: make(map[string]*Portal)}
}

func (r *portalRegistry) put(p *Portal) {
	r.byName[p.Name] = p
}

func (r *portalRegistry) get(name string) (*Portal, bool) {
	p, ok := r.byName[name]
	return p, ok
}

func (r *portalRegistry) close(name string) {
	delete(r.byName, name)
}
