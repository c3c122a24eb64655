package session

import (
	"regexp"
	"strings"

	"github.com/sqlgateway/pgadapter/pkg/params"
)

var setRE = regexp.MustCompile(`(?is)^SET\s+(?:SESSION\s+|LOCAL\s+)?([A-Za-z_.0-9]+)\s*(?:TO|=)\s*(.+)$`)
var showRE = regexp.MustCompile(`(?is)^SHOW\s+([A-Za-z_.0-9]+)$`)
var resetRE = regexp.MustCompile(`(?is)^RESET\s+([A-Za-z_.0-9]+)$`)

// sessionParams tracks GUC-style session state: the wire protocol's
// fixed ParameterStatus set plus this adapter's spanner.* extensions.
type sessionParams struct {
	values params.ParameterStatuses
}

func newSessionParams() *sessionParams {
	base := make(params.ParameterStatuses, len(params.BaseParameterStatuses))
	for k, v := range params.BaseParameterStatuses {
		base[k] = v
	}
	return &sessionParams{values: base}
}

// applySet parses and applies a SET statement's target and value,
// returning true if it recognized the statement.
func (s *sessionParams) applySet(sql string) (name, value string, ok bool) {
	m := setRE.FindStringSubmatch(sql)
	if m == nil {
		return "", "", false
	}
	name = m[1]
	value = strings.Trim(strings.TrimSpace(m[2]), "'\"")
	s.values[name] = value
	return name, value, true
}

// applyReset restores name to its startup default.
func (s *sessionParams) applyReset(sql string) (name string, ok bool) {
	m := resetRE.FindStringSubmatch(sql)
	if m == nil {
		return "", false
	}
	name = m[1]
	if def, has := params.BaseParameterStatuses[name]; has {
		s.values[name] = def
	} else {
		delete(s.values, name)
	}
	return name, true
}

// show returns the current value for a SHOW statement's target.
func (s *sessionParams) show(sql string) (name, value string, ok bool) {
	m := showRE.FindStringSubmatch(sql)
	if m == nil {
		return "", "", false
	}
	name = m[1]
	value = s.values[name]
	return name, value, true
}

func (s *sessionParams) get(name string) (string, bool) {
	v, ok := s.values[name]
	return v, ok
}
