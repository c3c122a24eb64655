package classify

import "strings"

// InterceptEntry is one canned statement in the local-intercept
// catalogue: a fixed input matched by exact (case-insensitive,
// whitespace-normalized) text, answered with a fixed result shape
// without ever reaching the backend.
type InterceptEntry struct {
	Name    string
	Columns []InterceptColumn
	Rows    [][]any
}

// InterceptColumn describes one column of a canned result set.
type InterceptColumn struct {
	Name string
	OID  uint32
}

const (
	oidText  = 25
	oidBool  = 16
	oidInt4  = 23
	oidOID   = 26
)

// catalogue is the closed set of driver-introspection statements this
// adapter answers locally. Every entry here is a statement common
// PostgreSQL client libraries (psql, Django, JDBC) issue during startup
// or reflection that has no meaningful backend-specific answer, so
// answering them locally avoids a round trip to a backend that may not
// even implement the introspection catalog the way real PostgreSQL does.
var catalogue = map[string]*InterceptEntry{
	"select version()": {
		Name:    "version",
		Columns: []InterceptColumn{{"version", oidText}},
		Rows:    [][]any{{"PostgreSQL 14.1"}},
	},
	"select pg_catalog.version()": {
		Name:    "version",
		Columns: []InterceptColumn{{"version", oidText}},
		Rows:    [][]any{{"PostgreSQL 14.1"}},
	},
	"show transaction isolation level": {
		Name:    "transaction_isolation",
		Columns: []InterceptColumn{{"transaction_isolation", oidText}},
		Rows:    [][]any{{"read committed"}},
	},
	"select current_schema()": {
		Name:    "current_schema",
		Columns: []InterceptColumn{{"current_schema", oidText}},
		Rows:    [][]any{{"public"}},
	},
}

// djangoGetTableNames is the introspection query Django's PostgreSQL
// backend issues from DatabaseIntrospection.get_table_list() to list
// user tables and views. It is normalized here the same way PGAdapter's
// DjangoGetTableNamesStatement recognizes it: by matching on the
// characteristic pg_catalog joins rather than full literal text, since
// Django varies whitespace slightly across versions.
const djangoGetTableNamesMarker = "select c.relname, c.relkind from pg_catalog.pg_class c"

var djangoGetTableNamesEntry = &InterceptEntry{
	Name: "django_get_table_names",
	Columns: []InterceptColumn{
		{"relname", oidText},
		{"relkind", oidText},
	},
	Rows: [][]any{},
}

// MatchIntercept looks up sql (already comment-stripped and trimmed) in
// the local-intercept catalogue.
func MatchIntercept(sql string) (*InterceptEntry, bool) {
	normalized := strings.ToLower(collapseWhitespace(strings.TrimSpace(sql)))
	normalized = strings.TrimSuffix(normalized, ";")

	if entry, ok := catalogue[normalized]; ok {
		return entry, true
	}

	if strings.Contains(normalized, djangoGetTableNamesMarker) {
		return djangoGetTableNamesEntry, true
	}

	return nil, false
}
