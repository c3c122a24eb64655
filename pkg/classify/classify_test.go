package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyBasicCategories(t *testing.T) {
	cases := []struct {
		sql  string
		want Category
	}{
		{"SELECT 1", CategorySelect},
		{"  select * from foo", CategorySelect},
		{"INSERT INTO foo VALUES (1)", CategoryDML},
		{"UPDATE foo SET x = 1", CategoryDML},
		{"DELETE FROM foo", CategoryDML},
		{"CREATE TABLE foo (id int)", CategoryDDL},
		{"BEGIN", CategoryTransactionControl},
		{"COMMIT", CategoryTransactionControl},
		{"SET application_name = 'x'", CategorySessionControl},
		{"SHOW server_version", CategorySessionControl},
		{"PREPARE p1 AS SELECT 1", CategoryPreparedStatementControl},
		{"COPY foo FROM STDIN", CategoryCopy},
		{"WOMBO COMBO", CategoryUnknown},
	}

	for _, c := range cases {
		stmt := Classify(c.sql)
		assert.Equal(t, c.want, stmt.Category, "sql=%q", c.sql)
	}
}

func TestClassifyStripsCommentsAndSemicolon(t *testing.T) {
	stmt := Classify("SELECT 1 /* comment */ -- trailing\n;")
	assert.Equal(t, CategorySelect, stmt.Category)
	assert.NotContains(t, stmt.SQL, "comment")
	assert.NotContains(t, stmt.SQL, "trailing")
}

func TestClassifyNestedBlockComments(t *testing.T) {
	stripped := StripComments("SELECT /* outer /* inner */ still-outer */ 1")
	assert.Equal(t, "SELECT  1", stripped)
}

func TestClassifyPreservesStringLiterals(t *testing.T) {
	stripped := StripComments("SELECT '-- not a comment' AS x")
	assert.Equal(t, "SELECT '-- not a comment' AS x", stripped)
}

func TestScanPlaceholders(t *testing.T) {
	got := ScanPlaceholders("SELECT * FROM foo WHERE a = $1 AND b = $2 OR a = $1")
	assert.Equal(t, []int{1, 2}, got)
}

func TestScanPlaceholdersIgnoresLiterals(t *testing.T) {
	got := ScanPlaceholders("SELECT '$1 is not a param' WHERE b = $1")
	assert.Equal(t, []int{1}, got)
}

func TestLocalIntercept(t *testing.T) {
	stmt := Classify("select version()")
	assert.Equal(t, CategoryLocalIntercept, stmt.Category)
	assert.NotNil(t, stmt.Intercept)
	assert.Equal(t, "version", stmt.Intercept.Name)
}

func TestDjangoGetTableNamesIntercept(t *testing.T) {
	sql := `SELECT c.relname, c.relkind FROM pg_catalog.pg_class c
			LEFT JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
			WHERE c.relkind IN ('r', 'v')`
	stmt := Classify(sql)
	assert.Equal(t, CategoryLocalIntercept, stmt.Category)
	assert.Equal(t, "django_get_table_names", stmt.Intercept.Name)
}
