package queryguard

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIsReadOnly(t *testing.T) {
	tests := []struct {
		name string
		sql  string
		want bool
	}{
		{"plain select", "SELECT * FROM tracking_data_core", true},
		{"cte", "WITH t AS (SELECT 1) SELECT * FROM t", true},
		{"line comment only", "-- DROP TABLE x\nSELECT 1", true},
		{"block comment only", "/* DELETE FROM x */ SELECT 1", true},
		{"multi-line block comment", "/*\n UPDATE x SET a = 1\n*/\nSELECT 1", true},
		{"chained delete", "SELECT 1; DELETE FROM x", false},
		{"drop", "DROP TABLE x", false},
		{"lowercase update", "update x set a = 1", false},
		{"insert", "INSERT INTO x VALUES (1)", false},
		{"alter", "ALTER TABLE x ADD COLUMN y int", false},
		{"truncate", "TRUNCATE x", false},
		{"grant", "GRANT SELECT ON x TO bob", false},
		{"revoke", "REVOKE ALL ON x FROM bob", false},
		{"copy to", "COPY TO '/tmp/out'", false},
		{"copy from spaced", "COPY   FROM stdin", false},
		{"copy with relation is not caught", "COPY x TO '/tmp/out'", true},
		{"create extension", "CREATE EXTENSION dblink", false},
		{"execute on", "GRANT EXECUTE ON FUNCTION f TO bob", false},
		{"keyword inside identifier", "SELECT updated_at, deleted FROM x", true},
		{"keyword after comment on same line", "SELECT 1 -- ok\n; DROP TABLE x", false},
		{"dashes inside literal", "WITH a AS (SELECT '--'), d AS (DELETE FROM readings RETURNING 1) SELECT * FROM d", false},
		{"block opener inside literal", "SELECT '/*' AS a; DELETE FROM x -- */", false},
		{"doubled quote inside literal", "SELECT 'it''s -- fine' FROM x; DROP TABLE x", false},
		{"dashes inside quoted identifier", `SELECT 1 AS "--"; DELETE FROM x`, false},
		{"dashes inside dollar quote", "SELECT $$ -- $$; DELETE FROM x", false},
		{"dashes inside tagged dollar quote", "SELECT $q$ -- $$ $q$; DELETE FROM x", false},
		{"escape string backslash quote", `SELECT E'\' -- ' ; DELETE FROM x`, false},
		{"backslash in plain literal", `SELECT '\', ' -- ' ; DELETE FROM x`, false},
		{"nested block comment", "/* outer /* inner */ DELETE FROM x */ SELECT 1", true},
		{"block comment between tokens", "SELECT 1;/**/DROP TABLE x", false},
		{"positional parameter is not a dollar quote", "SELECT $1 -- DROP\n FROM x", true},
		{"comment text after literal", "SELECT 'a' -- DELETE FROM x", true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsReadOnly(tc.sql))
		})
	}
}

func TestStripComments(t *testing.T) {
	tests := []struct {
		name string
		sql  string
		want string
	}{
		{"line comment", "SELECT 1 -- note\nFROM x", "SELECT 1 \nFROM x"},
		{"block comment", "SELECT/* note */1", "SELECT 1"},
		{"literal untouched", "SELECT '-- /* */' FROM x", "SELECT '-- /* */' FROM x"},
		{"dollar body untouched", "SELECT $fn$ -- $fn$ -- gone", "SELECT $fn$ -- $fn$"},
		{"unterminated literal", "SELECT 'open -- x", "SELECT 'open -- x"},
		{"unterminated block comment", "SELECT 1 /* open", "SELECT 1"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, StripComments(tc.sql))
		})
	}
}

func TestIsReadOnlyIsStateless(t *testing.T) {
	// A global regexp with sticky state would flip results on repeated calls.
	for i := 0; i < 3; i++ {
		assert.False(t, IsReadOnly("DELETE FROM x"))
		assert.True(t, IsReadOnly("SELECT 1"))
	}
}

func TestApplyRowLimit(t *testing.T) {
	tests := []struct {
		name  string
		sql   string
		limit int
		want  string
	}{
		{"appends cap plus one", "SELECT * FROM x", 3, "SELECT * FROM x LIMIT 4"},
		{"drops trailing semicolon", "SELECT * FROM x;  ", 10, "SELECT * FROM x LIMIT 11"},
		{"keeps existing limit", "SELECT * FROM x LIMIT 50", 3, "SELECT * FROM x LIMIT 50"},
		{"keeps lowercase limit", "select * from x limit 5;", 3, "select * from x limit 5"},
		{"limit word without number", "SELECT limit FROM x", 3, "SELECT limit FROM x LIMIT 4"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ApplyRowLimit(tc.sql, tc.limit))
		})
	}
}

func TestPolicy(t *testing.T) {
	p := Policy{Timeout: 1500 * time.Millisecond, RowLimit: 2}
	assert.Equal(t, 1500*time.Millisecond, p.StatementTimeout())
	assert.Equal(t, int64(1500), p.StatementTimeoutMillis())
	assert.Equal(t, "SELECT 1 LIMIT 3", p.Apply("SELECT 1;"))
}
