package guard

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reasonOf(t *testing.T, err error) Reason {
	t.Helper()
	var rej *Rejection
	require.ErrorAs(t, err, &rej)
	return rej.Reason
}

func TestValidate_scenarios(t *testing.T) {
	g := NewGatekeeper(nil)

	tests := []struct {
		name       string
		sql        string
		approved   bool
		wantReason Reason
	}{
		{name: "plain select", sql: "SELECT * FROM orders LIMIT 5", approved: true},
		{name: "appended drop", sql: "SELECT 1; DROP TABLE users", wantReason: ReasonMultiStatement},
		{name: "delete behind comment", sql: "/* safe */ DELETE FROM users", wantReason: ReasonDisallowedStatement},
		{name: "show tables", sql: "SHOW TABLES", approved: true},
		{name: "set global", sql: "SET GLOBAL max_connections = 1", wantReason: ReasonDisallowedStatement},
		{name: "empty", sql: "", wantReason: ReasonEmptyQuery},
		{name: "whitespace only", sql: "   \n\t ", wantReason: ReasonEmptyQuery},
		{name: "comment only", sql: "-- nothing\n/* still nothing */", wantReason: ReasonEmptyQuery},

		{name: "describe", sql: "DESCRIBE orders", approved: true},
		{name: "desc shorthand", sql: "desc orders", approved: true},
		{name: "explain", sql: "EXPLAIN SELECT * FROM orders", approved: true},
		{name: "cte select", sql: "WITH top AS (SELECT id FROM orders) SELECT * FROM top", approved: true},
		{name: "cte hiding delete", sql: "WITH top AS (SELECT id FROM orders) DELETE FROM orders", wantReason: ReasonDisallowedStatement},
		{name: "select wrapping insert", sql: "SELECT * FROM (INSERT INTO t VALUES (1) RETURNING *) x", wantReason: ReasonBlockedKeyword},
		{name: "trailing semicolon ok", sql: "SELECT 1;", approved: true},
		{name: "two selects", sql: "SELECT 1; SELECT 2", wantReason: ReasonMultiStatement},
		{name: "case-mixed blocked keyword", sql: "select * from t where exists (TrUnCaTe t2)", wantReason: ReasonBlockedKeyword},
		{name: "blocked keyword after comment strip", sql: "SELECT 1 /*x*/ ; DR/**/OP TABLE t", wantReason: ReasonMultiStatement},
		{name: "procedure call", sql: "CALL cleanup()", wantReason: ReasonDisallowedStatement},
		{name: "load data", sql: "SELECT 1 FROM t UNION ALL LOAD DATA INFILE 'x'", wantReason: ReasonBlockedKeyword},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := g.Validate(tt.sql)
			if tt.approved {
				require.NoError(t, err)
				assert.False(t, q.IsZero())
				assert.NotEmpty(t, q.SQL())
				return
			}
			assert.True(t, q.IsZero())
			assert.Equal(t, tt.wantReason, reasonOf(t, err))
		})
	}
}

// Every blocked keyword must be caught as a whole word anywhere in the body,
// in any case combination, including after a stripped comment.
func TestValidate_blockedKeywordEverywhere(t *testing.T) {
	g := NewGatekeeper(nil)
	for _, kw := range DefaultBlockedKeywords {
		for _, sql := range []string{
			"SELECT * FROM t WHERE x IN (" + kw + " y)",
			"SELECT * FROM t WHERE x IN (" + strings.ToLower(kw) + " y)",
			"SELECT 1 /* c */ UNION SELECT " + kw,
		} {
			_, err := g.Validate(sql)
			var rej *Rejection
			require.ErrorAs(t, err, &rej, "keyword %s in %q", kw, sql)
			require.Equal(t, ReasonBlockedKeyword, rej.Reason, "keyword %s in %q", kw, sql)
			require.Equal(t, kw, rej.Token)
		}
	}
}

// Validation is pure: the same input yields the same decision, and the
// approved payload is the canonical form of the input.
func TestValidate_deterministic(t *testing.T) {
	g := NewGatekeeper(nil)

	q1, err1 := g.Validate("  SELECT   *  FROM orders -- latest\n LIMIT 5 ")
	q2, err2 := g.Validate("  SELECT   *  FROM orders -- latest\n LIMIT 5 ")
	require.NoError(t, err1)
	require.NoError(t, err2)
	assert.Equal(t, q1, q2)
	assert.Equal(t, "SELECT * FROM orders LIMIT 5", q1.SQL())
	assert.Equal(t, ClassSelect, q1.Kind().Class)

	_, errA := g.Validate("DROP TABLE t")
	_, errB := g.Validate("DROP TABLE t")
	assert.Equal(t, errA, errB)
}

func TestValidate_concurrent(t *testing.T) {
	g := NewGatekeeper(nil)
	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			for j := 0; j < 200; j++ {
				if _, err := g.Validate("SELECT 1"); err != nil {
					t.Error(err)
					return
				}
				if _, err := g.Validate("DELETE FROM t"); err == nil {
					t.Error("expected rejection")
					return
				}
			}
		}()
	}
	for i := 0; i < 8; i++ {
		<-done
	}
}

func TestRejection_messageDoesNotLeakLists(t *testing.T) {
	g := NewGatekeeper(nil)
	_, err := g.Validate("DELETE FROM t")
	msg := err.Error()
	// The single offending token may appear, but never the whole deny-list.
	assert.NotContains(t, msg, "TRUNCATE")
	assert.NotContains(t, msg, "GRANT")
	assert.Contains(t, msg, "read-only")
}
