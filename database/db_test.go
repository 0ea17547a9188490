package database

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitStatementsSkipsComments(t *testing.T) {
	script := `-- header; with a semicolon
CREATE TABLE a (id INTEGER);
  -- indented; comment
CREATE TABLE b (id INTEGER);
`
	var stmts []string
	for _, s := range splitStatements(script) {
		if s = strings.TrimSpace(s); s != "" {
			stmts = append(stmts, s)
		}
	}
	assert.Equal(t, []string{"CREATE TABLE a (id INTEGER)", "CREATE TABLE b (id INTEGER)"}, stmts)
}

func TestEmbeddedSchemasApply(t *testing.T) {
	db, err := Initialize("", ":memory:")
	require.NoError(t, err)
	t.Cleanup(db.Close)

	for _, table := range []string{"inspection_records", "battery_mart", "cabinet_mart"} {
		var n int
		require.NoError(t, db.Analytics.QueryRow(`SELECT COUNT(*) FROM `+table).Scan(&n), table)
		assert.Zero(t, n, table)
	}
	for _, table := range []string{"report_jobs", "report_cache", "report_logs"} {
		var n int
		require.NoError(t, db.App.QueryRow(`SELECT COUNT(*) FROM `+table).Scan(&n), table)
		assert.Zero(t, n, table)
	}

	// Re-applying is a no-op.
	assert.NoError(t, db.applySchema())
}
