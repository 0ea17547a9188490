package database

import (
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/marcboeker/go-duckdb"
	_ "github.com/mattn/go-sqlite3"

	"shelterstat/logger"
)

//go:embed schema_duckdb.sql
var duckdbSchema string

//go:embed schema_sqlite.sql
var sqliteSchema string

// DB holds the two stores: DuckDB for inspection records and marts, SQLite
// for report jobs, the result cache and request logs.
type DB struct {
	Analytics *sql.DB
	App       *sql.DB
}

// Initialize opens both databases and applies their schemas. An empty
// duckPath opens an in-memory DuckDB; appPath ":memory:" does the same for
// SQLite.
func Initialize(duckPath, appPath string) (*DB, error) {
	for _, p := range []string{duckPath, appPath} {
		if p == "" || p == ":memory:" {
			continue
		}
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory for %s: %w", p, err)
		}
	}

	analytics, err := sql.Open("duckdb", duckPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open duckdb %q: %w", duckPath, err)
	}
	if _, err := analytics.Exec("PRAGMA threads=4"); err != nil {
		logger.Warnf("Failed to set duckdb threads: %v", err)
	}
	if err := analytics.Ping(); err != nil {
		analytics.Close()
		return nil, fmt.Errorf("failed to ping duckdb: %w", err)
	}

	appDB, err := sql.Open("sqlite3", appPath)
	if err != nil {
		analytics.Close()
		return nil, fmt.Errorf("failed to open sqlite %q: %w", appPath, err)
	}
	// One writer; also keeps a ":memory:" database on a single connection.
	appDB.SetMaxOpenConns(1)
	if _, err := appDB.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		logger.Warnf("Failed to set WAL mode: %v", err)
	}
	if err := appDB.Ping(); err != nil {
		analytics.Close()
		appDB.Close()
		return nil, fmt.Errorf("failed to ping sqlite: %w", err)
	}

	db := &DB{Analytics: analytics, App: appDB}
	if err := db.applySchema(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func (db *DB) applySchema() error {
	if err := execStatements(db.Analytics, duckdbSchema); err != nil {
		return fmt.Errorf("duckdb schema error: %w", err)
	}
	if err := execStatements(db.App, sqliteSchema); err != nil {
		return fmt.Errorf("sqlite schema error: %w", err)
	}
	return nil
}

// execStatements runs a semicolon separated script one statement at a time.
// Comment lines are dropped first so a semicolon inside one does not split a
// statement.
func execStatements(conn *sql.DB, script string) error {
	for _, stmt := range splitStatements(script) {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := conn.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute statement: %w\nStatement: %s", err, stmt)
		}
	}
	return nil
}

func splitStatements(script string) []string {
	var kept []string
	for _, line := range strings.Split(script, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Split(strings.Join(kept, "\n"), ";")
}

// Close closes both stores.
func (db *DB) Close() {
	if db.Analytics != nil {
		db.Analytics.Close()
	}
	if db.App != nil {
		db.App.Close()
	}
}
