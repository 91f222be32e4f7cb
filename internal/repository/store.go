// Package repository persists approvals, learning records, audit events and
// conversation history in a SQL database.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

// dialect holds the few places the supported databases disagree.
type dialect struct {
	driver          string
	timeType        string
	dollarParams    bool
	indexIfNotExist bool
}

var dialects = map[string]dialect{
	"sqlite3": {driver: "sqlite3", timeType: "DATETIME", indexIfNotExist: true},
	"pgx":     {driver: "pgx", timeType: "TIMESTAMPTZ", dollarParams: true, indexIfNotExist: true},
	"mysql":   {driver: "mysql", timeType: "DATETIME(6)"},
}

// Store implements persistence over database/sql.
type Store struct {
	db      *sql.DB
	dialect dialect
}

// NewStore opens a store for driver ("sqlite3", "pgx" or "mysql") and runs migrations.
func NewStore(driver, dsn string) (*Store, error) {
	d, ok := dialects[driver]
	if !ok {
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
	if driver == "mysql" && !strings.Contains(dsn, "parseTime=") {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + "parseTime=true&loc=UTC"
	}

	db, err := sql.Open(d.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// For in-memory SQLite, multiple connections create separate databases.
	// Keep a single connection to avoid schema/data disappearing across goroutines.
	if driver == "sqlite3" && (dsn == ":memory:" || strings.Contains(dsn, "mode=memory")) {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	s := &Store{db: db, dialect: d}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

// NewSQLiteStore is shorthand for NewStore("sqlite3", dsn).
func NewSQLiteStore(dsn string) (*Store, error) {
	return NewStore("sqlite3", dsn)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate runs database migrations.
func (s *Store) migrate() error {
	ts := s.dialect.timeType
	tables := []string{
		`CREATE TABLE IF NOT EXISTS approvals (
			id VARCHAR(64) PRIMARY KEY,
			user_id VARCHAR(128) NOT NULL,
			session_id VARCHAR(128),
			agent_type VARCHAR(32) NOT NULL,
			tool_name VARCHAR(128) NOT NULL,
			tool_input TEXT,
			category VARCHAR(32) NOT NULL,
			proposed_action TEXT NOT NULL,
			reasoning TEXT,
			impact TEXT,
			is_reversible BOOLEAN NOT NULL,
			status VARCHAR(16) NOT NULL,
			expires_at ` + ts + ` NOT NULL,
			created_at ` + ts + ` NOT NULL,
			decided_at ` + ts + ` NULL,
			decided_by VARCHAR(128),
			feedback TEXT,
			consumed_at ` + ts + ` NULL
		)`,
		`CREATE TABLE IF NOT EXISTS actions (
			id VARCHAR(64) PRIMARY KEY,
			user_id VARCHAR(128) NOT NULL,
			agent_type VARCHAR(32) NOT NULL,
			action VARCHAR(128) NOT NULL,
			summary TEXT NOT NULL,
			input TEXT,
			output TEXT,
			status VARCHAR(32) NOT NULL,
			confidence DOUBLE PRECISION NOT NULL,
			created_at ` + ts + ` NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS events (
			id VARCHAR(64) PRIMARY KEY,
			user_id VARCHAR(128) NOT NULL,
			session_id VARCHAR(128),
			agent_type VARCHAR(32),
			type VARCHAR(64) NOT NULL,
			ts ` + ts + ` NOT NULL,
			payload TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id VARCHAR(64) PRIMARY KEY,
			session_id VARCHAR(128) NOT NULL,
			user_id VARCHAR(128) NOT NULL,
			agent_type VARCHAR(32),
			role VARCHAR(16) NOT NULL,
			content TEXT NOT NULL,
			created_at ` + ts + ` NOT NULL
		)`,
	}
	for _, ddl := range tables {
		if _, err := s.db.Exec(ddl); err != nil {
			return err
		}
	}

	indexes := []struct{ name, table, cols string }{
		{"idx_approvals_user_status", "approvals", "user_id, status"},
		{"idx_approvals_status_expiry", "approvals", "status, expires_at"},
		{"idx_actions_user", "actions", "user_id, created_at"},
		{"idx_events_user", "events", "user_id, ts"},
		{"idx_messages_session", "messages", "session_id, created_at"},
	}
	for _, idx := range indexes {
		if err := s.ensureIndex(idx.name, idx.table, idx.cols); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) ensureIndex(name, table, cols string) error {
	if s.dialect.indexIfNotExist {
		_, err := s.db.Exec(fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s(%s)", name, table, cols))
		return err
	}
	_, err := s.db.Exec(fmt.Sprintf("CREATE INDEX %s ON %s(%s)", name, table, cols))
	if err != nil && strings.Contains(err.Error(), "Duplicate key name") {
		return nil
	}
	return err
}

// rebind rewrites ? placeholders for drivers that use $n.
func (s *Store) rebind(query string) string {
	if !s.dialect.dollarParams {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *Store) exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return s.db.ExecContext(ctx, s.rebind(query), args...)
}

func (s *Store) query(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, s.rebind(query), args...)
}

func (s *Store) queryRow(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return s.db.QueryRowContext(ctx, s.rebind(query), args...)
}

func affected(res sql.Result, err error) (bool, error) {
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullStringBytes(b []byte) sql.NullString {
	if len(b) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(b), Valid: true}
}
