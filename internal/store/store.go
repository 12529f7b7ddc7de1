// Package store owns the SQLite file: schema management, the single-writer
// queue for realtime snapshots, and the enrichment queries.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// additiveColumns are the actual_arrivals_hsp columns added after the table
// first shipped. Applied if missing, preserving existing rows.
var additiveColumns = []struct {
	name string
	def  string
}{
	{"is_main_journey", "is_main_journey INTEGER NOT NULL DEFAULT 0"},
	{"predicted_delay", "predicted_delay REAL"},
	{"planned_arr", "planned_arr TEXT"},
	{"actual_arr", "actual_arr TEXT"},
	{"actual_arr_delay", "actual_arr_delay REAL"},
	{"toc_code", "toc_code TEXT"},
	{"hsp_location_crs", "hsp_location_crs TEXT"},
	{"hsp_tpls", "hsp_tpls TEXT"},
}

// Store wraps the SQLite handle. SQLite allows one writer; the connection
// pool is pinned to a single connection and all realtime writes go through
// the Writer goroutine.
type Store struct {
	conn *sql.DB
	path string
}

// Open opens (creating the parent directory if needed) a SQLite database
// with WAL mode, synchronous=NORMAL and a busy timeout, pinned to one
// connection.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)"
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(time.Hour)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{conn: conn, path: path}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

// Path returns the on-disk location of the database file.
func (s *Store) Path() string {
	return s.path
}

// Conn exposes the underlying handle for queries.
func (s *Store) Conn() *sql.DB {
	return s.conn
}

// EnsureSchema creates the tables if missing and applies the additive
// column migrations. Idempotent.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.conn.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	for _, col := range additiveColumns {
		exists, err := s.columnExists(ctx, "actual_arrivals_hsp", col.name)
		if err != nil {
			return err
		}
		if exists {
			continue
		}
		alter := fmt.Sprintf("ALTER TABLE actual_arrivals_hsp ADD COLUMN %s", col.def)
		if _, err := s.conn.ExecContext(ctx, alter); err != nil {
			return fmt.Errorf("failed to add column %s: %w", col.name, err)
		}
	}
	return nil
}

func (s *Store) columnExists(ctx context.Context, table, column string) (bool, error) {
	rows, err := s.conn.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false, fmt.Errorf("failed to read table info for %s: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid        int
			name, typ  string
			notNull    int
			dflt       sql.NullString
			primaryKey int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &primaryKey); err != nil {
			return false, fmt.Errorf("failed to scan table info: %w", err)
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}
