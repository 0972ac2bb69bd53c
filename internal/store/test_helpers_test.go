package store

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
)

const usersDDL = `CREATE TABLE users (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	age INTEGER
)`

const accountsDDL = `CREATE TABLE accounts (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	email TEXT NOT NULL UNIQUE,
	plan TEXT,
	balance REAL,
	avatar BLOB
)`

// createTestStore opens a fresh database in a temp dir with the test tables.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	for _, ddl := range []string{usersDDL, accountsDDL} {
		if _, err := s.DB().Exec(ddl); err != nil {
			t.Fatalf("create table failed: %v", err)
		}
	}
	return s
}

// rowCount counts rows with raw SQL so assertions do not depend on Count.
func rowCount(t *testing.T, s *Store, table string) int {
	t.Helper()
	var n int
	if err := s.DB().QueryRowContext(context.Background(), "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}
