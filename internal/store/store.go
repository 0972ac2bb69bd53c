package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/sqlguard/internal/querysql"
)

const defaultBusyTimeout = 5 * time.Second

// Store owns the single SQLite connection and exposes the CRUD operations.
type Store struct {
	db     *sqlx.DB
	logger *slog.Logger
	*session
}

// Option configures Open.
type Option func(*config)

type config struct {
	logger      *slog.Logger
	busyTimeout time.Duration
}

// WithLogger sets the logger used for statement tracing. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithBusyTimeout sets how long SQLite waits on a locked database.
func WithBusyTimeout(d time.Duration) Option {
	return func(c *config) {
		if d >= 0 {
			c.busyTimeout = d
		}
	}
}

// Open creates or opens a SQLite database at the given path.
// Use ":memory:" for a throwaway database.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - busy timeout for lock contention
//   - Foreign key enforcement
func Open(path string, opts ...Option) (*Store, error) {
	cfg := config{
		logger:      slog.Default(),
		busyTimeout: defaultBusyTimeout,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	// The driver creates the file on first use.
	db, err := sqlx.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time. A single connection also
	// keeps ":memory:" databases alive across statements.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := applyPragmas(db, cfg.busyTimeout); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	cfg.logger.Debug("database opened", "path", path)

	return &Store{
		db:      db,
		logger:  cfg.logger,
		session: &session{q: db, logger: cfg.logger},
	}, nil
}

// Close closes the database connection. Later operations return
// ErrNotInitialized. Closing twice is a no-op.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	s.session = nil
	return err
}

// DB returns the underlying handle, or nil when closed. Statements sent
// through it bypass identifier validation.
func (s *Store) DB() *sqlx.DB {
	return s.db
}

// Migrate applies DDL statements in a single transaction.
func (s *Store) Migrate(ctx context.Context, stmts ...querysql.Statement) error {
	return s.Transaction(ctx, func(tx *Tx) error {
		for _, stmt := range stmts {
			if _, err := tx.q.ExecContext(ctx, stmt.SQL, stmt.Args...); err != nil {
				return &StoreError{Op: "migrate", Err: err}
			}
			s.logger.Debug("schema statement applied", "sql", stmt.SQL)
		}
		return nil
	})
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sqlx.DB, busyTimeout time.Duration) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		fmt.Sprintf("PRAGMA busy_timeout = %d", busyTimeout.Milliseconds()),
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
