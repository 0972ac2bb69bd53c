package store

import (
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"

	"github.com/roach88/sqlguard/internal/ident"
	"github.com/roach88/sqlguard/internal/querysql"
)

// ErrNotInitialized is returned by every operation on a Store that was not
// produced by Open or has been closed.
var ErrNotInitialized = errors.New("store not initialized")

// StoreError wraps an error from the SQLite engine for a statement that was
// built safely but rejected at execution (constraint violation, IO failure,
// type mismatch). The engine error is reachable through errors.As.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store: %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// Code returns the SQLite primary result code, or 0 if the wrapped error did
// not come from the engine.
func (e *StoreError) Code() sqlite3.ErrNo {
	var sqliteErr sqlite3.Error
	if errors.As(e.Err, &sqliteErr) {
		return sqliteErr.Code
	}
	return 0
}

// IsStoreError reports whether err is or wraps a *StoreError.
func IsStoreError(err error) bool {
	var se *StoreError
	return errors.As(err, &se)
}

// IsConstraint reports whether err is a SQLite constraint violation
// (UNIQUE, NOT NULL, FOREIGN KEY, CHECK).
func IsConstraint(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrConstraint
	}
	return false
}

// Error codes reported by ErrorCode.
const (
	CodeInvalidIdentifier = "invalid_identifier"
	CodeEmptyAssignment   = "empty_assignment"
	CodeEmptyConditions   = "empty_conditions"
	CodeNotInitialized    = "not_initialized"
	CodeConstraint        = "constraint"
	CodeStoreError        = "store_error"
	CodeUnknown           = "error"
)

// ErrorCode classifies err into a stable machine-readable code. Constraint
// violations are a subset of store errors; callers matching "store_error"
// should use MatchesCode.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ident.ErrInvalidIdentifier):
		return CodeInvalidIdentifier
	case errors.Is(err, querysql.ErrEmptyAssignment):
		return CodeEmptyAssignment
	case errors.Is(err, querysql.ErrEmptyConditions):
		return CodeEmptyConditions
	case errors.Is(err, ErrNotInitialized):
		return CodeNotInitialized
	case IsConstraint(err):
		return CodeConstraint
	case IsStoreError(err):
		return CodeStoreError
	default:
		return CodeUnknown
	}
}

// MatchesCode reports whether err is classified as code.
func MatchesCode(err error, code string) bool {
	got := ErrorCode(err)
	if got == code {
		return true
	}
	return code == CodeStoreError && got == CodeConstraint && IsStoreError(err)
}
