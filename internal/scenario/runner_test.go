package scenario

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sqlguard/internal/store"
)

func openStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "scenario.db"),
		store.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func runSource(t *testing.T, src string) *Result {
	t.Helper()
	sc, err := Parse([]byte(src))
	require.NoError(t, err)
	result, err := Run(context.Background(), openStore(t), sc)
	require.NoError(t, err)
	return result
}

// TestRun_Testdata runs every scenario under testdata; each must pass.
func TestRun_Testdata(t *testing.T) {
	files, err := filepath.Glob(filepath.Join("testdata", "*.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for _, file := range files {
		t.Run(filepath.Base(file), func(t *testing.T) {
			sc, err := Load(file)
			require.NoError(t, err)

			result, err := Run(context.Background(), openStore(t), sc)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
			assert.Empty(t, result.Errors)
		})
	}
}

func TestRun_RecordsNestedSteps(t *testing.T) {
	result := runSource(t, `
name: nested
setup:
  - CREATE TABLE users (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT NOT NULL)
steps:
  - op: transaction
    steps:
      - op: insert
        table: users
        record: {name: Alice}
  - op: count
    table: users
    expect: {count: 1}
`)
	require.True(t, result.Pass, "errors: %v", result.Errors)

	paths := make([]string, len(result.Steps))
	for i, s := range result.Steps {
		paths[i] = s.Path
	}
	// Nested steps complete before their transaction.
	assert.Equal(t, []string{"steps[0].steps[0]", "steps[0]", "steps[1]"}, paths)
}

func TestRun_ReportsFailedExpectations(t *testing.T) {
	result := runSource(t, `
name: failing
setup:
  - CREATE TABLE users (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT NOT NULL, age INTEGER)
steps:
  - op: insert
    table: users
    record: {name: Alice, age: 30}
    expect: {id: 2}
  - op: find_by_id
    table: users
    id: 1
    expect:
      record: {age: 31}
  - op: insert
    table: select
    record: {name: Bob}
  - op: count
    table: users
    expect: {error: store_error}
  - op: count
    table: users
    expect: {exists: true}
`)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 5)
	assert.Contains(t, result.Errors[0], "expected id 2, got 1")
	assert.Contains(t, result.Errors[1], "steps[1].age: expected 31, got 30")
	assert.Contains(t, result.Errors[2], "unexpected error")
	assert.Contains(t, result.Errors[3], "got success")
	assert.Contains(t, result.Errors[4], "exists does not apply")

	// Failed expectations do not stop the run.
	assert.Len(t, result.Steps, 5)
	assert.Equal(t, store.CodeInvalidIdentifier, result.Steps[2].Error)
}

func TestRun_ForcedRollbackExpectedExplicitly(t *testing.T) {
	result := runSource(t, `
name: rollback
setup:
  - CREATE TABLE users (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT NOT NULL)
steps:
  - op: transaction
    fail: true
    expect: {error: rollback}
    steps:
      - op: insert
        table: users
        record: {name: Alice}
  - op: count
    table: users
    expect: {count: 0}
`)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_SetupFailure(t *testing.T) {
	sc, err := Parse([]byte(`
name: bad_setup
setup:
  - CREATE TABLE
steps:
  - op: count
    table: users
`))
	require.NoError(t, err)

	_, err = Run(context.Background(), openStore(t), sc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to execute setup")
}

func TestRun_UnconvertibleValue(t *testing.T) {
	sc := &Scenario{
		Name: "bad_value",
		Steps: []Step{{
			Op:     OpInsert,
			Table:  "users",
			Record: map[string]any{"name": struct{}{}},
		}},
	}

	_, err := Run(context.Background(), openStore(t), sc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "steps[0]")
}

func TestEqualValues(t *testing.T) {
	result := runSource(t, `
name: kinds
setup:
  - CREATE TABLE m (id INTEGER PRIMARY KEY, r REAL, t TEXT)
steps:
  - op: insert
    table: m
    record: {r: 2.0, t: "2"}
  - op: find_by_id
    table: m
    id: 1
    expect:
      record: {r: 2}
  - op: find_by_id
    table: m
    id: 1
    expect:
      record: {t: 2}
`)
	// Integer 2 matches Real 2.0; Integer 2 does not match Text "2".
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "steps[2].t")
}
