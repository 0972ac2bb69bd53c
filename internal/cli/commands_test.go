package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sqlguard/internal/ident"
	"github.com/roach88/sqlguard/internal/store"
)

const testSchema = `package tables

table: users: column: {
	id:   {type: "INTEGER", primary_key: true, autoincrement: true}
	name: {type: "TEXT", not_null: true}
	age:  {type: "INTEGER"}
}
`

// execute runs the root command and returns stdout, stderr and the error.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	errBuf := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(buf)
	cmd.SetErr(errBuf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), errBuf.String(), err
}

// setupDB migrates the users schema into a fresh database.
func setupDB(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	schemaDir := filepath.Join(dir, "schema")
	require.NoError(t, os.Mkdir(schemaDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(schemaDir, "users.cue"), []byte(testSchema), 0o644))

	dbPath := filepath.Join(dir, "test.db")
	out, _, err := execute(t, "--db", dbPath, "migrate", schemaDir)
	require.NoError(t, err, out)
	assert.Contains(t, out, "1 table(s) ready")
	return dbPath
}

func countUsers(t *testing.T, dbPath string) int64 {
	t.Helper()
	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()
	n, err := st.Count(context.Background(), "users")
	require.NoError(t, err)
	return n
}

func TestMigrate_DryRun(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "users.cue"), []byte(testSchema), 0o644))
	dbPath := filepath.Join(dir, "never.db")

	out, _, err := execute(t, "--db", dbPath, "migrate", "--dry-run", dir)
	require.NoError(t, err)
	assert.Contains(t, out, `CREATE TABLE IF NOT EXISTS "users"`)
	assert.NoFileExists(t, dbPath)
}

func TestMigrate_InvalidSchema(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.cue"), []byte(`package tables

table: "select": column: id: {type: "INTEGER"}
`), 0o644))

	out, _, err := execute(t, "--db", filepath.Join(dir, "x.db"), "--format", "json", "migrate", dir)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, ErrCodeSchema, resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "reserved word")
}

func TestCRUDRoundTrip(t *testing.T) {
	db := setupDB(t)

	out, _, err := execute(t, "--db", db, "insert", "users", `{"name":"Alice","age":30}`)
	require.NoError(t, err)
	assert.Equal(t, "inserted id 1\n", out)

	out, _, err = execute(t, "--db", db, "--format", "json", "get", "users", "1")
	require.NoError(t, err)
	var got struct {
		Status string         `json:"status"`
		Data   map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "ok", got.Status)
	assert.Equal(t, map[string]any{"id": float64(1), "name": "Alice", "age": float64(30)}, got.Data)

	out, _, err = execute(t, "--db", db, "update", "users", `{"age":31}`, "--id", "1")
	require.NoError(t, err)
	assert.Equal(t, "updated 1 row(s)\n", out)

	out, _, err = execute(t, "--db", db, "find", "users", "--where", "age=31")
	require.NoError(t, err)
	assert.Contains(t, out, "Alice")
	assert.Contains(t, out, "(1 row)")

	out, _, err = execute(t, "--db", db, "count", "users", "--where", "name=Alice")
	require.NoError(t, err)
	assert.Equal(t, "1\n", out)

	out, _, err = execute(t, "--db", db, "delete", "users", "--where", "name=Alice")
	require.NoError(t, err)
	assert.Equal(t, "deleted 1 row(s)\n", out)

	out, _, err = execute(t, "--db", db, "get", "users", "1")
	require.NoError(t, err)
	assert.Equal(t, "(no row)\n", out)
}

func TestMissingRowsAreNotErrors(t *testing.T) {
	db := setupDB(t)

	out, _, err := execute(t, "--db", db, "update", "users", `{"age":1}`, "--id", "99")
	require.NoError(t, err)
	assert.Equal(t, "updated 0 row(s)\n", out)

	out, _, err = execute(t, "--db", db, "delete", "users", "--id", "99")
	require.NoError(t, err)
	assert.Equal(t, "deleted 0 row(s)\n", out)
}

func TestInsert_RejectedIdentifiers(t *testing.T) {
	db := setupDB(t)

	for _, table := range []string{"1bad", "select", "users; DROP TABLE users"} {
		t.Run(table, func(t *testing.T) {
			out, _, err := execute(t, "--db", db, "--format", "json", "insert", table, `{"name":"x"}`)
			require.Error(t, err)
			assert.Equal(t, ExitFailure, GetExitCode(err))

			var resp CLIResponse
			require.NoError(t, json.Unmarshal([]byte(out), &resp))
			assert.Equal(t, "error", resp.Status)
			assert.Equal(t, store.CodeInvalidIdentifier, resp.Error.Code)
		})
	}

	_, _, err := execute(t, "--db", db, "insert", "users", `{"name; --":"x"}`)
	require.Error(t, err)
	assert.Equal(t, int64(0), countUsers(t, db))
}

func TestInsert_InjectionPayloadIsInert(t *testing.T) {
	db := setupDB(t)
	payload := "'; DROP TABLE users; --"

	_, _, err := execute(t, "--db", db, "insert", "users", `{"name":"'; DROP TABLE users; --"}`)
	require.NoError(t, err)

	out, _, err := execute(t, "--db", db, "exists", "users")
	require.NoError(t, err)
	assert.Equal(t, "true\n", out)

	out, _, err = execute(t, "--db", db, "--format", "json", "find", "users", "--where", "name="+payload, "--one")
	require.NoError(t, err)
	var resp struct {
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, payload, resp.Data["name"])
}

func TestInsert_ConstraintAndUsageErrors(t *testing.T) {
	db := setupDB(t)

	out, _, err := execute(t, "--db", db, "insert", "users", `{"age":1}`)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Error [constraint]")

	out, _, err = execute(t, "--db", db, "insert", "users", `not json`)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error [usage]")
}

func TestFind_Paging(t *testing.T) {
	db := setupDB(t)
	for _, name := range []string{"a", "b", "c", "d", "e", "f", "g"} {
		_, _, err := execute(t, "--db", db, "insert", "users", `{"name":"`+name+`"}`)
		require.NoError(t, err)
	}

	// Offset without limit is ignored.
	out, errOut, err := execute(t, "--db", db, "--verbose", "find", "users", "--offset", "5")
	require.NoError(t, err)
	assert.Contains(t, out, "(7 rows)")
	assert.Contains(t, errOut, "ignored")

	out, _, err = execute(t, "--db", db, "--format", "json", "find", "users", "--limit", "2", "--offset", "5", "--order-by", "id")
	require.NoError(t, err)
	var resp struct {
		Data []map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data, 2)
	assert.Equal(t, "f", resp.Data[0]["name"])
	assert.Equal(t, "g", resp.Data[1]["name"])

	_, _, err = execute(t, "--db", db, "find", "users", "--order-by", "drop")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	_, _, err = execute(t, "--db", db, "find", "users", "--limit", "1", "--where", "name=a")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, _, err = execute(t, "--db", db, "find", "users", "--one")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestUpdate_RequiresTarget(t *testing.T) {
	db := setupDB(t)

	_, _, err := execute(t, "--db", db, "update", "users", `{"age":1}`)
	require.Error(t, err)

	_, _, err = execute(t, "--db", db, "delete", "users", "--id", "1", "--where", "name=a")
	require.Error(t, err)

	out, _, err := execute(t, "--db", db, "update", "users", `{}`, "--id", "1")
	require.Error(t, err)
	assert.Contains(t, out, "Error [empty_assignment]")
}

func TestClearAndExists(t *testing.T) {
	db := setupDB(t)
	for i := 0; i < 3; i++ {
		_, _, err := execute(t, "--db", db, "insert", "users", `{"name":"x"}`)
		require.NoError(t, err)
	}

	out, _, err := execute(t, "--db", db, "clear", "users")
	require.NoError(t, err)
	assert.Equal(t, "cleared 3 row(s)\n", out)

	out, _, err = execute(t, "--db", db, "--format", "json", "exists", "missing")
	require.NoError(t, err)
	var resp struct {
		Data map[string]bool `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.False(t, resp.Data["exists"])

	out, _, err = execute(t, "--db", db, "exists", "DROP")
	require.Error(t, err)
	assert.Contains(t, out, "Error [invalid_identifier]")
}

func TestQuery(t *testing.T) {
	db := setupDB(t)
	_, _, err := execute(t, "--db", db, "insert", "users", `{"name":"Alice","age":30}`)
	require.NoError(t, err)
	_, _, err = execute(t, "--db", db, "insert", "users", `{"name":"Bob","age":12}`)
	require.NoError(t, err)

	out, _, err := execute(t, "--db", db, "query", "SELECT name FROM users WHERE age > ?", "20")
	require.NoError(t, err)
	assert.Contains(t, out, "Alice")
	assert.NotContains(t, out, "Bob")

	out, _, err = execute(t, "--db", db, "query", "SELECT * FROM nope")
	require.Error(t, err)
	assert.Contains(t, out, "Error [store_error]")
}

func TestCheck(t *testing.T) {
	out, _, err := execute(t, "check", "users", "_private", "Users2")
	require.NoError(t, err)
	assert.Contains(t, out, `✓ table "users"`)

	out, _, err = execute(t, "check", "drop", "DROP", "1bad", "")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, `✗ table "drop": reserved word`)
	assert.Contains(t, out, `✗ table "DROP": reserved word`)

	out, _, err = execute(t, "--format", "json", "check", "--kind", "column", "full name")
	require.Error(t, err)
	var resp struct {
		Data []CheckResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data, 1)
	assert.False(t, resp.Data[0].Valid)
	assert.Equal(t, "column", resp.Data[0].Kind)

	_, _, err = execute(t, "check", "--kind", "index", "x")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestCheckReserved(t *testing.T) {
	out, _, err := execute(t, "check", "--reserved")
	require.NoError(t, err)
	assert.Equal(t, strings.Join(ident.ReservedWords(), "\n")+"\n", out)

	out, _, err = execute(t, "--format", "json", "check", "--reserved")
	require.NoError(t, err)
	var resp struct {
		Data []string `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Contains(t, resp.Data, "select")
	assert.Len(t, resp.Data, 14)

	_, _, err = execute(t, "check")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestScenarioCommand(t *testing.T) {
	out, _, err := execute(t, "scenario", filepath.Join("..", "scenario", "testdata"))
	require.NoError(t, err, out)
	assert.Contains(t, out, "✓ All scenarios passed")

	out, _, err = execute(t, "--format", "json", "scenario", filepath.Join("..", "scenario", "testdata"), "--filter", "tx*")
	require.NoError(t, err)
	var resp struct {
		Data ScenarioSummary `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, 0, resp.Data.Total)
}

func TestScenarioCommand_Failure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fail.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
name: failing
setup:
  - CREATE TABLE users (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT)
steps:
  - op: count
    table: users
    expect: {count: 5}
`), 0o644))

	out, _, err := execute(t, "scenario", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ failing")
	assert.Contains(t, out, "expected count 5, got 0")

	_, _, err = execute(t, "scenario", filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestShellLine(t *testing.T) {
	db := setupDB(t)
	_, _, err := execute(t, "--db", db, "insert", "users", `{"name":"Alice"}`)
	require.NoError(t, err)

	st, err := store.Open(db)
	require.NoError(t, err)
	defer st.Close()
	ctx := context.Background()

	buf := &bytes.Buffer{}
	assert.False(t, shellLine(ctx, st, `\dt`, buf))
	assert.Contains(t, buf.String(), "users")

	buf.Reset()
	assert.False(t, shellLine(ctx, st, `\d users`, buf))
	assert.Contains(t, buf.String(), "name")
	assert.Contains(t, buf.String(), "INTEGER")

	buf.Reset()
	assert.False(t, shellLine(ctx, st, `\d drop`, buf))
	assert.Contains(t, buf.String(), "reserved word")

	// Writes are rolled back.
	buf.Reset()
	assert.False(t, shellLine(ctx, st, "DELETE FROM users;", buf))
	n, err := st.Count(ctx, "users")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	buf.Reset()
	assert.False(t, shellLine(ctx, st, "SELECT * FROM nope", buf))
	assert.Contains(t, buf.String(), "Error:")

	assert.False(t, shellLine(ctx, st, "   ", buf))
	assert.True(t, shellLine(ctx, st, `\q`, buf))
	assert.True(t, shellLine(ctx, st, "exit", buf))
}
