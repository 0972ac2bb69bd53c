// Package store provides identifier-safe CRUD over an embedded SQLite database.
//
// Every operation validates the table name and every column name it is given
// (see internal/ident) before any SQL is assembled, then executes a
// parameterized statement built by internal/querysql. Data values are always
// bound, never interpolated.
//
// # Lifecycle
//
// A Store is created by Open and owned by the caller; there is no package
// level connection. Operations on a Store that was never opened, or has been
// closed, fail with ErrNotInitialized. Close must not race in-flight
// operations.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout: Wait for locks (default 5 seconds)
//   - foreign_keys=ON: Enforce referential integrity
//   - One open connection: statements serialize in the engine
//
// Schema is not owned here. Tables are created by an external setup step,
// typically Migrate with statements from internal/schema.
//
// # Trust Boundary
//
// ExecuteQuery runs caller-supplied SQL with no identifier validation. It is
// the one unchecked entry point and is meant for read-only queries that the
// builder cannot express.
package store
