// Package scenario runs YAML-described sequences of store operations and
// checks their outcomes.
//
// A scenario file names the DDL to apply and the steps to execute:
//
//	name: insert_then_find
//	description: inserted rows are readable by id
//	setup:
//	  - CREATE TABLE users (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT NOT NULL)
//	steps:
//	  - op: insert
//	    table: users
//	    record: {name: Alice}
//	    expect: {id: 1}
//	  - op: find_by_id
//	    table: users
//	    id: 1
//	    expect:
//	      record: {name: Alice}
//
// A transaction step runs its nested steps inside Store.Transaction. The
// first nested error is returned from the callback and rolls the
// transaction back; fail: true forces a rollback after the nested steps
// succeed. Expected errors are named by the codes of store.ErrorCode.
//
// Files are decoded strictly: unknown keys are rejected.
package scenario
