// Package schema turns CUE table declarations into CREATE TABLE statements.
//
// A schema file declares tables and their columns:
//
//	table: users: column: {
//		id:   {type: "INTEGER", primary_key: true, autoincrement: true}
//		name: {type: "TEXT", not_null: true}
//		age:  {type: "INTEGER"}
//	}
//
// Declarations are unified with a closed CUE definition, so unknown keys and
// unsupported types are rejected with source positions. Table and column
// names then go through the same identifier validation as every query.
// Columns keep their declaration order; tables are sorted by name.
package schema
