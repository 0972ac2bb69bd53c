// Package ident validates SQL table and column names.
//
// An Identifier can only be obtained through New, Table, or Column, each of
// which enforces the allow-list pattern ^[A-Za-z_][A-Za-z0-9_]*$ and rejects
// reserved words case-insensitively. The statement builder in
// internal/querysql accepts nothing but Identifier values, so an
// unvalidated string cannot reach generated SQL.
//
// Validation is never cached; every call pays for it.
package ident
