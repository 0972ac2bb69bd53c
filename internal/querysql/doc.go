// Package querysql builds parameterized SQLite statements from validated
// identifiers.
//
// Only ident.Identifier values are written into statement text, always
// double-quoted. Every data value travels in Statement.Args and is bound
// positionally; values are never interpolated.
package querysql
