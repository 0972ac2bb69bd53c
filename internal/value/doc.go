// Package value provides the tagged value union stored in and read back from
// the embedded store.
//
// Value is sealed: only Null, Text, Integer, Real, and Blob implement it,
// mirroring SQLite's storage classes. A Record maps column names to Values
// and is what insert/update accept and what finders return.
package value
