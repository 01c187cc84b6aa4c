// Package csvdb provides a small, typed, CSV-backed table store.
//
// # Overview
//
// The package centers around [Table], a generic accessor that stores rows of a
// Go struct type in one CSV file: a header row naming the columns, then one
// row per record. Columns are derived from the struct's `json` tags by JSON
// Schema reflection; every column is a string on disk.
//
// # Schema Migration
//
// Each table carries a [Schema] holding the current columns and a versioned
// registry of [Migration] steps. [Table.EnsureInitialized] creates missing
// files with the current header and rewrites legacy files into the current
// shape before anything else reads them. Shapes no migration knows about
// fail with a [SchemaError].
//
// # Caching
//
// [Cache] memoizes parsed tables keyed by table path, file fingerprint and a
// generation counter. Writers call [Cache.InvalidateAll] after the new file is
// in place. [Load] is the read path.
//
// # Writes
//
// Every write is a whole-table rewrite: rows are written to a temporary file
// in the same directory, synced, then renamed over the table file. A crash
// leaves either the old or the new content, never a torn file.
//
// There is no cross-process locking. Two processes rewriting the same table
// concurrently lose one of the writes.
package csvdb
