// Package history gives the external history store named in spec.md §1,
// §3 and §9 a concrete body: a RunStore interface backed by SQLite via
// mattn/go-sqlite3, storing one row per Run Result and one row per test
// identifier. It is adapted directly from the teacher's
// internal/storage/sqlite.go, carrying forward the same
// CREATE-TABLE-IF-NOT-EXISTS migration style and transactional Save, but
// storing pass/fail/timed-out/isolated-hanging identifiers instead of
// benchmark statistics.
package history
