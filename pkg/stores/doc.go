// Package stores provides the persistence layer for validation history.
// It includes SQLite-based storage with WAL mode, embedded migrations,
// and queries over persisted runs, diagnostics, and per-parameter
// violation patterns, plus an insight provider that feeds those patterns
// back into validation as advisory annotations.
package stores
