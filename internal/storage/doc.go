// Package storage provides the local key-value persistence used by the
// client core: schedule configuration, backup-log cache, mock record history
// and draft caches.
//
// Drivers:
//   - "memory": process-local map (default; nothing survives a restart)
//   - "file": single JSON snapshot file rewritten atomically on every write
//   - "sqlite": SQLite database file (modernc.org/sqlite, no cgo)
//
// Keys are flat strings; WithNamespace prefixes them so several logical
// stores can share one backend.
//
// There is no cross-process locking. Two processes opening the same file or
// database can race on read-modify-write sequences and clobber each other.
package storage
