// Package sqlite provides a SQLite-based implementation of the durable driven ports.
//
// This adapter uses modernc.org/sqlite, a pure Go SQLite implementation that requires
// no CGO. A single database connection backs:
//
//   - AuditLog: the append-only event log used for recovery and reporting
//   - ReviewQueue: items awaiting a human disposition
//   - SchedulerStore: scheduled task state and run history
//
// # Schema
//
// The schema is managed through versioned migrations embedded from the
// migrations/ directory. Each migration is a pair of .up.sql and .down.sql files.
//
// # Data Location
//
// By default, the database is stored at ~/.filer/data/audit.db
//
// # Durability
//
// The database runs in WAL mode with synchronous=FULL. Every audit append is
// its own transaction, so an event is on disk when Append returns.
package sqlite
