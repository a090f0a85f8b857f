// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
// These must be provided for the pipeline to run:
//
//   - AuditLog: Append-only record of every decision and transfer
//   - FingerprintIndex: Exact-hash groups and near-duplicate buckets
//   - ReviewQueue: Human review items and their dispositions
//   - FileSystem: Primitive file operations for the executor
//   - ExtractorRegistry: Selects a text extractor by media type
//   - ConfigStore: Application configuration
//
// # Optional Interfaces
//
// These can be nil - the application degrades gracefully:
//
//   - Producer: Sources of arrivals. Without one, only explicit inventories run.
//   - SchedulerStore: Scheduler persistence. Without it, no periodic tasks run.
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter, producer, or extractor package
package driven
