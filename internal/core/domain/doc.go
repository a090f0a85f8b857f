// Package domain defines the core business entities for filer.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - FileRecord: A fingerprinted observation of one file
//   - DuplicateGroup: Records sharing one exact fingerprint
//   - ClassificationRule / ClassificationResult: Routing configuration and output
//   - MigrationRecord: One attempted transfer and its outcome
//   - AuditEvent: One durable entry in the audit log
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
