package driven

import "github.com/custodia-labs/filer/internal/core/domain"

// FingerprintIndex maps exact fingerprints to duplicate groups and keeps
// near-duplicate buckets for retained records. It is shared across
// workers, so implementations must be safe for concurrent use.
type FingerprintIndex interface {
	// Observe adds a record to its group, replacing any earlier record for
	// the same path, and returns a copy of the group.
	Observe(record domain.FileRecord) domain.DuplicateGroup

	// Retain pins a member as the group's canonical record and makes it
	// visible to near-duplicate lookups.
	Retain(record domain.FileRecord)

	// Group returns a copy of the group for a fingerprint.
	Group(fingerprint string) (domain.DuplicateGroup, bool)

	// Groups returns every group with more than one member.
	Groups() []domain.DuplicateGroup

	// NearNeighbours returns retained records in the same media family
	// that share at least one signature band with record and have a
	// different exact fingerprint.
	NearNeighbours(record domain.FileRecord) []domain.FileRecord

	// Forget removes one path from its group and from the near-duplicate
	// buckets, clearing the group's retained member if it was that path.
	Forget(path string)

	// Purge removes a group. It is an administrative operation; the
	// pipeline never calls it.
	Purge(fingerprint string) bool
}
