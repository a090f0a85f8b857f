package domain

import "sort"

// DuplicateGroup is a set of records sharing one exact fingerprint.
// Groups are destroyed only by an administrative purge.
type DuplicateGroup struct {
	// Fingerprint is shared by every member.
	Fingerprint string

	// Members holds one record per path.
	Members []FileRecord

	// Retained is the path of a member already kept by an earlier decision.
	// A retained member stays canonical so that placed files are never
	// reprocessed.
	Retained string
}

// IsDuplicate reports whether the group holds more than one member.
func (g *DuplicateGroup) IsDuplicate() bool {
	return len(g.Members) > 1
}

// Canonical returns the member to keep.
// A retained member wins; otherwise the most recently modified member,
// ties broken by shortest path then lexicographic path.
func (g *DuplicateGroup) Canonical() (FileRecord, bool) {
	if len(g.Members) == 0 {
		return FileRecord{}, false
	}
	if g.Retained != "" {
		for _, m := range g.Members {
			if m.Path == g.Retained {
				return m, true
			}
		}
	}
	return g.Members[SelectCanonical(g.Members)], true
}

// Redundant returns every member other than the canonical one, in path order.
func (g *DuplicateGroup) Redundant() []FileRecord {
	canonical, ok := g.Canonical()
	if !ok {
		return nil
	}
	out := make([]FileRecord, 0, len(g.Members)-1)
	for _, m := range g.Members {
		if m.Path != canonical.Path {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// SelectCanonical returns the index of the preferred record.
func SelectCanonical(records []FileRecord) int {
	best := 0
	for i := 1; i < len(records); i++ {
		if PreferCanonical(records[i], records[best]) {
			best = i
		}
	}
	return best
}

// PreferCanonical reports whether a should be kept over b.
func PreferCanonical(a, b FileRecord) bool {
	if !a.Modified.Equal(b.Modified) {
		return a.Modified.After(b.Modified)
	}
	if len(a.Path) != len(b.Path) {
		return len(a.Path) < len(b.Path)
	}
	return a.Path < b.Path
}

// DuplicateDecision is the exact-duplicate outcome for one group.
type DuplicateDecision struct {
	Fingerprint string
	Keep        FileRecord
	Remove      []FileRecord
}

// SimilaritySignals are the components of a near-duplicate score.
type SimilaritySignals struct {
	// Text is 1 - hamming/64 over the near fingerprints.
	Text float64

	// Name is the normalised edit-distance similarity of the file names.
	Name float64

	// Metadata is the mean agreement of author, size and date.
	Metadata float64
}

// NearDuplicateCandidate is an unordered pair of records with differing
// exact fingerprints. A is always the lexicographically smaller path.
// The score is never authoritative; it is recomputed on demand and
// always subject to human disposition.
type NearDuplicateCandidate struct {
	A       FileRecord
	B       FileRecord
	Score   float64
	Signals SimilaritySignals
}

// NewNearDuplicateCandidate orders the pair so A.Path < B.Path.
func NewNearDuplicateCandidate(a, b FileRecord, score float64, signals SimilaritySignals) NearDuplicateCandidate {
	if b.Path < a.Path {
		a, b = b, a
	}
	return NearDuplicateCandidate{A: a, B: b, Score: score, Signals: signals}
}

// Key identifies the pair independent of order.
func (c NearDuplicateCandidate) Key() string {
	return c.A.Path + "\x00" + c.B.Path
}

// Keeper returns the member the tie-break rule would retain and the
// member proposed for removal.
func (c NearDuplicateCandidate) Keeper() (keep, remove FileRecord) {
	if PreferCanonical(c.B, c.A) {
		return c.B, c.A
	}
	return c.A, c.B
}
