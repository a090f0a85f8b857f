package services

import (
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/custodia-labs/filer/internal/core/domain"
	"github.com/custodia-labs/filer/internal/core/ports/driven"
	"github.com/custodia-labs/filer/internal/similarity"
)

// Near-duplicate score weights.
const (
	weightText     = 0.50
	weightName     = 0.30
	weightMetadata = 0.20
)

// DuplicateResolver groups records by exact fingerprint and scores
// near-duplicate pairs. It never removes near-duplicates itself.
type DuplicateResolver struct {
	index driven.FingerprintIndex
	cfg   domain.DedupSettings

	mu      sync.Mutex
	flagged map[string]bool
}

// NewDuplicateResolver creates a resolver backed by a shared index.
func NewDuplicateResolver(index driven.FingerprintIndex, cfg domain.DedupSettings) *DuplicateResolver {
	return &DuplicateResolver{
		index:   index,
		cfg:     cfg,
		flagged: make(map[string]bool),
	}
}

// Observe registers a record and returns its group.
func (r *DuplicateResolver) Observe(record domain.FileRecord) domain.DuplicateGroup {
	return r.index.Observe(record)
}

// Retain marks a record as kept so later arrivals of the same content are
// treated as duplicates of it.
func (r *DuplicateResolver) Retain(record domain.FileRecord) {
	r.index.Retain(record)
}

// Claim observes a record and retains it if it is its group's canonical
// member. Once a group has a retained member, later arrivals of the same
// content never displace it. Returns the canonical record.
func (r *DuplicateResolver) Claim(record domain.FileRecord) (domain.FileRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	group := r.index.Observe(record)
	canonical, _ := group.Canonical()
	if canonical.Path != record.Path {
		return canonical, false
	}
	r.index.Retain(record)
	return record, true
}

// Pin retains the tie-break winner of every group that has no retained
// member yet. Batch runs call it after observing the whole batch.
func (r *DuplicateResolver) Pin(records []domain.FileRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[string]bool)
	for _, rec := range records {
		r.index.Observe(rec)
	}
	for _, rec := range records {
		if seen[rec.Fingerprint] {
			continue
		}
		seen[rec.Fingerprint] = true
		group, ok := r.index.Group(rec.Fingerprint)
		if !ok || group.Retained != "" {
			continue
		}
		if canonical, ok := group.Canonical(); ok {
			r.index.Retain(canonical)
		}
	}
}

// IsRetained reports whether record is its group's canonical member.
func (r *DuplicateResolver) IsRetained(record domain.FileRecord) bool {
	group, ok := r.index.Group(record.Fingerprint)
	return ok && group.Retained == record.Path
}

// Forget drops a record whose placement failed, so the next member or
// arrival of the same content can become canonical instead.
func (r *DuplicateResolver) Forget(record domain.FileRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.index.Forget(record.Path)
}

// ResolveExact groups records by fingerprint and decides, for every group
// of two or more, which member to keep and which to quarantine.
// Decisions are ordered by fingerprint.
func ResolveExact(records []domain.FileRecord) []domain.DuplicateDecision {
	groups := make(map[string][]domain.FileRecord)
	for _, rec := range records {
		groups[rec.Fingerprint] = append(groups[rec.Fingerprint], rec)
	}

	var decisions []domain.DuplicateDecision
	for fp, members := range groups {
		if len(members) < 2 {
			continue
		}
		g := domain.DuplicateGroup{Fingerprint: fp, Members: members}
		keep, _ := g.Canonical()
		decisions = append(decisions, domain.DuplicateDecision{
			Fingerprint: fp,
			Keep:        keep,
			Remove:      g.Redundant(),
		})
	}
	sort.Slice(decisions, func(i, j int) bool {
		return decisions[i].Fingerprint < decisions[j].Fingerprint
	})
	return decisions
}

// NearDuplicates scores every bucketed pair among records and returns the
// pairs at or above the threshold, ordered by key. Records without a near
// fingerprint and pairs sharing an exact fingerprint are never compared.
func (r *DuplicateResolver) NearDuplicates(records []domain.FileRecord) []domain.NearDuplicateCandidate {
	buckets := make(map[string][]int)
	for i, rec := range records {
		if !rec.HasNearFingerprint {
			continue
		}
		family := domain.MediaFamily(rec.MediaType)
		for _, key := range similarity.BandKeys(rec.NearFingerprint, r.cfg.Bands) {
			bk := family + ":" + strconv.FormatUint(key, 16)
			buckets[bk] = append(buckets[bk], i)
		}
	}

	seen := make(map[[2]int]bool)
	var out []domain.NearDuplicateCandidate
	for _, members := range buckets {
		for x := 0; x < len(members); x++ {
			for y := x + 1; y < len(members); y++ {
				i, j := members[x], members[y]
				if i > j {
					i, j = j, i
				}
				if seen[[2]int{i, j}] {
					continue
				}
				seen[[2]int{i, j}] = true
				if c, ok := r.score(records[i], records[j]); ok {
					out = append(out, c)
				}
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

// NearCandidatesFor compares a newly retained record with the retained
// records sharing a bucket and returns each qualifying pair once across
// the resolver's lifetime.
func (r *DuplicateResolver) NearCandidatesFor(record domain.FileRecord) []domain.NearDuplicateCandidate {
	if !record.HasNearFingerprint {
		return nil
	}

	neighbours := r.index.NearNeighbours(record)
	sort.Slice(neighbours, func(i, j int) bool { return neighbours[i].Path < neighbours[j].Path })

	var out []domain.NearDuplicateCandidate
	for _, n := range neighbours {
		c, ok := r.score(record, n)
		if !ok {
			continue
		}
		r.mu.Lock()
		dup := r.flagged[c.Key()]
		r.flagged[c.Key()] = true
		r.mu.Unlock()
		if !dup {
			out = append(out, c)
		}
	}
	return out
}

// Score computes the weighted similarity of two records regardless of
// the threshold.
func (r *DuplicateResolver) Score(a, b domain.FileRecord) domain.NearDuplicateCandidate {
	signals := domain.SimilaritySignals{
		Name:     similarity.NameSimilarity(a.Path, b.Path),
		Metadata: r.metadataAgreement(a, b),
	}
	if a.HasNearFingerprint && b.HasNearFingerprint {
		signals.Text = similarity.TextSimilarity(a.NearFingerprint, b.NearFingerprint)
	}
	score := weightText*signals.Text + weightName*signals.Name + weightMetadata*signals.Metadata
	return domain.NewNearDuplicateCandidate(a, b, score, signals)
}

func (r *DuplicateResolver) score(a, b domain.FileRecord) (domain.NearDuplicateCandidate, bool) {
	if a.Path == b.Path || a.Fingerprint == b.Fingerprint {
		return domain.NearDuplicateCandidate{}, false
	}
	if !a.HasNearFingerprint || !b.HasNearFingerprint {
		return domain.NearDuplicateCandidate{}, false
	}
	c := r.Score(a, b)
	return c, c.Score >= r.cfg.NearThreshold
}

// metadataAgreement averages the coarse metadata checks both records can
// answer: same declared author, size within tolerance, date within tolerance.
func (r *DuplicateResolver) metadataAgreement(a, b domain.FileRecord) float64 {
	var checks, agree float64

	authorA, okA := a.Metadata[domain.MetaAuthor]
	authorB, okB := b.Metadata[domain.MetaAuthor]
	if okA && okB && authorA != "" && authorB != "" {
		checks++
		if strings.EqualFold(strings.TrimSpace(authorA), strings.TrimSpace(authorB)) {
			agree++
		}
	}

	checks++
	if similarity.SizeSimilarity(a.Size, b.Size) >= 1-r.cfg.SizeTolerance {
		agree++
	}

	if !a.Modified.IsZero() && !b.Modified.IsZero() {
		checks++
		delta := a.Modified.Sub(b.Modified)
		if delta < 0 {
			delta = -delta
		}
		if delta <= r.cfg.DateTolerance {
			agree++
		}
	}

	return agree / checks
}
