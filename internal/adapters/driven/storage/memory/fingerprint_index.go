package memory

import (
	"sort"
	"strconv"
	"sync"

	"github.com/custodia-labs/filer/internal/core/domain"
	"github.com/custodia-labs/filer/internal/core/ports/driven"
	"github.com/custodia-labs/filer/internal/similarity"
)

// Ensure FingerprintIndex implements the interface.
var _ driven.FingerprintIndex = (*FingerprintIndex)(nil)

// FingerprintIndex is an in-memory implementation of driven.FingerprintIndex.
// Exact groups are keyed by fingerprint; retained text-bearing records are
// also bucketed by signature band within their media family.
type FingerprintIndex struct {
	mu       sync.RWMutex
	bands    int
	groups   map[string]*domain.DuplicateGroup
	paths    map[string]string
	retained map[string]domain.FileRecord
	buckets  map[string]map[string]struct{}
}

// NewFingerprintIndex creates an index that splits signatures into bands.
func NewFingerprintIndex(bands int) *FingerprintIndex {
	if bands <= 0 {
		bands = 8
	}
	return &FingerprintIndex{
		bands:    bands,
		groups:   make(map[string]*domain.DuplicateGroup),
		paths:    make(map[string]string),
		retained: make(map[string]domain.FileRecord),
		buckets:  make(map[string]map[string]struct{}),
	}
}

// Observe adds a record to its group and returns a copy of the group.
// A path re-observed with different content leaves its old group.
func (x *FingerprintIndex) Observe(record domain.FileRecord) domain.DuplicateGroup {
	x.mu.Lock()
	defer x.mu.Unlock()
	return copyGroup(x.observe(record))
}

func (x *FingerprintIndex) observe(record domain.FileRecord) *domain.DuplicateGroup {
	if old, ok := x.paths[record.Path]; ok && old != record.Fingerprint {
		x.detach(record.Path, old)
	}

	g, ok := x.groups[record.Fingerprint]
	if !ok {
		g = &domain.DuplicateGroup{Fingerprint: record.Fingerprint}
		x.groups[record.Fingerprint] = g
	}

	replaced := false
	for i := range g.Members {
		if g.Members[i].Path == record.Path {
			g.Members[i] = record
			replaced = true
			break
		}
	}
	if !replaced {
		g.Members = append(g.Members, record)
	}
	x.paths[record.Path] = record.Fingerprint
	return g
}

// detach removes a path from the group of its previous content.
func (x *FingerprintIndex) detach(path, fingerprint string) {
	g, ok := x.groups[fingerprint]
	if !ok {
		return
	}
	for i := range g.Members {
		if g.Members[i].Path == path {
			g.Members = append(g.Members[:i], g.Members[i+1:]...)
			break
		}
	}
	if g.Retained == path {
		g.Retained = ""
	}
	x.unbucket(path)
}

// Retain pins the record as its group's canonical member, unless another
// member was retained first, and makes it visible to near lookups.
func (x *FingerprintIndex) Retain(record domain.FileRecord) {
	x.mu.Lock()
	defer x.mu.Unlock()

	g, ok := x.groups[record.Fingerprint]
	if !ok || x.paths[record.Path] != record.Fingerprint {
		g = x.observe(record)
	}
	if g.Retained == "" {
		g.Retained = record.Path
	}

	if !record.HasNearFingerprint {
		return
	}
	if _, ok := x.retained[record.Path]; ok {
		return
	}
	x.retained[record.Path] = record
	for _, key := range x.bucketKeys(record) {
		b, ok := x.buckets[key]
		if !ok {
			b = make(map[string]struct{})
			x.buckets[key] = b
		}
		b[record.Path] = struct{}{}
	}
}

// Group returns a copy of the group for a fingerprint.
func (x *FingerprintIndex) Group(fingerprint string) (domain.DuplicateGroup, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	g, ok := x.groups[fingerprint]
	if !ok {
		return domain.DuplicateGroup{}, false
	}
	return copyGroup(g), true
}

// Groups returns every group with more than one member, ordered by fingerprint.
func (x *FingerprintIndex) Groups() []domain.DuplicateGroup {
	x.mu.RLock()
	defer x.mu.RUnlock()

	var out []domain.DuplicateGroup
	for _, g := range x.groups {
		if g.IsDuplicate() {
			out = append(out, copyGroup(g))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Fingerprint < out[j].Fingerprint })
	return out
}

// NearNeighbours returns retained records sharing a band with record.
func (x *FingerprintIndex) NearNeighbours(record domain.FileRecord) []domain.FileRecord {
	if !record.HasNearFingerprint {
		return nil
	}

	x.mu.RLock()
	defer x.mu.RUnlock()

	seen := make(map[string]bool)
	var out []domain.FileRecord
	for _, key := range x.bucketKeys(record) {
		for path := range x.buckets[key] {
			if seen[path] || path == record.Path {
				continue
			}
			seen[path] = true
			n := x.retained[path]
			if n.Fingerprint == record.Fingerprint {
				continue
			}
			out = append(out, n)
		}
	}
	return out
}

// Forget removes a path from its group. An emptied group is dropped.
func (x *FingerprintIndex) Forget(path string) {
	x.mu.Lock()
	defer x.mu.Unlock()

	fp, ok := x.paths[path]
	if !ok {
		return
	}
	x.detach(path, fp)
	delete(x.paths, path)
	if g, ok := x.groups[fp]; ok && len(g.Members) == 0 {
		delete(x.groups, fp)
	}
}

// Purge removes a group and every trace of its members.
func (x *FingerprintIndex) Purge(fingerprint string) bool {
	x.mu.Lock()
	defer x.mu.Unlock()

	g, ok := x.groups[fingerprint]
	if !ok {
		return false
	}
	for _, m := range g.Members {
		if x.paths[m.Path] == fingerprint {
			delete(x.paths, m.Path)
		}
		x.unbucket(m.Path)
	}
	delete(x.groups, fingerprint)
	return true
}

func (x *FingerprintIndex) unbucket(path string) {
	rec, ok := x.retained[path]
	if !ok {
		return
	}
	for _, key := range x.bucketKeys(rec) {
		if b, ok := x.buckets[key]; ok {
			delete(b, path)
			if len(b) == 0 {
				delete(x.buckets, key)
			}
		}
	}
	delete(x.retained, path)
}

func (x *FingerprintIndex) bucketKeys(record domain.FileRecord) []string {
	family := domain.MediaFamily(record.MediaType)
	bands := similarity.BandKeys(record.NearFingerprint, x.bands)
	keys := make([]string, len(bands))
	for i, b := range bands {
		keys[i] = family + ":" + strconv.FormatUint(b, 16)
	}
	return keys
}

func copyGroup(g *domain.DuplicateGroup) domain.DuplicateGroup {
	out := domain.DuplicateGroup{
		Fingerprint: g.Fingerprint,
		Retained:    g.Retained,
		Members:     make([]domain.FileRecord, len(g.Members)),
	}
	copy(out.Members, g.Members)
	return out
}
