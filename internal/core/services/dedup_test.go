package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/filer/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/filer/internal/core/domain"
)

func fileRecord(path, fp string, modified time.Time) domain.FileRecord {
	return domain.FileRecord{
		FileDescriptor: domain.FileDescriptor{Path: path, Size: 1000, Modified: modified, MediaType: "application/pdf"},
		Fingerprint:    fp,
	}
}

func nearRecord(path, fp string, sig uint64) domain.FileRecord {
	r := fileRecord(path, fp, base)
	r.NearFingerprint = sig
	r.HasNearFingerprint = true
	return r
}

func newTestResolver() *DuplicateResolver {
	return NewDuplicateResolver(memory.NewFingerprintIndex(8), domain.DefaultSettings().Dedup)
}

func TestResolveExact(t *testing.T) {
	records := []domain.FileRecord{
		fileRecord("/in/report.pdf", "H1", base),
		fileRecord("/in/report_copy.pdf", "H1", base),
		fileRecord("/in/other.pdf", "H2", base),
		fileRecord("/in/old/b.pdf", "H3", base),
		fileRecord("/in/new/b.pdf", "H3", base.Add(day)),
	}

	decisions := ResolveExact(records)

	require.Len(t, decisions, 2)
	assert.Equal(t, "H1", decisions[0].Fingerprint)
	assert.Equal(t, "/in/report.pdf", decisions[0].Keep.Path, "equal dates keep the shorter path")
	require.Len(t, decisions[0].Remove, 1)
	assert.Equal(t, "/in/report_copy.pdf", decisions[0].Remove[0].Path)

	assert.Equal(t, "H3", decisions[1].Fingerprint)
	assert.Equal(t, "/in/new/b.pdf", decisions[1].Keep.Path, "newest modification wins")
}

func TestResolveExact_OrderIndependent(t *testing.T) {
	a := fileRecord("/x/a.pdf", "H", base)
	b := fileRecord("/x/b.pdf", "H", base)
	c := fileRecord("/x/c.pdf", "H", base)

	first := ResolveExact([]domain.FileRecord{a, b, c})
	second := ResolveExact([]domain.FileRecord{c, a, b})

	assert.Equal(t, first, second)
	assert.Equal(t, "/x/a.pdf", first[0].Keep.Path)
}

func TestDuplicateResolver_ClaimRetainsFirst(t *testing.T) {
	r := newTestResolver()
	older := fileRecord("/in/a/report.pdf", "H1", base)
	newer := fileRecord("/in/report.pdf", "H1", base.Add(day))

	canonical, ok := r.Claim(older)
	assert.True(t, ok)
	assert.Equal(t, older.Path, canonical.Path)

	// The retained member stays canonical even though newer wins the tie-break.
	canonical, ok = r.Claim(newer)
	assert.False(t, ok)
	assert.Equal(t, older.Path, canonical.Path)

	// Re-claiming the retained member is idempotent.
	_, ok = r.Claim(older)
	assert.True(t, ok)
}

func TestDuplicateResolver_PinChoosesBatchWinner(t *testing.T) {
	r := newTestResolver()
	older := fileRecord("/in/a/report.pdf", "H1", base)
	newer := fileRecord("/in/report.pdf", "H1", base.Add(day))
	single := fileRecord("/in/single.pdf", "H2", base)

	r.Pin([]domain.FileRecord{older, newer, single})

	_, ok := r.Claim(older)
	assert.False(t, ok)
	canonical, ok := r.Claim(newer)
	assert.True(t, ok)
	assert.Equal(t, newer.Path, canonical.Path)
	_, ok = r.Claim(single)
	assert.True(t, ok)
}

func TestDuplicateResolver_ForgetReleasesCanonical(t *testing.T) {
	r := newTestResolver()
	first := fileRecord("/in/report.pdf", "H1", base.Add(day))
	second := fileRecord("/in/a/report.pdf", "H1", base)

	_, ok := r.Claim(first)
	require.True(t, ok)
	assert.True(t, r.IsRetained(first))

	r.Forget(first)
	assert.False(t, r.IsRetained(first))

	canonical, ok := r.Claim(second)
	assert.True(t, ok)
	assert.Equal(t, second.Path, canonical.Path)
	assert.True(t, r.IsRetained(second))
}

func TestDuplicateResolver_NearCandidatesFor(t *testing.T) {
	r := newTestResolver()
	a := nearRecord("/in/memo_v1.txt", "A", 0xF0F0F0F0F0F0F0F0)
	b := nearRecord("/in/memo_v2.txt", "B", 0xF0F0F0F0F0F0F0F1)
	far := nearRecord("/in/memo_v3.txt", "C", 0x0F0F0F0F0F0F0F0F)

	_, ok := r.Claim(a)
	require.True(t, ok)
	assert.Empty(t, r.NearCandidatesFor(a))

	_, ok = r.Claim(far)
	require.True(t, ok)
	assert.Empty(t, r.NearCandidatesFor(far), "no shared band")

	_, ok = r.Claim(b)
	require.True(t, ok)
	cands := r.NearCandidatesFor(b)
	require.Len(t, cands, 1)
	assert.Equal(t, a.Path, cands[0].A.Path)
	assert.Equal(t, b.Path, cands[0].B.Path)
	assert.GreaterOrEqual(t, cands[0].Score, 0.85)
	assert.InDelta(t, 1-1.0/64, cands[0].Signals.Text, 1e-9)

	// A pair is flagged once per resolver.
	assert.Empty(t, r.NearCandidatesFor(b))
	assert.Empty(t, r.NearCandidatesFor(a))
}

func TestDuplicateResolver_NearCandidates_RequireText(t *testing.T) {
	r := newTestResolver()
	a := fileRecord("/in/scan1.pdf", "A", base)
	b := fileRecord("/in/scan2.pdf", "B", base)
	r.Claim(a)
	r.Claim(b)

	assert.Empty(t, r.NearCandidatesFor(b))
}

func TestDuplicateResolver_NearDuplicates(t *testing.T) {
	r := newTestResolver()
	records := []domain.FileRecord{
		nearRecord("/in/memo_v2.txt", "B", 0xAAAA_0000_FFFF_1234),
		nearRecord("/in/memo_v1.txt", "A", 0xAAAA_0000_FFFF_1235),
		nearRecord("/in/exact_copy.txt", "A", 0xAAAA_0000_FFFF_1235),
		fileRecord("/in/binary.bin", "Z", base),
	}

	cands := r.NearDuplicates(records)

	// exact_copy shares its text but its name is too different to reach
	// the threshold; it never pairs with memo_v1 because they are exact
	// duplicates.
	require.Len(t, cands, 1)
	assert.Equal(t, "/in/memo_v1.txt", cands[0].A.Path)
	assert.Equal(t, "/in/memo_v2.txt", cands[0].B.Path)
}

func TestDuplicateResolver_Score(t *testing.T) {
	r := newTestResolver()

	tests := []struct {
		name         string
		mutate       func(a, b *domain.FileRecord)
		wantMetadata float64
	}{
		{
			name:         "size and date agree",
			mutate:       func(a, b *domain.FileRecord) {},
			wantMetadata: 1,
		},
		{
			name: "authors disagree",
			mutate: func(a, b *domain.FileRecord) {
				a.Metadata = map[string]string{domain.MetaAuthor: "J. Smith"}
				b.Metadata = map[string]string{domain.MetaAuthor: "R. Jones"}
			},
			wantMetadata: 2.0 / 3,
		},
		{
			name: "authors agree ignoring case",
			mutate: func(a, b *domain.FileRecord) {
				a.Metadata = map[string]string{domain.MetaAuthor: "j. smith"}
				b.Metadata = map[string]string{domain.MetaAuthor: " J. Smith"}
			},
			wantMetadata: 1,
		},
		{
			name: "size and date far apart",
			mutate: func(a, b *domain.FileRecord) {
				b.Size = 5000
				b.Modified = a.Modified.Add(30 * day)
			},
			wantMetadata: 0,
		},
		{
			name: "unknown dates are not checked",
			mutate: func(a, b *domain.FileRecord) {
				a.Modified = time.Time{}
			},
			wantMetadata: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := nearRecord("/in/engagement.txt", "A", 42)
			b := nearRecord("/other/engagement.txt", "B", 42)
			tt.mutate(&a, &b)

			c := r.Score(a, b)
			assert.InDelta(t, 1.0, c.Signals.Text, 1e-9)
			assert.InDelta(t, 1.0, c.Signals.Name, 1e-9)
			assert.InDelta(t, tt.wantMetadata, c.Signals.Metadata, 1e-9)
			assert.InDelta(t, weightText+weightName+weightMetadata*tt.wantMetadata, c.Score, 1e-9)
		})
	}
}

func TestNearDuplicateCandidate_Keeper(t *testing.T) {
	older := nearRecord("/b/memo.txt", "A", 1)
	newer := nearRecord("/a/memo.txt", "B", 1)
	newer.Modified = base.Add(day)

	c := domain.NewNearDuplicateCandidate(older, newer, 0.9, domain.SimilaritySignals{})
	assert.Equal(t, "/a/memo.txt", c.A.Path)

	keep, remove := c.Keeper()
	assert.Equal(t, "/a/memo.txt", keep.Path)
	assert.Equal(t, "/b/memo.txt", remove.Path)
}
