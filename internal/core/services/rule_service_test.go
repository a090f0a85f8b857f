package services

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/filer/internal/core/domain"
)

// mapLoader serves rule sets from memory.
type mapLoader map[string]*domain.RuleSet

func (m mapLoader) Load(_ context.Context, path string) (*domain.RuleSet, error) {
	rs, ok := m[path]
	if !ok {
		return nil, fmt.Errorf("%w: %s: no such file", domain.ErrRuleSet, path)
	}
	out := *rs
	return &out, nil
}

func ruleLoader() mapLoader {
	return mapLoader{
		"v1.yaml": {
			Version:     "v1",
			Identifiers: clientIdentifiers,
			Rules:       []domain.ClassificationRule{formADV},
		},
		"v2.yaml": {
			Version:     "v2",
			Identifiers: clientIdentifiers,
			Rules: []domain.ClassificationRule{
				formADV,
				{
					Name:       "invoices",
					Signal:     domain.SignalFilename,
					Glob:       "*invoice*",
					Target:     "Finance/Invoices",
					Confidence: 0.85,
				},
			},
		},
		"broken.yaml": {
			Version: "broken",
			Rules: []domain.ClassificationRule{
				{Name: "bad", Signal: domain.SignalFilename, Glob: "*", Target: "x", Confidence: 1.5},
			},
		},
	}
}

func TestRuleService_Validate(t *testing.T) {
	svc := NewRuleService(ruleLoader())

	rs, err := svc.Validate(context.Background(), "v2.yaml")
	require.NoError(t, err)
	assert.Equal(t, "v2", rs.Version)
	assert.Len(t, rs.Rules, 2)
	assert.InDelta(t, domain.DefaultReviewFloor, rs.ReviewFloor, 1e-9)
}

func TestRuleService_ValidateErrors(t *testing.T) {
	svc := NewRuleService(ruleLoader())

	tests := []struct {
		name string
		path string
		want string
	}{
		{"missing file", "nope.yaml", "nope.yaml"},
		{"invalid rule", "broken.yaml", "broken.yaml"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Validate(context.Background(), tt.path)
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrRuleSet)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestRuleService_Diff(t *testing.T) {
	svc := NewRuleService(ruleLoader())
	records := []domain.FileRecord{
		*recordAt("/in/ACME-1042 Form_ADV 2023.pdf"),
		*recordAt("/in/invoice 118.pdf"),
		*recordAt("/in/photo.jpg"),
	}

	diffs, err := svc.Diff(context.Background(), "v1.yaml", "v2.yaml", records)
	require.NoError(t, err)
	require.Len(t, diffs, 1)

	d := diffs[0]
	assert.Equal(t, "/in/invoice 118.pdf", d.Path)
	assert.Equal(t, "09_Inbox/01_Unsorted/invoice 118.pdf", d.Before.Destination)
	assert.True(t, d.Before.NeedsReview)
	assert.Equal(t, "Finance/Invoices/invoice 118.pdf", d.After.Destination)
	assert.InDelta(t, 0.85, d.After.Confidence, 1e-9)
	assert.False(t, d.After.NeedsReview)
	assert.Equal(t, "v2", d.After.RuleSetVersion)
}

func TestRuleService_DiffIdentical(t *testing.T) {
	svc := NewRuleService(ruleLoader())
	diffs, err := svc.Diff(context.Background(), "v1.yaml", "v1.yaml",
		[]domain.FileRecord{*recordAt("/in/ACME-1042 Form_ADV 2023.pdf")})
	require.NoError(t, err)
	assert.Empty(t, diffs)
}

func TestRuleService_DiffErrors(t *testing.T) {
	svc := NewRuleService(ruleLoader())

	_, err := svc.Diff(context.Background(), "v1.yaml", "broken.yaml", nil)
	assert.ErrorIs(t, err, domain.ErrRuleSet)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = svc.Diff(ctx, "v1.yaml", "v2.yaml", []domain.FileRecord{*recordAt("/in/a.pdf")})
	assert.ErrorIs(t, err, context.Canceled)
}
