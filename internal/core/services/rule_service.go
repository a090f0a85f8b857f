package services

import (
	"context"
	"fmt"

	"github.com/custodia-labs/filer/internal/core/domain"
	"github.com/custodia-labs/filer/internal/core/ports/driven"
	"github.com/custodia-labs/filer/internal/core/ports/driving"
)

// Ensure RuleService implements the interface.
var _ driving.RuleService = (*RuleService)(nil)

// RuleService loads rule files and compares the outputs of two versions.
type RuleService struct {
	loader driven.RuleLoader
}

// NewRuleService creates a rule service.
func NewRuleService(loader driven.RuleLoader) *RuleService {
	return &RuleService{loader: loader}
}

// Load reads a rule file and compiles it into an engine.
func (s *RuleService) Load(ctx context.Context, path string) (*RuleEngine, error) {
	rs, err := s.loader.Load(ctx, path)
	if err != nil {
		return nil, err
	}
	engine, err := NewRuleEngine(*rs)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return engine, nil
}

// Validate loads and compiles a rule file.
func (s *RuleService) Validate(ctx context.Context, path string) (*domain.RuleSet, error) {
	engine, err := s.Load(ctx, path)
	if err != nil {
		return nil, err
	}
	rs := engine.RuleSet()
	return &rs, nil
}

// Diff classifies every record with both rule files and returns the
// records whose destination, confidence or review flag changed.
func (s *RuleService) Diff(
	ctx context.Context,
	oldPath, newPath string,
	records []domain.FileRecord,
) ([]driving.RuleDiff, error) {
	before, err := s.Load(ctx, oldPath)
	if err != nil {
		return nil, err
	}
	after, err := s.Load(ctx, newPath)
	if err != nil {
		return nil, err
	}

	var diffs []driving.RuleDiff
	for i := range records {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec := &records[i]
		b := before.Classify(rec)
		a := after.Classify(rec)
		if b.Destination == a.Destination && b.Confidence == a.Confidence && b.NeedsReview == a.NeedsReview {
			continue
		}
		diffs = append(diffs, driving.RuleDiff{Path: rec.Path, Before: b, After: a})
	}
	return diffs, nil
}
