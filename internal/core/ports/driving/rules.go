package driving

import (
	"context"

	"github.com/custodia-labs/filer/internal/core/domain"
)

// RuleService validates rule sets and compares their outputs.
type RuleService interface {
	// Validate loads and compiles a rule file.
	Validate(ctx context.Context, path string) (*domain.RuleSet, error)

	// Diff classifies every record with both rule files and returns the
	// records whose results differ.
	Diff(ctx context.Context, oldPath, newPath string, records []domain.FileRecord) ([]RuleDiff, error)
}

// RuleDiff is one record classified differently by two rule sets.
type RuleDiff struct {
	Path   string
	Before domain.ClassificationResult
	After  domain.ClassificationResult
}
