package driven

import (
	"context"

	"github.com/custodia-labs/filer/internal/core/domain"
)

// RuleLoader reads a rule set from its configuration file.
// Every failure is reported as domain.ErrRuleSet.
type RuleLoader interface {
	Load(ctx context.Context, path string) (*domain.RuleSet, error)
}
