package ports

import (
	"context"

	"github.com/serendip/gatekeeper/internal/core/domain"
)

// RestrictionRepository persists restriction rules. At most one rule exists
// per (controller, endpoint) scope.
type RestrictionRepository interface {
	FindAll(ctx context.Context) ([]domain.RestrictionRule, error)
	// Upsert replaces the rule with the same scope, or inserts it.
	Upsert(ctx context.Context, rule domain.RestrictionRule) error
	// Delete removes the rule for key; domain.ErrRuleNotFound when absent.
	Delete(ctx context.Context, key domain.RuleKey) error
}
