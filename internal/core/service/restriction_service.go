package service

import (
	"context"
	"sort"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/serendip/gatekeeper/internal/core/domain"
	"github.com/serendip/gatekeeper/internal/core/ports"
)

type ruleSet map[domain.RuleKey]domain.RestrictionRule

// RestrictionService evaluates requests against an in-memory snapshot of
// the stored restriction rules. Refresh swaps the snapshot atomically so an
// evaluation sees either the old set or the new one, never a mix.
type RestrictionService struct {
	repo  ports.RestrictionRepository
	rules atomic.Pointer[ruleSet]
	log   zerolog.Logger
}

var _ ports.RestrictionService = (*RestrictionService)(nil)

func NewRestrictionService(repo ports.RestrictionRepository, log zerolog.Logger) *RestrictionService {
	s := &RestrictionService{repo: repo, log: log}
	s.rules.Store(&ruleSet{})
	return s
}

// Refresh reloads every rule from the store. When two stored rules share a
// scope the first one read wins.
func (s *RestrictionService) Refresh(ctx context.Context) error {
	stored, err := s.repo.FindAll(ctx)
	if err != nil {
		return upstream(err)
	}

	next := make(ruleSet, len(stored))
	for _, r := range stored {
		if _, dup := next[r.Key()]; dup {
			s.log.Warn().
				Str("controller", r.ControllerName).
				Str("endpoint", r.Endpoint).
				Msg("duplicate restriction rule ignored")
			continue
		}
		next[r.Key()] = r
	}
	s.rules.Store(&next)

	s.log.Info().Int("rules", len(next)).Msg("restriction rules loaded")
	return nil
}

// Evaluate checks user against the global, controller and endpoint rules.
// Every present rule must permit the user; absent rules permit.
func (s *RestrictionService) Evaluate(user *domain.User, controllerName, endpoint string) error {
	rules := *s.rules.Load()
	keys := [...]domain.RuleKey{
		{},
		{ControllerName: controllerName},
		{ControllerName: controllerName, Endpoint: endpoint},
	}
	for _, k := range keys {
		rule, ok := rules[k]
		if !ok {
			continue
		}
		if !rule.Permits(user) {
			return domain.ErrGroupAccessDenied
		}
	}
	return nil
}

// Rules returns the loaded rules ordered by controller then endpoint.
func (s *RestrictionService) Rules() []domain.RestrictionRule {
	rules := *s.rules.Load()
	out := make([]domain.RestrictionRule, 0, len(rules))
	for _, r := range rules {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ControllerName != out[j].ControllerName {
			return out[i].ControllerName < out[j].ControllerName
		}
		return out[i].Endpoint < out[j].Endpoint
	})
	return out
}

// Upsert stores rule and reloads the snapshot.
func (s *RestrictionService) Upsert(ctx context.Context, rule domain.RestrictionRule) error {
	if err := s.repo.Upsert(ctx, rule); err != nil {
		return upstream(err)
	}
	return s.Refresh(ctx)
}

// Remove deletes the rule for key and reloads the snapshot.
func (s *RestrictionService) Remove(ctx context.Context, key domain.RuleKey) error {
	if err := s.repo.Delete(ctx, key); err != nil {
		return upstream(err)
	}
	return s.Refresh(ctx)
}
