package classify

import (
	"context"

	"permsync/internal/cache"
	"permsync/internal/domain"
	"permsync/internal/rules"
)

// RuleService wraps rule persistence with expression validation and cache
// invalidation. Every write path invalidates the rule-set cache.
type RuleService struct {
	repo  domain.RuleRepository
	cache *cache.Cache
}

// NewRuleService creates a RuleService. evalCache may be nil.
func NewRuleService(repo domain.RuleRepository, evalCache *cache.Cache) *RuleService {
	return &RuleService{repo: repo, cache: evalCache}
}

// ListActive returns all active rules in creation order, cache-first.
func (s *RuleService) ListActive(ctx context.Context) ([]*domain.ClassificationRule, error) {
	if s.cache != nil {
		if ruleSet, ok := s.cache.Rules(); ok {
			return ruleSet, nil
		}
	}
	ruleSet, err := s.repo.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.SetRules(ruleSet)
	}
	return ruleSet, nil
}

// Create validates the expression and inserts version 1 of a new rule group.
func (s *RuleService) Create(ctx context.Context, rule *domain.ClassificationRule) (*domain.ClassificationRule, error) {
	if err := s.validate(rule); err != nil {
		return nil, err
	}
	created, err := s.repo.Create(ctx, rule)
	if err != nil {
		return nil, err
	}
	s.invalidate()
	return created, nil
}

// NewVersion validates the expression and supersedes the active version of
// the rule's group.
func (s *RuleService) NewVersion(ctx context.Context, rule *domain.ClassificationRule) (*domain.ClassificationRule, error) {
	if err := s.validate(rule); err != nil {
		return nil, err
	}
	created, err := s.repo.CreateVersion(ctx, rule)
	if err != nil {
		return nil, err
	}
	s.invalidate()
	return created, nil
}

// Deactivate retires a rule version.
func (s *RuleService) Deactivate(ctx context.Context, id string) error {
	if err := s.repo.Deactivate(ctx, id); err != nil {
		return err
	}
	s.invalidate()
	return nil
}

func (s *RuleService) validate(rule *domain.ClassificationRule) error {
	if !rule.Engine.Valid() {
		return domain.ErrValidation("unknown engine %q", rule.Engine)
	}
	if rule.ClassificationID == "" {
		return domain.ErrValidation("classification_id is required")
	}
	if _, err := rules.Parse(rule.Expression); err != nil {
		return domain.ErrValidation("invalid expression: %v", err)
	}
	return nil
}

func (s *RuleService) invalidate() {
	if s.cache != nil {
		s.cache.InvalidateRules()
		s.cache.InvalidateMemo()
	}
}
