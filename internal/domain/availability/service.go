package availability

import (
	"context"
	"time"
)

// Service manages a provider's own rules and blackouts. Every write drops
// the provider's cached grids.
type Service struct {
	rules    *RuleRepository
	blocked  *BlockedRepository
	resolver *Resolver
}

func NewService(rules *RuleRepository, blocked *BlockedRepository, resolver *Resolver) *Service {
	return &Service{rules: rules, blocked: blocked, resolver: resolver}
}

func (s *Service) AddRule(ctx context.Context, providerID int64, rule *Rule) error {
	rule.ID = 0
	rule.ProviderID = providerID
	if err := s.rules.Create(ctx, rule); err != nil {
		return err
	}
	s.resolver.Invalidate(ctx, providerID)
	return nil
}

func (s *Service) ListRules(ctx context.Context, providerID int64) ([]Rule, error) {
	return s.rules.ListByProvider(ctx, providerID)
}

func (s *Service) DeleteRule(ctx context.Context, providerID, ruleID int64) error {
	if err := s.rules.Delete(ctx, providerID, ruleID); err != nil {
		return err
	}
	s.resolver.Invalidate(ctx, providerID)
	return nil
}

func (s *Service) AddBlocked(ctx context.Context, providerID int64, b *BlockedTime) error {
	b.ID = 0
	b.ProviderID = providerID
	if err := s.blocked.Create(ctx, b); err != nil {
		return err
	}
	s.resolver.Invalidate(ctx, providerID)
	return nil
}

func (s *Service) ListBlocked(ctx context.Context, providerID int64, from, to time.Time) ([]BlockedTime, error) {
	return s.blocked.ListOverlapping(ctx, providerID, from, to)
}

func (s *Service) DeleteBlocked(ctx context.Context, providerID, blockedID int64) error {
	if err := s.blocked.Delete(ctx, providerID, blockedID); err != nil {
		return err
	}
	s.resolver.Invalidate(ctx, providerID)
	return nil
}
