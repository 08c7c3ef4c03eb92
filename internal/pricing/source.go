package pricing

import (
	"context"
	"sync"
)

// DefaultRules is the built-in schedule, matching the seed rows in migrations.
func DefaultRules() []PricingRule {
	return []PricingRule{
		{Profile: "regular", DisplayName: "Regular", FlatMarginPercentage: 30},
		{Profile: "mid", DisplayName: "Mid-volume", FlatMarginPercentage: 20, Tiers: []PricingTier{
			{MinAmount: 0, MarginPercentage: 25}, {MinAmount: 100, MarginPercentage: 18}, {MinAmount: 500, MarginPercentage: 12},
		}},
		{Profile: "vip", DisplayName: "VIP", FlatMarginPercentage: 12, Tiers: []PricingTier{
			{MinAmount: 0, MarginPercentage: 15}, {MinAmount: 100, MarginPercentage: 10}, {MinAmount: 500, MarginPercentage: 6},
		}},
	}
}

// StaticSource holds rules in memory. Used in demo mode and tests.
type StaticSource struct {
	mu    sync.RWMutex
	rules map[string]PricingRule
}

func NewStaticSource(rules ...PricingRule) *StaticSource {
	s := &StaticSource{rules: map[string]PricingRule{}}
	for _, r := range rules {
		_ = s.Save(context.Background(), r)
	}
	return s
}

func (s *StaticSource) Rule(_ context.Context, profile string) (PricingRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rules[profile]
	if !ok {
		return PricingRule{}, ErrUnknownProfile
	}
	r.Tiers = append([]PricingTier(nil), r.Tiers...)
	return r, nil
}

func (s *StaticSource) Save(_ context.Context, r PricingRule) error {
	if err := r.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r.Tiers = append([]PricingTier(nil), r.Tiers...)
	s.rules[r.Profile] = r
	return nil
}
