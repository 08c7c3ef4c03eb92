package pricing

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strings"

	"github.com/ariefcatur/go-shipment-booking/internal/shipments"
)

type PricingTier struct {
	MinAmount        float64 `json:"minAmount"`
	MarginPercentage float64 `json:"marginPercentage"`
}

type PricingRule struct {
	Profile              string        `json:"profile"`
	DisplayName          string        `json:"displayName"`
	FlatMarginPercentage float64       `json:"flatMarginPercentage"`
	Tiers                []PricingTier `json:"tiers"`
}

// Validate checks the rule and sorts its tiers ascending by MinAmount.
func (r *PricingRule) Validate() error {
	r.Profile = strings.ToLower(strings.TrimSpace(r.Profile))
	if r.Profile == "" {
		return shipments.Invalid("profile", "required")
	}
	if r.FlatMarginPercentage < 0 {
		return shipments.Invalid("flatMarginPercentage", "must not be negative")
	}
	seen := map[float64]bool{}
	for i, t := range r.Tiers {
		if t.MinAmount < 0 || t.MarginPercentage < 0 {
			return shipments.Invalid(fmt.Sprintf("tiers[%d]", i), "must not be negative")
		}
		if seen[t.MinAmount] {
			return shipments.Invalid(fmt.Sprintf("tiers[%d].minAmount", i), "duplicate minAmount")
		}
		seen[t.MinAmount] = true
	}
	sort.Slice(r.Tiers, func(i, j int) bool { return r.Tiers[i].MinAmount < r.Tiers[j].MinAmount })
	return nil
}

// Applicable returns the margin for baseRate: the tier with the greatest
// MinAmount <= baseRate, or the flat margin when no tier qualifies.
// Tiers must be sorted ascending.
func (r PricingRule) Applicable(baseRate float64) float64 {
	pct := r.FlatMarginPercentage
	for _, t := range r.Tiers {
		if t.MinAmount > baseRate {
			break
		}
		pct = t.MarginPercentage
	}
	return pct
}

type Breakdown struct {
	BaseRate         float64 `json:"baseRate"`
	MarginPercentage float64 `json:"marginPercentage"`
	MarginAmount     float64 `json:"marginAmount"`
	FinalPrice       float64 `json:"finalPrice"`
}

var ErrUnknownProfile = errors.New("unknown pricing profile")

type RuleSource interface {
	Rule(ctx context.Context, profile string) (PricingRule, error)
}

type Engine struct {
	Rules          RuleSource
	DefaultProfile string
}

func (e *Engine) ComputeFinalPrice(ctx context.Context, profile string, baseRate float64) (Breakdown, error) {
	if baseRate < 0 {
		return Breakdown{}, shipments.Invalid("baseRate", "must not be negative")
	}
	profile = strings.ToLower(strings.TrimSpace(profile))
	if profile == "" {
		profile = e.DefaultProfile
	}
	rule, err := e.Rules.Rule(ctx, profile)
	if errors.Is(err, ErrUnknownProfile) {
		return Breakdown{}, shipments.Invalid("clientProfile", "unknown pricing profile "+profile)
	}
	if err != nil {
		return Breakdown{}, fmt.Errorf("load pricing rule %s: %w", profile, err)
	}
	return Compute(rule, baseRate), nil
}

// Compute applies rule to baseRate. margin = base * pct / 100; final = base + margin,
// both rounded half-up to 2 decimals.
func Compute(rule PricingRule, baseRate float64) Breakdown {
	pct := rule.Applicable(baseRate)
	base := decimal(baseRate)
	margin := new(big.Rat).Mul(base, decimal(pct))
	margin.Quo(margin, big.NewRat(100, 1))
	final := new(big.Rat).Add(base, margin)

	m, _ := roundRat(margin, 2).Float64()
	f, _ := roundRat(final, 2).Float64()
	return Breakdown{
		BaseRate:         RoundHalfUp(baseRate, 2),
		MarginPercentage: pct,
		MarginAmount:     m,
		FinalPrice:       f,
	}
}

// Apply prices a carrier option in place. The margin snapshot travels with the
// option from here on; later rule edits do not touch it.
func (e *Engine) Apply(ctx context.Context, profile string, opt *shipments.RateQuoteOption) error {
	b, err := e.ComputeFinalPrice(ctx, profile, opt.BaseRate)
	if err != nil {
		return err
	}
	opt.BaseRate = b.BaseRate
	opt.MarginPercentage = b.MarginPercentage
	opt.MarginAmount = b.MarginAmount
	opt.FinalPrice = b.FinalPrice
	return nil
}
