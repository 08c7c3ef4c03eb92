package pricing

import (
	"context"
	"testing"

	"github.com/ariefcatur/go-shipment-booking/internal/shipments"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeTierSelection(t *testing.T) {
	rule := PricingRule{Profile: "test", FlatMarginPercentage: 40, Tiers: []PricingTier{
		{MinAmount: 0, MarginPercentage: 100},
		{MinAmount: 100, MarginPercentage: 50},
		{MinAmount: 500, MarginPercentage: 25},
	}}
	require.NoError(t, rule.Validate())

	tests := []struct {
		name       string
		base       float64
		wantPct    float64
		wantMargin float64
		wantFinal  float64
	}{
		{"lowest tier", 40, 100, 40, 80},
		{"middle tier", 150, 50, 75, 225},
		{"exact boundary picks the tier", 100, 50, 50, 150},
		{"just below boundary", 99.99, 100, 99.99, 199.98},
		{"top tier", 800, 25, 200, 1000},
		{"zero base", 0, 100, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := Compute(rule, tt.base)
			assert.Equal(t, tt.wantPct, b.MarginPercentage)
			assert.Equal(t, tt.wantMargin, b.MarginAmount)
			assert.Equal(t, tt.wantFinal, b.FinalPrice)
		})
	}
}

func TestComputeFallsBackToFlatMargin(t *testing.T) {
	t.Run("below lowest tier", func(t *testing.T) {
		rule := PricingRule{Profile: "p", FlatMarginPercentage: 30, Tiers: []PricingTier{{MinAmount: 50, MarginPercentage: 10}}}
		require.NoError(t, rule.Validate())
		b := Compute(rule, 20)
		assert.Equal(t, 30.0, b.MarginPercentage)
		assert.Equal(t, 26.0, b.FinalPrice)
	})
	t.Run("no tiers", func(t *testing.T) {
		b := Compute(PricingRule{Profile: "p", FlatMarginPercentage: 30}, 10)
		assert.Equal(t, 13.0, b.FinalPrice)
	})
}

func TestValidateSortsAndRejectsDuplicates(t *testing.T) {
	rule := PricingRule{Profile: " VIP ", Tiers: []PricingTier{
		{MinAmount: 500, MarginPercentage: 5}, {MinAmount: 0, MarginPercentage: 20}, {MinAmount: 100, MarginPercentage: 10},
	}}
	require.NoError(t, rule.Validate())
	assert.Equal(t, "vip", rule.Profile)
	assert.Equal(t, []float64{0, 100, 500}, []float64{rule.Tiers[0].MinAmount, rule.Tiers[1].MinAmount, rule.Tiers[2].MinAmount})

	dup := PricingRule{Profile: "x", Tiers: []PricingTier{{MinAmount: 10, MarginPercentage: 1}, {MinAmount: 10, MarginPercentage: 2}}}
	err := dup.Validate()
	require.Error(t, err)
	assert.True(t, shipments.IsValidation(err))
}

func TestRoundHalfUp(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{1.005, 1.01},
		{2.675, 2.68},
		{1.004, 1.0},
		{225, 225},
		{-1.005, -1.01},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, RoundHalfUp(tt.in, 2), "in=%v", tt.in)
	}
}

func TestMinorUnits(t *testing.T) {
	assert.Equal(t, int64(22500), MinorUnits(225, "USD"))
	assert.Equal(t, int64(1999), MinorUnits(19.99, "usd"))
	assert.Equal(t, int64(1500), MinorUnits(1499.5, "JPY"))
	assert.Equal(t, 19.99, FromMinorUnits(1999, "USD"))
}

func TestEngineUnknownProfile(t *testing.T) {
	e := &Engine{Rules: NewStaticSource(DefaultRules()...), DefaultProfile: "regular"}

	_, err := e.ComputeFinalPrice(context.Background(), "platinum", 10)
	require.Error(t, err)
	assert.True(t, shipments.IsValidation(err))

	b, err := e.ComputeFinalPrice(context.Background(), "", 10)
	require.NoError(t, err)
	assert.Equal(t, 13.0, b.FinalPrice)
}

func TestIssuedQuoteKeepsPriceAfterRuleEdit(t *testing.T) {
	src := NewStaticSource(DefaultRules()...)
	e := &Engine{Rules: src, DefaultProfile: "regular"}
	ctx := context.Background()

	// vip at the 100 boundary -> 10%
	opt := shipments.RateQuoteOption{BaseRate: 100, Currency: "USD"}
	require.NoError(t, e.Apply(ctx, "vip", &opt))
	assert.Equal(t, 110.0, opt.FinalPrice)
	issued := opt

	require.NoError(t, src.Save(ctx, PricingRule{Profile: "vip", FlatMarginPercentage: 12, Tiers: []PricingTier{
		{MinAmount: 0, MarginPercentage: 15}, {MinAmount: 100, MarginPercentage: 40},
	}}))

	fresh := shipments.RateQuoteOption{BaseRate: 100}
	require.NoError(t, e.Apply(ctx, "vip", &fresh))
	assert.Equal(t, 140.0, fresh.FinalPrice)
	assert.Equal(t, 110.0, issued.FinalPrice)
	assert.Equal(t, 10.0, issued.MarginPercentage)
}
