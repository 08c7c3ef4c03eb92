package pricing

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repo struct{ DB *pgxpool.Pool }

func (r *Repo) Rule(ctx context.Context, profile string) (PricingRule, error) {
	rule := PricingRule{Profile: profile}
	err := r.DB.QueryRow(ctx, `SELECT display_name, flat_margin_percentage FROM pricing_rules WHERE profile=$1`, profile).
		Scan(&rule.DisplayName, &rule.FlatMarginPercentage)
	if errors.Is(err, pgx.ErrNoRows) {
		return PricingRule{}, ErrUnknownProfile
	}
	if err != nil {
		return PricingRule{}, err
	}

	rows, err := r.DB.Query(ctx, `
		SELECT min_amount, margin_percentage FROM pricing_tiers
		WHERE profile=$1 ORDER BY min_amount`, profile)
	if err != nil {
		return PricingRule{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var t PricingTier
		if err := rows.Scan(&t.MinAmount, &t.MarginPercentage); err != nil {
			return PricingRule{}, err
		}
		rule.Tiers = append(rule.Tiers, t)
	}
	return rule, rows.Err()
}

// Save replaces a rule and its tiers atomically. Quotes already issued keep the
// margin they were priced with.
func (r *Repo) Save(ctx context.Context, rule PricingRule) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err = tx.Exec(ctx, `
		INSERT INTO pricing_rules(profile, display_name, flat_margin_percentage, updated_at)
		VALUES ($1,$2,$3,now())
		ON CONFLICT (profile) DO UPDATE
		SET display_name=EXCLUDED.display_name, flat_margin_percentage=EXCLUDED.flat_margin_percentage, updated_at=now()`,
		rule.Profile, rule.DisplayName, rule.FlatMarginPercentage); err != nil {
		return err
	}
	if _, err = tx.Exec(ctx, `DELETE FROM pricing_tiers WHERE profile=$1`, rule.Profile); err != nil {
		return err
	}
	for _, t := range rule.Tiers {
		if _, err = tx.Exec(ctx, `
			INSERT INTO pricing_tiers(profile, min_amount, margin_percentage) VALUES ($1,$2,$3)`,
			rule.Profile, t.MinAmount, t.MarginPercentage); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}
