package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/promo-engine/internal/domain/promotion"
)

// Writer performs catalog writes: promotion upserts, families and customer
// profiles. Used by the ingest and seed tools, not by the serving path.
type Writer struct {
	pool *pgxpool.Pool
}

// NewWriter returns a Writer backed by the given pool.
func NewWriter(pool *pgxpool.Pool) *Writer {
	return &Writer{pool: pool}
}

// UpsertPromotion writes the full promotion aggregate in one transaction.
// Existing rules for the code are replaced, not merged.
func (w *Writer) UpsertPromotion(ctx context.Context, p *promotion.Promotion) error {
	if err := p.Validate(); err != nil {
		return errors.Wrapf(err, "promotion %s", p.Code)
	}

	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "begin")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var group any
	if p.CombinabilityGroup != "" {
		group = p.CombinabilityGroup
	}

	var id string
	err = tx.QueryRow(ctx, `
		INSERT INTO promotions (code, name, description, active, starts_at, ends_at,
		                        priority, combinability_group, exclusive, max_uses, uses)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (UPPER(code)) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			active = EXCLUDED.active,
			starts_at = EXCLUDED.starts_at,
			ends_at = EXCLUDED.ends_at,
			priority = EXCLUDED.priority,
			combinability_group = EXCLUDED.combinability_group,
			exclusive = EXCLUDED.exclusive,
			max_uses = EXCLUDED.max_uses,
			updated_at = now()
		RETURNING id::text`,
		promotion.NormalizeCode(p.Code), p.Name, p.Description, p.Active,
		p.StartsAt, p.EndsAt, p.Priority, group, p.Exclusive, p.MaxUses, p.Uses,
	).Scan(&id)
	if err != nil {
		return errors.Wrapf(err, "upsert promotion %s", p.Code)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM promotion_rules WHERE promotion_id = $1`, id); err != nil {
		return errors.Wrap(err, "clear rules")
	}

	for pos, rule := range p.Rules {
		if err := insertRule(ctx, tx, id, pos, rule); err != nil {
			return errors.Wrapf(err, "rule %d of %s", pos, p.Code)
		}
	}

	return errors.Wrap(tx.Commit(ctx), "commit")
}

func insertRule(ctx context.Context, tx pgx.Tx, promotionID string, pos int, rule promotion.Rule) error {
	var (
		rewardType, rewardTarget any
		ruleID                   string
	)
	if !rule.Tiered() {
		rewardType = string(rule.Reward.Type)
		rewardTarget = string(rule.Reward.Target)
	}

	err := tx.QueryRow(ctx, `
		INSERT INTO promotion_rules (promotion_id, position, metric,
		                             reward_type, reward_target, reward_target_ref, reward_value)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id::text`,
		promotionID, pos, rule.Metric,
		rewardType, rewardTarget, rule.Reward.TargetRef, rule.Reward.Value,
	).Scan(&ruleID)
	if err != nil {
		return errors.Wrap(err, "insert rule")
	}

	for _, cond := range rule.Conditions {
		_, err := tx.Exec(ctx, `
			INSERT INTO rule_conditions (rule_id, type, operator, value, upper_value, value_set, min_quantity)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			ruleID, cond.Type, cond.Operator, cond.Value, cond.UpperValue, cond.Values, cond.MinQuantity,
		)
		if err != nil {
			return errors.Wrap(err, "insert condition")
		}
	}

	for _, tier := range rule.Tiers {
		_, err := tx.Exec(ctx, `
			INSERT INTO promotion_tiers (rule_id, threshold, reward_type, reward_target, reward_target_ref, reward_value)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			ruleID, tier.Threshold,
			tier.Reward.Type, tier.Reward.Target, tier.Reward.TargetRef, tier.Reward.Value,
		)
		if err != nil {
			return errors.Wrap(err, "insert tier")
		}
	}

	return nil
}

// UpsertFamily writes one family definition.
func (w *Writer) UpsertFamily(ctx context.Context, f promotion.Family) error {
	members := make([]string, 0, len(f.Members))
	for m := range f.Members {
		members = append(members, m)
	}

	_, err := w.pool.Exec(ctx, `
		INSERT INTO promo_families (code, type, members)
		VALUES ($1, $2, $3)
		ON CONFLICT (code) DO UPDATE SET type = EXCLUDED.type, members = EXCLUDED.members`,
		f.Code, f.Type, members,
	)
	return errors.Wrapf(err, "upsert family %s", f.Code)
}

// UpsertCustomerProfile writes one customer profile.
func (w *Writer) UpsertCustomerProfile(ctx context.Context, customerID string, cc promotion.CustomerContext) error {
	_, err := w.pool.Exec(ctx, `
		INSERT INTO customer_profiles (customer_id, group_codes, loyalty_level, payment_method)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (customer_id) DO UPDATE SET
			group_codes = EXCLUDED.group_codes,
			loyalty_level = EXCLUDED.loyalty_level,
			payment_method = EXCLUDED.payment_method`,
		customerID, cc.GroupCodes, cc.LoyaltyLevel, cc.PaymentMethod,
	)
	return errors.Wrapf(err, "upsert customer %s", customerID)
}

// IncrementUses bumps a promotion's usage counter after a finalized order.
func (w *Writer) IncrementUses(ctx context.Context, code string) error {
	_, err := w.pool.Exec(ctx, `
		UPDATE promotions SET uses = uses + 1, updated_at = now()
		WHERE UPPER(code) = UPPER($1)`, code)
	return errors.Wrapf(err, "increment uses for %s", code)
}
