package postgres

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/promo-engine/internal/domain/promotion"
)

var _ promotion.Repository = (*CatalogRepository)(nil)

// CatalogRepository loads promotion aggregates and families from PostgreSQL.
type CatalogRepository struct {
	pool *pgxpool.Pool
}

// NewCatalogRepository returns a CatalogRepository backed by the given pool.
func NewCatalogRepository(pool *pgxpool.Pool) *CatalogRepository {
	return &CatalogRepository{pool: pool}
}

const promotionColumns = `
	p.id::text, p.code, p.name, p.description, p.active,
	p.starts_at, p.ends_at, p.priority,
	COALESCE(p.combinability_group, ''), p.exclusive, p.max_uses, p.uses`

// ActivePromotions returns every active promotion whose window contains the
// given time, with rules, conditions, tiers and rewards materialized.
func (r *CatalogRepository) ActivePromotions(ctx context.Context, at time.Time) ([]promotion.Promotion, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT`+promotionColumns+`
		FROM promotions p
		WHERE p.active AND p.starts_at <= $1 AND p.ends_at >= $1
		ORDER BY p.priority, p.code`, at)
	if err != nil {
		return nil, errors.Wrap(err, "query promotions")
	}

	promos, err := scanPromotions(rows)
	if err != nil {
		return nil, err
	}
	if len(promos) == 0 {
		return nil, nil
	}

	if err := r.loadRules(ctx, promos); err != nil {
		return nil, err
	}

	result := make([]promotion.Promotion, 0, len(promos))
	for _, p := range promos {
		result = append(result, *p)
	}
	return result, nil
}

// FindByCode looks up a single promotion aggregate by its promo code,
// case-insensitively. Returns promotion.ErrPromotionNotFound when no
// promotion carries the code.
func (r *CatalogRepository) FindByCode(ctx context.Context, code string) (*promotion.Promotion, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT`+promotionColumns+`
		FROM promotions p
		WHERE UPPER(p.code) = UPPER($1)`, code)
	if err != nil {
		return nil, errors.Wrap(err, "query promotion")
	}

	promos, err := scanPromotions(rows)
	if err != nil {
		return nil, err
	}
	if len(promos) == 0 {
		return nil, promotion.ErrPromotionNotFound
	}

	if err := r.loadRules(ctx, promos); err != nil {
		return nil, err
	}
	return promos[0], nil
}

// Families returns the materialized family catalog.
func (r *CatalogRepository) Families(ctx context.Context) (promotion.FamilySet, error) {
	rows, err := r.pool.Query(ctx, `SELECT code, type, members FROM promo_families`)
	if err != nil {
		return nil, errors.Wrap(err, "query families")
	}
	defer rows.Close()

	families := promotion.FamilySet{}
	for rows.Next() {
		var (
			f       promotion.Family
			members []string
		)
		if err := rows.Scan(&f.Code, &f.Type, &members); err != nil {
			return nil, errors.Wrap(err, "scan family")
		}
		f.Members = make(map[string]struct{}, len(members))
		for _, m := range members {
			f.Members[m] = struct{}{}
		}
		families[f.Code] = f
	}
	return families, rows.Err()
}

func scanPromotions(rows pgx.Rows) ([]*promotion.Promotion, error) {
	defer rows.Close()

	var promos []*promotion.Promotion
	for rows.Next() {
		p := &promotion.Promotion{}
		err := rows.Scan(
			&p.ID, &p.Code, &p.Name, &p.Description, &p.Active,
			&p.StartsAt, &p.EndsAt, &p.Priority,
			&p.CombinabilityGroup, &p.Exclusive, &p.MaxUses, &p.Uses,
		)
		if err != nil {
			return nil, errors.Wrap(err, "scan promotion")
		}
		promos = append(promos, p)
	}
	return promos, rows.Err()
}

// ruleRow carries a scanned promotion_rules row before assembly.
type ruleRow struct {
	id          string
	promotionID string
	rule        promotion.Rule
}

// loadRules materializes rules, conditions and tiers for the given
// promotions in three queries, then stitches the aggregates together.
func (r *CatalogRepository) loadRules(ctx context.Context, promos []*promotion.Promotion) error {
	ids := make([]string, len(promos))
	byID := make(map[string]*promotion.Promotion, len(promos))
	for i, p := range promos {
		ids[i] = p.ID
		byID[p.ID] = p
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id::text, promotion_id::text, metric,
		       COALESCE(reward_type, ''), COALESCE(reward_target, ''),
		       reward_target_ref, reward_value
		FROM promotion_rules
		WHERE promotion_id = ANY($1)
		ORDER BY promotion_id, position`, ids)
	if err != nil {
		return errors.Wrap(err, "query rules")
	}

	ruleRows, ruleByID, err := scanRules(rows)
	if err != nil {
		return err
	}
	if len(ruleRows) == 0 {
		return nil
	}

	ruleIDs := make([]string, len(ruleRows))
	for i, rr := range ruleRows {
		ruleIDs[i] = rr.id
	}

	if err := r.loadConditions(ctx, ruleIDs, ruleByID); err != nil {
		return err
	}
	if err := r.loadTiers(ctx, ruleIDs, ruleByID); err != nil {
		return err
	}

	for _, rr := range ruleRows {
		p := byID[rr.promotionID]
		if p == nil {
			continue
		}
		p.Rules = append(p.Rules, rr.rule)
	}
	return nil
}

func scanRules(rows pgx.Rows) ([]*ruleRow, map[string]*ruleRow, error) {
	defer rows.Close()

	var (
		ruleRows []*ruleRow
		ruleByID = map[string]*ruleRow{}
	)
	for rows.Next() {
		rr := &ruleRow{}
		var (
			rewardType, rewardTarget, rewardRef string
			rewardValue                         decimal.Decimal
		)
		if err := rows.Scan(
			&rr.id, &rr.promotionID, &rr.rule.Metric,
			&rewardType, &rewardTarget, &rewardRef, &rewardValue,
		); err != nil {
			return nil, nil, errors.Wrap(err, "scan rule")
		}
		if rewardType != "" {
			rr.rule.Reward = promotion.Reward{
				Type:      promotion.RewardType(rewardType),
				Target:    promotion.TargetType(rewardTarget),
				TargetRef: rewardRef,
				Value:     rewardValue,
			}
		}
		ruleRows = append(ruleRows, rr)
		ruleByID[rr.id] = rr
	}
	return ruleRows, ruleByID, rows.Err()
}

func (r *CatalogRepository) loadConditions(ctx context.Context, ruleIDs []string, ruleByID map[string]*ruleRow) error {
	rows, err := r.pool.Query(ctx, `
		SELECT rule_id::text, type, operator, value, upper_value, value_set, min_quantity
		FROM rule_conditions
		WHERE rule_id = ANY($1)
		ORDER BY rule_id, id`, ruleIDs)
	if err != nil {
		return errors.Wrap(err, "query conditions")
	}
	defer rows.Close()

	for rows.Next() {
		var (
			ruleID string
			cond   promotion.Condition
		)
		if err := rows.Scan(
			&ruleID, &cond.Type, &cond.Operator,
			&cond.Value, &cond.UpperValue, &cond.Values, &cond.MinQuantity,
		); err != nil {
			return errors.Wrap(err, "scan condition")
		}
		if rr := ruleByID[ruleID]; rr != nil {
			rr.rule.Conditions = append(rr.rule.Conditions, cond)
		}
	}
	return rows.Err()
}

func (r *CatalogRepository) loadTiers(ctx context.Context, ruleIDs []string, ruleByID map[string]*ruleRow) error {
	rows, err := r.pool.Query(ctx, `
		SELECT rule_id::text, threshold, reward_type, reward_target, reward_target_ref, reward_value
		FROM promotion_tiers
		WHERE rule_id = ANY($1)
		ORDER BY rule_id, threshold`, ruleIDs)
	if err != nil {
		return errors.Wrap(err, "query tiers")
	}
	defer rows.Close()

	for rows.Next() {
		var (
			ruleID string
			tier   promotion.Tier
		)
		if err := rows.Scan(
			&ruleID, &tier.Threshold,
			&tier.Reward.Type, &tier.Reward.Target, &tier.Reward.TargetRef, &tier.Reward.Value,
		); err != nil {
			return errors.Wrap(err, "scan tier")
		}
		if rr := ruleByID[ruleID]; rr != nil {
			rr.rule.Tiers = append(rr.rule.Tiers, tier)
		}
	}
	return rows.Err()
}
