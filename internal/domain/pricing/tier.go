package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/xenking/promo-engine/internal/domain/cart"
	"github.com/xenking/promo-engine/internal/domain/promotion"
)

// qualifyingMetric returns the numeric value a tiered rule's thresholds are
// compared against. Subtotal means the cart's current (already discounted)
// total, matching the CART_SUBTOTAL condition semantics.
func qualifyingMetric(rule promotion.Rule, c *cart.Cart) decimal.Decimal {
	if rule.Metric == promotion.MetricQuantity {
		return decimal.NewFromInt(int64(c.TotalQuantity()))
	}
	return c.Total()
}

// resolveTier picks the best qualifying tier: the one with the highest
// threshold the metric still satisfies, never the closest. The second return
// is false when the metric does not reach even the lowest tier; the rule is
// then not applied at all, even though its conditions passed.
func resolveTier(rule promotion.Rule, metric decimal.Decimal) (promotion.Tier, bool) {
	for i := len(rule.Tiers) - 1; i >= 0; i-- {
		if rule.Tiers[i].Threshold.LessThanOrEqual(metric) {
			return rule.Tiers[i], true
		}
	}
	return promotion.Tier{}, false
}
