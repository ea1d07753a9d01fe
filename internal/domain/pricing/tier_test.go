package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/promo-engine/internal/domain/promotion"
)

func tieredRule(metric promotion.Metric, thresholds ...string) promotion.Rule {
	rule := promotion.Rule{Metric: metric}
	for _, th := range thresholds {
		rule.Tiers = append(rule.Tiers, promotion.Tier{
			Threshold: dec(th),
			Reward: promotion.Reward{
				Type:   promotion.RewardPercentage,
				Target: promotion.TargetCart,
				Value:  dec(th), // reward value mirrors threshold for easy assertions
			},
		})
	}
	return rule
}

func TestResolveTier(t *testing.T) {
	rule := tieredRule(promotion.MetricSubtotal, "50", "100", "200")

	tests := []struct {
		name      string
		metric    string
		wantFound bool
		wantTier  string
	}{
		{name: "below lowest tier", metric: "49.99", wantFound: false},
		{name: "exactly lowest tier", metric: "50", wantFound: true, wantTier: "50"},
		{name: "between tiers picks lower", metric: "199.99", wantFound: true, wantTier: "100"},
		{name: "highest qualifying wins, not closest", metric: "201", wantFound: true, wantTier: "200"},
		{name: "far above highest", metric: "100000", wantFound: true, wantTier: "200"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tier, found := resolveTier(rule, dec(tt.metric))
			require.Equal(t, tt.wantFound, found)
			if found {
				assert.True(t, tier.Threshold.Equal(dec(tt.wantTier)),
					"expected tier %s, got %s", tt.wantTier, tier.Threshold)
			}
		})
	}
}

func TestQualifyingMetric(t *testing.T) {
	c := mustCart(t,
		lineItem("p1", 3, "10"),
		lineItem("p2", 2, "5"),
	)

	subtotal := qualifyingMetric(promotion.Rule{Metric: promotion.MetricSubtotal}, c)
	assert.True(t, subtotal.Equal(dec("40")))

	qty := qualifyingMetric(promotion.Rule{Metric: promotion.MetricQuantity}, c)
	assert.True(t, qty.Equal(dec("5")))
}

func TestQualifyingMetric_SubtotalIsCurrent(t *testing.T) {
	c := mustCart(t, lineItem("p1", 1, "100"))
	c.Items[0].Reduce("SAVE", dec("40"))

	got := qualifyingMetric(promotion.Rule{Metric: promotion.MetricSubtotal}, c)
	assert.True(t, got.Equal(dec("60")))
}

// Increasing the qualifying metric never resolves to a smaller reward when
// tier rewards grow with their thresholds.
func TestResolveTier_Monotonic(t *testing.T) {
	rule := tieredRule(promotion.MetricSubtotal, "50", "100", "200")

	prev := dec("0")
	for _, metric := range []string{"10", "50", "75", "100", "150", "200", "500"} {
		tier, found := resolveTier(rule, dec(metric))
		value := dec("0")
		if found {
			value = tier.Reward.Value
		}
		assert.True(t, value.GreaterThanOrEqual(prev),
			"metric %s resolved reward %s below previous %s", metric, value, prev)
		prev = value
	}
}
