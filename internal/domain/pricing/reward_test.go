package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/promo-engine/internal/domain/promotion"
)

func TestApplyReward_Percentage(t *testing.T) {
	c := mustCart(t,
		lineItem("p1", 1, "100"),
		lineItem("p2", 1, "50"),
	)

	app, err := applyReward("SAVE10", promotion.Reward{
		Type:   promotion.RewardPercentage,
		Target: promotion.TargetCart,
		Value:  dec("10"),
	}, c, promotion.FamilySet{})
	require.NoError(t, err)

	assert.True(t, app.discount.Equal(dec("15")))
	assert.True(t, c.Total().Equal(dec("135")))
	assert.Len(t, app.items, 2)
}

// Stacked percentages always discount the current price, so two 10%
// reductions of 100 land on 81, not 80.
func TestApplyReward_PercentageOfCurrentPrice(t *testing.T) {
	c := mustCart(t, lineItem("p1", 1, "100"))
	reward := promotion.Reward{
		Type:   promotion.RewardPercentage,
		Target: promotion.TargetCart,
		Value:  dec("10"),
	}

	_, err := applyReward("FIRST", reward, c, promotion.FamilySet{})
	require.NoError(t, err)
	app, err := applyReward("SECOND", reward, c, promotion.FamilySet{})
	require.NoError(t, err)

	assert.True(t, app.discount.Equal(dec("9")))
	assert.True(t, c.Total().Equal(dec("81")))
}

func TestApplyReward_SamePromotionSkipsDiscountedItems(t *testing.T) {
	c := mustCart(t, lineItem("p1", 1, "100"))
	reward := promotion.Reward{
		Type:   promotion.RewardPercentage,
		Target: promotion.TargetCart,
		Value:  dec("10"),
	}

	_, err := applyReward("SAVE", reward, c, promotion.FamilySet{})
	require.NoError(t, err)
	app, err := applyReward("SAVE", reward, c, promotion.FamilySet{})
	require.NoError(t, err)

	assert.True(t, app.empty(), "second application of the same code must be a no-op")
	assert.True(t, c.Total().Equal(dec("90")))
}

func TestApplyReward_FixedAmountCart(t *testing.T) {
	c := mustCart(t,
		lineItem("p1", 1, "60"),
		lineItem("p2", 1, "40"),
	)

	app, err := applyReward("TENOFF", promotion.Reward{
		Type:   promotion.RewardFixedAmount,
		Target: promotion.TargetCart,
		Value:  dec("10"),
	}, c, promotion.FamilySet{})
	require.NoError(t, err)

	assert.True(t, app.discount.Equal(dec("10")))
	// Proportional split: 6 off the 60 line, 4 off the 40 line.
	assert.True(t, c.Items[0].CurrentPrice().Equal(dec("54")))
	assert.True(t, c.Items[1].CurrentPrice().Equal(dec("36")))
}

func TestApplyReward_FixedAmountCappedAtSubtotal(t *testing.T) {
	c := mustCart(t, lineItem("p1", 1, "30"))

	app, err := applyReward("BIG", promotion.Reward{
		Type:   promotion.RewardFixedAmount,
		Target: promotion.TargetCart,
		Value:  dec("100"),
	}, c, promotion.FamilySet{})
	require.NoError(t, err)

	assert.True(t, app.discount.Equal(dec("30")))
	assert.True(t, c.Total().IsZero())
}

func TestApplyReward_FixedAmountTargetedItems(t *testing.T) {
	families := promotion.FamilySet{
		"SNACKS": {Code: "SNACKS", Members: map[string]struct{}{"p1": {}, "p2": {}}},
	}
	c := mustCart(t,
		lineItem("p1", 1, "20"),
		lineItem("p2", 1, "10"),
		lineItem("p3", 1, "100"), // not in family, untouched
	)

	app, err := applyReward("SNACK6", promotion.Reward{
		Type:      promotion.RewardFixedAmount,
		Target:    promotion.TargetFamily,
		TargetRef: "SNACKS",
		Value:     dec("6"),
	}, c, families)
	require.NoError(t, err)

	assert.True(t, app.discount.Equal(dec("6")))
	assert.True(t, c.Items[0].CurrentPrice().Equal(dec("16")))
	assert.True(t, c.Items[1].CurrentPrice().Equal(dec("8")))
	assert.True(t, c.Items[2].CurrentPrice().Equal(dec("100")))
}

func TestApplyReward_FreeItem(t *testing.T) {
	c := mustCart(t,
		lineItem("x", 3, "20"),
		lineItem("y", 1, "5"),
	)

	app, err := applyReward("FREEX", promotion.Reward{
		Type:      promotion.RewardFreeItem,
		Target:    promotion.TargetItem,
		TargetRef: "x",
		Value:     dec("1"),
	}, c, promotion.FamilySet{})
	require.NoError(t, err)

	assert.True(t, app.discount.Equal(dec("20")))
	assert.True(t, c.Items[0].CurrentPrice().Equal(dec("40")))
}

func TestApplyReward_FreeItemPicksCheapestAndCapsUnits(t *testing.T) {
	c := mustCart(t,
		lineItem("a", 2, "30"),
		lineItem("b", 2, "10"), // cheapest per unit
	)

	app, err := applyReward("FREEBIE", promotion.Reward{
		Type:   promotion.RewardFreeItem,
		Target: promotion.TargetCart,
		Value:  dec("5"), // more units than the line holds
	}, c, promotion.FamilySet{})
	require.NoError(t, err)

	assert.True(t, app.discount.Equal(dec("20")))
	assert.True(t, c.Items[1].CurrentPrice().IsZero())
	assert.True(t, c.Items[0].CurrentPrice().Equal(dec("60")))
}

func TestApplyReward_LoyaltyPoints(t *testing.T) {
	c := mustCart(t, lineItem("p1", 1, "100"))

	app, err := applyReward("POINTS", promotion.Reward{
		Type:   promotion.RewardLoyaltyPoints,
		Target: promotion.TargetCart,
		Value:  dec("250"),
	}, c, promotion.FamilySet{})
	require.NoError(t, err)

	assert.True(t, app.discount.IsZero())
	assert.Equal(t, int64(250), app.points)
	assert.True(t, c.Total().Equal(dec("100")), "points must not change prices")
}

func TestApplyReward_NoMatchingTargets(t *testing.T) {
	c := mustCart(t, lineItem("p1", 1, "10"))

	app, err := applyReward("MISS", promotion.Reward{
		Type:      promotion.RewardPercentage,
		Target:    promotion.TargetItem,
		TargetRef: "p9",
		Value:     dec("10"),
	}, c, promotion.FamilySet{})
	require.NoError(t, err)
	assert.True(t, app.empty())
}

func TestApplyReward_UnknownType(t *testing.T) {
	c := mustCart(t, lineItem("p1", 1, "10"))

	_, err := applyReward("BAD", promotion.Reward{
		Type:   "BOGUS",
		Target: promotion.TargetCart,
	}, c, promotion.FamilySet{})
	require.Error(t, err)
}

func TestProrate(t *testing.T) {
	tests := []struct {
		name    string
		amount  string
		weights []string
		want    []string
	}{
		{
			name:    "even split",
			amount:  "10",
			weights: []string{"50", "50"},
			want:    []string{"5", "5"},
		},
		{
			name:    "proportional split",
			amount:  "10",
			weights: []string{"60", "40"},
			want:    []string{"6", "4"},
		},
		{
			name:    "remainder goes to largest fractional share",
			amount:  "0.000001",
			weights: []string{"1", "1", "1"},
			want:    []string{"0.000001", "0", "0"},
		},
		{
			name:    "zero weights yield zero shares",
			amount:  "10",
			weights: []string{"0", "0"},
			want:    []string{"0", "0"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			weights := make([]decimal.Decimal, len(tt.weights))
			for i, w := range tt.weights {
				weights[i] = dec(w)
			}

			shares := prorate(dec(tt.amount), weights)
			require.Len(t, shares, len(tt.want))
			for i, want := range tt.want {
				assert.True(t, shares[i].Equal(dec(want)),
					"share %d: expected %s, got %s", i, want, shares[i])
			}
		})
	}
}

// Shares must sum exactly to the amount regardless of rounding.
func TestProrate_SumsExactly(t *testing.T) {
	weights := []decimal.Decimal{dec("33.33"), dec("33.33"), dec("33.34"), dec("0.07")}
	amount := dec("9.999999")

	shares := prorate(amount, weights)

	sum := decimal.Zero
	for _, s := range shares {
		sum = sum.Add(s)
	}
	assert.True(t, sum.Equal(amount), "shares sum %s != amount %s", sum, amount)
}
