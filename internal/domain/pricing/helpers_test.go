package pricing

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/xenking/promo-engine/internal/domain/cart"
	"github.com/xenking/promo-engine/internal/domain/promotion"
)

// evalTime is a fixed Sunday noon used across engine tests.
var evalTime = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func mustCart(t *testing.T, items ...cart.Item) *cart.Cart {
	t.Helper()
	c, err := cart.New("cust-1", items)
	require.NoError(t, err)
	return c
}

func lineItem(id string, qty int, unitPrice string) cart.Item {
	return cart.Item{ProductID: id, Quantity: qty, UnitPrice: dec(unitPrice)}
}

// promo builds an active promotion whose window contains evalTime.
func promo(code string, priority int, rules ...promotion.Rule) promotion.Promotion {
	return promotion.Promotion{
		ID:       "id-" + code,
		Code:     code,
		Name:     code,
		Active:   true,
		StartsAt: evalTime.Add(-24 * time.Hour),
		EndsAt:   evalTime.Add(24 * time.Hour),
		Priority: priority,
		Rules:    rules,
	}
}

func percentageCart(value string) promotion.Rule {
	return promotion.Rule{Reward: promotion.Reward{
		Type:   promotion.RewardPercentage,
		Target: promotion.TargetCart,
		Value:  dec(value),
	}}
}

func fixedCart(value string) promotion.Rule {
	return promotion.Rule{Reward: promotion.Reward{
		Type:   promotion.RewardFixedAmount,
		Target: promotion.TargetCart,
		Value:  dec(value),
	}}
}

func input(c *cart.Cart) Input {
	return Input{Cart: c, Families: promotion.FamilySet{}, At: evalTime}
}
