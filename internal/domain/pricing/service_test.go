package pricing

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/promo-engine/internal/domain/cart"
	"github.com/xenking/promo-engine/internal/domain/promotion"
)

type mockCatalog struct {
	promotions []promotion.Promotion
	families   promotion.FamilySet
	err        error
}

func (m *mockCatalog) ActivePromotions(_ context.Context, _ time.Time) ([]promotion.Promotion, error) {
	return m.promotions, m.err
}

func (m *mockCatalog) FindByCode(_ context.Context, code string) (*promotion.Promotion, error) {
	if m.err != nil {
		return nil, m.err
	}
	for i := range m.promotions {
		if m.promotions[i].Code == code {
			return &m.promotions[i], nil
		}
	}
	return nil, promotion.ErrPromotionNotFound
}

func (m *mockCatalog) Families(_ context.Context) (promotion.FamilySet, error) {
	if m.families == nil {
		return promotion.FamilySet{}, nil
	}
	return m.families, nil
}

type mockCustomers struct {
	ctx promotion.CustomerContext
}

func (m *mockCustomers) Context(_ context.Context, _ string) (promotion.CustomerContext, error) {
	return m.ctx, nil
}

func newTestService(catalog *mockCatalog) *Service {
	s := NewService(catalog, &mockCustomers{})
	s.now = func() time.Time { return evalTime }
	return s
}

func TestService_Calculate(t *testing.T) {
	svc := newTestService(&mockCatalog{
		promotions: []promotion.Promotion{promo("SAVE10", 1, percentageCart("10"))},
	})

	res, err := svc.Calculate(context.Background(), Request{
		CustomerID: "cust-1",
		Items:      []cart.Item{lineItem("p1", 1, "100")},
	})
	require.NoError(t, err)

	assert.True(t, res.Total.Equal(dec("90")))
	require.Len(t, res.Applied, 1)
	assert.Equal(t, "SAVE10", res.Applied[0].Code)
}

func TestService_Calculate_InvalidCart(t *testing.T) {
	svc := newTestService(&mockCatalog{})

	_, err := svc.Calculate(context.Background(), Request{CustomerID: "cust-1"})
	require.ErrorIs(t, err, cart.ErrEmptyCart)

	var qtyErr *cart.InvalidQuantityError
	_, err = svc.Calculate(context.Background(), Request{
		CustomerID: "cust-1",
		Items:      []cart.Item{{ProductID: "p1", Quantity: 0, UnitPrice: dec("10")}},
	})
	require.ErrorAs(t, err, &qtyErr)
}

func TestService_Calculate_CatalogFailureIsFatal(t *testing.T) {
	svc := newTestService(&mockCatalog{err: errors.New("connection refused")})

	_, err := svc.Calculate(context.Background(), Request{
		CustomerID: "cust-1",
		Items:      []cart.Item{lineItem("p1", 1, "100")},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load catalog")
}

func TestService_ValidateCode(t *testing.T) {
	gated := promo("MIN200", 1, promotion.Rule{
		Conditions: []promotion.Condition{{
			Type:     promotion.ConditionCartSubtotal,
			Operator: promotion.OpGTE,
			Value:    dec("200"),
		}},
		Reward: promotion.Reward{
			Type:   promotion.RewardPercentage,
			Target: promotion.TargetCart,
			Value:  dec("10"),
		},
	})
	svc := newTestService(&mockCatalog{
		promotions: []promotion.Promotion{promo("SAVE10", 1, percentageCart("10")), gated},
	})

	req := Request{
		CustomerID: "cust-1",
		Items:      []cart.Item{lineItem("p1", 1, "150")},
	}

	ok, err := svc.ValidateCode(context.Background(), req, "SAVE10")
	require.NoError(t, err)
	assert.True(t, ok)

	// Codes match case-insensitively.
	ok, err = svc.ValidateCode(context.Background(), req, "save10")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.ValidateCode(context.Background(), req, "MIN200")
	require.NoError(t, err)
	assert.False(t, ok)

	// Unknown codes are invalid, not errors.
	ok, err = svc.ValidateCode(context.Background(), req, "NOPE")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestService_Breakdown(t *testing.T) {
	svc := newTestService(&mockCatalog{
		promotions: []promotion.Promotion{promo("SAVE10", 1, percentageCart("10"))},
	})
	req := Request{
		CustomerID: "cust-1",
		Items:      []cart.Item{lineItem("p1", 1, "100")},
	}

	b, err := svc.Breakdown(context.Background(), req, "SAVE10")
	require.NoError(t, err)
	assert.True(t, b.Eligible)
	assert.True(t, b.Discount.Equal(dec("10")))

	b, err = svc.Breakdown(context.Background(), req, "UNKNOWN")
	require.NoError(t, err)
	assert.False(t, b.Eligible)
	assert.True(t, b.Discount.IsZero())
}

func TestService_EligiblePromotions(t *testing.T) {
	gated := promo("BIGCART", 1, promotion.Rule{
		Conditions: []promotion.Condition{{
			Type:     promotion.ConditionCartSubtotal,
			Operator: promotion.OpGTE,
			Value:    dec("500"),
		}},
		Reward: promotion.Reward{
			Type:   promotion.RewardPercentage,
			Target: promotion.TargetCart,
			Value:  dec("20"),
		},
	})
	svc := newTestService(&mockCatalog{
		promotions: []promotion.Promotion{promo("SAVE10", 1, percentageCart("10")), gated},
	})

	got, err := svc.EligiblePromotions(context.Background(), Request{
		CustomerID: "cust-1",
		Items:      []cart.Item{lineItem("p1", 1, "100")},
	})
	require.NoError(t, err)

	require.Len(t, got, 1)
	assert.Equal(t, "SAVE10", got[0].Code)
}
