package catalog

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/promo-engine/internal/domain/promotion"
)

type countingRepo struct {
	promotions []promotion.Promotion
	families   promotion.FamilySet
	err        error

	loads atomic.Int64
}

func (r *countingRepo) ActivePromotions(_ context.Context, _ time.Time) ([]promotion.Promotion, error) {
	r.loads.Add(1)
	return r.promotions, r.err
}

func (r *countingRepo) FindByCode(_ context.Context, code string) (*promotion.Promotion, error) {
	for i := range r.promotions {
		if r.promotions[i].Code == code {
			return &r.promotions[i], nil
		}
	}
	return nil, promotion.ErrPromotionNotFound
}

func (r *countingRepo) Families(_ context.Context) (promotion.FamilySet, error) {
	return r.families, r.err
}

func testPromotion(code string) promotion.Promotion {
	return promotion.Promotion{
		ID:       "id-" + code,
		Code:     code,
		Name:     code,
		Active:   true,
		StartsAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		EndsAt:   time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Rules: []promotion.Rule{{
			Reward: promotion.Reward{
				Type:   promotion.RewardPercentage,
				Target: promotion.TargetCart,
				Value:  decimal.NewFromInt(10),
			},
		}},
	}
}

func TestCache_ServesFromSnapshot(t *testing.T) {
	inner := &countingRepo{
		promotions: []promotion.Promotion{testPromotion("SAVE10"), testPromotion("SAVE20")},
		families:   promotion.FamilySet{},
	}
	c := New(inner, time.Minute)

	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		promos, err := c.ActivePromotions(context.Background(), at)
		require.NoError(t, err)
		assert.Len(t, promos, 2)
	}
	assert.Equal(t, int64(1), inner.loads.Load())
}

func TestCache_RefreshAfterTTL(t *testing.T) {
	inner := &countingRepo{
		promotions: []promotion.Promotion{testPromotion("SAVE10")},
		families:   promotion.FamilySet{},
	}
	c := New(inner, time.Minute)

	clock := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return clock }

	_, err := c.ActivePromotions(context.Background(), clock)
	require.NoError(t, err)
	require.Equal(t, int64(1), inner.loads.Load())

	clock = clock.Add(30 * time.Second)
	_, err = c.ActivePromotions(context.Background(), clock)
	require.NoError(t, err)
	assert.Equal(t, int64(1), inner.loads.Load(), "snapshot still fresh")

	clock = clock.Add(time.Minute)
	_, err = c.ActivePromotions(context.Background(), clock)
	require.NoError(t, err)
	assert.Equal(t, int64(2), inner.loads.Load(), "snapshot expired")
}

func TestCache_FindByCode(t *testing.T) {
	inner := &countingRepo{
		promotions: []promotion.Promotion{testPromotion("SAVE10")},
		families:   promotion.FamilySet{},
	}
	c := New(inner, time.Minute)

	p, err := c.FindByCode(context.Background(), "SAVE10")
	require.NoError(t, err)
	assert.Equal(t, "SAVE10", p.Code)

	// Codes are matched case-insensitively.
	p, err = c.FindByCode(context.Background(), " save10 ")
	require.NoError(t, err)
	assert.Equal(t, "SAVE10", p.Code)

	// Unknown codes are rejected by the bloom filter without a store hit.
	_, err = c.FindByCode(context.Background(), "NOPE")
	require.ErrorIs(t, err, promotion.ErrPromotionNotFound)
	assert.Equal(t, int64(1), inner.loads.Load())
}

func TestCache_Invalidate(t *testing.T) {
	inner := &countingRepo{
		promotions: []promotion.Promotion{testPromotion("SAVE10")},
		families:   promotion.FamilySet{},
	}
	c := New(inner, time.Hour)

	_, err := c.Families(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(1), inner.loads.Load())

	c.Invalidate()

	_, err = c.Families(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), inner.loads.Load())
}

func TestCache_ErrorsAreNotCached(t *testing.T) {
	inner := &countingRepo{err: errors.New("connection refused")}
	c := New(inner, time.Minute)

	_, err := c.ActivePromotions(context.Background(), time.Now())
	require.Error(t, err)

	inner.err = nil
	inner.promotions = []promotion.Promotion{testPromotion("SAVE10")}
	inner.families = promotion.FamilySet{}

	promos, err := c.ActivePromotions(context.Background(), time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Len(t, promos, 1)
}

func TestCache_ConcurrentLoadsAreDeduplicated(t *testing.T) {
	inner := &countingRepo{
		promotions: []promotion.Promotion{testPromotion("SAVE10")},
		families:   promotion.FamilySet{},
	}
	c := New(inner, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.ActivePromotions(context.Background(), time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), inner.loads.Load())
}
