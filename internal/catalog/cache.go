// Package catalog provides a read-through cache in front of the promotion
// catalog store. Evaluation traffic is read-heavy and tolerant of slightly
// stale definitions, so the cache serves a consistent snapshot for a TTL and
// refreshes it on demand, de-duplicating concurrent refreshes. A bloom
// filter over promo codes answers "definitely unknown code" lookups without
// touching the store.
package catalog

import (
	"context"
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"golang.org/x/sync/singleflight"

	"github.com/xenking/promo-engine/internal/domain/promotion"
)

const (
	// bloomCapacity sizes the code filter; far above any realistic catalog
	// so the false positive rate holds.
	bloomCapacity = 1_000_000
	bloomFPR      = 0.001
)

// snapshot is one immutable view of the catalog, shared by readers until it
// expires.
type snapshot struct {
	promotions []promotion.Promotion
	families   promotion.FamilySet
	codes      *bloom.BloomFilter
	loadedAt   time.Time
}

// Cache implements promotion.Repository over an inner repository, caching
// full catalog snapshots for a TTL.
type Cache struct {
	inner promotion.Repository
	ttl   time.Duration
	now   func() time.Time

	mu      sync.RWMutex
	current *snapshot

	group singleflight.Group
}

var _ promotion.Repository = (*Cache)(nil)

// New creates a Cache over the inner repository with the given TTL.
func New(inner promotion.Repository, ttl time.Duration) *Cache {
	return &Cache{inner: inner, ttl: ttl, now: time.Now}
}

// ActivePromotions returns the promotions active at the given time from the
// cached snapshot, refreshing it when stale. Returned slices are copies; the
// caller may not observe later refreshes mid-evaluation.
func (c *Cache) ActivePromotions(ctx context.Context, at time.Time) ([]promotion.Promotion, error) {
	snap, err := c.load(ctx)
	if err != nil {
		return nil, err
	}

	var active []promotion.Promotion
	for _, p := range snap.promotions {
		if p.ActiveAt(at) {
			active = append(active, p)
		}
	}
	return active, nil
}

// FindByCode looks up a promotion by code in the cached snapshot. The bloom
// filter short-circuits codes that are definitely absent.
func (c *Cache) FindByCode(ctx context.Context, code string) (*promotion.Promotion, error) {
	code = promotion.NormalizeCode(code)

	snap, err := c.load(ctx)
	if err != nil {
		return nil, err
	}
	if !snap.codes.TestString(code) {
		return nil, promotion.ErrPromotionNotFound
	}

	for i := range snap.promotions {
		if promotion.NormalizeCode(snap.promotions[i].Code) == code {
			p := snap.promotions[i]
			return &p, nil
		}
	}
	// Bloom false positive.
	return nil, promotion.ErrPromotionNotFound
}

// Families returns the cached family catalog.
func (c *Cache) Families(ctx context.Context) (promotion.FamilySet, error) {
	snap, err := c.load(ctx)
	if err != nil {
		return nil, err
	}
	return snap.families, nil
}

// Invalidate drops the current snapshot so the next read refreshes.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.current = nil
	c.mu.Unlock()
}

// load returns the current snapshot, refreshing it through singleflight when
// missing or expired.
func (c *Cache) load(ctx context.Context) (*snapshot, error) {
	c.mu.RLock()
	snap := c.current
	c.mu.RUnlock()

	if snap != nil && c.now().Sub(snap.loadedAt) < c.ttl {
		return snap, nil
	}

	v, err, _ := c.group.Do("catalog", func() (any, error) {
		// Another caller may have refreshed while we queued.
		c.mu.RLock()
		cur := c.current
		c.mu.RUnlock()
		if cur != nil && c.now().Sub(cur.loadedAt) < c.ttl {
			return cur, nil
		}

		fresh, err := c.refresh(ctx)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.current = fresh
		c.mu.Unlock()
		return fresh, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*snapshot), nil
}

// refresh loads the catalog from the inner repository and builds a new
// snapshot.
func (c *Cache) refresh(ctx context.Context) (*snapshot, error) {
	// The Repository interface has no "all promotions" call, so load what is
	// active around now. The snapshot re-filters per evaluation time anyway.
	promos, err := c.inner.ActivePromotions(ctx, c.now())
	if err != nil {
		return nil, errors.Wrap(err, "refresh promotions")
	}
	families, err := c.inner.Families(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "refresh families")
	}

	codes := bloom.NewWithEstimates(bloomCapacity, bloomFPR)
	for i := range promos {
		codes.AddString(promotion.NormalizeCode(promos[i].Code))
	}

	return &snapshot{
		promotions: promos,
		families:   families,
		codes:      codes,
		loadedAt:   c.now(),
	}, nil
}
