package pricing

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/promo-engine/internal/domain/cart"
	"github.com/xenking/promo-engine/internal/domain/promotion"
)

var hundred = decimal.NewFromInt(100)

// application is the effect of one reward on the cart: the discount actually
// taken, loyalty points granted, and the item states that were touched.
type application struct {
	discount decimal.Decimal
	points   int64
	items    []*cart.ItemState
}

func (a application) empty() bool {
	return a.discount.IsZero() && a.points == 0 && len(a.items) == 0
}

// applyReward mutates the targeted item states per the reward and returns
// what was taken. Items the promotion already discounted in this run are
// skipped, so one promotion never discounts the same item twice.
func applyReward(code string, reward promotion.Reward, c *cart.Cart, families promotion.FamilySet) (application, error) {
	targets := resolveTargets(code, reward, c, families)
	if len(targets) == 0 {
		return application{}, nil
	}

	switch reward.Type {
	case promotion.RewardPercentage:
		return applyPercentage(code, reward.Value, targets), nil
	case promotion.RewardFixedAmount:
		return applyFixedAmount(code, reward.Value, targets), nil
	case promotion.RewardFreeItem:
		return applyFreeItem(code, reward.Value, targets), nil
	case promotion.RewardLoyaltyPoints:
		return applyLoyaltyPoints(code, reward.Value, targets), nil
	default:
		return application{}, errors.Errorf("unsupported reward type: %q", reward.Type)
	}
}

// resolveTargets returns the item states the reward applies to, excluding
// items this promotion already touched.
func resolveTargets(code string, reward promotion.Reward, c *cart.Cart, families promotion.FamilySet) []*cart.ItemState {
	var targets []*cart.ItemState
	for _, s := range c.Items {
		if s.Discounted(code) {
			continue
		}
		if targetMatches(reward, s.Item, families) {
			targets = append(targets, s)
		}
	}
	return targets
}

func targetMatches(reward promotion.Reward, item cart.Item, families promotion.FamilySet) bool {
	switch reward.Target {
	case promotion.TargetCart:
		return true
	case promotion.TargetItem:
		return item.ProductID == reward.TargetRef
	case promotion.TargetCategory, promotion.TargetFamily:
		if item.FamilyID != "" && item.FamilyID == reward.TargetRef {
			return true
		}
		return families.MemberOf(reward.TargetRef, item.ProductID)
	default:
		return false
	}
}

// applyPercentage takes value percent off each targeted item's current
// price. The percentage is always computed from the current price, never the
// original, so repeated discounting of the same item cannot drift.
func applyPercentage(code string, value decimal.Decimal, targets []*cart.ItemState) application {
	app := application{discount: decimal.Zero}
	for _, s := range targets {
		d := s.CurrentPrice().Mul(value).Div(hundred).Round(cart.Scale)
		taken := s.Reduce(code, d)
		app.discount = app.discount.Add(taken)
		app.items = append(app.items, s)
	}
	return app
}

// applyFixedAmount takes a fixed amount off the targeted subtotal, split
// proportionally to the targets' current prices and capped so no price goes
// negative.
func applyFixedAmount(code string, value decimal.Decimal, targets []*cart.ItemState) application {
	subtotal := decimal.Zero
	weights := make([]decimal.Decimal, len(targets))
	for i, s := range targets {
		weights[i] = s.CurrentPrice()
		subtotal = subtotal.Add(weights[i])
	}

	amount := decimal.Min(value, subtotal).Round(cart.Scale)
	shares := prorate(amount, weights)

	app := application{discount: decimal.Zero}
	for i, s := range targets {
		taken := s.Reduce(code, shares[i])
		app.discount = app.discount.Add(taken)
		app.items = append(app.items, s)
	}
	return app
}

// applyFreeItem zeroes the price contribution of up to value units of the
// cheapest targeted item (by current per-unit price).
func applyFreeItem(code string, value decimal.Decimal, targets []*cart.ItemState) application {
	var (
		cheapest *cart.ItemState
		unit     decimal.Decimal
	)
	for _, s := range targets {
		if s.Item.Quantity <= 0 || !s.CurrentPrice().IsPositive() {
			continue
		}
		u := s.CurrentPrice().Div(decimal.NewFromInt(int64(s.Item.Quantity)))
		if cheapest == nil || u.LessThan(unit) {
			cheapest, unit = s, u
		}
	}
	if cheapest == nil {
		return application{discount: decimal.Zero}
	}

	units := value.IntPart()
	if units > int64(cheapest.Item.Quantity) {
		units = int64(cheapest.Item.Quantity)
	}
	d := unit.Mul(decimal.NewFromInt(units)).Round(cart.Scale)
	taken := cheapest.Reduce(code, d)

	return application{discount: taken, items: []*cart.ItemState{cheapest}}
}

// applyLoyaltyPoints grants bonus points without changing any price. The
// affected items are recorded for downstream loyalty accounting.
func applyLoyaltyPoints(code string, value decimal.Decimal, targets []*cart.ItemState) application {
	app := application{discount: decimal.Zero, points: value.IntPart()}
	for _, s := range targets {
		s.Mark(code)
		app.items = append(app.items, s)
	}
	return app
}

// prorate splits amount across weights proportionally using a
// largest-remainder pass so the shares sum exactly to amount. Zero total
// weight yields all-zero shares.
func prorate(amount decimal.Decimal, weights []decimal.Decimal) []decimal.Decimal {
	shares := make([]decimal.Decimal, len(weights))
	total := decimal.Zero
	for _, w := range weights {
		total = total.Add(w)
	}
	if !total.IsPositive() || !amount.IsPositive() {
		for i := range shares {
			shares[i] = decimal.Zero
		}
		return shares
	}

	type slack struct {
		idx  int
		frac decimal.Decimal
	}
	remainders := make([]slack, len(weights))

	allocated := decimal.Zero
	for i, w := range weights {
		exact := amount.Mul(w).Div(total)
		shares[i] = exact.RoundFloor(cart.Scale)
		remainders[i] = slack{idx: i, frac: exact.Sub(shares[i])}
		allocated = allocated.Add(shares[i])
	}

	// Hand out the rounding leftover one smallest unit at a time, largest
	// fractional remainder first. Ties keep cart order for determinism.
	leftover := amount.Sub(allocated)
	step := decimal.New(1, -cart.Scale)
	for i := 1; i < len(remainders); i++ {
		for j := i; j > 0 && remainders[j].frac.GreaterThan(remainders[j-1].frac); j-- {
			remainders[j], remainders[j-1] = remainders[j-1], remainders[j]
		}
	}
	for _, r := range remainders {
		if !leftover.IsPositive() {
			break
		}
		take := decimal.Min(step, leftover)
		shares[r.idx] = shares[r.idx].Add(take)
		leftover = leftover.Sub(take)
	}
	// Any residue beyond one step per share goes to the largest remainder.
	if leftover.IsPositive() && len(remainders) > 0 {
		shares[remainders[0].idx] = shares[remainders[0].idx].Add(leftover)
	}

	return shares
}
