package pricing

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/xenking/promo-engine/internal/domain/cart"
	"github.com/xenking/promo-engine/internal/domain/promotion"
)

// speculative tracks one promotion applied ahead of conflict resolution.
type speculative struct {
	promo   *promotion.Promotion
	applied AppliedPromotion
	tier    *decimal.Decimal
	seq     int
}

// Evaluate runs the full pipeline over the catalog: filter by date and
// active flag, order by priority, apply each eligible promotion
// speculatively, then reconcile combinability groups and exclusivity before
// computing final totals.
//
// The two-pass apply-then-reconcile shape is required because a
// combinability group's winner is chosen by discount amount, which is only
// known after applying, and because later conditions (CART_SUBTOTAL) read
// the already-discounted total.
func Evaluate(catalog []promotion.Promotion, in Input) *Result {
	var diags []Diagnostic

	candidates := filterCandidates(catalog, in, &diags)
	specs := applyAll(candidates, in, &diags)

	reverted := make(map[int]bool)
	resolveCombinability(specs, reverted, &diags)
	resolveExclusivity(specs, reverted, &diags)

	survivors := make([]*speculative, 0, len(specs))
	for _, spec := range specs {
		if !reverted[spec.seq] {
			survivors = append(survivors, spec)
		}
	}

	// Revert by replay: restore every item to its original snapshot, then
	// re-apply only the survivors in priority order. Conditions are
	// side-effect-free, so re-checking them is safe; a survivor that no
	// longer qualifies once the reverted discounts are gone is dropped.
	if len(survivors) != len(specs) {
		in.Cart.Reset()
		kept := survivors[:0]
		for _, spec := range survivors {
			ap, tier, ok, err := applyPromotion(spec.promo, in)
			if err != nil || !ok {
				diags = append(diags, Diagnostic{
					Code:   spec.promo.Code,
					Reason: "no longer eligible after conflict resolution",
				})
				continue
			}
			spec.applied, spec.tier = ap, tier
			kept = append(kept, spec)
		}
		survivors = kept
	}

	return buildResult(in.Cart, survivors, diags)
}

// BreakdownFor runs the pipeline constrained to a single promotion. The
// caller supplies a throwaway cart; the engine applies speculatively and
// reports what the promotion would be worth.
func BreakdownFor(p *promotion.Promotion, in Input) *Breakdown {
	b := &Breakdown{Code: p.Code, Discount: decimal.Zero}

	if !p.ActiveAt(in.At) || p.Exhausted() {
		return b
	}
	if err := p.Validate(); err != nil {
		return b
	}

	ap, tier, ok, err := applyPromotion(p, in)
	if err != nil || !ok {
		return b
	}

	b.Eligible = true
	b.TierThreshold = tier
	b.Discount = ap.Discount
	b.LoyaltyPoints = ap.LoyaltyPoints
	b.Items = ap.Items
	return b
}

// EligibleOnly reports the promotions whose activation window, usage cap and
// rule conditions pass against the cart, without applying any reward.
func EligibleOnly(catalog []promotion.Promotion, in Input) []promotion.Promotion {
	var diags []Diagnostic
	candidates := filterCandidates(catalog, in, &diags)

	var eligible []promotion.Promotion
	for _, p := range candidates {
		for _, rule := range p.Rules {
			ok, err := ruleEligible(rule, in)
			if err == nil && ok {
				eligible = append(eligible, *p)
				break
			}
		}
	}
	return eligible
}

// filterCandidates drops inactive, out-of-window, exhausted and malformed
// promotions, recording diagnostics for the latter two, and returns the rest
// sorted by priority with promo code as the deterministic tie-break.
func filterCandidates(catalog []promotion.Promotion, in Input, diags *[]Diagnostic) []*promotion.Promotion {
	candidates := make([]*promotion.Promotion, 0, len(catalog))
	for i := range catalog {
		p := &catalog[i]
		if !p.ActiveAt(in.At) {
			continue
		}
		if p.Exhausted() {
			*diags = append(*diags, Diagnostic{Code: p.Code, Reason: "usage limit reached"})
			continue
		}
		if err := p.Validate(); err != nil {
			*diags = append(*diags, Diagnostic{Code: p.Code, Reason: err.Error()})
			continue
		}
		candidates = append(candidates, p)
	}

	sort.Slice(candidates, func(a, b int) bool {
		if candidates[a].Priority != candidates[b].Priority {
			return candidates[a].Priority < candidates[b].Priority
		}
		return candidates[a].Code < candidates[b].Code
	})
	return candidates
}

// applyAll speculatively applies each candidate in order. A promotion that
// fails mid-application (unknown type reaching past validation) is rolled
// back via snapshot restore and recorded as a diagnostic.
func applyAll(candidates []*promotion.Promotion, in Input, diags *[]Diagnostic) []*speculative {
	var specs []*speculative
	for _, p := range candidates {
		snap := snapshotCart(in.Cart)
		ap, tier, ok, err := applyPromotion(p, in)
		if err != nil {
			restoreCart(in.Cart, snap)
			*diags = append(*diags, Diagnostic{Code: p.Code, Reason: err.Error()})
			continue
		}
		if !ok {
			continue
		}
		specs = append(specs, &speculative{promo: p, applied: ap, tier: tier, seq: len(specs)})
	}
	return specs
}

// applyPromotion evaluates every rule of the promotion against the current
// cart state and applies the rewards of the rules that qualify. It reports
// whether anything was actually applied and, for tiered rules, the threshold
// of the first tier that fired.
func applyPromotion(p *promotion.Promotion, in Input) (AppliedPromotion, *decimal.Decimal, bool, error) {
	ap := AppliedPromotion{Code: p.Code, Description: p.Description, Discount: decimal.Zero}
	var (
		tierThreshold *decimal.Decimal
		applied       bool
	)
	seen := make(map[string]struct{})

	for _, rule := range p.Rules {
		ok, err := ruleEligible(rule, in)
		if err != nil {
			return ap, nil, false, err
		}
		if !ok {
			continue
		}

		reward := rule.Reward
		if rule.Tiered() {
			tier, found := resolveTier(rule, qualifyingMetric(rule, in.Cart))
			if !found {
				// Conditions passed but the cart misses even the lowest
				// threshold; the tier gate keeps the rule unapplied.
				continue
			}
			reward = tier.Reward
			if tierThreshold == nil {
				t := tier.Threshold
				tierThreshold = &t
			}
		}

		app, err := applyReward(p.Code, reward, in.Cart, in.Families)
		if err != nil {
			return ap, nil, false, err
		}
		if app.empty() {
			continue
		}

		applied = true
		ap.Discount = ap.Discount.Add(app.discount)
		ap.LoyaltyPoints += app.points
		for _, s := range app.items {
			if _, dup := seen[s.Item.ProductID]; dup {
				continue
			}
			seen[s.Item.ProductID] = struct{}{}
			ap.Items = append(ap.Items, s.Item.ProductID)
		}
	}

	return ap, tierThreshold, applied, nil
}

// resolveCombinability keeps, within each non-empty combinability group, only
// the promotion with the largest speculative discount; priority and then
// promo code break ties. The rest are marked reverted.
func resolveCombinability(specs []*speculative, reverted map[int]bool, diags *[]Diagnostic) {
	groups := make(map[string][]*speculative)
	var order []string
	for _, spec := range specs {
		g := spec.promo.CombinabilityGroup
		if g == "" {
			continue
		}
		if _, ok := groups[g]; !ok {
			order = append(order, g)
		}
		groups[g] = append(groups[g], spec)
	}
	sort.Strings(order)

	for _, g := range order {
		members := groups[g]
		if len(members) < 2 {
			continue
		}
		best := members[0]
		for _, m := range members[1:] {
			if betterInGroup(m, best) {
				best = m
			}
		}
		for _, m := range members {
			if m == best {
				continue
			}
			reverted[m.seq] = true
			*diags = append(*diags, Diagnostic{
				Code:   m.promo.Code,
				Reason: fmt.Sprintf("combinability group %s: lost to %s", g, best.promo.Code),
			})
		}
	}
}

// betterInGroup reports whether a beats b inside a combinability group:
// larger discount wins; on equal discounts the lower priority value (higher
// precedence) wins, then the lexicographically smaller code.
func betterInGroup(a, b *speculative) bool {
	switch a.applied.Discount.Cmp(b.applied.Discount) {
	case 1:
		return true
	case -1:
		return false
	}
	if a.promo.Priority != b.promo.Priority {
		return a.promo.Priority < b.promo.Priority
	}
	return a.promo.Code < b.promo.Code
}

// resolveExclusivity enforces the exclusive flag: if any surviving promotion
// is exclusive, only the highest-precedence exclusive one is kept.
func resolveExclusivity(specs []*speculative, reverted map[int]bool, diags *[]Diagnostic) {
	var winner *speculative
	for _, spec := range specs {
		if reverted[spec.seq] || !spec.promo.Exclusive {
			continue
		}
		if winner == nil ||
			spec.promo.Priority < winner.promo.Priority ||
			(spec.promo.Priority == winner.promo.Priority && spec.promo.Code < winner.promo.Code) {
			winner = spec
		}
	}
	if winner == nil {
		return
	}

	for _, spec := range specs {
		if spec == winner || reverted[spec.seq] {
			continue
		}
		reverted[spec.seq] = true
		*diags = append(*diags, Diagnostic{
			Code:   spec.promo.Code,
			Reason: fmt.Sprintf("suppressed by exclusive promotion %s", winner.promo.Code),
		})
	}
}

func buildResult(c *cart.Cart, survivors []*speculative, diags []Diagnostic) *Result {
	res := &Result{
		Subtotal:    c.Subtotal(),
		Total:       c.Total(),
		Discount:    decimal.Zero,
		Diagnostics: diags,
	}

	res.Items = make([]ItemResult, len(c.Items))
	for i, s := range c.Items {
		res.Items[i] = ItemResult{
			ProductID:     s.Item.ProductID,
			OriginalPrice: s.Item.OriginalTotal(),
			FinalPrice:    s.CurrentPrice(),
		}
	}

	for _, spec := range survivors {
		res.Applied = append(res.Applied, spec.applied)
		res.Discount = res.Discount.Add(spec.applied.Discount)
		res.LoyaltyPoints += spec.applied.LoyaltyPoints
	}
	return res
}

func snapshotCart(c *cart.Cart) []cart.Snapshot {
	snaps := make([]cart.Snapshot, len(c.Items))
	for i, s := range c.Items {
		snaps[i] = s.Snapshot()
	}
	return snaps
}

func restoreCart(c *cart.Cart, snaps []cart.Snapshot) {
	for i, s := range c.Items {
		s.Restore(snaps[i])
	}
}
