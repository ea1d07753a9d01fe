package pricing

import (
	"github.com/shopspring/decimal"
)

// AppliedPromotion records one promotion that survived conflict resolution:
// its total monetary discount, any loyalty points granted, and the products
// it touched.
type AppliedPromotion struct {
	Code          string
	Description   string
	Discount      decimal.Decimal
	LoyaltyPoints int64
	// Items lists the product ids the promotion affected, in cart order.
	Items []string
}

// Diagnostic records a promotion that was skipped or reverted, with the
// reason. Diagnostics never abort an evaluation.
type Diagnostic struct {
	Code   string
	Reason string
}

// ItemResult is the per-line outcome of an evaluation.
type ItemResult struct {
	ProductID     string
	OriginalPrice decimal.Decimal
	FinalPrice    decimal.Decimal
}

// Result is the full outcome of one evaluation run. Evaluation is
// deterministic: the same cart, catalog and evaluation time always produce
// an identical Result.
type Result struct {
	Items         []ItemResult
	Subtotal      decimal.Decimal
	Total         decimal.Decimal
	Discount      decimal.Decimal
	LoyaltyPoints int64
	Applied       []AppliedPromotion
	Diagnostics   []Diagnostic
}

// Breakdown is the single-promotion report produced for a promo code: whether
// the promotion would apply to the cart, through which tier, and what it
// would be worth.
type Breakdown struct {
	Code     string
	Eligible bool
	// TierThreshold is set when a tiered rule applied; nil otherwise.
	TierThreshold *decimal.Decimal
	Discount      decimal.Decimal
	LoyaltyPoints int64
	Items         []string
}
