// Package promotion defines the catalog value objects the pricing engine
// evaluates: promotions with rules, conditions, threshold tiers, rewards and
// the family sets used for membership matching. The types are plain data,
// fully materialized before evaluation starts; behavior beyond structural
// validation lives in the pricing package.
package promotion

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrPromotionNotFound is returned when a promo code does not match any
// catalog promotion.
var ErrPromotionNotFound = errors.New("promotion not found")

// ConditionType enumerates the predicates a rule may require.
type ConditionType string

const (
	ConditionCartSubtotal   ConditionType = "CART_SUBTOTAL"
	ConditionCartQuantity   ConditionType = "CART_QUANTITY"
	ConditionProductInCart  ConditionType = "PRODUCT_IN_CART"
	ConditionCategoryInCart ConditionType = "CATEGORY_IN_CART"
	ConditionCustomerGroup  ConditionType = "CUSTOMER_IN_GROUP"
	ConditionTimeOfDay      ConditionType = "TIME_OF_DAY"
	ConditionDayOfWeek      ConditionType = "DAY_OF_WEEK"
	ConditionLoyaltyLevel   ConditionType = "CUSTOMER_LOYALTY_LEVEL"
	ConditionPaymentMethod  ConditionType = "PAYMENT_METHOD"
)

// Operator enumerates the comparison operators conditions may use. Not every
// operator is valid for every condition type; Validate enforces the pairing.
type Operator string

const (
	OpGTE     Operator = "GTE"
	OpLTE     Operator = "LTE"
	OpEQ      Operator = "EQ"
	OpIn      Operator = "IN"
	OpBetween Operator = "BETWEEN"
)

// Condition is a pure predicate over (cart, customer context, evaluation
// time). Numeric comparisons use Value (and UpperValue for BETWEEN);
// membership tests use Values.
type Condition struct {
	Type     ConditionType
	Operator Operator
	// Value is the numeric threshold for CART_SUBTOTAL, CART_QUANTITY and
	// CUSTOMER_LOYALTY_LEVEL comparisons.
	Value decimal.Decimal
	// UpperValue is the inclusive upper bound for BETWEEN comparisons.
	UpperValue decimal.Decimal
	// Values is the membership set: product or family codes, group codes,
	// weekday names, payment methods, or an HH:MM pair for TIME_OF_DAY.
	Values []string
	// MinQuantity optionally requires a minimum matched quantity for
	// PRODUCT_IN_CART and CATEGORY_IN_CART.
	MinQuantity int
}

// RewardType enumerates the supported reward strategies.
type RewardType string

const (
	RewardPercentage    RewardType = "PERCENTAGE_DISCOUNT"
	RewardFixedAmount   RewardType = "FIXED_AMOUNT_DISCOUNT"
	RewardFreeItem      RewardType = "FREE_ITEM"
	RewardLoyaltyPoints RewardType = "LOYALTY_POINTS_BONUS"
)

// TargetType enumerates what part of the cart a reward applies to.
type TargetType string

const (
	TargetCart     TargetType = "CART"
	TargetItem     TargetType = "ITEM"
	TargetCategory TargetType = "CATEGORY"
	TargetFamily   TargetType = "FAMILY"
)

// Reward describes the effect of an applied rule or tier.
type Reward struct {
	Type   RewardType
	Target TargetType
	// TargetRef names the product, category or family the reward targets.
	// Required for every target except CART.
	TargetRef string
	// Value is a percentage (0-100), a fixed currency amount, a free-item
	// unit count, or a loyalty point count, depending on Type.
	Value decimal.Decimal
}

// Metric names the numeric value tier thresholds are compared against.
type Metric string

const (
	MetricSubtotal Metric = "subtotal"
	MetricQuantity Metric = "quantity"
)

// Tier pairs a qualifying threshold with the reward granted once the rule's
// metric reaches it.
type Tier struct {
	Threshold decimal.Decimal
	Reward    Reward
}

// Rule groups conditions (AND semantics) with either a single inline reward
// or an ordered list of threshold tiers.
type Rule struct {
	Conditions []Condition
	// Metric selects the qualifying value for tiered rules.
	Metric Metric
	// Tiers, sorted ascending by threshold. Empty for non-tiered rules.
	Tiers []Tier
	// Reward is the rule's single reward when Tiers is empty.
	Reward Reward
}

// Tiered reports whether the rule gates its reward behind threshold tiers.
func (r Rule) Tiered() bool {
	return len(r.Tiers) > 0
}

// Promotion is a catalog aggregate: identity, activation window, conflict
// attributes and rules.
type Promotion struct {
	ID          string
	Code        string
	Name        string
	Description string
	Active      bool
	// StartsAt and EndsAt bound the inclusive activation window.
	StartsAt time.Time
	EndsAt   time.Time
	// Priority orders evaluation; lower values run first and win ties.
	Priority int
	// CombinabilityGroup makes promotions sharing a non-empty group mutually
	// exclusive; only the best performer survives.
	CombinabilityGroup string
	// Exclusive suppresses every other promotion when this one applies.
	Exclusive bool
	// MaxUses caps redemptions; zero means unlimited. Uses is the current
	// redemption count.
	MaxUses int
	Uses    int

	Rules []Rule
}

// ActiveAt reports whether the promotion is active and its window contains t.
func (p *Promotion) ActiveAt(t time.Time) bool {
	if !p.Active {
		return false
	}
	if t.Before(p.StartsAt) || t.After(p.EndsAt) {
		return false
	}
	return true
}

// Exhausted reports whether the promotion's usage cap is spent.
func (p *Promotion) Exhausted() bool {
	return p.MaxUses > 0 && p.Uses >= p.MaxUses
}

// FamilyType distinguishes what kind of codes a family groups.
type FamilyType string

const (
	FamilyProduct       FamilyType = "PRODUCT_FAMILY"
	FamilyCategory      FamilyType = "CATEGORY"
	FamilyCustomerGroup FamilyType = "CUSTOMER_GROUP"
)

// Family is a named member set used to match products or customers without
// enumerating every code in every rule.
type Family struct {
	Code    string
	Type    FamilyType
	Members map[string]struct{}
}

// Contains reports whether code is a member of the family.
func (f Family) Contains(code string) bool {
	_, ok := f.Members[code]
	return ok
}

// FamilySet is the materialized family catalog keyed by family code.
type FamilySet map[string]Family

// MemberOf reports whether code belongs to the named family. Unknown family
// codes match nothing.
func (fs FamilySet) MemberOf(familyCode, code string) bool {
	f, ok := fs[familyCode]
	return ok && f.Contains(code)
}

// CustomerContext carries the customer attributes conditions test against.
type CustomerContext struct {
	GroupCodes    []string
	LoyaltyLevel  int
	PaymentMethod string
}

// NormalizeCode upper-cases a promo code for case-insensitive matching.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Repository provides read access to the promotion catalog.
type Repository interface {
	// ActivePromotions returns every promotion whose activation window
	// contains the given time, with rules, conditions, tiers and rewards
	// materialized.
	ActivePromotions(ctx context.Context, at time.Time) ([]Promotion, error)
	// FindByCode looks up a single promotion aggregate by its promo code.
	// Returns ErrPromotionNotFound when no promotion carries the code.
	FindByCode(ctx context.Context, code string) (*Promotion, error)
	// Families returns the materialized family catalog.
	Families(ctx context.Context) (FamilySet, error)
}

// CustomerRepository provides the customer context for a customer id.
type CustomerRepository interface {
	// Context returns the stored customer attributes. Unknown customers get
	// a zero context rather than an error.
	Context(ctx context.Context, customerID string) (CustomerContext, error)
}
