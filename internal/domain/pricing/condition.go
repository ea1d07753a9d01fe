// Package pricing implements the promotion evaluation engine: condition
// checking, tier resolution, reward application and conflict resolution over
// a cart snapshot. Evaluation is a pure function of its inputs; the only
// clock it sees is the caller-supplied evaluation time.
package pricing

import (
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/promo-engine/internal/domain/cart"
	"github.com/xenking/promo-engine/internal/domain/promotion"
)

// Input bundles everything an evaluation reads: the cart under evaluation,
// the customer attributes, the materialized family catalog and the
// evaluation time.
type Input struct {
	Cart     *cart.Cart
	Customer promotion.CustomerContext
	Families promotion.FamilySet
	At       time.Time
}

// ruleEligible reports whether every condition of the rule holds. An empty
// condition set is always eligible. Condition evaluation never mutates the
// cart, so rules can be re-checked during conflict resolution.
func ruleEligible(rule promotion.Rule, in Input) (bool, error) {
	for _, cond := range rule.Conditions {
		ok, err := evalCondition(cond, in)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// evalCondition dispatches on the condition type. Unknown types and operator
// mismatches surface as errors so the orchestrator can skip the promotion
// with a diagnostic.
func evalCondition(cond promotion.Condition, in Input) (bool, error) {
	switch cond.Type {
	case promotion.ConditionCartSubtotal:
		return compareNumeric(cond, in.Cart.Total())
	case promotion.ConditionCartQuantity:
		return compareNumeric(cond, decimal.NewFromInt(int64(in.Cart.TotalQuantity())))
	case promotion.ConditionProductInCart:
		return productInCart(cond, in, true), nil
	case promotion.ConditionCategoryInCart:
		return productInCart(cond, in, false), nil
	case promotion.ConditionCustomerGroup:
		return customerInGroup(cond, in.Customer, in.Families), nil
	case promotion.ConditionTimeOfDay:
		return timeOfDay(cond, in.At)
	case promotion.ConditionDayOfWeek:
		return dayOfWeek(cond, in.At), nil
	case promotion.ConditionLoyaltyLevel:
		return compareNumeric(cond, decimal.NewFromInt(int64(in.Customer.LoyaltyLevel)))
	case promotion.ConditionPaymentMethod:
		return memberOf(cond.Values, in.Customer.PaymentMethod), nil
	default:
		return false, errors.Errorf("unsupported condition type: %q", cond.Type)
	}
}

// compareNumeric applies the condition's operator to an actual value and the
// condition's threshold(s). BETWEEN is inclusive on both bounds.
func compareNumeric(cond promotion.Condition, actual decimal.Decimal) (bool, error) {
	switch cond.Operator {
	case promotion.OpGTE:
		return actual.GreaterThanOrEqual(cond.Value), nil
	case promotion.OpLTE:
		return actual.LessThanOrEqual(cond.Value), nil
	case promotion.OpEQ:
		return actual.Equal(cond.Value), nil
	case promotion.OpBetween:
		return actual.GreaterThanOrEqual(cond.Value) && actual.LessThanOrEqual(cond.UpperValue), nil
	default:
		return false, errors.Errorf("unsupported operator %q for condition %s", cond.Operator, cond.Type)
	}
}

// productInCart checks whether the cart holds enough units of products
// matching the condition's value set. Direct product id matches count only
// when includeID is true (PRODUCT_IN_CART); CATEGORY_IN_CART matches purely
// through family membership.
func productInCart(cond promotion.Condition, in Input, includeID bool) bool {
	matched := 0
	for _, s := range in.Cart.Items {
		if itemMatchesSet(s.Item, cond.Values, in.Families, includeID) {
			matched += s.Item.Quantity
		}
	}
	if matched == 0 {
		return false
	}
	minQty := cond.MinQuantity
	if minQty <= 0 {
		minQty = 1
	}
	return matched >= minQty
}

// itemMatchesSet reports whether the item matches any code in set, either by
// product id, by its declared family, or by family membership resolved from
// the catalog.
func itemMatchesSet(item cart.Item, set []string, families promotion.FamilySet, includeID bool) bool {
	for _, code := range set {
		if includeID && item.ProductID == code {
			return true
		}
		if item.FamilyID != "" && item.FamilyID == code {
			return true
		}
		if families.MemberOf(code, item.ProductID) {
			return true
		}
	}
	return false
}

// customerInGroup checks whether the customer's group codes intersect the
// condition's value set, directly or through a customer-group family.
func customerInGroup(cond promotion.Condition, customer promotion.CustomerContext, families promotion.FamilySet) bool {
	for _, group := range customer.GroupCodes {
		for _, code := range cond.Values {
			if group == code || families.MemberOf(code, group) {
				return true
			}
		}
	}
	return false
}

// timeOfDay checks the evaluation time against an inclusive [start, end]
// window of HH:MM values. A window whose start is after its end wraps past
// midnight.
func timeOfDay(cond promotion.Condition, at time.Time) (bool, error) {
	start, err := parseClock(cond.Values[0])
	if err != nil {
		return false, err
	}
	end, err := parseClock(cond.Values[1])
	if err != nil {
		return false, err
	}

	now := at.Hour()*60 + at.Minute()
	if start <= end {
		return now >= start && now <= end, nil
	}
	return now >= start || now <= end, nil
}

// parseClock converts an "HH:MM" string to minutes since midnight.
func parseClock(s string) (int, error) {
	h, m, ok := strings.Cut(s, ":")
	if !ok {
		return 0, errors.Errorf("invalid time of day %q", s)
	}
	hours, err := strconv.Atoi(h)
	if err != nil || hours < 0 || hours > 23 {
		return 0, errors.Errorf("invalid time of day %q", s)
	}
	minutes, err := strconv.Atoi(m)
	if err != nil || minutes < 0 || minutes > 59 {
		return 0, errors.Errorf("invalid time of day %q", s)
	}
	return hours*60 + minutes, nil
}

// dayOfWeek checks the evaluation weekday against the condition's value set
// of upper-case English weekday names.
func dayOfWeek(cond promotion.Condition, at time.Time) bool {
	return memberOf(cond.Values, strings.ToUpper(at.Weekday().String()))
}

func memberOf(set []string, value string) bool {
	for _, v := range set {
		if v == value {
			return true
		}
	}
	return false
}
