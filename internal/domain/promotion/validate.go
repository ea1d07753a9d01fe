package promotion

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// CatalogError flags a malformed promotion definition. Malformed promotions
// are skipped and recorded during evaluation, never fatal on their own.
type CatalogError struct {
	Code   string
	Reason string
}

func (e *CatalogError) Error() string {
	return fmt.Sprintf("promotion %s: %s", e.Code, e.Reason)
}

func (p *Promotion) invalid(format string, args ...any) *CatalogError {
	return &CatalogError{Code: p.Code, Reason: fmt.Sprintf(format, args...)}
}

// numericOps are the operators valid for threshold comparisons.
var numericOps = map[Operator]struct{}{
	OpGTE: {}, OpLTE: {}, OpEQ: {}, OpBetween: {},
}

// Validate checks the promotion aggregate for structural problems: unknown
// condition or reward types, operators paired with the wrong condition type,
// missing target references, unordered tiers. It returns the first problem
// found as a CatalogError.
func (p *Promotion) Validate() error {
	if p.Code == "" {
		return &CatalogError{Code: p.ID, Reason: "missing promo code"}
	}
	if p.EndsAt.Before(p.StartsAt) {
		return p.invalid("activation window ends before it starts")
	}
	if len(p.Rules) == 0 {
		return p.invalid("promotion has no rules")
	}

	for i, rule := range p.Rules {
		if err := p.validateRule(i, rule); err != nil {
			return err
		}
	}
	return nil
}

func (p *Promotion) validateRule(idx int, rule Rule) error {
	for _, cond := range rule.Conditions {
		if err := p.validateCondition(idx, cond); err != nil {
			return err
		}
	}

	if rule.Tiered() {
		switch rule.Metric {
		case MetricSubtotal, MetricQuantity:
		default:
			return p.invalid("rule %d: unknown qualifying metric %q", idx, rule.Metric)
		}
		if !sort.SliceIsSorted(rule.Tiers, func(a, b int) bool {
			return rule.Tiers[a].Threshold.LessThan(rule.Tiers[b].Threshold)
		}) {
			return p.invalid("rule %d: tiers are not sorted ascending by threshold", idx)
		}
		for t, tier := range rule.Tiers {
			if tier.Threshold.IsNegative() {
				return p.invalid("rule %d tier %d: negative threshold", idx, t)
			}
			if err := p.validateReward(idx, tier.Reward); err != nil {
				return err
			}
		}
		return nil
	}

	return p.validateReward(idx, rule.Reward)
}

func (p *Promotion) validateCondition(idx int, cond Condition) error {
	switch cond.Type {
	case ConditionCartSubtotal, ConditionCartQuantity:
		if _, ok := numericOps[cond.Operator]; !ok {
			return p.invalid("rule %d: operator %s is not valid for %s", idx, cond.Operator, cond.Type)
		}
	case ConditionLoyaltyLevel:
		switch cond.Operator {
		case OpGTE, OpLTE, OpEQ:
		default:
			return p.invalid("rule %d: operator %s is not valid for %s", idx, cond.Operator, cond.Type)
		}
	case ConditionProductInCart, ConditionCategoryInCart, ConditionCustomerGroup,
		ConditionDayOfWeek, ConditionPaymentMethod:
		if cond.Operator != OpIn {
			return p.invalid("rule %d: operator %s is not valid for %s", idx, cond.Operator, cond.Type)
		}
		if len(cond.Values) == 0 {
			return p.invalid("rule %d: %s condition has an empty value set", idx, cond.Type)
		}
	case ConditionTimeOfDay:
		if cond.Operator != OpBetween {
			return p.invalid("rule %d: operator %s is not valid for %s", idx, cond.Operator, cond.Type)
		}
		if len(cond.Values) != 2 {
			return p.invalid("rule %d: TIME_OF_DAY condition needs a start and end time", idx)
		}
	default:
		return p.invalid("rule %d: unknown condition type %q", idx, cond.Type)
	}
	return nil
}

func (p *Promotion) validateReward(idx int, reward Reward) error {
	switch reward.Type {
	case RewardPercentage:
		if reward.Value.IsNegative() || reward.Value.GreaterThan(hundred) {
			return p.invalid("rule %d: percentage value must be between 0 and 100", idx)
		}
	case RewardFixedAmount, RewardFreeItem, RewardLoyaltyPoints:
		if reward.Value.IsNegative() {
			return p.invalid("rule %d: reward value must not be negative", idx)
		}
	default:
		return p.invalid("rule %d: unknown reward type %q", idx, reward.Type)
	}

	switch reward.Target {
	case TargetCart:
	case TargetItem, TargetCategory, TargetFamily:
		if reward.TargetRef == "" {
			return p.invalid("rule %d: %s target requires a target reference", idx, reward.Target)
		}
	default:
		return p.invalid("rule %d: unknown reward target %q", idx, reward.Target)
	}
	return nil
}
