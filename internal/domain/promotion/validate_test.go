package promotion

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validPromotion() Promotion {
	return Promotion{
		ID:       "id-1",
		Code:     "SAVE10",
		Name:     "Save 10%",
		Active:   true,
		StartsAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		EndsAt:   time.Date(2025, 12, 31, 23, 59, 59, 0, time.UTC),
		Rules: []Rule{{
			Reward: Reward{
				Type:   RewardPercentage,
				Target: TargetCart,
				Value:  decimal.NewFromInt(10),
			},
		}},
	}
}

func TestPromotion_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Promotion)
		wantErr string
	}{
		{
			name:   "valid promotion",
			mutate: func(*Promotion) {},
		},
		{
			name:    "missing code",
			mutate:  func(p *Promotion) { p.Code = "" },
			wantErr: "missing promo code",
		},
		{
			name: "window ends before it starts",
			mutate: func(p *Promotion) {
				p.StartsAt, p.EndsAt = p.EndsAt, p.StartsAt
			},
			wantErr: "activation window",
		},
		{
			name:    "no rules",
			mutate:  func(p *Promotion) { p.Rules = nil },
			wantErr: "no rules",
		},
		{
			name: "unknown condition type",
			mutate: func(p *Promotion) {
				p.Rules[0].Conditions = []Condition{{Type: "BOGUS", Operator: OpGTE}}
			},
			wantErr: "unknown condition type",
		},
		{
			name: "operator invalid for membership condition",
			mutate: func(p *Promotion) {
				p.Rules[0].Conditions = []Condition{{
					Type:     ConditionProductInCart,
					Operator: OpGTE,
					Values:   []string{"p1"},
				}}
			},
			wantErr: "not valid for",
		},
		{
			name: "membership condition with empty value set",
			mutate: func(p *Promotion) {
				p.Rules[0].Conditions = []Condition{{
					Type:     ConditionCustomerGroup,
					Operator: OpIn,
				}}
			},
			wantErr: "empty value set",
		},
		{
			name: "time of day needs two values",
			mutate: func(p *Promotion) {
				p.Rules[0].Conditions = []Condition{{
					Type:     ConditionTimeOfDay,
					Operator: OpBetween,
					Values:   []string{"17:00"},
				}}
			},
			wantErr: "start and end time",
		},
		{
			name: "unknown reward type",
			mutate: func(p *Promotion) {
				p.Rules[0].Reward.Type = "BOGUS"
			},
			wantErr: "unknown reward type",
		},
		{
			name: "percentage above 100",
			mutate: func(p *Promotion) {
				p.Rules[0].Reward.Value = decimal.NewFromInt(150)
			},
			wantErr: "between 0 and 100",
		},
		{
			name: "item target without reference",
			mutate: func(p *Promotion) {
				p.Rules[0].Reward.Target = TargetItem
			},
			wantErr: "target reference",
		},
		{
			name: "unsorted tiers",
			mutate: func(p *Promotion) {
				reward := p.Rules[0].Reward
				p.Rules[0].Metric = MetricSubtotal
				p.Rules[0].Tiers = []Tier{
					{Threshold: decimal.NewFromInt(100), Reward: reward},
					{Threshold: decimal.NewFromInt(50), Reward: reward},
				}
			},
			wantErr: "not sorted",
		},
		{
			name: "tiered rule with unknown metric",
			mutate: func(p *Promotion) {
				reward := p.Rules[0].Reward
				p.Rules[0].Metric = "bogus"
				p.Rules[0].Tiers = []Tier{{Threshold: decimal.NewFromInt(50), Reward: reward}}
			},
			wantErr: "unknown qualifying metric",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validPromotion()
			tt.mutate(&p)

			err := p.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			var catErr *CatalogError
			require.ErrorAs(t, err, &catErr)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestPromotion_ActiveAt(t *testing.T) {
	p := validPromotion()

	assert.True(t, p.ActiveAt(time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)))
	// Window bounds are inclusive.
	assert.True(t, p.ActiveAt(p.StartsAt))
	assert.True(t, p.ActiveAt(p.EndsAt))
	assert.False(t, p.ActiveAt(p.StartsAt.Add(-time.Second)))
	assert.False(t, p.ActiveAt(p.EndsAt.Add(time.Second)))

	p.Active = false
	assert.False(t, p.ActiveAt(time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)))
}

func TestPromotion_Exhausted(t *testing.T) {
	p := validPromotion()
	assert.False(t, p.Exhausted())

	p.MaxUses, p.Uses = 100, 100
	assert.True(t, p.Exhausted())

	p.MaxUses = 0
	assert.False(t, p.Exhausted(), "zero max uses means unlimited")
}

func TestFamilySet_MemberOf(t *testing.T) {
	fs := FamilySet{
		"SNACKS": {Code: "SNACKS", Type: FamilyProduct, Members: map[string]struct{}{"p1": {}, "p2": {}}},
	}

	assert.True(t, fs.MemberOf("SNACKS", "p1"))
	assert.False(t, fs.MemberOf("SNACKS", "p9"))
	assert.False(t, fs.MemberOf("UNKNOWN", "p1"))
}

func TestNormalizeCode(t *testing.T) {
	assert.Equal(t, "SAVE10", NormalizeCode("  save10 "))
}
