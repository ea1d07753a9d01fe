// Command seed-db loads a JSON catalog seed (promotions, families, customer
// profiles) into the database, running migrations first.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/promo-engine/internal/domain/promotion"
	"github.com/xenking/promo-engine/internal/storage/postgres"
)

type rewardJSON struct {
	Type      string          `json:"type"`
	Target    string          `json:"target"`
	TargetRef string          `json:"targetRef"`
	Value     decimal.Decimal `json:"value"`
}

type conditionJSON struct {
	Type        string          `json:"type"`
	Operator    string          `json:"operator"`
	Value       decimal.Decimal `json:"value"`
	UpperValue  decimal.Decimal `json:"upperValue"`
	Values      []string        `json:"values"`
	MinQuantity int             `json:"minQuantity"`
}

type tierJSON struct {
	Threshold decimal.Decimal `json:"threshold"`
	Reward    rewardJSON      `json:"reward"`
}

type ruleJSON struct {
	Metric     string          `json:"metric"`
	Conditions []conditionJSON `json:"conditions"`
	Reward     *rewardJSON     `json:"reward"`
	Tiers      []tierJSON      `json:"tiers"`
}

type promotionJSON struct {
	Code               string     `json:"code"`
	Name               string     `json:"name"`
	Description        string     `json:"description"`
	Active             *bool      `json:"active"`
	StartsAt           time.Time  `json:"startsAt"`
	EndsAt             time.Time  `json:"endsAt"`
	Priority           int        `json:"priority"`
	CombinabilityGroup string     `json:"combinabilityGroup"`
	Exclusive          bool       `json:"exclusive"`
	MaxUses            int        `json:"maxUses"`
	Rules              []ruleJSON `json:"rules"`
}

type familyJSON struct {
	Code    string   `json:"code"`
	Type    string   `json:"type"`
	Members []string `json:"members"`
}

type customerJSON struct {
	CustomerID    string   `json:"customerId"`
	GroupCodes    []string `json:"groupCodes"`
	LoyaltyLevel  int      `json:"loyaltyLevel"`
	PaymentMethod string   `json:"paymentMethod"`
}

type seedFile struct {
	Promotions []promotionJSON `json:"promotions"`
	Families   []familyJSON    `json:"families"`
	Customers  []customerJSON  `json:"customers"`
}

func main() {
	var (
		databaseURL string
		seedPath    string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&seedPath, "seed-file", "db/seed/catalog.json", "path to catalog seed JSON file")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, seedPath); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, seedPath string) error {
	slog.Info("reading seed file", slog.String("path", seedPath))

	data, err := os.ReadFile(seedPath)
	if err != nil {
		return errors.Wrap(err, "read seed file")
	}

	var seed seedFile
	if err := json.Unmarshal(data, &seed); err != nil {
		return errors.Wrap(err, "parse seed JSON")
	}

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	writer := postgres.NewWriter(pool)

	slog.Info("upserting promotions", slog.Int("count", len(seed.Promotions)))
	for _, pj := range seed.Promotions {
		p := toPromotion(pj)
		if err := writer.UpsertPromotion(ctx, p); err != nil {
			return errors.Wrapf(err, "upsert promotion %s", pj.Code)
		}
		slog.Info("upserted promotion", slog.String("code", p.Code), slog.String("name", p.Name))
	}

	slog.Info("upserting families", slog.Int("count", len(seed.Families)))
	for _, fj := range seed.Families {
		f := promotion.Family{
			Code:    fj.Code,
			Type:    promotion.FamilyType(fj.Type),
			Members: make(map[string]struct{}, len(fj.Members)),
		}
		for _, m := range fj.Members {
			f.Members[m] = struct{}{}
		}
		if err := writer.UpsertFamily(ctx, f); err != nil {
			return errors.Wrapf(err, "upsert family %s", fj.Code)
		}
	}

	slog.Info("upserting customer profiles", slog.Int("count", len(seed.Customers)))
	for _, cj := range seed.Customers {
		cc := promotion.CustomerContext{
			GroupCodes:    cj.GroupCodes,
			LoyaltyLevel:  cj.LoyaltyLevel,
			PaymentMethod: cj.PaymentMethod,
		}
		if err := writer.UpsertCustomerProfile(ctx, cj.CustomerID, cc); err != nil {
			return errors.Wrapf(err, "upsert customer %s", cj.CustomerID)
		}
	}

	return nil
}

func toPromotion(pj promotionJSON) *promotion.Promotion {
	active := true
	if pj.Active != nil {
		active = *pj.Active
	}
	priority := pj.Priority
	if priority == 0 {
		priority = 100
	}

	p := &promotion.Promotion{
		Code:               pj.Code,
		Name:               pj.Name,
		Description:        pj.Description,
		Active:             active,
		StartsAt:           pj.StartsAt,
		EndsAt:             pj.EndsAt,
		Priority:           priority,
		CombinabilityGroup: pj.CombinabilityGroup,
		Exclusive:          pj.Exclusive,
		MaxUses:            pj.MaxUses,
	}

	for _, rj := range pj.Rules {
		rule := promotion.Rule{Metric: promotion.Metric(rj.Metric)}
		for _, cj := range rj.Conditions {
			rule.Conditions = append(rule.Conditions, promotion.Condition{
				Type:        promotion.ConditionType(cj.Type),
				Operator:    promotion.Operator(cj.Operator),
				Value:       cj.Value,
				UpperValue:  cj.UpperValue,
				Values:      cj.Values,
				MinQuantity: cj.MinQuantity,
			})
		}
		if rj.Reward != nil {
			rule.Reward = toReward(*rj.Reward)
		}
		for _, tj := range rj.Tiers {
			rule.Tiers = append(rule.Tiers, promotion.Tier{
				Threshold: tj.Threshold,
				Reward:    toReward(tj.Reward),
			})
		}
		p.Rules = append(p.Rules, rule)
	}

	return p
}

func toReward(rj rewardJSON) promotion.Reward {
	return promotion.Reward{
		Type:      promotion.RewardType(rj.Type),
		Target:    promotion.TargetType(rj.Target),
		TargetRef: rj.TargetRef,
		Value:     rj.Value,
	}
}
