package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/promo-engine/internal/domain/promotion"
)

var _ promotion.CustomerRepository = (*CustomerRepository)(nil)

// CustomerRepository provides customer contexts backed by PostgreSQL.
type CustomerRepository struct {
	pool *pgxpool.Pool
}

// NewCustomerRepository returns a CustomerRepository that uses the given pool.
func NewCustomerRepository(pool *pgxpool.Pool) *CustomerRepository {
	return &CustomerRepository{pool: pool}
}

// Context returns the stored attributes for the customer. Unknown customers
// get a zero context: promotions gated on customer attributes simply do not
// match.
func (r *CustomerRepository) Context(ctx context.Context, customerID string) (promotion.CustomerContext, error) {
	var cc promotion.CustomerContext
	err := r.pool.QueryRow(ctx, `
		SELECT group_codes, loyalty_level, payment_method
		FROM customer_profiles
		WHERE customer_id = $1`, customerID,
	).Scan(&cc.GroupCodes, &cc.LoyaltyLevel, &cc.PaymentMethod)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return promotion.CustomerContext{}, nil
		}
		return promotion.CustomerContext{}, errors.Wrapf(err, "loading customer %q", customerID)
	}
	return cc, nil
}
