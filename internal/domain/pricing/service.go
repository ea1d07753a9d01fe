package pricing

import (
	"context"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/promo-engine/internal/domain/cart"
	"github.com/xenking/promo-engine/internal/domain/promotion"
)

// Request is the caller-supplied snapshot one evaluation runs against.
type Request struct {
	CustomerID string
	Items      []cart.Item
	// Customer overrides the stored customer context when non-nil.
	Customer *promotion.CustomerContext
	// At is the evaluation time; the zero value means "now".
	At time.Time
}

// Service wires the engine to its catalog and customer collaborators. It is
// stateless: every call builds its own cart graph, so concurrent calls need
// no locking.
type Service struct {
	catalog   promotion.Repository
	customers promotion.CustomerRepository
	now       func() time.Time
}

// NewService creates a pricing Service backed by the given providers.
func NewService(catalog promotion.Repository, customers promotion.CustomerRepository) *Service {
	return &Service{catalog: catalog, customers: customers, now: time.Now}
}

// Calculate evaluates the full active catalog against the cart and returns
// the priced result with the applied-promotion breakdown.
func (s *Service) Calculate(ctx context.Context, req Request) (*Result, error) {
	in, err := s.buildInput(ctx, req)
	if err != nil {
		return nil, err
	}

	catalog, err := s.catalog.ActivePromotions(ctx, in.At)
	if err != nil {
		return nil, errors.Wrap(err, "load catalog")
	}

	return Evaluate(catalog, in), nil
}

// EligiblePromotions returns the promotions whose conditions pass against
// the cart, without applying any discount.
func (s *Service) EligiblePromotions(ctx context.Context, req Request) ([]promotion.Promotion, error) {
	in, err := s.buildInput(ctx, req)
	if err != nil {
		return nil, err
	}

	catalog, err := s.catalog.ActivePromotions(ctx, in.At)
	if err != nil {
		return nil, errors.Wrap(err, "load catalog")
	}

	return EligibleOnly(catalog, in), nil
}

// ValidateCode reports whether the promo code would apply to the cart. An
// unknown code is simply not valid, never an error.
func (s *Service) ValidateCode(ctx context.Context, req Request, code string) (bool, error) {
	b, err := s.Breakdown(ctx, req, code)
	if err != nil {
		return false, err
	}
	return b.Eligible, nil
}

// Breakdown evaluates a single promo code against the cart and reports
// eligibility, the tier that fired, the discount amount and affected items.
// The evaluation runs on its own cart graph, so the caller's state is never
// touched. An unknown code yields an ineligible breakdown.
func (s *Service) Breakdown(ctx context.Context, req Request, code string) (*Breakdown, error) {
	in, err := s.buildInput(ctx, req)
	if err != nil {
		return nil, err
	}

	code = promotion.NormalizeCode(code)
	p, err := s.catalog.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, promotion.ErrPromotionNotFound) {
			return &Breakdown{Code: code}, nil
		}
		return nil, errors.Wrap(err, "lookup promotion")
	}

	return BreakdownFor(p, in), nil
}

// buildInput validates the cart input and assembles the evaluation input
// from the collaborators. Cart validation failures surface here, before any
// evaluation begins.
func (s *Service) buildInput(ctx context.Context, req Request) (Input, error) {
	c, err := cart.New(req.CustomerID, req.Items)
	if err != nil {
		return Input{}, err
	}

	at := req.At
	if at.IsZero() {
		at = s.now()
	}

	customer := promotion.CustomerContext{}
	if req.Customer != nil {
		customer = *req.Customer
	} else if req.CustomerID != "" {
		customer, err = s.customers.Context(ctx, req.CustomerID)
		if err != nil {
			return Input{}, errors.Wrap(err, "load customer context")
		}
	}

	families, err := s.catalog.Families(ctx)
	if err != nil {
		return Input{}, errors.Wrap(err, "load families")
	}

	return Input{Cart: c, Customer: customer, Families: families, At: at}, nil
}
