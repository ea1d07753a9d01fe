// Package handler exposes the pricing service over HTTP. Payloads are
// encoded with go-faster/jx; money travels as JSON numbers produced from
// decimal strings, never floats.
package handler

import (
	"context"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/xenking/promo-engine/internal/domain/cart"
	"github.com/xenking/promo-engine/internal/domain/pricing"
	"github.com/xenking/promo-engine/internal/domain/promotion"
)

// PricingService is the slice of the pricing service the HTTP layer needs.
type PricingService interface {
	Calculate(ctx context.Context, req pricing.Request) (*pricing.Result, error)
	EligiblePromotions(ctx context.Context, req pricing.Request) ([]promotion.Promotion, error)
	ValidateCode(ctx context.Context, req pricing.Request, code string) (bool, error)
	Breakdown(ctx context.Context, req pricing.Request, code string) (*pricing.Breakdown, error)
}

// Handler serves the pricing API.
type Handler struct {
	pricing PricingService

	evaluations metric.Int64Counter
	discounts   metric.Float64Histogram
}

// NewHandler constructs a Handler and registers its metric instruments on
// the given meter.
func NewHandler(service PricingService, meter metric.Meter) (*Handler, error) {
	evaluations, err := meter.Int64Counter("promo.evaluations",
		metric.WithDescription("Cart evaluations served"))
	if err != nil {
		return nil, errors.Wrap(err, "evaluations counter")
	}
	discounts, err := meter.Float64Histogram("promo.discount.amount",
		metric.WithDescription("Total discount granted per evaluation"))
	if err != nil {
		return nil, errors.Wrap(err, "discount histogram")
	}

	return &Handler{
		pricing:     service,
		evaluations: evaluations,
		discounts:   discounts,
	}, nil
}

// Register attaches the API routes to the mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/cart/calculate", h.Calculate)
	mux.HandleFunc("POST /api/promotions/eligible", h.Eligible)
	mux.HandleFunc("POST /api/promotions/validate", h.Validate)
	mux.HandleFunc("POST /api/promotions/breakdown", h.Breakdown)
}

// Calculate evaluates the full catalog against the posted cart and returns
// the priced result.
func (h *Handler) Calculate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, _, err := decodeRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.pricing.Calculate(ctx, req)
	if err != nil {
		h.writeServiceError(ctx, w, err)
		return
	}

	h.evaluations.Add(ctx, 1, metric.WithAttributes(
		attribute.Bool("discounted", res.Discount.IsPositive()),
	))
	h.discounts.Record(ctx, res.Discount.InexactFloat64())

	writeJSON(w, http.StatusOK, encodeResult(res))
}

// Eligible returns the promotions whose conditions pass against the posted
// cart, without applying any of them.
func (h *Handler) Eligible(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, _, err := decodeRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	promos, err := h.pricing.EligiblePromotions(ctx, req)
	if err != nil {
		h.writeServiceError(ctx, w, err)
		return
	}

	writeJSON(w, http.StatusOK, encodePromotions(promos))
}

// Validate reports whether a promo code would apply to the posted cart.
func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, code, err := decodeRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if code == "" {
		writeError(w, http.StatusBadRequest, "code required")
		return
	}

	valid, err := h.pricing.ValidateCode(ctx, req, code)
	if err != nil {
		h.writeServiceError(ctx, w, err)
		return
	}

	writeJSON(w, http.StatusOK, encodeValidation(code, valid))
}

// Breakdown reports what a single promo code would do to the posted cart.
func (h *Handler) Breakdown(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, code, err := decodeRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if code == "" {
		writeError(w, http.StatusBadRequest, "code required")
		return
	}

	b, err := h.pricing.Breakdown(ctx, req, code)
	if err != nil {
		h.writeServiceError(ctx, w, err)
		return
	}

	writeJSON(w, http.StatusOK, encodeBreakdown(b))
}

// writeServiceError maps domain errors to HTTP responses. Cart shape errors
// are client errors; everything else is a 500 with the detail kept in logs.
func (h *Handler) writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	if errors.Is(err, cart.ErrEmptyCart) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var (
		qtyErr   *cart.InvalidQuantityError
		priceErr *cart.InvalidPriceError
		idErr    *cart.MissingProductIDError
	)
	switch {
	case errors.As(err, &qtyErr), errors.As(err, &priceErr), errors.As(err, &idErr):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	zctx.From(ctx).Error("pricing request failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}
