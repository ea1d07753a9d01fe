// Package cart holds the cart snapshot an evaluation runs against: immutable
// line items plus the per-run mutable pricing state promotions write into.
package cart

import (
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Scale is the number of fractional digits monetary values are rounded to
// when a discount is written back into an item's current price. Rounding is
// half-up (decimal.Round rounds half away from zero, which is half-up for
// the non-negative amounts handled here).
const Scale = 6

// ErrEmptyCart is returned when an evaluation is requested for a cart with
// no items.
var ErrEmptyCart = errors.New("cart has no items")

// InvalidQuantityError indicates a line item has a non-positive quantity.
type InvalidQuantityError struct {
	ProductID string
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for product %s", e.ProductID)
}

// InvalidPriceError indicates a line item has a negative unit price.
type InvalidPriceError struct {
	ProductID string
}

func (e *InvalidPriceError) Error() string {
	return fmt.Sprintf("unit price must not be negative for product %s", e.ProductID)
}

// MissingProductIDError indicates a line item without a product identifier.
type MissingProductIDError struct {
	Index int
}

func (e *MissingProductIDError) Error() string {
	return fmt.Sprintf("item %d is missing a product id", e.Index)
}

// Item is an immutable cart line item.
type Item struct {
	ProductID string
	Name      string
	Quantity  int
	UnitPrice decimal.Decimal
	// FamilyID optionally names the product family the item belongs to,
	// in addition to any families resolved from the catalog.
	FamilyID  string
	SKUPoints int
}

// OriginalTotal returns unit price times quantity.
func (i Item) OriginalTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// TotalSKUPoints returns the loyalty points carried by the full line.
func (i Item) TotalSKUPoints() int {
	return i.SKUPoints * i.Quantity
}

// ItemState tracks the mutable evaluation state for one line item: the
// running discounted price and the set of promotion codes that already
// touched the item. It lives for exactly one evaluation run.
type ItemState struct {
	Item Item

	current decimal.Decimal
	applied map[string]struct{}
}

// CurrentPrice returns the line's running total after discounts so far.
func (s *ItemState) CurrentPrice() decimal.Decimal {
	return s.current
}

// Discounted reports whether the given promotion code already discounted
// this item during the current run.
func (s *ItemState) Discounted(code string) bool {
	_, ok := s.applied[code]
	return ok
}

// Reduce lowers the current price by amount, clamping at zero, and marks the
// item as touched by code. It returns the discount actually taken, which is
// smaller than amount only when the clamp fires.
func (s *ItemState) Reduce(code string, amount decimal.Decimal) decimal.Decimal {
	if amount.GreaterThan(s.current) {
		amount = s.current
	}
	amount = amount.Round(Scale)
	s.current = s.current.Sub(amount)
	s.applied[code] = struct{}{}
	return amount
}

// Mark records a promotion code on the item without changing its price.
// Used by rewards that have no monetary effect.
func (s *ItemState) Mark(code string) {
	s.applied[code] = struct{}{}
}

// Snapshot captures an item's mutable state so it can be restored later.
type Snapshot struct {
	price   decimal.Decimal
	applied map[string]struct{}
}

// Snapshot returns a copy of the item's mutable state.
func (s *ItemState) Snapshot() Snapshot {
	applied := make(map[string]struct{}, len(s.applied))
	for code := range s.applied {
		applied[code] = struct{}{}
	}
	return Snapshot{price: s.current, applied: applied}
}

// Restore resets the item's mutable state to a previously taken snapshot.
func (s *ItemState) Restore(snap Snapshot) {
	s.current = snap.price
	s.applied = make(map[string]struct{}, len(snap.applied))
	for code := range snap.applied {
		s.applied[code] = struct{}{}
	}
}

// Cart is the evaluation root: an ordered sequence of item states owned by
// a single evaluation run.
type Cart struct {
	CustomerID string
	Items      []*ItemState
}

// New validates the input items and builds a cart with fresh evaluation
// state. Validation failures surface before any evaluation begins.
func New(customerID string, items []Item) (*Cart, error) {
	if len(items) == 0 {
		return nil, ErrEmptyCart
	}

	states := make([]*ItemState, len(items))
	for i, item := range items {
		if item.ProductID == "" {
			return nil, &MissingProductIDError{Index: i}
		}
		if item.Quantity <= 0 {
			return nil, &InvalidQuantityError{ProductID: item.ProductID}
		}
		if item.UnitPrice.IsNegative() {
			return nil, &InvalidPriceError{ProductID: item.ProductID}
		}
		states[i] = &ItemState{
			Item:    item,
			current: item.OriginalTotal(),
			applied: make(map[string]struct{}),
		}
	}

	return &Cart{CustomerID: customerID, Items: states}, nil
}

// Subtotal returns the sum of original line totals, before any discount.
func (c *Cart) Subtotal() decimal.Decimal {
	sum := decimal.Zero
	for _, s := range c.Items {
		sum = sum.Add(s.Item.OriginalTotal())
	}
	return sum
}

// Total returns the sum of current line prices.
func (c *Cart) Total() decimal.Decimal {
	sum := decimal.Zero
	for _, s := range c.Items {
		sum = sum.Add(s.current)
	}
	return sum
}

// TotalQuantity returns the sum of line quantities.
func (c *Cart) TotalQuantity() int {
	total := 0
	for _, s := range c.Items {
		total += s.Item.Quantity
	}
	return total
}

// Clone returns a deep copy of the cart so single-promotion checks cannot
// mutate the caller's state.
func (c *Cart) Clone() *Cart {
	items := make([]*ItemState, len(c.Items))
	for i, s := range c.Items {
		clone := &ItemState{Item: s.Item}
		clone.Restore(s.Snapshot())
		items[i] = clone
	}
	return &Cart{CustomerID: c.CustomerID, Items: items}
}

// Reset restores every item to its undiscounted state.
func (c *Cart) Reset() {
	for _, s := range c.Items {
		s.current = s.Item.OriginalTotal()
		s.applied = make(map[string]struct{})
	}
}
