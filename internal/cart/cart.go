package cart

import (
	"errors"

	"rollyshop/backend/internal/domain"
)

var (
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrVariantParent     = errors.New("variant parent is not sellable")
	ErrInvalidDiscount   = errors.New("invalid discount")
)

// Line is one cart entry. Stock and unit price are captured from the
// catalog snapshot at insertion time; the snapshot is immutable for the
// duration of a session, so later quantity checks reuse them.
type Line struct {
	ProductID     string
	Name          string
	UnitCents     int64
	StockQuantity int
	Quantity      int
	SubtotalCents int64
}

// Engine holds the ephemeral cart of one checkout session: an ordered
// set of lines, one per product, plus a cart-level discount. Every
// rejected operation leaves the cart exactly as it was. The engine is
// not safe for concurrent use; the owning session serializes access.
type Engine struct {
	lines         []Line
	index         map[string]int
	discountCents int64
}

func NewEngine() *Engine {
	return &Engine{index: make(map[string]int)}
}

// AddItem puts one unit of the product on the cart. An existing line
// for the same product is incremented rather than duplicated.
func (e *Engine) AddItem(p domain.Product) error {
	if !p.Sellable() {
		return ErrVariantParent
	}

	if i, ok := e.index[p.ID]; ok {
		line := e.lines[i]
		if line.Quantity+1 > p.StockQuantity {
			return ErrInsufficientStock
		}
		line.Quantity++
		line.StockQuantity = p.StockQuantity
		line.UnitCents = p.DiscountedPriceCents
		line.SubtotalCents = int64(line.Quantity) * line.UnitCents
		e.lines[i] = line
		return nil
	}

	if p.StockQuantity < 1 {
		return ErrInsufficientStock
	}

	e.index[p.ID] = len(e.lines)
	e.lines = append(e.lines, Line{
		ProductID:     p.ID,
		Name:          p.Name,
		UnitCents:     p.DiscountedPriceCents,
		StockQuantity: p.StockQuantity,
		Quantity:      1,
		SubtotalCents: p.DiscountedPriceCents,
	})
	return nil
}

// UpdateQuantity adjusts the line for productID by delta. A missing
// line is a no-op. Dropping to zero or below removes the line; growing
// past the product's stock is rejected and the line stays unchanged.
func (e *Engine) UpdateQuantity(productID string, delta int) error {
	i, ok := e.index[productID]
	if !ok {
		return nil
	}

	line := e.lines[i]
	newQty := line.Quantity + delta
	if newQty <= 0 {
		e.RemoveItem(productID)
		return nil
	}
	if newQty > line.StockQuantity {
		return ErrInsufficientStock
	}

	line.Quantity = newQty
	line.SubtotalCents = int64(newQty) * line.UnitCents
	e.lines[i] = line
	return nil
}

// RemoveItem deletes the line for productID. Removing an absent product
// is a no-op, not an error.
func (e *Engine) RemoveItem(productID string) {
	i, ok := e.index[productID]
	if !ok {
		return
	}
	e.lines = append(e.lines[:i], e.lines[i+1:]...)
	delete(e.index, productID)
	for j := i; j < len(e.lines); j++ {
		e.index[e.lines[j].ProductID] = j
	}
}

// SetDiscount sets the cart-level discount. Negative values are
// rejected rather than clamped. The discount is never validated against
// the subtotal; Totals clamps the final total at zero instead.
func (e *Engine) SetDiscount(cents int64) error {
	if cents < 0 {
		return ErrInvalidDiscount
	}
	e.discountCents = cents
	return nil
}

// Clear empties the cart and resets the discount, for use after a
// submitted sale or an explicit cancel.
func (e *Engine) Clear() {
	e.lines = nil
	e.index = make(map[string]int)
	e.discountCents = 0
}

// Totals derives the sale totals from current cart state. It is pure
// and recomputed on every call, so it can never serve stale values.
func (e *Engine) Totals() domain.SaleTotals {
	var subtotal int64
	var count int
	for _, line := range e.lines {
		subtotal += line.SubtotalCents
		count += line.Quantity
	}
	total := subtotal - e.discountCents
	if total < 0 {
		total = 0
	}
	return domain.SaleTotals{
		SubtotalCents: subtotal,
		DiscountCents: e.discountCents,
		TotalCents:    total,
		ItemCount:     count,
	}
}

func (e *Engine) DiscountCents() int64 {
	return e.discountCents
}

func (e *Engine) Empty() bool {
	return len(e.lines) == 0
}

// Lines returns a copy of the cart lines in insertion order.
func (e *Engine) Lines() []Line {
	out := make([]Line, len(e.lines))
	copy(out, e.lines)
	return out
}

// SaleLines builds the submit-sale payload from cart state. Totals are
// carried separately for display; the backend recomputes final pricing.
func (e *Engine) SaleLines() []domain.SaleLine {
	out := make([]domain.SaleLine, 0, len(e.lines))
	for _, line := range e.lines {
		out = append(out, domain.SaleLine{
			ProductID: line.ProductID,
			Name:      line.Name,
			Qty:       line.Quantity,
			UnitCents: line.UnitCents,
		})
	}
	return out
}

// View renders the cart for API responses.
func (e *Engine) View(sessionID string) domain.CartView {
	lines := make([]domain.CartLineView, 0, len(e.lines))
	for _, line := range e.lines {
		lines = append(lines, domain.CartLineView{
			ProductID:     line.ProductID,
			Name:          line.Name,
			UnitCents:     line.UnitCents,
			Quantity:      line.Quantity,
			SubtotalCents: line.SubtotalCents,
		})
	}
	return domain.CartView{
		SessionID: sessionID,
		Lines:     lines,
		Totals:    e.Totals(),
	}
}
