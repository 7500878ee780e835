// Package inventory holds the stock arithmetic of a single product row.
//
// A Ledger never locks anything itself: callers hand it a product that is
// already held exclusively by the enclosing transaction.
package inventory

import (
	"errors"
	"fmt"
	"math"

	"meatshop/internal/models"
)

// Unbounded is reported as availability for products that do not track stock.
const Unbounded = math.MaxInt

// ErrInsufficientStock matches every *InsufficientStockError.
var ErrInsufficientStock = errors.New("insufficient stock")

// InsufficientStockError names the product that could not be served and the
// largest quantity that would have been accepted.
type InsufficientStockError struct {
	ProductID    string
	ProductName  string
	Requested    int
	MaxOrderable int
}

func (e *InsufficientStockError) Error() string {
	name := e.ProductID
	if e.ProductName != "" {
		name = fmt.Sprintf("%s (%s)", e.ProductName, e.ProductID)
	}
	return fmt.Sprintf("insufficient stock for product %s: requested %d, max orderable %d", name, e.Requested, e.MaxOrderable)
}

// Is lets errors.Is(err, ErrInsufficientStock) succeed.
func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// Ledger exposes the stock operations of one product.
type Ledger struct {
	p *models.Product
}

// Of wraps p. Mutations are applied to p in place.
func Of(p *models.Product) Ledger {
	return Ledger{p: p}
}

// Available is max(0, total - reserved), or Unbounded when stock is not tracked.
func (l Ledger) Available() int {
	if !l.p.TrackStock {
		return Unbounded
	}
	if avail := l.p.TotalStock - l.p.ReservedStock; avail > 0 {
		return avail
	}
	return 0
}

// MaxOrderable is the largest quantity a single order may take right now.
func (l Ledger) MaxOrderable() int {
	limit := l.orderCap()
	if !l.p.TrackStock {
		return limit
	}
	if avail := l.Available(); avail < limit {
		return avail
	}
	return limit
}

func (l Ledger) orderCap() int {
	if l.p.MaxOrderQuantity <= 0 {
		return Unbounded
	}
	return l.p.MaxOrderQuantity
}

// CanFulfill reports whether qty fits within MaxOrderable.
func (l Ledger) CanFulfill(qty int) bool {
	return qty <= l.MaxOrderable()
}

// Reserve holds qty units for an unconfirmed order.
func (l Ledger) Reserve(qty int) error {
	if qty <= 0 {
		return fmt.Errorf("reserve quantity must be positive, got %d", qty)
	}
	if !l.p.TrackStock {
		return nil
	}
	if !l.CanFulfill(qty) {
		return l.insufficient(qty, l.MaxOrderable())
	}
	l.p.ReservedStock += qty
	return nil
}

// Release gives back up to qty reserved units. It never drives the reserved
// counter below zero.
func (l Ledger) Release(qty int) {
	if !l.p.TrackStock || qty <= 0 {
		return
	}
	l.p.ReservedStock -= min(qty, l.p.ReservedStock)
}

// Deduct removes qty units from the shelf and consumes the matching reservation.
func (l Ledger) Deduct(qty int) error {
	if qty <= 0 {
		return fmt.Errorf("deduct quantity must be positive, got %d", qty)
	}
	if !l.p.TrackStock {
		return nil
	}
	if l.p.TotalStock < qty {
		return l.insufficient(qty, l.p.TotalStock)
	}
	l.p.TotalStock -= qty
	l.p.ReservedStock -= min(qty, l.p.ReservedStock)
	return nil
}

// IsLowStock reports whether the shelf count is at or under the threshold.
func (l Ledger) IsLowStock() bool {
	return l.p.TrackStock && l.p.TotalStock <= l.p.LowStockThreshold
}

// IsOutOfStock reports whether nothing is left to reserve.
func (l Ledger) IsOutOfStock() bool {
	return l.p.TrackStock && l.Available() <= 0
}

func (l Ledger) insufficient(requested, limit int) error {
	return &InsufficientStockError{
		ProductID:    l.p.ID,
		ProductName:  l.p.Name,
		Requested:    requested,
		MaxOrderable: max(0, limit),
	}
}

// Snapshot is a read-only view of a product's availability.
type Snapshot struct {
	TotalStock    int  `json:"total_stock"`
	ReservedStock int  `json:"reserved_stock"`
	TrackStock    bool `json:"track_stock"`
	Available     int  `json:"available"`
	MaxOrderable  int  `json:"max_orderable"`
	LowStock      bool `json:"low_stock"`
	OutOfStock    bool `json:"out_of_stock"`
}

// Snapshot reports the current availability figures. Unbounded values are
// reported as -1 so they survive JSON encoding unambiguously.
func (l Ledger) Snapshot() Snapshot {
	return Snapshot{
		TotalStock:    l.p.TotalStock,
		ReservedStock: l.p.ReservedStock,
		TrackStock:    l.p.TrackStock,
		Available:     wire(l.Available()),
		MaxOrderable:  wire(l.MaxOrderable()),
		LowStock:      l.IsLowStock(),
		OutOfStock:    l.IsOutOfStock(),
	}
}

func wire(n int) int {
	if n == Unbounded {
		return -1
	}
	return n
}
