package repositories

import (
	"context"

	"meatshop/internal/models"
)

// Tx is the handle a unit of work passes to its callback. Everything staged
// through it becomes visible together on commit or not at all.
type Tx interface {
	// LockOrder takes the exclusive lock on an order row and returns its
	// current state, items included.
	LockOrder(id string) (*models.Order, error)
	// LockProducts takes exclusive locks on the given products in ascending
	// id order and returns them keyed by id. Call it at most once per Tx.
	LockProducts(ids []string) (map[string]*models.Product, error)
	// SaveStock stages the stock counters of a locked product.
	SaveStock(p *models.Product) error
	// CreateOrder stages a new order with its items.
	CreateOrder(order *models.Order) error
	// SaveOrder stages the scalar fields of a locked order. Items are immutable.
	SaveOrder(order *models.Order) error
}

// TxManager runs callbacks inside a single all-or-nothing transaction. A
// non-nil error from fn rolls everything back.
type TxManager interface {
	WithinTx(ctx context.Context, fn func(tx Tx) error) error
}
