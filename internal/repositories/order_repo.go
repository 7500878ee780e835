package repositories

import (
	"context"

	"meatshop/internal/models"
)

// OrderFilter narrows order listings. Zero values match everything.
type OrderFilter struct {
	UserID string
	Status models.OrderStatus
}

// OrderRepository defines the read side of order data access. Orders are
// written only inside a unit of work.
type OrderRepository interface {
	GetAll(ctx context.Context, filter OrderFilter) ([]models.Order, error)
	GetByID(ctx context.Context, id string) (*models.Order, error)
}
