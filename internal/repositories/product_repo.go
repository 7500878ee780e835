package repositories

import (
	"context"

	"meatshop/internal/models"
)

// ProductRepository defines the read side of product data access plus
// catalog creation. Stock counters are never written through it.
type ProductRepository interface {
	GetAll(ctx context.Context) ([]models.Product, error)
	GetByID(ctx context.Context, id string) (*models.Product, error)
	Create(ctx context.Context, product *models.Product) error
}
