package services

import (
	"context"
	"fmt"

	"meatshop/internal/inventory"
	"meatshop/internal/models"
	"meatshop/internal/repositories"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// ProductView is a product together with its computed availability.
type ProductView struct {
	models.Product
	Stock inventory.Snapshot `json:"stock"`
}

func viewOf(p models.Product) ProductView {
	return ProductView{Product: p, Stock: inventory.Of(&p).Snapshot()}
}

// ProductService handles business logic related to products.
type ProductService struct {
	repo     repositories.ProductRepository
	validate *validator.Validate
	logger   *zap.Logger
}

// NewProductService creates a new ProductService.
func NewProductService(repo repositories.ProductRepository, logger *zap.Logger) *ProductService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProductService{
		repo:     repo,
		validate: newValidator(),
		logger:   logger,
	}
}

// GetAllProducts retrieves all products.
func (s *ProductService) GetAllProducts(ctx context.Context) ([]ProductView, error) {
	products, err := s.repo.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	views := make([]ProductView, 0, len(products))
	for _, p := range products {
		views = append(views, viewOf(p))
	}
	return views, nil
}

// GetProductByID retrieves a single product by its ID.
func (s *ProductService) GetProductByID(ctx context.Context, id string) (*ProductView, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	view := viewOf(*p)
	return &view, nil
}

// CreateProduct adds a product to the catalog. A new product never starts
// with reserved stock.
func (s *ProductService) CreateProduct(ctx context.Context, product *models.Product) error {
	if err := s.validate.Struct(product); err != nil {
		return fromValidator(err)
	}
	if !product.Price.IsPositive() {
		return invalidField("price", "must be greater than zero")
	}
	product.ReservedStock = 0

	if err := s.repo.Create(ctx, product); err != nil {
		return fmt.Errorf("failed to create product: %w", err)
	}
	s.logger.Info("product created", zap.String("product_id", product.ID), zap.String("name", product.Name))
	return nil
}
