package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"meatshop/internal/cache"
	"meatshop/internal/events"
	"meatshop/internal/models"
	"meatshop/internal/repositories"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CustomerInfo is the checkout form. UserID comes from the authenticated
// actor, never from the request body.
type CustomerInfo struct {
	UserID          string               `json:"-" validate:"required"`
	Name            string               `json:"customer_name" validate:"required,min=2,max=100"`
	Phone           string               `json:"customer_phone" validate:"required,min=6,max=32"`
	Email           string               `json:"customer_email" validate:"omitempty,email"`
	PaymentMethod   models.PaymentMethod `json:"payment_method" validate:"required,oneof=cash qr"`
	DeliveryMode    models.DeliveryMode  `json:"delivery_mode" validate:"required,oneof=pickup delivery"`
	DeliveryAddress string               `json:"delivery_address" validate:"required_if=DeliveryMode delivery,max=500"`
	Notes           string               `json:"notes" validate:"max=500"`
	IdempotencyKey  string               `json:"idempotency_key" validate:"omitempty,max=128"`
}

// CartItem is one requested cart line.
type CartItem struct {
	ProductID string `json:"product_id" validate:"required"`
	Quantity  int    `json:"quantity" validate:"gt=0"`
}

type checkoutRequest struct {
	Customer CustomerInfo
	Items    []CartItem `validate:"required,min=1,dive"`
}

// ProductCatalog looks up product metadata for display. It is never used
// for stock decisions.
type ProductCatalog interface {
	GetByID(ctx context.Context, id string) (*models.Product, error)
}

// EventDispatcher receives the events of a committed operation.
type EventDispatcher interface {
	Dispatch(ctx context.Context, evts ...events.Event)
}

// OrderItemView is an order line with current catalog data attached.
type OrderItemView struct {
	models.OrderItem
	Unit         string           `json:"unit,omitempty"`
	CurrentPrice *decimal.Decimal `json:"current_price,omitempty"`
}

// OrderView is an order as shown to its owner or an admin.
type OrderView struct {
	models.Order
	Items       []OrderItemView      `json:"items"`
	AllowedNext []models.OrderStatus `json:"allowed_next"`
}

// OrderService handles business logic related to orders.
type OrderService struct {
	orders      repositories.OrderRepository
	catalog     ProductCatalog
	coordinator *TransactionCoordinator
	dispatcher  EventDispatcher
	idempotency cache.IdempotencyStore
	validate    *validator.Validate
	logger      *zap.Logger
}

// NewOrderService creates a new OrderService.
func NewOrderService(
	orders repositories.OrderRepository,
	catalog ProductCatalog,
	coordinator *TransactionCoordinator,
	dispatcher EventDispatcher,
	logger *zap.Logger,
) *OrderService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OrderService{
		orders:      orders,
		catalog:     catalog,
		coordinator: coordinator,
		dispatcher:  dispatcher,
		validate:    newValidator(),
		logger:      logger,
	}
}

// WithIdempotency enables idempotent checkout through store.
func (s *OrderService) WithIdempotency(store cache.IdempotencyStore) *OrderService {
	s.idempotency = store
	return s
}

// CreateOrder reserves stock for the cart and creates a pending order. A
// repeated idempotency key returns the order created the first time.
func (s *OrderService) CreateOrder(ctx context.Context, customer CustomerInfo, items []CartItem) (*models.Order, error) {
	if err := s.validate.Struct(checkoutRequest{Customer: customer, Items: items}); err != nil {
		return nil, fromValidator(err)
	}
	lines := mergeCart(items)

	key := ""
	if customer.IdempotencyKey != "" && s.idempotency != nil {
		key = customer.UserID + ":" + customer.IdempotencyKey
		existingID, err := s.idempotency.Begin(ctx, key)
		switch {
		case errors.Is(err, cache.ErrInFlight):
			return nil, fmt.Errorf("%w: idempotency key %q", ErrDuplicateRequest, customer.IdempotencyKey)
		case err != nil:
			s.logger.Warn("idempotency store unavailable, continuing without it", zap.Error(err))
			key = ""
		case existingID != "":
			s.logger.Info("replaying idempotent checkout", zap.String("order_id", existingID))
			return s.orders.GetByID(ctx, existingID)
		}
	}

	order, evts, err := s.coordinator.CreateOrder(ctx, customer, lines)
	if err != nil {
		if key != "" {
			if abortErr := s.idempotency.Abort(ctx, key); abortErr != nil {
				s.logger.Warn("failed to free idempotency key", zap.String("key", key), zap.Error(abortErr))
			}
		}
		s.logger.Info("order creation rejected", zap.String("user_id", customer.UserID), zap.Error(err))
		return nil, err
	}
	if key != "" {
		if err := s.idempotency.Complete(ctx, key, order.ID); err != nil {
			s.logger.Warn("failed to record idempotency key", zap.String("key", key), zap.Error(err))
		}
	}

	s.logger.Info("order created",
		zap.String("order_id", order.ID),
		zap.String("order_number", order.OrderNumber),
		zap.String("total", order.TotalAmount.StringFixed(2)),
	)
	s.dispatch(ctx, evts)
	return order, nil
}

// SubmitPayment attaches a payment proof to a QR order of the actor.
func (s *OrderService) SubmitPayment(ctx context.Context, actor Actor, orderID, proofRef string) (*models.Order, error) {
	proofRef = strings.TrimSpace(proofRef)
	if proofRef == "" {
		return nil, invalidField("payment_proof_ref", "is required")
	}
	return s.finish(ctx, "payment submitted", orderID)(s.coordinator.SubmitPayment(ctx, actor, orderID, proofRef))
}

// ApprovePayment confirms a submitted payment and deducts the stock.
func (s *OrderService) ApprovePayment(ctx context.Context, actor Actor, orderID string) (*models.Order, error) {
	if !actor.IsAdmin() {
		return nil, fmt.Errorf("%w: only admins approve payments", ErrForbidden)
	}
	return s.finish(ctx, "payment approved", orderID)(s.coordinator.ApprovePayment(ctx, orderID, actor.ID))
}

// RejectPayment refuses a submitted payment and releases the stock.
func (s *OrderService) RejectPayment(ctx context.Context, actor Actor, orderID, reason string) (*models.Order, error) {
	if !actor.IsAdmin() {
		return nil, fmt.Errorf("%w: only admins reject payments", ErrForbidden)
	}
	if strings.TrimSpace(reason) == "" {
		return nil, ErrMissingReason
	}
	return s.finish(ctx, "payment rejected", orderID)(s.coordinator.RejectPayment(ctx, orderID, actor.ID, reason))
}

// CancelOrder cancels an order of the actor, or any order for an admin.
func (s *OrderService) CancelOrder(ctx context.Context, actor Actor, orderID string) (*models.Order, error) {
	return s.finish(ctx, "order cancelled", orderID)(s.coordinator.CancelOrder(ctx, actor, orderID))
}

// TransitionStatus moves an order along the fulfilment states.
func (s *OrderService) TransitionStatus(ctx context.Context, actor Actor, orderID, status string) (*models.Order, error) {
	if !actor.IsAdmin() {
		return nil, fmt.Errorf("%w: only admins change order status", ErrForbidden)
	}
	next, err := models.ParseOrderStatus(status)
	if err != nil {
		return nil, invalidField("status", "%v", err)
	}
	return s.finish(ctx, "order status changed", orderID)(s.coordinator.TransitionStatus(ctx, orderID, actor.ID, next))
}

// finish logs the outcome of a coordinator call and dispatches its events.
func (s *OrderService) finish(ctx context.Context, msg, orderID string) func(*models.Order, []events.Event, error) (*models.Order, error) {
	return func(order *models.Order, evts []events.Event, err error) (*models.Order, error) {
		if err != nil {
			s.logger.Info(msg+" refused", zap.String("order_id", orderID), zap.Error(err))
			return nil, err
		}
		s.logger.Info(msg,
			zap.String("order_id", order.ID),
			zap.String("status", string(order.Status)),
			zap.String("payment_status", string(order.PaymentStatus)),
		)
		s.dispatch(ctx, evts)
		return order, nil
	}
}

func (s *OrderService) dispatch(ctx context.Context, evts []events.Event) {
	if s.dispatcher == nil || len(evts) == 0 {
		return
	}
	// the transaction is committed; a cancelled request must not stop delivery
	s.dispatcher.Dispatch(context.WithoutCancel(ctx), evts...)
}

// GetOrder returns an order with catalog data for its owner or an admin.
func (s *OrderService) GetOrder(ctx context.Context, actor Actor, orderID string) (*OrderView, error) {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !actor.canView(order) {
		return nil, fmt.Errorf("%w: order %s belongs to another user", ErrForbidden, orderID)
	}

	view := &OrderView{Order: *order, AllowedNext: order.Status.AllowedNext()}
	view.Items = make([]OrderItemView, 0, len(order.Items))
	for _, item := range order.Items {
		iv := OrderItemView{OrderItem: item}
		if s.catalog != nil {
			if p, err := s.catalog.GetByID(ctx, item.ProductID); err == nil {
				price := p.Price
				iv.Unit, iv.CurrentPrice = p.Unit, &price
			} else {
				s.logger.Debug("catalog lookup failed", zap.String("product_id", item.ProductID), zap.Error(err))
			}
		}
		view.Items = append(view.Items, iv)
	}
	return view, nil
}

// ListOrders returns every order for admins and the actor's own otherwise.
func (s *OrderService) ListOrders(ctx context.Context, actor Actor, status string) ([]models.Order, error) {
	filter := repositories.OrderFilter{}
	if !actor.IsAdmin() {
		filter.UserID = actor.ID
	}
	if status != "" {
		parsed, err := models.ParseOrderStatus(status)
		if err != nil {
			return nil, invalidField("status", "%v", err)
		}
		filter.Status = parsed
	}
	return s.orders.GetAll(ctx, filter)
}

// mergeCart folds duplicate product lines together, keeping first-seen order.
func mergeCart(items []CartItem) []CartItem {
	index := make(map[string]int, len(items))
	merged := make([]CartItem, 0, len(items))
	for _, item := range items {
		if i, ok := index[item.ProductID]; ok {
			merged[i].Quantity += item.Quantity
			continue
		}
		index[item.ProductID] = len(merged)
		merged = append(merged, item)
	}
	return merged
}
