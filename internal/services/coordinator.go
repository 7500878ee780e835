package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"meatshop/internal/events"
	"meatshop/internal/inventory"
	"meatshop/internal/models"
	"meatshop/internal/repositories"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "meatshop/services"

// TransactionCoordinator turns each engine operation into one lock-ordered
// unit of work: the order row first, then its products in ascending id
// order. It is the only caller of the stock mutators.
type TransactionCoordinator struct {
	tm     repositories.TxManager
	clock  Clock
	tracer trace.Tracer
}

// NewTransactionCoordinator creates a new TransactionCoordinator.
func NewTransactionCoordinator(tm repositories.TxManager, clock Clock) *TransactionCoordinator {
	if clock == nil {
		clock = SystemClock{}
	}
	return &TransactionCoordinator{
		tm:     tm,
		clock:  clock,
		tracer: otel.Tracer(tracerName),
	}
}

// CreateOrder reserves every cart line and inserts the order, or changes
// nothing at all. lines must already be merged per product.
func (c *TransactionCoordinator) CreateOrder(ctx context.Context, customer CustomerInfo, lines []CartItem) (*models.Order, []events.Event, error) {
	ctx, span := c.tracer.Start(ctx, "order.create")
	defer span.End()
	span.SetAttributes(
		attribute.String("user.id", customer.UserID),
		attribute.Int("order.lines", len(lines)),
	)

	var (
		created *models.Order
		emitted []events.Event
	)
	err := c.tm.WithinTx(ctx, func(tx repositories.Tx) error {
		ids := make([]string, 0, len(lines))
		for _, line := range lines {
			ids = append(ids, line.ProductID)
		}
		products, err := tx.LockProducts(ids)
		if err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				return &ValidationError{Field: "items", Message: err.Error()}
			}
			return err
		}
		stock := lockedStock(products)

		now := c.clock.Now()
		order := &models.Order{
			ID:              uuid.New().String(),
			OrderNumber:     orderNumber(now),
			UserID:          customer.UserID,
			Status:          models.OrderStatusPending,
			PaymentMethod:   customer.PaymentMethod,
			PaymentStatus:   models.PaymentStatusPending,
			StockHold:       models.StockHoldReserved,
			DeliveryMode:    customer.DeliveryMode,
			CustomerName:    customer.Name,
			CustomerPhone:   customer.Phone,
			CustomerEmail:   customer.Email,
			DeliveryAddress: customer.DeliveryAddress,
			Notes:           customer.Notes,
		}
		total := decimal.Zero
		for _, line := range lines {
			p := products[line.ProductID]
			lineTotal := p.Price.Mul(decimal.NewFromInt(int64(line.Quantity)))
			order.Items = append(order.Items, models.OrderItem{
				ProductID:   p.ID,
				ProductName: p.Name,
				Quantity:    line.Quantity,
				UnitPrice:   p.Price,
				LineTotal:   lineTotal,
			})
			total = total.Add(lineTotal)
		}
		order.TotalAmount = total

		if err := stock.reserve(order.Items); err != nil {
			return err
		}
		if err := saveStock(tx, stock); err != nil {
			return err
		}
		if err := tx.CreateOrder(order); err != nil {
			return err
		}

		created = order
		emitted = []events.Event{events.ForOrder(events.OrderCreated, order, "", customer.UserID, now)}
		return nil
	})
	if err != nil {
		return nil, nil, recordFailure(span, err)
	}
	span.SetAttributes(attribute.String("order.id", created.ID))
	span.SetStatus(codes.Ok, "order created")
	return created, emitted, nil
}

// SubmitPayment records a payment proof for a QR order.
func (c *TransactionCoordinator) SubmitPayment(ctx context.Context, actor Actor, orderID, proofRef string) (*models.Order, []events.Event, error) {
	return c.mutate(ctx, orderID, orderMutation{
		op:         "order.submit_payment",
		event:      events.PaymentSubmitted,
		actorID:    actor.ID,
		needsStock: submitNeedsStock,
		apply: func(o *models.Order, stock lockedStock, now time.Time) error {
			if !actor.canView(o) {
				return fmt.Errorf("%w: %s may not pay for order %s", ErrForbidden, actor.ID, o.ID)
			}
			return submitPayment(o, stock, proofRef, now)
		},
	})
}

// ApprovePayment deducts the reserved stock of a submitted order.
func (c *TransactionCoordinator) ApprovePayment(ctx context.Context, orderID, approverID string) (*models.Order, []events.Event, error) {
	return c.mutate(ctx, orderID, orderMutation{
		op:         "order.approve_payment",
		event:      events.PaymentApproved,
		actorID:    approverID,
		needsStock: holdsReservation,
		apply: func(o *models.Order, stock lockedStock, now time.Time) error {
			return approvePayment(o, stock, approverID, now)
		},
	})
}

// RejectPayment releases the reserved stock of a submitted order.
func (c *TransactionCoordinator) RejectPayment(ctx context.Context, orderID, actorID, reason string) (*models.Order, []events.Event, error) {
	return c.mutate(ctx, orderID, orderMutation{
		op:         "order.reject_payment",
		event:      events.PaymentRejected,
		actorID:    actorID,
		reason:     strings.TrimSpace(reason),
		needsStock: holdsReservation,
		apply: func(o *models.Order, stock lockedStock, _ time.Time) error {
			return rejectPayment(o, stock, reason)
		},
	})
}

// CancelOrder cancels an order that has not had stock deducted yet.
func (c *TransactionCoordinator) CancelOrder(ctx context.Context, actor Actor, orderID string) (*models.Order, []events.Event, error) {
	return c.mutate(ctx, orderID, orderMutation{
		op:         "order.cancel",
		event:      events.OrderCancelled,
		actorID:    actor.ID,
		needsStock: holdsReservation,
		apply: func(o *models.Order, stock lockedStock, now time.Time) error {
			return cancelOrder(o, stock, actor, now)
		},
	})
}

// TransitionStatus moves an order to next through the generic entry point.
func (c *TransactionCoordinator) TransitionStatus(ctx context.Context, orderID, actorID string, next models.OrderStatus) (*models.Order, []events.Event, error) {
	return c.mutate(ctx, orderID, orderMutation{
		op:         "order.transition",
		event:      events.OrderStatusChanged,
		actorID:    actorID,
		needsStock: transitionNeedsStock(next),
		apply: func(o *models.Order, stock lockedStock, now time.Time) error {
			return transitionStatus(o, stock, next, now)
		},
	})
}

type orderMutation struct {
	op         string
	event      events.Type
	actorID    string
	reason     string
	needsStock func(o *models.Order) bool
	apply      func(o *models.Order, stock lockedStock, now time.Time) error
}

// mutate locks the order, re-reads its state and applies m. The state checks
// inside apply always see the committed state of the previous holder, so a
// duplicate request fails instead of acting twice.
func (c *TransactionCoordinator) mutate(ctx context.Context, orderID string, m orderMutation) (*models.Order, []events.Event, error) {
	ctx, span := c.tracer.Start(ctx, m.op)
	defer span.End()
	span.SetAttributes(attribute.String("order.id", orderID))

	var (
		updated *models.Order
		emitted []events.Event
	)
	err := c.tm.WithinTx(ctx, func(tx repositories.Tx) error {
		order, err := tx.LockOrder(orderID)
		if err != nil {
			return err
		}

		var stock lockedStock
		if m.needsStock != nil && m.needsStock(order) {
			products, err := tx.LockProducts(order.ProductIDs())
			if err != nil {
				return err
			}
			stock = products
		}

		previous, holdBefore := order.Status, order.StockHold
		now := c.clock.Now()
		if err := m.apply(order, stock, now); err != nil {
			return err
		}
		if err := saveStock(tx, stock); err != nil {
			return err
		}
		if err := tx.SaveOrder(order); err != nil {
			return err
		}

		evt := events.ForOrder(m.event, order, previous, m.actorID, now)
		evt.Reason = m.reason
		emitted = append(emitted, evt)
		if holdBefore != models.StockHoldDeducted && order.StockHold == models.StockHoldDeducted {
			emitted = append(emitted, lowStockEvents(stock, order.ID, now)...)
		}
		updated = order
		return nil
	})
	if err != nil {
		return nil, nil, recordFailure(span, err)
	}
	span.SetAttributes(attribute.String("order.status", string(updated.Status)))
	span.SetStatus(codes.Ok, "")
	return updated, emitted, nil
}

func saveStock(tx repositories.Tx, stock lockedStock) error {
	for _, p := range stock {
		if err := tx.SaveStock(p); err != nil {
			return err
		}
	}
	return nil
}

func lowStockEvents(stock lockedStock, orderID string, now time.Time) []events.Event {
	var out []events.Event
	for _, p := range stock {
		if inventory.Of(p).IsLowStock() {
			out = append(out, events.ForLowStock(p, orderID, now))
		}
	}
	return out
}

func recordFailure(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

// orderNumber formats ORD-YYYYMMDD-XXXXXXXX.
func orderNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:8])
	return fmt.Sprintf("ORD-%s-%s", now.Format("20060102"), suffix)
}
