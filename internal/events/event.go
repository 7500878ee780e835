// Package events carries the domain events the order engine emits once a
// transaction has committed, and the fan-out to their consumers.
package events

import (
	"strconv"
	"time"

	"meatshop/internal/models"

	"github.com/google/uuid"
)

// Type names a domain event. It doubles as the broker routing key.
type Type string

const (
	OrderCreated       Type = "order.created"
	PaymentSubmitted   Type = "order.payment_submitted"
	PaymentApproved    Type = "order.payment_approved"
	PaymentRejected    Type = "order.payment_rejected"
	OrderCancelled     Type = "order.cancelled"
	OrderStatusChanged Type = "order.status_changed"
	LowStockDetected   Type = "product.low_stock"
)

// Event is a single committed change.
type Event struct {
	ID             string             `json:"id"`
	Type           Type               `json:"type"`
	OrderID        string             `json:"order_id,omitempty"`
	OrderNumber    string             `json:"order_number,omitempty"`
	UserID         string             `json:"user_id,omitempty"`
	CustomerEmail  string             `json:"customer_email,omitempty"`
	PreviousStatus models.OrderStatus `json:"previous_status,omitempty"`
	CurrentStatus  models.OrderStatus `json:"current_status,omitempty"`
	ActorID        string             `json:"actor_id,omitempty"`
	Reason         string             `json:"reason,omitempty"`
	OccurredAt     time.Time          `json:"occurred_at"`
	Metadata       map[string]string  `json:"metadata,omitempty"`
}

// ForOrder builds an event describing order after a change from previous.
func ForOrder(t Type, order *models.Order, previous models.OrderStatus, actorID string, at time.Time) Event {
	return Event{
		ID:             uuid.New().String(),
		Type:           t,
		OrderID:        order.ID,
		OrderNumber:    order.OrderNumber,
		UserID:         order.UserID,
		CustomerEmail:  order.CustomerEmail,
		PreviousStatus: previous,
		CurrentStatus:  order.Status,
		ActorID:        actorID,
		OccurredAt:     at,
	}
}

// ForLowStock builds a LowStockDetected event for p.
func ForLowStock(p *models.Product, orderID string, at time.Time) Event {
	return Event{
		ID:         uuid.New().String(),
		Type:       LowStockDetected,
		OrderID:    orderID,
		OccurredAt: at,
		Metadata: map[string]string{
			"product_id":   p.ID,
			"product_name": p.Name,
			"total_stock":  strconv.Itoa(p.TotalStock),
			"threshold":    strconv.Itoa(p.LowStockThreshold),
		},
	}
}
