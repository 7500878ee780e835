package models

import "fmt"

// OrderStatus is the lifecycle status of an order.
type OrderStatus string

const (
	OrderStatusPending          OrderStatus = "pending"
	OrderStatusPaymentSubmitted OrderStatus = "payment_submitted"
	OrderStatusPaymentApproved  OrderStatus = "payment_approved"
	OrderStatusPaymentRejected  OrderStatus = "payment_rejected"
	OrderStatusConfirmed        OrderStatus = "confirmed"
	OrderStatusPreparing        OrderStatus = "preparing"
	OrderStatusReady            OrderStatus = "ready"
	OrderStatusReadyForPickup   OrderStatus = "ready_for_pickup"
	OrderStatusReadyForDelivery OrderStatus = "ready_for_delivery"
	OrderStatusCompleted        OrderStatus = "completed"
	OrderStatusCancelled        OrderStatus = "cancelled"
)

// orderTransitions lists every allowed next status. A status missing from the
// map, or mapped to an empty set, has no outgoing transitions.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:          {OrderStatusConfirmed, OrderStatusCancelled},
	OrderStatusPaymentSubmitted: {OrderStatusPaymentApproved, OrderStatusPaymentRejected, OrderStatusCancelled},
	OrderStatusPaymentApproved:  {OrderStatusPreparing, OrderStatusCancelled},
	OrderStatusConfirmed:        {OrderStatusPreparing, OrderStatusCancelled},
	OrderStatusPaymentRejected:  {OrderStatusPaymentSubmitted, OrderStatusCancelled},
	OrderStatusPreparing:        {OrderStatusReady, OrderStatusReadyForPickup, OrderStatusReadyForDelivery, OrderStatusCancelled},
	OrderStatusReady:            {OrderStatusCompleted, OrderStatusCancelled},
	OrderStatusReadyForPickup:   {OrderStatusCompleted, OrderStatusCancelled},
	OrderStatusReadyForDelivery: {OrderStatusCompleted, OrderStatusCancelled},
	OrderStatusCompleted:        {},
	OrderStatusCancelled:        {},
}

// OrderStatuses returns every known status in lifecycle order.
func OrderStatuses() []OrderStatus {
	return []OrderStatus{
		OrderStatusPending,
		OrderStatusPaymentSubmitted,
		OrderStatusPaymentApproved,
		OrderStatusPaymentRejected,
		OrderStatusConfirmed,
		OrderStatusPreparing,
		OrderStatusReady,
		OrderStatusReadyForPickup,
		OrderStatusReadyForDelivery,
		OrderStatusCompleted,
		OrderStatusCancelled,
	}
}

// ParseOrderStatus converts a raw string into a known OrderStatus.
func ParseOrderStatus(s string) (OrderStatus, error) {
	status := OrderStatus(s)
	if !status.Valid() {
		return "", fmt.Errorf("unknown order status %q", s)
	}
	return status, nil
}

// Valid reports whether s is one of the declared statuses.
func (s OrderStatus) Valid() bool {
	_, ok := orderTransitions[s]
	return ok
}

// IsTerminal reports whether no transition may leave s.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusCancelled
}

// IsReady reports whether s is one of the ready variants.
func (s OrderStatus) IsReady() bool {
	return s == OrderStatusReady || s == OrderStatusReadyForPickup || s == OrderStatusReadyForDelivery
}

// AllowedNext returns a copy of the statuses reachable from s.
func (s OrderStatus) AllowedNext() []OrderStatus {
	if s.IsTerminal() {
		return nil
	}
	next := orderTransitions[s]
	out := make([]OrderStatus, len(next))
	copy(out, next)
	return out
}

// CanTransitionTo reports whether moving from s to next is listed in the
// transition table. It is always false from a terminal status.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	if s.IsTerminal() {
		return false
	}
	for _, candidate := range orderTransitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}
