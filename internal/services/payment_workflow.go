package services

import (
	"fmt"
	"strings"
	"time"

	"meatshop/internal/inventory"
	"meatshop/internal/models"
)

// lockedStock is the set of product rows held by the current transaction.
// Every counter change goes through inventory.Ledger.
type lockedStock map[string]*models.Product

func (s lockedStock) ledger(productID string) (inventory.Ledger, error) {
	p, ok := s[productID]
	if !ok {
		return inventory.Ledger{}, fmt.Errorf("product %s is not locked by this transaction", productID)
	}
	return inventory.Of(p), nil
}

func (s lockedStock) reserve(items []models.OrderItem) error {
	for _, item := range items {
		l, err := s.ledger(item.ProductID)
		if err != nil {
			return err
		}
		if err := l.Reserve(item.Quantity); err != nil {
			return err
		}
	}
	return nil
}

func (s lockedStock) release(items []models.OrderItem) error {
	for _, item := range items {
		l, err := s.ledger(item.ProductID)
		if err != nil {
			return err
		}
		l.Release(item.Quantity)
	}
	return nil
}

func (s lockedStock) deduct(items []models.OrderItem) error {
	for _, item := range items {
		l, err := s.ledger(item.ProductID)
		if err != nil {
			return err
		}
		if err := l.Deduct(item.Quantity); err != nil {
			return err
		}
	}
	return nil
}

func invalidState(op string, o *models.Order) error {
	return fmt.Errorf("%w: cannot %s order %s (status %s, payment %s)", ErrInvalidState, op, o.ID, o.Status, o.PaymentStatus)
}

// submitPayment records a payment proof. A resubmission after rejection
// re-reserves the items because the rejection released them.
func submitPayment(o *models.Order, stock lockedStock, proofRef string, now time.Time) error {
	if o.PaymentMethod != models.PaymentMethodQR {
		return fmt.Errorf("%w: order %s is paid in %s and takes no payment proof", ErrInvalidState, o.ID, o.PaymentMethod)
	}
	switch {
	case o.Status == models.OrderStatusPending && o.PaymentStatus == models.PaymentStatusPending:
	case o.Status == models.OrderStatusPaymentRejected && o.PaymentStatus == models.PaymentStatusRejected:
	default:
		return invalidState("submit payment for", o)
	}

	if o.StockHold == models.StockHoldReleased {
		if err := stock.reserve(o.Items); err != nil {
			return err
		}
		o.StockHold = models.StockHoldReserved
	}

	o.PaymentProofRef = proofRef
	o.PaymentStatus = models.PaymentStatusSubmitted
	o.Status = models.OrderStatusPaymentSubmitted
	o.PaymentSubmittedAt = &now
	return nil
}

func submitNeedsStock(o *models.Order) bool {
	return o.StockHold == models.StockHoldReleased
}

// approvePayment converts the reservation into a deduction. Any failing item
// aborts the whole approval.
func approvePayment(o *models.Order, stock lockedStock, approverID string, now time.Time) error {
	if o.Status != models.OrderStatusPaymentSubmitted || o.PaymentStatus != models.PaymentStatusSubmitted {
		return invalidState("approve payment of", o)
	}
	if o.StockHold != models.StockHoldReserved {
		return fmt.Errorf("%w: order %s holds no reservation (%s)", ErrInvalidState, o.ID, o.StockHold)
	}
	if err := stock.deduct(o.Items); err != nil {
		return err
	}

	o.StockHold = models.StockHoldDeducted
	o.PaymentStatus = models.PaymentStatusApproved
	o.Status = models.OrderStatusPaymentApproved
	o.PaymentApprovedAt = &now
	o.PaymentApprovedBy = approverID
	o.PaymentRejectionReason = ""
	return nil
}

func rejectPayment(o *models.Order, stock lockedStock, reason string) error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return ErrMissingReason
	}
	if o.Status != models.OrderStatusPaymentSubmitted || o.PaymentStatus != models.PaymentStatusSubmitted {
		return invalidState("reject payment of", o)
	}
	if o.StockHold == models.StockHoldReserved {
		if err := stock.release(o.Items); err != nil {
			return err
		}
		o.StockHold = models.StockHoldReleased
	}

	o.PaymentStatus = models.PaymentStatusRejected
	o.Status = models.OrderStatusPaymentRejected
	o.PaymentRejectionReason = reason
	o.PaymentApprovedAt = nil
	o.PaymentApprovedBy = ""
	return nil
}

func holdsReservation(o *models.Order) bool {
	return o.StockHold == models.StockHoldReserved
}

// cancelOrder is only possible before any stock has been deducted.
func cancelOrder(o *models.Order, stock lockedStock, actor Actor, now time.Time) error {
	if !actor.canView(o) {
		return fmt.Errorf("%w: %s may not cancel order %s", ErrForbidden, actor.ID, o.ID)
	}
	switch o.Status {
	case models.OrderStatusPending, models.OrderStatusPaymentSubmitted, models.OrderStatusPaymentRejected:
	default:
		return invalidState("cancel", o)
	}
	if o.StockHold == models.StockHoldReserved {
		if err := stock.release(o.Items); err != nil {
			return err
		}
		o.StockHold = models.StockHoldReleased
	}

	o.Status = models.OrderStatusCancelled
	o.CancelledAt = &now
	o.CancelledBy = actor.ID
	return nil
}

// transitionStatus moves an order along the fulfilment part of the state
// machine. Payment states and cancellation have their own operations.
func transitionStatus(o *models.Order, stock lockedStock, next models.OrderStatus, now time.Time) error {
	switch next {
	case models.OrderStatusCancelled:
		return fmt.Errorf("%w: use the cancel operation to cancel order %s", ErrIllegalTransition, o.ID)
	case models.OrderStatusPaymentSubmitted, models.OrderStatusPaymentApproved, models.OrderStatusPaymentRejected:
		return fmt.Errorf("%w: %s is set by the payment workflow", ErrIllegalTransition, next)
	}
	if !o.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, o.Status, next)
	}

	switch {
	case next == models.OrderStatusConfirmed:
		if o.PaymentMethod != models.PaymentMethodCash {
			return fmt.Errorf("%w: only cash orders are confirmed directly, order %s is %s", ErrIllegalTransition, o.ID, o.PaymentMethod)
		}
		// cash stays reserved until confirmed, so confirming is the deduction point
		if err := stock.deduct(o.Items); err != nil {
			return err
		}
		o.StockHold = models.StockHoldDeducted
		o.PaymentStatus = models.PaymentStatusApproved
		o.PaymentApprovedAt = &now
	case next == models.OrderStatusReadyForPickup && o.DeliveryMode != models.DeliveryModePickup,
		next == models.OrderStatusReadyForDelivery && o.DeliveryMode != models.DeliveryModeDelivery:
		return fmt.Errorf("%w: %s does not match delivery mode %s", ErrIllegalTransition, next, o.DeliveryMode)
	}

	o.Status = next
	return nil
}

func transitionNeedsStock(next models.OrderStatus) func(*models.Order) bool {
	return func(o *models.Order) bool {
		return next == models.OrderStatusConfirmed && o.Status == models.OrderStatusPending
	}
}
