package services

import (
	"testing"
	"time"

	"meatshop/internal/inventory"
	"meatshop/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func workflowFixture(method models.PaymentMethod, mode models.DeliveryMode) (*models.Order, lockedStock) {
	stock := lockedStock{
		"a": {ID: "a", Name: "Ribeye", TotalStock: 10, ReservedStock: 5, TrackStock: true},
		"b": {ID: "b", Name: "Brisket", TotalStock: 4, ReservedStock: 2, TrackStock: true},
	}
	order := &models.Order{
		ID:            "o-1",
		UserID:        "u-1",
		Status:        models.OrderStatusPending,
		PaymentMethod: method,
		PaymentStatus: models.PaymentStatusPending,
		StockHold:     models.StockHoldReserved,
		DeliveryMode:  mode,
		Items: []models.OrderItem{
			{ProductID: "a", Quantity: 5},
			{ProductID: "b", Quantity: 2},
		},
	}
	return order, stock
}

func TestSubmitPayment(t *testing.T) {
	now := time.Now()

	t.Run("first submission keeps the reservation", func(t *testing.T) {
		o, stock := workflowFixture(models.PaymentMethodQR, models.DeliveryModePickup)
		require.NoError(t, submitPayment(o, nil, "proof.png", now))
		assert.Equal(t, models.OrderStatusPaymentSubmitted, o.Status)
		assert.Equal(t, models.PaymentStatusSubmitted, o.PaymentStatus)
		assert.Equal(t, "proof.png", o.PaymentProofRef)
		assert.Equal(t, now, *o.PaymentSubmittedAt)
		assert.Equal(t, 5, stock["a"].ReservedStock)
	})

	t.Run("resubmission after rejection reserves again", func(t *testing.T) {
		o, stock := workflowFixture(models.PaymentMethodQR, models.DeliveryModePickup)
		o.Status, o.PaymentStatus, o.StockHold = models.OrderStatusPaymentRejected, models.PaymentStatusRejected, models.StockHoldReleased
		stock["a"].ReservedStock, stock["b"].ReservedStock = 0, 0

		require.NoError(t, submitPayment(o, stock, "proof-2.png", now))
		assert.Equal(t, models.StockHoldReserved, o.StockHold)
		assert.Equal(t, 5, stock["a"].ReservedStock)
		assert.Equal(t, 2, stock["b"].ReservedStock)
	})

	t.Run("resubmission fails when stock ran out", func(t *testing.T) {
		o, stock := workflowFixture(models.PaymentMethodQR, models.DeliveryModePickup)
		o.Status, o.PaymentStatus, o.StockHold = models.OrderStatusPaymentRejected, models.PaymentStatusRejected, models.StockHoldReleased
		stock["b"].ReservedStock = 3

		err := submitPayment(o, stock, "proof-2.png", now)
		var serr *inventory.InsufficientStockError
		require.ErrorAs(t, err, &serr)
		assert.Equal(t, "b", serr.ProductID)
		assert.Equal(t, 1, serr.MaxOrderable)
		assert.Equal(t, models.OrderStatusPaymentRejected, o.Status)
	})

	t.Run("cash orders take no proof", func(t *testing.T) {
		o, _ := workflowFixture(models.PaymentMethodCash, models.DeliveryModePickup)
		assert.ErrorIs(t, submitPayment(o, nil, "proof.png", now), ErrInvalidState)
	})

	t.Run("already submitted", func(t *testing.T) {
		o, _ := workflowFixture(models.PaymentMethodQR, models.DeliveryModePickup)
		o.Status, o.PaymentStatus = models.OrderStatusPaymentSubmitted, models.PaymentStatusSubmitted
		assert.ErrorIs(t, submitPayment(o, nil, "proof.png", now), ErrInvalidState)
	})
}

func TestApprovePayment(t *testing.T) {
	now := time.Now()
	o, stock := workflowFixture(models.PaymentMethodQR, models.DeliveryModePickup)
	o.Status, o.PaymentStatus = models.OrderStatusPaymentSubmitted, models.PaymentStatusSubmitted
	o.PaymentRejectionReason = "old reason"

	require.NoError(t, approvePayment(o, stock, "admin-1", now))
	assert.Equal(t, models.OrderStatusPaymentApproved, o.Status)
	assert.Equal(t, models.PaymentStatusApproved, o.PaymentStatus)
	assert.Equal(t, models.StockHoldDeducted, o.StockHold)
	assert.Equal(t, "admin-1", o.PaymentApprovedBy)
	assert.Empty(t, o.PaymentRejectionReason)
	assert.Equal(t, 5, stock["a"].TotalStock)
	assert.Zero(t, stock["a"].ReservedStock)
	assert.Equal(t, 2, stock["b"].TotalStock)

	// second approval observes the advanced state
	assert.ErrorIs(t, approvePayment(o, stock, "admin-2", now), ErrInvalidState)
	assert.Equal(t, 5, stock["a"].TotalStock)
}

func TestApprovePayment_PartialFailureReportsProduct(t *testing.T) {
	o, stock := workflowFixture(models.PaymentMethodQR, models.DeliveryModePickup)
	o.Status, o.PaymentStatus = models.OrderStatusPaymentSubmitted, models.PaymentStatusSubmitted
	stock["b"].TotalStock = 1

	err := approvePayment(o, stock, "admin-1", time.Now())
	var serr *inventory.InsufficientStockError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "b", serr.ProductID)
	assert.Equal(t, models.PaymentStatusSubmitted, o.PaymentStatus)
}

func TestRejectPayment(t *testing.T) {
	o, stock := workflowFixture(models.PaymentMethodQR, models.DeliveryModePickup)
	o.Status, o.PaymentStatus = models.OrderStatusPaymentSubmitted, models.PaymentStatusSubmitted

	assert.ErrorIs(t, rejectPayment(o, stock, "   "), ErrMissingReason)

	require.NoError(t, rejectPayment(o, stock, "blurry proof"))
	assert.Equal(t, models.OrderStatusPaymentRejected, o.Status)
	assert.Equal(t, models.PaymentStatusRejected, o.PaymentStatus)
	assert.Equal(t, models.StockHoldReleased, o.StockHold)
	assert.Equal(t, "blurry proof", o.PaymentRejectionReason)
	assert.Zero(t, stock["a"].ReservedStock)
	assert.Zero(t, stock["b"].ReservedStock)

	assert.ErrorIs(t, rejectPayment(o, stock, "again"), ErrInvalidState)
}

func TestCancelOrder(t *testing.T) {
	now := time.Now()
	owner := Actor{ID: "u-1", Role: models.RoleCustomer}

	t.Run("stranger is forbidden", func(t *testing.T) {
		o, stock := workflowFixture(models.PaymentMethodCash, models.DeliveryModePickup)
		err := cancelOrder(o, stock, Actor{ID: "u-2", Role: models.RoleCustomer}, now)
		assert.ErrorIs(t, err, ErrForbidden)
	})

	t.Run("pending releases the reservation", func(t *testing.T) {
		o, stock := workflowFixture(models.PaymentMethodCash, models.DeliveryModePickup)
		require.NoError(t, cancelOrder(o, stock, owner, now))
		assert.Equal(t, models.OrderStatusCancelled, o.Status)
		assert.Equal(t, models.StockHoldReleased, o.StockHold)
		assert.Equal(t, "u-1", o.CancelledBy)
		assert.Zero(t, stock["a"].ReservedStock)
	})

	t.Run("rejected order holds nothing to release", func(t *testing.T) {
		o, stock := workflowFixture(models.PaymentMethodQR, models.DeliveryModePickup)
		o.Status, o.PaymentStatus, o.StockHold = models.OrderStatusPaymentRejected, models.PaymentStatusRejected, models.StockHoldReleased
		require.NoError(t, cancelOrder(o, nil, Actor{ID: "admin", Role: models.RoleAdmin}, now))
		assert.Equal(t, 5, stock["a"].ReservedStock)
	})

	t.Run("approved order cannot be cancelled", func(t *testing.T) {
		o, stock := workflowFixture(models.PaymentMethodQR, models.DeliveryModePickup)
		o.Status, o.PaymentStatus, o.StockHold = models.OrderStatusPaymentApproved, models.PaymentStatusApproved, models.StockHoldDeducted
		assert.ErrorIs(t, cancelOrder(o, stock, owner, now), ErrInvalidState)
	})
}

func TestTransitionStatus(t *testing.T) {
	now := time.Now()

	t.Run("cash confirmation deducts and approves payment", func(t *testing.T) {
		o, stock := workflowFixture(models.PaymentMethodCash, models.DeliveryModePickup)
		require.NoError(t, transitionStatus(o, stock, models.OrderStatusConfirmed, now))
		assert.Equal(t, models.OrderStatusConfirmed, o.Status)
		assert.Equal(t, models.PaymentStatusApproved, o.PaymentStatus)
		assert.Equal(t, models.StockHoldDeducted, o.StockHold)
		assert.Equal(t, 5, stock["a"].TotalStock)
		assert.Zero(t, stock["a"].ReservedStock)
	})

	t.Run("qr orders are not confirmed directly", func(t *testing.T) {
		o, stock := workflowFixture(models.PaymentMethodQR, models.DeliveryModePickup)
		assert.ErrorIs(t, transitionStatus(o, stock, models.OrderStatusConfirmed, now), ErrIllegalTransition)
		assert.Equal(t, 10, stock["a"].TotalStock)
	})

	t.Run("cancel and payment targets are refused", func(t *testing.T) {
		o, _ := workflowFixture(models.PaymentMethodCash, models.DeliveryModePickup)
		for _, next := range []models.OrderStatus{
			models.OrderStatusCancelled, models.OrderStatusPaymentSubmitted,
			models.OrderStatusPaymentApproved, models.OrderStatusPaymentRejected,
		} {
			assert.ErrorIs(t, transitionStatus(o, nil, next, now), ErrIllegalTransition, next)
		}
		assert.Equal(t, models.OrderStatusPending, o.Status)
	})

	t.Run("ready variant must match delivery mode", func(t *testing.T) {
		o, _ := workflowFixture(models.PaymentMethodCash, models.DeliveryModeDelivery)
		o.Status = models.OrderStatusPreparing
		assert.ErrorIs(t, transitionStatus(o, nil, models.OrderStatusReadyForPickup, now), ErrIllegalTransition)
		require.NoError(t, transitionStatus(o, nil, models.OrderStatusReadyForDelivery, now))
		require.NoError(t, transitionStatus(o, nil, models.OrderStatusCompleted, now))
		assert.ErrorIs(t, transitionStatus(o, nil, models.OrderStatusPreparing, now), ErrIllegalTransition)
	})

	t.Run("skipping steps is illegal", func(t *testing.T) {
		o, _ := workflowFixture(models.PaymentMethodCash, models.DeliveryModePickup)
		assert.ErrorIs(t, transitionStatus(o, nil, models.OrderStatusCompleted, now), ErrIllegalTransition)
	})
}
