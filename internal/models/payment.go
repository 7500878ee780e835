package models

// PaymentStatus is the payment sub-status of an order.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusSubmitted PaymentStatus = "submitted"
	PaymentStatusApproved  PaymentStatus = "approved"
	PaymentStatusRejected  PaymentStatus = "rejected"
)

// PaymentMethod is how the customer pays.
type PaymentMethod string

const (
	PaymentMethodCash PaymentMethod = "cash"
	PaymentMethodQR   PaymentMethod = "qr"
)

// DeliveryMode is how the order leaves the shop.
type DeliveryMode string

const (
	DeliveryModePickup   DeliveryMode = "pickup"
	DeliveryModeDelivery DeliveryMode = "delivery"
)

// StockHold records what the order currently holds against product stock.
type StockHold string

const (
	StockHoldReserved StockHold = "reserved"
	StockHoldReleased StockHold = "released"
	StockHoldDeducted StockHold = "deducted"
)
