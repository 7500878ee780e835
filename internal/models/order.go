package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderItem represents a single item within an order.
// Items are created together with their order and never change afterwards.
type OrderItem struct {
	ID          string          `json:"id" gorm:"primaryKey;type:varchar(36)"`
	OrderID     string          `json:"order_id" gorm:"type:varchar(36);index;not null"`
	ProductID   string          `json:"product_id" gorm:"type:varchar(36);index;not null"`
	ProductName string          `json:"product_name" gorm:"type:varchar(100)"`
	Quantity    int             `json:"quantity" gorm:"not null"`
	UnitPrice   decimal.Decimal `json:"unit_price" gorm:"type:decimal(12,2);not null"` // Price at the time of order
	LineTotal   decimal.Decimal `json:"line_total" gorm:"type:decimal(12,2);not null"`
}

// Order represents a customer order.
type Order struct {
	ID                     string          `json:"id" gorm:"primaryKey;type:varchar(36)"`
	OrderNumber            string          `json:"order_number" gorm:"type:varchar(32);uniqueIndex"`
	UserID                 string          `json:"user_id" gorm:"type:varchar(36);index"`
	Status                 OrderStatus     `json:"status" gorm:"type:varchar(32);index;not null"`
	PaymentMethod          PaymentMethod   `json:"payment_method" gorm:"type:varchar(16);not null"`
	PaymentStatus          PaymentStatus   `json:"payment_status" gorm:"type:varchar(16);not null"`
	StockHold              StockHold       `json:"stock_hold" gorm:"type:varchar(16);not null"`
	DeliveryMode           DeliveryMode    `json:"delivery_mode" gorm:"type:varchar(16);not null"`
	TotalAmount            decimal.Decimal `json:"total_amount" gorm:"type:decimal(12,2);not null"`
	CustomerName           string          `json:"customer_name" gorm:"type:varchar(100)"`
	CustomerPhone          string          `json:"customer_phone" gorm:"type:varchar(32)"`
	CustomerEmail          string          `json:"customer_email" gorm:"type:varchar(255)"`
	DeliveryAddress        string          `json:"delivery_address,omitempty"`
	Notes                  string          `json:"notes,omitempty"`
	PaymentProofRef        string          `json:"payment_proof_ref,omitempty"`
	PaymentSubmittedAt     *time.Time      `json:"payment_submitted_at,omitempty"`
	PaymentApprovedAt      *time.Time      `json:"payment_approved_at,omitempty"`
	PaymentApprovedBy      string          `json:"payment_approved_by,omitempty" gorm:"type:varchar(36)"`
	PaymentRejectionReason string          `json:"payment_rejection_reason,omitempty"`
	CancelledAt            *time.Time      `json:"cancelled_at,omitempty"`
	CancelledBy            string          `json:"cancelled_by,omitempty" gorm:"type:varchar(36)"`
	Items                  []OrderItem     `json:"items" gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt              time.Time       `json:"created_at"`
	UpdatedAt              time.Time       `json:"updated_at"`
}

// ProductIDs returns the distinct product ids referenced by the order's items.
func (o *Order) ProductIDs() []string {
	seen := make(map[string]struct{}, len(o.Items))
	ids := make([]string, 0, len(o.Items))
	for _, item := range o.Items {
		if _, ok := seen[item.ProductID]; ok {
			continue
		}
		seen[item.ProductID] = struct{}{}
		ids = append(ids, item.ProductID)
	}
	return ids
}

// Clone returns a deep copy of the order, items included.
func (o Order) Clone() Order {
	out := o
	out.Items = append([]OrderItem(nil), o.Items...)
	out.PaymentSubmittedAt = cloneTime(o.PaymentSubmittedAt)
	out.PaymentApprovedAt = cloneTime(o.PaymentApprovedAt)
	out.CancelledAt = cloneTime(o.CancelledAt)
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
