package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Product represents a product in the store together with its stock counters.
//
// TotalStock and ReservedStock are written only through the inventory ledger
// while the product row is locked by a transaction.
type Product struct {
	ID                string          `json:"id" gorm:"primaryKey;type:varchar(36)" validate:"omitempty,uuid"`
	Name              string          `json:"name" gorm:"type:varchar(100);not null" validate:"required,min=3,max=100"`
	Description       string          `json:"description" validate:"omitempty,max=500"`
	Unit              string          `json:"unit" gorm:"type:varchar(20)" validate:"omitempty,max=20"` // e.g. "kg", "pack"
	Price             decimal.Decimal `json:"price" gorm:"type:decimal(12,2);not null"`
	TotalStock        int             `json:"total_stock" gorm:"not null" validate:"gte=0"`
	ReservedStock     int             `json:"reserved_stock" gorm:"not null" validate:"gte=0"`
	TrackStock        bool            `json:"track_stock"`
	MaxOrderQuantity  int             `json:"max_order_quantity" validate:"gte=0"`  // 0 means no per-order cap
	LowStockThreshold int             `json:"low_stock_threshold" validate:"gte=0"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
	DeletedAt         gorm.DeletedAt  `json:"-" gorm:"index"`
}
