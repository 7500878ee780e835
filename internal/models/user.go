package models

import (
	"time"

	"gorm.io/gorm"
)

// Role decides which order operations a user may perform.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
)

// User represents a user of the store.
type User struct {
	ID        string         `json:"id" gorm:"primaryKey;type:varchar(36)" validate:"omitempty,uuid"`
	Username  string         `json:"username" gorm:"uniqueIndex;type:varchar(100)" validate:"required,min=3,max=100"`
	Email     string         `json:"email" gorm:"uniqueIndex;type:varchar(255)" validate:"required,email"`
	Password  string         `json:"password,omitempty" gorm:"type:varchar(255)" validate:"required,min=6"`
	Role      Role           `json:"role" gorm:"type:varchar(16);not null;default:customer" validate:"omitempty,oneof=customer admin"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

// Notification is an entry in a user's in-app inbox.
type Notification struct {
	ID        string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	UserID    string    `json:"user_id" gorm:"type:varchar(36);index;not null"`
	Title     string    `json:"title" gorm:"type:varchar(200)"`
	Message   string    `json:"message"`
	OrderID   string    `json:"order_id,omitempty" gorm:"type:varchar(36);index"`
	EventType string    `json:"event_type" gorm:"type:varchar(64)"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}
