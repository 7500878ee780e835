package services

import (
	"time"

	"meatshop/internal/models"
)

// Clock supplies timestamps for audit fields.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// Actor is the authenticated user performing an operation.
type Actor struct {
	ID   string
	Role models.Role
}

// IsAdmin reports whether the actor may run shop-side operations.
func (a Actor) IsAdmin() bool {
	return a.Role == models.RoleAdmin
}

func (a Actor) owns(order *models.Order) bool {
	return a.ID != "" && a.ID == order.UserID
}

func (a Actor) canView(order *models.Order) bool {
	return a.IsAdmin() || a.owns(order)
}
