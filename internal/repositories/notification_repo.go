package repositories

import (
	"context"

	"meatshop/internal/models"
)

// NotificationRepository stores the in-app notification inbox.
type NotificationRepository interface {
	Create(ctx context.Context, n *models.Notification) error
	ListByUser(ctx context.Context, userID string) ([]models.Notification, error)
}
