package handlers

import (
	"meatshop/internal/middleware"
	"meatshop/internal/repositories"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// NotificationHandler exposes the caller's in-app inbox.
type NotificationHandler struct {
	repo   repositories.NotificationRepository
	logger *zap.Logger
}

func NewNotificationHandler(repo repositories.NotificationRepository, logger *zap.Logger) *NotificationHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationHandler{repo: repo, logger: logger}
}

func (h *NotificationHandler) RegisterRoutes(router fiber.Router) {
	router.Get("/notifications", h.HandleList)
}

func (h *NotificationHandler) HandleList(c *fiber.Ctx) error {
	actor, _ := middleware.ActorFrom(c)
	items, err := h.repo.ListByUser(c.UserContext(), actor.ID)
	if err != nil {
		return respondError(c, h.logger, "Could not retrieve notifications", err)
	}
	return c.JSON(items)
}
