package handlers

import (
	"errors"

	"meatshop/internal/inventory"
	"meatshop/internal/repositories"
	"meatshop/internal/services"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// statusOf maps a service error to its HTTP status code.
func statusOf(err error) int {
	switch {
	case errors.Is(err, inventory.ErrInsufficientStock),
		errors.Is(err, services.ErrInvalidState),
		errors.Is(err, services.ErrIllegalTransition),
		errors.Is(err, services.ErrDuplicateRequest),
		errors.Is(err, services.ErrAlreadyExists):
		return fiber.StatusConflict
	case errors.Is(err, services.ErrValidation),
		errors.Is(err, services.ErrMissingReason):
		return fiber.StatusBadRequest
	case errors.Is(err, services.ErrInvalidCredentials):
		return fiber.StatusUnauthorized
	case errors.Is(err, services.ErrForbidden):
		return fiber.StatusForbidden
	case errors.Is(err, repositories.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, repositories.ErrLockTimeout):
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

// respondError writes err as a JSON body under message. Stock failures carry
// the limiting product and quantity so the client can correct the cart.
func respondError(c *fiber.Ctx, logger *zap.Logger, message string, err error) error {
	status := statusOf(err)
	body := fiber.Map{
		"message": message,
		"error":   err.Error(),
	}

	var stockErr *inventory.InsufficientStockError
	var validationErr *services.ValidationError
	switch {
	case errors.As(err, &stockErr):
		body["product_id"] = stockErr.ProductID
		body["requested"] = stockErr.Requested
		body["max_orderable"] = stockErr.MaxOrderable
	case errors.As(err, &validationErr) && validationErr.Field != "":
		body["field"] = validationErr.Field
	}

	if status == fiber.StatusInternalServerError {
		logger.Error(message, zap.String("path", c.Path()), zap.Error(err))
		body["error"] = "internal server error"
	} else {
		logger.Debug(message, zap.String("path", c.Path()), zap.Int("status", status), zap.Error(err))
	}
	if status == fiber.StatusServiceUnavailable {
		c.Set(fiber.HeaderRetryAfter, "1")
	}
	return c.Status(status).JSON(body)
}

func badBody(c *fiber.Ctx, err error) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"message": "Invalid request body",
		"error":   err.Error(),
	})
}
