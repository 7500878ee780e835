package handlers

import (
	"meatshop/internal/middleware"
	"meatshop/internal/models"
	"meatshop/internal/services"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// OrderHandler handles HTTP requests for orders.
type OrderHandler struct {
	service *services.OrderService
	logger  *zap.Logger
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(service *services.OrderService, logger *zap.Logger) *OrderHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OrderHandler{
		service: service,
		logger:  logger,
	}
}

// RegisterRoutes registers the order routes with the Fiber app. The router
// must already run AuthRequired.
func (h *OrderHandler) RegisterRoutes(router fiber.Router) {
	admin := middleware.RequireRole(models.RoleAdmin)

	orderRoutes := router.Group("/orders")
	orderRoutes.Get("/", h.HandleGetOrders)
	orderRoutes.Get("/:id", h.HandleGetOrderByID)
	orderRoutes.Post("/", h.HandleCreateOrder)
	orderRoutes.Post("/:id/payment", h.HandleSubmitPayment)
	orderRoutes.Post("/:id/payment/approve", admin, h.HandleApprovePayment)
	orderRoutes.Post("/:id/payment/reject", admin, h.HandleRejectPayment)
	orderRoutes.Post("/:id/cancel", h.HandleCancelOrder)
	orderRoutes.Patch("/:id/status", admin, h.HandleUpdateOrderStatus)
}

// CreateOrderRequest is the checkout body: customer details plus the cart.
type CreateOrderRequest struct {
	services.CustomerInfo
	Items []services.CartItem `json:"items"`
}

type submitPaymentRequest struct {
	PaymentProofRef string `json:"payment_proof_ref"`
}

type rejectPaymentRequest struct {
	Reason string `json:"reason"`
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

func actorOf(c *fiber.Ctx) services.Actor {
	actor, _ := middleware.ActorFrom(c)
	return actor
}

// HandleGetOrders lists the caller's orders, or every order for admins.
// An optional ?status= narrows the list.
func (h *OrderHandler) HandleGetOrders(c *fiber.Ctx) error {
	orders, err := h.service.ListOrders(c.UserContext(), actorOf(c), c.Query("status"))
	if err != nil {
		return respondError(c, h.logger, "Could not retrieve orders", err)
	}
	return c.JSON(orders)
}

// HandleGetOrderByID retrieves a single order by its ID.
func (h *OrderHandler) HandleGetOrderByID(c *fiber.Ctx) error {
	order, err := h.service.GetOrder(c.UserContext(), actorOf(c), c.Params("id"))
	if err != nil {
		return respondError(c, h.logger, "Could not retrieve order", err)
	}
	return c.JSON(order)
}

// HandleCreateOrder reserves the cart and creates a pending order. The
// Idempotency-Key header is used when the body carries no key.
func (h *OrderHandler) HandleCreateOrder(c *fiber.Ctx) error {
	var req CreateOrderRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(c, err)
	}
	req.CustomerInfo.UserID = actorOf(c).ID
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = c.Get("Idempotency-Key")
	}

	order, err := h.service.CreateOrder(c.UserContext(), req.CustomerInfo, req.Items)
	if err != nil {
		return respondError(c, h.logger, "Could not create order", err)
	}
	return c.Status(fiber.StatusCreated).JSON(order)
}

func (h *OrderHandler) HandleSubmitPayment(c *fiber.Ctx) error {
	var req submitPaymentRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(c, err)
	}
	order, err := h.service.SubmitPayment(c.UserContext(), actorOf(c), c.Params("id"), req.PaymentProofRef)
	if err != nil {
		return respondError(c, h.logger, "Could not submit payment", err)
	}
	return c.JSON(order)
}

func (h *OrderHandler) HandleApprovePayment(c *fiber.Ctx) error {
	order, err := h.service.ApprovePayment(c.UserContext(), actorOf(c), c.Params("id"))
	if err != nil {
		return respondError(c, h.logger, "Could not approve payment", err)
	}
	return c.JSON(order)
}

func (h *OrderHandler) HandleRejectPayment(c *fiber.Ctx) error {
	var req rejectPaymentRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(c, err)
	}
	order, err := h.service.RejectPayment(c.UserContext(), actorOf(c), c.Params("id"), req.Reason)
	if err != nil {
		return respondError(c, h.logger, "Could not reject payment", err)
	}
	return c.JSON(order)
}

func (h *OrderHandler) HandleCancelOrder(c *fiber.Ctx) error {
	order, err := h.service.CancelOrder(c.UserContext(), actorOf(c), c.Params("id"))
	if err != nil {
		return respondError(c, h.logger, "Could not cancel order", err)
	}
	return c.JSON(order)
}

// HandleUpdateOrderStatus moves an order along the fulfilment states.
func (h *OrderHandler) HandleUpdateOrderStatus(c *fiber.Ctx) error {
	var req updateStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(c, err)
	}
	order, err := h.service.TransitionStatus(c.UserContext(), actorOf(c), c.Params("id"), req.Status)
	if err != nil {
		return respondError(c, h.logger, "Could not update order status", err)
	}
	return c.JSON(order)
}
