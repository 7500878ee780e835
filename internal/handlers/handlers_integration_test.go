package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"meatshop/internal/database"
	"meatshop/internal/events"
	"meatshop/internal/handlers"
	"meatshop/internal/middleware"
	"meatshop/internal/models"
	"meatshop/internal/notification"
	"meatshop/internal/repositories"
	"meatshop/internal/services"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testJWTSecret = "test_jwt_secret"

type testApp struct {
	app        *fiber.App
	auth       *services.AuthService
	products   *repositories.GORMProductRepository
	adminToken string
	ribeyeID   string
}

// setupApp builds the full HTTP stack on a private in-memory sqlite database,
// with one admin account and one stocked product.
func setupApp(t *testing.T) *testApp {
	t.Helper()
	db, err := database.Open("sqlite", fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })

	logger := zap.NewNop()
	productRepo := repositories.NewGORMProductRepository(db)
	orderRepo := repositories.NewGORMOrderRepository(db)
	userRepo := repositories.NewGORMUserRepository(db)
	notificationRepo := repositories.NewGORMNotificationRepository(db)

	dispatcher := events.NewDispatcher(logger)
	coordinator := services.NewTransactionCoordinator(repositories.NewGORMTxManager(db, time.Second), nil)
	productService := services.NewProductService(productRepo, logger)
	orderService := services.NewOrderService(orderRepo, productRepo, coordinator, dispatcher, logger)
	authService := services.NewAuthService(userRepo, testJWTSecret, time.Hour, logger)

	admin := &models.User{Username: "butcher", Email: "butcher@example.com", Password: "cleaver123"}
	require.NoError(t, authService.CreateAdmin(context.Background(), admin))
	dispatcher.Register("notifier", notification.NewNotifier(
		notification.NewStoreSink(notificationRepo), nil, []string{admin.ID}, logger))

	ribeye := &models.Product{
		Name: "Ribeye", Unit: "kg", Price: decimal.NewFromInt(120000),
		TotalStock: 10, TrackStock: true, LowStockThreshold: 2,
	}
	require.NoError(t, productService.CreateProduct(context.Background(), ribeye))

	app := fiber.New()
	apiV1 := app.Group("/api/v1")
	handlers.NewAuthHandler(authService, logger).RegisterRoutes(apiV1)

	protected := apiV1.Group("", middleware.AuthRequired(authService, logger))
	handlers.NewProductHandler(productService, logger).RegisterRoutes(protected)
	handlers.NewOrderHandler(orderService, logger).RegisterRoutes(protected)
	handlers.NewNotificationHandler(notificationRepo, logger).RegisterRoutes(protected)

	ta := &testApp{app: app, auth: authService, products: productRepo, ribeyeID: ribeye.ID}
	ta.adminToken = ta.login(t, "butcher", "cleaver123")
	return ta
}

func (ta *testApp) do(t *testing.T, method, path, token string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := ta.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]any{}
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &out))
	}
	return resp, out
}

func (ta *testApp) login(t *testing.T, username, password string) string {
	t.Helper()
	resp, body := ta.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"username": username, "password": password,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	token, _ := body["token"].(string)
	require.NotEmpty(t, token)
	return token
}

func (ta *testApp) customer(t *testing.T, username string) string {
	t.Helper()
	resp, _ := ta.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"username": username, "email": username + "@example.com", "password": "password123",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return ta.login(t, username, "password123")
}

func checkoutBody(productID string, qty int) map[string]any {
	return map[string]any{
		"customer_name":  "Budi Santoso",
		"customer_phone": "081234567890",
		"customer_email": "budi@example.com",
		"payment_method": "qr",
		"delivery_mode":  "pickup",
		"items":          []map[string]any{{"product_id": productID, "quantity": qty}},
	}
}

func TestAuthRegisterAndLogin(t *testing.T) {
	ta := setupApp(t)

	userToRegister := map[string]string{
		"username": "testuser",
		"email":    "test@example.com",
		"password": "password123",
		"role":     "admin",
	}
	resp, body := ta.do(t, http.MethodPost, "/api/v1/auth/register", "", userToRegister)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "User registered successfully", body["message"])

	// Duplicate registration (username)
	resp, _ = ta.do(t, http.MethodPost, "/api/v1/auth/register", "", userToRegister)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, _ = ta.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"username": "testuser", "password": "wrong-password",
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	token := ta.login(t, "testuser", "password123")
	claims, err := ta.auth.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "testuser", claims["username"])
	// the role in the sign-up form is ignored
	assert.Equal(t, "customer", claims["role"])
}

func TestProductEndpoints(t *testing.T) {
	ta := setupApp(t)

	resp, _ := ta.do(t, http.MethodGet, "/api/v1/products", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	token := ta.customer(t, "alice")
	resp, body := ta.do(t, http.MethodGet, "/api/v1/products/"+ta.ribeyeID, token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	stock := body["stock"].(map[string]any)
	assert.EqualValues(t, 10, stock["available"])

	newProduct := map[string]any{"name": "Wagyu Striploin", "unit": "kg", "price": 450000, "total_stock": 4, "track_stock": true}
	resp, _ = ta.do(t, http.MethodPost, "/api/v1/products", token, newProduct)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, body = ta.do(t, http.MethodPost, "/api/v1/products", ta.adminToken, newProduct)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.NotEmpty(t, body["id"])

	resp, _ = ta.do(t, http.MethodGet, "/api/v1/products/does-not-exist", token, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestOrderLifecycle(t *testing.T) {
	ta := setupApp(t)
	alice := ta.customer(t, "alice")
	bob := ta.customer(t, "bob")

	resp, order := ta.do(t, http.MethodPost, "/api/v1/orders", alice, checkoutBody(ta.ribeyeID, 7))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	orderID := order["id"].(string)
	assert.Equal(t, "pending", order["status"])

	// the remaining 3 kg are all bob can get
	resp, body := ta.do(t, http.MethodPost, "/api/v1/orders", bob, checkoutBody(ta.ribeyeID, 4))
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, ta.ribeyeID, body["product_id"])
	assert.EqualValues(t, 3, body["max_orderable"])

	resp, _ = ta.do(t, http.MethodGet, "/api/v1/orders/"+orderID, bob, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, body = ta.do(t, http.MethodPost, "/api/v1/orders/"+orderID+"/payment", alice,
		map[string]string{"payment_proof_ref": "transfer-0042.jpg"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "payment_submitted", body["status"])

	resp, _ = ta.do(t, http.MethodPost, "/api/v1/orders/"+orderID+"/payment/approve", alice, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, body = ta.do(t, http.MethodPost, "/api/v1/orders/"+orderID+"/payment/approve", ta.adminToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "payment_approved", body["status"])

	p, err := ta.products.GetByID(context.Background(), ta.ribeyeID)
	require.NoError(t, err)
	assert.Equal(t, 3, p.TotalStock)
	assert.Zero(t, p.ReservedStock)

	resp, _ = ta.do(t, http.MethodPost, "/api/v1/orders/"+orderID+"/cancel", alice, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, body = ta.do(t, http.MethodPatch, "/api/v1/orders/"+orderID+"/status", ta.adminToken, map[string]string{"status": "preparing"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "preparing", body["status"])

	resp, body = ta.do(t, http.MethodGet, "/api/v1/orders/"+orderID, alice, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body["allowed_next"], "ready_for_pickup")

	resp, _ = ta.do(t, http.MethodGet, "/api/v1/notifications", alice, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRejectAndCancel(t *testing.T) {
	ta := setupApp(t)
	alice := ta.customer(t, "alice")

	_, order := ta.do(t, http.MethodPost, "/api/v1/orders", alice, checkoutBody(ta.ribeyeID, 5))
	orderID := order["id"].(string)
	ta.do(t, http.MethodPost, "/api/v1/orders/"+orderID+"/payment", alice, map[string]string{"payment_proof_ref": "p.jpg"})

	resp, body := ta.do(t, http.MethodPost, "/api/v1/orders/"+orderID+"/payment/reject", ta.adminToken, map[string]string{"reason": "  "})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Could not reject payment", body["message"])

	resp, body = ta.do(t, http.MethodPost, "/api/v1/orders/"+orderID+"/payment/reject", ta.adminToken, map[string]string{"reason": "blurry"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "payment_rejected", body["status"])

	resp, body = ta.do(t, http.MethodPost, "/api/v1/orders/"+orderID+"/cancel", alice, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "cancelled", body["status"])

	p, err := ta.products.GetByID(context.Background(), ta.ribeyeID)
	require.NoError(t, err)
	assert.Equal(t, 10, p.TotalStock)
	assert.Zero(t, p.ReservedStock)

	resp, _ = ta.do(t, http.MethodPatch, "/api/v1/orders/"+orderID+"/status", ta.adminToken, map[string]string{"status": "preparing"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestCreateOrderValidation(t *testing.T) {
	ta := setupApp(t)
	alice := ta.customer(t, "alice")

	body := checkoutBody(ta.ribeyeID, 1)
	body["delivery_mode"] = "delivery"
	resp, out := ta.do(t, http.MethodPost, "/api/v1/orders", alice, body)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "delivery_address", out["field"])

	resp, out = ta.do(t, http.MethodPost, "/api/v1/orders", alice, checkoutBody(ta.ribeyeID, 0))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "quantity", out["field"])

	resp, out = ta.do(t, http.MethodPost, "/api/v1/orders", alice, checkoutBody("unknown-product", 1))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "items", out["field"])
}
