package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"meatshop/internal/cache"
	"meatshop/internal/config"
	"meatshop/internal/database"
	"meatshop/internal/events"
	"meatshop/internal/handlers"
	"meatshop/internal/logging"
	"meatshop/internal/middleware"
	"meatshop/internal/models"
	"meatshop/internal/notification"
	"meatshop/internal/observability"
	"meatshop/internal/repositories"
	"meatshop/internal/services"
	"meatshop/pkg/rabbitmq"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zl, err := logging.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer zl.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.OtelEndpoint, cfg.ServiceName)
	if err != nil {
		zl.Fatal("failed to set up tracing", zap.Error(err))
	}

	app, cleanup, err := buildApp(ctx, cfg, zl)
	if err != nil {
		zl.Fatal("failed to start", zap.Error(err))
	}

	go func() {
		zl.Info("starting server", zap.String("addr", cfg.AppPort))
		if err := app.Listen(cfg.AppPort); err != nil {
			zl.Error("server stopped", zap.Error(err))
			stop()
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	<-ctx.Done()
	zl.Info("shutting down server")

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		zl.Error("error during fiber shutdown", zap.Error(err))
	}
	cleanup()

	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdownTracing(flushCtx); err != nil {
		zl.Warn("failed to flush traces", zap.Error(err))
	}
	zl.Info("server gracefully stopped")
}

// buildApp wires storage, services, event delivery and routes. The returned
// cleanup closes every connection opened here.
func buildApp(ctx context.Context, cfg *config.Config, zl *zap.Logger) (*fiber.App, func(), error) {
	var closers []func() error
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				zl.Warn("cleanup failed", zap.Error(err))
			}
		}
	}
	fail := func(err error) (*fiber.App, func(), error) {
		cleanup()
		return nil, nil, err
	}

	// --- Storage ---
	db, err := database.Open(cfg.DatabaseDriver, cfg.DatabaseDSN)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, func() error { return database.Close(db) })

	productRepo := repositories.NewGORMProductRepository(db)
	orderRepo := repositories.NewGORMOrderRepository(db)
	userRepo := repositories.NewGORMUserRepository(db)
	notificationRepo := repositories.NewGORMNotificationRepository(db)
	txManager := repositories.NewGORMTxManager(db, cfg.LockTimeout)

	// --- Services ---
	dispatcher := events.NewDispatcher(zl.Named("events"))
	coordinator := services.NewTransactionCoordinator(txManager, services.SystemClock{})
	productService := services.NewProductService(productRepo, zl.Named("products"))
	authService := services.NewAuthService(userRepo, cfg.JWTSecret, cfg.TokenTTL, zl.Named("auth"))
	orderService := services.NewOrderService(orderRepo, productRepo, coordinator, dispatcher, zl.Named("orders"))

	if cfg.RedisAddr != "" {
		rdb, err := cache.NewRedisClient(ctx, cfg.RedisAddr)
		if err != nil {
			return fail(err)
		}
		closers = append(closers, rdb.Close)
		orderService.WithIdempotency(cache.NewRedisIdempotencyStore(rdb, cfg.IdempotencyTTL))
	} else {
		orderService.WithIdempotency(cache.NewMemoryIdempotencyStore(cfg.IdempotencyTTL))
	}

	adminIDs := cfg.AdminUserIDs
	if cfg.SeedDemoData {
		adminID, err := seedDemoData(ctx, authService, userRepo, productService, zl)
		if err != nil {
			return fail(err)
		}
		adminIDs = append(adminIDs, adminID)
	}

	// --- Event delivery ---
	notifier := notification.NewNotifier(
		notification.NewStoreSink(notificationRepo),
		notification.NewLogEmailSink(zl.Named("email")),
		adminIDs,
		zl.Named("notifier"),
	)
	switch cfg.EventsBackend {
	case config.BackendRabbitMQ:
		mqClient, err := rabbitmq.NewClient(rabbitmq.Config{
			URL:      cfg.RabbitMQURL,
			Exchange: cfg.RabbitMQExchange,
			Queue:    cfg.RabbitMQQueue,
		}, zl.Named("rabbitmq"))
		if err != nil {
			return fail(err)
		}
		closers = append(closers, mqClient.Close)
		dispatcher.Register("rabbitmq", events.NewRabbitMQPublisher(mqClient))
		// notifications are fed back from the queue
		if err := mqClient.Consume(ctx, events.RabbitMQConsumer(notifier)); err != nil {
			return fail(err)
		}
	case config.BackendKafka:
		publisher := events.NewKafkaPublisher(events.NewKafkaWriter(cfg.KafkaBrokers, cfg.KafkaTopic, zl.Named("kafka")))
		closers = append(closers, publisher.Close)
		dispatcher.Register("kafka", publisher)
		dispatcher.Register("notifier", notifier)
	default:
		dispatcher.Register("notifier", notifier)
	}

	// --- HTTP ---
	app := fiber.New(fiber.Config{AppName: cfg.ServiceName})
	app.Use(recover.New())
	app.Use(logger.New())

	app.Get("/health", healthCheck(db))

	apiV1 := app.Group("/api/v1")
	handlers.NewAuthHandler(authService, zl.Named("http")).RegisterRoutes(apiV1)

	protected := apiV1.Group("", middleware.AuthRequired(authService, zl.Named("http")))
	handlers.NewProductHandler(productService, zl.Named("http")).RegisterRoutes(protected)
	handlers.NewOrderHandler(orderService, zl.Named("http")).RegisterRoutes(protected)
	handlers.NewNotificationHandler(notificationRepo, zl.Named("http")).RegisterRoutes(protected)

	return app, cleanup, nil
}

func healthCheck(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		status, code := "healthy", fiber.StatusOK
		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.PingContext(c.UserContext())
		}
		if err != nil {
			status, code = "unhealthy", fiber.StatusServiceUnavailable
		}
		return c.Status(code).JSON(fiber.Map{
			"status": status,
			"time":   time.Now().Format(time.RFC3339),
		})
	}
}

// seedDemoData creates the demo admin and catalog once and returns the admin id.
func seedDemoData(
	ctx context.Context,
	auth *services.AuthService,
	users repositories.UserRepository,
	products *services.ProductService,
	zl *zap.Logger,
) (string, error) {
	admin := &models.User{Username: "admin", Email: "admin@meatshop.local", Password: "admin12345"}
	if err := auth.CreateAdmin(ctx, admin); err != nil {
		if !errors.Is(err, services.ErrAlreadyExists) {
			return "", err
		}
		existing, err := users.GetByUsername(ctx, admin.Username)
		if err != nil {
			return "", err
		}
		admin = existing
	}

	current, err := products.GetAllProducts(ctx)
	if err != nil {
		return "", err
	}
	if len(current) > 0 {
		return admin.ID, nil
	}

	catalog := []models.Product{
		{Name: "Ribeye Steak", Unit: "kg", Price: decimal.NewFromInt(185000), TotalStock: 20, TrackStock: true, MaxOrderQuantity: 5, LowStockThreshold: 4},
		{Name: "Beef Brisket", Unit: "kg", Price: decimal.NewFromInt(140000), TotalStock: 15, TrackStock: true, LowStockThreshold: 3},
		{Name: "Chicken Thigh", Unit: "kg", Price: decimal.NewFromInt(48000), TotalStock: 40, TrackStock: true, LowStockThreshold: 8},
		{Name: "Beef Bone Broth", Unit: "pack", Price: decimal.NewFromInt(35000)},
	}
	for i := range catalog {
		if err := products.CreateProduct(ctx, &catalog[i]); err != nil {
			return "", err
		}
		zl.Info("seeded product", zap.String("product_id", catalog[i].ID), zap.String("name", catalog[i].Name))
	}
	return admin.ID, nil
}
