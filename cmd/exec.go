package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v5"

	"community-events/config"
	"community-events/handlers"
	"community-events/internal/orders"
	"community-events/internal/payment"
	"community-events/internal/registration"
	"community-events/internal/status"
	"community-events/internal/store"
	"community-events/monitoring"
	"community-events/security"
	"community-events/utils"
)

func Start() error {
	// Load configuration
	cfg := config.LoadConfig()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Initialize Redis
	redisClient := utils.NewRedisClient(cfg.RedisURL, cfg.RedisPassword, cfg.RedisDB)
	defer redisClient.Close()

	// Initialize storage
	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize the payment gateway
	gateway, err := payment.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer gateway.Close(ctx)

	// Initialize services
	monitor := monitoring.NewMonitor(redisClient)
	finalizer := registration.NewFinalizer(st, monitor, logger)
	orderService := orders.NewService(st, redisClient, gateway, finalizer, monitor, cfg, logger)

	// Settle orders from gateway transaction notifications.
	txChannel := make(chan *status.Transaction, 16)
	gateway.SetTransactionChannel(txChannel)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case t := <-txChannel:
				logger.Info("gateway transaction received",
					"order_id", t.OrderID, "ref_id", t.RefID, "status", t.Status)
				if t.Status != "SUCCESS" {
					continue
				}
				if err := orderService.MarkPaid(ctx, t); err != nil {
					logger.Error("settlement failed", "order_id", t.OrderID, "error", err)
				}
			}
		}
	}()

	// Start background tasks
	go orderService.RunExpireSweeper(ctx, cfg.ExpireSweepInterval)

	// Initialize handlers
	auth := security.NewAuth(cfg.JWTSecret)
	limiter := security.NewRateLimiter(redisClient)
	orderHandler := handlers.NewOrderHandler(orderService, logger)
	eventHandler := handlers.NewEventHandler(st)
	registrationHandler := handlers.NewRegistrationHandler(finalizer, logger)
	paymentHandler := handlers.NewPaymentHandler(orderService, cfg.WepayNotifyKey, logger)
	if cfg.WepayNotifyKey == "" {
		logger.Warn("WEPAY_NOTIFY_KEY not set, payment webhooks will be rejected")
	}

	e := echo.New()

	authed := e.Group("/api", auth.Require())
	authed.GET("/events/:eventId/orders/pending", orderHandler.GetPendingOrder)
	authed.GET("/events/:eventId/orders/:orderId", orderHandler.GetOrder)
	authed.POST("/events/:eventId/orders/:orderId/cancel", orderHandler.CancelOrder)
	authed.GET("/events/:eventId/orders/:orderId/invites", orderHandler.ListInvites)
	authed.POST("/events/:eventId/register", registrationHandler.Register)

	limited := e.Group("/api", auth.Require(), limiter.OrderRateLimit(cfg.OrderRateLimit))
	limited.POST("/events/:eventId/orders", orderHandler.CreateOrder)

	optional := e.Group("/api", auth.Optional())
	optional.GET("/events/:eventId/eligibility", eventHandler.GetEligibility)

	public := e.Group("/api")
	public.GET("/events/:eventId/tickets", eventHandler.ListTickets)
	public.POST("/webhooks/payment", paymentHandler.Webhook)

	// Test endpoint for payment simulation
	if cfg.Environment == "development" {
		if mock, ok := gateway.(*payment.MockGateway); ok {
			public.POST("/test/simulate-payment", paymentHandler.SimulatePayment(mock))
		}
		if err := seedDevData(ctx, st, auth, logger); err != nil {
			logger.Warn("dev seed failed", "error", err)
		}
	}

	// Health check
	e.GET("/health", func(c echo.Context) error {
		if err := utils.RedisHealthCheck(redisClient); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{
				"status": "unhealthy",
				"error":  err.Error(),
			})
		}
		return c.JSON(http.StatusOK, map[string]string{"status": "healthy"})
	})

	if cfg.EnableMetrics {
		go serveMetrics(cfg.MetricsPort, logger)
	}

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      e,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go handleShutdown(cancel, server, logger)

	logger.Info("server starting", "port", cfg.Port, "provider", cfg.PaymentProvider)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func serveMetrics(port string, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", monitoring.Handler())
	logger.Info("metrics server starting", "port", port)
	if err := http.ListenAndServe(":"+port, mux); err != nil {
		logger.Error("metrics server stopped", "error", err)
	}
}

// handleShutdown handles graceful shutdown
func handleShutdown(cancel context.CancelFunc, server *http.Server, logger *slog.Logger) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	logger.Info("shutdown signal received, cleaning up")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", "error", err)
	}
}
