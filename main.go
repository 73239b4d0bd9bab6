package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"shop-svc/auth"
	"shop-svc/cache"
	"shop-svc/cart"
	"shop-svc/checkout"
	"shop-svc/circuitbreaker"
	"shop-svc/config"
	"shop-svc/database"
	"shop-svc/handlers"
	"shop-svc/kafka"
	"shop-svc/logging"
	"shop-svc/metrics"
	"shop-svc/middleware"
	"shop-svc/notification"
	"shop-svc/payment"
	"shop-svc/repository"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	logger, err := logging.New(cfg.ServiceName, cfg.Env)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	// Initialize OpenTelemetry
	shutdown, err := middleware.InitTracing(cfg.ServiceName, cfg.JaegerURL)
	if err != nil {
		logger.Fatal("Failed to initialize tracing", zap.Error(err))
	}
	defer shutdown()

	// Initialize database
	db, err := database.InitDB(cfg.DB, logger)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer db.Close()

	// Initialize Redis
	rdb, err := cache.InitRedis(cfg.Redis, logger)
	if err != nil {
		logger.Fatal("Failed to initialize Redis", zap.Error(err))
	}
	defer rdb.Close()

	// Initialize Kafka producer
	producer, err := kafka.InitProducer(cfg.Kafka, logger)
	if err != nil {
		logger.Fatal("Failed to initialize Kafka producer", zap.Error(err))
	}
	defer producer.Close()

	breaker := circuitbreaker.NewCircuitBreaker(cfg.Stripe.MaxFailures, cfg.Stripe.ResetTimeout,
		circuitbreaker.WithStateChange(func(from, to circuitbreaker.State) {
			metrics.RecordCircuitTransition("stripe", to.String())
			logger.Warn("Circuit breaker state changed",
				zap.String("breaker", "stripe"),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		}),
	)

	orders := repository.NewOrderRepository(db)
	payments := repository.NewPaymentRepository(db)
	products := repository.NewProductRepository(db)
	users := repository.NewUserRepository(db)
	carts := cart.NewStore(rdb, cfg.CartTTL)
	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)

	svc := checkout.NewService(checkout.Deps{
		Orders:    orders,
		Payments:  payments,
		Processor: payment.NewSimulator(cfg.Payments.CardSuccessRate, cfg.Payments.WalletSuccessRate, cfg.Payments.SimulatedDelay),
		Gateway:   payment.NewStripeGateway(cfg.Stripe.SecretKey, nil, breaker, logger),
		Publisher: kafka.NewPublisher(producer, cfg.Kafka.Topic, logger),
		Currency:  cfg.Stripe.Currency,
	}, logger)

	// Start notification consumer in background
	consumerCtx, stopConsumer := context.WithCancel(context.Background())
	defer stopConsumer()
	var consumer *notification.Consumer
	if cfg.Notifications {
		var mailer notification.Mailer = notification.NewLogMailer(logger)
		if cfg.Postmark.ServerToken != "" {
			mailer = notification.NewPostmarkMailer(cfg.Postmark.ServerToken, cfg.Postmark.From)
		}
		consumer = notification.NewConsumer(cfg.Kafka, notification.NewNotifier(mailer), logger)
		go func() {
			if err := consumer.Run(consumerCtx); err != nil {
				logger.Error("Notification consumer stopped", zap.Error(err))
			}
		}()
	}

	// Setup REST API with Gin
	if cfg.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	// OpenTelemetry middleware must be first to extract trace context
	router.Use(otelgin.Middleware(cfg.ServiceName))
	router.Use(middleware.LoggerMiddleware(logger))
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.Session(cfg.CartTTL))
	router.Use(middleware.Authenticate(tokens))

	router.GET("/health", handlers.HealthCheck)
	router.GET("/metrics", middleware.PrometheusHandler())

	staff := middleware.RequireStaff()

	productHandler := handlers.NewProductHandler(products, cache.NewProductCache(rdb, cfg.ProductTTL), logger)
	router.GET("/products", productHandler.ListProducts)
	router.GET("/products/category/:slug", productHandler.ListProducts)
	router.GET("/products/:id/:slug", productHandler.ProductDetail)
	router.POST("/products", staff, productHandler.CreateProduct)
	router.PUT("/products/:id", staff, productHandler.UpdateProduct)
	router.POST("/categories", staff, productHandler.CreateCategory)

	cartHandler := handlers.NewCartHandler(products, carts, logger)
	router.GET("/cart", cartHandler.CartDetail)
	router.POST("/cart/add/:product_id", cartHandler.AddToCart)
	router.POST("/cart/remove/:product_id", cartHandler.RemoveFromCart)

	orderHandler := handlers.NewOrderHandler(orders, payments, svc, carts, cfg.Stripe.PublishableKey, cfg.BaseURL, logger)
	router.GET("/orders/create", orderHandler.CheckoutPage)
	router.POST("/orders/create", orderHandler.CreateOrder)
	router.GET("/orders/history", orderHandler.OrderHistory)
	router.GET("/orders/:id", orderHandler.OrderDetail)
	router.GET("/orders/:id/retry", orderHandler.RetryPage)
	router.POST("/orders/:id/retry", orderHandler.RetryPayment)
	router.GET("/orders/:id/stripe/success", orderHandler.StripeSuccess)
	router.GET("/orders/:id/stripe/cancel", orderHandler.StripeCancel)

	paymentHandler := handlers.NewPaymentHandler(svc, payment.NewWebhookVerifier(cfg.Stripe.WebhookSecret), logger)
	router.POST("/orders/stripe/webhook", paymentHandler.StripeWebhook)
	router.POST("/orders/:id/payment/verify", staff, paymentHandler.VerifyPayment)
	router.POST("/orders/:id/payment/refund", staff, paymentHandler.RefundPayment)

	accountHandler := handlers.NewAccountHandler(users, orders, tokens, logger)
	router.POST("/accounts/register", accountHandler.Register)
	router.POST("/accounts/login", accountHandler.Login)
	router.POST("/accounts/logout", accountHandler.Logout)
	router.GET("/accounts/profile", accountHandler.Profile)

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	logger.Info("Shop service started", zap.String("addr", cfg.HTTPAddr))

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	stopConsumer()
	if consumer != nil {
		if err := consumer.Close(); err != nil {
			logger.Warn("Failed to close notification consumer", zap.Error(err))
		}
	}

	logger.Info("Server exited")
}
