package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"

	"github.com/arlev/storefront-api/internal/config"
	"github.com/arlev/storefront-api/internal/handler"
	"github.com/arlev/storefront-api/internal/middleware"
	"github.com/arlev/storefront-api/internal/model"
	"github.com/arlev/storefront-api/internal/repository"
	"github.com/arlev/storefront-api/internal/service"
	"github.com/arlev/storefront-api/internal/worker"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Error("load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// PostgreSQL
	poolCfg, err := pgxpool.ParseConfig(cfg.DB.DSN())
	if err != nil {
		log.Error("parse db config", "error", err)
		os.Exit(1)
	}
	poolCfg.MaxConns = cfg.DB.MaxConns

	dbPool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		log.Error("connect to database", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()

	if err := dbPool.Ping(ctx); err != nil {
		log.Error("ping database", "error", err)
		os.Exit(1)
	}
	log.Info("connected to PostgreSQL")

	// Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Error("connect to Redis", "error", err)
		os.Exit(1)
	}
	log.Info("connected to Redis")

	// RabbitMQ
	amqpConn, err := amqp.Dial(cfg.RabbitMQ.URL)
	if err != nil {
		log.Error("connect to RabbitMQ", "error", err)
		os.Exit(1)
	}
	defer amqpConn.Close()

	amqpCh, err := amqpConn.Channel()
	if err != nil {
		log.Error("open RabbitMQ channel", "error", err)
		os.Exit(1)
	}
	defer amqpCh.Close()

	if err := worker.SetupRabbitMQ(amqpCh); err != nil {
		log.Error("setup RabbitMQ", "error", err)
		os.Exit(1)
	}
	log.Info("connected to RabbitMQ")

	// Repositories
	userRepo := repository.NewUserRepository(dbPool)
	tokenRepo := repository.NewRefreshTokenRepository(dbPool)
	productRepo := repository.NewProductRepository(dbPool)
	categoryRepo := repository.NewCategoryRepository(dbPool)
	cartRepo := repository.NewCartRepository(dbPool)
	orderRepo := repository.NewOrderRepository(dbPool, productRepo, cartRepo)
	reviewRepo := repository.NewReviewRepository(dbPool)

	// Services
	authSvc := service.NewAuthService(userRepo, tokenRepo, cfg.JWT.Secret, cfg.JWT.Expiration, cfg.JWT.RefreshExpiry)
	userSvc := service.NewUserService(userRepo, tokenRepo)
	productSvc := service.NewProductService(productRepo, categoryRepo, redisClient)
	categorySvc := service.NewCategoryService(categoryRepo)
	cartSvc := service.NewCartService(cartRepo, productRepo)
	orderSvc := service.NewOrderService(orderRepo, cartRepo, amqpCh)
	reviewSvc := service.NewReviewService(reviewRepo, productRepo)
	analyticsSvc := service.NewAnalyticsService(orderRepo)

	// Handlers
	authH := handler.NewAuthHandler(authSvc)
	userH := handler.NewUserHandler(userSvc)
	productH := handler.NewProductHandler(productSvc)
	categoryH := handler.NewCategoryHandler(categorySvc)
	cartH := handler.NewCartHandler(cartSvc)
	orderH := handler.NewOrderHandler(orderSvc)
	reviewH := handler.NewReviewHandler(reviewSvc)
	analyticsH := handler.NewAnalyticsHandler(analyticsSvc)
	healthH := handler.NewHealthHandler(dbPool, redisClient, amqpConn)

	// Worker
	fulfillmentWorker := worker.NewFulfillmentWorker(amqpCh, orderRepo, redisClient, log)

	// Router
	router := gin.Default()
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORS.AllowOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/healthz", healthH.Healthz)
	router.GET("/readyz", healthH.Readyz)

	authed := middleware.AuthMiddleware(cfg.JWT.Secret)
	adminOnly := middleware.RequireRole(model.RoleAdmin)
	superadminOnly := middleware.RequireRole(model.RoleSuperAdmin)

	v1 := router.Group("/api/v1")
	{
		auth := v1.Group("/auth")
		auth.POST("/register", authH.Register)
		auth.POST("/login", authH.Login)
		auth.POST("/refresh", authH.Refresh)
		auth.POST("/logout", authH.Logout)
		auth.POST("/forgot-password", authH.ForgotPassword)
		auth.POST("/reset-password", authH.ResetPassword)

		users := v1.Group("/users", authed)
		users.GET("/me", userH.GetProfile)
		users.PUT("/me", userH.UpdateProfile)
		users.PATCH("/:id/role", superadminOnly, userH.ChangeRole)
		users.DELETE("/:id", userH.DeleteAccount)

		categories := v1.Group("/categories")
		categories.GET("", categoryH.List)
		categories.GET("/:id", categoryH.GetByID)

		adminCategories := categories.Group("", authed, adminOnly)
		adminCategories.POST("", categoryH.Create)
		adminCategories.PUT("/:id", categoryH.Update)
		adminCategories.DELETE("/:id", categoryH.Delete)

		products := v1.Group("/products")
		products.GET("", productH.List)
		products.GET("/:id", productH.GetByID)
		products.GET("/:id/reviews", reviewH.ListByProduct)
		products.POST("/:id/reviews", authed, reviewH.Create)

		adminProducts := products.Group("", authed, adminOnly)
		adminProducts.POST("", productH.Create)
		adminProducts.PUT("/:id", productH.Update)
		adminProducts.DELETE("/:id", productH.Delete)

		reviews := v1.Group("/reviews", authed)
		reviews.DELETE("/:id", reviewH.Delete)

		cart := v1.Group("/cart", authed)
		cart.GET("", cartH.GetCart)
		cart.POST("/items", cartH.AddItem)
		cart.PUT("/items/:id", cartH.UpdateItem)
		cart.DELETE("/items/:id", cartH.DeleteItem)
		cart.DELETE("/clear", cartH.Clear)

		orders := v1.Group("/orders", authed)
		orders.POST("", orderH.CreateOrder)
		orders.GET("", orderH.ListOrders)
		orders.GET("/all", adminOnly, orderH.ListAllOrders)
		orders.GET("/:id", orderH.GetOrder)
		orders.PATCH("/:id/status", adminOnly, orderH.UpdateStatus)

		admin := v1.Group("/admin", authed, adminOnly)
		admin.GET("/analytics/sales", analyticsH.SalesSummary)
	}

	if err := fulfillmentWorker.Start(ctx); err != nil {
		log.Error("start fulfillment worker", "error", err)
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info("starting HTTP server", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown", "error", err)
	}

	fulfillmentWorker.Stop()
	time.Sleep(500 * time.Millisecond)
	cancel()
	log.Info("server stopped")
}
