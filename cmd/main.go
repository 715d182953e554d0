package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"marketplace-app/internal/config"
	"marketplace-app/internal/handler"
	"marketplace-app/internal/repository"
	"marketplace-app/internal/services"
	"marketplace-app/internal/utils"
)

func main() {
	// 1. Базовый контекст + менеджер завершения
	baseCtx := context.Background()
	ctx, shutdownManager := utils.NewShutdownManager(baseCtx)
	shutdownManager.StartListening()

	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	// 2. Инициализация MongoDB
	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.Mongo.URI))
	if err != nil {
		log.Fatal("Failed to connect to MongoDB:", err)
	}
	db := mongoClient.Database(cfg.Mongo.DBName)

	shutdownManager.Register(func(ctx context.Context) error {
		log.Println("[SHUTDOWN] Closing MongoDB connection...")
		return mongoClient.Disconnect(ctx)
	})

	// 3. Инициализация Redis
	opts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		log.Fatal("Invalid Redis URL:", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatal("Failed to ping Redis:", err)
	}

	shutdownManager.Register(func(ctx context.Context) error {
		log.Println("[SHUTDOWN] Closing Redis connection...")
		return rdb.Close()
	})

	// 4. Инициализация сервисов
	gateway := utils.NewGatewayClient(cfg.Gateway)

	orderRepo := repository.NewOrderRepository(db)
	planRepo := repository.NewPlanRepository(mongoClient, db)
	feedbackRepo := repository.NewFeedbackRepository(db)
	userRepo := repository.NewUserRepository(db)

	orderService := services.NewOrderService(orderRepo, rdb, gateway, cfg)
	planService := services.NewPlanService(planRepo, gateway, cfg)
	feedbackService := services.NewFeedbackService(feedbackRepo, orderRepo, userRepo)

	orderHandler := handler.NewOrderHandler(orderService)
	planHandler := handler.NewPlanHandler(planService)
	feedbackHandler := handler.NewFeedbackHandler(feedbackService)

	// 5. Диспетчер webhook-событий и планировщик истечения планов
	dispatcher := services.NewWebhookDispatcher(orderService, planService, rdb)
	dispatcher.Start(ctx)
	webhookHandler := handler.NewWebhookHandler(gateway, dispatcher)

	utils.StartExpirationScheduler(ctx, planService)

	// 6. Настройка роутера
	router := gin.Default()

	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"http://localhost:3000"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	limiter := utils.NewRedisRateLimiter(rdb, cfg.RateLimit.Requests,
		time.Duration(cfg.RateLimit.WindowSeconds)*time.Second)
	router.Use(utils.RateLimitMiddleware(limiter))

	// Webhook идёт без auth middleware: его единственная защита — подпись
	router.POST("/webhooks/payments", webhookHandler.HandlePaymentWebhook)

	api := router.Group("/api")
	api.Use(utils.AuthMiddleware(cfg.AuthService.URL))

	orders := api.Group("/orders")
	{
		orders.POST("/", orderHandler.CreateOrder)
		orders.GET("/my", orderHandler.GetMyOrders)
		orders.GET("/provider", orderHandler.GetProviderOrders)
		orders.GET("/:id", orderHandler.GetOrder)
		orders.PATCH("/:id/status", orderHandler.UpdateStatus)
		orders.PATCH("/:id/payment-status", orderHandler.UpdatePaymentStatus)
		orders.POST("/:id/cancel", orderHandler.CancelOrder)
		orders.POST("/:id/review", orderHandler.AddReview)
		orders.POST("/:id/messages", orderHandler.AddMessage)
		orders.POST("/:id/payment-session", orderHandler.CreatePaymentSession)
	}

	plans := api.Group("/plans")
	{
		plans.GET("/my", planHandler.GetMyPlan)
		plans.POST("/activate", planHandler.ActivatePlan)
		plans.POST("/upgrade", planHandler.UpgradePlan)
		plans.POST("/renew", planHandler.RenewPlan)
		plans.POST("/cancel", planHandler.CancelPlan)

		admin := plans.Group("/")
		admin.Use(utils.RequireRoles("admin"))
		{
			admin.POST("/expire/:providerId", planHandler.CheckExpiration)
			admin.POST("/sweep", planHandler.SweepExpired)
		}
	}

	feedback := api.Group("/feedback")
	{
		feedback.POST("/order/:orderId", feedbackHandler.CreateFeedback)
		feedback.GET("/provider/:providerId", feedbackHandler.GetProviderFeedback)

		admin := feedback.Group("/")
		admin.Use(utils.RequireRoles("admin", "customer"))
		{
			admin.DELETE("/:id", feedbackHandler.DeleteFeedback)
		}
	}

	// 7. Запуск сервера
	server := &http.Server{
		Addr:    cfg.Server.Port,
		Handler: router,
	}

	go func() {
		log.Println("Marketplace service running on", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	shutdownManager.Register(func(ctx context.Context) error {
		log.Println("[SHUTDOWN] Shutting down HTTP server...")
		return server.Shutdown(ctx)
	})

	// Всё остальное делает shutdownManager
	select {}
}
