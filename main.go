package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"checkout-service/cache"
	"checkout-service/controllers"
	"checkout-service/database"
	"checkout-service/kafka"
	"checkout-service/logger"
	"checkout-service/models"
	"checkout-service/repository"
	"checkout-service/routes"
	"checkout-service/sender"
	"checkout-service/services"
	"checkout-service/workers"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	cfg, err := LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger.Initialize(cfg.Environment)
	zlog := logger.Log
	defer zlog.Sync()

	db, err := database.ConnectPostgres(database.PostgresConfig{
		User:     cfg.PostgresUser,
		Password: cfg.PostgresPassword,
		DB:       cfg.PostgresDB,
		Host:     cfg.PostgresHost,
		Port:     cfg.PostgresPort,
		SSLMode:  cfg.PostgresSSLMode,
		TimeZone: cfg.PostgresTimeZone,
	}, zlog,
		&models.Product{}, &models.Cart{}, &models.CartItem{},
		&models.Order{}, &models.OrderItem{},
	)
	if err != nil {
		zlog.Fatal("failed to connect to database", zap.Error(err))
	}

	rdb, err := database.NewRedisClient(cfg.RedisURL)
	if err != nil {
		zlog.Fatal("failed to connect to redis", zap.Error(err))
	}

	cacheManager := cache.NewCacheManager(rdb, cfg.CacheTTL, zlog)
	dedup := cache.NewIdempotencyStore(rdb, cfg.IdempotencyTTL)

	notifyProducer := kafka.NewProducer(cfg.KafkaBrokers, cfg.NotificationTopic, zlog)
	dlqProducer := kafka.NewProducer(cfg.KafkaBrokers, cfg.NotificationDLQ, zlog)

	cartRepo := repository.NewGormCartRepository(db)
	productRepo := repository.NewGormProductRepository(db)
	orderRepo := repository.NewGormOrderRepository(db)
	orderStore := repository.NewGormOrderStore(db)

	orderService := services.NewOrderService(
		cartRepo,
		orderStore,
		cacheManager,
		notifyProducer,
		services.OrderServiceConfig{
			MaxConflictRetries: cfg.MaxConflictRetries,
			ConflictBackoff:    cfg.ConflictBackoff,
		},
		zlog,
	)

	emailSender, err := sender.NewSMTPSender(sender.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUser,
		Password: cfg.SMTPPass,
	})
	if err != nil {
		zlog.Fatal("failed to initialize email sender", zap.Error(err))
	}

	worker := workers.NewNotificationWorker(
		workers.WorkerConfig{
			Brokers:     cfg.KafkaBrokers,
			Topic:       cfg.NotificationTopic,
			GroupID:     cfg.NotificationGroup,
			MaxAttempts: cfg.NotifyMaxAttempts,
			BaseBackoff: cfg.NotifyBaseBackoff,
		},
		dedup,
		emailSender,
		dlqProducer,
		zlog,
	)

	workerCtx, stopWorker := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.Start(workerCtx)
	}()

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), logger.RequestLogger())

	routes.RegisterRoutes(r,
		controllers.NewOrderController(orderService, orderRepo),
		controllers.NewProductController(productRepo, cacheManager),
		controllers.NewCartController(cartRepo),
	)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	go func() {
		zlog.Info("HTTP server listening", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zlog.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Error("HTTP shutdown error", zap.Error(err))
	}

	stopWorker()
	wg.Wait()
	worker.Close()

	notifyProducer.Close()
	dlqProducer.Close()
	rdb.Close()
	if err := database.Close(db); err != nil {
		zlog.Error("failed to close database", zap.Error(err))
	}
	zlog.Info("shutdown complete")
}
