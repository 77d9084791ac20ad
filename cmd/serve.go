package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/shenikar/alerto360/internal/config"
	v1 "github.com/shenikar/alerto360/internal/handler/http/v1"
	"github.com/shenikar/alerto360/internal/messaging"
	"github.com/shenikar/alerto360/internal/repository"
	"github.com/shenikar/alerto360/internal/service"
	"github.com/shenikar/alerto360/internal/storage"
	"github.com/shenikar/alerto360/internal/vision"
	"github.com/shenikar/alerto360/internal/webhook"
	"github.com/shenikar/alerto360/pkg/logger"
	"github.com/shenikar/alerto360/pkg/postgres"
	redisclient "github.com/shenikar/alerto360/pkg/redis"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	_ "github.com/shenikar/alerto360/docs"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

var serveCommand = &cli.Command{
	Name:  "serve",
	Usage: "Start the HTTP server",
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:  "skip-migrations",
			Usage: "Do not apply pending migrations on startup",
		},
	},
	Action: serve,
}

func serve(cCtx *cli.Context) error {
	// Загрузка конфигурации
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Инициализация логгера
	log := logger.New(cfg.LogLevel)

	// Контекст для graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Запуск миграций
	if !cCtx.Bool("skip-migrations") {
		if err := runMigrations(cfg, log); err != nil {
			return err
		}
	}

	// Подключение к PostgreSQL
	dbpool, err := postgres.NewPostgresDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	defer dbpool.Close()
	db := postgres.OpenDB(dbpool)
	defer db.Close()
	log.Info("Successfully connected to PostgreSQL")

	// Инициализация Redis клиента
	redisClient, err := redisclient.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	if err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	defer redisClient.Close()
	log.Info("Successfully connected to Redis")

	publisher, closePublisher, err := newEventPublisher(ctx, cfg, redisClient, log)
	if err != nil {
		return err
	}
	defer closePublisher()

	images, err := newImageStore(ctx, cfg)
	if err != nil {
		return err
	}

	// Инициализация репозиториев
	incidentRepo := repository.NewIncidentRepository(db, redisClient, cfg.CacheTTL)
	notificationRepo := repository.NewNotificationRepository(db)
	userRepo := repository.NewUserRepository(db)
	txManager := repository.NewTxManager(db)

	// Инициализация сервисов
	classifier := vision.NewClassifier()
	notificationService := service.NewNotificationService(notificationRepo, log)
	userService := service.NewUserService(userRepo, cfg.JWTSecret, cfg.JWTTTL, log)
	incidentService := service.NewIncidentService(incidentRepo, txManager, notificationService, images, classifier, publisher, log)

	// Инициализация хэндлеров
	handler := v1.NewHandler(incidentService, userService, notificationService, classifier, log, cfg)

	// Настройка Gin роутера
	router := gin.New()
	router.Use(gin.Recovery(), v1.RequestLogger(log))
	router.MaxMultipartMemory = cfg.MaxUploadBytes * 2
	api := router.Group("/api/v1")
	handler.RegisterRoutes(api)

	// Добавление маршрута для Swagger UI
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()
	log.Infof("HTTP server started on port %s", cfg.HTTPPort)

	// Graceful shutdown
	select {
	case err := <-serverErr:
		return fmt.Errorf("error starting HTTP server: %w", err)
	case <-ctx.Done():
	}
	log.Info("Received shutdown signal, shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info("Server gracefully stopped")
	return nil
}

// newEventPublisher выбирает брокер событий по EVENT_BROKER
func newEventPublisher(ctx context.Context, cfg *config.Config, redisClient *redis.Client, log *logrus.Logger) (webhook.WebhookPublisher, func(), error) {
	switch cfg.EventBroker {
	case config.EventBrokerRedis:
		if cfg.WebhookURL == "" {
			log.Warn("WEBHOOK_URL is empty, events will queue in Redis without delivery")
		} else {
			// воркер останавливается вместе с ctx
			webhook.NewWebhookWorker(redisClient, log, cfg).Start(ctx)
		}
		return webhook.NewRedisWebhookPublisher(redisClient), func() {}, nil
	case config.EventBrokerAMQP:
		publisher, err := messaging.NewRabbitMQPublisher(cfg.AMQPURL, cfg.AMQPExchange, log)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
		}
		closeFn := func() {
			if err := publisher.Close(); err != nil {
				log.WithError(err).Warn("Failed to close RabbitMQ connection")
			}
		}
		return publisher, closeFn, nil
	default:
		log.Info("Event publishing disabled")
		return webhook.NopPublisher{}, func() {}, nil
	}
}

func newImageStore(ctx context.Context, cfg *config.Config) (service.ImageStore, error) {
	switch cfg.ImageStore {
	case config.ImageStoreS3:
		store, err := storage.NewS3Store(ctx, cfg.S3Bucket, cfg.S3Region, cfg.S3Endpoint)
		if err != nil {
			return nil, fmt.Errorf("failed to init S3 image store: %w", err)
		}
		return store, nil
	default:
		store, err := storage.NewLocalStore(cfg.UploadDir)
		if err != nil {
			return nil, fmt.Errorf("failed to init local image store: %w", err)
		}
		return store, nil
	}
}
