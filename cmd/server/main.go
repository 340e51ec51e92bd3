package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"keepsake-server/internal/catalog"
	"keepsake-server/internal/config"
	"keepsake-server/internal/database"
	"keepsake-server/internal/handler"
	"keepsake-server/internal/interfaces"
	"keepsake-server/internal/logger"
	"keepsake-server/internal/messaging"
	"keepsake-server/internal/metrics"
	"keepsake-server/internal/middleware"
	"keepsake-server/internal/service"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()
	log.Println("Запуск Keepsake Server...")

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}

	appLogger, err := logger.New(logger.Config{Level: cfg.LogLevel, Encoding: cfg.LogEncoding})
	if err != nil {
		log.Fatalf("Не удалось инициализировать логгер: %v", err)
	}
	defer appLogger.Sync()
	appLogger.Info("Logger initialized",
		zap.String("logLevel", cfg.LogLevel),
		zap.String("stateBackend", cfg.StateBackend),
		zap.String("timezone", cfg.Location().String()),
	)

	cat, err := loadCatalog(cfg.CatalogDir)
	if err != nil {
		appLogger.Fatal("Не удалось загрузить каталог контента", zap.String("dir", cfg.CatalogDir), zap.Error(err))
	}
	appLogger.Info("Каталог загружен", zap.Int("items", len(cat.Items())), zap.Int("clues", len(cat.Clues())))

	repo, closeRepo, err := setupRepository(cfg, appLogger)
	if err != nil {
		appLogger.Fatal("Не удалось инициализировать хранилище", zap.Error(err))
	}
	defer closeRepo()

	appMetrics := metrics.New()

	var publisher messaging.ResultPublisher
	if cfg.RabbitMQURL != "" {
		rabbitConn, err := connectRabbitMQ(cfg.RabbitMQURL, appLogger)
		if err != nil {
			appLogger.Fatal("Не удалось подключиться к RabbitMQ", zap.Error(err))
		}
		defer rabbitConn.Close()

		publisher, err = messaging.NewRabbitMQResultPublisher(rabbitConn, cfg.ProgressionResultsQueue, appLogger)
		if err != nil {
			appLogger.Fatal("Не удалось создать ResultPublisher", zap.Error(err))
		}
		defer publisher.Close()
	} else {
		appLogger.Info("RABBITMQ_URL не задан, публикация результатов отключена")
	}

	sessions := service.NewSessionService(service.Options{
		Catalog:     cat,
		Repository:  repo,
		Publisher:   publisher,
		Metrics:     appMetrics,
		Location:    cfg.Location(),
		SaveTimeout: cfg.SaveTimeout,
		IdleTimeout: cfg.SessionIdleTimeout,
	}, appLogger)
	progressionHandler := handler.NewProgressionHandler(sessions, appLogger, cfg.DebugEndpoints, appMetrics.Handler())

	e := echo.New()
	e.HideBanner = true
	e.Validator = handler.NewCustomValidator()
	e.Use(middleware.EchoZapLogger(appLogger))
	e.Use(echoMiddleware.Recover())
	e.Use(echoMiddleware.RequestID())
	e.Use(echoMiddleware.CORSWithConfig(echoMiddleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
	}))
	progressionHandler.RegisterRoutes(e)

	go func() {
		appLogger.Info("Keepsake сервер слушает", zap.String("port", cfg.Port))
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Fatal("Ошибка запуска HTTP сервера", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLogger.Info("Получен сигнал завершения, начинаем graceful shutdown...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		appLogger.Error("Ошибка при graceful shutdown Echo", zap.Error(err))
	}
	if err := sessions.Close(ctx); err != nil {
		appLogger.Error("Не все состояния сохранены при остановке", zap.Error(err))
	}

	appLogger.Info("Keepsake Server успешно остановлен")
}

func loadCatalog(dir string) (*catalog.Catalog, error) {
	if dir == "" {
		return catalog.Default()
	}
	return catalog.LoadDir(dir)
}

// setupRepository выбирает хранилище состояния по STATE_BACKEND.
// Возвращаемая функция освобождает соединения.
func setupRepository(cfg *config.Config, appLogger *zap.Logger) (interfaces.ProgressionRepository, func(), error) {
	switch cfg.StateBackend {
	case config.BackendPostgres:
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		pool, err := database.NewPool(ctx, cfg.GetDSN(), database.PoolOptions{
			MaxConns:    int32(cfg.DBMaxConns),
			MaxIdleTime: cfg.DBIdleTimeout,
		}, appLogger)
		if err != nil {
			return nil, nil, err
		}
		if err := database.ApplyMigrations(pool); err != nil {
			pool.Close()
			return nil, nil, err
		}
		appLogger.Info("Миграции применены")
		return database.NewPgProgressionRepository(pool, appLogger), pool.Close, nil

	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("не удалось подключиться к Redis: %w", err)
		}
		appLogger.Info("Успешное подключение к Redis", zap.String("addr", cfg.RedisAddr))
		return database.NewRedisProgressionRepository(client, appLogger, cfg.RedisStateTTL), func() { client.Close() }, nil

	case config.BackendSQLite:
		db, err := database.InitSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		appLogger.Info("SQLite хранилище открыто", zap.String("path", cfg.SQLitePath))
		return database.NewSQLiteProgressionRepository(db, appLogger), func() { db.Close() }, nil

	default:
		appLogger.Warn("Состояние хранится только в памяти процесса")
		return database.NewMemoryProgressionRepository(), func() {}, nil
	}
}

// connectRabbitMQ пытается подключиться к RabbitMQ с несколькими попытками
func connectRabbitMQ(url string, appLogger *zap.Logger) (*amqp.Connection, error) {
	const maxRetries = 5
	retryDelay := 5 * time.Second
	var err error
	for i := 0; i < maxRetries; i++ {
		var conn *amqp.Connection
		conn, err = amqp.Dial(url)
		if err == nil {
			appLogger.Info("Успешное подключение к RabbitMQ")
			return conn, nil
		}
		appLogger.Warn("Не удалось подключиться к RabbitMQ",
			zap.Int("attempt", i+1),
			zap.Int("max_attempts", maxRetries),
			zap.Duration("retry_delay", retryDelay),
			zap.Error(err),
		)
		time.Sleep(retryDelay)
	}
	return nil, err
}
