package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/yourorg/ohlcv-service/internal/config"
	"github.com/yourorg/ohlcv-service/internal/database"
	"github.com/yourorg/ohlcv-service/internal/handler"
	"github.com/yourorg/ohlcv-service/internal/middleware"
	"github.com/yourorg/ohlcv-service/internal/repository"
	"github.com/yourorg/ohlcv-service/internal/service"
	"github.com/yourorg/ohlcv-service/internal/validator"
)

func main() {
	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Set up logger
	logger, err := createLogger(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	if cfg.App.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	logger.Info("Starting application",
		zap.String("name", cfg.App.Name),
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Environment))

	// Connect to ClickHouse. The API still starts when the database is down;
	// /health/ready reports it and queries fail with DATABASE_CONNECTION_ERROR.
	pool := database.Open(cfg.ClickHouse, cfg.Pool, logger)
	connectCtx, cancelConnect := context.WithTimeout(context.Background(), cfg.Pool.ConnectRetry)
	if err := pool.Connect(connectCtx, cfg.Pool.ConnectRetry); err != nil {
		logger.Warn("Starting without a database connection", zap.Error(err))
	}
	cancelConnect()

	// Response cache
	var redisClient *redis.Client
	if cfg.Cache.Enabled {
		redisClient, err = middleware.NewRedisClient(cfg.Cache.URL)
		if err != nil {
			logger.Fatal("Invalid cache URL", zap.Error(err))
		}
	}

	// Initialize services
	queryBuilder := repository.NewQueryBuilder(cfg.ClickHouse.Table)
	ohlcvService := service.NewOHLCVService(pool, queryBuilder, cfg.Query.Timeout, logger)

	// Initialize handlers
	exposeErrors := !cfg.IsProduction()
	ohlcvHandler := handler.NewOHLCVHandler(
		ohlcvService,
		validator.NewOHLCVValidator(cfg.Query.DefaultLimit, cfg.Query.MaxLimit),
		exposeErrors,
		logger,
	)
	healthHandler := handler.NewHealthHandler(pool, cfg.App.Name, cfg.App.Version, cfg.API.Prefix, logger)

	router := setupRouter(ohlcvHandler, healthHandler, redisClient, exposeErrors, logger, cfg)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start the server in a goroutine
	go func() {
		logger.Info("Starting server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	// In-flight queries get the rest of the shutdown window
	if err := pool.Close(ctx); err != nil {
		logger.Error("Failed to close database pool", zap.Error(err))
	}

	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			logger.Error("Failed to close cache client", zap.Error(err))
		}
	}

	logger.Info("Server exited properly")
}

func createLogger(level, format string) (*zap.Logger, error) {
	zapLevel, err := zapcore.ParseLevel(level)
	if err != nil {
		zapLevel = zapcore.InfoLevel
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	encoding := "json"
	if format == "text" || format == "console" {
		encoding = "console"
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	config := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapLevel),
		Development:      false,
		Encoding:         encoding,
		EncoderConfig:    encoderConfig,
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	return config.Build()
}

func setupRouter(
	ohlcvHandler *handler.OHLCVHandler,
	healthHandler *handler.HealthHandler,
	redisClient *redis.Client,
	exposeErrors bool,
	logger *zap.Logger,
	cfg *config.Config,
) *gin.Engine {
	router := gin.New()

	// Use middlewares
	router.Use(middleware.Recovery(logger, exposeErrors))
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(logger))
	router.Use(middleware.CORS(cfg.API.CORSOrigins))
	router.NoRoute(middleware.NoRoute())

	// Service info and health checks
	router.GET("/", healthHandler.Root)
	health := router.Group("/health")
	{
		health.GET("", healthHandler.Health)
		health.GET("/ready", healthHandler.Ready)
		health.GET("/live", healthHandler.Live)
	}

	// API routes
	v1 := router.Group(cfg.API.Prefix)
	{
		ohlcv := v1.Group("/ohlcv")
		if redisClient != nil {
			ohlcv.Use(middleware.RedisCache(redisClient, middleware.CacheConfig{
				Enabled:         cfg.Cache.Enabled,
				DefaultDuration: cfg.Cache.TTL,
				PrefixKey:       cfg.Cache.Prefix,
			}, logger))
		}
		ohlcv.GET("", ohlcvHandler.GetOHLCV)
		ohlcv.GET("/", ohlcvHandler.GetOHLCV)
		ohlcv.GET("/latest", ohlcvHandler.GetLatest)
	}

	return router
}
