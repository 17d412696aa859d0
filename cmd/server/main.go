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

	"github.com/gin-gonic/gin"
	"github.com/rongwang/exchange-desk-server/internal/api"
	"github.com/rongwang/exchange-desk-server/internal/cache"
	"github.com/rongwang/exchange-desk-server/internal/config"
	"github.com/rongwang/exchange-desk-server/internal/migrate"
	"github.com/rongwang/exchange-desk-server/internal/realtime"
	"github.com/rongwang/exchange-desk-server/internal/repository"
	"github.com/rongwang/exchange-desk-server/internal/service"
	"github.com/rongwang/exchange-desk-server/internal/utils"
	"go.uber.org/zap"
)

const (
	heartbeatInterval = 30 * time.Second
	shutdownTimeout   = 10 * time.Second
)

func main() {
	// Load configuration
	cfg := config.LoadConfig()

	logger, err := utils.NewLogger(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Set up database connection
	db, err := config.SetupDatabase(cfg)
	if err != nil {
		logger.Fatal("failed to set up database", zap.Error(err))
	}
	defer db.Close()

	migrations, err := migrate.Embedded()
	if err != nil {
		logger.Fatal("failed to load migrations", zap.Error(err))
	}
	runner := migrate.NewRunner(db, logger.Named("migrate"), migrations)
	statuses, err := runner.Status(ctx)
	if err != nil {
		logger.Fatal("failed to read migration status", zap.Error(err))
	}
	for _, st := range migrate.Pending(statuses) {
		logger.Info("pending migration", zap.Int("version", st.Version), zap.String("name", st.Name))
	}

	applied, err := runner.Up(ctx)
	if err != nil {
		logger.Fatal("failed to apply migrations", zap.Error(err))
	}
	logger.Info("migrations up to date", zap.Int("applied", applied))

	repo := repository.NewPostgresRepository(db)

	var prices cache.PriceCache = cache.NopPriceCache{}
	if cfg.Redis.Addr != "" {
		redisCache := cache.NewRedisPriceCache(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.PriceTTL)
		defer redisCache.Close()
		if err := redisCache.Ping(ctx); err != nil {
			// prices are still served from postgres
			logger.Warn("price cache unreachable", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		}
		prices = redisCache
	}

	hub := realtime.NewHub(logger.Named("realtime"))
	go hub.Heartbeat(ctx, heartbeatInterval)

	svc := service.New(repo, service.Options{
		JWTSecret:     cfg.Auth.JWTSecret,
		TokenDuration: cfg.Auth.TokenTTL,
		Publisher:     hub,
		Prices:        prices,
		Logger:        logger,
	})

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(api.RequestLogger(logger.Named("http")))
	router.Use(api.JWTSecretMiddleware(cfg.Auth.JWTSecret))

	api.NewHandler(svc, hub, logger.Named("api")).SetupRoutes(router)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting server", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}
