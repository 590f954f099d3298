package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"smartq/queue-service/internal/config"
	"smartq/queue-service/internal/httpapi"
	"smartq/queue-service/internal/hub"
	"smartq/queue-service/internal/service"
	"smartq/queue-service/internal/store"
	"smartq/queue-service/internal/store/memory"
	"smartq/queue-service/internal/store/postgres"
	"smartq/queue-service/internal/telemetry"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	cfg := config.Load()
	logger := cfg.Logger()
	slog.SetDefault(logger)

	shutdownTracing := telemetry.Setup(context.Background(), telemetry.Options{
		ServiceName: "queue-service",
		Endpoint:    cfg.OTLPEndpoint,
		Insecure:    cfg.OTLPInsecure,
		Logger:      logger,
	})
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			logger.Error("tracing shutdown", "error", err)
		}
	}()

	hours, err := cfg.BusinessHours()
	if err != nil {
		logger.Error("business hours", "error", err)
		os.Exit(1)
	}

	var ticketStore store.TicketStore
	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
		if err != nil {
			logger.Error("db connect", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		ticketStore = postgres.NewStore(pool)
	} else {
		logger.Warn("DB_DSN not set, using in-memory store")
		ticketStore = memory.NewStore()
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Error("redis url", "error", err)
			os.Exit(1)
		}
		redisClient = redis.NewClient(opts)
		defer redisClient.Close()
	}

	board := hub.New(logger)
	svc := service.New(ticketStore, service.Options{
		Hours:     hours,
		Publisher: board,
		Logger:    logger,
	})
	handler := httpapi.NewHandler(svc, httpapi.Options{Hub: board, Logger: logger})
	limiter := httpapi.NewRateLimiter(httpapi.RateLimitConfig{
		IPPerMinute:    cfg.RateLimitPerMinute,
		IPBurst:        cfg.RateLimitBurst,
		StaffPerMinute: cfg.StaffRateLimitPerMinute,
		StaffBurst:     cfg.StaffRateLimitBurst,
		Redis:          redisClient,
		Logger:         logger,
	})

	routes := httpapi.AuthMiddleware(ticketStore, handler.Routes())
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      otelhttp.NewHandler(httpapi.LoggingMiddleware(logger, limiter.Middleware(routes)), "queue-service"),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("queue-service listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}
