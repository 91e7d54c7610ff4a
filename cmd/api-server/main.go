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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hackgods/medcare-scheduling/internal/api"
	"github.com/hackgods/medcare-scheduling/internal/config"
	"github.com/hackgods/medcare-scheduling/internal/db"
	"github.com/hackgods/medcare-scheduling/internal/logging"
	"github.com/hackgods/medcare-scheduling/internal/metrics"
	"github.com/hackgods/medcare-scheduling/internal/migrations"
	redisclient "github.com/hackgods/medcare-scheduling/internal/redis"
	"github.com/hackgods/medcare-scheduling/internal/scheduling"
	"github.com/hackgods/medcare-scheduling/internal/tracing"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "api-server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config load: %w", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("api-server starting up",
		zap.String("env", cfg.Env),
		zap.String("http_port", cfg.HTTPPort),
		zap.String("version", cfg.Version),
		zap.Int("horizon_days", cfg.HorizonDays),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := tracing.Init(rootCtx, tracing.Config{
		Enabled:     cfg.TracingEnabled,
		ServiceName: "medcare-scheduling",
		Endpoint:    cfg.OTLPEndpoint,
		Env:         cfg.Env,
		Version:     cfg.Version,
	})
	if err != nil {
		return fmt.Errorf("tracing init: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Warn("tracer shutdown", zap.Error(err))
		}
	}()

	if cfg.MigrateOnStart {
		if err := migrations.Up(cfg.PostgresDSN); err != nil {
			return err
		}
		logger.Info("migrations applied")
	}

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, cfg.DBMaxConns)
	cancelPg()
	if err != nil {
		return fmt.Errorf("postgres connection: %w", err)
	}
	defer pgPool.Close()
	logger.Info("connected to Postgres", zap.Int32("max_conns", cfg.DBMaxConns))

	// Redis is optional: without it bookings rely on the database alone.
	var (
		rdb    *goredis.Client
		locker redisclient.Locker
	)
	rdb, err = redisclient.NewRedisClient(rootCtx, cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		logger.Warn("redis unavailable, slot locking disabled", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		rdb = nil
	} else {
		defer func() {
			if err := rdb.Close(); err != nil {
				logger.Warn("error closing redis", zap.Error(err))
			}
		}()
		locker = redisclient.NewRedisSlotLocker(rdb, cfg.LockTTL, cfg.LockWait)
		logger.Info("connected to Redis", zap.Duration("lock_ttl", cfg.LockTTL), zap.Duration("lock_wait", cfg.LockWait))
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(reg)

	svc := scheduling.NewService(scheduling.NewPgRepository(pgPool), locker, scheduling.Options{
		HorizonDays:    cfg.HorizonDays,
		SlotCatalogTTL: cfg.SlotCatalogTTL,
		Logger:         logger.Named("scheduling"),
		Metrics:        collector,
	})

	if err := svc.Lifecycle.VerifyStatuses(rootCtx); err != nil {
		return fmt.Errorf("appointment statuses: %w", err)
	}

	router := api.NewRouter(api.RouterConfig{
		Catalog:      svc.Catalog,
		Schedules:    svc.Schedules,
		Availability: svc.Availability,
		Booking:      svc.Booking,
		Lifecycle:    svc.Lifecycle,
		Health:       api.NewHealthHandler(pgPool, rdb, cfg.Env, cfg.Version),
		Logger:       logger.Named("http"),
		Metrics:      collector,
		Gatherer:     reg,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-rootCtx.Done():
	}

	logger.Info("shutting down api-server", zap.Duration("timeout", cfg.ShutdownTimeout))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}

	logger.Info("api-server stopped")
	return nil
}
