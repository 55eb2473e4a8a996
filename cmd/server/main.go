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
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	httpAdapter "github.com/iho/storeledger/internal/adapter/http"
	"github.com/iho/storeledger/internal/adapter/http/handler"
	"github.com/iho/storeledger/internal/adapter/http/middleware"
	"github.com/iho/storeledger/internal/adapter/repository/memory"
	postgresRepo "github.com/iho/storeledger/internal/adapter/repository/postgres"
	redisRepo "github.com/iho/storeledger/internal/adapter/repository/redis"
	"github.com/iho/storeledger/internal/domain"
	"github.com/iho/storeledger/internal/infrastructure/auth"
	"github.com/iho/storeledger/internal/infrastructure/config"
	"github.com/iho/storeledger/internal/infrastructure/eventpublisher"
	"github.com/iho/storeledger/internal/infrastructure/logger"
	"github.com/iho/storeledger/internal/infrastructure/metrics"
	"github.com/iho/storeledger/internal/infrastructure/postgres"
	"github.com/iho/storeledger/internal/infrastructure/redis"
	"github.com/iho/storeledger/internal/infrastructure/worker"
	"github.com/iho/storeledger/internal/usecase"
)

const (
	janitorInterval = time.Minute
	visitorIdleTTL  = 10 * time.Minute
	streamMaxLen    = 100000
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
	log.Info().Msg("server stopped")
}

// app is the wired service: its HTTP handler and background workers.
type app struct {
	handler          http.Handler
	publisher        *eventpublisher.EventPublisher
	sweeper          *worker.SweeperWorker
	limiter          *middleware.RateLimiter
	memoryKeys       *memory.IdempotencyStore
	idempotencyStore usecase.IdempotencyStore
	closers          []func()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// newApp wires storage, use cases and transport from cfg. A nil registry
// registers metrics on the default Prometheus registry.
func newApp(ctx context.Context, cfg *config.Config, log zerolog.Logger, registry *prometheus.Registry) (*app, error) {
	a := &app{}
	ok := false
	defer func() {
		if !ok {
			a.close()
		}
	}()

	var (
		reg            prometheus.Registerer = prometheus.DefaultRegisterer
		metricsHandler http.Handler
	)
	if registry != nil {
		reg = registry
		metricsHandler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	}
	m := metrics.NewWithRegisterer(reg)

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	clock := usecase.NewSystemClock(loc)
	ids := postgresRepo.NewULIDGenerator()
	checks := map[string]handler.Pinger{}

	var stores usecase.Stores
	switch cfg.StorageDriver {
	case config.StorageMemory:
		log.Warn().Msg("using in-memory storage; data is lost on restart")
		stores = memory.NewStore().Stores(ids)
	default:
		pool, err := postgres.NewPoolWithConfig(ctx, postgres.PoolConfig{
			DatabaseURL:    cfg.DatabaseURL,
			MaxConns:       cfg.DatabaseMaxConns,
			MinConns:       cfg.DatabaseMinConns,
			ConnectTimeout: cfg.DatabaseTimeout,
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, pool.Close)
		log.Info().Msg("connected to postgres")

		if cfg.RunMigrations {
			if err := postgres.NewMigrator(cfg.DatabaseURL, cfg.MigrationsPath, log).Up(); err != nil {
				return nil, err
			}
		}
		stores = postgresRepo.NewStores(pool, ids, postgresRepo.NewRetrier(log))
		checks["postgres"] = pool
	}

	var redisClient *goredis.Client
	if cfg.RedisEnabled {
		redisClient, err = redis.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = redisClient.Close() })
		log.Info().Msg("connected to redis")

		a.idempotencyStore = redisRepo.NewIdempotencyStore(redisClient)
		checks["redis"] = handler.PingFunc(func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		})
	} else {
		a.memoryKeys = memory.NewIdempotencyStore()
		a.idempotencyStore = a.memoryKeys
	}

	warning, critical := cfg.VarianceThresholds()
	ledgerUC := usecase.NewLedgerUseCase(stores, clock, usecase.LedgerConfig{
		AllowPartialPayments: cfg.AllowPartialPayments,
	}, log, m)
	sessionUC := usecase.NewCashSessionUseCase(stores, clock,
		domain.VarianceThresholds{Warning: warning, Critical: critical}, log, m)
	sweeperUC := usecase.NewSweeperUseCase(stores, clock, cfg.SweepBatchSize, log, m)
	reconUC := usecase.NewReconciliationUseCase(stores.Tx, stores.Sales, stores.Payments, stores.Sessions, stores.Entries, clock)

	var publisher eventpublisher.Publisher = eventpublisher.NewLogPublisher(log)
	if cfg.EventStream != "" {
		if redisClient == nil {
			return nil, errors.New("EVENT_STREAM requires REDIS_ENABLED")
		}
		publisher = eventpublisher.NewStreamPublisher(redisClient, cfg.EventStream, streamMaxLen)
	}
	a.publisher = eventpublisher.NewEventPublisher(eventpublisher.Config{
		OutboxRepo: stores.Outbox,
		Publisher:  publisher,
		Logger:     log,
		Metrics:    m,
		BatchSize:  cfg.OutboxBatchSize,
		Interval:   cfg.OutboxInterval,
		Retention:  cfg.OutboxRetention,
	})
	a.sweeper = worker.NewSweeperWorker(sweeperUC, cfg.SweepInterval, log)

	var jwtManager *auth.JWTManager
	if cfg.AuthEnabled {
		jwtManager = auth.NewJWTManager(cfg.JWTSecret, cfg.JWTExpiration)
	} else {
		log.Warn().Msg("authentication disabled; callers are trusted via " + middleware.ActorHeader)
	}
	if cfg.RateLimitRPS > 0 {
		a.limiter = middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, m)
	}

	a.handler = httpAdapter.NewRouter(httpAdapter.RouterConfig{
		SaleHandler:        handler.NewSaleHandler(ledgerUC),
		PaymentHandler:     handler.NewPaymentHandler(ledgerUC, cfg.ExportBusinessName, log),
		CashSessionHandler: handler.NewCashSessionHandler(sessionUC, cfg.ExportBusinessName, log),
		LedgerHandler:      handler.NewLedgerHandler(sweeperUC, reconUC),
		HealthHandler:      handler.NewHealthHandler(checks),
		IdempotencyStore:   a.idempotencyStore,
		IdempotencyTTL:     cfg.IdempotencyTTL,
		JWTManager:         jwtManager,
		RateLimiter:        a.limiter,
		MetricsHandler:     metricsHandler,
		Logger:             log,
	})

	ok = true
	return a, nil
}

// janitor drops idle rate limiter visitors and expired in-memory keys.
func (a *app) janitor(ctx context.Context, log zerolog.Logger) error {
	return worker.Every(ctx, janitorInterval, false, func(context.Context) {
		var visitors, keys int
		if a.limiter != nil {
			visitors = a.limiter.CleanupLimiters(visitorIdleTTL)
		}
		if a.memoryKeys != nil {
			keys = a.memoryKeys.Purge()
		}
		if visitors > 0 || keys > 0 {
			log.Debug().Int("visitors", visitors).Int("idempotency_keys", keys).Msg("janitor pass")
		}
	})
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	a, err := newApp(ctx, cfg, log, nil)
	if err != nil {
		return err
	}
	defer a.close()

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.HTTPPort),
		Handler:      a.handler,
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("port", cfg.HTTPPort).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	g.Go(func() error { return ignoreCanceled(a.publisher.Start(gctx)) })
	g.Go(func() error { return ignoreCanceled(a.sweeper.Start(gctx)) })
	g.Go(func() error { return ignoreCanceled(a.janitor(gctx, log)) })

	return g.Wait()
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
