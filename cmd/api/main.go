package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	httptransport "github.com/spec-kit/access-service/internal/api/http"
	"github.com/spec-kit/access-service/internal/api/http/handlers"
	"github.com/spec-kit/access-service/internal/auth"
	"github.com/spec-kit/access-service/internal/config"
	"github.com/spec-kit/access-service/internal/dedup"
	"github.com/spec-kit/access-service/internal/events"
	"github.com/spec-kit/access-service/internal/observability"
	"github.com/spec-kit/access-service/internal/persistence"
	"github.com/spec-kit/access-service/internal/ratelimit"
	"github.com/spec-kit/access-service/internal/repository"
	"github.com/spec-kit/access-service/internal/repository/memory"
	"github.com/spec-kit/access-service/internal/service"
	"github.com/spec-kit/access-service/internal/worker"
	"github.com/spec-kit/access-service/migrations"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(registry)

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), migrations.FS, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis, err := persistence.NewRedis(ctx, cfg.Redis, logger)
	if err != nil {
		logger.Fatal("failed to configure redis", zap.Error(err))
	}
	defer redis.Close()

	var store repository.Store
	if pool := pg.PoolHandle(); pool != nil {
		store = repository.NewPostgresStore(pool)
	} else {
		store = memory.New()
	}
	repos := store.Repos()

	hasher := auth.NewBcryptHasher(cfg.Auth.BcryptCost)
	dispatcher := events.NewInMemoryDispatcher(logger)
	worker.RegisterEventSubscribers(dispatcher, logger)
	sink := events.NewRecordingSink(repos.Events, dispatcher, logger)

	authService := service.NewAuthService(*cfg, service.AuthDependencies{StaffRepo: repos.Staff, Hasher: hasher})
	authMiddleware := auth.NewAuthMiddleware(authService.TokenManager(), repos.Staff)

	terminalAuth := service.NewTerminalAuthService(service.TerminalAuthDependencies{
		TerminalRepo: repos.Terminals,
		Hasher:       hasher,
		Logger:       logger,
		Metrics:      metrics,
	}, service.TerminalAuthOptions{
		CacheTTL:         cfg.Access.TerminalAuthCacheTTL(),
		LastSeenThrottle: cfg.Access.TerminalLastSeenThrottle(),
	})
	terminalAdmin := service.NewTerminalAdminService(service.TerminalAdminDependencies{
		TerminalRepo: repos.Terminals,
		BranchRepo:   repos.Branches,
		Hasher:       hasher,
		Cache:        terminalAuth,
		Logger:       logger,
	})
	accessService := service.NewAccessService(service.AccessDependencies{
		Store:    store,
		Assigner: service.NewCardAssignmentService(store, logger),
		Sink:     sink,
		Logger:   logger,
		Metrics:  metrics,
	})
	pendingService := service.NewPendingAssignmentService(service.PendingAssignmentDependencies{
		Store:   store,
		Sink:    sink,
		Logger:  logger,
		Metrics: metrics,
	})

	group, groupCtx := errgroup.WithContext(ctx)

	limiter := buildLimiter(groupCtx, group, cfg, redis)
	deduplicator, purger := buildDeduplicator(cfg, redis, repos, logger, metrics)

	sweeper := worker.NewSweeper(pendingService, purger, cfg.Access.PendingSweepInterval(), logger)
	group.Go(func() error {
		sweeper.Run(groupCtx)
		return nil
	})

	app := fiber.New(fiber.Config{
		AppName:               cfg.App.Name,
		DisableStartupMessage: true,
		ReadTimeout:           cfg.App.RequestTimeout(),
		WriteTimeout:          cfg.App.RequestTimeout(),
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	readiness := map[string]handlers.Pinger{"postgres": pg}
	if redis != nil {
		readiness["redis"] = redis
	}

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:             handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, readiness),
		Access:             handlers.NewAccessHandler(accessService),
		Auth:               handlers.NewAuthHandler(authService),
		Terminals:          handlers.NewTerminalsHandler(terminalAdmin),
		PendingAssignments: handlers.NewPendingAssignmentsHandler(pendingService),
		AuthMiddleware:     authMiddleware,
		RateLimit: httptransport.RateLimit(httptransport.RateLimitOptions{
			Limiter:       limiter,
			TrustedHeader: cfg.Access.TrustedProxyHeader,
			Logger:        logger,
			Metrics:       metrics,
		}),
		TerminalAuth: httptransport.TerminalAuth(terminalAuth),
		Dedup: httptransport.Dedup(httptransport.DedupOptions{
			Deduplicator: deduplicator,
			Cooldown:     cfg.Access.TapCooldown(),
			Metrics:      metrics,
		}),
		Gatherer: registry,
	})

	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.App.Addr()))
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	cancel()
	if err := group.Wait(); err != nil {
		logger.Warn("background workers", zap.Error(err))
	}
	if err := terminalAuth.Close(shutdownCtx); err != nil {
		logger.Warn("terminal last-seen writes not drained", zap.Error(err))
	}
}

func buildLimiter(ctx context.Context, group *errgroup.Group, cfg *config.Config, redis *persistence.Redis) ratelimit.Limiter {
	if cfg.Access.RateLimitBackend == config.BackendRedis && redis != nil {
		return ratelimit.NewRedisFixedWindow(redis.Client, "access:ratelimit:", cfg.Access.RateLimitMax, cfg.Access.RateLimitWindow())
	}
	limiter := ratelimit.NewFixedWindow(cfg.Access.RateLimitMax, cfg.Access.RateLimitWindow())
	group.Go(func() error {
		limiter.Run(ctx, time.Minute)
		return nil
	})
	return limiter
}

// buildDeduplicator returns the configured cooldown backend and, for the database backend,
// the purger the sweeper uses to drop stale rows.
func buildDeduplicator(cfg *config.Config, redis *persistence.Redis, repos repository.Repositories, logger *zap.Logger, metrics *observability.Metrics) (dedup.Deduplicator, worker.CooldownPurger) {
	backend := cfg.Access.TapCooldownBackend
	logger.Info("tap cooldown backend selected", zap.String("backend", backend))

	switch backend {
	case config.BackendRedis:
		return dedup.NewFailOpen(dedup.NewRedisDeduplicator(redis.Client, "access:tap:"), backend, logger, metrics), nil
	case config.BackendDB:
		store := dedup.NewStoreDeduplicator(repos.Cooldowns)
		return dedup.NewFailOpen(store, backend, logger, metrics), store
	default:
		logger.Warn("memory tap cooldown only deduplicates within this process")
		return dedup.NewFailOpen(dedup.NewMemoryDeduplicator(time.Minute), backend, logger, metrics), nil
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
