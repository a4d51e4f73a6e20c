// Package main is the entry point for the lifecycle API server.
// It wires all dependencies together and starts the HTTP server.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/digiurban/lifecycle/internal/calendar"
	"github.com/digiurban/lifecycle/internal/capability"
	"github.com/digiurban/lifecycle/internal/config"
	"github.com/digiurban/lifecycle/internal/definition"
	"github.com/digiurban/lifecycle/internal/events"
	"github.com/digiurban/lifecycle/internal/idempotency"
	"github.com/digiurban/lifecycle/internal/lifecycle"
	"github.com/digiurban/lifecycle/internal/observability"
	"github.com/digiurban/lifecycle/internal/ratelimit"
	"github.com/digiurban/lifecycle/internal/store"
	"github.com/digiurban/lifecycle/internal/transport"
)

// Build-time variables set via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0 -X main.commit=abc1234"
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Step 1: Parse CLI flags.
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	flag.Parse()

	// Step 2: Load configuration.
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return 1
	}

	// Step 3: Initialize telemetry (logger, tracer, metrics).
	observability.Version = version
	observability.Commit = commit

	logger, err := observability.NewLogger(cfg.Observability)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		return 1
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	tracingShutdown, err := observability.InitTracing(ctx, cfg.Observability.Tracing, "lifecycled", version)
	if err != nil {
		logger.Error("tracing initialization failed", zap.Error(err))
		return 1
	}

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.InitMetrics(promReg)

	// Step 4: Load workflow definitions and build the registry.
	defs, err := definition.Load(cfg.Definitions.Directories, cfg.Definitions.SeedDefaults)
	if err != nil {
		logger.Error("definition loading failed", zap.Error(err))
		return 1
	}
	registry := definition.NewRegistry(defs)
	metrics.SetDefinitionsLoaded(registry.Len())

	// Step 5: Business-day calendar.
	cal, err := calendar.Open(cfg.Calendar.HolidaysFile, cfg.Location())
	if err != nil {
		logger.Error("calendar initialization failed", zap.Error(err))
		return 1
	}

	// Step 6: Protocol store.
	st, storeCloser, err := store.Open(ctx, cfg.Store)
	if err != nil {
		logger.Error("store initialization failed", zap.Error(err))
		return 1
	}
	if cfg.Store.Driver == "memory" {
		logger.Warn("using in-memory protocol store, data is lost on restart")
	}

	// Step 7: Event bus.
	publisher, err := buildPublisher(cfg.Events, logger)
	if err != nil {
		logger.Error("event bus initialization failed", zap.Error(err))
		return 1
	}

	// Step 8: Idempotency store (optional).
	idemStore, idemHealth, idemCloser := buildIdempotencyStore(cfg.Idempotency, logger)

	// Step 9: Capability resolver.
	policy, err := capability.NewStaticPolicy(cfg.Capability.StaticPolicyFile)
	if err != nil {
		logger.Error("capability policy initialization failed", zap.Error(err))
		return 1
	}
	capResolver := capability.NewResolver(policy, cfg.Capability.CacheTTL)

	// Step 10: Lifecycle engines.
	lc := lifecycle.New(st, registry,
		lifecycle.WithCalendar(cal),
		lifecycle.WithLogger(logger),
		lifecycle.WithMetrics(metrics),
		lifecycle.WithPublisher(publisher),
		lifecycle.WithNearDueDays(cfg.SLA.NearDueDays),
	)

	// Step 11: Build HTTP router.
	readiness := observability.ReadinessChecks{
		DefinitionsLoaded: func() bool { return registry.Len() > 0 },
		Store:             st,
		IdempotencyStore:  idemHealth,
	}
	if hc, ok := publisher.(observability.HealthChecker); ok {
		readiness.EventBus = hc
	}

	authenticate := transport.HeaderAuthenticator
	if cfg.Identity.Enabled {
		jwks := transport.NewJWKSClient(cfg.Identity.JWKSURL, cfg.Identity.JWKSCacheTTL, logger)
		authenticate = transport.JWTAuthenticator(cfg.Identity, jwks)
	} else {
		logger.Warn("identity verification disabled, trusting gateway identity headers")
	}

	var limiter *ratelimit.Limiter
	if cfg.RateLimit.Enabled {
		limiter = ratelimit.New(cfg.RateLimit.RPS, cfg.RateLimit.Burst, cfg.RateLimit.IdleTTL)
	}

	router := transport.NewRouter(transport.Dependencies{
		Config:             cfg,
		Lifecycle:          lc,
		Logger:             logger,
		Metrics:            metrics,
		Gatherer:           promReg,
		Authenticate:       authenticate,
		CapabilityResolver: capResolver,
		Limiter:            limiter,
		Idempotency:        idemStore,
		Readiness:          readiness,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Step 12: Start background tasks.
	bgCtx, bgCancel := context.WithCancel(ctx)
	defer bgCancel()

	if cfg.Sweep.Enabled {
		go lc.Protocols.RunSweeper(bgCtx, cfg.Sweep.Interval)
	}
	go reloadOnHangup(bgCtx, cfg, registry, policy, capResolver, metrics, logger)

	// Step 13: Start HTTP server.
	logger.Info("server started",
		zap.Int("port", cfg.Server.Port),
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("store", cfg.Store.Driver),
		zap.Int("workflows", registry.Len()),
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error.
	select {
	case <-ctx.Done():
		logger.Info("shutdown initiated")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
		return 1
	}

	// Graceful shutdown sequence.
	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout == 0 {
		shutdownTimeout = 30 * time.Second
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	// Stop accepting new connections and drain in-flight requests.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	bgCancel()

	if err := publisher.Close(); err != nil {
		logger.Error("event bus close error", zap.Error(err))
	}
	storeCloser()
	if idemCloser != nil {
		idemCloser()
	}

	if err := tracingShutdown(shutdownCtx); err != nil {
		logger.Error("tracing shutdown error", zap.Error(err))
	}

	logger.Info("shutdown complete")
	return 0
}

func buildPublisher(cfg config.EventsConfig, logger *zap.Logger) (events.Publisher, error) {
	switch cfg.Driver {
	case "nats":
		p, err := events.ConnectNATS(events.NATSConfig{
			URL:           cfg.URL,
			Name:          cfg.Name,
			MaxReconnects: cfg.MaxReconnects,
			ReconnectWait: cfg.ReconnectWait,
		})
		if err != nil {
			return nil, err
		}
		logger.Info("publishing lifecycle events to NATS", zap.String("url", cfg.URL))
		return p, nil
	case "memory":
		return events.NewMemoryPublisher(), nil
	default:
		return events.Nop{}, nil
	}
}

// buildIdempotencyStore creates the idempotency store based on config.
func buildIdempotencyStore(cfg config.IdempotencyConfig, logger *zap.Logger) (idempotency.Store, observability.HealthChecker, func()) {
	if !cfg.Enabled {
		return nil, nil, nil
	}

	switch cfg.Driver {
	case "redis":
		addr := os.Getenv(cfg.AddrEnv)
		if addr == "" {
			logger.Warn("redis address not configured, using in-memory idempotency store",
				zap.String("env", cfg.AddrEnv))
			return idempotency.NewMemoryStore(), nil, nil
		}
		client := redis.NewClient(&redis.Options{Addr: addr, DB: cfg.DB})
		health := observability.HealthCheckFunc(func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		})
		logger.Info("using redis idempotency store", zap.String("addr", addr))
		return idempotency.NewRedisStore(client), health, func() { client.Close() }
	default:
		logger.Info("using in-memory idempotency store")
		return idempotency.NewMemoryStore(), nil, nil
	}
}

// reloadOnHangup re-reads workflow definitions and the capability policy on
// SIGHUP. A failed reload keeps the previous state.
func reloadOnHangup(ctx context.Context, cfg *config.Config, registry *definition.Registry, policy *capability.StaticPolicy, resolver *capability.Resolver, metrics *observability.Metrics, logger *zap.Logger) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			defs, err := definition.Load(cfg.Definitions.Directories, cfg.Definitions.SeedDefaults)
			if err != nil {
				metrics.RecordDefinitionReload("error")
				logger.Error("definition reload failed", zap.Error(err))
				continue
			}
			registry.Replace(defs)
			metrics.RecordDefinitionReload("ok")
			metrics.SetDefinitionsLoaded(registry.Len())

			if err := policy.Sync(); err != nil {
				logger.Error("capability policy reload failed", zap.Error(err))
			} else {
				resolver.InvalidateAll()
			}
			logger.Info("configuration reloaded",
				zap.Int("workflows", registry.Len()),
				zap.String("checksum", registry.Checksum()),
			)
		}
	}
}
