package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/bpbrianpark/enigma-game/internal/adapters/gateway"
	"github.com/bpbrianpark/enigma-game/internal/adapters/http/api"
	"github.com/bpbrianpark/enigma-game/internal/adapters/http/swagger"
	"github.com/bpbrianpark/enigma-game/internal/adapters/kg"
	"github.com/bpbrianpark/enigma-game/internal/adapters/repository"
	service "github.com/bpbrianpark/enigma-game/internal/app"
	"github.com/bpbrianpark/enigma-game/internal/config"
	"github.com/bpbrianpark/enigma-game/internal/domain/specialcase"
	"github.com/bpbrianpark/enigma-game/pkg/logger"
	"github.com/bpbrianpark/enigma-game/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// HTTP server timeout constants.
const (
	readTimeout               = 10 * time.Second
	writeTimeout              = 30 * time.Second
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	shutdownTimeout           = 30 * time.Second
	systemMetricsInterval     = 10 * time.Second
	serviceMetricsInterval    = 5 * time.Second
	nanosecondsPerMillisecond = 1e6
)

// application holds the wired components of one server process.
type application struct {
	store   repository.Store
	gateway *gateway.Gateway
	svc     *service.Service
	mux     *http.ServeMux
}

func main() {
	// Disable default Go metrics collection to avoid duplicate metrics.
	prometheus.Unregister(collectors.NewGoCollector())
	prometheus.Unregister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		// Logger isn't available yet
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	if err := logger.InitWithOptions(logger.WithFormat(cfg.LogFormat)); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	log := logger.Get()
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	a, err := setup(ctx, cfg, log)
	if err != nil {
		log.Error(ctx, "startup failed", logger.Error(err))
		os.Exit(1)
	}
	defer a.close(log)

	go startSystemMetricsUpdater(ctx)
	go startServiceMetricsUpdater(ctx, a.svc)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           a.mux,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr), logger.String("store", cfg.StoreDriver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(ctx, "HTTP server failed", logger.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info(context.Background(), "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(shutdownCtx, "server shutdown failed", logger.Error(err))
	}

	log.Info(shutdownCtx, "server stopped")
}

// setup opens the store, starts the gateway and the service, and registers
// every route. The caller owns the returned application and must close it.
func setup(ctx context.Context, cfg *config.Config, log logger.Logger) (*application, error) {
	store, err := repository.Open(ctx, cfg.StoreDriver, cfg.StoreDSN, repository.WithLogger(log.Named("store")))
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	if cfg.SeedFile != "" {
		stats, err := repository.LoadSeedFile(ctx, store, cfg.SeedFile)
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("seed store: %w", err)
		}
		log.Info(ctx, "store seeded",
			logger.String("file", cfg.SeedFile),
			logger.Int("categories", stats.Categories),
			logger.Int("entries", stats.Entries),
			logger.Int("aliases", stats.Aliases))
	}

	var tables map[string]specialcase.Table
	if cfg.SpecialCasesFile != "" {
		if tables, err = specialcase.LoadFile(cfg.SpecialCasesFile); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("load special cases: %w", err)
		}
	}

	client := kg.New(
		kg.WithEndpoint(cfg.KGEndpoint),
		kg.WithUserAgent(cfg.KGUserAgent),
		kg.WithTimeout(cfg.KGTimeout()),
		kg.WithDefaultRetryAfter(cfg.GatewayDefaultRetryAfter()),
	)

	gw, err := gateway.New(client,
		gateway.WithMinInterval(cfg.GatewayMinInterval()),
		gateway.WithTimeout(cfg.KGTimeout()),
		gateway.WithCacheTTL(cfg.GatewayCacheTTL()),
		gateway.WithQueueSize(cfg.GatewayQueueSize),
		gateway.WithDefaultRetryAfter(cfg.GatewayDefaultRetryAfter()),
		gateway.WithLogger(log.Named("gateway")),
	)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("create gateway: %w", err)
	}
	gw.Start(ctx)

	svc := service.New(store, gw,
		service.WithLogger(log.Named("service")),
		service.WithSpecialCases(tables),
		service.WithSessionTTL(cfg.SessionTTL()),
		service.WithMaxSessions(cfg.SessionMax),
		service.WithRetry(cfg.TallyRetryAttempts, cfg.TallyRetryDelay()),
	)
	if err := svc.Start(ctx); err != nil {
		_ = gw.Stop(ctx)
		_ = store.Close()
		return nil, fmt.Errorf("start service: %w", err)
	}

	mux := http.NewServeMux()
	swagger.Register(ctx, mux)
	api.NewServer(svc, svc, api.WithCronSecret(cfg.CronSecret)).Register(ctx, mux)

	return &application{store: store, gateway: gw, svc: svc, mux: mux}, nil
}

// close stops the components in reverse start order.
func (a *application) close(log logger.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	a.svc.Stop()
	if err := a.gateway.Stop(ctx); err != nil {
		log.Warn(ctx, "gateway stop", logger.Error(err))
	}
	if err := a.store.Close(); err != nil {
		log.Warn(ctx, "store close", logger.Error(err))
	}
}

// startSystemMetricsUpdater updates system metrics until ctx is done.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// startServiceMetricsUpdater updates service metrics until ctx is done.
func startServiceMetricsUpdater(ctx context.Context, svc *service.Service) {
	ticker := time.NewTicker(serviceMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateServiceMetrics(ctx, svc)
		}
	}
}

// updateSystemMetrics updates system-level metrics.
func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())

	if m.NumGC > 0 {
		avgPauseMs := float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond
		metrics.RecordSystemGCPauseTime(avgPauseMs)
	}
}

// updateServiceMetrics publishes the service snapshot as gauges.
func updateServiceMetrics(ctx context.Context, svc *service.Service) {
	stats := svc.GetStats(ctx)
	metrics.UpdateSessionsActive(stats.Sessions)
	metrics.UpdateQueueSize(stats.Gateway.QueueLength)
	if stats.Gateway.RateLimited {
		metrics.UpdateGatewayRateLimitedUntil(stats.Gateway.RateLimitedUntil)
	}
}
