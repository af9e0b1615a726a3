// Package main is the entry point for the feed ranking API server.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/onnwee/agrolink/internal/api"
	"github.com/onnwee/agrolink/internal/auth"
	"github.com/onnwee/agrolink/internal/config"
	"github.com/onnwee/agrolink/internal/feed"
	"github.com/onnwee/agrolink/internal/health"
	"github.com/onnwee/agrolink/internal/middleware"
	"github.com/onnwee/agrolink/internal/post"
	"github.com/onnwee/agrolink/internal/profile"
	"github.com/onnwee/agrolink/internal/ranking"
	"github.com/onnwee/agrolink/internal/social"
	"github.com/onnwee/agrolink/internal/tracing"
)

const (
	serviceName     = "agrolink-api"
	shutdownTimeout = 10 * time.Second
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	help := flag.Bool("help", false, "display help message")
	configPath := flag.String("config", "", "path to an optional YAML config file")
	flag.Parse()

	if *help {
		fmt.Println("Agrolink Feed API Server")
		fmt.Println()
		fmt.Println("Usage: api [options]")
		fmt.Println()
		fmt.Println("Options:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	cfg, errs := config.Load(*configPath)
	logger := middleware.NewLogger(envOf(cfg))
	slog.SetDefault(logger)
	if len(errs) > 0 {
		for _, err := range errs {
			logger.Error("invalid configuration", "error", err)
		}
		os.Exit(1)
	}
	logger.Info("configuration loaded", "config", cfg.LogSummary())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func envOf(cfg *config.Config) string {
	if cfg == nil || cfg.Env == "" {
		return config.DefaultEnv
	}
	return cfg.Env
}

// run serves until ctx is canceled, then shuts down gracefully.
func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	return serve(ctx, ln, a.handler, logger)
}

// serve runs an HTTP server on ln until ctx is done.
func serve(ctx context.Context, ln net.Listener, handler http.Handler, logger *slog.Logger) error {
	server := &http.Server{
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("starting server", "addr", ln.Addr().String())
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err, ok := <-serveErr:
		if ok {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}

// app holds the wired dependencies of one server instance.
type app struct {
	handler http.Handler
	closers []func()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// newApp wires storage, ranking and HTTP. Without DATABASE_URL or REDIS_URL
// (development only, enforced by config validation) in-memory stores are used.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{}
	fail := func(err error) (*app, error) {
		a.close()
		return nil, err
	}

	tp, err := tracing.NewProvider(tracing.Config{
		ServiceName:    serviceName,
		ServiceVersion: version,
		Enabled:        cfg.TracingEnabled,
		Environment:    cfg.Env,
		ExporterType:   cfg.TracingExporter,
		OTLPEndpoint:   cfg.TracingEndpoint,
		SamplingRate:   cfg.TracingSampleRate,
		InsecureMode:   cfg.TracingInsecure,
	})
	if err != nil {
		return fail(fmt.Errorf("failed to initialize tracing: %w", err))
	}
	a.closers = append(a.closers, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown tracer provider", "error", err)
		}
	})

	checkers := make(map[string]health.Checker)

	var (
		posts   post.CandidateRepository
		viewers profile.Store
	)
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return fail(fmt.Errorf("failed to open database: %w", err))
		}
		a.closers = append(a.closers, func() { _ = db.Close() })
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = db.PingContext(pingCtx)
		cancel()
		if err != nil {
			return fail(fmt.Errorf("failed to connect to database: %w", err))
		}
		posts = post.NewPostgresRepository(db)
		viewers = profile.NewPostgresStore(db)
		checkers["database"] = health.NewDBChecker(db)
		logger.Info("using postgres storage")
	} else {
		posts = post.NewInMemoryPostRepository()
		viewers = profile.NewInMemoryStore()
		logger.Warn("DATABASE_URL not set, using in-memory storage")
	}

	var (
		exclusions social.ExclusionStore
		cache      feed.TrendingCache = feed.NopTrendingCache{}
	)
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fail(fmt.Errorf("invalid REDIS_URL: %w", err))
		}
		client := redis.NewClient(opts)
		a.closers = append(a.closers, func() { _ = client.Close() })
		exclusions = social.NewRedisStore(client, cfg.SeenTTL())
		if cfg.TrendingCacheTTLSeconds > 0 {
			cache = feed.NewRedisTrendingCache(client, cfg.TrendingCacheTTL())
		}
		checkers["redis"] = health.NewRedisChecker(client)
		logger.Info("using redis for exclusions and trending cache")
	} else {
		exclusions = social.NewInMemoryStore()
		logger.Warn("REDIS_URL not set, using in-memory exclusions without trending cache")
	}

	profiles, err := ranking.LoadCalibration(cfg.CalibrationPath)
	if err != nil {
		logger.Warn("ranking calibration not applied", "path", cfg.CalibrationPath, "error", err)
	}
	logger.Info("ranking profiles loaded", "profiles", profiles.Names())

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	feedMetrics := feed.NewMetrics()
	httpMetrics := middleware.NewMetrics()
	if err := feedMetrics.Register(reg); err != nil {
		return fail(fmt.Errorf("failed to register feed metrics: %w", err))
	}
	if err := httpMetrics.Register(reg); err != nil {
		return fail(fmt.Errorf("failed to register http metrics: %w", err))
	}

	selector := feed.NewCandidateSelector(posts, exclusions, cfg.FetchTimeout(),
		feed.DefaultBreakerConfig(), logger, feedMetrics)
	checkers["fetch_breaker"] = health.NewBreakerChecker(selector)

	ranker := feed.NewRanker(selector, feed.Config{
		Profiles:           profiles,
		DefaultWindowHours: cfg.TrendingWindowHours,
		TrendingPoolSize:   cfg.TrendingPoolSize,
		Cache:              cache,
		Logger:             logger,
		Metrics:            feedMetrics,
	})

	routerCfg := api.RouterConfig{
		Feed:     api.NewFeedHandlers(ranker, viewers, exclusions, logger),
		Health:   api.NewHealthHandlers(checkers),
		Tokens:   auth.NewJWTServiceWithRotation(cfg.JWTSecret, cfg.JWTPreviousSecret),
		Metrics:  httpMetrics,
		Gatherer: reg,
		Logger:   logger,
	}
	if tp.IsEnabled() {
		routerCfg.ServiceName = serviceName
	}
	a.handler = api.NewRouter(routerCfg)
	return a, nil
}
