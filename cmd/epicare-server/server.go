package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/epicare/epicare/internal/config"
	"github.com/epicare/epicare/internal/domain/triage"
	"github.com/epicare/epicare/internal/platform/auth"
	"github.com/epicare/epicare/internal/platform/cdsclient"
	"github.com/epicare/epicare/internal/platform/cdshooks"
	"github.com/epicare/epicare/internal/platform/db"
	"github.com/epicare/epicare/internal/platform/logging"
	"github.com/epicare/epicare/internal/platform/metrics"
	"github.com/epicare/epicare/internal/platform/middleware"
	"github.com/epicare/epicare/internal/platform/websocket"
)

const (
	version = "0.1.0"

	// requestTimeout must stay above the largest CDS_TIMEOUT.
	requestTimeout     = 75 * time.Second
	revocationInterval = 10 * time.Minute
)

type app struct {
	echo        *echo.Echo
	svc         *triage.Service
	hub         *websocket.Hub
	revocations *auth.TokenRevocationStore
}

// newApp wires the HTTP surface. pool may be nil, in which case the audit
// trail is kept in memory.
func newApp(cfg *config.Config, logger zerolog.Logger, pool *pgxpool.Pool, evaluator triage.Evaluator) *app {
	hub := websocket.NewHub(logger)
	revocations := auth.NewTokenRevocationStore()

	var (
		runs   triage.TriageRunRepository
		events triage.SmartDefaultEventRepository
	)
	if pool != nil {
		runs = triage.NewTriageRunRepoPG(pool)
		events = triage.NewSmartDefaultEventRepoPG(pool)
	} else {
		runs = triage.NewTriageRunRepoMemory()
		events = triage.NewSmartDefaultEventRepoMemory()
	}

	opts := triage.DefaultSessionOptions()
	opts.DebounceWindow = cfg.DebounceWindow
	opts.DropStaleResponses = cfg.CDSDropStaleResponses
	opts.IdleTTL = cfg.SessionIdleTTL
	sessions := triage.NewSessionStore(opts)

	svc := triage.NewService(sessions, evaluator, runs, events, hub, logger)
	if pool != nil {
		svc.UseTransactor(func(ctx context.Context, fn func(ctx context.Context) error) error {
			return db.WithTx(ctx, pool, fn)
		})
	}

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.RequestID())
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(metrics.Middleware())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID", "X-Dev-Roles"},
	}))
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	e.Use(middleware.RequestTimeout(requestTimeout))

	// Auth middleware
	if cfg.IsDev() {
		e.Use(auth.DevAuthMiddleware())
	} else {
		jwtCfg := auth.JWTConfig{
			Issuer:      cfg.AuthIssuer,
			Audience:    cfg.AuthAudience,
			JWKSURL:     cfg.AuthJWKSURL,
			Revocations: revocations,
			Skipper:     auth.AuthSkipper,
		}
		if cfg.AuthSigningKey != "" {
			jwtCfg.SigningKey = []byte(cfg.AuthSigningKey)
		}
		e.Use(auth.JWTMiddleware(jwtCfg))
	}

	// Audit middleware
	e.Use(middleware.Audit(logger))

	// Health and metrics
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	e.GET("/health/db", db.HealthHandler(pool))
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))
	newDocs().RegisterRoutes(e)

	// Live plan and smart-default events
	websocket.NewWebSocketHandler(hub, cfg.CORSOrigins...).RegisterRoutes(e.Group(""))

	// CDS Hooks
	hooks := cdshooks.NewRegistry()
	svc.RegisterHooks(hooks)
	hooks.RegisterRoutes(e)

	// API
	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	apiV1 := e.Group("/api/v1", middleware.RateLimit(rateLimitCfg))
	triage.NewHandler(svc).RegisterRoutes(apiV1)
	auth.RegisterRevocationRoutes(apiV1, revocations)

	return &app{echo: e, svc: svc, hub: hub, revocations: revocations}
}

// start runs the background sweepers until ctx is cancelled.
func (a *app) start(ctx context.Context) {
	go a.svc.RunSweeper(ctx)
	go a.revocations.Start(ctx, revocationInterval)
}

func runServer(envFiles ...string) error {
	// Config
	cfg, err := config.Load(envFiles...)
	if err != nil {
		return err
	}

	// Logger
	logger := logging.New(logging.Options{
		Level:   cfg.LogLevel,
		Console: cfg.IsDev(),
		File:    cfg.LogFile,
	})

	if err := cfg.Validate(); err != nil {
		logger.Error().Err(err).Msg("invalid configuration")
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Database
	var pool *pgxpool.Pool
	if cfg.HasDatabase() {
		pool, err = db.NewPool(ctx, db.PoolConfig{
			URL:      cfg.DatabaseURL,
			MaxConns: cfg.DBMaxConns,
			MinConns: cfg.DBMinConns,
		})
		if err != nil {
			logger.Error().Err(err).Msg("failed to connect to database")
			return err
		}
		defer pool.Close()
		logger.Info().Msg("connected to database")
	} else {
		logger.Warn().Msg("DATABASE_URL not set, keeping the triage audit in memory")
	}

	if cfg.CDSBaseURL == "" {
		logger.Warn().Msg("CDS_BASE_URL not set, every evaluation will report decision support unavailable")
	}
	evaluator := cdsclient.New(cfg.CDSBaseURL, cfg.CDSTimeout, logger)

	a := newApp(cfg, logger, pool, evaluator)
	a.start(ctx)

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Msg("starting server")
		if err := a.echo.Start(addr); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		logger.Error().Err(err).Msg("server error")
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.echo.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
