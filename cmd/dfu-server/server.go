package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/Drewww17/m2-sa-luminarias/internal/config"
	"github.com/Drewww17/m2-sa-luminarias/internal/domain/auditlog"
	"github.com/Drewww17/m2-sa-luminarias/internal/domain/scan"
	"github.com/Drewww17/m2-sa-luminarias/internal/domain/user"
	"github.com/Drewww17/m2-sa-luminarias/internal/domain/verification"
	"github.com/Drewww17/m2-sa-luminarias/internal/platform/auth"
	"github.com/Drewww17/m2-sa-luminarias/internal/platform/db"
	"github.com/Drewww17/m2-sa-luminarias/internal/platform/middleware"
)

func newLogger(cfg *config.Config) zerolog.Logger {
	if cfg != nil && cfg.IsDev() {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func scanOptions(cfg *config.Config) scan.Options {
	return scan.Options{
		Scheme:        cfg.Scheme,
		SystemVersion: cfg.SystemVersion,
		ModelVersion:  cfg.ModelVersion,
	}
}

// newServer wires middleware, services and routes onto a fresh echo
// instance. audit must already be started.
func newServer(cfg *config.Config, st *stores, audit *auditlog.Logger, logger zerolog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	secCfg := middleware.DefaultSecurityConfig
	secCfg.HSTS = !cfg.IsDev()
	e.Use(middleware.SecurityHeaders(secCfg))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))
	e.Use(middleware.RateLimit(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}))

	// Auth middleware
	jwtCfg := auth.JWTConfig{
		Issuer:   cfg.AuthIssuer,
		Audience: cfg.AuthAudience,
		JWKSURL:  cfg.AuthJWKSURL,
		Skipper:  auth.AuthSkipper,
	}
	if cfg.AuthSigningKey != "" {
		jwtCfg.SigningKey = []byte(cfg.AuthSigningKey)
	}
	if cfg.IsDev() {
		e.Use(auth.DevAuthMiddleware(jwtCfg))
	} else {
		e.Use(auth.JWTMiddleware(jwtCfg))
	}

	// Health checks
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": cfg.SystemVersion,
		})
	})
	e.GET("/health/db", db.HealthHandler(st.driver, st.pinger))

	// Services
	userSvc := user.NewService(st.users, audit, logger)
	scanSvc := scan.NewService(st.scans, audit, logger, scanOptions(cfg))
	verifier := verification.NewVerifier(st.scans, logger)

	// API groups
	api := e.Group("/api/v1", user.LoadProfile(st.users, cfg.IsDev()))
	approved := api.Group("", user.RequireApproved())
	admin := approved.Group("/admin", auth.RequireRole(auth.RoleAdmin))

	user.NewHandler(userSvc).RegisterRoutes(api, admin)
	scan.NewHandler(scanSvc, userSvc).RegisterRoutes(approved, admin)
	auditlog.NewHandler(st.audit).RegisterRoutes(admin)
	verification.NewHandler(verifier, cfg.PublicBaseURL).RegisterRoutes(e)

	return e
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		bootLogger := newLogger(nil)
		bootLogger.Fatal().Err(err).Msg("failed to load config")
	}
	logger := newLogger(cfg)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	ctx := context.Background()
	st, err := openStores(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.StoreDriver).Msg("failed to open record store")
	}
	defer st.close()
	logger.Info().Str("driver", st.driver).Str("hash_scheme", cfg.Scheme.String()).Msg("record store ready")

	audit := auditlog.NewLogger(st.audit, logger, cfg.AuditBuffer)
	audit.Start()

	e := newServer(cfg, st, audit, logger)

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
	}
	if err := audit.Close(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("audit log did not drain")
	}
	logger.Info().Msg("server stopped")
	return nil
}
