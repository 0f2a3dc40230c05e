package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/clinicq/clinicq/internal/config"
	"github.com/clinicq/clinicq/internal/domain/anamnesis"
	"github.com/clinicq/clinicq/internal/domain/identity"
	"github.com/clinicq/clinicq/internal/domain/patient"
	"github.com/clinicq/clinicq/internal/domain/queue"
	"github.com/clinicq/clinicq/internal/platform/auth"
	"github.com/clinicq/clinicq/internal/platform/db"
	"github.com/clinicq/clinicq/internal/platform/events"
	"github.com/clinicq/clinicq/internal/platform/middleware"
	"github.com/clinicq/clinicq/internal/platform/validation"
	"github.com/clinicq/clinicq/internal/platform/websocket"
)

const tokenIssuer = "clinicq"

func runServer() error {
	// Logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Live queue feed
	hub := websocket.NewHub(logger)
	var publisher events.Publisher = hub
	var bus *events.RedisBus
	if cfg.RedisURL != "" {
		client, err := events.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer client.Close()

		bus = events.NewRedisBus(client, events.DefaultChannel, hub, logger)
		if err := bus.Start(ctx); err != nil {
			logger.Fatal().Err(err).Msg("failed to subscribe to queue events")
		}
		publisher = bus
	}

	e, queueSvc := newServer(cfg, pool, hub, publisher, logger)

	snapshots, err := queue.NewSnapshotJob(queueSvc, hub, cfg.QueueSnapshotSchedule, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid queue snapshot schedule")
	}
	snapshots.Start()

	// Graceful shutdown
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

	snapshots.Stop(shutdownCtx)
	if bus != nil {
		if err := bus.Close(); err != nil {
			logger.Warn().Err(err).Msg("failed to close redis relay")
		}
	}
	hub.CloseAll()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}

// newServer builds the echo instance with middleware and every domain's
// routes. The queue service is returned for the snapshot job.
func newServer(cfg *config.Config, pool *pgxpool.Pool, hub *websocket.Hub, publisher events.Publisher, logger zerolog.Logger) (*echo.Echo, *queue.Service) {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.ErrorHandler(logger)
	e.Validator = validation.New()

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))
	e.Use(middleware.SecurityHeaders(cfg.IsProduction()))
	e.Use(echomw.BodyLimit("1M"))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))

	// Auth middleware
	jwtCfg := auth.JWTConfig{
		SigningKey: []byte(cfg.JWTSigningKey),
		Issuer:     tokenIssuer,
		Skipper:    auth.AuthSkipper,
	}
	if cfg.IsDev() {
		e.Use(auth.DevAuthMiddleware(jwtCfg))
	} else {
		e.Use(auth.JWTMiddleware(jwtCfg))
	}

	// Rate limiting runs after auth so signed-in callers get their own bucket.
	e.Use(middleware.RateLimit(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}))

	// Audit middleware
	e.Use(middleware.Audit(logger))

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "OK"})
	})
	e.GET("/health/db", db.PoolHealthHandler(pool))

	// Identity
	tokens := auth.NewTokenIssuer([]byte(cfg.JWTSigningKey), tokenIssuer, cfg.JWTTTL)
	identitySvc := identity.NewService(identity.NewUserRepoPG(pool), tokens)

	// Patients and queue
	queueRepo := queue.NewRepoPG(pool)
	patientSvc := patient.NewService(patient.NewRepoPG(pool), queueRepo, pool, publisher, logger)
	queueSvc := queue.NewService(queueRepo, patientSvc, queue.NewEstimator(cfg.AverageServiceDuration()), publisher, logger)

	// Anamnesis
	anamnesisSvc := anamnesis.NewService(anamnesis.NewRepoPG(pool), queueSvc, patientSvc)

	api := e.Group("")
	identity.NewHandler(identitySvc).RegisterRoutes(api)
	patient.NewHandler(patientSvc).RegisterRoutes(api)
	queue.NewHandler(queueSvc).RegisterRoutes(api)
	anamnesis.NewHandler(anamnesisSvc).RegisterRoutes(api)
	websocket.NewHandler(hub, cfg.CORSOrigins, logger).RegisterRoutes(api)

	return e, queueSvc
}
