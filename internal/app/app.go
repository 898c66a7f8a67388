package app

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/marev/vitrina/internal/config"
	"github.com/marev/vitrina/internal/database"
	"github.com/marev/vitrina/internal/handlers"
	"github.com/marev/vitrina/internal/messaging"
	"github.com/marev/vitrina/internal/middleware"
	"github.com/marev/vitrina/internal/services"
	"github.com/marev/vitrina/internal/validation"
)

type App struct {
	config   *config.Config
	logger   *logrus.Logger
	db       *database.Database
	bus      *messaging.MessageBus
	services *services.Services
	handlers *handlers.Handlers
	router   *gin.Engine

	consumerCancel context.CancelFunc
}

func New(cfg *config.Config) (*App, error) {
	app := &App{
		config: cfg,
		logger: setupLogger(cfg),
	}

	db, err := database.New(cfg, app.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	app.bus = messaging.NewMessageBus(cfg, app.logger)
	app.services = services.New(cfg, app.logger, db, app.bus, prometheus.DefaultRegisterer)

	validator, err := validation.NewSchemaValidator()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize schema validator: %w", err)
	}
	app.handlers = handlers.New(app.logger, app.services, validator, &cfg.Engine)

	// The engine only exposes the refresh hook; subscribing to catalog
	// change events is the application's job.
	consumerCtx, cancel := context.WithCancel(context.Background())
	app.consumerCancel = cancel
	go app.bus.ConsumeCatalogUpdates(consumerCtx, app.services.Engine.Refresh)

	app.setupRouter()

	return app, nil
}

func (a *App) Router() *gin.Engine {
	return a.router
}

func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("Shutting down application...")

	a.consumerCancel()

	if err := a.bus.Close(); err != nil {
		a.logger.WithError(err).Error("Error closing message bus")
	}

	if err := a.db.Close(); err != nil {
		a.logger.WithError(err).Error("Error closing database connections")
		return err
	}

	return nil
}

func setupLogger(cfg *config.Config) *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.Logging.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	return logger
}

func (a *App) setupRouter() {
	if a.config.Server.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Global middleware
	router.Use(middleware.Logger(a.logger))
	router.Use(middleware.Recovery(a.logger))
	router.Use(middleware.CORS(a.config))

	// Health check endpoint (no rate limit)
	router.GET("/health", a.handlers.Health.Check)

	// Prometheus metrics endpoint
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API routes
	api := router.Group("/api/v1")
	{
		api.Use(middleware.RateLimit(a.services.RateLimit, a.logger))

		recommendations := api.Group("/recommendations")
		{
			recommendations.GET("/:productId", a.handlers.Recommendation.Get)
			recommendations.POST("/refresh", a.handlers.Recommendation.Refresh)
		}

		api.GET("/stats", a.handlers.Stats.Get)
		api.POST("/feedback", a.handlers.Recommendation.RecordFeedback)

		api.POST("/products/:productId/interactions", a.handlers.Interaction.Toggle)
		api.POST("/interactions", a.handlers.Interaction.Record)
	}

	a.router = router
}
