package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/marev/vitrina/internal/config"
	"github.com/marev/vitrina/internal/database"
	"github.com/marev/vitrina/internal/messaging"
)

type Services struct {
	Catalog      *ProductCatalogService
	Interactions *UserInteractionService
	Engine       *RecommendationEngine
	RateLimit    *RateLimitService
	Health       *HealthService
}

func New(cfg *config.Config, logger *logrus.Logger, db *database.Database, bus *messaging.MessageBus, reg prometheus.Registerer) *Services {
	catalog := NewProductCatalogService(db.PG, logger)
	interactions := NewUserInteractionService(db.PG, bus, logger)

	engine := NewRecommendationEngine(
		catalog, interactions, db.Redis.Warm, &cfg.Engine, logger, NewEngineMetrics(reg),
	)

	return &Services{
		Catalog:      catalog,
		Interactions: interactions,
		Engine:       engine,
		RateLimit:    NewRateLimitService(db.Redis.Hot, cfg.Engine.RateLimit, logger),
		Health:       NewHealthService(db, logger, reg),
	}
}
