package handlers

import (
	"github.com/sirupsen/logrus"

	"github.com/marev/vitrina/internal/config"
	"github.com/marev/vitrina/internal/services"
	"github.com/marev/vitrina/internal/validation"
)

type Handlers struct {
	Recommendation *RecommendationHandler
	Interaction    *InteractionHandler
	Stats          *StatsHandler
	Health         *HealthHandler
}

func New(logger *logrus.Logger, svcs *services.Services, validator *validation.SchemaValidator, cfg *config.EngineConfig) *Handlers {
	return &Handlers{
		Recommendation: NewRecommendationHandler(svcs.Engine, cfg, logger),
		Interaction:    NewInteractionHandler(svcs.Interactions, validator, logger),
		Stats:          NewStatsHandler(svcs.Engine, logger),
		Health:         NewHealthHandler(svcs.Health),
	}
}
