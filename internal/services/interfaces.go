package services

import (
	"context"

	"github.com/marev/vitrina/pkg/models"
)

// RecommendationEngineInterface is what the HTTP layer programs against; it
// lets handler tests substitute a mock engine.
type RecommendationEngineInterface interface {
	GetRecommendations(ctx context.Context, productID int64, identity string, count int) ([]models.Recommendation, error)
	RecordFeedback(ctx context.Context, identity string, productID int64, feedbackType string) error
	Stats(ctx context.Context) (*models.EngineStats, error)
	Refresh()
}

// InteractionStore is the interaction-log surface the HTTP layer uses.
type InteractionStore interface {
	Toggle(ctx context.Context, identity string, productID int64, interactionType string) (bool, error)
	AppendInteraction(ctx context.Context, interaction *models.UserInteraction) error
}
