package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"

	"github.com/marev/vitrina/internal/messaging"
	"github.com/marev/vitrina/pkg/models"
)

// InteractionPublisher mirrors interaction-log mutations onto the event bus.
type InteractionPublisher interface {
	PublishInteraction(ctx context.Context, event messaging.InteractionEvent) error
}

// UserInteractionService owns the interaction log: the engine's append path,
// the identity-history read the engine personalizes from, and the
// like/dislike toggle semantics the storefront uses. Mutual exclusivity of
// like and dislike per (identity, product) pair is enforced here, by the
// caller of the engine, not inside the engine.
type UserInteractionService struct {
	db     DatabaseQuerier
	bus    InteractionPublisher // may be nil
	logger *logrus.Logger
}

func NewUserInteractionService(db DatabaseQuerier, bus InteractionPublisher, logger *logrus.Logger) *UserInteractionService {
	return &UserInteractionService{db: db, bus: bus, logger: logger}
}

// InteractionsByIdentity returns one principal's full history, oldest first.
func (s *UserInteractionService) InteractionsByIdentity(ctx context.Context, identity string) ([]models.UserInteraction, error) {
	query := `
		SELECT id, identity, product_id, interaction_type, created_at
		FROM user_interactions
		WHERE identity = $1
		ORDER BY created_at`

	rows, err := s.db.Query(ctx, query, identity)
	if err != nil {
		return nil, fmt.Errorf("failed to query interactions: %w", err)
	}
	defer rows.Close()

	var interactions []models.UserInteraction
	for rows.Next() {
		var in models.UserInteraction
		if err := rows.Scan(&in.ID, &in.Identity, &in.ProductID, &in.Type, &in.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan interaction: %w", err)
		}
		interactions = append(interactions, in)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read interactions: %w", err)
	}

	return interactions, nil
}

// AppendInteraction inserts one row. The log is append-only; no dedup here.
func (s *UserInteractionService) AppendInteraction(ctx context.Context, interaction *models.UserInteraction) error {
	if !models.ValidInteractionType(interaction.Type) {
		return fmt.Errorf("unknown interaction type %q", interaction.Type)
	}
	if interaction.Timestamp.IsZero() {
		interaction.Timestamp = time.Now()
	}

	query := `
		INSERT INTO user_interactions (identity, product_id, interaction_type, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id`

	if err := s.db.QueryRow(ctx, query,
		interaction.Identity, interaction.ProductID, interaction.Type, interaction.Timestamp,
	).Scan(&interaction.ID); err != nil {
		return fmt.Errorf("failed to insert interaction: %w", err)
	}

	s.publish(ctx, interaction.Identity, interaction.ProductID, interaction.Type, "added")
	return nil
}

// Toggle records a like or dislike with storefront semantics: the opposite
// interaction is deleted first, then the requested one is toggled (removed if
// present, created if not). Returns whether the interaction is active after
// the call.
func (s *UserInteractionService) Toggle(ctx context.Context, identity string, productID int64, interactionType string) (bool, error) {
	if interactionType != models.InteractionLike && interactionType != models.InteractionDislike {
		return false, fmt.Errorf("interaction type %q cannot be toggled", interactionType)
	}

	opposite := models.InteractionDislike
	if interactionType == models.InteractionDislike {
		opposite = models.InteractionLike
	}

	deleteOpposite := `
		DELETE FROM user_interactions
		WHERE identity = $1 AND product_id = $2 AND interaction_type = $3`
	if _, err := s.db.Exec(ctx, deleteOpposite, identity, productID, opposite); err != nil {
		return false, fmt.Errorf("failed to delete opposite interaction: %w", err)
	}

	var existingID int64
	findExisting := `
		SELECT id FROM user_interactions
		WHERE identity = $1 AND product_id = $2 AND interaction_type = $3
		ORDER BY created_at DESC
		LIMIT 1`
	err := s.db.QueryRow(ctx, findExisting, identity, productID, interactionType).Scan(&existingID)

	switch {
	case err == nil:
		if _, err := s.db.Exec(ctx, `DELETE FROM user_interactions WHERE id = $1`, existingID); err != nil {
			return false, fmt.Errorf("failed to remove interaction: %w", err)
		}
		s.publish(ctx, identity, productID, interactionType, "removed")
		return false, nil

	case errors.Is(err, pgx.ErrNoRows):
		interaction := &models.UserInteraction{
			Identity:  identity,
			ProductID: productID,
			Type:      interactionType,
		}
		if err := s.AppendInteraction(ctx, interaction); err != nil {
			return false, err
		}
		return true, nil

	default:
		return false, fmt.Errorf("failed to look up interaction: %w", err)
	}
}

func (s *UserInteractionService) publish(ctx context.Context, identity string, productID int64, interactionType, action string) {
	if s.bus == nil {
		return
	}
	event := messaging.InteractionEvent{
		Identity:        identity,
		ProductID:       productID,
		InteractionType: interactionType,
		Action:          action,
		Timestamp:       time.Now(),
	}
	if err := s.bus.PublishInteraction(ctx, event); err != nil {
		// The log row is already committed; the event stream is best effort.
		s.logger.WithError(err).WithFields(logrus.Fields{
			"identity":   identity,
			"product_id": productID,
		}).Warn("Failed to publish interaction event")
	}
}
