package models

import "time"

// Interaction types recorded against products. Like/dislike are explicit
// feedback; view/purchase are implicit signals recorded by the storefront.
const (
	InteractionView     = "view"
	InteractionLike     = "like"
	InteractionDislike  = "dislike"
	InteractionPurchase = "purchase"
)

// ValidInteractionType reports whether t is one of the known interaction types.
func ValidInteractionType(t string) bool {
	switch t {
	case InteractionView, InteractionLike, InteractionDislike, InteractionPurchase:
		return true
	}
	return false
}

// UserInteraction is one append-only row in the interaction log. Identity is
// an opaque principal key: an anonymous session token or a stringified user id.
type UserInteraction struct {
	ID        int64     `json:"id"`
	Identity  string    `json:"identity"`
	ProductID int64     `json:"product_id"`
	Type      string    `json:"interaction_type"`
	Timestamp time.Time `json:"timestamp"`
}

type InteractionToggleRequest struct {
	InteractionType string `json:"interaction_type" validate:"required,oneof=like dislike"`
}

type InteractionToggleResponse struct {
	Success         bool   `json:"success"`
	InteractionType string `json:"interaction_type"`
	IsActive        bool   `json:"is_active"`
	Message         string `json:"message"`
}

type InteractionRecordRequest struct {
	ProductID       int64  `json:"product_id" validate:"required,min=1"`
	InteractionType string `json:"interaction_type" validate:"required,oneof=view like dislike purchase"`
}
