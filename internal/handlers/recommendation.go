package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/marev/vitrina/internal/config"
	"github.com/marev/vitrina/internal/middleware"
	"github.com/marev/vitrina/internal/services"
	"github.com/marev/vitrina/pkg/models"
)

type RecommendationHandler struct {
	engine   services.RecommendationEngineInterface
	cfg      *config.EngineConfig
	logger   *logrus.Logger
	validate *validator.Validate
}

func NewRecommendationHandler(
	engine services.RecommendationEngineInterface,
	cfg *config.EngineConfig,
	logger *logrus.Logger,
) *RecommendationHandler {
	return &RecommendationHandler{
		engine:   engine,
		cfg:      cfg,
		logger:   logger,
		validate: validator.New(),
	}
}

type FeedbackRequest struct {
	ProductID    int64  `json:"product_id" validate:"required"`
	FeedbackType string `json:"feedback_type" validate:"required,oneof=like dislike"`
}

// Get serves GET /recommendations/:productId. The identity is optional: with
// a session token the scores are personalized, without one they are pure
// content similarity.
func (h *RecommendationHandler) Get(c *gin.Context) {
	productIDStr := c.Param("productId")
	productID, err := strconv.ParseInt(productIDStr, 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "INVALID_PRODUCT_ID",
				"message": "Product ID must be an integer",
			},
		})
		return
	}

	count := h.cfg.DefaultCount
	if countStr := c.Query("num_recommendations"); countStr != "" {
		parsed, err := strconv.Atoi(countStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": gin.H{
					"code":    "INVALID_COUNT",
					"message": "num_recommendations must be an integer",
				},
			})
			return
		}
		count = parsed
	}
	// Clamp to the server-side range rather than rejecting out-of-range asks.
	if count < 1 {
		count = 1
	}
	if count > h.cfg.MaxCount {
		count = h.cfg.MaxCount
	}

	identity := sessionIdentity(c)

	recommendations, err := h.engine.GetRecommendations(c.Request.Context(), productID, identity, count)
	if err != nil {
		if errors.Is(err, services.ErrInvalidCount) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": gin.H{
					"code":    "INVALID_COUNT",
					"message": err.Error(),
				},
			})
			return
		}
		h.logger.WithError(err).WithField("product_id", productID).
			Error("Failed to generate recommendations")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{
				"code":    "RECOMMENDATION_GENERATION_FAILED",
				"message": "Failed to generate recommendations",
			},
		})
		return
	}

	for i := range recommendations {
		recommendations[i].DetailURL = fmt.Sprintf("/products/%d/", recommendations[i].ProductID)
	}

	c.JSON(http.StatusOK, models.RecommendationResponse{
		ProductID:       productID,
		Recommendations: recommendations,
		Count:           len(recommendations),
	})
}

// Refresh serves POST /recommendations/refresh, the cache invalidation hook
// the catalog admin calls after mutating products. The rebuild itself happens
// lazily on the next recommendation request.
func (h *RecommendationHandler) Refresh(c *gin.Context) {
	h.engine.Refresh()
	c.JSON(http.StatusAccepted, gin.H{"status": "refresh scheduled"})
}

// RecordFeedback serves POST /feedback: the engine's append-only write path.
// Unlike the storefront toggle endpoint, it does not enforce like/dislike
// exclusivity.
func (h *RecommendationHandler) RecordFeedback(c *gin.Context) {
	var req FeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "INVALID_REQUEST_BODY",
				"message": "Invalid feedback format",
			},
		})
		return
	}

	if err := h.validate.Struct(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "VALIDATION_FAILED",
				"message": "Feedback validation failed",
				"details": err.Error(),
			},
		})
		return
	}

	identity := sessionIdentity(c)
	if identity == "" {
		identity = uuid.New().String()
		c.Header(middleware.SessionTokenHeader, identity)
	}

	if err := h.engine.RecordFeedback(c.Request.Context(), identity, req.ProductID, req.FeedbackType); err != nil {
		if errors.Is(err, services.ErrInvalidFeedbackType) || errors.Is(err, services.ErrMissingIdentity) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": gin.H{
					"code":    "INVALID_FEEDBACK",
					"message": err.Error(),
				},
			})
			return
		}
		h.logger.WithError(err).WithFields(logrus.Fields{
			"identity":   identity,
			"product_id": req.ProductID,
		}).Error("Failed to record feedback")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{
				"code":    "FEEDBACK_RECORDING_FAILED",
				"message": "Failed to record feedback",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Feedback recorded successfully"})
}

// sessionIdentity resolves the caller's identity from the session token
// header, falling back to the legacy query parameter.
func sessionIdentity(c *gin.Context) string {
	if token := c.GetHeader(middleware.SessionTokenHeader); token != "" {
		return token
	}
	return c.Query("session_key")
}
