package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/marev/vitrina/internal/middleware"
	"github.com/marev/vitrina/internal/services"
	"github.com/marev/vitrina/internal/validation"
	"github.com/marev/vitrina/pkg/models"
)

type InteractionHandler struct {
	interactions services.InteractionStore
	validator    *validation.SchemaValidator
	logger       *logrus.Logger
}

func NewInteractionHandler(
	interactions services.InteractionStore,
	validator *validation.SchemaValidator,
	logger *logrus.Logger,
) *InteractionHandler {
	return &InteractionHandler{
		interactions: interactions,
		validator:    validator,
		logger:       logger,
	}
}

// Toggle serves POST /products/:productId/interactions with storefront
// like/dislike semantics: recording one sense deletes the opposite row, and
// repeating the same sense removes it again.
func (h *InteractionHandler) Toggle(c *gin.Context) {
	productID, err := strconv.ParseInt(c.Param("productId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "INVALID_PRODUCT_ID",
				"message": "Product ID must be an integer",
			},
		})
		return
	}

	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "INVALID_REQUEST_BODY",
				"message": "Failed to read request body",
			},
		})
		return
	}

	if result := h.validator.ValidateInteractionToggle(body); !result.Valid {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "VALIDATION_FAILED",
				"message": "Invalid interaction request",
				"details": result.Errors,
			},
		})
		return
	}

	var req models.InteractionToggleRequest
	if err := json.Unmarshal(body, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "INVALID_REQUEST_BODY",
				"message": "Invalid JSON data",
			},
		})
		return
	}

	identity := h.ensureIdentity(c)

	active, err := h.interactions.Toggle(c.Request.Context(), identity, productID, req.InteractionType)
	if err != nil {
		h.logger.WithError(err).WithFields(logrus.Fields{
			"identity":   identity,
			"product_id": productID,
		}).Error("Failed to toggle interaction")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{
				"code":    "INTERACTION_FAILED",
				"message": "Failed to record interaction",
			},
		})
		return
	}

	message := fmt.Sprintf("Added %s", req.InteractionType)
	if !active {
		message = fmt.Sprintf("Removed %s", req.InteractionType)
	}

	c.JSON(http.StatusOK, models.InteractionToggleResponse{
		Success:         true,
		InteractionType: req.InteractionType,
		IsActive:        active,
		Message:         message,
	})
}

// Record serves POST /interactions: plain append of a view/purchase (or
// explicit like/dislike) signal, no toggle semantics.
func (h *InteractionHandler) Record(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "INVALID_REQUEST_BODY",
				"message": "Failed to read request body",
			},
		})
		return
	}

	if result := h.validator.ValidateInteractionRecord(body); !result.Valid {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "VALIDATION_FAILED",
				"message": "Invalid interaction request",
				"details": result.Errors,
			},
		})
		return
	}

	var req models.InteractionRecordRequest
	if err := json.Unmarshal(body, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "INVALID_REQUEST_BODY",
				"message": "Invalid JSON data",
			},
		})
		return
	}

	identity := h.ensureIdentity(c)

	interaction := &models.UserInteraction{
		Identity:  identity,
		ProductID: req.ProductID,
		Type:      req.InteractionType,
	}
	if err := h.interactions.AppendInteraction(c.Request.Context(), interaction); err != nil {
		h.logger.WithError(err).WithFields(logrus.Fields{
			"identity":   identity,
			"product_id": req.ProductID,
		}).Error("Failed to record interaction")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{
				"code":    "INTERACTION_FAILED",
				"message": "Failed to record interaction",
			},
		})
		return
	}

	c.JSON(http.StatusCreated, interaction)
}

// ensureIdentity returns the caller's session token, minting one when the
// client has none yet so anonymous visitors accumulate history too.
func (h *InteractionHandler) ensureIdentity(c *gin.Context) string {
	if token := c.GetHeader(middleware.SessionTokenHeader); token != "" {
		return token
	}
	token := uuid.New().String()
	c.Header(middleware.SessionTokenHeader, token)
	return token
}
