package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/marev/vitrina/internal/services"
)

type StatsHandler struct {
	engine services.RecommendationEngineInterface
	logger *logrus.Logger
}

func NewStatsHandler(engine services.RecommendationEngineInterface, logger *logrus.Logger) *StatsHandler {
	return &StatsHandler{engine: engine, logger: logger}
}

// Get serves GET /stats with the engine's observability counts.
func (h *StatsHandler) Get(c *gin.Context) {
	stats, err := h.engine.Stats(c.Request.Context())
	if err != nil {
		h.logger.WithError(err).Error("Failed to read engine stats")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{
				"code":    "STATS_FAILED",
				"message": "Failed to read engine stats",
			},
		})
		return
	}

	c.JSON(http.StatusOK, stats)
}
