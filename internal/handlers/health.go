package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/marev/vitrina/internal/services"
)

type HealthHandler struct {
	health *services.HealthService
}

func NewHealthHandler(health *services.HealthService) *HealthHandler {
	return &HealthHandler{health: health}
}

func (h *HealthHandler) Check(c *gin.Context) {
	status := h.health.Check(c.Request.Context())

	code := http.StatusOK
	if status.Status == "unhealthy" {
		code = http.StatusServiceUnavailable
	}

	c.JSON(code, status)
}
