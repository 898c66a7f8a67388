package services

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"

	"github.com/marev/vitrina/internal/database"
)

type HealthService struct {
	db     *database.Database
	logger *logrus.Logger

	checkStatus *prometheus.GaugeVec
}

type HealthStatus struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Services  map[string]string `json:"services"`
}

func NewHealthService(db *database.Database, logger *logrus.Logger, reg prometheus.Registerer) *HealthService {
	return &HealthService{
		db:     db,
		logger: logger,
		checkStatus: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "health_check_status",
			Help: "Health check status (1 = healthy, 0 = unhealthy)",
		}, []string{"service"}),
	}
}

// Check pings every backing store. Redis degradation is non-fatal: the
// service still serves recommendations without caching or rate limiting.
func (s *HealthService) Check(ctx context.Context) *HealthStatus {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	status := &HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now(),
		Services:  make(map[string]string),
	}

	if err := s.db.PG.Ping(ctx); err != nil {
		s.logger.WithError(err).Error("PostgreSQL health check failed")
		status.Services["postgresql"] = "unhealthy"
		status.Status = "unhealthy"
		s.checkStatus.WithLabelValues("postgresql").Set(0)
	} else {
		status.Services["postgresql"] = "healthy"
		s.checkStatus.WithLabelValues("postgresql").Set(1)
	}

	if err := s.db.Redis.Hot.Ping(ctx).Err(); err != nil {
		s.logger.WithError(err).Warn("Hot Redis health check failed")
		status.Services["redis_hot"] = "unhealthy"
		if status.Status == "healthy" {
			status.Status = "degraded"
		}
		s.checkStatus.WithLabelValues("redis_hot").Set(0)
	} else {
		status.Services["redis_hot"] = "healthy"
		s.checkStatus.WithLabelValues("redis_hot").Set(1)
	}

	if err := s.db.Redis.Warm.Ping(ctx).Err(); err != nil {
		s.logger.WithError(err).Warn("Warm Redis health check failed")
		status.Services["redis_warm"] = "unhealthy"
		if status.Status == "healthy" {
			status.Status = "degraded"
		}
		s.checkStatus.WithLabelValues("redis_warm").Set(0)
	} else {
		status.Services["redis_warm"] = "healthy"
		s.checkStatus.WithLabelValues("redis_warm").Set(1)
	}

	return status
}
