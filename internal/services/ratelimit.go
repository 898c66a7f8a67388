package services

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/marev/vitrina/internal/config"
)

// RateLimitService implements a fixed-window counter per principal on the
// hot Redis tier.
type RateLimitService struct {
	redis  *redis.Client
	cfg    config.RateLimitConfig
	logger *logrus.Logger
}

type RateLimitInfo struct {
	Limit     int
	Remaining int
	ResetTime int64
}

func NewRateLimitService(redisClient *redis.Client, cfg config.RateLimitConfig, logger *logrus.Logger) *RateLimitService {
	return &RateLimitService{redis: redisClient, cfg: cfg, logger: logger}
}

// IsAllowed counts one request against the principal's current window.
func (s *RateLimitService) IsAllowed(ctx context.Context, principal string) (bool, *RateLimitInfo, error) {
	window := s.cfg.Window
	if window <= 0 {
		window = time.Minute
	}

	windowStart := time.Now().Truncate(window)
	key := fmt.Sprintf("ratelimit:%s:%d", principal, windowStart.Unix())

	count, err := s.redis.Incr(ctx, key).Result()
	if err != nil {
		return false, nil, fmt.Errorf("failed to increment rate limit counter: %w", err)
	}
	if count == 1 {
		if err := s.redis.Expire(ctx, key, window).Err(); err != nil {
			s.logger.WithError(err).Warn("Failed to set rate limit key expiry")
		}
	}

	info := &RateLimitInfo{
		Limit:     s.cfg.Requests,
		Remaining: s.cfg.Requests - int(count),
		ResetTime: windowStart.Add(window).Unix(),
	}
	if info.Remaining < 0 {
		info.Remaining = 0
	}

	return int(count) <= s.cfg.Requests, info, nil
}
