package server

import (
	"context"
	"math"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/tekwealth/tekwealth/internal/observability/logger"
	"github.com/tekwealth/tekwealth/internal/ratelimit"
	"go.uber.org/zap"
)

const (
	endpointPayment  = "payment"
	endpointReferral = "referral"
)

type allowFunc func(ctx context.Context, clientKey string) (*ratelimit.Result, error)

// RateLimit throttles an endpoint per client IP.
func (s *Server) RateLimit(endpoint string, allow allowFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.limiter.Enabled() {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		res, err := allow(ctx, c.ClientIP())
		if err != nil {
			logger.WithContext(ctx, s.log).Warn("rate limit check failed",
				zap.String("endpoint", endpoint),
				zap.Error(err),
			)
			AbortWithError(c, ErrServiceUnavailable)
			return
		}
		if !res.Allowed {
			logger.WithContext(ctx, s.log).Warn("rate limit exceeded", zap.String("endpoint", endpoint))
			s.obsMetrics.RecordRateLimitDenied(ctx, endpoint)
			c.Header("Retry-After", retryAfterSeconds(res))
			AbortWithError(c, ErrRateLimited)
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(res.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		c.Next()
	}
}

func retryAfterSeconds(res *ratelimit.Result) string {
	seconds := int(math.Ceil(res.RetryAfter.Seconds()))
	if seconds < 1 {
		seconds = 1
	}
	return strconv.Itoa(seconds)
}
