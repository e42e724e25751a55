package httpapi

import (
	"log/slog"
	"math"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"authflow/internal/apperr"
	"authflow/internal/platform/logger"
)

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		elapsed := time.Since(start)
		status := c.Writer.Status()

		if s.metrics != nil {
			s.metrics.ObserveRequest(c.Request.Method, c.FullPath(), status, elapsed)
		}
		level := slog.LevelInfo
		if status >= 500 {
			level = slog.LevelWarn
		}
		s.log.LogAttrs(c.Request.Context(), level, "http request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", status),
			slog.Duration("duration", elapsed),
			slog.String("client_ip", c.ClientIP()))
	}
}

// rateLimit rejects requests over the limit with TOO_MANY_REQUESTS. When the
// limiter itself fails the request is let through.
func (s *Server) rateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.limiter == nil {
			c.Next()
			return
		}
		route := c.FullPath()
		d, err := s.limiter.Allow(c.Request.Context(), route+"|"+c.ClientIP())
		if err != nil {
			s.log.Warn("rate limiter unavailable, allowing request", slog.String("route", route), logger.Error(err))
			c.Next()
			return
		}
		if d.Allowed {
			c.Header("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			c.Next()
			return
		}

		c.Header("Retry-After", strconv.Itoa(int(math.Ceil(d.RetryAfter.Seconds()))))
		if s.metrics != nil {
			s.metrics.RateLimited.WithLabelValues(route).Inc()
		}
		s.errors.Notify(requestContext(c), apperr.New(apperr.CodeTooManyRequests, "rate limit exceeded", apperr.Internal()))
		c.Abort()
	}
}
