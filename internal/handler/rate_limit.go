package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/prperemyshlev/photo-enhancer/internal/dto"
	"github.com/prperemyshlev/photo-enhancer/internal/service"
)

// RateLimitMiddleware creates a rate limiting middleware. Limiter failures
// other than an exceeded limit let the request through.
func RateLimitMiddleware(limiter service.Limiter, limit int, window time.Duration, keyFunc func(*gin.Context) string, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := keyFunc(c)

		allowed, err := limiter.Allow(c.Request.Context(), key, limit, window)
		if err != nil && !errors.Is(err, service.ErrRateLimited) {
			logger.Warn("Rate limiter unavailable", zap.String("key", key), zap.Error(err))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(limit))

		if !allowed {
			message := "Rate limit exceeded"
			if err != nil {
				message = err.Error()
			}
			c.Header("Retry-After", retryAfterSeconds(err, window))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, dto.ErrorResponse{
				Error:   "Too Many Requests",
				Message: message,
			})
			return
		}

		c.Next()
	}
}

// IPBasedKey extracts rate limit key from client IP
func IPBasedKey(c *gin.Context) string {
	ip := c.GetHeader("X-Forwarded-For")
	if ip != "" {
		// X-Forwarded-For can contain multiple IPs, take the first one
		ips := strings.Split(ip, ",")
		ip = strings.TrimSpace(ips[0])
	} else {
		ip = c.ClientIP()
	}

	return ip
}

// RouteAndIPKey scopes the limit to one route per client, so signup attempts
// do not consume the login budget
func RouteAndIPKey(c *gin.Context) string {
	return c.FullPath() + ":" + IPBasedKey(c)
}

// UserOrIPKey limits authenticated routes per user
func UserOrIPKey(c *gin.Context) string {
	if userID, ok := currentUserID(c); ok {
		return c.FullPath() + ":user:" + userID
	}
	return RouteAndIPKey(c)
}

// retryAfterSeconds extracts the wait from "rate limit exceeded, try again in 45s"
func retryAfterSeconds(err error, window time.Duration) string {
	fallback := strconv.Itoa(int(window.Seconds()))
	if err == nil {
		return fallback
	}

	_, after, found := strings.Cut(err.Error(), "try again in")
	if !found {
		return fallback
	}

	wait, parseErr := time.ParseDuration(strings.TrimSpace(after))
	if parseErr != nil || wait <= 0 {
		return fallback
	}
	return strconv.Itoa(int(wait.Round(time.Second).Seconds()))
}
