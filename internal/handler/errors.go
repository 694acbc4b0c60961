package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/prperemyshlev/photo-enhancer/internal/dto"
	"github.com/prperemyshlev/photo-enhancer/internal/repository"
	"github.com/prperemyshlev/photo-enhancer/internal/service"
)

// statusFor maps an error class to an HTTP status and a public error title
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrValidation):
		return http.StatusBadRequest, "Bad request"
	case errors.Is(err, service.ErrUnauthorized):
		return http.StatusUnauthorized, "Unauthorized"
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden, "Forbidden"
	case errors.Is(err, service.ErrNotFound), errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound, "Not found"
	case errors.Is(err, service.ErrConflict), errors.Is(err, repository.ErrIntegrity):
		return http.StatusConflict, "Conflict"
	case errors.Is(err, service.ErrRateLimited):
		return http.StatusTooManyRequests, "Too Many Requests"
	case errors.Is(err, service.ErrUnavailable), repository.IsTransient(err):
		return http.StatusServiceUnavailable, "Service unavailable"
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

// respondError writes err as a JSON error. 5xx details are logged, never returned.
func respondError(c *gin.Context, logger *zap.Logger, err error) {
	status, title := statusFor(err)

	message := publicMessage(err, status)

	switch {
	case status >= http.StatusInternalServerError:
		logger.Error("Request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", status),
			zap.Error(err),
		)
	case fromStorage(err):
		logger.Warn("Request rejected by storage",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", status),
			zap.Error(err),
		)
	}

	c.JSON(status, dto.ErrorResponse{
		Error:   title,
		Message: message,
	})
}

// publicMessage never returns driver or SQL text. Storage-backed 4xx errors
// fall back to the service sentinel they wrap, or a fixed text per status.
func publicMessage(err error, status int) string {
	switch {
	case status == http.StatusServiceUnavailable:
		return "Service temporarily unavailable, please try again"
	case status >= http.StatusInternalServerError:
		return "An unexpected error occurred"
	case !fromStorage(err):
		return err.Error()
	}

	if msg, ok := service.KnownMessage(err); ok {
		return msg
	}
	switch status {
	case http.StatusNotFound:
		return "The requested resource was not found"
	case http.StatusConflict:
		return "The resource already exists or was modified concurrently"
	default:
		return "The request could not be completed"
	}
}

func fromStorage(err error) bool {
	return errors.Is(err, repository.ErrNotFound) ||
		errors.Is(err, repository.ErrIntegrity) ||
		errors.Is(err, repository.ErrTransient)
}

// respondBindError reports a request body that failed to bind
func respondBindError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, dto.ErrorResponse{
		Error:   "Validation failed",
		Message: err.Error(),
	})
}

var (
	errMissingToken      = errors.New("authorization header is required")
	errInvalidAuthHeader = errors.New("invalid authorization header format")
)
