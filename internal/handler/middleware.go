package handler

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/prperemyshlev/photo-enhancer/internal/dto"
	"github.com/prperemyshlev/photo-enhancer/internal/service"
)

// Context keys set by the auth middlewares
const (
	ctxUserID      = "user_id"
	ctxEmail       = "email"
	ctxClaims      = "claims"
	ctxAccessToken = "access_token"
)

const accessTokenCookie = "access_token"

// AuthMiddleware validates JWT token and adds user info to context
func AuthMiddleware(authService service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := requestToken(c)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, dto.ErrorResponse{
				Error:   "Unauthorized",
				Message: err.Error(),
			})
			return
		}

		if !authenticate(c, authService, token) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, dto.ErrorResponse{
				Error:   "Unauthorized",
				Message: "Invalid or expired token",
			})
			return
		}

		c.Next()
	}
}

// OptionalAuthMiddleware sets user info when a valid token is present and
// lets anonymous requests through otherwise
func OptionalAuthMiddleware(authService service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token, err := requestToken(c); err == nil {
			authenticate(c, authService, token)
		}
		c.Next()
	}
}

// AdminKeyMiddleware guards admin routes with a shared key. An empty key
// disables the routes.
func AdminKeyMiddleware(adminKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		provided := c.GetHeader("X-Admin-Key")
		if adminKey == "" || subtle.ConstantTimeCompare([]byte(provided), []byte(adminKey)) != 1 {
			c.AbortWithStatusJSON(http.StatusForbidden, dto.ErrorResponse{
				Error:   "Forbidden",
				Message: "Admin access required",
			})
			return
		}
		c.Next()
	}
}

func authenticate(c *gin.Context, authService service.AuthService, token string) bool {
	claims, err := authService.ValidateToken(c.Request.Context(), token)
	if err != nil {
		return false
	}

	c.Set(ctxUserID, claims.UserID)
	c.Set(ctxEmail, claims.Email)
	c.Set(ctxClaims, claims)
	c.Set(ctxAccessToken, token)
	return true
}

// requestToken extracts the access token from "Bearer <token>" or, failing
// that, from the access_token cookie
func requestToken(c *gin.Context) (string, error) {
	if authHeader := c.GetHeader("Authorization"); authHeader != "" {
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
			return "", errInvalidAuthHeader
		}
		return parts[1], nil
	}

	if token, err := c.Cookie(accessTokenCookie); err == nil && token != "" {
		return token, nil
	}

	return "", errMissingToken
}

// currentUserID returns the authenticated user, if any
func currentUserID(c *gin.Context) (string, bool) {
	userID := c.GetString(ctxUserID)
	return userID, userID != ""
}

// requireUserID aborts with 401 when no user is authenticated
func requireUserID(c *gin.Context) (string, bool) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, dto.ErrorResponse{
			Error:   "Unauthorized",
			Message: "User ID not found in context",
		})
	}
	return userID, ok
}
