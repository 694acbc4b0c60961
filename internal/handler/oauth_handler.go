package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/prperemyshlev/photo-enhancer/internal/dto"
	"github.com/prperemyshlev/photo-enhancer/internal/service"
)

// OAuthHandler runs the Google sign-in redirect flow
type OAuthHandler struct {
	oauth  service.OAuthService
	auth   *AuthHandler
	logger *zap.Logger
}

func NewOAuthHandler(oauth service.OAuthService, auth *AuthHandler, logger *zap.Logger) *OAuthHandler {
	return &OAuthHandler{
		oauth:  oauth,
		auth:   auth,
		logger: logger,
	}
}

// Start redirects the browser to Google's consent page
func (h *OAuthHandler) Start(c *gin.Context) {
	url, err := h.oauth.AuthURL(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.Redirect(http.StatusFound, url)
}

// Callback completes the flow, signs the user in and sets session cookies
func (h *OAuthHandler) Callback(c *gin.Context) {
	if providerErr := c.Query("error"); providerErr != "" {
		c.JSON(http.StatusUnauthorized, dto.ErrorResponse{
			Error:   "Unauthorized",
			Message: "Google sign-in was not completed: " + providerErr,
		})
		return
	}

	identity, err := h.oauth.Callback(c.Request.Context(), c.Query("state"), c.Query("code"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	response, err := h.auth.authService.OAuthLogin(c.Request.Context(), *identity)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	h.auth.setSessionCookies(c, response)
	c.JSON(http.StatusOK, response.AuthResponse)
}
