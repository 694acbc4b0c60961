package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/prperemyshlev/photo-enhancer/internal/dto"
	"github.com/prperemyshlev/photo-enhancer/internal/service"
)

// AdminHandler holds operator-only endpoints
type AdminHandler struct {
	payments service.PaymentService
	logger   *zap.Logger
}

func NewAdminHandler(payments service.PaymentService, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{
		payments: payments,
		logger:   logger,
	}
}

// SetFreeAccess handles PUT /api/admin/users/:id/free-access
func (h *AdminHandler) SetFreeAccess(c *gin.Context) {
	var req dto.FreeAccessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	userID := c.Param("id")
	if err := h.payments.SetFreeAccess(c.Request.Context(), userID, *req.Enabled); err != nil {
		respondError(c, h.logger, err)
		return
	}

	h.logger.Info("Free access updated", zap.String("user_id", userID), zap.Bool("enabled", *req.Enabled))

	message := "Free access disabled"
	if *req.Enabled {
		message = "Free access enabled"
	}
	c.JSON(http.StatusOK, dto.SuccessResponse{Success: true, Message: message})
}
