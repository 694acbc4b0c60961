package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/prperemyshlev/photo-enhancer/internal/domain"
	"github.com/prperemyshlev/photo-enhancer/internal/dto"
	"github.com/prperemyshlev/photo-enhancer/internal/service"
)

const (
	signatureHeader = "Stripe-Signature"
	maxWebhookBytes = 1 << 20
)

// PaymentHandler exposes checkout, confirmation and entitlement endpoints
type PaymentHandler struct {
	payments service.PaymentService
	logger   *zap.Logger
}

func NewPaymentHandler(payments service.PaymentService, logger *zap.Logger) *PaymentHandler {
	return &PaymentHandler{
		payments: payments,
		logger:   logger,
	}
}

// CreateCheckoutSession starts a checkout for the requested photos. The
// amount is always computed server-side.
func (h *PaymentHandler) CreateCheckoutSession(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	var req dto.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	result, err := h.payments.InitiateCheckout(c.Request.Context(), userID, req.PhotoIDs)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, dto.CheckoutResponse{
		Success:    true,
		SessionID:  result.SessionID,
		URL:        result.URL,
		FreeAccess: result.FreeAccess,
	})
}

// CheckStatus answers whether the user may download the listed photos
func (h *PaymentHandler) CheckStatus(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	var req dto.CheckStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	entitlement, err := h.payments.CheckEntitlement(c.Request.Context(), userID, req.PhotoIDs, req.SessionID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, dto.CheckStatusResponse{
		Success:    true,
		Paid:       entitlement.Paid,
		PaymentID:  entitlement.PaymentID,
		FreeAccess: entitlement.FreeAccess,
	})
}

// Success is the provider's redirect target. It reconciles the session and
// reports the outcome; the webhook remains authoritative.
func (h *PaymentHandler) Success(c *gin.Context) {
	sessionID := c.Query("session_id")
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "Bad request",
			Message: "session_id is required",
		})
		return
	}

	outcome, err := h.payments.ConfirmFromRedirect(c.Request.Context(), sessionID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, dto.PaymentSuccessResponse{
		Success:   true,
		SessionID: sessionID,
		Found:     outcome.Found,
		Payment:   outcome.Intent,
		Message:   redirectMessage(outcome),
	})
}

// Cancel is the provider's cancel redirect target
func (h *PaymentHandler) Cancel(c *gin.Context) {
	c.JSON(http.StatusOK, dto.SuccessResponse{
		Success: true,
		Message: "Payment cancelled. Your photos are still available for purchase.",
	})
}

// Webhook receives provider events. The raw body is needed for signature
// verification, so it is read before any binding.
func (h *PaymentHandler) Webhook(c *gin.Context) {
	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, dto.ErrorResponse{
				Error:   "Payload too large",
				Message: "Webhook payload too large",
			})
			return
		}
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "Bad request",
			Message: "Failed to read webhook payload",
		})
		return
	}

	if err := h.payments.ConfirmFromWebhook(c.Request.Context(), payload, c.GetHeader(signatureHeader)); err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, dto.WebhookResponse{Status: "success"})
}

func redirectMessage(outcome *service.RedirectOutcome) string {
	if !outcome.Found || outcome.Intent == nil {
		return "Payment session not found"
	}

	switch outcome.Intent.Status {
	case domain.PaymentCompleted:
		return "Payment completed successfully. Your photos are ready to download."
	case domain.PaymentPending:
		return "Payment is still being processed"
	default:
		return "Payment was not completed"
	}
}
