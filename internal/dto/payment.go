package dto

import "github.com/prperemyshlev/photo-enhancer/internal/domain"

// CheckoutRequest lists the photos to buy. Any amount sent by the client is ignored.
type CheckoutRequest struct {
	PhotoIDs []string `json:"photo_ids"`
}

// CheckoutResponse carries either a hosted checkout or the free-access flag
type CheckoutResponse struct {
	Success    bool   `json:"success"`
	SessionID  string `json:"sessionId,omitempty"`
	URL        string `json:"url,omitempty"`
	FreeAccess bool   `json:"free_access,omitempty"`
}

// CheckStatusRequest asks whether the listed photos may be downloaded
type CheckStatusRequest struct {
	PhotoIDs  []string `json:"photo_ids"`
	SessionID string   `json:"session_id"`
}

// CheckStatusResponse answers a CheckStatusRequest
type CheckStatusResponse struct {
	Success    bool   `json:"success"`
	Paid       bool   `json:"paid"`
	PaymentID  string `json:"payment_id,omitempty"`
	FreeAccess bool   `json:"free_access,omitempty"`
}

// PaymentSuccessResponse summarizes the redirect confirmation
type PaymentSuccessResponse struct {
	Success   bool                  `json:"success"`
	SessionID string                `json:"session_id"`
	Found     bool                  `json:"found"`
	Payment   *domain.PaymentIntent `json:"payment,omitempty"`
	Message   string                `json:"message"`
}

// WebhookResponse acknowledges a webhook delivery
type WebhookResponse struct {
	Status string `json:"status"`
}

// FreeAccessRequest toggles free downloads for a user
type FreeAccessRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}
