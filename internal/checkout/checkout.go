// Package checkout talks to a Stripe-compatible hosted checkout API and
// verifies its webhook deliveries.
package checkout

import (
	"context"
	"errors"
)

// Session payment statuses reported by the provider
const (
	PaymentStatusPaid              = "paid"
	PaymentStatusUnpaid            = "unpaid"
	PaymentStatusNoPaymentRequired = "no_payment_required"
)

// Session statuses reported by the provider
const (
	SessionStatusOpen     = "open"
	SessionStatusComplete = "complete"
	SessionStatusExpired  = "expired"
)

// Webhook event types
const (
	EventSessionCompleted      = "checkout.session.completed"
	EventAsyncPaymentSucceeded = "checkout.session.async_payment_succeeded"
	EventAsyncPaymentFailed    = "checkout.session.async_payment_failed"
	EventSessionExpired        = "checkout.session.expired"
)

var (
	// ErrNotConfigured is returned when no secret key is set
	ErrNotConfigured = errors.New("payment provider is not configured")

	// ErrWebhookNotConfigured is returned when no webhook secret is set
	ErrWebhookNotConfigured = errors.New("webhook secret is not configured")

	// ErrInvalidSignature is returned for webhook payloads that fail verification
	ErrInvalidSignature = errors.New("invalid webhook signature")

	// ErrUnavailable marks network failures and 5xx or 429 answers from the provider
	ErrUnavailable = errors.New("payment provider unavailable")

	// ErrRejected marks 4xx answers from the provider
	ErrRejected = errors.New("payment provider rejected the request")
)

// SessionParams describes a one-line checkout
type SessionParams struct {
	Description   string
	UnitAmount    int64
	Quantity      int64
	Currency      string
	SuccessURL    string
	CancelURL     string
	CustomerEmail string
	Metadata      map[string]string

	// IdempotencyKey is sent as the Idempotency-Key header when set
	IdempotencyKey string
}

// Session is the provider's view of a checkout
type Session struct {
	ID              string            `json:"id"`
	URL             string            `json:"url"`
	Status          string            `json:"status"`
	PaymentStatus   string            `json:"payment_status"`
	PaymentIntentID string            `json:"-"`
	AmountTotal     int64             `json:"amount_total"`
	Currency        string            `json:"currency"`
	Metadata        map[string]string `json:"metadata"`
}

// IsPaid reports whether the provider considers the session settled. Only an
// explicit unpaid status holds a session back; events that omit the field
// count as settled.
func (s *Session) IsPaid() bool {
	return s.PaymentStatus != PaymentStatusUnpaid
}

// Event is a verified webhook delivery about a checkout session
type Event struct {
	ID      string
	Type    string
	Session Session
}

// Provider is the subset of the checkout API the payment engine needs
type Provider interface {
	CreateCheckoutSession(ctx context.Context, params SessionParams) (*Session, error)
	RetrieveSession(ctx context.Context, sessionID string) (*Session, error)
	ParseWebhook(payload []byte, signatureHeader string) (*Event, error)
}
