package checkout

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

// ParseWebhook verifies the Stripe-Signature header and decodes the event.
// Events from any API version are accepted; only the session fields used
// here are read.
func (c *Client) ParseWebhook(payload []byte, signatureHeader string) (*Event, error) {
	if c.webhookSecret == "" {
		return nil, ErrWebhookNotConfigured
	}

	raw, err := webhook.ConstructEventWithOptions(payload, signatureHeader, c.webhookSecret, webhook.ConstructEventOptions{
		Tolerance:                c.tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		if isSignatureError(err) {
			return nil, fmt.Errorf("%w: %w", ErrInvalidSignature, err)
		}
		return nil, fmt.Errorf("decode event: %w", err)
	}

	event := &Event{ID: raw.ID, Type: string(raw.Type)}
	if strings.HasPrefix(event.Type, "checkout.session.") && raw.Data != nil && len(raw.Data.Raw) > 0 {
		var session stripe.CheckoutSession
		if err := json.Unmarshal(raw.Data.Raw, &session); err != nil {
			return nil, fmt.Errorf("decode session: %w", err)
		}
		event.Session = *fromStripe(&session)
	}
	return event, nil
}

func isSignatureError(err error) bool {
	return errors.Is(err, webhook.ErrNotSigned) ||
		errors.Is(err, webhook.ErrInvalidHeader) ||
		errors.Is(err, webhook.ErrNoValidSignature) ||
		errors.Is(err, webhook.ErrTooOld)
}

// SignatureHeader builds a header value for payload, as the provider would
func SignatureHeader(payload []byte, secret string, at time.Time) string {
	return fmt.Sprintf("t=%d,v1=%s", at.Unix(), hex.EncodeToString(webhook.ComputeSignature(at, payload, secret)))
}
