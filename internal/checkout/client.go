package checkout

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"go.uber.org/zap"

	"github.com/prperemyshlev/photo-enhancer/internal/config"
)

// Client wraps a stripe-go API handle bound to one secret key
type Client struct {
	api           *client.API
	webhookSecret string
	tolerance     time.Duration
	logger        *zap.Logger
}

// NewClient fails fast when the secret key is missing
func NewClient(cfg config.PaymentConfig, logger *zap.Logger) (*Client, error) {
	if cfg.SecretKey == "" {
		return nil, ErrNotConfigured
	}

	timeout := cfg.Timeout.Duration
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	tolerance := cfg.WebhookTolerance.Duration
	if tolerance <= 0 {
		tolerance = 5 * time.Minute
	}

	// Retries belong to the caller; stripe-go must not retry on its own
	backend := &stripe.BackendConfig{
		HTTPClient:        &http.Client{Timeout: timeout},
		LeveledLogger:     logger.Sugar(),
		MaxNetworkRetries: stripe.Int64(0),
	}
	if cfg.APIURL != "" {
		backend.URL = stripe.String(strings.TrimRight(cfg.APIURL, "/"))
	}

	return &Client{
		api:           client.New(cfg.SecretKey, stripe.NewBackendsWithConfig(backend)),
		webhookSecret: cfg.WebhookSecret,
		tolerance:     tolerance,
		logger:        logger,
	}, nil
}

// CreateCheckoutSession opens a hosted payment page for a single line item
func (c *Client) CreateCheckoutSession(ctx context.Context, params SessionParams) (*Session, error) {
	p := &stripe.CheckoutSessionParams{
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency: stripe.String(params.Currency),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(params.Description),
					},
					UnitAmount: stripe.Int64(params.UnitAmount),
				},
				Quantity: stripe.Int64(params.Quantity),
			},
		},
		SuccessURL: stripe.String(params.SuccessURL),
		CancelURL:  stripe.String(params.CancelURL),
	}
	p.Context = ctx
	if params.CustomerEmail != "" {
		p.CustomerEmail = stripe.String(params.CustomerEmail)
	}
	for k, v := range params.Metadata {
		p.AddMetadata(k, v)
	}
	if params.IdempotencyKey != "" {
		p.SetIdempotencyKey(params.IdempotencyKey)
	}

	start := time.Now()
	session, err := c.api.CheckoutSessions.New(p)
	c.logCall("create session", start, err)
	if err != nil {
		return nil, classify("create checkout session", err)
	}
	return fromStripe(session), nil
}

// RetrieveSession fetches the current state of a session
func (c *Client) RetrieveSession(ctx context.Context, sessionID string) (*Session, error) {
	p := &stripe.CheckoutSessionParams{}
	p.Context = ctx

	start := time.Now()
	session, err := c.api.CheckoutSessions.Get(sessionID, p)
	c.logCall("retrieve session", start, err)
	if err != nil {
		return nil, classify("retrieve checkout session "+sessionID, err)
	}
	return fromStripe(session), nil
}

func (c *Client) logCall(op string, start time.Time, err error) {
	c.logger.Debug("Payment provider request",
		zap.String("operation", op),
		zap.Duration("duration", time.Since(start)),
		zap.Bool("ok", err == nil),
	)
}

// classify maps stripe-go errors onto ErrRejected and ErrUnavailable. Anything
// that is not an API answer is a transport failure.
func classify(op string, err error) error {
	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) {
		return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
	}

	status := stripeErr.HTTPStatusCode
	if status >= http.StatusInternalServerError || status == http.StatusTooManyRequests || status == 0 {
		return fmt.Errorf("%s: %w: %d %s", op, ErrUnavailable, status, stripeErr.Msg)
	}
	return fmt.Errorf("%s: %w: %d %s", op, ErrRejected, status, stripeErr.Msg)
}

func fromStripe(s *stripe.CheckoutSession) *Session {
	out := &Session{
		ID:            s.ID,
		URL:           s.URL,
		Status:        string(s.Status),
		PaymentStatus: string(s.PaymentStatus),
		AmountTotal:   s.AmountTotal,
		Currency:      string(s.Currency),
		Metadata:      s.Metadata,
	}
	if s.PaymentIntent != nil {
		out.PaymentIntentID = s.PaymentIntent.ID
	}
	return out
}
