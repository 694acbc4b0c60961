package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/prperemyshlev/photo-enhancer/internal/checkout"
	"github.com/prperemyshlev/photo-enhancer/internal/config"
	"github.com/prperemyshlev/photo-enhancer/internal/domain"
	"github.com/prperemyshlev/photo-enhancer/internal/repository"
	"github.com/prperemyshlev/photo-enhancer/internal/retry"
	"github.com/prperemyshlev/photo-enhancer/pkg/observability"
)

// Transition sources, used as a metric attribute
const (
	sourceRedirect = "redirect"
	sourceWebhook  = "webhook"
)

// CheckoutResult is either a hosted checkout to redirect to or a free grant
type CheckoutResult struct {
	SessionID  string
	URL        string
	FreeAccess bool
	Claimed    int64
	Intent     *domain.PaymentIntent
}

// RedirectOutcome describes the intent after the browser came back from checkout
type RedirectOutcome struct {
	Found   bool
	Changed bool
	Intent  *domain.PaymentIntent
}

// Entitlement answers whether a set of photos may be downloaded
type Entitlement struct {
	Paid       bool
	PaymentID  string
	FreeAccess bool
}

type paymentService struct {
	users    repository.UserRepository
	photos   repository.PhotoRepository
	payments repository.PaymentRepository
	provider checkout.Provider
	cfg      config.PaymentConfig
	grace    time.Duration
	retry    retry.Policy
	metrics  *observability.Metrics
	logger   *zap.Logger
	now      func() time.Time
}

// NewPaymentService creates the payment and entitlement engine
func NewPaymentService(
	repos *repository.Repositories,
	provider checkout.Provider,
	cfg config.PaymentConfig,
	grace time.Duration,
	policy retry.Policy,
	metrics *observability.Metrics,
	logger *zap.Logger,
) PaymentService {
	return &paymentService{
		users:    repos.User,
		photos:   repos.Photo,
		payments: repos.Payment,
		provider: provider,
		cfg:      cfg,
		grace:    grace,
		retry:    policy,
		metrics:  metrics,
		logger:   logger,
		now:      time.Now,
	}
}

// InitiateCheckout validates ownership of photoIDs, claiming recent anonymous
// uploads first, and opens a checkout priced server-side. Free-access users
// get a completed intent without touching the provider.
func (s *paymentService) InitiateCheckout(ctx context.Context, userID string, photoIDs []string) (*CheckoutResult, error) {
	ids := domain.DedupIDs(photoIDs)
	if len(ids) == 0 {
		return nil, ErrNoPhotos
	}
	if !validIDs(ids) {
		s.metrics.Checkout(ctx, "rejected")
		return nil, ErrPhotosNotOwned
	}

	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	var claimed int64
	err = retry.Do(ctx, s.retry, func(ctx context.Context) error {
		n, err := s.photos.ClaimRecent(ctx, userID, ids, s.now().Add(-s.grace))
		claimed = n
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to claim photos: %w", err)
	}
	if claimed > 0 {
		s.logger.Info("Claimed photos before checkout",
			zap.String("user_id", userID),
			zap.Int64("claimed", claimed),
		)
	}

	var owned int
	err = retry.Do(ctx, s.retry, func(ctx context.Context) error {
		n, err := s.photos.CountOwned(ctx, userID, ids)
		owned = n
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to verify photo ownership: %w", err)
	}
	if owned != len(ids) {
		s.logger.Warn("Checkout rejected for unowned photos",
			zap.String("user_id", userID),
			zap.Int("requested", len(ids)),
			zap.Int("owned", owned),
		)
		s.metrics.Checkout(ctx, "rejected")
		return nil, ErrPhotosNotOwned
	}

	if user.HasFreeAccess {
		return s.grantFree(ctx, user, ids, claimed)
	}

	intentID := uuid.NewString()
	count := int64(len(ids))
	session, err := s.provider.CreateCheckoutSession(ctx, checkout.SessionParams{
		Description:    lineItemName(len(ids)),
		UnitAmount:     s.cfg.PricePerPhoto,
		Quantity:       count,
		Currency:       s.cfg.Currency,
		SuccessURL:     successURL(s.cfg.SuccessURL),
		CancelURL:      s.cfg.CancelURL,
		CustomerEmail:  user.Email,
		Metadata:       checkoutMetadata(userID, ids),
		IdempotencyKey: intentID,
	})
	if err != nil {
		s.metrics.Checkout(ctx, "provider_error")
		s.logger.Error("Failed to create checkout session", zap.String("user_id", userID), zap.Error(err))
		if errors.Is(err, checkout.ErrUnavailable) {
			return nil, fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
		}
		return nil, fmt.Errorf("failed to create checkout session: %w", err)
	}

	intent := &domain.PaymentIntent{
		ID:                intentID,
		UserID:            userID,
		ProviderSessionID: session.ID,
		Status:            domain.PaymentPending,
		Amount:            count * s.cfg.PricePerPhoto,
		Currency:          s.cfg.Currency,
		PhotoCount:        len(ids),
		PhotoIDs:          ids,
		CreatedAt:         s.now(),
	}
	err = retry.Do(ctx, s.retry, func(ctx context.Context) error {
		return s.payments.Create(ctx, intent)
	})
	if err != nil {
		s.metrics.Checkout(ctx, "persist_error")
		return nil, fmt.Errorf("failed to save payment intent: %w", err)
	}

	s.metrics.Checkout(ctx, "created")
	s.logger.Info("Created checkout session",
		zap.String("session_id", session.ID),
		zap.String("user_id", userID),
		zap.Int("photo_count", len(ids)),
		zap.Int64("amount", intent.Amount),
	)

	return &CheckoutResult{
		SessionID: session.ID,
		URL:       session.URL,
		Claimed:   claimed,
		Intent:    intent,
	}, nil
}

func (s *paymentService) grantFree(ctx context.Context, user *domain.User, ids []string, claimed int64) (*CheckoutResult, error) {
	now := s.now()
	intent := &domain.PaymentIntent{
		ID:                uuid.NewString(),
		UserID:            user.ID,
		ProviderSessionID: domain.FreeSessionPrefix + uuid.NewString(),
		Status:            domain.PaymentCompleted,
		Amount:            0,
		Currency:          s.cfg.Currency,
		PhotoCount:        len(ids),
		PhotoIDs:          ids,
		CreatedAt:         now,
		CompletedAt:       &now,
	}
	err := retry.Do(ctx, s.retry, func(ctx context.Context) error {
		return s.payments.Create(ctx, intent)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save free payment: %w", err)
	}

	s.metrics.Checkout(ctx, "free")
	s.logger.Info("Granted free download",
		zap.String("user_id", user.ID),
		zap.Int("photo_count", len(ids)),
	)

	return &CheckoutResult{
		SessionID:  intent.ProviderSessionID,
		FreeAccess: true,
		Claimed:    claimed,
		Intent:     intent,
	}, nil
}

// ConfirmFromRedirect reconciles a pending intent with the provider's view of
// the session. Unknown sessions are reported, not treated as errors.
func (s *paymentService) ConfirmFromRedirect(ctx context.Context, sessionID string) (*RedirectOutcome, error) {
	intent, err := s.getIntent(ctx, sessionID)
	if errors.Is(err, repository.ErrNotFound) {
		return &RedirectOutcome{Found: false}, nil
	}
	if err != nil {
		return nil, err
	}

	if intent.Status != domain.PaymentPending {
		return &RedirectOutcome{Found: true, Intent: intent}, nil
	}

	session, err := s.provider.RetrieveSession(ctx, sessionID)
	if err != nil {
		s.logger.Error("Failed to retrieve checkout session", zap.String("session_id", sessionID), zap.Error(err))
		if errors.Is(err, checkout.ErrUnavailable) {
			return nil, fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
		}
		return nil, fmt.Errorf("failed to retrieve checkout session: %w", err)
	}

	var changed bool
	switch {
	case session.Status == checkout.SessionStatusExpired:
		changed, err = s.cancel(ctx, sessionID, sourceRedirect)
	case session.IsPaid():
		changed, err = s.complete(ctx, sessionID, session.PaymentIntentID, sourceRedirect)
	default:
		return &RedirectOutcome{Found: true, Intent: intent}, nil
	}
	if err != nil {
		return nil, err
	}

	// Re-read so a concurrent webhook's result is what the caller sees
	intent, err = s.getIntent(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	return &RedirectOutcome{Found: true, Changed: changed, Intent: intent}, nil
}

// ConfirmFromWebhook verifies and applies a provider event. Unknown event
// types and unknown sessions are acknowledged without changes.
func (s *paymentService) ConfirmFromWebhook(ctx context.Context, payload []byte, signatureHeader string) error {
	event, err := s.provider.ParseWebhook(payload, signatureHeader)
	if err != nil {
		switch {
		case errors.Is(err, checkout.ErrWebhookNotConfigured):
			s.logger.Warn("Webhook secret not configured")
			return ErrWebhookNotConfigured
		case errors.Is(err, checkout.ErrInvalidSignature):
			s.logger.Warn("Invalid signature in webhook", zap.Error(err))
			return fmt.Errorf("%w: %w", ErrInvalidSignature, err)
		default:
			s.logger.Warn("Invalid payload in webhook", zap.Error(err))
			return fmt.Errorf("%w: %w", ErrInvalidPayload, err)
		}
	}

	sessionID := event.Session.ID
	logger := s.logger.With(
		zap.String("event_id", event.ID),
		zap.String("event_type", event.Type),
		zap.String("session_id", sessionID),
	)

	var changed bool
	switch event.Type {
	case checkout.EventSessionCompleted:
		if !event.Session.IsPaid() {
			// Delayed payment methods settle later through async_payment_succeeded
			logger.Info("Checkout completed without settled payment")
			return nil
		}
		changed, err = s.complete(ctx, sessionID, event.Session.PaymentIntentID, sourceWebhook)
	case checkout.EventAsyncPaymentSucceeded:
		changed, err = s.complete(ctx, sessionID, event.Session.PaymentIntentID, sourceWebhook)
	case checkout.EventAsyncPaymentFailed:
		changed, err = s.transition(ctx, sessionID, domain.PaymentFailed, sourceWebhook, s.payments.MarkFailed)
	case checkout.EventSessionExpired:
		changed, err = s.cancel(ctx, sessionID, sourceWebhook)
	default:
		logger.Debug("Ignoring webhook event")
		return nil
	}
	if err != nil {
		return err
	}

	if !changed {
		logger.Info("Webhook caused no transition")
	}
	return nil
}

// CheckEntitlement reports whether userID has paid for every photo in photoIDs
func (s *paymentService) CheckEntitlement(ctx context.Context, userID string, photoIDs []string, sessionID string) (*Entitlement, error) {
	ids := domain.DedupIDs(photoIDs)
	if len(ids) == 0 {
		return nil, ErrNoPhotos
	}

	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.HasFreeAccess {
		return &Entitlement{Paid: true, FreeAccess: true}, nil
	}

	if sessionID != "" {
		intent, err := s.getIntent(ctx, sessionID)
		if errors.Is(err, repository.ErrNotFound) {
			return &Entitlement{}, nil
		}
		if err != nil {
			return nil, err
		}
		if intent.UserID == userID && intent.Status == domain.PaymentCompleted {
			return &Entitlement{Paid: true, PaymentID: intent.ID}, nil
		}
		return &Entitlement{}, nil
	}

	var intents []*domain.PaymentIntent
	err = retry.Do(ctx, s.retry, func(ctx context.Context) error {
		list, err := s.payments.ListCompletedByUser(ctx, userID)
		intents = list
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}

	for _, intent := range intents {
		if intent.Covers(ids) {
			return &Entitlement{Paid: true, PaymentID: intent.ID}, nil
		}
	}
	return &Entitlement{}, nil
}

// ClaimForUser links every ownerless photo created within the grace window to userID
func (s *paymentService) ClaimForUser(ctx context.Context, userID string) (int64, error) {
	var claimed int64
	err := retry.Do(ctx, s.retry, func(ctx context.Context) error {
		n, err := s.photos.ClaimAllRecent(ctx, userID, s.now().Add(-s.grace))
		claimed = n
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to claim photos: %w", err)
	}

	if claimed > 0 {
		s.logger.Info("Claimed anonymous photos", zap.String("user_id", userID), zap.Int64("claimed", claimed))
	}
	return claimed, nil
}

// SetFreeAccess toggles the free-download override for a user
func (s *paymentService) SetFreeAccess(ctx context.Context, userID string, enabled bool) error {
	if _, err := uuid.Parse(userID); err != nil {
		return ErrUserNotFound
	}

	err := retry.Do(ctx, s.retry, func(ctx context.Context) error {
		return s.users.SetFreeAccess(ctx, userID, enabled)
	})
	if errors.Is(err, repository.ErrNotFound) {
		return ErrUserNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to update free access: %w", err)
	}

	s.logger.Info("Updated free access", zap.String("user_id", userID), zap.Bool("enabled", enabled))
	return nil
}

func (s *paymentService) complete(ctx context.Context, sessionID, paymentID, source string) (bool, error) {
	var pid *string
	if paymentID != "" {
		pid = &paymentID
	}
	return s.transition(ctx, sessionID, domain.PaymentCompleted, source, func(ctx context.Context, sid string) (bool, error) {
		return s.payments.MarkCompleted(ctx, sid, pid, s.now())
	})
}

func (s *paymentService) cancel(ctx context.Context, sessionID, source string) (bool, error) {
	return s.transition(ctx, sessionID, domain.PaymentCancelled, source, s.payments.MarkCancelled)
}

// transition applies a conditional pending->status update. Only the caller
// whose update changed the row logs and counts it.
func (s *paymentService) transition(
	ctx context.Context,
	sessionID string,
	status domain.PaymentStatus,
	source string,
	mark func(ctx context.Context, sessionID string) (bool, error),
) (bool, error) {
	if sessionID == "" {
		return false, ErrInvalidPayload
	}

	var changed bool
	err := retry.Do(ctx, s.retry, func(ctx context.Context) error {
		ok, err := mark(ctx, sessionID)
		changed = ok
		return err
	})
	if err != nil {
		return false, fmt.Errorf("failed to mark payment %s: %w", status, err)
	}

	if changed {
		s.metrics.Transition(ctx, string(status), source)
		s.logger.Info("Payment transitioned",
			zap.String("session_id", sessionID),
			zap.String("status", string(status)),
			zap.String("source", source),
		)
	}
	return changed, nil
}

func (s *paymentService) getIntent(ctx context.Context, sessionID string) (*domain.PaymentIntent, error) {
	var intent *domain.PaymentIntent
	err := retry.Do(ctx, s.retry, func(ctx context.Context) error {
		p, err := s.payments.GetBySessionID(ctx, sessionID)
		intent = p
		return err
	})
	if errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	return intent, nil
}

func (s *paymentService) loadUser(ctx context.Context, userID string) (*domain.User, error) {
	var user *domain.User
	err := retry.Do(ctx, s.retry, func(ctx context.Context) error {
		u, err := s.users.GetByID(ctx, userID)
		user = u
		return err
	})
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// validIDs reports whether every id parses as a UUID. Anything else cannot
// name a photo and is treated as not owned.
func validIDs(ids []string) bool {
	for _, id := range ids {
		if _, err := uuid.Parse(id); err != nil {
			return false
		}
	}
	return true
}

func lineItemName(count int) string {
	if count == 1 {
		return "Enhanced Photo Download (1 photo)"
	}
	return fmt.Sprintf("Enhanced Photo Download (%d photos)", count)
}

func successURL(base string) string {
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + "session_id={CHECKOUT_SESSION_ID}"
}

func checkoutMetadata(userID string, ids []string) map[string]string {
	encoded, _ := json.Marshal(ids)
	return map[string]string{
		"user_id":     userID,
		"photo_count": strconv.Itoa(len(ids)),
		"photo_ids":   string(encoded),
	}
}
