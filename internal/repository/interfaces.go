package repository

import (
	"context"
	"time"

	"github.com/prperemyshlev/photo-enhancer/internal/domain"
)

// UserRepository defines methods for user operations
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	GetByID(ctx context.Context, id string) (*domain.User, error)
	UsernameExists(ctx context.Context, username string) (bool, error)
	UpdateLastLogin(ctx context.Context, userID string) error
	SetFreeAccess(ctx context.Context, userID string, enabled bool) error
	ListWithSummary(ctx context.Context) ([]*domain.UserSummary, error)
}

// TokenRepository defines methods for refresh token operations
type TokenRepository interface {
	Create(ctx context.Context, token *domain.RefreshToken) error
	GetByTokenHash(ctx context.Context, tokenHash string) (*domain.RefreshToken, error)
	DeleteByTokenHash(ctx context.Context, tokenHash string) error
	DeleteExpired(ctx context.Context) (int64, error)
}

// OAuthProviderRepository defines methods for external identity operations
type OAuthProviderRepository interface {
	Create(ctx context.Context, provider *domain.OAuthProvider) error
	CreateWithUser(ctx context.Context, user *domain.User, provider *domain.OAuthProvider) error
	GetByProvider(ctx context.Context, provider, providerUserID string) (*domain.OAuthProvider, error)
}

// PhotoRepository defines methods for photo job operations
type PhotoRepository interface {
	Create(ctx context.Context, job *domain.PhotoJob) error
	GetByID(ctx context.Context, id string) (*domain.PhotoJob, error)
	GetInlineData(ctx context.Context, id, artifact string) ([]byte, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]*domain.PhotoJob, int, error)
	Delete(ctx context.Context, id, userID string) error
	ClaimRecent(ctx context.Context, userID string, ids []string, cutoff time.Time) (int64, error)
	ClaimAllRecent(ctx context.Context, userID string, cutoff time.Time) (int64, error)
	CountOwned(ctx context.Context, userID string, ids []string) (int, error)
}

// PaymentRepository defines methods for payment intent operations. The Mark
// methods only act on pending intents and report whether they changed one.
type PaymentRepository interface {
	Create(ctx context.Context, intent *domain.PaymentIntent) error
	GetBySessionID(ctx context.Context, sessionID string) (*domain.PaymentIntent, error)
	ListCompletedByUser(ctx context.Context, userID string) ([]*domain.PaymentIntent, error)
	MarkCompleted(ctx context.Context, sessionID string, paymentID *string, at time.Time) (bool, error)
	MarkFailed(ctx context.Context, sessionID string) (bool, error)
	MarkCancelled(ctx context.Context, sessionID string) (bool, error)
}
