package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prperemyshlev/photo-enhancer/internal/domain"
	"github.com/prperemyshlev/photo-enhancer/pkg/database"
)

// oauthProviderRepository implements OAuthProviderRepository interface
type oauthProviderRepository struct {
	db *database.Postgres
}

// NewOAuthProviderRepository creates a new OAuth provider repository
func NewOAuthProviderRepository(db *database.Postgres) OAuthProviderRepository {
	return &oauthProviderRepository{db: db}
}

// Create links an external identity to an existing user
func (r *oauthProviderRepository) Create(ctx context.Context, provider *domain.OAuthProvider) error {
	return createOAuthProvider(ctx, r.db.DB, provider)
}

// CreateWithUser inserts a new user and its first identity in one transaction
func (r *oauthProviderRepository) CreateWithUser(ctx context.Context, user *domain.User, provider *domain.OAuthProvider) error {
	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		if err := createUser(ctx, tx, user); err != nil {
			return err
		}
		provider.UserID = user.ID
		return createOAuthProvider(ctx, tx, provider)
	})
}

func createOAuthProvider(ctx context.Context, q querier, provider *domain.OAuthProvider) error {
	query := `
		INSERT INTO oauth_providers (id, user_id, provider, provider_user_id, email, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	if provider.ID == "" {
		provider.ID = uuid.New().String()
	}
	if provider.CreatedAt.IsZero() {
		provider.CreatedAt = time.Now()
	}

	_, err := q.ExecContext(ctx, query,
		provider.ID,
		provider.UserID,
		provider.Provider,
		provider.ProviderUserID,
		provider.Email,
		provider.CreatedAt,
	)
	if err != nil {
		if _, ok := uniqueConstraint(err); ok {
			return fmt.Errorf("%s identity %s: %w", provider.Provider, provider.ProviderUserID, ErrDuplicateOAuthProvider)
		}
		return fmt.Errorf("failed to create oauth provider: %w", classify(err))
	}

	return nil
}

// GetByProvider retrieves an identity by provider name and the provider's user id
func (r *oauthProviderRepository) GetByProvider(ctx context.Context, provider, providerUserID string) (*domain.OAuthProvider, error) {
	query := `
		SELECT id, user_id, provider, provider_user_id, email, created_at
		FROM oauth_providers
		WHERE provider = $1 AND provider_user_id = $2
	`

	oauthProvider := &domain.OAuthProvider{}
	var email sql.NullString

	err := r.db.DB.QueryRowContext(ctx, query, provider, providerUserID).Scan(
		&oauthProvider.ID,
		&oauthProvider.UserID,
		&oauthProvider.Provider,
		&oauthProvider.ProviderUserID,
		&email,
		&oauthProvider.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get %s identity: %w", provider, classify(err))
	}

	if email.Valid {
		oauthProvider.Email = &email.String
	}

	return oauthProvider, nil
}
