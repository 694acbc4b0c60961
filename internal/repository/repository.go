package repository

import (
	"context"
	"database/sql"

	"github.com/prperemyshlev/photo-enhancer/pkg/database"
)

// querier is satisfied by both *sql.DB and *sql.Tx
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Repositories holds all repository interfaces
type Repositories struct {
	User          UserRepository
	Token         TokenRepository
	OAuthProvider OAuthProviderRepository
	Photo         PhotoRepository
	Payment       PaymentRepository
}

// NewRepositories creates all repositories
func NewRepositories(db *database.Postgres) *Repositories {
	return &Repositories{
		User:          NewUserRepository(db),
		Token:         NewTokenRepository(db),
		OAuthProvider: NewOAuthProviderRepository(db),
		Photo:         NewPhotoRepository(db),
		Payment:       NewPaymentRepository(db),
	}
}
