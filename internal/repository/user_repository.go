package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prperemyshlev/photo-enhancer/internal/domain"
	"github.com/prperemyshlev/photo-enhancer/pkg/database"
)

const userColumns = `id, username, email, password_hash, has_free_access, is_admin, images_processed,
		created_at, updated_at, last_login_at, is_active`

// userRepository implements UserRepository interface
type userRepository struct {
	db *database.Postgres
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *database.Postgres) UserRepository {
	return &userRepository{db: db}
}

// Create creates a new user in the database
func (r *userRepository) Create(ctx context.Context, user *domain.User) error {
	return createUser(ctx, r.db.DB, user)
}

func createUser(ctx context.Context, q querier, user *domain.User) error {
	query := `
		INSERT INTO users (id, username, email, password_hash, has_free_access, is_admin,
			images_processed, created_at, updated_at, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	if user.ID == "" {
		user.ID = uuid.New().String()
	}

	now := time.Now()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	if user.UpdatedAt.IsZero() {
		user.UpdatedAt = now
	}

	_, err := q.ExecContext(ctx, query,
		user.ID,
		user.Username,
		user.Email,
		user.PasswordHash,
		user.HasFreeAccess,
		user.IsAdmin,
		user.ImagesProcessed,
		user.CreatedAt,
		user.UpdatedAt,
		user.IsActive,
	)

	if err != nil {
		if constraint, ok := uniqueConstraint(err); ok {
			if strings.Contains(constraint, "username") {
				return fmt.Errorf("username %s is taken: %w", user.Username, ErrDuplicateUsername)
			}
			return fmt.Errorf("user with email %s already exists: %w", user.Email, ErrDuplicateEmail)
		}
		return fmt.Errorf("failed to create user: %w", classify(err))
	}

	return nil
}

// GetByEmail retrieves a user by email
func (r *userRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	user, err := r.getOne(ctx, `WHERE email = $1`, email)
	if err != nil {
		return nil, fmt.Errorf("failed to get user by email %s: %w", email, err)
	}
	return user, nil
}

// GetByUsername retrieves a user by username
func (r *userRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	user, err := r.getOne(ctx, `WHERE username = $1`, username)
	if err != nil {
		return nil, fmt.Errorf("failed to get user by username %s: %w", username, err)
	}
	return user, nil
}

// GetByID retrieves a user by ID
func (r *userRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	user, err := r.getOne(ctx, `WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get user by id %s: %w", id, err)
	}
	return user, nil
}

func (r *userRepository) getOne(ctx context.Context, where string, arg any) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users ` + where

	user, err := scanUser(r.db.DB.QueryRowContext(ctx, query, arg))
	if err != nil {
		return nil, classify(err)
	}
	return user, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*domain.User, error) {
	user := &domain.User{}
	var passwordHash sql.NullString
	var lastLoginAt sql.NullTime

	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&passwordHash,
		&user.HasFreeAccess,
		&user.IsAdmin,
		&user.ImagesProcessed,
		&user.CreatedAt,
		&user.UpdatedAt,
		&lastLoginAt,
		&user.IsActive,
	)
	if err != nil {
		return nil, err
	}

	if passwordHash.Valid {
		user.PasswordHash = &passwordHash.String
	}
	if lastLoginAt.Valid {
		user.LastLoginAt = &lastLoginAt.Time
	}

	return user, nil
}

// UsernameExists reports whether username is already taken
func (r *userRepository) UsernameExists(ctx context.Context, username string) (bool, error) {
	var exists bool
	err := r.db.DB.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE username = $1)`, username,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check username: %w", classify(err))
	}
	return exists, nil
}

// UpdateLastLogin updates the last login timestamp for a user
func (r *userRepository) UpdateLastLogin(ctx context.Context, userID string) error {
	query := `
		UPDATE users
		SET last_login_at = $1
		WHERE id = $2
	`

	return r.execOne(ctx, "update last login", userID, query, time.Now(), userID)
}

// SetFreeAccess grants or revokes free downloads for a user
func (r *userRepository) SetFreeAccess(ctx context.Context, userID string, enabled bool) error {
	query := `
		UPDATE users
		SET has_free_access = $1, updated_at = $2
		WHERE id = $3
	`

	return r.execOne(ctx, "set free access", userID, query, enabled, time.Now(), userID)
}

func (r *userRepository) execOne(ctx context.Context, op, userID, query string, args ...any) error {
	result, err := r.db.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, classify(err))
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", classify(err))
	}

	if rowsAffected == 0 {
		return fmt.Errorf("user with id %s not found: %w", userID, ErrNotFound)
	}

	return nil
}

// ListWithSummary returns every user with their completed payment totals,
// newest accounts first
func (r *userRepository) ListWithSummary(ctx context.Context) ([]*domain.UserSummary, error) {
	query := `
		SELECT u.id, u.username, u.email, u.password_hash, u.has_free_access, u.is_admin,
			u.images_processed, u.created_at, u.updated_at, u.last_login_at, u.is_active,
			COUNT(p.id), COALESCE(SUM(p.amount), 0)
		FROM users u
		LEFT JOIN payment_intents p ON p.user_id = u.id AND p.status = 'completed'
		GROUP BY u.id
		ORDER BY u.created_at DESC
	`

	rows, err := r.db.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", classify(err))
	}
	defer rows.Close()

	var summaries []*domain.UserSummary
	for rows.Next() {
		s := &domain.UserSummary{}
		var passwordHash sql.NullString
		var lastLoginAt sql.NullTime

		err := rows.Scan(
			&s.ID,
			&s.Username,
			&s.Email,
			&passwordHash,
			&s.HasFreeAccess,
			&s.IsAdmin,
			&s.ImagesProcessed,
			&s.CreatedAt,
			&s.UpdatedAt,
			&lastLoginAt,
			&s.IsActive,
			&s.CompletedPayments,
			&s.TotalPaid,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", classify(err))
		}

		if passwordHash.Valid {
			s.PasswordHash = &passwordHash.String
		}
		if lastLoginAt.Valid {
			s.LastLoginAt = &lastLoginAt.Time
		}

		summaries = append(summaries, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate users: %w", classify(err))
	}

	return summaries, nil
}
