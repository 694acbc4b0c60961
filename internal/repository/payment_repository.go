package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prperemyshlev/photo-enhancer/internal/domain"
	"github.com/prperemyshlev/photo-enhancer/pkg/database"
)

const paymentColumns = `id, user_id, provider_session_id, provider_payment_id, status, amount,
		currency, photo_count, photo_ids, created_at, completed_at`

// paymentRepository implements PaymentRepository interface
type paymentRepository struct {
	db *database.Postgres
}

// NewPaymentRepository creates a new payment intent repository
func NewPaymentRepository(db *database.Postgres) PaymentRepository {
	return &paymentRepository{db: db}
}

// Create stores a new payment intent
func (r *paymentRepository) Create(ctx context.Context, intent *domain.PaymentIntent) error {
	query := `
		INSERT INTO payment_intents (id, user_id, provider_session_id, provider_payment_id, status,
			amount, currency, photo_count, photo_ids, created_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	if intent.ID == "" {
		intent.ID = uuid.New().String()
	}
	if intent.CreatedAt.IsZero() {
		intent.CreatedAt = time.Now()
	}

	photoIDs, err := json.Marshal(intent.PhotoIDs)
	if err != nil {
		return fmt.Errorf("failed to encode photo ids: %w", err)
	}

	_, err = r.db.DB.ExecContext(ctx, query,
		intent.ID,
		intent.UserID,
		intent.ProviderSessionID,
		intent.ProviderPaymentID,
		intent.Status,
		intent.Amount,
		intent.Currency,
		intent.PhotoCount,
		string(photoIDs),
		intent.CreatedAt,
		intent.CompletedAt,
	)
	if err != nil {
		if _, ok := uniqueConstraint(err); ok {
			return fmt.Errorf("session %s: %w", intent.ProviderSessionID, ErrDuplicateSession)
		}
		return fmt.Errorf("failed to create payment intent: %w", classify(err))
	}

	return nil
}

// GetBySessionID retrieves an intent by the provider's session id
func (r *paymentRepository) GetBySessionID(ctx context.Context, sessionID string) (*domain.PaymentIntent, error) {
	query := `SELECT ` + paymentColumns + ` FROM payment_intents WHERE provider_session_id = $1`

	intent, err := scanPayment(r.db.DB.QueryRowContext(ctx, query, sessionID))
	if err != nil {
		return nil, fmt.Errorf("failed to get payment intent for session %s: %w", sessionID, classify(err))
	}
	return intent, nil
}

// ListCompletedByUser returns the user's completed intents, most recently
// completed first
func (r *paymentRepository) ListCompletedByUser(ctx context.Context, userID string) ([]*domain.PaymentIntent, error) {
	query := `SELECT ` + paymentColumns + `
		FROM payment_intents
		WHERE user_id = $1 AND status = 'completed'
		ORDER BY completed_at DESC`

	rows, err := r.db.DB.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list completed payments: %w", classify(err))
	}
	defer rows.Close()

	var intents []*domain.PaymentIntent
	for rows.Next() {
		intent, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment intent: %w", classify(err))
		}
		intents = append(intents, intent)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate payment intents: %w", classify(err))
	}

	return intents, nil
}

func scanPayment(row rowScanner) (*domain.PaymentIntent, error) {
	intent := &domain.PaymentIntent{}
	var paymentID sql.NullString
	var completedAt sql.NullTime
	var photoIDs []byte

	err := row.Scan(
		&intent.ID,
		&intent.UserID,
		&intent.ProviderSessionID,
		&paymentID,
		&intent.Status,
		&intent.Amount,
		&intent.Currency,
		&intent.PhotoCount,
		&photoIDs,
		&intent.CreatedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	if paymentID.Valid {
		intent.ProviderPaymentID = &paymentID.String
	}
	if completedAt.Valid {
		intent.CompletedAt = &completedAt.Time
	}
	if err := json.Unmarshal(photoIDs, &intent.PhotoIDs); err != nil {
		return nil, fmt.Errorf("failed to decode photo ids: %w", err)
	}

	return intent, nil
}

// MarkCompleted moves a pending intent to completed. It reports false when
// the intent was not pending, so only one caller ever wins.
func (r *paymentRepository) MarkCompleted(ctx context.Context, sessionID string, paymentID *string, at time.Time) (bool, error) {
	query := `
		UPDATE payment_intents
		SET status = 'completed',
			provider_payment_id = COALESCE($2, provider_payment_id),
			completed_at = $3
		WHERE provider_session_id = $1 AND status = 'pending'
	`

	return r.transition(ctx, query, sessionID, paymentID, at)
}

// MarkFailed moves a pending intent to failed
func (r *paymentRepository) MarkFailed(ctx context.Context, sessionID string) (bool, error) {
	query := `
		UPDATE payment_intents
		SET status = 'failed'
		WHERE provider_session_id = $1 AND status = 'pending'
	`

	return r.transition(ctx, query, sessionID)
}

// MarkCancelled moves a pending intent to cancelled
func (r *paymentRepository) MarkCancelled(ctx context.Context, sessionID string) (bool, error) {
	query := `
		UPDATE payment_intents
		SET status = 'cancelled'
		WHERE provider_session_id = $1 AND status = 'pending'
	`

	return r.transition(ctx, query, sessionID)
}

func (r *paymentRepository) transition(ctx context.Context, query string, args ...any) (bool, error) {
	result, err := r.db.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to update payment status: %w", classify(err))
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", classify(err))
	}

	return rowsAffected == 1, nil
}
