package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/prperemyshlev/photo-enhancer/internal/domain"
	"github.com/prperemyshlev/photo-enhancer/pkg/database"
)

const photoColumns = `id, user_id, original_filename, original_path, original_size,
		enhanced_filename, enhanced_path, enhanced_size, conversion_kind,
		change_intensity, detail_level, settings, ai_analysis, created_at`

// photoRepository implements PhotoRepository interface
type photoRepository struct {
	db *database.Postgres
}

// NewPhotoRepository creates a new photo job repository
func NewPhotoRepository(db *database.Postgres) PhotoRepository {
	return &photoRepository{db: db}
}

// Create inserts the job and bumps the owner's processed counter in one transaction
func (r *photoRepository) Create(ctx context.Context, job *domain.PhotoJob) error {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}

	settings, err := json.Marshal(job.Settings)
	if err != nil {
		return fmt.Errorf("failed to encode photo settings: %w", err)
	}

	insert := `
		INSERT INTO photo_jobs (id, user_id, original_filename, original_path, original_size,
			enhanced_filename, enhanced_path, enhanced_size, original_data, enhanced_data,
			conversion_kind, change_intensity, detail_level, settings, ai_analysis, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`

	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, insert,
			job.ID,
			job.UserID,
			job.OriginalFilename,
			job.OriginalPath,
			job.OriginalSize,
			job.EnhancedFilename,
			job.EnhancedPath,
			job.EnhancedSize,
			nullBytes(job.OriginalData),
			nullBytes(job.EnhancedData),
			job.Kind,
			job.Intensity,
			job.Detail,
			string(settings),
			job.AIAnalysis,
			job.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to create photo job: %w", classify(err))
		}

		if job.UserID == nil {
			return nil
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE users SET images_processed = images_processed + 1 WHERE id = $1`, *job.UserID)
		if err != nil {
			return fmt.Errorf("failed to increment processed count: %w", classify(err))
		}

		return nil
	})
}

// GetByID retrieves a job without its inline image data
func (r *photoRepository) GetByID(ctx context.Context, id string) (*domain.PhotoJob, error) {
	query := `SELECT ` + photoColumns + ` FROM photo_jobs WHERE id = $1`

	job, err := scanPhoto(r.db.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("failed to get photo job %s: %w", id, classify(err))
	}
	return job, nil
}

// GetInlineData returns the backup copy of one artifact
func (r *photoRepository) GetInlineData(ctx context.Context, id, artifact string) ([]byte, error) {
	column := "original_data"
	if artifact == domain.ArtifactEnhanced {
		column = "enhanced_data"
	}

	var data []byte
	err := r.db.DB.QueryRowContext(ctx, `SELECT `+column+` FROM photo_jobs WHERE id = $1`, id).Scan(&data)
	if err != nil {
		return nil, fmt.Errorf("failed to get %s data for %s: %w", artifact, id, classify(err))
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("no inline %s data for %s: %w", artifact, id, ErrNotFound)
	}
	return data, nil
}

// ListByUser returns a page of the user's jobs, newest first, and the total count
func (r *photoRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*domain.PhotoJob, int, error) {
	var total int
	err := r.db.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM photo_jobs WHERE user_id = $1`, userID,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count photo jobs: %w", classify(err))
	}

	query := `SELECT ` + photoColumns + `
		FROM photo_jobs
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.db.DB.QueryContext(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list photo jobs: %w", classify(err))
	}
	defer rows.Close()

	jobs := make([]*domain.PhotoJob, 0, limit)
	for rows.Next() {
		job, err := scanPhoto(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan photo job: %w", classify(err))
		}
		jobs = append(jobs, job)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate photo jobs: %w", classify(err))
	}

	return jobs, total, nil
}

// nullBytes stores empty backups as NULL rather than an empty bytea
func nullBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}

func scanPhoto(row rowScanner) (*domain.PhotoJob, error) {
	job := &domain.PhotoJob{}
	var userID sql.NullString
	var settings []byte

	err := row.Scan(
		&job.ID,
		&userID,
		&job.OriginalFilename,
		&job.OriginalPath,
		&job.OriginalSize,
		&job.EnhancedFilename,
		&job.EnhancedPath,
		&job.EnhancedSize,
		&job.Kind,
		&job.Intensity,
		&job.Detail,
		&settings,
		&job.AIAnalysis,
		&job.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if userID.Valid {
		job.UserID = &userID.String
	}
	if len(settings) > 0 {
		if err := json.Unmarshal(settings, &job.Settings); err != nil {
			return nil, fmt.Errorf("failed to decode photo settings: %w", err)
		}
	}

	return job, nil
}

// Delete removes a job owned by userID and decrements the owner's counter,
// never below zero
func (r *photoRepository) Delete(ctx context.Context, id, userID string) error {
	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`DELETE FROM photo_jobs WHERE id = $1 AND user_id = $2`, id, userID)
		if err != nil {
			return fmt.Errorf("failed to delete photo job: %w", classify(err))
		}

		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", classify(err))
		}
		if rowsAffected == 0 {
			return fmt.Errorf("photo job %s not found: %w", id, ErrNotFound)
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE users SET images_processed = GREATEST(images_processed - 1, 0) WHERE id = $1`, userID)
		if err != nil {
			return fmt.Errorf("failed to decrement processed count: %w", classify(err))
		}

		return nil
	})
}

// ClaimRecent assigns userID to the listed jobs that have no owner and were
// created at or after cutoff. It returns the number of jobs claimed.
func (r *photoRepository) ClaimRecent(ctx context.Context, userID string, ids []string, cutoff time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	query := `
		UPDATE photo_jobs
		SET user_id = $1
		WHERE id = ANY($2::uuid[]) AND user_id IS NULL AND created_at >= $3
	`

	return r.claim(ctx, query, userID, pq.Array(ids), cutoff)
}

// ClaimAllRecent assigns userID to every ownerless job created at or after cutoff
func (r *photoRepository) ClaimAllRecent(ctx context.Context, userID string, cutoff time.Time) (int64, error) {
	query := `
		UPDATE photo_jobs
		SET user_id = $1
		WHERE user_id IS NULL AND created_at >= $2
	`

	return r.claim(ctx, query, userID, cutoff)
}

func (r *photoRepository) claim(ctx context.Context, query string, args ...any) (int64, error) {
	result, err := r.db.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to claim photo jobs: %w", classify(err))
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", classify(err))
	}

	return n, nil
}

// CountOwned counts how many of ids belong to userID
func (r *photoRepository) CountOwned(ctx context.Context, userID string, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	var count int
	err := r.db.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM photo_jobs WHERE id = ANY($1::uuid[]) AND user_id = $2`,
		pq.Array(ids), userID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count owned photo jobs: %w", classify(err))
	}

	return count, nil
}
