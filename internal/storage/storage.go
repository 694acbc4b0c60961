// Package storage keeps uploaded and enhanced photos in an object store.
package storage

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/prperemyshlev/photo-enhancer/internal/config"
)

// ErrNotFound is returned when no object exists under a key
var ErrNotFound = errors.New("artifact not found")

// ArtifactStore stores immutable objects by key
type ArtifactStore interface {
	Put(ctx context.Context, key, contentType string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, keys ...string) error
}

// New builds the store selected by cfg.Driver
func New(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (ArtifactStore, error) {
	switch cfg.Driver {
	case config.StorageDriverSupabase:
		logger.Info("Using supabase artifact store", zap.String("bucket", cfg.Bucket))
		return NewSupabaseStore(cfg.SupabaseURL, cfg.SupabaseKey, cfg.Bucket), nil
	case config.StorageDriverS3:
		logger.Info("Using s3 artifact store",
			zap.String("bucket", cfg.Bucket),
			zap.String("region", cfg.S3Region),
			zap.String("endpoint", cfg.S3Endpoint),
		)
		return NewS3Store(ctx, cfg.Bucket, cfg.S3Region, cfg.S3Endpoint)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
