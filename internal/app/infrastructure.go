package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/zap"

	"github.com/prperemyshlev/photo-enhancer/internal/checkout"
	"github.com/prperemyshlev/photo-enhancer/internal/config"
	"github.com/prperemyshlev/photo-enhancer/internal/enhancer"
	"github.com/prperemyshlev/photo-enhancer/internal/storage"
	"github.com/prperemyshlev/photo-enhancer/pkg/database"
	"github.com/prperemyshlev/photo-enhancer/pkg/observability"
)

// ServiceName labels telemetry and the otelgin middleware
const ServiceName = "photo-enhancer"

type Infrastructure interface {
	Postgres() *database.Postgres
	Redis() *database.Redis
	Logger() *zap.Logger
	MetricsHandler() http.Handler
	MeterProvider() *metric.MeterProvider

	ArtifactStore() storage.ArtifactStore
	Enhancer() enhancer.Enhancer
	Checkout() checkout.Provider

	Shutdown(ctx context.Context) error
}

type infrastructure struct {
	postgres       *database.Postgres
	redis          *database.Redis
	logger         *zap.Logger
	metricsHandler http.Handler
	meterProvider  *metric.MeterProvider
	store          storage.ArtifactStore
	enhancer       enhancer.Enhancer
	checkout       checkout.Provider
}

var _ Infrastructure = &infrastructure{}

// NewInfrastructure connects to every backing service and applies pending
// migrations. Anything opened before a failure is closed again.
func NewInfrastructure(ctx context.Context, cfg config.Config) (_ *infrastructure, err error) {
	i := &infrastructure{}

	logger, err := observability.InitLogger(cfg.Env)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	i.logger = logger

	defer func() {
		if err != nil {
			i.closeConnections()
		}
	}()

	// The checkout client is built first so a missing key fails before any connection is opened.
	client, err := checkout.NewClient(cfg.Payment, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize payment provider: %w", err)
	}
	i.checkout = client

	postgres, err := database.NewPostgres(ctx, cfg.Postgres.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	i.postgres = postgres

	version, err := postgres.Migrate()
	if err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	logger.Info("Database schema is up to date", zap.Uint("version", version))

	redis, err := database.NewRedis(ctx, cfg.Redis.Address(), cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	i.redis = redis

	store, err := storage.New(ctx, cfg.Storage, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize artifact store: %w", err)
	}
	i.store = store

	i.enhancer, err = newEnhancer(ctx, cfg.Enhancer, logger)
	if err != nil {
		return nil, err
	}

	meterProvider, metricsHandler, err := observability.InitTelemetry(ServiceName)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	i.meterProvider = meterProvider
	i.metricsHandler = metricsHandler

	return i, nil
}

// newEnhancer falls back to enhancer.Unavailable without an API key, so
// uploads still succeed with the original image
func newEnhancer(ctx context.Context, cfg config.EnhancerConfig, logger *zap.Logger) (enhancer.Enhancer, error) {
	if cfg.APIKey == "" {
		logger.Warn("ENHANCER_API_KEY is not set, photos will be returned unenhanced")
		return enhancer.Unavailable{}, nil
	}

	gemini, err := enhancer.NewGeminiEnhancer(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize enhancer: %w", err)
	}
	return gemini, nil
}

func (i *infrastructure) closeConnections() {
	if i.postgres != nil {
		_ = i.postgres.Close()
	}
	if i.redis != nil {
		_ = i.redis.Close()
	}
}

func (i *infrastructure) Postgres() *database.Postgres {
	return i.postgres
}

func (i *infrastructure) Redis() *database.Redis {
	return i.redis
}

func (i *infrastructure) Logger() *zap.Logger {
	return i.logger
}

func (i *infrastructure) MetricsHandler() http.Handler {
	return i.metricsHandler
}

func (i *infrastructure) MeterProvider() *metric.MeterProvider {
	return i.meterProvider
}

func (i *infrastructure) ArtifactStore() storage.ArtifactStore {
	return i.store
}

func (i *infrastructure) Enhancer() enhancer.Enhancer {
	return i.enhancer
}

func (i *infrastructure) Checkout() checkout.Provider {
	return i.checkout
}

func (i *infrastructure) Shutdown(ctx context.Context) error {
	errs := make(chan error, 3)

	go func() { errs <- i.postgres.Close() }()
	go func() { errs <- i.redis.Close() }()
	go func() { errs <- observability.Shutdown(ctx, i.meterProvider, i.logger) }()

	return errors.Join(<-errs, <-errs, <-errs)
}
