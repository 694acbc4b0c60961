package config

import (
	"context"
	"fmt"

	"github.com/sethvargo/go-envconfig"
)

// Storage drivers supported by the artifact store
const (
	StorageDriverSupabase = "supabase"
	StorageDriverS3       = "s3"
)

type Config struct {
	Server   ServerConfig   `env:",prefix=SERVER_"`
	Postgres PostgresConfig `env:",prefix=POSTGRES_"`
	Redis    RedisConfig    `env:",prefix=REDIS_"`
	JWT      JWTConfig      `env:",prefix=JWT_"`
	Security SecurityConfig `env:",prefix="`
	CORS     CORSConfig     `env:",prefix=CORS_"`
	Payment  PaymentConfig  `env:",prefix=PAYMENT_"`
	Photo    PhotoConfig    `env:",prefix=PHOTO_"`
	Enhancer EnhancerConfig `env:",prefix=ENHANCER_"`
	Storage  StorageConfig  `env:",prefix=STORAGE_"`
	OAuth    OAuthConfig    `env:",prefix=OAUTH_"`
	Retry    RetryConfig    `env:",prefix=RETRY_"`
	Env      string         `env:"ENV,default=development"`
}

type ServerConfig struct {
	Port         string   `env:"PORT,default=8080"`
	Host         string   `env:"HOST,default=0.0.0.0"`
	ReadTimeout  Duration `env:"READ_TIMEOUT,default=30s"`
	WriteTimeout Duration `env:"WRITE_TIMEOUT,default=180s"`
}

type PostgresConfig struct {
	Host     string `env:"HOST,default=localhost"`
	Port     string `env:"PORT,default=5432"`
	User     string `env:"USER,default=photo_enhancer"`
	Password string `env:"PASSWORD,default=photo_enhancer_password"`
	DBName   string `env:"DB,default=photo_enhancer_db"`
	SSLMode  string `env:"SSLMODE,default=disable"`
}

type RedisConfig struct {
	Host     string `env:"HOST,default=localhost"`
	Port     string `env:"PORT,default=6379"`
	Password string `env:"PASSWORD,default="`
	DB       int    `env:"DB,default=0"`
}

type JWTConfig struct {
	Secret             string   `env:"SECRET,required"`
	AccessTokenExpiry  Duration `env:"ACCESS_TOKEN_EXPIRY,default=1h"`
	RefreshTokenExpiry Duration `env:"REFRESH_TOKEN_EXPIRY,default=30d"`
}

type SecurityConfig struct {
	BCryptCost        int      `env:"BCRYPT_COST,default=12"`
	RateLimitRequests int      `env:"RATE_LIMIT_REQUESTS,default=10"`
	RateLimitWindow   Duration `env:"RATE_LIMIT_WINDOW,default=1m"`
	AdminAPIKey       string   `env:"ADMIN_API_KEY,default="`
	SecureCookies     bool     `env:"SECURE_COOKIES,default=true"`
}

type CORSConfig struct {
	AllowedOrigins []string `env:"ALLOWED_ORIGINS,default=http://localhost:3000"`
	AllowedMethods []string `env:"ALLOWED_METHODS,default=GET,POST,PUT,DELETE,OPTIONS"`
	AllowedHeaders []string `env:"ALLOWED_HEADERS,default=Content-Type,Authorization"`
}

// PaymentConfig holds checkout provider settings. Amounts are in minor currency units.
type PaymentConfig struct {
	SecretKey        string   `env:"SECRET_KEY,default="`
	PublishableKey   string   `env:"PUBLISHABLE_KEY,default="`
	WebhookSecret    string   `env:"WEBHOOK_SECRET,default="`
	APIURL           string   `env:"API_URL,default=https://api.stripe.com"`
	PricePerPhoto    int64    `env:"PRICE_PER_PHOTO,default=55"`
	Currency         string   `env:"CURRENCY,default=usd"`
	SuccessURL       string   `env:"SUCCESS_URL,default=http://localhost:8080/payment/success"`
	CancelURL        string   `env:"CANCEL_URL,default=http://localhost:8080/payment/cancel"`
	Timeout          Duration `env:"TIMEOUT,default=30s"`
	WebhookTolerance Duration `env:"WEBHOOK_TOLERANCE,default=5m"`
}

type PhotoConfig struct {
	ClaimGraceWindow  Duration `env:"CLAIM_GRACE_WINDOW,default=1h"`
	MaxUploadBytes    int64    `env:"MAX_UPLOAD_BYTES,default=33554432"`
	StoreInlineBackup bool     `env:"STORE_INLINE_BACKUP,default=true"`
	DefaultPageSize   int      `env:"DEFAULT_PAGE_SIZE,default=20"`
	MaxPageSize       int      `env:"MAX_PAGE_SIZE,default=100"`
}

type EnhancerConfig struct {
	APIKey  string   `env:"API_KEY,default="`
	Model   string   `env:"MODEL,default=gemini-3-pro-image-preview"`
	Timeout Duration `env:"TIMEOUT,default=120s"`
}

type StorageConfig struct {
	Driver      string `env:"DRIVER,default=s3"`
	Bucket      string `env:"BUCKET,default=photos"`
	SupabaseURL string `env:"SUPABASE_URL,default="`
	SupabaseKey string `env:"SUPABASE_KEY,default="`
	S3Region    string `env:"S3_REGION,default=us-east-1"`
	S3Endpoint  string `env:"S3_ENDPOINT,default="`
}

type OAuthConfig struct {
	GoogleClientID     string   `env:"GOOGLE_CLIENT_ID,default="`
	GoogleClientSecret string   `env:"GOOGLE_CLIENT_SECRET,default="`
	GoogleRedirectURL  string   `env:"GOOGLE_REDIRECT_URL,default=http://localhost:8080/auth/google/callback"`
	StateTTL           Duration `env:"STATE_TTL,default=10m"`
}

type RetryConfig struct {
	MaxRetries int      `env:"MAX_RETRIES,default=3"`
	BaseDelay  Duration `env:"BASE_DELAY,default=1s"`
	MaxDelay   Duration `env:"MAX_DELAY,default=10s"`
}

// DSN returns PostgreSQL connection string
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.DBName, p.SSLMode)
}

// URL returns the connection string in URL form, as golang-migrate expects it
func (p PostgresConfig) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.DBName, p.SSLMode)
}

// Address returns Redis connection address
func (r RedisConfig) Address() string {
	return fmt.Sprintf("%s:%s", r.Host, r.Port)
}

// GoogleEnabled reports whether Google sign-in has credentials
func (o OAuthConfig) GoogleEnabled() bool {
	return o.GoogleClientID != "" && o.GoogleClientSecret != ""
}

// Load loads configuration from environment variables
func Load(ctx context.Context) (*Config, error) {
	var config Config

	if err := envconfig.Process(ctx, &config); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate checks values envconfig cannot express as tags
func (c *Config) Validate() error {
	if len(c.JWT.Secret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters long")
	}

	if c.Payment.PricePerPhoto <= 0 {
		return fmt.Errorf("PAYMENT_PRICE_PER_PHOTO must be positive, got %d", c.Payment.PricePerPhoto)
	}

	if len(c.Payment.Currency) != 3 {
		return fmt.Errorf("PAYMENT_CURRENCY must be a 3-letter code, got %q", c.Payment.Currency)
	}

	switch c.Storage.Driver {
	case StorageDriverSupabase:
		if c.Storage.SupabaseURL == "" || c.Storage.SupabaseKey == "" {
			return fmt.Errorf("STORAGE_SUPABASE_URL and STORAGE_SUPABASE_KEY are required for the supabase driver")
		}
	case StorageDriverS3:
	default:
		return fmt.Errorf("unknown STORAGE_DRIVER %q", c.Storage.Driver)
	}

	if c.Photo.ClaimGraceWindow.Duration <= 0 {
		return fmt.Errorf("PHOTO_CLAIM_GRACE_WINDOW must be positive")
	}

	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("RETRY_MAX_RETRIES must not be negative")
	}

	return nil
}
