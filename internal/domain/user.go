package domain

import "time"

// User represents an account. PasswordHash is nil for accounts that only sign
// in through an OAuth provider.
type User struct {
	ID              string     `json:"id" db:"id"`
	Username        string     `json:"username" db:"username"`
	Email           string     `json:"email" db:"email"`
	PasswordHash    *string    `json:"-" db:"password_hash"`
	HasFreeAccess   bool       `json:"has_free_access" db:"has_free_access"`
	IsAdmin         bool       `json:"is_admin" db:"is_admin"`
	ImagesProcessed int        `json:"images_processed" db:"images_processed"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at" db:"updated_at"`
	LastLoginAt     *time.Time `json:"last_login_at" db:"last_login_at"`
	IsActive        bool       `json:"is_active" db:"is_active"`
}

// HasPassword reports whether the account can sign in with a password
func (u *User) HasPassword() bool {
	return u.PasswordHash != nil && *u.PasswordHash != ""
}

// UserSummary is a user together with the payment totals shown to operators
type UserSummary struct {
	User
	CompletedPayments int   `json:"completed_payments"`
	TotalPaid         int64 `json:"total_paid"`
}

// RefreshToken represents a refresh token in the system
type RefreshToken struct {
	ID         string    `json:"id" db:"id"`
	UserID     string    `json:"user_id" db:"user_id"`
	TokenHash  string    `json:"-" db:"token_hash"`
	ExpiresAt  time.Time `json:"expires_at" db:"expires_at"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	DeviceInfo *string   `json:"device_info" db:"device_info"`
	IPAddress  *string   `json:"ip_address" db:"ip_address"`
}

// OAuth provider names
const (
	ProviderGoogle = "google"
)

// OAuthProvider links an external identity to a user
type OAuthProvider struct {
	ID             string    `json:"id" db:"id"`
	UserID         string    `json:"user_id" db:"user_id"`
	Provider       string    `json:"provider" db:"provider"`
	ProviderUserID string    `json:"provider_user_id" db:"provider_user_id"`
	Email          *string   `json:"email" db:"email"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// OAuthIdentity is the verified profile returned by an OAuth provider
type OAuthIdentity struct {
	Provider string
	Subject  string
	Email    string
	Name     string
}
