package service

import (
	"context"

	"github.com/prperemyshlev/photo-enhancer/internal/domain"
	"github.com/prperemyshlev/photo-enhancer/internal/dto"
)

// AuthService defines methods for authentication operations
type AuthService interface {
	Register(ctx context.Context, req *dto.RegisterRequest) (*AuthResponseWithRefreshToken, error)
	Login(ctx context.Context, req *dto.LoginRequest) (*AuthResponseWithRefreshToken, error)
	OAuthLogin(ctx context.Context, identity domain.OAuthIdentity) (*AuthResponseWithRefreshToken, error)
	RefreshToken(ctx context.Context, refreshToken string) (*AuthResponseWithRefreshToken, error)
	Logout(ctx context.Context, userID, accessToken, refreshToken string) error
	GetUser(ctx context.Context, userID string) (*dto.UserResponse, error)
	ValidateToken(ctx context.Context, token string) (*domain.TokenClaims, error)
}

// OAuthService drives the Google authorization code flow
type OAuthService interface {
	Enabled() bool
	AuthURL(ctx context.Context) (string, error)
	Callback(ctx context.Context, state, code string) (*domain.OAuthIdentity, error)
}

// PhotoService processes uploads and serves a user's photo history
type PhotoService interface {
	Process(ctx context.Context, in ProcessInput) (*ProcessResult, error)
	List(ctx context.Context, userID string, page, perPage int) (*domain.PhotoPage, error)
	Get(ctx context.Context, userID, id string) (*domain.PhotoJob, error)
	OpenArtifact(ctx context.Context, userID, id, which string) (*Artifact, error)
	Delete(ctx context.Context, userID, id string) (string, error)
}

// Claimer links recent anonymous uploads to a user who just signed in
type Claimer interface {
	ClaimForUser(ctx context.Context, userID string) (int64, error)
}

// PaymentService sells downloads and answers entitlement questions
type PaymentService interface {
	Claimer
	InitiateCheckout(ctx context.Context, userID string, photoIDs []string) (*CheckoutResult, error)
	ConfirmFromRedirect(ctx context.Context, sessionID string) (*RedirectOutcome, error)
	ConfirmFromWebhook(ctx context.Context, payload []byte, signatureHeader string) error
	CheckEntitlement(ctx context.Context, userID string, photoIDs []string, sessionID string) (*Entitlement, error)
	SetFreeAccess(ctx context.Context, userID string, enabled bool) error
}
