package handler

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/prperemyshlev/photo-enhancer/internal/domain"
	"github.com/prperemyshlev/photo-enhancer/internal/dto"
	"github.com/prperemyshlev/photo-enhancer/internal/service"
)

const (
	validToken = "valid-token"
	testUserID = "4f1c2d8e-9b7a-4c3e-8f21-6a5b4c3d2e1f"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// fakeAuth accepts validToken and delegates everything else to its hooks
type fakeAuth struct {
	register   func(*dto.RegisterRequest) (*service.AuthResponseWithRefreshToken, error)
	login      func(*dto.LoginRequest) (*service.AuthResponseWithRefreshToken, error)
	oauthLogin func(domain.OAuthIdentity) (*service.AuthResponseWithRefreshToken, error)
	refresh    func(string) (*service.AuthResponseWithRefreshToken, error)

	loggedOut struct {
		userID, access, refresh string
	}
}

func (f *fakeAuth) Register(_ context.Context, req *dto.RegisterRequest) (*service.AuthResponseWithRefreshToken, error) {
	return f.register(req)
}

func (f *fakeAuth) Login(_ context.Context, req *dto.LoginRequest) (*service.AuthResponseWithRefreshToken, error) {
	return f.login(req)
}

func (f *fakeAuth) OAuthLogin(_ context.Context, identity domain.OAuthIdentity) (*service.AuthResponseWithRefreshToken, error) {
	return f.oauthLogin(identity)
}

func (f *fakeAuth) RefreshToken(_ context.Context, token string) (*service.AuthResponseWithRefreshToken, error) {
	return f.refresh(token)
}

func (f *fakeAuth) Logout(_ context.Context, userID, accessToken, refreshToken string) error {
	f.loggedOut.userID = userID
	f.loggedOut.access = accessToken
	f.loggedOut.refresh = refreshToken
	return nil
}

func (f *fakeAuth) GetUser(_ context.Context, userID string) (*dto.UserResponse, error) {
	if userID != testUserID {
		return nil, service.ErrUserNotFound
	}
	return &dto.UserResponse{ID: userID, Username: "agent", Email: "agent@example.com", MemberSince: "January 2026"}, nil
}

func (f *fakeAuth) ValidateToken(_ context.Context, token string) (*domain.TokenClaims, error) {
	if token != validToken {
		return nil, service.ErrInvalidToken
	}
	return &domain.TokenClaims{UserID: testUserID, Username: "agent", Email: "agent@example.com"}, nil
}

func authResponse(userID string) *service.AuthResponseWithRefreshToken {
	return &service.AuthResponseWithRefreshToken{
		AuthResponse: &dto.AuthResponse{
			Success:     true,
			AccessToken: "new-access",
			TokenType:   "Bearer",
			ExpiresIn:   3600,
			User:        dto.UserInfo{ID: userID, Username: "agent", Email: "agent@example.com"},
			Claimed:     2,
		},
		RefreshToken: "new-refresh",
		ExpiresIn:    int((30 * 24 * time.Hour).Seconds()),
	}
}

type fakeOAuth struct {
	enabled  bool
	identity *domain.OAuthIdentity
	err      error
}

func (f *fakeOAuth) Enabled() bool { return f.enabled }

func (f *fakeOAuth) AuthURL(context.Context) (string, error) {
	if !f.enabled {
		return "", service.ErrOAuthDisabled
	}
	return "https://accounts.example.com/o/oauth2/auth?state=s1", nil
}

func (f *fakeOAuth) Callback(_ context.Context, state, code string) (*domain.OAuthIdentity, error) {
	if f.err != nil {
		return nil, f.err
	}
	if state == "" || code == "" {
		return nil, service.ErrInvalidOAuthState
	}
	return f.identity, nil
}

type fakePhotos struct {
	processed []service.ProcessInput
	processFn func(service.ProcessInput) (*service.ProcessResult, error)
	listArgs  [2]int
	page      *domain.PhotoPage
	getFn     func(userID, id string) (*domain.PhotoJob, error)
	artifact  *service.Artifact
	artErr    error
	deleteErr error
}

func (f *fakePhotos) Process(_ context.Context, in service.ProcessInput) (*service.ProcessResult, error) {
	f.processed = append(f.processed, in)
	return f.processFn(in)
}

func (f *fakePhotos) List(_ context.Context, _ string, page, perPage int) (*domain.PhotoPage, error) {
	f.listArgs = [2]int{page, perPage}
	return f.page, nil
}

func (f *fakePhotos) Get(_ context.Context, userID, id string) (*domain.PhotoJob, error) {
	return f.getFn(userID, id)
}

func (f *fakePhotos) OpenArtifact(context.Context, string, string, string) (*service.Artifact, error) {
	return f.artifact, f.artErr
}

func (f *fakePhotos) Delete(context.Context, string, string) (string, error) {
	if f.deleteErr != nil {
		return "", f.deleteErr
	}
	return "Photo deleted successfully", nil
}

type fakePayments struct {
	checkoutFn    func(userID string, ids []string) (*service.CheckoutResult, error)
	redirectFn    func(sessionID string) (*service.RedirectOutcome, error)
	webhookErr    error
	webhookBody   []byte
	webhookHeader string
	entitlement   *service.Entitlement
	entitleErr    error
	freeAccess    map[string]bool
}

func (f *fakePayments) ClaimForUser(context.Context, string) (int64, error) { return 0, nil }

func (f *fakePayments) InitiateCheckout(_ context.Context, userID string, ids []string) (*service.CheckoutResult, error) {
	return f.checkoutFn(userID, ids)
}

func (f *fakePayments) ConfirmFromRedirect(_ context.Context, sessionID string) (*service.RedirectOutcome, error) {
	return f.redirectFn(sessionID)
}

func (f *fakePayments) ConfirmFromWebhook(_ context.Context, payload []byte, header string) error {
	f.webhookBody = payload
	f.webhookHeader = header
	return f.webhookErr
}

func (f *fakePayments) CheckEntitlement(context.Context, string, []string, string) (*service.Entitlement, error) {
	return f.entitlement, f.entitleErr
}

func (f *fakePayments) SetFreeAccess(_ context.Context, userID string, enabled bool) error {
	if userID != testUserID {
		return service.ErrUserNotFound
	}
	if f.freeAccess == nil {
		f.freeAccess = map[string]bool{}
	}
	f.freeAccess[userID] = enabled
	return nil
}

// fakeLimiter allows the first n requests per key
type fakeLimiter struct {
	n      int
	counts map[string]int
	err    error
}

func (f *fakeLimiter) Allow(_ context.Context, key string, _ int, _ time.Duration) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if f.counts == nil {
		f.counts = map[string]int{}
	}
	f.counts[key]++
	if f.counts[key] > f.n {
		return false, service.ErrRateLimited
	}
	return true, nil
}

func testLogger() *zap.Logger {
	return zap.NewNop()
}
