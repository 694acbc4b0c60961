package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/prperemyshlev/photo-enhancer/internal/config"
	"github.com/prperemyshlev/photo-enhancer/internal/domain"
)

const googleUserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"

type googleUserInfo struct {
	Sub           string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
}

// oauthService implements the Google authorization code flow
type oauthService struct {
	oauth       *oauth2.Config
	enabled     bool
	states      StateStore
	stateTTL    time.Duration
	userInfoURL string
	httpClient  *http.Client
	logger      *zap.Logger
}

// NewOAuthService creates the Google sign-in flow. Without client
// credentials every call returns ErrOAuthDisabled.
func NewOAuthService(cfg config.OAuthConfig, states StateStore, logger *zap.Logger) OAuthService {
	ttl := cfg.StateTTL.Duration
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}

	return &oauthService{
		oauth: &oauth2.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.GoogleRedirectURL,
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint:     google.Endpoint,
		},
		enabled:     cfg.GoogleEnabled(),
		states:      states,
		stateTTL:    ttl,
		userInfoURL: googleUserInfoURL,
		httpClient:  &http.Client{Timeout: 15 * time.Second},
		logger:      logger,
	}
}

// Enabled reports whether Google credentials are configured
func (s *oauthService) Enabled() bool {
	return s.enabled
}

// AuthURL stores a fresh state and returns the consent page URL
func (s *oauthService) AuthURL(ctx context.Context) (string, error) {
	if !s.enabled {
		return "", ErrOAuthDisabled
	}

	state := uuid.NewString()
	if err := s.states.Save(ctx, state, s.stateTTL); err != nil {
		return "", err
	}

	return s.oauth.AuthCodeURL(state, oauth2.AccessTypeOnline), nil
}

// Callback consumes the state, exchanges the code and returns the verified profile
func (s *oauthService) Callback(ctx context.Context, state, code string) (*domain.OAuthIdentity, error) {
	if !s.enabled {
		return nil, ErrOAuthDisabled
	}
	if state == "" || code == "" {
		return nil, ErrInvalidOAuthState
	}

	ok, err := s.states.Consume(ctx, state)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidOAuthState
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
	token, err := s.oauth.Exchange(ctx, code)
	if err != nil {
		s.logger.Warn("OAuth code exchange failed", zap.Error(err))
		return nil, fmt.Errorf("%w: code exchange failed", ErrUnauthorized)
	}

	info, err := s.fetchUserInfo(ctx, token)
	if err != nil {
		return nil, err
	}
	if info.Sub == "" || info.Email == "" {
		return nil, fmt.Errorf("%w: failed to get user info from Google", ErrUnauthorized)
	}
	if !info.EmailVerified {
		return nil, fmt.Errorf("%w: Google email is not verified", ErrUnauthorized)
	}

	return &domain.OAuthIdentity{
		Provider: domain.ProviderGoogle,
		Subject:  info.Sub,
		Email:    info.Email,
		Name:     info.Name,
	}, nil
}

func (s *oauthService) fetchUserInfo(ctx context.Context, token *oauth2.Token) (*googleUserInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.userInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build userinfo request: %w", err)
	}

	resp, err := s.oauth.Client(ctx, token).Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: userinfo request failed: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read userinfo: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		s.logger.Warn("Userinfo request rejected", zap.Int("status", resp.StatusCode))
		return nil, fmt.Errorf("%w: userinfo returned %d", ErrUnauthorized, resp.StatusCode)
	}

	var info googleUserInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("failed to decode userinfo: %w", err)
	}
	return &info, nil
}
