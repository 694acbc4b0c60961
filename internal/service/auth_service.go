package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/prperemyshlev/photo-enhancer/internal/domain"
	"github.com/prperemyshlev/photo-enhancer/internal/dto"
	"github.com/prperemyshlev/photo-enhancer/internal/repository"
	"github.com/prperemyshlev/photo-enhancer/internal/utils"
)

const maxUsernameAttempts = 5

// authService implements AuthService interface
type authService struct {
	userRepo           repository.UserRepository
	tokenRepo          repository.TokenRepository
	oauthRepo          repository.OAuthProviderRepository
	jwtManager         *utils.JWTManager
	blacklist          TokenBlacklist
	claimer            Claimer
	bcryptCost         int
	accessTokenExpiry  time.Duration
	refreshTokenExpiry time.Duration
	logger             *zap.Logger
}

// AuthDeps groups the collaborators of the auth service
type AuthDeps struct {
	Repos      *repository.Repositories
	JWTManager *utils.JWTManager
	Blacklist  TokenBlacklist
	Claimer    Claimer
	Logger     *zap.Logger
}

// NewAuthService creates a new auth service
func NewAuthService(deps AuthDeps, bcryptCost int, accessTokenExpiry, refreshTokenExpiry time.Duration) AuthService {
	return &authService{
		userRepo:           deps.Repos.User,
		tokenRepo:          deps.Repos.Token,
		oauthRepo:          deps.Repos.OAuthProvider,
		jwtManager:         deps.JWTManager,
		blacklist:          deps.Blacklist,
		claimer:            deps.Claimer,
		bcryptCost:         bcryptCost,
		accessTokenExpiry:  accessTokenExpiry,
		refreshTokenExpiry: refreshTokenExpiry,
		logger:             deps.Logger,
	}
}

// Register registers a new user
func (s *authService) Register(ctx context.Context, req *dto.RegisterRequest) (*AuthResponseWithRefreshToken, error) {
	username := strings.TrimSpace(req.Username)
	email := utils.SanitizeEmail(req.Email)

	if !utils.ValidateUsername(username) {
		return nil, ErrInvalidUsername
	}
	if !utils.ValidateEmail(email) {
		return nil, ErrInvalidEmail
	}
	if !utils.ValidatePassword(req.Password) {
		return nil, ErrInvalidPassword
	}
	if req.Password != req.ConfirmPassword {
		return nil, ErrPasswordMismatch
	}

	exists, err := s.userRepo.UsernameExists(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("failed to check username: %w", err)
	}
	if exists {
		return nil, ErrUsernameTaken
	}

	_, err = s.userRepo.GetByEmail(ctx, email)
	if err == nil {
		return nil, ErrEmailTaken
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("failed to check user existence: %w", err)
	}

	passwordHash, err := utils.HashPassword(req.Password, s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &domain.User{
		Username:     username,
		Email:        email,
		PasswordHash: &passwordHash,
		IsActive:     true,
	}

	err = s.userRepo.Create(ctx, user)
	switch {
	case errors.Is(err, repository.ErrDuplicateUsername):
		return nil, ErrUsernameTaken
	case errors.Is(err, repository.ErrDuplicateEmail):
		return nil, ErrEmailTaken
	case err != nil:
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.logger.Info("User registered", zap.String("user_id", user.ID), zap.String("username", user.Username))

	return s.signIn(ctx, user)
}

// Login authenticates a user by username or email
func (s *authService) Login(ctx context.Context, req *dto.LoginRequest) (*AuthResponseWithRefreshToken, error) {
	user, err := s.findByIdentifier(ctx, req.Username)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if !user.IsActive {
		return nil, ErrAccountInactive
	}

	// OAuth-only accounts have no hash and always fail here
	if !utils.CheckPasswordHash(req.Password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	if err := s.userRepo.UpdateLastLogin(ctx, user.ID); err != nil {
		s.logger.Warn("Failed to update last login", zap.String("user_id", user.ID), zap.Error(err))
	}

	return s.signIn(ctx, user)
}

func (s *authService) findByIdentifier(ctx context.Context, identifier string) (*domain.User, error) {
	identifier = strings.TrimSpace(identifier)

	user, err := s.userRepo.GetByUsername(ctx, identifier)
	if err == nil || !errors.Is(err, repository.ErrNotFound) || !strings.Contains(identifier, "@") {
		return user, err
	}

	return s.userRepo.GetByEmail(ctx, utils.SanitizeEmail(identifier))
}

// OAuthLogin signs in a verified external identity, linking it to an
// existing account with the same email or creating a new account.
func (s *authService) OAuthLogin(ctx context.Context, identity domain.OAuthIdentity) (*AuthResponseWithRefreshToken, error) {
	if identity.Subject == "" || !utils.ValidateEmail(identity.Email) {
		return nil, fmt.Errorf("%w: provider returned an incomplete profile", ErrUnauthorized)
	}
	email := utils.SanitizeEmail(identity.Email)

	user, err := s.userForIdentity(ctx, identity, email)
	if err != nil {
		return nil, err
	}

	if !user.IsActive {
		return nil, ErrAccountInactive
	}

	if err := s.userRepo.UpdateLastLogin(ctx, user.ID); err != nil {
		s.logger.Warn("Failed to update last login", zap.String("user_id", user.ID), zap.Error(err))
	}

	s.logger.Info("User logged in via OAuth",
		zap.String("user_id", user.ID),
		zap.String("provider", identity.Provider),
	)

	return s.signIn(ctx, user)
}

func (s *authService) userForIdentity(ctx context.Context, identity domain.OAuthIdentity, email string) (*domain.User, error) {
	link, err := s.oauthRepo.GetByProvider(ctx, identity.Provider, identity.Subject)
	if err == nil {
		user, err := s.userRepo.GetByID(ctx, link.UserID)
		if err != nil {
			return nil, fmt.Errorf("failed to get linked user: %w", err)
		}
		return user, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("failed to get oauth provider: %w", err)
	}

	provider := &domain.OAuthProvider{
		Provider:       identity.Provider,
		ProviderUserID: identity.Subject,
		Email:          &email,
	}

	user, err := s.userRepo.GetByEmail(ctx, email)
	if err == nil {
		provider.UserID = user.ID
		err = s.oauthRepo.Create(ctx, provider)
		if err != nil && !errors.Is(err, repository.ErrDuplicateOAuthProvider) {
			return nil, fmt.Errorf("failed to link oauth provider: %w", err)
		}
		s.logger.Info("Linked OAuth identity to existing account",
			zap.String("user_id", user.ID),
			zap.String("provider", identity.Provider),
		)
		return user, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return s.createOAuthUser(ctx, email, provider)
}

// createOAuthUser derives a username from the email and appends 1, 2, ...
// until it is free. A concurrent signup taking the name retries with the next one.
func (s *authService) createOAuthUser(ctx context.Context, email string, provider *domain.OAuthProvider) (*domain.User, error) {
	base := utils.UsernameFromEmail(email)

	for attempt := 0; attempt < maxUsernameAttempts; attempt++ {
		username, err := s.uniqueUsername(ctx, base)
		if err != nil {
			return nil, err
		}

		user := &domain.User{
			Username: username,
			Email:    email,
			IsActive: true,
		}
		err = s.oauthRepo.CreateWithUser(ctx, user, provider)
		if errors.Is(err, repository.ErrDuplicateUsername) {
			continue
		}
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, ErrEmailTaken
		}
		if err != nil {
			return nil, fmt.Errorf("failed to create oauth user: %w", err)
		}

		s.logger.Info("New OAuth user created", zap.String("user_id", user.ID), zap.String("username", username))
		return user, nil
	}

	return nil, fmt.Errorf("%w: could not allocate a username for %s", ErrConflict, email)
}

func (s *authService) uniqueUsername(ctx context.Context, base string) (string, error) {
	candidate := base
	for i := 1; ; i++ {
		exists, err := s.userRepo.UsernameExists(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("failed to check username: %w", err)
		}
		if !exists {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s%d", base, i)
	}
}

// RefreshToken rotates a refresh token and issues a new pair
func (s *authService) RefreshToken(ctx context.Context, refreshToken string) (*AuthResponseWithRefreshToken, error) {
	userID, err := s.jwtManager.ValidateRefreshToken(refreshToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	tokenHash := hashToken(refreshToken)

	dbToken, err := s.tokenRepo.GetByTokenHash(ctx, tokenHash)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get token: %w", err)
	}

	if time.Now().After(dbToken.ExpiresAt) {
		return nil, fmt.Errorf("%w: refresh token expired", ErrInvalidToken)
	}

	isBlacklisted, err := s.blacklist.IsTokenBlacklisted(ctx, refreshToken)
	if err != nil {
		return nil, fmt.Errorf("failed to check token blacklist: %w", err)
	}
	if isBlacklisted {
		return nil, fmt.Errorf("%w: refresh token revoked", ErrInvalidToken)
	}

	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if !user.IsActive {
		return nil, ErrAccountInactive
	}

	s.revokeRefreshToken(ctx, refreshToken, tokenHash)

	return s.generateAuthResponseWithRefreshToken(ctx, user)
}

// Logout revokes the access token and, when it belongs to userID, the refresh token
func (s *authService) Logout(ctx context.Context, userID, accessToken, refreshToken string) error {
	if accessToken != "" {
		if err := s.blacklist.AddToken(ctx, accessToken, s.accessTokenExpiry); err != nil {
			s.logger.Warn("Failed to blacklist access token", zap.String("user_id", userID), zap.Error(err))
		}
	}

	if refreshToken == "" {
		return nil
	}

	tokenHash := hashToken(refreshToken)
	dbToken, err := s.tokenRepo.GetByTokenHash(ctx, tokenHash)
	if err == nil && dbToken.UserID == userID {
		s.revokeRefreshToken(ctx, refreshToken, tokenHash)
	}

	return nil
}

func (s *authService) revokeRefreshToken(ctx context.Context, refreshToken, tokenHash string) {
	if err := s.blacklist.AddToken(ctx, refreshToken, s.refreshTokenExpiry); err != nil {
		s.logger.Warn("Failed to blacklist refresh token", zap.Error(err))
	}
	if err := s.tokenRepo.DeleteByTokenHash(ctx, tokenHash); err != nil && !errors.Is(err, repository.ErrNotFound) {
		s.logger.Warn("Failed to delete refresh token", zap.Error(err))
	}
}

// GetUser returns the profile and usage stats of a user
func (s *authService) GetUser(ctx context.Context, userID string) (*dto.UserResponse, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	response := &dto.UserResponse{
		ID:              user.ID,
		Username:        user.Username,
		Email:           user.Email,
		ImagesProcessed: user.ImagesProcessed,
		HasFreeAccess:   user.HasFreeAccess,
		HasPassword:     user.HasPassword(),
		MemberSince:     user.CreatedAt.Format("January 2006"),
		CreatedAt:       user.CreatedAt.Format(time.RFC3339),
	}

	if user.LastLoginAt != nil {
		lastLogin := user.LastLoginAt.Format(time.RFC3339)
		response.LastLoginAt = &lastLogin
	}

	return response, nil
}

// ValidateToken validates an access token
func (s *authService) ValidateToken(ctx context.Context, token string) (*domain.TokenClaims, error) {
	isBlacklisted, err := s.blacklist.IsTokenBlacklisted(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("failed to check token blacklist: %w", err)
	}
	if isBlacklisted {
		return nil, fmt.Errorf("%w: token revoked", ErrInvalidToken)
	}

	claims, err := s.jwtManager.ValidateToken(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	return claims, nil
}
