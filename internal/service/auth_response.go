package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/prperemyshlev/photo-enhancer/internal/domain"
	"github.com/prperemyshlev/photo-enhancer/internal/dto"
)

// AuthResponseWithRefreshToken contains auth response and refresh token
type AuthResponseWithRefreshToken struct {
	AuthResponse *dto.AuthResponse
	RefreshToken string
	ExpiresIn    int // Refresh token expiry in seconds
}

// signIn issues a token pair and then links the user's recent anonymous
// uploads. A failed claim is logged and does not fail the sign-in.
func (s *authService) signIn(ctx context.Context, user *domain.User) (*AuthResponseWithRefreshToken, error) {
	resp, err := s.generateAuthResponseWithRefreshToken(ctx, user)
	if err != nil {
		return nil, err
	}

	if s.claimer != nil {
		claimed, err := s.claimer.ClaimForUser(ctx, user.ID)
		if err != nil {
			s.logger.Warn("Failed to claim anonymous photos", zap.String("user_id", user.ID), zap.Error(err))
		}
		resp.AuthResponse.Claimed = claimed
	}

	return resp, nil
}

// generateAuthResponseWithRefreshToken generates access and refresh tokens and returns auth response with refresh token
func (s *authService) generateAuthResponseWithRefreshToken(ctx context.Context, user *domain.User) (*AuthResponseWithRefreshToken, error) {
	accessToken, err := s.jwtManager.GenerateAccessToken(user)
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}

	refreshToken, err := s.jwtManager.GenerateRefreshToken(user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to generate refresh token: %w", err)
	}

	// Only the hash is stored
	refreshTokenEntity := &domain.RefreshToken{
		UserID:    user.ID,
		TokenHash: hashToken(refreshToken),
		ExpiresAt: time.Now().Add(s.refreshTokenExpiry),
	}

	err = s.tokenRepo.Create(ctx, refreshTokenEntity)
	if err != nil {
		return nil, fmt.Errorf("failed to save refresh token: %w", err)
	}

	return &AuthResponseWithRefreshToken{
		AuthResponse: &dto.AuthResponse{
			Success:     true,
			AccessToken: accessToken,
			TokenType:   "Bearer",
			ExpiresIn:   s.jwtManager.GetAccessTokenExpiry(),
			User: dto.UserInfo{
				ID:       user.ID,
				Username: user.Username,
				Email:    user.Email,
			},
		},
		RefreshToken: refreshToken,
		ExpiresIn:    int(s.refreshTokenExpiry.Seconds()),
	}, nil
}
