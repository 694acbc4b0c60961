package service

import (
	"errors"
	"fmt"
)

// Error classes. Handlers map these to HTTP statuses.
var (
	ErrValidation   = errors.New("validation failed")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrUnavailable  = errors.New("temporarily unavailable")
	ErrRateLimited  = errors.New("rate limit exceeded")
)

// Auth errors
var (
	ErrInvalidUsername    = fmt.Errorf("%w: username must be 3-30 characters and contain only letters, numbers, underscores, or hyphens", ErrValidation)
	ErrInvalidEmail       = fmt.Errorf("%w: invalid email format", ErrValidation)
	ErrInvalidPassword    = fmt.Errorf("%w: password must be at least 6 characters", ErrValidation)
	ErrPasswordMismatch   = fmt.Errorf("%w: passwords do not match", ErrValidation)
	ErrUsernameTaken      = fmt.Errorf("%w: username already exists", ErrConflict)
	ErrEmailTaken         = fmt.Errorf("%w: email already registered", ErrConflict)
	ErrInvalidCredentials = fmt.Errorf("%w: invalid username or password", ErrUnauthorized)
	ErrAccountInactive    = fmt.Errorf("%w: user account is inactive", ErrUnauthorized)
	ErrInvalidToken       = fmt.Errorf("%w: invalid or expired token", ErrUnauthorized)
	ErrOAuthDisabled      = fmt.Errorf("%w: oauth not configured", ErrNotFound)
	ErrInvalidOAuthState  = fmt.Errorf("%w: invalid or expired oauth state", ErrValidation)
)

// Photo errors
var (
	ErrInvalidFileType = fmt.Errorf("%w: invalid file type", ErrValidation)
	ErrEmptyUpload     = fmt.Errorf("%w: no image data provided", ErrValidation)
	ErrInvalidImage    = fmt.Errorf("%w: image could not be decoded", ErrValidation)
	ErrPhotoNotFound   = fmt.Errorf("%w: photo not found", ErrNotFound)
	ErrPhotoForbidden  = fmt.Errorf("%w: photo belongs to another user", ErrForbidden)
	ErrPersistFailed   = errors.New("failed to save image record")
)

// Payment errors
var (
	ErrNoPhotos             = fmt.Errorf("%w: no photos selected", ErrValidation)
	ErrPhotosNotOwned       = fmt.Errorf("%w: some photos not found or unauthorized", ErrForbidden)
	ErrUserNotFound         = fmt.Errorf("%w: user not found", ErrNotFound)
	ErrInvalidSignature     = fmt.Errorf("%w: invalid webhook signature", ErrValidation)
	ErrWebhookNotConfigured = fmt.Errorf("%w: webhook not configured", ErrValidation)
	ErrInvalidPayload       = fmt.Errorf("%w: invalid webhook payload", ErrValidation)
	ErrPaymentsDisabled     = fmt.Errorf("%w: payment provider not configured", ErrUnavailable)
	ErrProviderUnavailable  = fmt.Errorf("%w: payment provider unavailable", ErrUnavailable)
)

// known lists the sentinels whose text is safe to show to clients
var known = []error{
	ErrInvalidUsername, ErrInvalidEmail, ErrInvalidPassword, ErrPasswordMismatch,
	ErrUsernameTaken, ErrEmailTaken, ErrInvalidCredentials, ErrAccountInactive,
	ErrInvalidToken, ErrOAuthDisabled, ErrInvalidOAuthState,
	ErrInvalidFileType, ErrEmptyUpload, ErrInvalidImage, ErrPhotoNotFound, ErrPhotoForbidden,
	ErrNoPhotos, ErrPhotosNotOwned, ErrUserNotFound, ErrInvalidSignature,
	ErrWebhookNotConfigured, ErrInvalidPayload, ErrPaymentsDisabled, ErrProviderUnavailable,
}

// KnownMessage returns the text of the first sentinel err wraps
func KnownMessage(err error) (string, bool) {
	for _, k := range known {
		if errors.Is(err, k) {
			return k.Error(), true
		}
	}
	return "", false
}
