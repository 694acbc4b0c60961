package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"mime"
	"path"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/prperemyshlev/photo-enhancer/internal/config"
	"github.com/prperemyshlev/photo-enhancer/internal/domain"
	"github.com/prperemyshlev/photo-enhancer/internal/enhancer"
	"github.com/prperemyshlev/photo-enhancer/internal/imaging"
	"github.com/prperemyshlev/photo-enhancer/internal/repository"
	"github.com/prperemyshlev/photo-enhancer/internal/retry"
	"github.com/prperemyshlev/photo-enhancer/internal/storage"
	"github.com/prperemyshlev/photo-enhancer/pkg/observability"
)

const reasonEnhanced = "Successfully enhanced by Gemini"

// ProcessInput is one upload. UserID is nil for anonymous uploads.
type ProcessInput struct {
	UserID    *string
	Filename  string
	Data      []byte
	Kind      string
	Intensity string
	Detail    string
}

// ProcessResult is a stored job plus inline previews of both images
type ProcessResult struct {
	Job             *domain.PhotoJob
	OriginalDataURI string
	EnhancedDataURI string
	RequiresLogin   bool
}

// Artifact is a downloadable image
type Artifact struct {
	Data        []byte
	ContentType string
	Filename    string
}

type photoService struct {
	photos   repository.PhotoRepository
	store    storage.ArtifactStore
	enhancer enhancer.Enhancer
	cfg      config.PhotoConfig
	retry    retry.Policy
	metrics  *observability.Metrics
	logger   *zap.Logger
}

// NewPhotoService creates the upload orchestrator
func NewPhotoService(
	photos repository.PhotoRepository,
	store storage.ArtifactStore,
	enh enhancer.Enhancer,
	cfg config.PhotoConfig,
	policy retry.Policy,
	metrics *observability.Metrics,
	logger *zap.Logger,
) PhotoService {
	return &photoService{
		photos:   photos,
		store:    store,
		enhancer: enh,
		cfg:      cfg,
		retry:    policy,
		metrics:  metrics,
		logger:   logger,
	}
}

// Process enhances an upload, stores both images and records the job. An
// enhancer that fails or returns no image does not fail the upload: the
// original is kept as the result and the reason is recorded in the settings.
func (s *photoService) Process(ctx context.Context, in ProcessInput) (*ProcessResult, error) {
	if !domain.IsAllowedExtension(in.Filename) {
		return nil, ErrInvalidFileType
	}
	if len(in.Data) == 0 {
		return nil, ErrEmptyUpload
	}

	kind := domain.NormalizeKind(in.Kind)
	intensity := domain.NormalizeLevel(in.Intensity)
	detail := domain.NormalizeLevel(in.Detail)

	normalized, info, err := imaging.ToJPEG(in.Data)
	if err != nil {
		s.logger.Warn("Rejected undecodable upload", zap.String("filename", in.Filename), zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrInvalidImage, err)
	}

	logger := s.logger.With(
		zap.String("kind", kind),
		zap.String("format", info.Format),
		zap.Int("width", info.Width),
		zap.Int("height", info.Height),
	)

	enhanced, settings := s.enhance(ctx, logger, normalized, BuildPrompt(kind, intensity, detail))
	settings.Intensity = intensity
	settings.Detail = detail

	filename := safeFilename(in.Filename)
	job := &domain.PhotoJob{
		ID:               uuid.NewString(),
		UserID:           in.UserID,
		OriginalFilename: filename,
		OriginalSize:     int64(len(in.Data)),
		EnhancedFilename: enhancedFilename(filename),
		EnhancedSize:     int64(len(enhanced)),
		Kind:             kind,
		Intensity:        intensity,
		Detail:           detail,
		Settings:         settings,
		AIAnalysis:       settings.Response,
		CreatedAt:        time.Now(),
	}
	job.OriginalPath = path.Join("uploads", job.ID, job.OriginalFilename)
	job.EnhancedPath = path.Join("enhanced", job.ID, job.EnhancedFilename)
	if s.cfg.StoreInlineBackup {
		job.OriginalData = in.Data
		job.EnhancedData = enhanced
	}

	originalType := contentTypeFor(filename)
	if err := s.store.Put(ctx, job.OriginalPath, originalType, in.Data); err != nil {
		return nil, fmt.Errorf("failed to store original image: %w", err)
	}
	if err := s.store.Put(ctx, job.EnhancedPath, imaging.ContentType, enhanced); err != nil {
		s.compensate(job.OriginalPath)
		return nil, fmt.Errorf("failed to store enhanced image: %w", err)
	}

	err = retry.Do(ctx, s.retry, func(ctx context.Context) error {
		return s.photos.Create(ctx, job)
	})
	if err != nil {
		logger.Error("Failed to save photo job", zap.String("photo_id", job.ID), zap.Error(err))
		s.compensate(job.OriginalPath, job.EnhancedPath)
		return nil, fmt.Errorf("%w: %w", ErrPersistFailed, err)
	}

	s.metrics.PhotoProcessed(ctx, kind, settings.EnhancedByModel)
	logger.Info("Processed photo",
		zap.String("photo_id", job.ID),
		zap.Bool("anonymous", in.UserID == nil),
		zap.Bool("enhanced_by_model", settings.EnhancedByModel),
	)

	return &ProcessResult{
		Job:             job,
		OriginalDataURI: dataURI(originalType, in.Data),
		EnhancedDataURI: dataURI(imaging.ContentType, enhanced),
		RequiresLogin:   in.UserID == nil,
	}, nil
}

// enhance calls the model and falls back to the normalized original
func (s *photoService) enhance(ctx context.Context, logger *zap.Logger, image []byte, prompt string) ([]byte, domain.PhotoSettings) {
	result, err := s.enhancer.Enhance(ctx, image, imaging.ContentType, prompt)
	if err != nil {
		logger.Warn("Enhancer call failed, keeping original", zap.Error(err))
		return image, domain.PhotoSettings{Reason: fmt.Sprintf("Error calling Gemini API: %v", err)}
	}

	settings := domain.PhotoSettings{Response: result.Text}
	if len(result.Image) == 0 {
		if result.Text != "" {
			settings.Reason = "Gemini returned text response instead of image: " + truncate(result.Text, 100)
		} else {
			settings.Reason = "Gemini returned empty response (no image or text)"
		}
		logger.Warn("No enhanced image from enhancer", zap.String("reason", settings.Reason))
		return image, settings
	}

	enhanced, _, err := imaging.ToJPEG(result.Image)
	if err != nil {
		settings.Reason = fmt.Sprintf("Gemini returned an unreadable image: %v", err)
		logger.Warn("Enhanced image could not be decoded", zap.Error(err))
		return image, settings
	}

	settings.EnhancedByModel = true
	settings.Reason = reasonEnhanced
	return enhanced, settings
}

// compensate removes artifacts written for a job that will not be recorded.
// It runs detached from the request so a canceled client cannot leave them behind.
func (s *photoService) compensate(keys ...string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.store.Delete(ctx, keys...); err != nil {
		s.logger.Error("Failed to remove orphaned artifacts", zap.Strings("keys", keys), zap.Error(err))
	}
}

// List returns a page of the user's photos, newest first
func (s *photoService) List(ctx context.Context, userID string, page, perPage int) (*domain.PhotoPage, error) {
	if page < 1 {
		page = 1
	}
	if perPage <= 0 {
		perPage = s.cfg.DefaultPageSize
	}
	if perPage > s.cfg.MaxPageSize {
		perPage = s.cfg.MaxPageSize
	}

	var (
		photos []*domain.PhotoJob
		total  int
	)
	err := retry.Do(ctx, s.retry, func(ctx context.Context) error {
		list, n, err := s.photos.ListByUser(ctx, userID, perPage, (page-1)*perPage)
		photos, total = list, n
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list photos: %w", err)
	}

	if photos == nil {
		photos = []*domain.PhotoJob{}
	}

	return &domain.PhotoPage{
		Photos:  photos,
		Page:    page,
		PerPage: perPage,
		Total:   total,
		Pages:   (total + perPage - 1) / perPage,
	}, nil
}

// Get returns a photo owned by userID
func (s *photoService) Get(ctx context.Context, userID, id string) (*domain.PhotoJob, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrPhotoNotFound
	}

	var job *domain.PhotoJob
	err := retry.Do(ctx, s.retry, func(ctx context.Context) error {
		j, err := s.photos.GetByID(ctx, id)
		job = j
		return err
	})
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrPhotoNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get photo: %w", err)
	}

	if !job.OwnedBy(userID) {
		return nil, ErrPhotoForbidden
	}
	return job, nil
}

// OpenArtifact reads one image of a photo, preferring the artifact store and
// falling back to the inline copy in the database
func (s *photoService) OpenArtifact(ctx context.Context, userID, id, which string) (*Artifact, error) {
	if which != domain.ArtifactOriginal && which != domain.ArtifactEnhanced {
		return nil, fmt.Errorf("%w: unknown artifact %q", ErrValidation, which)
	}

	job, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	artifact := &Artifact{
		ContentType: imaging.ContentType,
		Filename:    job.EnhancedFilename,
	}
	key := job.EnhancedPath
	if which == domain.ArtifactOriginal {
		artifact.ContentType = contentTypeFor(job.OriginalFilename)
		artifact.Filename = job.OriginalFilename
		key = job.OriginalPath
	}

	data, err := s.store.Get(ctx, key)
	if err == nil {
		artifact.Data = data
		return artifact, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	s.logger.Warn("Artifact store read failed, trying inline copy",
		zap.String("photo_id", id),
		zap.String("key", key),
		zap.Error(err),
	)

	err = retry.Do(ctx, s.retry, func(ctx context.Context) error {
		d, err := s.photos.GetInlineData(ctx, id, which)
		data = d
		return err
	})
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s file not found", ErrNotFound, which)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read inline image: %w", err)
	}

	artifact.Data = data
	return artifact, nil
}

// Delete removes a photo and its artifacts. Artifact failures do not stop the
// deletion and are reported in the returned message.
func (s *photoService) Delete(ctx context.Context, userID, id string) (string, error) {
	job, err := s.Get(ctx, userID, id)
	if err != nil {
		return "", err
	}

	var notes []string
	for _, a := range []struct{ name, key string }{
		{domain.ArtifactOriginal, job.OriginalPath},
		{domain.ArtifactEnhanced, job.EnhancedPath},
	} {
		if err := s.store.Delete(ctx, a.key); err != nil {
			notes = append(notes, fmt.Sprintf("Failed to delete %s: %v", a.name, err))
			s.logger.Warn("Failed to delete artifact", zap.String("photo_id", id), zap.String("key", a.key), zap.Error(err))
		}
	}

	err = retry.Do(ctx, s.retry, func(ctx context.Context) error {
		return s.photos.Delete(ctx, id, userID)
	})
	if errors.Is(err, repository.ErrNotFound) {
		return "", ErrPhotoNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to delete photo: %w", err)
	}

	s.logger.Info("Photo deleted", zap.String("photo_id", id), zap.String("user_id", userID))

	message := "Photo deleted successfully"
	if len(notes) > 0 {
		message += " (Note: " + strings.Join(notes, ", ") + ")"
	}
	return message, nil
}

// safeFilename keeps the base name and replaces anything outside [A-Za-z0-9._-]
func safeFilename(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
	cleaned = strings.TrimLeft(cleaned, ".")
	if cleaned == "" || !strings.Contains(cleaned, ".") {
		return "upload" + path.Ext(name)
	}
	return cleaned
}

func enhancedFilename(filename string) string {
	return "enhanced_" + strings.TrimSuffix(filename, path.Ext(filename)) + ".jpg"
}

func contentTypeFor(filename string) string {
	if t := mime.TypeByExtension(strings.ToLower(path.Ext(filename))); t != "" {
		return t
	}
	return "application/octet-stream"
}

func dataURI(contentType string, data []byte) string {
	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
