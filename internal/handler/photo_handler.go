package handler

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/prperemyshlev/photo-enhancer/internal/domain"
	"github.com/prperemyshlev/photo-enhancer/internal/dto"
	"github.com/prperemyshlev/photo-enhancer/internal/service"
)

const uploadField = "image"

// PhotoHandler serves uploads and the photo history
type PhotoHandler struct {
	photos         service.PhotoService
	maxUploadBytes int64
	logger         *zap.Logger
}

func NewPhotoHandler(photos service.PhotoService, maxUploadBytes int64, logger *zap.Logger) *PhotoHandler {
	return &PhotoHandler{
		photos:         photos,
		maxUploadBytes: maxUploadBytes,
		logger:         logger,
	}
}

// Enhance handles POST /api/enhance
func (h *PhotoHandler) Enhance(c *gin.Context) {
	h.process(c, domain.KindEnhancement)
}

// ConvertToNight handles POST /api/convert-to-night
func (h *PhotoHandler) ConvertToNight(c *gin.Context) {
	h.process(c, domain.KindNightConversion)
}

func (h *PhotoHandler) process(c *gin.Context, kind string) {
	if h.maxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)
	}

	file, err := c.FormFile(uploadField)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, dto.ErrorResponse{
				Error:   "Payload too large",
				Message: fmt.Sprintf("Upload exceeds %d bytes", tooLarge.Limit),
			})
			return
		}
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "Bad request",
			Message: "No image file provided",
		})
		return
	}

	f, err := file.Open()
	if err != nil {
		respondError(c, h.logger, fmt.Errorf("open upload: %w", err))
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		respondError(c, h.logger, fmt.Errorf("read upload: %w", err))
		return
	}

	in := service.ProcessInput{
		Filename:  file.Filename,
		Data:      data,
		Kind:      kind,
		Intensity: c.PostForm("change_intensity"),
		Detail:    c.PostForm("detail_level"),
	}
	if userID, ok := currentUserID(c); ok {
		in.UserID = &userID
	}

	result, err := h.photos.Process(c.Request.Context(), in)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, dto.EnhanceResponse{
		Success:          true,
		OriginalImageURL: result.OriginalDataURI,
		EnhancedImageURL: result.EnhancedDataURI,
		Enhancements:     result.Job.Settings,
		ImageID:          result.Job.ID,
		RequiresLogin:    result.RequiresLogin,
	})
}

// List handles GET /api/photos
func (h *PhotoHandler) List(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	var query dto.PhotoListQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		respondBindError(c, err)
		return
	}

	page, err := h.photos.List(c.Request.Context(), userID, query.Page, query.PerPage)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, dto.PhotoListResponse{
		Success: true,
		Photos:  page.Photos,
		Pagination: dto.Pagination{
			Page:    page.Page,
			PerPage: page.PerPage,
			Total:   page.Total,
			Pages:   page.Pages,
			HasNext: page.Page < page.Pages,
			HasPrev: page.Page > 1,
		},
	})
}

// Get handles GET /api/photos/:id
func (h *PhotoHandler) Get(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	photo, err := h.photos.Get(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, dto.PhotoResponse{Success: true, Photo: photo})
}

// DownloadOriginal handles GET /api/photos/:id/original
func (h *PhotoHandler) DownloadOriginal(c *gin.Context) {
	h.download(c, domain.ArtifactOriginal)
}

// DownloadEnhanced handles GET /api/photos/:id/enhanced
func (h *PhotoHandler) DownloadEnhanced(c *gin.Context) {
	h.download(c, domain.ArtifactEnhanced)
}

func (h *PhotoHandler) download(c *gin.Context, which string) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	artifact, err := h.photos.OpenArtifact(c.Request.Context(), userID, c.Param("id"), which)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.Header("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": artifact.Filename}))
	c.Data(http.StatusOK, artifact.ContentType, artifact.Data)
}

// Delete handles DELETE /api/photos/:id
func (h *PhotoHandler) Delete(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	message, err := h.photos.Delete(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, dto.SuccessResponse{Success: true, Message: message})
}
