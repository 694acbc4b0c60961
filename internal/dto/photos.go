package dto

import "github.com/prperemyshlev/photo-enhancer/internal/domain"

// EnhanceResponse is returned after a photo has been processed
type EnhanceResponse struct {
	Success          bool                 `json:"success"`
	OriginalImageURL string               `json:"original_image_url"`
	EnhancedImageURL string               `json:"enhanced_image_url"`
	Enhancements     domain.PhotoSettings `json:"enhancements"`
	ImageID          string               `json:"image_id"`
	RequiresLogin    bool                 `json:"requires_login"`
}

// PhotoListQuery binds the pagination parameters
type PhotoListQuery struct {
	Page    int `form:"page"`
	PerPage int `form:"per_page"`
}

// Pagination describes the page returned
type Pagination struct {
	Page    int  `json:"page"`
	PerPage int  `json:"per_page"`
	Total   int  `json:"total"`
	Pages   int  `json:"pages"`
	HasNext bool `json:"has_next"`
	HasPrev bool `json:"has_prev"`
}

// PhotoListResponse is one page of the user's history
type PhotoListResponse struct {
	Success    bool               `json:"success"`
	Photos     []*domain.PhotoJob `json:"photos"`
	Pagination Pagination         `json:"pagination"`
}

// PhotoResponse wraps a single photo
type PhotoResponse struct {
	Success bool             `json:"success"`
	Photo   *domain.PhotoJob `json:"photo"`
}
