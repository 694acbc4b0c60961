package domain

import (
	"strings"
	"time"
)

// Conversion kinds
const (
	KindEnhancement     = "enhancement"
	KindNightConversion = "night_conversion"
)

// Intensity and detail levels share the same scale
const (
	LevelMinimal   = "minimal"
	LevelModerate  = "moderate"
	LevelExtensive = "extensive"
)

// Artifact selectors for downloads
const (
	ArtifactOriginal = "original"
	ArtifactEnhanced = "enhanced"
)

// AllowedExtensions lists accepted upload extensions without the dot
var AllowedExtensions = map[string]struct{}{
	"png":  {},
	"jpg":  {},
	"jpeg": {},
	"gif":  {},
	"webp": {},
}

// PhotoJob is one processed upload and its enhanced result. UserID is nil
// until the uploader signs in and the job is claimed.
type PhotoJob struct {
	ID               string        `json:"id" db:"id"`
	UserID           *string       `json:"user_id" db:"user_id"`
	OriginalFilename string        `json:"original_filename" db:"original_filename"`
	OriginalPath     string        `json:"original_path" db:"original_path"`
	OriginalSize     int64         `json:"original_size" db:"original_size"`
	EnhancedFilename string        `json:"enhanced_filename" db:"enhanced_filename"`
	EnhancedPath     string        `json:"enhanced_path" db:"enhanced_path"`
	EnhancedSize     int64         `json:"enhanced_size" db:"enhanced_size"`
	OriginalData     []byte        `json:"-" db:"original_data"`
	EnhancedData     []byte        `json:"-" db:"enhanced_data"`
	Kind             string        `json:"conversion_kind" db:"conversion_kind"`
	Intensity        string        `json:"change_intensity" db:"change_intensity"`
	Detail           string        `json:"detail_level" db:"detail_level"`
	Settings         PhotoSettings `json:"settings" db:"settings"`
	AIAnalysis       string        `json:"ai_analysis" db:"ai_analysis"`
	CreatedAt        time.Time     `json:"created_at" db:"created_at"`
}

// PhotoSettings records what the enhancer was asked and what it returned
type PhotoSettings struct {
	Response        string `json:"response"`
	EnhancedByModel bool   `json:"enhanced_by_model"`
	Reason          string `json:"reason,omitempty"`
	Intensity       string `json:"change_intensity"`
	Detail          string `json:"detail_level"`
}

// OwnedBy reports whether the job belongs to userID
func (p *PhotoJob) OwnedBy(userID string) bool {
	return p.UserID != nil && *p.UserID == userID
}

// IsAllowedExtension checks a filename against AllowedExtensions, ignoring case
func IsAllowedExtension(filename string) bool {
	idx := strings.LastIndex(filename, ".")
	if idx < 0 || idx == len(filename)-1 {
		return false
	}
	_, ok := AllowedExtensions[strings.ToLower(filename[idx+1:])]
	return ok
}

// NormalizeLevel maps unknown levels to moderate
func NormalizeLevel(level string) string {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case LevelMinimal:
		return LevelMinimal
	case LevelExtensive:
		return LevelExtensive
	default:
		return LevelModerate
	}
}

// NormalizeKind maps unknown kinds to enhancement
func NormalizeKind(kind string) string {
	if kind == KindNightConversion {
		return KindNightConversion
	}
	return KindEnhancement
}

// PhotoPage is one page of a user's photo history
type PhotoPage struct {
	Photos  []*PhotoJob `json:"photos"`
	Page    int         `json:"page"`
	PerPage int         `json:"per_page"`
	Total   int         `json:"total"`
	Pages   int         `json:"pages"`
}
