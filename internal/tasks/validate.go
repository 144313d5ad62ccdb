package tasks

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/desertthunder/vidx/internal/models"
	"github.com/desertthunder/vidx/internal/shared"
)

// DefaultMaxUploadBytes is the server's upload ceiling.
const DefaultMaxUploadBytes int64 = 500 * 1024 * 1024

// DefaultAllowedTypes are the video MIME types the server accepts.
var DefaultAllowedTypes = []string{
	"video/mp4",
	"video/mpeg",
	"video/quicktime",
	"video/x-msvideo",
	"video/x-matroska",
	"video/webm",
}

// VideoMimeTypes maps lowercase file extensions to video MIME types.
var VideoMimeTypes = map[string]string{
	".mp4":  "video/mp4",
	".m4v":  "video/mp4",
	".mpeg": "video/mpeg",
	".mpg":  "video/mpeg",
	".mov":  "video/quicktime",
	".avi":  "video/x-msvideo",
	".mkv":  "video/x-matroska",
	".webm": "video/webm",
	".wmv":  "video/x-ms-wmv",
	".flv":  "video/x-flv",
	".3gp":  "video/3gpp",
	".ts":   "video/mp2t",
}

// ContentTypeFor returns the MIME type for a file name based on its extension, or
// "application/octet-stream" when the extension is not a known video format.
func ContentTypeFor(name string) string {
	if mime, ok := VideoMimeTypes[strings.ToLower(filepath.Ext(name))]; ok {
		return mime
	}
	return "application/octet-stream"
}

// DescribeFile stats path and builds its descriptor.
func DescribeFile(path string) (models.FileDescriptor, error) {
	info, err := os.Stat(path)
	if err != nil {
		return models.FileDescriptor{}, fmt.Errorf("%w: cannot read %s: %v", shared.ErrValidation, path, err)
	}
	if info.IsDir() {
		return models.FileDescriptor{}, fmt.Errorf("%w: %s is a directory", shared.ErrValidation, path)
	}

	return models.FileDescriptor{
		Path:        path,
		Name:        info.Name(),
		Size:        info.Size(),
		ContentType: ContentTypeFor(info.Name()),
	}, nil
}

// DefaultTitle derives a title from a file name by dropping its extension.
func DefaultTitle(name string) string {
	base := filepath.Base(name)
	return strings.TrimSpace(strings.TrimSuffix(base, filepath.Ext(base)))
}

// Validator enforces the upload constraints checked before any network call.
type Validator struct {
	MaxBytes     int64
	AllowedTypes []string
}

// NewValidator builds a validator from the uploads config, filling defaults for zero values.
func NewValidator(cfg shared.UploadsConfig) Validator {
	v := Validator{MaxBytes: cfg.MaxUploadBytes(), AllowedTypes: cfg.AllowedTypes}
	if v.MaxBytes <= 0 {
		v.MaxBytes = DefaultMaxUploadBytes
	}
	if len(v.AllowedTypes) == 0 {
		v.AllowedTypes = DefaultAllowedTypes
	}
	return v
}

// Validate checks type, size and title. Every failure wraps [shared.ErrValidation].
func (v Validator) Validate(file models.FileDescriptor, title string) error {
	allowed := v.AllowedTypes
	if len(allowed) == 0 {
		allowed = DefaultAllowedTypes
	}
	if !slices.Contains(allowed, file.ContentType) {
		return fmt.Errorf("%w: please select a valid video file (MP4, MPEG, MOV, AVI, MKV, WEBM)", shared.ErrValidation)
	}

	limit := v.MaxBytes
	if limit <= 0 {
		limit = DefaultMaxUploadBytes
	}
	if file.Size > limit {
		return fmt.Errorf("%w: file size must be less than %s", shared.ErrValidation, shared.FormatBytes(limit))
	}
	if file.Size == 0 {
		return fmt.Errorf("%w: %s is empty", shared.ErrValidation, file.Name)
	}

	if strings.TrimSpace(title) == "" {
		return fmt.Errorf("%w: please enter a title", shared.ErrValidation)
	}
	return nil
}
