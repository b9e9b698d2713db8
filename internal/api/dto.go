package api

import (
	"errors"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/bannerd/internal/banner"
	"github.com/starford/bannerd/internal/models"
	"github.com/starford/bannerd/internal/noteservice"
	"github.com/starford/bannerd/internal/workspace"
)

// OpenViewRequest is the body of PUT /views/{id}.
type OpenViewRequest struct {
	Path string `json:"path" example:"trips/iceland.md" validate:"required"`
}

// Validate implements validation.Validatable.
func (r OpenViewRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Path, validation.Required, validation.By(isNote)),
	)
}

func isNote(v any) error {
	if p, _ := v.(string); !models.IsNotePath(p) {
		return errors.New("must be a Markdown note path")
	}
	return nil
}

// PatchNoteRequest is the body of PATCH /notes/{path}. A null value deletes
// the field.
type PatchNoteRequest struct {
	Fields map[string]any `json:"fields" validate:"required"`
}

// Validate implements validation.Validatable.
func (r PatchNoteRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Fields, validation.Required),
	)
}

// ClassifyRequest is the body of POST /classify.
type ClassifyRequest struct {
	Value any `json:"value"`
}

// ViewResponse describes a leaf and its banner.
type ViewResponse struct {
	Leaf   workspace.Leaf `json:"leaf"`
	Banner *banner.State  `json:"banner"`
	// URL is where the banner image can be loaded from, if any.
	URL string `json:"url,omitempty"`
}

// PinResponse is returned after a banner has been pinned.
type PinResponse struct {
	SavedPath string `json:"saved_path" example:"banners/wave.jpg"`
}

// ImagesResponse lists vault images.
type ImagesResponse struct {
	Images []string `json:"images"`
}

// UploadResponse is returned after an image upload.
type UploadResponse struct {
	Path string `json:"path" example:"banners/wave.jpg"`
	Size int    `json:"size" example:"12345"`
}

// CacheStatsResponse reports cache and handle counters.
type CacheStatsResponse struct {
	Banner banner.Stats     `json:"banner"`
	Blobs  banner.BlobStats `json:"blobs"`
}

// NoteFields is the frontmatter response type (aliased from the domain layer).
type NoteFields = noteservice.NoteFields
