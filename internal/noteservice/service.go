// Package noteservice implements the write path behind banner user actions:
// selecting, pinning, icon and position changes all rewrite note frontmatter
// through here.
package noteservice

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/starford/bannerd/internal/apperr"
	"github.com/starford/bannerd/internal/asset"
	"github.com/starford/bannerd/internal/banner"
	"github.com/starford/bannerd/internal/checksum"
	"github.com/starford/bannerd/internal/index"
	"github.com/starford/bannerd/internal/models"
	"github.com/starford/bannerd/internal/parser"
	"github.com/starford/bannerd/internal/storage"
)

// NoteFields is the frontmatter view of one note.
type NoteFields struct {
	Path        string         `json:"path"`
	Checksum    string         `json:"checksum"`
	Frontmatter map[string]any `json:"frontmatter"`
}

// FieldFilter decides which frontmatter keys may be written.
type FieldFilter interface {
	Recognized(field string) bool
}

// Options configures a Service.
type Options struct {
	// BannerField is the key select and pin write to.
	BannerField string
	// IconField is the key SetIcon writes to.
	IconField string
	// PinFolder receives pinned and imported images.
	PinFolder string
	Fields    FieldFilter
	Fetcher   *asset.Fetcher
	// OnChange is called with the path of every note written.
	OnChange func(path string)
}

// Service coordinates storage and index operations.
type Service struct {
	store storage.Provider
	db    index.MetadataIndex
	opts  Options
}

// NewService creates a new note service.
func NewService(store storage.Provider, db index.MetadataIndex, opts Options) *Service {
	if opts.BannerField == "" {
		opts.BannerField = "banner"
	}
	if opts.IconField == "" {
		opts.IconField = "icon"
	}
	if opts.Fetcher == nil {
		opts.Fetcher = asset.NewFetcher(0, false)
	}
	return &Service{store: store, db: db, opts: opts}
}

func (s *Service) read(path string) ([]byte, error) {
	if !models.IsNotePath(path) {
		return nil, fmt.Errorf("%s is not a note: %w", path, apperr.ErrInvalid)
	}
	data, err := s.store.Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", path, apperr.ErrNotFound)
		}
		return nil, err
	}
	return data, nil
}

// Frontmatter reads a note's frontmatter straight from storage.
func (s *Service) Frontmatter(_ context.Context, path string) (*NoteFields, error) {
	data, err := s.read(path)
	if err != nil {
		return nil, err
	}
	return fields(path, data)
}

// SetFields applies updates to a note's frontmatter; a nil value deletes the
// key. Only banner-related keys may be written. A non-empty ifMatch must
// equal the current checksum.
func (s *Service) SetFields(_ context.Context, path string, updates map[string]any, ifMatch string) (*NoteFields, error) {
	if len(updates) == 0 {
		return nil, fmt.Errorf("no fields given: %w", apperr.ErrInvalid)
	}
	for k := range updates {
		if s.opts.Fields != nil && !s.opts.Fields.Recognized(k) {
			return nil, fmt.Errorf("field %q is not a banner field: %w", k, apperr.ErrInvalid)
		}
	}

	existing, err := s.read(path)
	if err != nil {
		return nil, err
	}
	if ifMatch != "" && ifMatch != checksum.Sum(existing) {
		return nil, apperr.ErrConflict
	}

	updated, err := parser.SetFields(existing, updates)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperr.ErrInvalid, err)
	}
	if err := s.store.Write(path, updated); err != nil {
		return nil, err
	}
	if err := s.index(path); err != nil {
		return nil, err
	}
	if s.opts.OnChange != nil {
		s.opts.OnChange(path)
	}
	return fields(path, updated)
}

// SelectBanner sets the banner of a note to value (a vault path, link,
// URL or keyword list). An empty value removes the banner.
func (s *Service) SelectBanner(ctx context.Context, path, value string) (*NoteFields, error) {
	var v any
	if value = strings.TrimSpace(value); value != "" {
		v = value
	}
	return s.SetFields(ctx, path, map[string]any{s.opts.BannerField: v}, "")
}

// SetIcon sets or clears the icon glyph.
func (s *Service) SetIcon(ctx context.Context, path, glyph string) (*NoteFields, error) {
	var v any
	if glyph = strings.TrimSpace(glyph); glyph != "" {
		v = glyph
	}
	return s.SetFields(ctx, path, map[string]any{s.opts.IconField: v}, "")
}

// SetPosition sets the banner focal point. Nil leaves an axis unchanged.
func (s *Service) SetPosition(ctx context.Context, path string, y, x *int) (*NoteFields, error) {
	updates := map[string]any{}
	if y != nil {
		updates[banner.FieldYPosition] = min(max(*y, 0), 100)
	}
	if x != nil {
		updates[banner.FieldXPosition] = min(max(*x, 0), 100)
	}
	return s.SetFields(ctx, path, updates, "")
}

// PinBanner stores the remote image a note currently shows in the pin folder
// and points the banner field at the stored copy. Banners that already live
// in the vault cannot be pinned.
func (s *Service) PinBanner(ctx context.Context, path string, img banner.ResolvedImage) (string, error) {
	src := img.Origin
	if src == "" && !img.Transient {
		src = img.Reference
	}
	if img.Path != "" || !isRemote(src) {
		return "", fmt.Errorf("banner of %s is already stored in the vault: %w", path, apperr.ErrConflict)
	}
	if _, err := s.read(path); err != nil {
		return "", err
	}

	saved, err := s.Import(ctx, src, "")
	if err != nil {
		return "", err
	}
	if _, err := s.SetFields(ctx, path, map[string]any{s.opts.BannerField: "[[" + saved + "]]"}, ""); err != nil {
		return "", err
	}
	return saved, nil
}

// Import downloads rawURL (http(s) or data URI) into the pin folder and
// returns the saved vault path.
func (s *Service) Import(ctx context.Context, rawURL, filename string) (string, error) {
	a, err := s.opts.Fetcher.Fetch(ctx, rawURL)
	if err != nil {
		return "", err
	}
	saved, err := asset.Save(s.store, s.opts.PinFolder, filename, rawURL, a)
	if err != nil {
		return "", err
	}
	if err := s.index(saved); err != nil {
		return "", err
	}
	return saved, nil
}

// Upload stores an uploaded image in the pin folder.
func (s *Service) Upload(_ context.Context, filename string, data []byte) (string, error) {
	if filename == "" {
		return "", fmt.Errorf("filename is required: %w", apperr.ErrInvalid)
	}
	saved, err := asset.Save(s.store, s.opts.PinFolder, filename, "", &asset.Asset{Data: data})
	if err != nil {
		return "", err
	}
	if err := s.index(saved); err != nil {
		return "", err
	}
	return saved, nil
}

// ReadImage returns the bytes and MIME type of a vault image.
func (s *Service) ReadImage(_ context.Context, path string) ([]byte, string, error) {
	if !models.IsImagePath(path) {
		return nil, "", fmt.Errorf("%s is not an image: %w", path, apperr.ErrInvalid)
	}
	data, err := s.store.Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, "", fmt.Errorf("%s: %w", path, apperr.ErrNotFound)
		}
		return nil, "", err
	}
	return data, models.MIMEType(path), nil
}

// Images lists vault images for the picker.
func (s *Service) Images(_ context.Context, query, folder string, limit int) ([]string, error) {
	imgs, err := s.db.ListImages(index.ImageQuery{Dir: folder, Contains: query, Limit: limit})
	if err != nil {
		return nil, err
	}
	if imgs == nil {
		imgs = []string{}
	}
	return imgs, nil
}

func (s *Service) index(path string) error {
	meta, err := s.store.Stat(path)
	if err != nil {
		return err
	}
	return index.IndexFile(s.db, s.store, meta)
}

func fields(path string, data []byte) (*NoteFields, error) {
	res, err := parser.Parse(data)
	if err != nil {
		return nil, err
	}
	fm := res.Frontmatter
	if fm == nil {
		fm = map[string]any{}
	}
	return &NoteFields{Path: path, Checksum: checksum.Sum(data), Frontmatter: fm}, nil
}

func isRemote(u string) bool {
	return strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://") || strings.HasPrefix(u, "data:")
}
