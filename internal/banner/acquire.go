package banner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/singleflight"

	"github.com/starford/bannerd/internal/models"
	"github.com/starford/bannerd/internal/provider"
)

// ImageSearch returns one image URL for a keyword from an image provider.
// It returns provider.ErrNoCredential when no provider can be used.
type ImageSearch interface {
	Pick(ctx context.Context, keyword string) (string, error)
}

// ResolvedImage is something the presentation layer can use as an image source.
type ResolvedImage struct {
	Reference string `json:"reference"`
	Transient bool   `json:"transient"`
	// Path is the vault file behind a transient reference.
	Path string `json:"path,omitempty"`
	// Origin is the remote URL a keyword search produced.
	Origin string `json:"origin,omitempty"`
}

// Acquirer converts sources into resolved images.
type Acquirer struct {
	vault       Vault
	blobs       Blobs
	search      ImageSearch
	notifier    Notifier
	rand        Rand
	logger      *slog.Logger
	fallback    []string
	maxAttempts int

	flight singleflight.Group
}

// NewAcquirer creates an Acquirer. search may be nil, in which case keyword
// sources never produce an image.
func NewAcquirer(settings *Settings, vault Vault, blobs Blobs, search ImageSearch, notifier Notifier, r Rand, logger *slog.Logger) *Acquirer {
	if r == nil {
		r = globalRand{}
	}
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &Acquirer{
		vault:       vault,
		blobs:       blobs,
		search:      search,
		notifier:    notifier,
		rand:        r,
		logger:      logger,
		fallback:    settings.DefaultKeywords,
		maxAttempts: settings.MaxAttempts,
	}
}

// Acquire returns the image for src, or nil when there is none. Errors are
// reserved for unexpected failures; missing files, missing credentials and
// exhausted searches all yield nil.
func (a *Acquirer) Acquire(ctx context.Context, notePath string, src Source) (*ResolvedImage, error) {
	switch src.Kind {
	case InputURL:
		return &ResolvedImage{Reference: src.Value}, nil
	case InputVaultPath:
		return a.load(src.Value), nil
	case InputInternalLink:
		target, ok := a.vault.ResolveLink(linkTarget(src.Value), notePath)
		if !ok {
			a.logger.Debug("banner: link target not found",
				slog.String("path", notePath),
				slog.String("link", src.Value))
			return nil, nil
		}
		if !models.IsImagePath(target) {
			return nil, nil
		}
		return a.load(target), nil
	case InputKeyword:
		return a.keyword(ctx, notePath, src.Value)
	default:
		return nil, fmt.Errorf("banner: acquire: unsupported source kind %q", src.Kind)
	}
}

// load reads a vault image, one read in flight per file. Every caller gets
// its own handle, owned by the entry it commits.
func (a *Acquirer) load(p string) *ResolvedImage {
	v, err, _ := a.flight.Do("file\x00"+p, func() (any, error) {
		return a.vault.ReadBinary(p)
	})
	if err != nil {
		a.logger.Warn("banner: reading vault image failed",
			slog.String("path", p),
			slog.String("error", err.Error()))
		return nil
	}
	ref := a.blobs.Create(v.([]byte), models.MIMEType(p))
	return &ResolvedImage{Reference: ref, Transient: true, Path: p}
}

// keyword searches for value, one request in flight per note and input.
func (a *Acquirer) keyword(ctx context.Context, notePath, value string) (*ResolvedImage, error) {
	if a.search == nil {
		return nil, nil
	}
	v, err, _ := a.flight.Do("keyword\x00"+notePath+"\x00"+value, func() (any, error) {
		return a.searchWithFallback(ctx, value)
	})
	if err != nil {
		return nil, err
	}
	u := v.(string)
	if u == "" {
		return nil, nil
	}
	return &ResolvedImage{Reference: u, Origin: u}, nil
}

func (a *Acquirer) searchWithFallback(ctx context.Context, value string) (string, error) {
	candidates := splitList(value)
	if len(candidates) == 0 {
		return "", nil
	}
	keyword := candidates[a.rand.IntN(len(candidates))]
	first := keyword
	for attempt := 1; attempt <= a.maxAttempts; attempt++ {
		u, err := a.search.Pick(ctx, keyword)
		if err == nil {
			return u, nil
		}
		if errors.Is(err, provider.ErrNoCredential) {
			a.logger.Debug("banner: no image provider credential, skipping keyword",
				slog.String("keyword", keyword))
			return "", nil
		}
		if ctx.Err() != nil {
			return "", nil
		}
		a.logger.Warn("banner: keyword search failed",
			slog.String("keyword", keyword),
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()))
		if len(a.fallback) == 0 {
			break
		}
		keyword = a.fallback[a.rand.IntN(len(a.fallback))]
	}
	a.logger.Warn("banner: keyword acquisition exhausted", slog.String("keyword", first))
	a.notifier.Notice(fmt.Sprintf("Could not find a banner image for %q", first))
	return "", nil
}
