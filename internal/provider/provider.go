// Package provider implements the image-search backends used for keyword
// banners and the request throttle they share.
package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Provider names.
const (
	Any      = "any"
	Pexels   = "pexels"
	Pixabay  = "pixabay"
	Flickr   = "flickr"
	Unsplash = "unsplash"
)

// Size tiers.
const (
	SizeSmall  = "small"
	SizeMedium = "medium"
	SizeLarge  = "large"
)

var (
	// ErrNoCredential means the selected provider has no API key.
	ErrNoCredential = errors.New("provider: no credential configured")
	// ErrNoResults means a search returned nothing usable.
	ErrNoResults = errors.New("provider: no results")
	// ErrRateLimited means the provider answered 429.
	ErrRateLimited = errors.New("provider: rate limited")
)

// Provider searches one image backend.
type Provider interface {
	Name() string
	// Configured reports whether a credential is set.
	Configured() bool
	// Search returns image URLs at the configured size tier.
	Search(ctx context.Context, keyword string) ([]string, error)
}

// Credentials configures one backend. BaseURL overrides the public endpoint.
type Credentials struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

// Config selects and configures the image-search backends.
type Config struct {
	Provider    string `yaml:"provider"`
	ImageSize   string `yaml:"image_size"`
	Orientation string `yaml:"orientation"`
	PerPage     int    `yaml:"per_page"`
	// RequestSpacing is the minimum delay between two requests to any backend.
	RequestSpacing time.Duration `yaml:"request_spacing"`
	Timeout        time.Duration `yaml:"timeout"`

	Pexels   Credentials `yaml:"pexels"`
	Pixabay  Credentials `yaml:"pixabay"`
	Flickr   Credentials `yaml:"flickr"`
	Unsplash Credentials `yaml:"unsplash"`
}

// Validate validates the provider configuration.
func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Provider, validation.Required, validation.In(Any, Pexels, Pixabay, Flickr, Unsplash)),
		validation.Field(&c.ImageSize, validation.Required, validation.In(SizeSmall, SizeMedium, SizeLarge)),
		validation.Field(&c.Orientation, validation.In("landscape", "portrait", "square")),
		validation.Field(&c.PerPage, validation.Min(3), validation.Max(80)),
		validation.Field(&c.RequestSpacing, validation.Min(time.Duration(0))),
	)
}

// DefaultConfig returns the configuration used when the config file omits it.
func DefaultConfig() Config {
	return Config{
		Provider:       Any,
		ImageSize:      SizeMedium,
		Orientation:    "landscape",
		PerPage:        10,
		RequestSpacing: time.Second,
		Timeout:        15 * time.Second,
	}
}

// Registry picks a backend per request and throttles every call.
type Registry struct {
	mode      string
	providers []Provider
	throttle  *Throttle
	rand      func(n int) int
	logger    *slog.Logger
}

// NewRegistry builds every backend from cfg.
func NewRegistry(cfg Config, logger *slog.Logger) *Registry {
	hc := &http.Client{Timeout: cfg.Timeout}
	return NewRegistryWith(cfg.Provider, NewThrottle(cfg.RequestSpacing), nil, logger,
		NewPexels(cfg.Pexels, cfg, hc),
		NewPixabay(cfg.Pixabay, cfg, hc),
		NewFlickr(cfg.Flickr, cfg, hc),
		NewUnsplash(cfg.Unsplash, cfg, hc),
	)
}

// NewRegistryWith builds a registry over explicit providers. intN draws the
// provider and result picks; nil means math/rand/v2.
func NewRegistryWith(mode string, throttle *Throttle, intN func(n int) int, logger *slog.Logger, providers ...Provider) *Registry {
	if intN == nil {
		intN = rand.IntN
	}
	return &Registry{
		mode:      mode,
		providers: providers,
		throttle:  throttle,
		rand:      intN,
		logger:    logger,
	}
}

// Select returns the fixed provider, or in "any" mode a random configured one.
func (r *Registry) Select() (Provider, error) {
	if r.mode != Any {
		for _, p := range r.providers {
			if p.Name() == r.mode {
				if !p.Configured() {
					return nil, fmt.Errorf("%s: %w", p.Name(), ErrNoCredential)
				}
				return p, nil
			}
		}
		return nil, fmt.Errorf("unknown provider %q: %w", r.mode, ErrNoCredential)
	}
	var ready []Provider
	for _, p := range r.providers {
		if p.Configured() {
			ready = append(ready, p)
		}
	}
	if len(ready) == 0 {
		return nil, ErrNoCredential
	}
	return ready[r.rand(len(ready))], nil
}

// Pick searches keyword on a selected provider and returns one result URL
// chosen at random. No request is made without a credential.
func (r *Registry) Pick(ctx context.Context, keyword string) (string, error) {
	p, err := r.Select()
	if err != nil {
		return "", err
	}
	if err := r.throttle.Wait(ctx); err != nil {
		return "", err
	}
	urls, err := p.Search(ctx, keyword)
	if err != nil {
		return "", fmt.Errorf("%s: %w", p.Name(), err)
	}
	if len(urls) == 0 {
		return "", fmt.Errorf("%s: %q: %w", p.Name(), keyword, ErrNoResults)
	}
	r.logger.Debug("provider: search ok",
		slog.String("provider", p.Name()),
		slog.String("keyword", keyword),
		slog.Int("results", len(urls)))
	return urls[r.rand(len(urls))], nil
}

// Status describes one backend.
type Status struct {
	Name       string `json:"name"`
	Configured bool   `json:"configured"`
}

// Statuses lists every backend and whether it can be used.
func (r *Registry) Statuses() []Status {
	out := make([]Status, 0, len(r.providers))
	for _, p := range r.providers {
		out = append(out, Status{Name: p.Name(), Configured: p.Configured()})
	}
	return out
}
