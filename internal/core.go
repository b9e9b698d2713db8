package internal

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/starford/bannerd/internal/asset"
	"github.com/starford/bannerd/internal/banner"
	"github.com/starford/bannerd/internal/index"
	"github.com/starford/bannerd/internal/noteservice"
	"github.com/starford/bannerd/internal/provider"
	"github.com/starford/bannerd/internal/storage"
	"github.com/starford/bannerd/internal/workspace"
)

// core holds the services shared by every command.
type core struct {
	cfg     *Config
	logger  *slog.Logger
	store   storage.Provider
	db      *index.DB
	blobs   *banner.BlobStore
	banners *banner.Service
}

func setup(opts []Option) (*application, *slog.Logger, error) {
	app := &application{version: "dev", logOutput: os.Stdout}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, nil, fmt.Errorf("config is required")
	}

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(app.logOutput, &slog.HandlerOptions{
		Level: app.config.App.LogLevel,
	}))
	slog.SetDefault(logger)
	return app, logger, nil
}

// openCore opens the vault and its metadata cache and builds the banner
// service on top. renderer and notifier may be nil.
func openCore(cfg *Config, logger *slog.Logger, renderer banner.Renderer, notifier banner.Notifier) (*core, error) {
	// Ensure vault directory exists.
	if err := os.MkdirAll(cfg.Vault.Path, 0o755); err != nil {
		return nil, fmt.Errorf("create vault dir: %w", err)
	}

	store, err := storage.NewFS(cfg.Vault.Path)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	db, err := index.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init index: %w", err)
	}

	if err := index.Sync(db, store, logger); err != nil {
		logger.Warn("initial sync failed", slog.String("error", err.Error()))
	}

	vault := workspace.NewVault(store, db, logger)
	blobs := banner.NewBlobStore()
	banners := banner.NewService(cfg.Banners, banner.Deps{
		Vault:    vault,
		Meta:     vault,
		Blobs:    blobs,
		Search:   provider.NewRegistry(cfg.Providers, logger),
		Renderer: renderer,
		Notifier: notifier,
		Logger:   logger,
	})

	return &core{
		cfg:     cfg,
		logger:  logger,
		store:   store,
		db:      db,
		blobs:   blobs,
		banners: banners,
	}, nil
}

// notes builds the frontmatter write path. onChange runs after every write.
func (c *core) notes(onChange func(string)) *noteservice.Service {
	settings := c.banners.Settings()
	return noteservice.NewService(c.store, c.db, noteservice.Options{
		BannerField: settings.Fields[0],
		IconField:   settings.IconField,
		PinFolder:   settings.PinFolder,
		Fields:      c.banners,
		Fetcher:     asset.NewFetcher(c.cfg.Assets.FetchTimeout, c.cfg.Assets.AllowLoopback),
		OnChange:    onChange,
	})
}

func (c *core) Close() error {
	return c.db.Close()
}
