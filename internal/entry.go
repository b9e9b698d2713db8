// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/bannerd/internal/api"
	"github.com/starford/bannerd/internal/apperr"
	"github.com/starford/bannerd/internal/banner"
	"github.com/starford/bannerd/internal/index"
	"github.com/starford/bannerd/internal/mcpserver"
	"github.com/starford/bannerd/internal/sse"
	"github.com/starford/bannerd/internal/workspace"
)

const apiPrefix = "/api"

// CLIViewID is the view one-shot resolutions are recorded under.
const CLIViewID = "cli"

// Run starts the HTTP daemon with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, logger, err := setup(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("vault_path", cfg.Vault.Path),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("provider", cfg.Providers.Provider),
		slog.String("log_level", cfg.App.LogLevel.String()))

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// SSE broker doubles as the banner renderer and notifier.
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()
	presenter := sse.NewPresenter(broker, apiPrefix+api.BlobPath)

	c, err := openCore(cfg, logger, presenter, presenter)
	if err != nil {
		return err
	}
	defer c.Close()

	ws := workspace.New(c.banners, c.banners.Settings().Debounce, logger)
	notes := c.notes(ws.NotifyMetadata)

	apiRouter := api.NewRouter(api.Deps{
		Notes:       notes,
		Banners:     c.banners,
		Workspace:   ws,
		Blobs:       c.blobs,
		Events:      broker,
		MountPrefix: apiPrefix,
	}, cfg.Auth.AuthEnabled(), cfg.Auth.Token)

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := c.db.Ping(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount(apiPrefix, apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Host event loop.
	g.Go(func() error {
		return ws.Run(gCtx)
	})

	// File watcher feeds both the SSE stream and the workspace.
	g.Go(func() error {
		err := index.Watch(gCtx, c.db, c.store, logger, func(kind, path string) {
			broker.PublishFileEvent(kind, path)
			ws.HandleFileChange(kind, path)
		})
		if err != nil {
			return fmt.Errorf("watcher: %w", err)
		}
		return nil
	})

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown.
	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	stats := c.banners.Stats()
	logger.Info("Server stopped successfully",
		slog.Int64("activations", stats.Activations),
		slog.Int64("resolutions", stats.Resolutions),
		slog.Int("blobs_live", c.blobs.Stats().Live))
	return nil
}

// RunMCP serves the MCP tools on stdin/stdout until the client disconnects.
func RunMCP(ctx context.Context, opts ...Option) error {
	app, logger, err := setup(opts)
	if err != nil {
		return err
	}

	c, err := openCore(app.config, logger, nil, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	invalidate := func(path string) { c.banners.InvalidatePath(path) }
	srv := mcpserver.New(c.notes(invalidate), c.banners, app.version)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		err := index.Watch(ctx, c.db, c.store, logger, func(_, path string) { invalidate(path) })
		if err != nil {
			logger.Warn("watcher stopped", slog.String("error", err.Error()))
		}
	}()

	logger.Info("MCP server starting on stdio")
	return srv.ServeStdio()
}

// Resolve computes the banner of one note and returns its state, or nil when
// the note has no banner.
func Resolve(ctx context.Context, notePath string, opts ...Option) (*banner.State, error) {
	app, logger, err := setup(opts)
	if err != nil {
		return nil, err
	}

	c, err := openCore(app.config, logger, nil, nil)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	if !c.store.Exists(notePath) {
		return nil, fmt.Errorf("note %s: %w", notePath, apperr.ErrNotFound)
	}
	return c.banners.ResolveAndAcquire(ctx, notePath, CLIViewID, banner.UpdateFull), nil
}

// Classify reports how a banner value would be read against the configured vault.
func Classify(value string, opts ...Option) (banner.InputType, error) {
	app, logger, err := setup(opts)
	if err != nil {
		return "", err
	}

	c, err := openCore(app.config, logger, nil, nil)
	if err != nil {
		return "", err
	}
	defer c.Close()

	return c.banners.Classify(value), nil
}
