package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/bannerd/internal/banner"
	"github.com/starford/bannerd/internal/noteservice"
	"github.com/starford/bannerd/internal/workspace"
)

// BlobPath is the route prefix transient handles are served under, relative
// to the API mount point.
const BlobPath = "/blobs/"

// Deps are the services behind the API.
type Deps struct {
	Notes     *noteservice.Service
	Banners   *banner.Service
	Workspace *workspace.Workspace
	Blobs     *banner.BlobStore
	// Events, if non-nil, is mounted at GET /events inside the auth group.
	Events http.Handler
	// MountPrefix is where the router is mounted, e.g. "/api".
	MountPrefix string
}

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
func NewRouter(d Deps, authEnabled bool, token string) chi.Router {
	h := NewHandler(d.Notes, d.Banners, d.Workspace, d.Blobs, d.MountPrefix+BlobPath)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Views.
	r.Get("/views", h.ListViews)
	r.Put("/views/{id}", h.OpenView)
	r.Delete("/views/{id}", h.CloseView)
	r.Post("/views/{id}/activate", h.ActivateView)
	r.Post("/views/{id}/refresh", h.RefreshView)
	r.Post("/views/{id}/pin", h.PinView)
	r.Get("/views/{id}/banner", h.GetBanner)
	r.Post("/layout", h.Layout)

	// Notes.
	r.Get("/notes/*", h.GetNote)
	r.Patch("/notes/*", h.PatchNote)

	// Images.
	r.Get("/images", h.ListImages)
	r.Post("/images", h.UploadImage)
	r.Get("/images/*", h.ServeImage)

	// Banner maintenance.
	r.Post("/classify", h.Classify)
	r.Post("/cache/sweep", h.Sweep)
	r.Get("/cache/stats", h.CacheStats)
	r.Get(BlobPath+"{id}", h.Blob)

	if d.Events != nil {
		r.Get("/events", d.Events.ServeHTTP)
	}

	return r
}
