package api

import (
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/bannerd/internal/apperr"
	"github.com/starford/bannerd/internal/banner"
	"github.com/starford/bannerd/internal/noteservice"
	"github.com/starford/bannerd/internal/workspace"
)

// Handler holds API route handlers.
type Handler struct {
	notes    *noteservice.Service
	banners  *banner.Service
	ws       *workspace.Workspace
	blobs    *banner.BlobStore
	blobBase string
}

// NewHandler creates a new Handler. blobBase is the URL prefix under which
// GET /blobs/{id} is reachable from clients.
func NewHandler(notes *noteservice.Service, banners *banner.Service, ws *workspace.Workspace, blobs *banner.BlobStore, blobBase string) *Handler {
	return &Handler{notes: notes, banners: banners, ws: ws, blobs: blobs, blobBase: blobBase}
}

// notePath extracts the note path from the URL (everything after /api/notes/).
// Supports encoded slashes from OpenAPI clients (e.g. topics%2Fnote.md).
func notePath(r *http.Request) string {
	raw := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if raw == "" {
		return ""
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

func (h *Handler) imageURL(st *banner.State) string {
	if st == nil {
		return ""
	}
	if id, ok := strings.CutPrefix(st.Image.Reference, banner.BlobPrefix); ok {
		return h.blobBase + id
	}
	return st.Image.Reference
}

func (h *Handler) view(w http.ResponseWriter, leaf workspace.Leaf, st *banner.State) {
	writeJSON(w, http.StatusOK, ViewResponse{Leaf: leaf, Banner: st, URL: h.imageURL(st)})
}

// ListViews handles GET /api/views.
//
//	@Summary	List open views
//	@Tags		views
//	@Produce	json
//	@Success	200	{array}	workspace.Leaf
//	@Router		/views [get]
func (h *Handler) ListViews(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.ws.All())
}

// OpenView handles PUT /api/views/{id}. The banner is resolved
// asynchronously and announced over SSE.
//
//	@Summary	Open a note in a view
//	@Tags		views
//	@Accept		json
//	@Produce	json
//	@Param		id		path		string			true	"View id"
//	@Param		body	body		OpenViewRequest	true	"Note to show"
//	@Success	202		{object}	workspace.Leaf
//	@Failure	400		{object}	errResponse
//	@Router		/views/{id} [put]
func (h *Handler) OpenView(w http.ResponseWriter, r *http.Request) {
	var req OpenViewRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	leaf := h.ws.Open(chi.URLParam(r, "id"), req.Path)
	writeJSON(w, http.StatusAccepted, leaf)
}

// ActivateView handles POST /api/views/{id}/activate.
//
//	@Summary	Make a view active and resolve its banner
//	@Tags		views
//	@Produce	json
//	@Param		id	path		string	true	"View id"
//	@Success	200	{object}	ViewResponse
//	@Failure	404	{object}	errResponse
//	@Router		/views/{id}/activate [post]
func (h *Handler) ActivateView(w http.ResponseWriter, r *http.Request) {
	h.activate(w, r, banner.UpdateFull)
}

// RefreshView handles POST /api/views/{id}/refresh.
//
//	@Summary	Pick a new banner for a view, ignoring the cache
//	@Tags		views
//	@Produce	json
//	@Param		id	path		string	true	"View id"
//	@Success	200	{object}	ViewResponse
//	@Failure	404	{object}	errResponse
//	@Router		/views/{id}/refresh [post]
func (h *Handler) RefreshView(w http.ResponseWriter, r *http.Request) {
	h.activate(w, r, banner.UpdateForce)
}

func (h *Handler) activate(w http.ResponseWriter, r *http.Request, mode banner.UpdateMode) {
	id := chi.URLParam(r, "id")
	st, err := h.ws.Activate(r.Context(), id, mode)
	if err != nil {
		writeError(w, "activate view", err, slog.String("view", id))
		return
	}
	leaf, _ := h.ws.Leaf(id)
	h.view(w, leaf, st)
}

// GetBanner handles GET /api/views/{id}/banner.
//
//	@Summary	Current cached banner of a view
//	@Tags		views
//	@Produce	json
//	@Param		id	path		string	true	"View id"
//	@Success	200	{object}	ViewResponse
//	@Failure	404	{object}	errResponse
//	@Router		/views/{id}/banner [get]
func (h *Handler) GetBanner(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	leaf, ok := h.ws.Leaf(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody("view not found"))
		return
	}
	st, ok := h.banners.Current(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody("no banner"))
		return
	}
	h.view(w, leaf, st)
}

// PinView handles POST /api/views/{id}/pin.
//
//	@Summary	Save the view's remote banner into the vault
//	@Tags		views
//	@Produce	json
//	@Param		id	path		string	true	"View id"
//	@Success	200	{object}	PinResponse
//	@Failure	404	{object}	errResponse
//	@Failure	409	{object}	errResponse
//	@Router		/views/{id}/pin [post]
func (h *Handler) PinView(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	leaf, ok := h.ws.Leaf(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody("view not found"))
		return
	}
	st, ok := h.banners.Current(id)
	if !ok || st.Path != leaf.Path {
		writeJSON(w, http.StatusNotFound, errorBody("no banner"))
		return
	}
	saved, err := h.notes.PinBanner(r.Context(), leaf.Path, st.Image)
	if err != nil {
		writeError(w, "pin banner", err, slog.String("path", leaf.Path))
		return
	}
	writeJSON(w, http.StatusOK, PinResponse{SavedPath: saved})
}

// CloseView handles DELETE /api/views/{id}.
//
//	@Summary	Close a view
//	@Tags		views
//	@Param		id	path	string	true	"View id"
//	@Success	204	"View closed"
//	@Failure	404	{object}	errResponse
//	@Router		/views/{id} [delete]
func (h *Handler) CloseView(w http.ResponseWriter, r *http.Request) {
	if err := h.ws.Close(chi.URLParam(r, "id")); err != nil {
		writeError(w, "close view", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Layout handles POST /api/layout.
//
//	@Summary	Report a layout change
//	@Tags		views
//	@Success	202	"Queued"
//	@Router		/layout [post]
func (h *Handler) Layout(w http.ResponseWriter, _ *http.Request) {
	h.ws.NotifyLayout()
	w.WriteHeader(http.StatusAccepted)
}

// GetNote handles GET /api/notes/*.
//
//	@Summary	Frontmatter of a note
//	@Tags		notes
//	@Produce	json
//	@Param		path	path		string	true	"Note path"
//	@Success	200		{object}	NoteFields
//	@Failure	404		{object}	errResponse
//	@Router		/notes/{path} [get]
func (h *Handler) GetNote(w http.ResponseWriter, r *http.Request) {
	path := notePath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	nf, err := h.notes.Frontmatter(r.Context(), path)
	if err != nil {
		writeError(w, "get note", err, slog.String("path", path))
		return
	}
	writeJSON(w, http.StatusOK, nf)
}

// PatchNote handles PATCH /api/notes/*.
//
//	@Summary	Set or delete banner fields of a note
//	@Tags		notes
//	@Accept		json
//	@Produce	json
//	@Param		path		path		string				true	"Note path"
//	@Param		If-Match	header		string				false	"SHA-256 checksum for optimistic concurrency"
//	@Param		body		body		PatchNoteRequest	true	"Fields"
//	@Success	200			{object}	NoteFields
//	@Failure	400			{object}	errResponse
//	@Failure	404			{object}	errResponse
//	@Failure	409			{object}	errResponse
//	@Router		/notes/{path} [patch]
func (h *Handler) PatchNote(w http.ResponseWriter, r *http.Request) {
	path := notePath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	var req PatchNoteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	ifMatch := strings.Trim(r.Header.Get("If-Match"), `"`)

	nf, err := h.notes.SetFields(r.Context(), path, req.Fields, ifMatch)
	if err != nil {
		writeError(w, "patch note", err, slog.String("path", path))
		return
	}
	writeJSON(w, http.StatusOK, nf)
}

// Classify handles POST /api/classify.
//
//	@Summary	Classify a raw banner value
//	@Tags		banners
//	@Accept		json
//	@Produce	json
//	@Param		body	body		ClassifyRequest	true	"Value"
//	@Success	200		{object}	map[string]string
//	@Router		/classify [post]
func (h *Handler) Classify(w http.ResponseWriter, r *http.Request) {
	var req ClassifyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"type": string(h.banners.Classify(req.Value))})
}

// Sweep handles POST /api/cache/sweep.
//
//	@Summary	Drop expired cache entries (all with force=true)
//	@Tags		cache
//	@Produce	json
//	@Param		force	query		bool	false	"Drop every entry"
//	@Success	200		{object}	map[string]int
//	@Router		/cache/sweep [post]
func (h *Handler) Sweep(w http.ResponseWriter, r *http.Request) {
	force, _ := strconv.ParseBool(r.URL.Query().Get("force"))
	writeJSON(w, http.StatusOK, map[string]int{"removed": h.banners.Sweep(force)})
}

// CacheStats handles GET /api/cache/stats.
//
//	@Summary	Cache and handle counters
//	@Tags		cache
//	@Produce	json
//	@Success	200	{object}	CacheStatsResponse
//	@Router		/cache/stats [get]
func (h *Handler) CacheStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, CacheStatsResponse{Banner: h.banners.Stats(), Blobs: h.blobs.Stats()})
}

// Blob handles GET /api/blobs/{id}.
//
//	@Summary	Bytes behind a transient image handle
//	@Tags		banners
//	@Produce	image/png,image/jpeg,image/gif,image/webp,image/svg+xml
//	@Param		id	path	string	true	"Handle id"
//	@Success	200
//	@Failure	404	{object}	errResponse
//	@Router		/blobs/{id} [get]
func (h *Handler) Blob(w http.ResponseWriter, r *http.Request) {
	data, mimeType, ok := h.blobs.Get(chi.URLParam(r, "id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody(apperr.ErrNotFound.Error()))
		return
	}
	w.Header().Set("Content-Type", mimeType)
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
