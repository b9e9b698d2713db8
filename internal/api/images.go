package api

import (
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/starford/bannerd/internal/asset"
)

const maxUploadBytes = asset.MaxSize + 1<<20

// ListImages handles GET /api/images.
//
//	@Summary	Vault images for the banner picker
//	@Tags		images
//	@Produce	json
//	@Param		q		query		string	false	"Substring filter"
//	@Param		folder	query		string	false	"Folder (recursive)"
//	@Param		limit	query		int		false	"Max results"
//	@Success	200		{object}	ImagesResponse
//	@Router		/images [get]
func (h *Handler) ListImages(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	imgs, err := h.notes.Images(r.Context(), q.Get("q"), q.Get("folder"), limit)
	if err != nil {
		writeError(w, "list images", err)
		return
	}
	writeJSON(w, http.StatusOK, ImagesResponse{Images: imgs})
}

// ServeImage handles GET /api/images/*.
//
//	@Summary	Raw bytes of a vault image
//	@Tags		images
//	@Param		path	path	string	true	"Image path"
//	@Success	200
//	@Failure	404	{object}	errResponse
//	@Router		/images/{path} [get]
func (h *Handler) ServeImage(w http.ResponseWriter, r *http.Request) {
	p := notePath(r)
	data, mimeType, err := h.notes.ReadImage(r.Context(), p)
	if err != nil {
		// Traversal attempts surface as storage errors; do not leak them.
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
		return
	}
	w.Header().Set("Content-Type", mimeType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// UploadImage handles POST /api/images (multipart/form-data, field "file").
//
//	@Summary	Upload an image into the pin folder
//	@Tags		images
//	@Accept		mpfd
//	@Produce	json
//	@Param		file	formData	file	true	"Image"
//	@Success	201		{object}	UploadResponse
//	@Failure	400		{object}	errResponse
//	@Router		/images [post]
func (h *Handler) UploadImage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("file too large or invalid multipart"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("missing 'file' field in multipart form"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("failed to read file"))
		return
	}

	saved, err := h.notes.Upload(r.Context(), header.Filename, data)
	if err != nil {
		writeError(w, "upload image", err, slog.String("filename", header.Filename))
		return
	}
	writeJSON(w, http.StatusCreated, UploadResponse{Path: saved, Size: len(data)})
}
