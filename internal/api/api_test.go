package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/starford/bannerd/internal/asset"
	"github.com/starford/bannerd/internal/banner"
	"github.com/starford/bannerd/internal/index"
	"github.com/starford/bannerd/internal/noteservice"
	"github.com/starford/bannerd/internal/storage"
	"github.com/starford/bannerd/internal/testutil"
	"github.com/starford/bannerd/internal/workspace"
)

var pngBytes = append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 32)...)

type testEnv struct {
	router  http.Handler
	store   storage.Provider
	db      *index.DB
	banners *banner.Service
	ws      *workspace.Workspace
	remote  *httptest.Server
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func eventually(t *testing.T, fn func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met within timeout")
}

func newTestEnv(t *testing.T, authEnabled bool, token string, events http.Handler) *testEnv {
	t.Helper()

	remote := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(pngBytes)
	}))
	t.Cleanup(remote.Close)

	store, db := testutil.SeededVault(t, map[string]string{
		"trips/iceland.md": "---\nbanner: \"[[banners/a.png]]\"\n---\n# Iceland\n",
		"remote.md":        "---\nbanner: " + remote.URL + "/photos/wave.png\n---\n",
		"plain.md":         "# Plain\n",
		"banners/a.png":    string(pngBytes),
	})

	logger := quietLogger()
	vault := workspace.NewVault(store, db, logger)
	blobs := banner.NewBlobStore()
	settings := banner.DefaultSettings()
	banners := banner.NewService(settings, banner.Deps{
		Vault:  vault,
		Meta:   vault,
		Blobs:  blobs,
		Logger: logger,
	})

	ws := workspace.New(banners, 5*time.Millisecond, logger)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = ws.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	notes := noteservice.NewService(store, db, noteservice.Options{
		BannerField: settings.Fields[0],
		IconField:   settings.IconField,
		PinFolder:   settings.PinFolder,
		Fields:      banners,
		Fetcher:     asset.NewFetcher(5*time.Second, true),
		OnChange:    ws.NotifyMetadata,
	})

	router := NewRouter(Deps{
		Notes:       notes,
		Banners:     banners,
		Workspace:   ws,
		Blobs:       blobs,
		Events:      events,
		MountPrefix: "/api",
	}, authEnabled, token)

	return &testEnv{router: router, store: store, db: db, banners: banners, ws: ws, remote: remote}
}

func (e *testEnv) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, target, rd)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

// openView opens a note and waits for the asynchronous resolution to land.
func (e *testEnv) openView(t *testing.T, id, path string) {
	t.Helper()
	w := e.do(t, http.MethodPut, "/views/"+id, map[string]string{"path": path})
	if w.Code != http.StatusAccepted {
		t.Fatalf("open view = %d, body = %s", w.Code, w.Body.String())
	}
	eventually(t, func() bool {
		_, ok := e.banners.Current(id)
		return ok
	})
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
	return v
}

func TestActivateAndServeBlob(t *testing.T) {
	e := newTestEnv(t, false, "", nil)
	e.openView(t, "v1", "trips/iceland.md")

	w := e.do(t, http.MethodPost, "/views/v1/activate", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("activate = %d, body = %s", w.Code, w.Body.String())
	}
	resp := decode[ViewResponse](t, w)
	if resp.Banner == nil || resp.Banner.Image.Path != "banners/a.png" {
		t.Fatalf("banner = %+v", resp.Banner)
	}
	if !resp.Banner.Cached {
		t.Error("second resolution should come from the cache")
	}
	if !strings.HasPrefix(resp.URL, "/api/blobs/") {
		t.Fatalf("url = %q", resp.URL)
	}

	w = e.do(t, http.MethodGet, strings.TrimPrefix(resp.URL, "/api"), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("blob = %d", w.Code)
	}
	if w.Header().Get("Content-Type") != "image/png" || !bytes.Equal(w.Body.Bytes(), pngBytes) {
		t.Errorf("blob content-type = %q, %d bytes", w.Header().Get("Content-Type"), w.Body.Len())
	}

	if w := e.do(t, http.MethodGet, "/blobs/nope", nil); w.Code != http.StatusNotFound {
		t.Errorf("unknown blob = %d", w.Code)
	}
}

func TestOpenView_Validation(t *testing.T) {
	e := newTestEnv(t, false, "", nil)
	if w := e.do(t, http.MethodPut, "/views/v1", map[string]string{"path": ""}); w.Code != http.StatusBadRequest {
		t.Errorf("empty path = %d", w.Code)
	}
	if w := e.do(t, http.MethodPut, "/views/v1", map[string]string{"path": "banners/a.png"}); w.Code != http.StatusBadRequest {
		t.Errorf("image path = %d", w.Code)
	}
	req := httptest.NewRequest(http.MethodPut, "/views/v1", strings.NewReader("{"))
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad json = %d", w.Code)
	}
}

func TestUnknownView(t *testing.T) {
	e := newTestEnv(t, false, "", nil)
	for _, tc := range []struct{ method, target string }{
		{http.MethodPost, "/views/ghost/activate"},
		{http.MethodPost, "/views/ghost/refresh"},
		{http.MethodPost, "/views/ghost/pin"},
		{http.MethodGet, "/views/ghost/banner"},
		{http.MethodDelete, "/views/ghost"},
	} {
		if w := e.do(t, tc.method, tc.target, nil); w.Code != http.StatusNotFound {
			t.Errorf("%s %s = %d, want 404", tc.method, tc.target, w.Code)
		}
	}
}

func TestGetBannerAndRefresh(t *testing.T) {
	e := newTestEnv(t, false, "", nil)
	e.openView(t, "v1", "trips/iceland.md")

	w := e.do(t, http.MethodGet, "/views/v1/banner", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("banner = %d", w.Code)
	}
	before := decode[ViewResponse](t, w)

	w = e.do(t, http.MethodPost, "/views/v1/refresh", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("refresh = %d", w.Code)
	}
	after := decode[ViewResponse](t, w)
	if after.Banner == nil || after.Banner.Cached {
		t.Errorf("refresh should recompute: %+v", after.Banner)
	}
	if after.Banner.Image.Reference == before.Banner.Image.Reference {
		t.Error("refresh should produce a new handle")
	}
}

func TestNoteWithoutBanner(t *testing.T) {
	e := newTestEnv(t, false, "", nil)
	if w := e.do(t, http.MethodPut, "/views/v1", map[string]string{"path": "plain.md"}); w.Code != http.StatusAccepted {
		t.Fatalf("open = %d", w.Code)
	}
	w := e.do(t, http.MethodPost, "/views/v1/activate", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("activate = %d", w.Code)
	}
	resp := decode[ViewResponse](t, w)
	if resp.Banner != nil || resp.URL != "" {
		t.Errorf("resp = %+v", resp)
	}
	if w := e.do(t, http.MethodPost, "/views/v1/pin", nil); w.Code != http.StatusNotFound {
		t.Errorf("pin without banner = %d", w.Code)
	}
}

func TestPinView(t *testing.T) {
	e := newTestEnv(t, false, "", nil)

	e.openView(t, "v1", "trips/iceland.md")
	if w := e.do(t, http.MethodPost, "/views/v1/pin", nil); w.Code != http.StatusConflict {
		t.Errorf("pin vault banner = %d, want 409", w.Code)
	}

	e.openView(t, "v2", "remote.md")
	w := e.do(t, http.MethodPost, "/views/v2/pin", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("pin = %d, body = %s", w.Code, w.Body.String())
	}
	resp := decode[PinResponse](t, w)
	if resp.SavedPath != "banners/wave.png" {
		t.Errorf("saved = %q", resp.SavedPath)
	}
	fm, err := e.db.Frontmatter("remote.md")
	if err != nil || fm["banner"] != "[[banners/wave.png]]" {
		t.Errorf("frontmatter = %v, %v", fm, err)
	}

	eventually(t, func() bool {
		st, ok := e.banners.Current("v2")
		return ok && st.Image.Path == "banners/wave.png"
	})
}

func TestCloseView(t *testing.T) {
	e := newTestEnv(t, false, "", nil)
	e.openView(t, "v1", "trips/iceland.md")

	if w := e.do(t, http.MethodDelete, "/views/v1", nil); w.Code != http.StatusNoContent {
		t.Fatalf("close = %d", w.Code)
	}
	eventually(t, func() bool {
		_, ok := e.banners.Current("v1")
		return !ok
	})
	if w := e.do(t, http.MethodDelete, "/views/v1", nil); w.Code != http.StatusNotFound {
		t.Errorf("second close = %d", w.Code)
	}
}

func TestListViewsAndLayout(t *testing.T) {
	e := newTestEnv(t, false, "", nil)
	e.openView(t, "b", "trips/iceland.md")
	e.openView(t, "a", "remote.md")

	leaves := decode[[]workspace.Leaf](t, e.do(t, http.MethodGet, "/views", nil))
	if len(leaves) != 2 || leaves[0].ID != "a" || leaves[1].ID != "b" {
		t.Errorf("leaves = %+v", leaves)
	}
	if w := e.do(t, http.MethodPost, "/layout", nil); w.Code != http.StatusAccepted {
		t.Errorf("layout = %d", w.Code)
	}
}

func TestGetAndPatchNote(t *testing.T) {
	e := newTestEnv(t, false, "", nil)

	w := e.do(t, http.MethodGet, "/notes/trips%2Ficeland.md", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get = %d", w.Code)
	}
	nf := decode[NoteFields](t, w)
	if nf.Frontmatter["banner"] != "[[banners/a.png]]" {
		t.Errorf("frontmatter = %v", nf.Frontmatter)
	}

	w = e.do(t, http.MethodPatch, "/notes/trips/iceland.md", map[string]any{"fields": map[string]any{"banner-y": 20, "icon": "🏔"}})
	if w.Code != http.StatusOK {
		t.Fatalf("patch = %d, body = %s", w.Code, w.Body.String())
	}
	nf = decode[NoteFields](t, w)
	if nf.Frontmatter["banner-y"] != float64(20) || nf.Frontmatter["icon"] != "🏔" {
		t.Errorf("frontmatter = %v", nf.Frontmatter)
	}

	w = e.do(t, http.MethodPatch, "/notes/trips/iceland.md", map[string]any{"fields": map[string]any{"icon": nil}})
	if w.Code != http.StatusOK {
		t.Fatalf("delete field = %d", w.Code)
	}
	if _, ok := decode[NoteFields](t, w).Frontmatter["icon"]; ok {
		t.Error("icon not deleted")
	}
}

func TestPatchNote_Errors(t *testing.T) {
	e := newTestEnv(t, false, "", nil)

	if w := e.do(t, http.MethodPatch, "/notes/trips/iceland.md", map[string]any{"fields": map[string]any{"title": "x"}}); w.Code != http.StatusBadRequest {
		t.Errorf("unrecognized field = %d", w.Code)
	}
	if w := e.do(t, http.MethodPatch, "/notes/trips/iceland.md", map[string]any{}); w.Code != http.StatusBadRequest {
		t.Errorf("no fields = %d", w.Code)
	}
	if w := e.do(t, http.MethodPatch, "/notes/missing.md", map[string]any{"fields": map[string]any{"banner": "x"}}); w.Code != http.StatusNotFound {
		t.Errorf("missing note = %d", w.Code)
	}
	if w := e.do(t, http.MethodGet, "/notes/missing.md", nil); w.Code != http.StatusNotFound {
		t.Errorf("get missing = %d", w.Code)
	}

	body, _ := json.Marshal(map[string]any{"fields": map[string]any{"banner": "x"}})
	req := httptest.NewRequest(http.MethodPatch, "/notes/trips/iceland.md", bytes.NewReader(body))
	req.Header.Set("If-Match", `"stale"`)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	if w.Code != http.StatusConflict {
		t.Errorf("stale If-Match = %d, want 409", w.Code)
	}
}

func TestImages(t *testing.T) {
	e := newTestEnv(t, false, "", nil)

	resp := decode[ImagesResponse](t, e.do(t, http.MethodGet, "/images?q=a.p", nil))
	if len(resp.Images) != 1 || resp.Images[0] != "banners/a.png" {
		t.Errorf("images = %v", resp.Images)
	}

	w := e.do(t, http.MethodGet, "/images/banners/a.png", nil)
	if w.Code != http.StatusOK || w.Header().Get("Content-Type") != "image/png" {
		t.Errorf("serve = %d %q", w.Code, w.Header().Get("Content-Type"))
	}
	for _, p := range []string{"/images/plain.md", "/images/missing.png", "/images/..%2F..%2Fetc%2Fpasswd.png"} {
		if w := e.do(t, http.MethodGet, p, nil); w.Code != http.StatusNotFound {
			t.Errorf("%s = %d, want 404", p, w.Code)
		}
	}
}

func uploadFile(t *testing.T, router http.Handler, field, filename string, content []byte, token string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile(field, filename)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = io.Copy(part, bytes.NewReader(content))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/images", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestUploadImage(t *testing.T) {
	e := newTestEnv(t, false, "", nil)

	w := uploadFile(t, e.router, "file", "my photo.png", pngBytes, "")
	if w.Code != http.StatusCreated {
		t.Fatalf("upload = %d, body = %s", w.Code, w.Body.String())
	}
	resp := decode[UploadResponse](t, w)
	if resp.Path != "banners/my_photo.png" || resp.Size != len(pngBytes) {
		t.Errorf("resp = %+v", resp)
	}
	if !e.store.Exists(resp.Path) {
		t.Error("file not written")
	}

	if w := uploadFile(t, e.router, "file", "x.png", []byte("not a png"), ""); w.Code != http.StatusBadRequest {
		t.Errorf("bad content = %d", w.Code)
	}
	if w := uploadFile(t, e.router, "wrong", "x.png", pngBytes, ""); w.Code != http.StatusBadRequest {
		t.Errorf("missing field = %d", w.Code)
	}
	if w := uploadFile(t, e.router, "file", "../../escape.png", pngBytes, ""); w.Code == http.StatusCreated {
		if p := decode[UploadResponse](t, w).Path; !strings.HasPrefix(p, "banners/") {
			t.Errorf("upload escaped pin folder: %q", p)
		}
	}
}

func TestClassify(t *testing.T) {
	e := newTestEnv(t, false, "", nil)
	tests := []struct {
		value any
		want  string
	}{
		{"https://img.test/x.jpg", "url"},
		{"banners/a.png", "vaultPath"},
		{"[[a.png]]", "internalLink"},
		{"ocean, forest", "keyword"},
		{42, "invalid"},
	}
	for _, tt := range tests {
		got := decode[map[string]string](t, e.do(t, http.MethodPost, "/classify", map[string]any{"value": tt.value}))
		if got["type"] != tt.want {
			t.Errorf("classify(%v) = %q, want %q", tt.value, got["type"], tt.want)
		}
	}
}

func TestCacheSweepAndStats(t *testing.T) {
	e := newTestEnv(t, false, "", nil)
	e.openView(t, "v1", "trips/iceland.md")

	stats := decode[CacheStatsResponse](t, e.do(t, http.MethodGet, "/cache/stats", nil))
	if stats.Banner.Entries != 1 || stats.Blobs.Live != 1 {
		t.Errorf("stats = %+v", stats)
	}

	if got := decode[map[string]int](t, e.do(t, http.MethodPost, "/cache/sweep", nil)); got["removed"] != 0 {
		t.Errorf("sweep = %v, want nothing expired", got)
	}
	if got := decode[map[string]int](t, e.do(t, http.MethodPost, "/cache/sweep?force=true", nil)); got["removed"] != 1 {
		t.Errorf("forced sweep = %v", got)
	}

	stats = decode[CacheStatsResponse](t, e.do(t, http.MethodGet, "/cache/stats", nil))
	if stats.Banner.Entries != 0 || stats.Blobs.Live != 0 || stats.Blobs.Revoked != stats.Blobs.Created {
		t.Errorf("stats after sweep = %+v", stats)
	}
}

func TestAuthMiddleware(t *testing.T) {
	e := newTestEnv(t, true, "secret", nil)
	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"valid", "Bearer secret", http.StatusOK},
		{"missing", "", http.StatusUnauthorized},
		{"wrong", "Bearer nope", http.StatusUnauthorized},
		{"scheme", "Basic secret", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/views", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			e.router.ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}

	if w := uploadFile(t, e.router, "file", "x.png", pngBytes, ""); w.Code != http.StatusUnauthorized {
		t.Errorf("upload without token = %d", w.Code)
	}
}

func TestAuthMiddleware_Disabled(t *testing.T) {
	e := newTestEnv(t, false, "", nil)
	if w := e.do(t, http.MethodGet, "/views", nil); w.Code != http.StatusOK {
		t.Errorf("disabled auth = %d", w.Code)
	}
}

// sseStub writes headers and blocks until the request context is done.
var sseStub = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	<-r.Context().Done()
})

func TestSSEEvents_AuthProtected(t *testing.T) {
	e := newTestEnv(t, true, "secret", sseStub)
	w := e.do(t, http.MethodGet, "/events", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("SSE no auth = %d, want 401", w.Code)
	}
}

func TestSSEEvents_ValidToken(t *testing.T) {
	e := newTestEnv(t, true, "tok", sseStub)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("SSE with valid token = %d", w.Code)
	}
}
