package asset

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/starford/bannerd/internal/apperr"
	"github.com/starford/bannerd/internal/testutil"
)

var pngBytes = append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 32)...)

func TestFetch_DataURI(t *testing.T) {
	f := NewFetcher(time.Second, false)
	uri := "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngBytes)
	a, err := f.Fetch(context.Background(), uri)
	if err != nil {
		t.Fatal(err)
	}
	if a.Ext != ".png" || len(a.Data) != len(pngBytes) {
		t.Errorf("got ext %q, %d bytes", a.Ext, len(a.Data))
	}

	if _, err := f.Fetch(context.Background(), "data:text/plain;base64,aGk="); !errors.Is(err, apperr.ErrInvalid) {
		t.Errorf("text data URI: err = %v", err)
	}
	if _, err := f.Fetch(context.Background(), "data:image/png,raw"); !errors.Is(err, apperr.ErrInvalid) {
		t.Errorf("non-base64 data URI: err = %v", err)
	}
}

func TestFetch_HTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/photo":
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write(pngBytes)
		case "/big":
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write(make([]byte, MaxSize+10))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	f := NewFetcher(5*time.Second, true)
	a, err := f.Fetch(context.Background(), srv.URL+"/photo")
	if err != nil {
		t.Fatal(err)
	}
	if a.Ext != ".png" {
		t.Errorf("Ext = %q", a.Ext)
	}

	if _, err := f.Fetch(context.Background(), srv.URL+"/missing"); err == nil || !strings.Contains(err.Error(), "404") {
		t.Errorf("err = %v", err)
	}
	if _, err := f.Fetch(context.Background(), srv.URL+"/big"); !errors.Is(err, apperr.ErrInvalid) {
		t.Errorf("oversized: err = %v", err)
	}
}

func TestFetch_BlocksLoopbackAndMetadata(t *testing.T) {
	f := NewFetcher(time.Second, false)
	for _, u := range []string{
		"http://127.0.0.1/x.png",
		"http://169.254.169.254/latest/meta-data",
		"http://metadata.google.internal/x",
	} {
		if _, err := f.Fetch(context.Background(), u); !errors.Is(err, errBlockedHost) {
			t.Errorf("%s: err = %v", u, err)
		}
	}
	if _, err := f.Fetch(context.Background(), "ftp://example.com/x.png"); !errors.Is(err, apperr.ErrInvalid) {
		t.Errorf("ftp: err = %v", err)
	}
}

func TestFilenameFromURL(t *testing.T) {
	tests := []struct {
		url, ext, want string
	}{
		{"https://img.test/photos/sea.jpg?w=800", ".jpg", "sea.jpg"},
		{"https://img.test/photo-123", ".png", "photo-123.png"},
		{"https://img.test/a.php", ".webp", "a.webp"},
	}
	for _, tt := range tests {
		if got := FilenameFromURL(tt.url, tt.ext); got != tt.want {
			t.Errorf("FilenameFromURL(%q) = %q, want %q", tt.url, got, tt.want)
		}
	}
	if got := FilenameFromURL("data:image/png;base64,xx", ".png"); !strings.HasSuffix(got, ".png") || len(got) < 36 {
		t.Errorf("data URI name = %q", got)
	}
}

func TestSanitizeFilename(t *testing.T) {
	if got := SanitizeFilename("../../etc/pass wd.png"); got != "pass_wd.png" {
		t.Errorf("got %q", got)
	}
	if got := SanitizeFilename(`C:\tmp\x.png`); got != "x.png" {
		t.Errorf("got %q", got)
	}
}

func TestSave(t *testing.T) {
	_, store := testutil.TestVault(t)
	a := &Asset{Data: pngBytes, Ext: ".png"}

	p1, err := Save(store, "/banners/", "", "https://img.test/sea.png", a)
	if err != nil {
		t.Fatal(err)
	}
	if p1 != "banners/sea.png" {
		t.Errorf("p1 = %q", p1)
	}
	p2, err := Save(store, "banners", "sea.png", "", a)
	if err != nil {
		t.Fatal(err)
	}
	if p2 != "banners/sea-1.png" {
		t.Errorf("p2 = %q, want suffixed name", p2)
	}
	if !store.Exists(p1) || !store.Exists(p2) {
		t.Error("files not written")
	}
}

func TestSave_RejectsMismatchedContent(t *testing.T) {
	_, store := testutil.TestVault(t)
	if _, err := Save(store, "b", "x.jpg", "", &Asset{Data: pngBytes}); !errors.Is(err, apperr.ErrInvalid) {
		t.Errorf("png bytes as jpg: err = %v", err)
	}
	if _, err := Save(store, "b", "x.pdf", "", &Asset{Data: []byte("%PDF-1.4")}); !errors.Is(err, apperr.ErrInvalid) {
		t.Errorf("pdf: err = %v", err)
	}
	if _, err := Save(store, "b", "x.svg", "", &Asset{Data: []byte(`<svg xmlns="http://www.w3.org/2000/svg"/>`)}); err != nil {
		t.Errorf("svg: err = %v", err)
	}
}
