// Package asset downloads banner images from remote URLs or data URIs and
// stores them in the vault.
package asset

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/starford/bannerd/internal/apperr"
	"github.com/starford/bannerd/internal/storage"
)

// MaxSize caps a single download.
const MaxSize = 10 << 20 // 10 MB

var (
	allowedExtensions = map[string]bool{
		".png": true, ".jpg": true, ".jpeg": true,
		".gif": true, ".webp": true, ".svg": true,
	}

	mimeToExt = map[string]string{
		"image/png":     ".png",
		"image/jpeg":    ".jpg",
		"image/gif":     ".gif",
		"image/webp":    ".webp",
		"image/svg+xml": ".svg",
	}

	safeFilenameRe = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

	errBlockedHost = errors.New("blocked host")
)

// Asset is a downloaded image.
type Asset struct {
	Data []byte
	// Ext is the extension implied by the content type, if known.
	Ext string
}

// Fetcher downloads images with host checks and size limits.
type Fetcher struct {
	client        *http.Client
	allowLoopback bool
}

// NewFetcher creates a Fetcher. allowLoopback disables the loopback check and
// exists for local test servers.
func NewFetcher(timeout time.Duration, allowLoopback bool) *Fetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	f := &Fetcher{allowLoopback: allowLoopback}
	f.client = &http.Client{
		Timeout: timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 5 {
				return fmt.Errorf("too many redirects (max 5)")
			}
			return f.checkHost(req.URL.Hostname())
		},
	}
	return f
}

// Fetch returns the bytes behind a data URI or an http(s) URL.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Asset, error) {
	if strings.HasPrefix(rawURL, "data:") {
		data, ext, err := decodeDataURI(rawURL)
		if err != nil {
			return nil, err
		}
		return &Asset{Data: data, Ext: ext}, nil
	}
	return f.fetchHTTP(ctx, rawURL)
}

func (f *Fetcher) fetchHTTP(ctx context.Context, rawURL string) (*Asset, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w: %w", apperr.ErrInvalid, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q: %w", parsed.Scheme, apperr.ErrInvalid)
	}
	if err := f.checkHost(parsed.Hostname()); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download failed: HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxSize+1))
	if err != nil {
		return nil, fmt.Errorf("read body failed: %w", err)
	}
	if len(data) > MaxSize {
		return nil, fmt.Errorf("file too large: exceeds %d bytes: %w", MaxSize, apperr.ErrInvalid)
	}

	ct := resp.Header.Get("Content-Type")
	return &Asset{Data: data, Ext: mimeToExt[strings.TrimSpace(strings.Split(ct, ";")[0])]}, nil
}

// checkHost rejects loopback and cloud metadata addresses.
func (f *Fetcher) checkHost(host string) error {
	if host == "metadata.google.internal" {
		return fmt.Errorf("%w: %s", errBlockedHost, host)
	}

	ips := []net.IP{net.ParseIP(host)}
	if ips[0] == nil {
		resolved, err := net.LookupIP(host)
		if err != nil || len(resolved) == 0 {
			return nil //nolint:nilerr // the HTTP client reports DNS failures
		}
		ips = resolved
	}

	for _, ip := range ips {
		if ip.IsLoopback() && !f.allowLoopback {
			return fmt.Errorf("%w: loopback address %s", errBlockedHost, host)
		}
		if ip.Equal(net.ParseIP("169.254.169.254")) {
			return fmt.Errorf("%w: cloud metadata address %s", errBlockedHost, host)
		}
	}
	return nil
}

// decodeDataURI parses a data:[<mediatype>];base64,<data> URI.
func decodeDataURI(uri string) ([]byte, string, error) {
	meta, encoded, ok := strings.Cut(strings.TrimPrefix(uri, "data:"), ",")
	if !ok {
		return nil, "", fmt.Errorf("invalid data URI: missing comma separator: %w", apperr.ErrInvalid)
	}
	if !strings.Contains(meta, ";base64") {
		return nil, "", fmt.Errorf("only base64 data URIs are supported: %w", apperr.ErrInvalid)
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, "", fmt.Errorf("invalid base64 data: %w", apperr.ErrInvalid)
		}
	}

	mime := strings.Split(strings.TrimSuffix(meta, ";base64"), ";")[0]
	ext := mimeToExt[mime]
	if ext == "" {
		return nil, "", fmt.Errorf("unsupported MIME type in data URI %q: %w", mime, apperr.ErrInvalid)
	}
	return data, ext, nil
}

// FilenameFromURL derives a file name from a URL, falling back to a UUID
// with the detected extension.
func FilenameFromURL(rawURL, fallbackExt string) string {
	ext := fallbackExt
	if ext == "" {
		ext = ".bin"
	}
	if strings.HasPrefix(rawURL, "data:") {
		return uuid.NewString() + ext
	}

	if parsed, err := url.Parse(rawURL); err == nil {
		base := path.Base(parsed.Path)
		if base != "" && base != "." && base != "/" {
			if allowedExtensions[strings.ToLower(path.Ext(base))] {
				return base
			}
			if fallbackExt != "" {
				return strings.TrimSuffix(base, path.Ext(base)) + fallbackExt
			}
		}
	}
	return uuid.NewString() + ext
}

// SanitizeFilename strips path separators and unsafe characters.
func SanitizeFilename(name string) string {
	name = path.Base(strings.ReplaceAll(name, `\`, "/"))
	name = safeFilenameRe.ReplaceAllString(name, "_")
	if name == "" || name == "." || name == "_" {
		name = uuid.NewString()
	}
	return name
}

// validateMagicBytes verifies file content matches the declared extension.
func validateMagicBytes(data []byte, ext string) error {
	if ext == ".svg" {
		prefix := data
		if len(prefix) > 1024 {
			prefix = prefix[:1024]
		}
		if !bytes.Contains(prefix, []byte("<svg")) {
			return fmt.Errorf("content does not appear to be a valid SVG: %w", apperr.ErrInvalid)
		}
		return nil
	}

	detected := http.DetectContentType(data)
	got := mimeToExt[strings.Split(detected, ";")[0]]
	want := ext
	if want == ".jpeg" {
		want = ".jpg"
	}
	if got != want {
		return fmt.Errorf("content does not match extension %s (detected: %s): %w", ext, detected, apperr.ErrInvalid)
	}
	return nil
}

// Save validates a and writes it into folder under name (or a name derived
// from sourceURL). An existing file is never overwritten; a numeric suffix is
// added instead. It returns the vault path written.
func Save(store storage.Provider, folder, name, sourceURL string, a *Asset) (string, error) {
	if len(a.Data) > MaxSize {
		return "", fmt.Errorf("file too large: %d bytes (max %d): %w", len(a.Data), MaxSize, apperr.ErrInvalid)
	}
	if name == "" {
		name = FilenameFromURL(sourceURL, a.Ext)
	}
	name = SanitizeFilename(name)

	ext := strings.ToLower(path.Ext(name))
	if !allowedExtensions[ext] {
		return "", fmt.Errorf("unsupported file extension %q (allowed: png, jpg, jpeg, gif, webp, svg): %w", ext, apperr.ErrInvalid)
	}
	if err := validateMagicBytes(a.Data, ext); err != nil {
		return "", err
	}

	folder = strings.Trim(folder, "/")
	stem := strings.TrimSuffix(name, path.Ext(name))
	target := path.Join(folder, name)
	for i := 1; store.Exists(target); i++ {
		if i > 999 {
			return "", fmt.Errorf("%s: %w", target, apperr.ErrAlreadyExists)
		}
		target = path.Join(folder, fmt.Sprintf("%s-%d%s", stem, i, path.Ext(name)))
	}

	if err := store.Write(target, a.Data); err != nil {
		return "", fmt.Errorf("asset: save %s: %w", target, err)
	}
	return target, nil
}
