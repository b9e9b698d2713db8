package provider

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
)

type unsplashResponse struct {
	Results []struct {
		URLs struct {
			Full    string `json:"full"`
			Regular string `json:"regular"`
			Small   string `json:"small"`
		} `json:"urls"`
	} `json:"results"`
}

// UnsplashClient searches api.unsplash.com.
type UnsplashClient struct {
	creds Credentials
	cfg   Config
	hc    *http.Client
}

// NewUnsplash creates an Unsplash client.
func NewUnsplash(creds Credentials, cfg Config, hc *http.Client) *UnsplashClient {
	return &UnsplashClient{creds: creds, cfg: cfg, hc: hc}
}

func (c *UnsplashClient) Name() string     { return Unsplash }
func (c *UnsplashClient) Configured() bool { return c.creds.APIKey != "" }

func (c *UnsplashClient) Search(ctx context.Context, keyword string) ([]string, error) {
	q := url.Values{}
	q.Set("query", keyword)
	q.Set("per_page", strconv.Itoa(c.cfg.PerPage))
	switch c.cfg.Orientation {
	case "square":
		q.Set("orientation", "squarish")
	case "landscape", "portrait":
		q.Set("orientation", c.cfg.Orientation)
	}
	h := http.Header{}
	h.Set("Authorization", "Client-ID "+c.creds.APIKey)
	h.Set("Accept-Version", "v1")

	var resp unsplashResponse
	if err := getJSON(ctx, c.hc, endpoint(c.creds.BaseURL, "https://api.unsplash.com", "/search/photos", q), h, &resp); err != nil {
		return nil, err
	}
	var out []string
	for _, r := range resp.Results {
		u := r.URLs.Regular
		switch c.cfg.ImageSize {
		case SizeSmall:
			u = r.URLs.Small
		case SizeLarge:
			u = r.URLs.Full
		}
		if u != "" {
			out = append(out, u)
		}
	}
	return out, nil
}
