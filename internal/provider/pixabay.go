package provider

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
)

type pixabayResponse struct {
	Hits []struct {
		WebformatURL  string `json:"webformatURL"`
		LargeImageURL string `json:"largeImageURL"`
	} `json:"hits"`
}

// PixabayClient searches pixabay.com.
type PixabayClient struct {
	creds Credentials
	cfg   Config
	hc    *http.Client
}

// NewPixabay creates a Pixabay client.
func NewPixabay(creds Credentials, cfg Config, hc *http.Client) *PixabayClient {
	return &PixabayClient{creds: creds, cfg: cfg, hc: hc}
}

func (c *PixabayClient) Name() string     { return Pixabay }
func (c *PixabayClient) Configured() bool { return c.creds.APIKey != "" }

func (c *PixabayClient) Search(ctx context.Context, keyword string) ([]string, error) {
	q := url.Values{}
	q.Set("key", c.creds.APIKey)
	q.Set("q", keyword)
	q.Set("image_type", "photo")
	q.Set("safesearch", "true")
	q.Set("per_page", strconv.Itoa(c.cfg.PerPage))
	switch c.cfg.Orientation {
	case "landscape":
		q.Set("orientation", "horizontal")
	case "portrait":
		q.Set("orientation", "vertical")
	}

	var resp pixabayResponse
	if err := getJSON(ctx, c.hc, endpoint(c.creds.BaseURL, "https://pixabay.com", "/api/", q), nil, &resp); err != nil {
		return nil, err
	}
	var out []string
	for _, h := range resp.Hits {
		u := h.LargeImageURL
		if c.cfg.ImageSize == SizeSmall || u == "" {
			u = h.WebformatURL
		}
		if u != "" {
			out = append(out, u)
		}
	}
	return out, nil
}
