package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

type flickrResponse struct {
	Stat    string `json:"stat"`
	Message string `json:"message"`
	Photos  struct {
		Photo []struct {
			ID     string `json:"id"`
			Secret string `json:"secret"`
			Server string `json:"server"`
		} `json:"photo"`
	} `json:"photos"`
}

// FlickrClient searches the Flickr REST API.
type FlickrClient struct {
	creds Credentials
	cfg   Config
	hc    *http.Client
}

// NewFlickr creates a Flickr client.
func NewFlickr(creds Credentials, cfg Config, hc *http.Client) *FlickrClient {
	return &FlickrClient{creds: creds, cfg: cfg, hc: hc}
}

func (c *FlickrClient) Name() string     { return Flickr }
func (c *FlickrClient) Configured() bool { return c.creds.APIKey != "" }

func (c *FlickrClient) Search(ctx context.Context, keyword string) ([]string, error) {
	q := url.Values{}
	q.Set("method", "flickr.photos.search")
	q.Set("api_key", c.creds.APIKey)
	q.Set("text", keyword)
	q.Set("format", "json")
	q.Set("nojsoncallback", "1")
	q.Set("sort", "relevance")
	q.Set("content_type", "1")
	q.Set("media", "photos")
	q.Set("safe_search", "1")
	q.Set("per_page", strconv.Itoa(c.cfg.PerPage))
	if c.cfg.Orientation != "" {
		q.Set("orientation", c.cfg.Orientation)
	}

	var resp flickrResponse
	if err := getJSON(ctx, c.hc, endpoint(c.creds.BaseURL, "https://api.flickr.com", "/services/rest/", q), nil, &resp); err != nil {
		return nil, err
	}
	if resp.Stat != "ok" {
		return nil, fmt.Errorf("flickr: %s", resp.Message)
	}
	suffix := "c"
	switch c.cfg.ImageSize {
	case SizeSmall:
		suffix = "z"
	case SizeLarge:
		suffix = "b"
	}
	out := make([]string, 0, len(resp.Photos.Photo))
	for _, p := range resp.Photos.Photo {
		if p.ID == "" || p.Server == "" {
			continue
		}
		out = append(out, fmt.Sprintf("https://live.staticflickr.com/%s/%s_%s_%s.jpg", p.Server, p.ID, p.Secret, suffix))
	}
	return out, nil
}
