package provider

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
)

type pexelsPhoto struct {
	Src struct {
		Original string `json:"original"`
		Large2x  string `json:"large2x"`
		Large    string `json:"large"`
		Medium   string `json:"medium"`
	} `json:"src"`
}

type pexelsResponse struct {
	Photos []pexelsPhoto `json:"photos"`
}

// PexelsClient searches api.pexels.com.
type PexelsClient struct {
	creds Credentials
	cfg   Config
	hc    *http.Client
}

// NewPexels creates a Pexels client.
func NewPexels(creds Credentials, cfg Config, hc *http.Client) *PexelsClient {
	return &PexelsClient{creds: creds, cfg: cfg, hc: hc}
}

func (c *PexelsClient) Name() string     { return Pexels }
func (c *PexelsClient) Configured() bool { return c.creds.APIKey != "" }

func (c *PexelsClient) Search(ctx context.Context, keyword string) ([]string, error) {
	q := url.Values{}
	q.Set("query", keyword)
	q.Set("per_page", strconv.Itoa(c.cfg.PerPage))
	if c.cfg.Orientation != "" {
		q.Set("orientation", c.cfg.Orientation)
	}
	h := http.Header{}
	h.Set("Authorization", c.creds.APIKey)

	var resp pexelsResponse
	if err := getJSON(ctx, c.hc, endpoint(c.creds.BaseURL, "https://api.pexels.com", "/v1/search", q), h, &resp); err != nil {
		return nil, err
	}
	var out []string
	for _, p := range resp.Photos {
		u := p.Src.Large
		switch c.cfg.ImageSize {
		case SizeSmall:
			u = p.Src.Medium
		case SizeLarge:
			u = p.Src.Large2x
		}
		if u == "" {
			u = p.Src.Original
		}
		if u != "" {
			out = append(out, u)
		}
	}
	return out, nil
}
