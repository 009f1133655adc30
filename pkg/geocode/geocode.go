// Package geocode wraps the Nominatim reverse geocoding HTTP API.
package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client calls the Nominatim reverse geocoding endpoint.
type Client struct {
	endpoint   string
	userAgent  string
	httpClient *http.Client
}

// NewClient creates a geocoding client. Nominatim's usage policy requires a
// descriptive User-Agent.
func NewClient(endpoint, userAgent string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		endpoint:  endpoint,
		userAgent: userAgent,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Place is the subset of the reverse geocoding response we use.
type Place struct {
	DisplayName string `json:"display_name"`
	Address     struct {
		Suburb  string `json:"suburb"`
		City    string `json:"city"`
		Town    string `json:"town"`
		Village string `json:"village"`
		County  string `json:"county"`
		State   string `json:"state"`
	} `json:"address"`
}

// Region picks the most specific locality name available.
func (p *Place) Region() string {
	for _, v := range []string{p.Address.Suburb, p.Address.City, p.Address.Town, p.Address.Village, p.Address.County, p.Address.State} {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// Reverse resolves coordinates into a place description. Returns an error on
// network failure or a non-200 response; callers treat geocoding as
// best-effort.
func (c *Client) Reverse(ctx context.Context, lat, lon float64) (*Place, error) {
	q := url.Values{}
	q.Set("lat", fmt.Sprintf("%.6f", lat))
	q.Set("lon", fmt.Sprintf("%.6f", lon))
	q.Set("format", "jsonv2")
	q.Set("zoom", "14")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build geocode request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("geocode request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("geocode status %d: %s", resp.StatusCode, string(body))
	}

	var place Place
	if err := json.NewDecoder(resp.Body).Decode(&place); err != nil {
		return nil, fmt.Errorf("decode geocode response: %w", err)
	}

	return &place, nil
}
