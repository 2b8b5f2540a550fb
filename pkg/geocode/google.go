package geocode

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"

	"github.com/rotisserie/eris"

	"github.com/vendmatch/leadgen-cli/internal/resilience"
)

const googleBaseURL = "https://maps.googleapis.com/maps/api/geocode/json"

// Google geocodes via the Google Geocoding API. Used as a fallback when
// Nominatim misses.
type Google struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewGoogle creates a Google geocoding provider.
func NewGoogle(apiKey string, hc *http.Client) *Google {
	return &Google{
		apiKey:  apiKey,
		baseURL: googleBaseURL,
		http:    hc,
	}
}

// SetBaseURL overrides the API endpoint (for testing).
func (g *Google) SetBaseURL(u string) { g.baseURL = u }

// Name implements Provider.
func (g *Google) Name() string { return "google" }

type googleResponse struct {
	Status  string `json:"status"`
	Results []struct {
		Geometry struct {
			Location struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			} `json:"location"`
		} `json:"geometry"`
	} `json:"results"`
}

// Geocode implements Provider. ZERO_RESULTS returns (nil, nil).
func (g *Google) Geocode(ctx context.Context, query string) (*Point, error) {
	reqURL := g.baseURL + "?address=" + url.QueryEscape(query) + "&key=" + url.QueryEscape(g.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "google geocode: create request")
	}

	resp, err := g.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "google geocode: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "google geocode: read response")
	}
	if resp.StatusCode != http.StatusOK {
		err := eris.Errorf("google geocode: unexpected status %d: %s", resp.StatusCode, string(body))
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(err, resp.StatusCode)
		}
		return nil, err
	}

	var parsed googleResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, eris.Wrap(err, "google geocode: unmarshal response")
	}

	if parsed.Status == "ZERO_RESULTS" || len(parsed.Results) == 0 {
		return nil, nil
	}
	if parsed.Status != "OK" {
		return nil, eris.Errorf("google geocode: status %s", parsed.Status)
	}

	loc := parsed.Results[0].Geometry.Location
	return &Point{Lat: loc.Lat, Lng: loc.Lng}, nil
}
