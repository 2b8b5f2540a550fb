package geocode

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/vendmatch/leadgen-cli/internal/resilience"
)

const nominatimBaseURL = "https://nominatim.openstreetmap.org"

// userAgent identifies the client to Nominatim per its usage policy.
const userAgent = "leadgen-cli/1.0"

// Nominatim geocodes via the OpenStreetMap Nominatim API. The usage
// policy allows at most one request per second, enforced by the limiter.
type Nominatim struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewNominatim creates a Nominatim provider.
func NewNominatim(hc *http.Client) *Nominatim {
	return &Nominatim{
		baseURL: nominatimBaseURL,
		http:    hc,
		limiter: rate.NewLimiter(rate.Limit(1), 1),
	}
}

// SetBaseURL overrides the API endpoint (for testing).
func (n *Nominatim) SetBaseURL(u string) { n.baseURL = u }

// Name implements Provider.
func (n *Nominatim) Name() string { return "nominatim" }

type nominatimResult struct {
	Lat string `json:"lat"`
	Lon string `json:"lon"`
}

// Geocode implements Provider. A miss returns (nil, nil).
func (n *Nominatim) Geocode(ctx context.Context, query string) (*Point, error) {
	if err := n.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "nominatim: rate limit wait")
	}

	reqURL := n.baseURL + "/search?format=json&limit=1&q=" + url.QueryEscape(query)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "nominatim: create request")
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := n.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "nominatim: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "nominatim: read response")
	}
	if resp.StatusCode != http.StatusOK {
		err := eris.Errorf("nominatim: unexpected status %d: %s", resp.StatusCode, string(body))
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(err, resp.StatusCode)
		}
		return nil, err
	}

	var results []nominatimResult
	if err := json.Unmarshal(body, &results); err != nil {
		return nil, eris.Wrap(err, "nominatim: unmarshal response")
	}
	if len(results) == 0 {
		return nil, nil
	}

	lat, err := strconv.ParseFloat(results[0].Lat, 64)
	if err != nil {
		return nil, eris.Wrap(err, "nominatim: parse lat")
	}
	lng, err := strconv.ParseFloat(results[0].Lon, 64)
	if err != nil {
		return nil, eris.Wrap(err, "nominatim: parse lon")
	}

	return &Point{Lat: lat, Lng: lng}, nil
}
