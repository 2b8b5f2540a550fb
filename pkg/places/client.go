// Package places provides a client for the Google Places Text Search API.
package places

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
)

const defaultBaseURL = "https://places.googleapis.com/v1"

// fieldMask lists the place fields the pipeline consumes.
const fieldMask = "places.id,places.displayName,places.formattedAddress," +
	"places.addressComponents,places.nationalPhoneNumber,places.websiteUri," +
	"places.location,places.rating,places.userRatingCount,places.businessStatus"

// Client performs Google Places API operations.
type Client interface {
	TextSearch(ctx context.Context, req TextSearchRequest) (*TextSearchResponse, error)
}

// TextSearchRequest is the body for places:searchText.
type TextSearchRequest struct {
	TextQuery      string `json:"textQuery"`
	MaxResultCount int    `json:"maxResultCount,omitempty"`
}

// TextSearchResponse is the response from places:searchText.
type TextSearchResponse struct {
	Places []Place `json:"places"`
}

// Place represents a place returned by the API.
type Place struct {
	ID                  string             `json:"id"`
	DisplayName         DisplayName        `json:"displayName"`
	FormattedAddress    string             `json:"formattedAddress"`
	AddressComponents   []AddressComponent `json:"addressComponents"`
	NationalPhoneNumber string             `json:"nationalPhoneNumber"`
	WebsiteURI          string             `json:"websiteUri"`
	Location            *LatLng            `json:"location"`
	Rating              float64            `json:"rating"`
	UserRatingCount     int                `json:"userRatingCount"`
	BusinessStatus      string             `json:"businessStatus"`
}

// PermanentlyClosed reports whether the place is flagged as closed for good.
func (p Place) PermanentlyClosed() bool {
	return p.BusinessStatus == "CLOSED_PERMANENTLY"
}

// DisplayName holds the place's display name.
type DisplayName struct {
	Text string `json:"text"`
}

// AddressComponent is one structured piece of a place's address.
type AddressComponent struct {
	LongText  string   `json:"longText"`
	ShortText string   `json:"shortText"`
	Types     []string `json:"types"`
}

// LatLng is a geographic coordinate.
type LatLng struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewClient creates a Google Places API client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) TextSearch(ctx context.Context, searchReq TextSearchRequest) (*TextSearchResponse, error) {
	body, err := json.Marshal(searchReq)
	if err != nil {
		return nil, eris.Wrap(err, "places: marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/places:searchText", bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "places: create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Goog-Api-Key", c.apiKey)
	req.Header.Set("X-Goog-FieldMask", fieldMask)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "places: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "places: read response")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("places: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	var result TextSearchResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, eris.Wrap(err, "places: unmarshal response")
	}
	return &result, nil
}
