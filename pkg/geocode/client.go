// Package geocode resolves addresses to coordinates via Nominatim
// (primary) and Google Geocoding (optional fallback).
package geocode

import (
	"context"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/vendmatch/leadgen-cli/internal/resilience"
)

// Point is a geographic coordinate.
type Point struct {
	Lat float64
	Lng float64
}

// Client resolves addresses and city centers to coordinates. A nil Point
// with a nil error means the location could not be resolved — unmatched
// is not an error.
type Client interface {
	// Geocode resolves a street address (street may be empty).
	Geocode(ctx context.Context, address, city, state string) (*Point, error)
	// GeocodeCity resolves a city/state to its center point.
	GeocodeCity(ctx context.Context, city, state string) (*Point, error)
}

// Provider is a single geocoding backend.
type Provider interface {
	Name() string
	Geocode(ctx context.Context, query string) (*Point, error)
}

// CascadeClient tries providers in order until one returns a match,
// caching both hits and misses in memory.
type CascadeClient struct {
	providers []Provider
	cache     *memoryCache
	retry     resilience.RetryConfig
}

// Option configures the cascade client.
type Option func(*CascadeClient)

// NewClient creates a geocoding client. A Nominatim provider is always
// first; a Google provider is appended when an API key is supplied.
func NewClient(googleAPIKey string, opts ...Option) *CascadeClient {
	hc := &http.Client{Timeout: 20 * time.Second}

	providers := []Provider{NewNominatim(hc)}
	if googleAPIKey != "" {
		providers = append(providers, NewGoogle(googleAPIKey, hc))
	}

	retry := resilience.DefaultRetryConfig()
	retry.MaxAttempts = 2
	retry.InitialBackoff = time.Second

	c := &CascadeClient{
		providers: providers,
		cache:     newMemoryCache(),
		retry:     retry,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithProviders replaces the provider chain (for testing).
func WithProviders(providers ...Provider) Option {
	return func(c *CascadeClient) {
		c.providers = providers
	}
}

// Geocode implements Client.
func (c *CascadeClient) Geocode(ctx context.Context, address, city, state string) (*Point, error) {
	query := joinQuery(address, city, state)
	if query == "" {
		return nil, nil
	}

	if p, hit := c.cache.get(query); hit {
		return p, nil
	}

	for _, provider := range c.providers {
		retryCfg := c.retry
		retryCfg.OnRetry = resilience.RetryLogger(provider.Name(), "geocode")
		p, err := resilience.DoVal(ctx, retryCfg, func(ctx context.Context) (*Point, error) {
			return provider.Geocode(ctx, query)
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			zap.L().Debug("geocode: provider error, trying next",
				zap.String("provider", provider.Name()),
				zap.Error(err),
			)
			continue
		}
		if p != nil {
			c.cache.put(query, p)
			return p, nil
		}
	}

	// All providers missed. Cache the negative result so repeated bad
	// addresses don't burn rate-limited calls.
	c.cache.put(query, nil)
	return nil, nil
}

// GeocodeCity implements Client.
func (c *CascadeClient) GeocodeCity(ctx context.Context, city, state string) (*Point, error) {
	return c.Geocode(ctx, "", city, state)
}

func joinQuery(parts ...string) string {
	var kept []string
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			kept = append(kept, s)
		}
	}
	return strings.Join(kept, ", ")
}
