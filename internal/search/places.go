package search

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/vendmatch/leadgen-cli/internal/model"
	"github.com/vendmatch/leadgen-cli/pkg/places"
)

// PlacesSearcher discovers candidates via the Google Places Text Search
// API. Places results come pre-structured with coordinates, so no
// scraping or extraction is needed.
type PlacesSearcher struct {
	client places.Client
}

// NewPlacesSearcher creates a PlacesSearcher.
func NewPlacesSearcher(client places.Client) *PlacesSearcher {
	return &PlacesSearcher{client: client}
}

// Name implements Searcher.
func (p *PlacesSearcher) Name() string { return "places" }

// Search implements Searcher.
func (p *PlacesSearcher) Search(ctx context.Context, industry, city, state string, max int) ([]model.Candidate, error) {
	resp, err := p.client.TextSearch(ctx, places.TextSearchRequest{
		TextQuery:      fmt.Sprintf("%s in %s, %s", industry, city, state),
		MaxResultCount: max,
	})
	if err != nil {
		return nil, eris.Wrap(err, "search: places text search")
	}

	candidates := make([]model.Candidate, 0, len(resp.Places))
	for _, place := range resp.Places {
		if place.DisplayName.Text == "" {
			continue
		}
		if place.PermanentlyClosed() {
			zap.L().Debug("skipping permanently closed place",
				zap.String("name", place.DisplayName.Text))
			continue
		}

		addr := place.Address()
		c := model.Candidate{
			BusinessName: place.DisplayName.Text,
			Address:      addr.Street,
			City:         addr.City,
			State:        addr.State,
			Zip:          addr.Zip,
			Phone:        place.NationalPhoneNumber,
			Website:      place.WebsiteURI,
			SourceURL:    "https://places.googleapis.com/" + place.ID,
		}
		if c.Address == "" {
			c.Address = place.FormattedAddress
		}
		if place.Location != nil {
			lat, lng := place.Location.Latitude, place.Location.Longitude
			c.Lat, c.Lng = &lat, &lng
		}
		candidates = append(candidates, c)

		if len(candidates) >= max {
			break
		}
	}
	return candidates, nil
}
