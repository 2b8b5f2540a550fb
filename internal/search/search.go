// Package search discovers candidate businesses for an industry and
// location. Two interchangeable strategies exist: generic web search
// plus scrape-and-extract, and a structured places API that returns
// business records directly.
package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/vendmatch/leadgen-cli/internal/model"
)

// Searcher finds candidate leads for one industry around a location.
// Implementations return at most max candidates; the orchestrator
// enforces the global run cap on top.
type Searcher interface {
	Search(ctx context.Context, industry, city, state string, max int) ([]model.Candidate, error)
	Name() string
}

// Queries returns the paraphrased web-search queries for an industry and
// location.
func Queries(industry, city, state string) []string {
	loc := fmt.Sprintf("%s, %s", city, state)
	base := strings.ToLower(industry)
	return []string{
		fmt.Sprintf("%s in %s", base, loc),
		fmt.Sprintf("%s companies %s", base, loc),
		fmt.Sprintf("%s businesses near %s", base, loc),
		fmt.Sprintf("best %s %s", base, loc),
		fmt.Sprintf("%s services %s directory", base, loc),
		fmt.Sprintf("top %s %s list", base, loc),
	}
}
