package search

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/vendmatch/leadgen-cli/internal/extract"
	"github.com/vendmatch/leadgen-cli/internal/model"
	"github.com/vendmatch/leadgen-cli/internal/scrape"
	"github.com/vendmatch/leadgen-cli/pkg/jina"
)

const (
	// resultsPerQuery bounds how many search hits are scraped per query.
	resultsPerQuery = 10

	// maxFollowScrapes bounds supplementary contact/about page fetches
	// per result page.
	maxFollowScrapes = 2
)

// PageScraper fetches one URL as markdown. Satisfied by *scrape.Chain.
type PageScraper interface {
	Scrape(ctx context.Context, url string) (*scrape.Result, error)
}

// WebSearcher discovers candidates via generic web search, scraping each
// result page and extracting business records from its markdown.
type WebSearcher struct {
	searcher jina.Client
	scraper  PageScraper
	limiter  *rate.Limiter
}

// NewWebSearcher creates a WebSearcher. rps limits search API calls.
func NewWebSearcher(searcher jina.Client, scraper PageScraper, rps float64) *WebSearcher {
	if rps <= 0 {
		rps = 1
	}
	return &WebSearcher{
		searcher: searcher,
		scraper:  scraper,
		limiter:  rate.NewLimiter(rate.Limit(rps), 1),
	}
}

// Name implements Searcher.
func (w *WebSearcher) Name() string { return "web" }

// Search implements Searcher.
func (w *WebSearcher) Search(ctx context.Context, industry, city, state string, max int) ([]model.Candidate, error) {
	log := zap.L().With(
		zap.String("searcher", "web"),
		zap.String("industry", industry),
	)

	var candidates []model.Candidate

	for _, query := range Queries(industry, city, state) {
		if len(candidates) >= max {
			break
		}
		if ctx.Err() != nil {
			return candidates, ctx.Err()
		}

		if err := w.limiter.Wait(ctx); err != nil {
			return candidates, err
		}

		resp, err := w.searcher.Search(ctx, query)
		if err != nil {
			log.Warn("web search failed", zap.String("query", query), zap.Error(err))
			continue
		}
		if len(resp.Data) == 0 {
			log.Debug("web search returned no results", zap.String("query", query))
			continue
		}

		results := resp.Data
		if len(results) > resultsPerQuery {
			results = results[:resultsPerQuery]
		}

		for _, result := range results {
			if len(candidates) >= max {
				break
			}
			if result.URL == "" {
				continue
			}

			extracted, err := w.scrapeAndExtract(ctx, result.URL, city, state)
			if err != nil {
				log.Debug("scrape failed", zap.String("url", result.URL), zap.Error(err))
				continue
			}
			candidates = append(candidates, extracted...)
		}
	}

	if len(candidates) > max {
		candidates = candidates[:max]
	}
	return candidates, nil
}

// scrapeAndExtract fetches one result page, extracts its candidates, and
// enriches them with up to two same-host contact/about pages.
func (w *WebSearcher) scrapeAndExtract(ctx context.Context, pageURL, city, state string) ([]model.Candidate, error) {
	res, err := w.scraper.Scrape(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	if res.Page.Markdown == "" {
		return nil, nil
	}

	candidates := extract.Leads(res.Page.Markdown, pageURL, city, state)

	followURLs := extract.FollowLinks(res.Page.Markdown, pageURL)
	if len(followURLs) > maxFollowScrapes {
		followURLs = followURLs[:maxFollowScrapes]
	}

	var extra string
	for _, fu := range followURLs {
		followRes, err := w.scraper.Scrape(ctx, fu)
		if err != nil {
			// Follow pages are best-effort enrichment.
			continue
		}
		if followRes.Page.Markdown != "" {
			extra += "\n" + followRes.Page.Markdown
		}
	}
	if extra != "" {
		candidates = append(candidates, extract.Leads(extra, pageURL, city, state)...)
	}

	return candidates, nil
}
