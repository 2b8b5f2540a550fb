package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/vendmatch/leadgen-cli/internal/scrape"
	"github.com/vendmatch/leadgen-cli/internal/search"
	"github.com/vendmatch/leadgen-cli/internal/store"
	"github.com/vendmatch/leadgen-cli/internal/worker"
	"github.com/vendmatch/leadgen-cli/pkg/apify"
	"github.com/vendmatch/leadgen-cli/pkg/firecrawl"
	"github.com/vendmatch/leadgen-cli/pkg/geocode"
	"github.com/vendmatch/leadgen-cli/pkg/jina"
	"github.com/vendmatch/leadgen-cli/pkg/places"
)

// pipelineEnv wires the store, searcher, and worker for a command.
type pipelineEnv struct {
	Store store.Store
	Orch  *worker.Orchestrator
}

func (e *pipelineEnv) Close() {
	_ = e.Store.Close()
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		path := cfg.Store.SQLitePath
		if path == "" {
			path = "leadgen.db"
		}
		return store.NewSQLite(path)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, cfg.Store.Pool)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

func initGeocoder() geocode.Client {
	return geocode.NewClient(cfg.Geocode.GoogleKey)
}

func initSearcher() (search.Searcher, error) {
	switch cfg.Search.Strategy {
	case "places":
		if cfg.Places.Key == "" {
			return nil, eris.New("places API key is required (LEADGEN_PLACES_KEY)")
		}
		return search.NewPlacesSearcher(places.NewClient(cfg.Places.Key)), nil
	case "web":
		jinaOpts := []jina.Option{}
		if cfg.Jina.BaseURL != "" {
			jinaOpts = append(jinaOpts, jina.WithBaseURL(cfg.Jina.BaseURL))
		}
		if cfg.Jina.SearchBaseURL != "" {
			jinaOpts = append(jinaOpts, jina.WithSearchBaseURL(cfg.Jina.SearchBaseURL))
		}
		jc := jina.NewClient(cfg.Jina.Key, jinaOpts...)

		scrapers := []scrape.Scraper{scrape.NewJinaAdapter(jc)}
		if cfg.Firecrawl.Key != "" {
			fcOpts := []firecrawl.Option{}
			if cfg.Firecrawl.BaseURL != "" {
				fcOpts = append(fcOpts, firecrawl.WithBaseURL(cfg.Firecrawl.BaseURL))
			}
			scrapers = append(scrapers,
				scrape.NewFirecrawlAdapter(firecrawl.NewClient(cfg.Firecrawl.Key, fcOpts...)))
		}
		chain := scrape.NewChain(scrapers...)

		return search.NewWebSearcher(jc, chain, cfg.Search.RatePerSecond), nil
	default:
		return nil, eris.Errorf("unsupported search strategy: %s", cfg.Search.Strategy)
	}
}

func initPipeline(ctx context.Context) (*pipelineEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}

	searcher, err := initSearcher()
	if err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}

	orch := worker.NewOrchestrator(st, searcher, initGeocoder(), worker.Config{
		PerIndustryCap: cfg.Worker.PerIndustryCap,
	})

	return &pipelineEnv{Store: st, Orch: orch}, nil
}

// initScheduler builds the scheduler over an environment. Runs promote
// onto the given launcher; an Apify aborter is attached when configured.
func initScheduler(st store.Store, launcher worker.Launcher) *worker.Scheduler {
	var aborter worker.Aborter
	if cfg.Apify.Token != "" {
		aborter = apify.NewClient(cfg.Apify.Token)
	}
	return worker.NewScheduler(st, launcher, aborter, worker.SchedulerConfig{
		MaxConcurrent: cfg.Worker.MaxConcurrent,
		RunTimeout:    time.Duration(cfg.Worker.RunTimeoutMins) * time.Minute,
	})
}

// initLauncher picks the launcher: Apify actor when configured, local
// worker group otherwise.
func initLauncher(ctx context.Context, env *pipelineEnv) (worker.Launcher, *worker.LocalLauncher) {
	if cfg.Apify.Token != "" && cfg.Apify.ActorID != "" {
		return worker.NewApifyLauncher(apify.NewClient(cfg.Apify.Token), env.Store, cfg.Apify.ActorID), nil
	}
	local := worker.NewLocalLauncher(ctx, env.Orch, cfg.Worker.MaxConcurrent)
	return local, local
}
