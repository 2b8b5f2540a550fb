// Package worker runs the lead pipeline: it claims queued runs, searches
// each industry, filters and scores candidates, and persists unique
// leads. The scheduler half enforces the concurrency and timeout
// guardrails and promotes queued runs into free slots.
package worker

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/vendmatch/leadgen-cli/internal/geo"
	"github.com/vendmatch/leadgen-cli/internal/lead"
	"github.com/vendmatch/leadgen-cli/internal/model"
	"github.com/vendmatch/leadgen-cli/internal/search"
	"github.com/vendmatch/leadgen-cli/internal/store"
	"github.com/vendmatch/leadgen-cli/pkg/geocode"
)

const (
	// defaultPerIndustryCap bounds how many leads one industry may
	// contribute, so a crowded first industry cannot starve the rest.
	defaultPerIndustryCap = 200

	// minNameLength rejects junk extraction artifacts.
	minNameLength = 3

	noteGeocodeFailed = "geocode_failed"
)

// Config tunes the orchestrator.
type Config struct {
	// PerIndustryCap overrides defaultPerIndustryCap when positive.
	PerIndustryCap int
}

// Orchestrator processes one run end to end.
type Orchestrator struct {
	store          store.Store
	searcher       search.Searcher
	geocoder       geocode.Client
	perIndustryCap int
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(st store.Store, searcher search.Searcher, geocoder geocode.Client, cfg Config) *Orchestrator {
	perCap := cfg.PerIndustryCap
	if perCap <= 0 {
		perCap = defaultPerIndustryCap
	}
	return &Orchestrator{
		store:          st,
		searcher:       searcher,
		geocoder:       geocoder,
		perIndustryCap: perCap,
	}
}

// ProcessRun claims a queued run and drives it to a terminal state. A
// run already claimed by another worker is skipped without error. All
// progress and status writes go through the store's guarded updates, so
// a run stopped out from under the worker stays stopped.
func (o *Orchestrator) ProcessRun(ctx context.Context, runID string) error {
	log := zap.L().With(zap.String("run_id", runID))

	claimed, err := o.store.MarkRunning(ctx, runID)
	if err != nil {
		return eris.Wrap(err, "worker: claim run")
	}
	if !claimed {
		log.Info("run not claimable, skipping")
		return nil
	}

	run, err := o.store.GetRun(ctx, runID)
	if err != nil {
		return eris.Wrap(err, "worker: load run")
	}

	center, err := o.geocoder.GeocodeCity(ctx, run.City, run.State)
	if err != nil || center == nil {
		if err != nil {
			log.Error("city center geocode failed", zap.Error(err))
		}
		if ferr := o.store.FinishRun(ctx, runID, model.RunStatusFailed, "Could not geocode city center"); ferr != nil {
			return eris.Wrap(ferr, "worker: fail run")
		}
		return nil
	}

	seen := make(map[string]struct{})
	total := 0

	for i, industry := range run.Industries {
		// Re-read status between industries so a stop request lands at
		// the next boundary.
		current, err := o.store.GetRun(ctx, runID)
		if err != nil {
			return eris.Wrap(err, "worker: refresh run")
		}
		if current.Status != model.RunStatusRunning {
			log.Info("run no longer running, stopping work",
				zap.String("status", string(current.Status)))
			return nil
		}

		remaining := run.MaxLeads - total
		if remaining <= 0 {
			break
		}
		// The quota sizes the provider request; accumulation is bounded
		// only by the run's remaining budget, so one rich industry may
		// fill the whole run.
		quota := o.perIndustryCap
		if q := ceilDiv(remaining, len(run.Industries)-i); q < quota {
			quota = q
		}

		if err := o.store.UpdateProgress(ctx, runID, total, fmt.Sprintf("Searching: %s", industry)); err != nil {
			log.Warn("progress update failed", zap.Error(err))
		}

		candidates, err := o.searcher.Search(ctx, industry, run.City, run.State, quota)
		if err != nil {
			if ctx.Err() != nil {
				return eris.Wrap(ctx.Err(), "worker: search")
			}
			// One failed industry does not sink the run.
			log.Warn("industry search failed",
				zap.String("industry", industry), zap.Error(err))
			continue
		}

		leads := o.filterAndScore(ctx, run, center, industry, candidates, seen, remaining)
		inserted, err := o.store.InsertLeads(ctx, leads)
		if err != nil {
			log.Warn("lead insert failed",
				zap.String("industry", industry), zap.Error(err))
			continue
		}
		total += inserted

		log.Info("industry complete",
			zap.String("industry", industry),
			zap.Int("candidates", len(candidates)),
			zap.Int("inserted", inserted),
			zap.Int("total", total))
	}

	message := fmt.Sprintf("Done. %d leads found.", total)
	if err := o.store.UpdateProgress(ctx, runID, total, message); err != nil {
		log.Warn("final progress update failed", zap.Error(err))
	}
	if err := o.store.FinishRun(ctx, runID, model.RunStatusDone, message); err != nil {
		return eris.Wrap(err, "worker: finish run")
	}
	return nil
}

// filterAndScore turns raw candidates into scored, deduplicated, in-radius
// leads, at most budget of them (the run's remaining lead allowance).
func (o *Orchestrator) filterAndScore(ctx context.Context, run *model.Run, center *geocode.Point, industry string, candidates []model.Candidate, seen map[string]struct{}, budget int) []model.Lead {
	log := zap.L().With(zap.String("run_id", run.ID), zap.String("industry", industry))

	var leads []model.Lead
	for _, c := range candidates {
		if len(leads) >= budget {
			break
		}

		name := strings.TrimSpace(c.BusinessName)
		if len(name) < minNameLength {
			continue
		}

		key := lead.DedupeKey(name, c.Website, c.Phone, c.Zip)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		l := model.Lead{
			RunID:        run.ID,
			Industry:     industry,
			BusinessName: name,
			Address:      c.Address,
			City:         c.City,
			State:        c.State,
			Zip:          c.Zip,
			Phone:        c.Phone,
			Website:      c.Website,
			SourceURL:    c.SourceURL,
			DedupeKey:    key,
		}

		distance, located := o.locate(ctx, c, center)
		switch {
		case located:
			if distance > run.RadiusMiles {
				continue
			}
			d := distance
			l.DistanceMiles = &d
		default:
			// Without coordinates, keep the candidate only when its
			// stated city or state matches the target area.
			if !strings.EqualFold(c.City, run.City) && !strings.EqualFold(c.State, run.State) {
				continue
			}
			l.Notes = noteGeocodeFailed
		}

		l.Confidence = lead.Confidence(lead.Signals{
			AddressParsed:  c.Address != "",
			PhonePresent:   c.Phone != "",
			WebsitePresent: c.Website != "",
			WithinRadius:   located,
			DirectoryOnly:  c.IsDirectory,
		})

		leads = append(leads, l)
	}

	if len(candidates) > 0 {
		log.Debug("filtered candidates",
			zap.Int("in", len(candidates)), zap.Int("out", len(leads)))
	}
	return leads
}

// locate returns the candidate's distance from the run center and
// whether coordinates could be determined.
func (o *Orchestrator) locate(ctx context.Context, c model.Candidate, center *geocode.Point) (float64, bool) {
	if c.Lat != nil && c.Lng != nil {
		return geo.Haversine(center.Lat, center.Lng, *c.Lat, *c.Lng), true
	}
	if c.Address == "" && c.City == "" {
		return 0, false
	}

	pt, err := o.geocoder.Geocode(ctx, c.Address, c.City, c.State)
	if err != nil || pt == nil {
		if err != nil {
			zap.L().Debug("candidate geocode failed",
				zap.String("address", c.Address),
				zap.String("city", c.City), zap.Error(err))
		}
		return 0, false
	}
	return geo.Haversine(center.Lat, center.Lng, pt.Lat, pt.Lng), true
}

func ceilDiv(a, b int) int {
	if b <= 0 {
		return a
	}
	return (a + b - 1) / b
}
