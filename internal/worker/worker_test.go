package worker

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vendmatch/leadgen-cli/internal/model"
	"github.com/vendmatch/leadgen-cli/internal/store"
	"github.com/vendmatch/leadgen-cli/pkg/geocode"
)

// Denver city center, used as the run target in these tests.
var denver = &geocode.Point{Lat: 39.7392, Lng: -104.9903}

// nearDenver is well inside a 25 mile radius; farAway is New York.
var (
	nearLat, nearLng = 39.75, -104.99
	farLat, farLng   = 40.7128, -74.0060
)

type fakeSearcher struct {
	byIndustry map[string][]model.Candidate
	errs       map[string]error
	maxSeen    map[string]int
	onSearch   func(industry string)
}

func (f *fakeSearcher) Name() string { return "fake" }

func (f *fakeSearcher) Search(_ context.Context, industry, _, _ string, max int) ([]model.Candidate, error) {
	if f.maxSeen == nil {
		f.maxSeen = make(map[string]int)
	}
	f.maxSeen[industry] = max
	if f.onSearch != nil {
		f.onSearch(industry)
	}
	if err, ok := f.errs[industry]; ok {
		return nil, err
	}
	return f.byIndustry[industry], nil
}

type fakeGeocoder struct {
	center    *geocode.Point
	centerErr error
	points    map[string]*geocode.Point
}

func (f *fakeGeocoder) GeocodeCity(_ context.Context, _, _ string) (*geocode.Point, error) {
	return f.center, f.centerErr
}

func (f *fakeGeocoder) Geocode(_ context.Context, address, city, _ string) (*geocode.Point, error) {
	if p, ok := f.points[address]; ok {
		return p, nil
	}
	return f.points[city], nil
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "worker.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func newRun(t *testing.T, st store.Store, maxLeads int, industries ...string) *model.Run {
	t.Helper()
	run, err := st.CreateRun(context.Background(), model.RunInput{
		City:        "Denver",
		State:       "CO",
		RadiusMiles: 25,
		MaxLeads:    maxLeads,
		Industries:  industries,
	})
	require.NoError(t, err)
	return run
}

func candidate(name string, lat, lng float64) model.Candidate {
	return model.Candidate{
		BusinessName: name,
		Address:      "123 Main St",
		City:         "Denver",
		State:        "CO",
		Zip:          "80202",
		Phone:        "(303) 555-0101",
		Website:      "https://" + name + ".example.com",
		Lat:          &lat,
		Lng:          &lng,
	}
}

func TestProcessRun_HappyPath(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	run := newRun(t, st, 100, "vending machines", "coffee services")

	searcher := &fakeSearcher{byIndustry: map[string][]model.Candidate{
		"vending machines": {
			candidate("acmevending", nearLat, nearLng),
			candidate("summitsnacks", nearLat, nearLng),
		},
		"coffee services": {
			candidate("peakcoffee", nearLat, nearLng),
		},
	}}
	orch := NewOrchestrator(st, searcher, &fakeGeocoder{center: denver}, Config{})

	require.NoError(t, orch.ProcessRun(ctx, run.ID))

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusDone, got.Status)
	assert.Equal(t, 3, got.Progress.Total)
	assert.Equal(t, "Done. 3 leads found.", got.Progress.Message)
	require.NotNil(t, got.StartedAt)

	leads, err := st.ListLeads(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, leads, 3)
	for _, l := range leads {
		// Address, phone, website, and in-radius all present.
		assert.InDelta(t, 1.0, l.Confidence, 0.001)
		require.NotNil(t, l.DistanceMiles)
		assert.Less(t, *l.DistanceMiles, 25.0)
		assert.Empty(t, l.Notes)
	}
}

func TestProcessRun_CityGeocodeFails(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	run := newRun(t, st, 100, "vending machines")

	searcher := &fakeSearcher{}
	orch := NewOrchestrator(st, searcher, &fakeGeocoder{center: nil}, Config{})

	require.NoError(t, orch.ProcessRun(ctx, run.ID))

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusFailed, got.Status)
	assert.Equal(t, "Could not geocode city center", got.Progress.Message)
	assert.Empty(t, searcher.maxSeen)
}

func TestProcessRun_RadiusFilter(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	run := newRun(t, st, 100, "vending machines")

	searcher := &fakeSearcher{byIndustry: map[string][]model.Candidate{
		"vending machines": {
			candidate("nearco", nearLat, nearLng),
			candidate("farco", farLat, farLng),
		},
	}}
	orch := NewOrchestrator(st, searcher, &fakeGeocoder{center: denver}, Config{})

	require.NoError(t, orch.ProcessRun(ctx, run.ID))

	leads, err := st.ListLeads(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, leads, 1)
	assert.Equal(t, "nearco", leads[0].BusinessName)
}

func TestProcessRun_GeocodeFailureKeepRule(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	run := newRun(t, st, 100, "vending machines")

	// No candidate has coordinates and the geocoder knows none of the
	// addresses: the city/state match decides who stays.
	searcher := &fakeSearcher{byIndustry: map[string][]model.Candidate{
		"vending machines": {
			{BusinessName: "cityco", Address: "1 A St", City: "Denver", State: "XX"},
			{BusinessName: "stateco", Address: "2 B St", City: "Boulder", State: "CO"},
			{BusinessName: "elsewhereco", Address: "3 C St", City: "Phoenix", State: "AZ"},
		},
	}}
	orch := NewOrchestrator(st, searcher, &fakeGeocoder{center: denver}, Config{})

	require.NoError(t, orch.ProcessRun(ctx, run.ID))

	leads, err := st.ListLeads(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, leads, 2)
	names := []string{leads[0].BusinessName, leads[1].BusinessName}
	assert.ElementsMatch(t, []string{"cityco", "stateco"}, names)
	for _, l := range leads {
		assert.Equal(t, "geocode_failed", l.Notes)
		assert.Nil(t, l.DistanceMiles)
	}
}

func TestProcessRun_GeocodedAddressCounts(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	run := newRun(t, st, 100, "vending machines")

	searcher := &fakeSearcher{byIndustry: map[string][]model.Candidate{
		"vending machines": {
			{BusinessName: "lookedupco", Address: "500 Blake St", City: "Denver", State: "CO"},
		},
	}}
	geocoder := &fakeGeocoder{
		center: denver,
		points: map[string]*geocode.Point{
			"500 Blake St": {Lat: nearLat, Lng: nearLng},
		},
	}
	orch := NewOrchestrator(st, searcher, geocoder, Config{})

	require.NoError(t, orch.ProcessRun(ctx, run.ID))

	leads, err := st.ListLeads(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, leads, 1)
	require.NotNil(t, leads[0].DistanceMiles)
	assert.Empty(t, leads[0].Notes)
}

func TestProcessRun_SkipsShortNames(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	run := newRun(t, st, 100, "vending machines")

	searcher := &fakeSearcher{byIndustry: map[string][]model.Candidate{
		"vending machines": {
			{BusinessName: "AB", City: "Denver", State: "CO"},
			{BusinessName: "  x ", City: "Denver", State: "CO"},
			{BusinessName: "Valid Co", City: "Denver", State: "CO"},
		},
	}}
	orch := NewOrchestrator(st, searcher, &fakeGeocoder{center: denver}, Config{})

	require.NoError(t, orch.ProcessRun(ctx, run.ID))

	leads, err := st.ListLeads(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, leads, 1)
	assert.Equal(t, "Valid Co", leads[0].BusinessName)
}

func TestProcessRun_DedupeAcrossIndustries(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	run := newRun(t, st, 100, "vending machines", "snack services")

	// The same business surfaces under both industries with cosmetic
	// differences; it must be stored once.
	acme := candidate("acmevending", nearLat, nearLng)
	acmeAgain := acme
	acmeAgain.Phone = "303.555.0101"
	acmeAgain.BusinessName = "AcmeVending"

	searcher := &fakeSearcher{byIndustry: map[string][]model.Candidate{
		"vending machines": {acme},
		"snack services":   {acmeAgain, candidate("other", nearLat, nearLng)},
	}}
	orch := NewOrchestrator(st, searcher, &fakeGeocoder{center: denver}, Config{})

	require.NoError(t, orch.ProcessRun(ctx, run.ID))

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Progress.Total)

	count, err := st.CountLeads(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestProcessRun_QuotaSplitsRemainingLeads(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	run := newRun(t, st, 10, "alpha", "beta")

	searcher := &fakeSearcher{byIndustry: map[string][]model.Candidate{}}
	orch := NewOrchestrator(st, searcher, &fakeGeocoder{center: denver}, Config{})

	require.NoError(t, orch.ProcessRun(ctx, run.ID))

	// 10 leads over 2 industries: 5 each; nothing found under alpha, so
	// beta may use the full remainder.
	assert.Equal(t, 5, searcher.maxSeen["alpha"])
	assert.Equal(t, 10, searcher.maxSeen["beta"])
}

func TestProcessRun_PerIndustryCap(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	run := newRun(t, st, 1000, "alpha")

	searcher := &fakeSearcher{}
	orch := NewOrchestrator(st, searcher, &fakeGeocoder{center: denver}, Config{PerIndustryCap: 3})

	require.NoError(t, orch.ProcessRun(ctx, run.ID))
	assert.Equal(t, 3, searcher.maxSeen["alpha"])
}

func TestProcessRun_CapNeverExceeded(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	run := newRun(t, st, 2, "vending machines")

	searcher := &fakeSearcher{byIndustry: map[string][]model.Candidate{
		"vending machines": {
			candidate("one", nearLat, nearLng),
			candidate("two", nearLat, nearLng),
			candidate("three", nearLat, nearLng),
		},
	}}
	orch := NewOrchestrator(st, searcher, &fakeGeocoder{center: denver}, Config{})

	require.NoError(t, orch.ProcessRun(ctx, run.ID))

	count, err := st.CountLeads(ctx, run.ID)
	require.NoError(t, err)
	assert.LessOrEqual(t, count, 2)

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.LessOrEqual(t, got.Progress.Total, 2)
}

func TestProcessRun_RichFirstIndustryFillsRun(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	run := newRun(t, st, 10, "alpha", "beta", "gamma")

	// The provider ignores the request size and returns 15 in-radius
	// candidates up front: the run fills to max_leads from alpha alone
	// and the later industries are never searched.
	var alpha []model.Candidate
	for i := 0; i < 15; i++ {
		alpha = append(alpha, candidate(fmt.Sprintf("vendor%02d", i), nearLat, nearLng))
	}
	searcher := &fakeSearcher{byIndustry: map[string][]model.Candidate{"alpha": alpha}}
	orch := NewOrchestrator(st, searcher, &fakeGeocoder{center: denver}, Config{})

	require.NoError(t, orch.ProcessRun(ctx, run.ID))

	count, err := st.CountLeads(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, count)

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusDone, got.Status)
	assert.Equal(t, 10, got.Progress.Total)

	// alpha was asked for its ceil-div share; beta and gamma never ran.
	assert.Equal(t, 4, searcher.maxSeen["alpha"])
	assert.NotContains(t, searcher.maxSeen, "beta")
	assert.NotContains(t, searcher.maxSeen, "gamma")
}

func TestProcessRun_CityOnlyCandidateIsGeocoded(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	run := newRun(t, st, 100, "vending machines")

	// No street address, but the stated city resolves: the lead gets a
	// real distance instead of the geocode-failed fallback.
	searcher := &fakeSearcher{byIndustry: map[string][]model.Candidate{
		"vending machines": {
			{BusinessName: "downtownsnacks", City: "Denver", State: "CO", Phone: "(303) 555-0199"},
		},
	}}
	geocoder := &fakeGeocoder{
		center: denver,
		points: map[string]*geocode.Point{
			"Denver": {Lat: nearLat, Lng: nearLng},
		},
	}
	orch := NewOrchestrator(st, searcher, geocoder, Config{})

	require.NoError(t, orch.ProcessRun(ctx, run.ID))

	leads, err := st.ListLeads(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, leads, 1)
	assert.Empty(t, leads[0].Notes)
	require.NotNil(t, leads[0].DistanceMiles)
	assert.Less(t, *leads[0].DistanceMiles, 25.0)
}

func TestProcessRun_StopsAtIndustryBoundary(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	run := newRun(t, st, 100, "alpha", "beta")

	searcher := &fakeSearcher{byIndustry: map[string][]model.Candidate{
		"alpha": {candidate("alphaco", nearLat, nearLng)},
		"beta":  {candidate("betaco", nearLat, nearLng)},
	}}
	// A stop request lands while alpha is being searched.
	searcher.onSearch = func(industry string) {
		if industry == "alpha" {
			_, err := st.ForceFail(ctx, run.ID, "Stopped by user")
			require.NoError(t, err)
		}
	}
	orch := NewOrchestrator(st, searcher, &fakeGeocoder{center: denver}, Config{})

	require.NoError(t, orch.ProcessRun(ctx, run.ID))

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusFailed, got.Status)
	assert.Equal(t, "Stopped by user", got.Progress.Message)

	// Beta never ran and the terminal message survived the worker.
	_, betaSearched := searcher.maxSeen["beta"]
	assert.False(t, betaSearched)
}

func TestProcessRun_SearchErrorDoesNotSinkRun(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	run := newRun(t, st, 100, "broken", "working")

	searcher := &fakeSearcher{
		errs: map[string]error{"broken": assert.AnError},
		byIndustry: map[string][]model.Candidate{
			"working": {candidate("workingco", nearLat, nearLng)},
		},
	}
	orch := NewOrchestrator(st, searcher, &fakeGeocoder{center: denver}, Config{})

	require.NoError(t, orch.ProcessRun(ctx, run.ID))

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusDone, got.Status)
	assert.Equal(t, 1, got.Progress.Total)
}

func TestProcessRun_NotClaimable(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	run := newRun(t, st, 100, "vending machines")

	claimed, err := st.MarkRunning(ctx, run.ID)
	require.NoError(t, err)
	require.True(t, claimed)

	searcher := &fakeSearcher{}
	orch := NewOrchestrator(st, searcher, &fakeGeocoder{center: denver}, Config{})

	require.NoError(t, orch.ProcessRun(ctx, run.ID))
	assert.Empty(t, searcher.maxSeen)

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusRunning, got.Status)
}
