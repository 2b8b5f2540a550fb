package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vendmatch/leadgen-cli/internal/model"
	"github.com/vendmatch/leadgen-cli/internal/store"
	"github.com/vendmatch/leadgen-cli/internal/worker"
)

type noopLauncher struct {
	launched []string
}

func (n *noopLauncher) Launch(_ context.Context, run model.Run) error {
	n.launched = append(n.launched, run.ID)
	return nil
}

func newTestAPI(t *testing.T) (*apiServer, store.Store, *noopLauncher) {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	launcher := &noopLauncher{}
	sched := worker.NewScheduler(st, launcher, nil, worker.SchedulerConfig{
		MaxConcurrent: 2,
		RunTimeout:    time.Hour,
	})

	return &apiServer{store: st, sched: sched, cronSecret: "hunter2"}, st, launcher
}

func postJSON(t *testing.T, srv *httptest.Server, path string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(srv.URL+path, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	return resp
}

func TestAPI_Health(t *testing.T) {
	api, _, _ := newTestAPI(t)
	srv := httptest.NewServer(api.routes())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAPI_CreateAndGetRun(t *testing.T) {
	api, _, _ := newTestAPI(t)
	srv := httptest.NewServer(api.routes())
	defer srv.Close()

	resp := postJSON(t, srv, "/runs", model.RunInput{
		City:        "Denver",
		State:       "CO",
		RadiusMiles: 25,
		MaxLeads:    100,
		Industries:  []string{"vending machines"},
	})
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created model.Run
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	assert.Equal(t, model.RunStatusQueued, created.Status)

	getResp, err := http.Get(srv.URL + "/runs/" + created.ID)
	require.NoError(t, err)
	defer getResp.Body.Close()
	require.Equal(t, http.StatusOK, getResp.StatusCode)

	var got model.Run
	require.NoError(t, json.NewDecoder(getResp.Body).Decode(&got))
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, "Denver", got.City)
}

func TestAPI_CreateRun_Invalid(t *testing.T) {
	api, _, _ := newTestAPI(t)
	srv := httptest.NewServer(api.routes())
	defer srv.Close()

	resp := postJSON(t, srv, "/runs", model.RunInput{City: "Denver"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_GetRun_NotFound(t *testing.T) {
	api, _, _ := newTestAPI(t)
	srv := httptest.NewServer(api.routes())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/runs/nope")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_StopRun(t *testing.T) {
	api, st, _ := newTestAPI(t)
	srv := httptest.NewServer(api.routes())
	defer srv.Close()

	run, err := st.CreateRun(context.Background(), model.RunInput{
		City: "Denver", State: "CO", RadiusMiles: 25, MaxLeads: 10,
		Industries: []string{"vending machines"},
	})
	require.NoError(t, err)

	resp := postJSON(t, srv, "/runs/"+run.ID+"/stop", nil)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	got, err := st.GetRun(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusFailed, got.Status)
	assert.Equal(t, "Stopped by user", got.Progress.Message)

	// Stopping again conflicts: the run is already terminal.
	resp = postJSON(t, srv, "/runs/"+run.ID+"/stop", nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestAPI_CronPromote(t *testing.T) {
	api, st, launcher := newTestAPI(t)
	srv := httptest.NewServer(api.routes())
	defer srv.Close()

	run, err := st.CreateRun(context.Background(), model.RunInput{
		City: "Denver", State: "CO", RadiusMiles: 25, MaxLeads: 10,
		Industries: []string{"vending machines"},
	})
	require.NoError(t, err)

	// Missing secret is rejected.
	resp := postJSON(t, srv, "/cron/process-runs", nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Empty(t, launcher.launched)

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/cron/process-runs", nil)
	require.NoError(t, err)
	req.Header.Set("X-Cron-Secret", "hunter2")
	authed, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer authed.Body.Close()
	require.Equal(t, http.StatusOK, authed.StatusCode)

	var result worker.CycleResult
	require.NoError(t, json.NewDecoder(authed.Body).Decode(&result))
	assert.Equal(t, []string{run.ID}, result.Triggered)
	assert.Equal(t, []string{run.ID}, launcher.launched)
}

func TestAPI_ListLeads(t *testing.T) {
	api, st, _ := newTestAPI(t)
	srv := httptest.NewServer(api.routes())
	defer srv.Close()

	run, err := st.CreateRun(context.Background(), model.RunInput{
		City: "Denver", State: "CO", RadiusMiles: 25, MaxLeads: 10,
		Industries: []string{"vending machines"},
	})
	require.NoError(t, err)

	_, err = st.InsertLeads(context.Background(), []model.Lead{
		{RunID: run.ID, Industry: "vending machines", BusinessName: "Acme", DedupeKey: "acme"},
	})
	require.NoError(t, err)

	resp, err := http.Get(srv.URL + "/runs/" + run.ID + "/leads")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var leads []model.Lead
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&leads))
	require.Len(t, leads, 1)
	assert.Equal(t, "Acme", leads[0].BusinessName)
}
