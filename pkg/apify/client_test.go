package apify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartActor(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/acts/acme~lead-worker/runs", r.URL.Path)
		assert.Equal(t, "secret", r.URL.Query().Get("token"))

		var input map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&input))
		assert.Equal(t, "run-1", input["runId"])

		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"data":{"id":"job-42","status":"RUNNING"}}`)
	}))
	defer srv.Close()

	c := NewClient("secret", WithBaseURL(srv.URL))
	id, err := c.StartActor(context.Background(), "acme~lead-worker", map[string]string{"runId": "run-1"})
	require.NoError(t, err)
	assert.Equal(t, "job-42", id)
}

func TestStartActorErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":{"type":"token-not-found"}}`)
	}))
	defer srv.Close()

	c := NewClient("bad", WithBaseURL(srv.URL))
	_, err := c.StartActor(context.Background(), "acme~lead-worker", nil)
	assert.Error(t, err)
}

func TestAbortRun(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/actor-runs/job-42/abort", r.URL.Path)
		fmt.Fprint(w, `{"data":{"id":"job-42","status":"ABORTING"}}`)
	}))
	defer srv.Close()

	c := NewClient("secret", WithBaseURL(srv.URL))
	assert.NoError(t, c.AbortRun(context.Background(), "job-42"))
}

func TestAbortRunErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient("secret", WithBaseURL(srv.URL))
	assert.Error(t, c.AbortRun(context.Background(), "nope"))
}
