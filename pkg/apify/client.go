// Package apify provides a minimal client for triggering and aborting
// Apify actor runs.
package apify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
)

const defaultBaseURL = "https://api.apify.com/v2"

// Client defines the actor-run operations the scheduler uses.
type Client interface {
	// StartActor starts an actor run with the given JSON input and
	// returns the actor run id.
	StartActor(ctx context.Context, actorID string, input any) (string, error)
	// AbortRun aborts an in-flight actor run.
	AbortRun(ctx context.Context, runID string) error
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = u
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	token   string
	baseURL string
	http    *http.Client
}

// NewClient creates an Apify API client.
func NewClient(token string, opts ...Option) Client {
	c := &httpClient{
		token:   token,
		baseURL: defaultBaseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type actorRunResponse struct {
	Data struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	} `json:"data"`
}

func (c *httpClient) StartActor(ctx context.Context, actorID string, input any) (string, error) {
	body, err := json.Marshal(input)
	if err != nil {
		return "", eris.Wrap(err, "apify: marshal input")
	}

	reqURL := fmt.Sprintf("%s/acts/%s/runs?token=%s", c.baseURL, url.PathEscape(actorID), url.QueryEscape(c.token))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(body))
	if err != nil {
		return "", eris.Wrap(err, "apify: create request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", eris.Wrap(err, "apify: start actor")
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", eris.Wrap(err, "apify: read response")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", eris.Errorf("apify: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	var parsed actorRunResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", eris.Wrap(err, "apify: unmarshal response")
	}
	return parsed.Data.ID, nil
}

func (c *httpClient) AbortRun(ctx context.Context, runID string) error {
	reqURL := fmt.Sprintf("%s/actor-runs/%s/abort?token=%s", c.baseURL, url.PathEscape(runID), url.QueryEscape(c.token))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, nil)
	if err != nil {
		return eris.Wrap(err, "apify: create abort request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrap(err, "apify: abort run")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return eris.Errorf("apify: abort unexpected status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}
