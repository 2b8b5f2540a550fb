package scrape

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/vendmatch/leadgen-cli/pkg/jina"
)

// Breaker tuning: three consecutive failures inside the window open the
// circuit for the cooldown, sending traffic straight to the fallback.
const (
	breakerThreshold = 3
	breakerWindow    = 30 * time.Second
	breakerCooldown  = 60 * time.Second

	minUsableContent = 100
)

// circuitBreaker skips a flaky upstream after repeated failures.
type circuitBreaker struct {
	mu          sync.Mutex
	threshold   int
	window      time.Duration
	cooldown    time.Duration
	failures    int
	lastFailure time.Time
	openUntil   time.Time
}

func newCircuitBreaker(threshold int, window, cooldown time.Duration) *circuitBreaker {
	return &circuitBreaker{
		threshold: threshold,
		window:    window,
		cooldown:  cooldown,
	}
}

func (cb *circuitBreaker) isOpen() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return time.Now().Before(cb.openUntil)
}

func (cb *circuitBreaker) recordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := time.Now()
	if now.Sub(cb.lastFailure) > cb.window {
		cb.failures = 0
	}
	cb.failures++
	cb.lastFailure = now

	if cb.failures >= cb.threshold {
		cb.openUntil = now.Add(cb.cooldown)
		zap.L().Warn("scrape: jina circuit breaker opened",
			zap.Int("failures", cb.failures),
			zap.Duration("cooldown", cb.cooldown),
		)
	}
}

func (cb *circuitBreaker) recordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures = 0
}

// JinaAdapter wraps a Jina Reader client as a Scraper with a circuit
// breaker, so a blocked or rate-limited Reader degrades to the next
// scraper in the chain instead of stalling the run.
type JinaAdapter struct {
	client  jina.Client
	breaker *circuitBreaker
}

func NewJinaAdapter(client jina.Client) *JinaAdapter {
	return &JinaAdapter{
		client:  client,
		breaker: newCircuitBreaker(breakerThreshold, breakerWindow, breakerCooldown),
	}
}

func (j *JinaAdapter) Name() string { return "jina" }

// Supports returns true unless the circuit breaker is open.
func (j *JinaAdapter) Supports(_ string) bool {
	return !j.breaker.isOpen()
}

// Scrape fetches a URL via Jina Reader. Blocked or empty pages count as
// failures so the breaker sees them too.
func (j *JinaAdapter) Scrape(ctx context.Context, targetURL string) (*Result, error) {
	if j.breaker.isOpen() {
		return nil, eris.New("jina: circuit breaker open")
	}

	resp, err := j.client.Read(ctx, targetURL)
	if err != nil {
		j.breaker.recordFailure()
		return nil, err
	}

	if needsFallback(resp) {
		j.breaker.recordFailure()
		return nil, eris.New("jina: response needs fallback")
	}

	j.breaker.recordSuccess()
	return &Result{
		Page: Page{
			URL:        resp.Data.URL,
			Title:      resp.Data.Title,
			Markdown:   resp.Data.Content,
			StatusCode: resp.Code,
		},
		Source: "jina",
	}, nil
}

// challengeSignatures mark anti-bot interstitials that Reader sometimes
// returns as page content.
var challengeSignatures = []string{
	"checking your browser",
	"enable javascript",
	"please enable cookies",
	"access denied",
	"403 forbidden",
	"just a moment",
	"cloudflare",
	"attention required",
}

// needsFallback reports whether the response carries no usable markdown:
// an error code, near-empty content, or a short anti-bot challenge page.
func needsFallback(resp *jina.ReadResponse) bool {
	if resp == nil {
		return true
	}
	if resp.Code != 0 && resp.Code != 200 {
		return true
	}

	content := strings.TrimSpace(resp.Data.Content)
	if len(content) < minUsableContent {
		return true
	}

	lower := strings.ToLower(content)
	for _, sig := range challengeSignatures {
		if strings.Contains(lower, sig) && len(content) < 1000 {
			return true
		}
	}
	return false
}
