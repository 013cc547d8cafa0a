// Package market supplies the market-context payload attached to every chat
// turn. The payload is opaque to the pipeline: it is fetched, cached and
// forwarded verbatim, never interpreted.
package market

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/pricepilot-ai/pricepilot/internal/logging"
)

const (
	// DefaultTTL is how long a fetched context document is reused before
	// refetching.
	DefaultTTL = 30 * time.Second

	fetchInitialInterval = 200 * time.Millisecond
	fetchMaxInterval     = 2 * time.Second
	fetchMaxRetries      = 3
)

// Provider supplies the current market-context payload.
type Provider interface {
	Current(ctx context.Context) (json.RawMessage, error)
}

// Static is a fixed-payload provider, used in tests and offline setups.
type Static json.RawMessage

// Current returns the fixed payload.
func (s Static) Current(context.Context) (json.RawMessage, error) {
	return json.RawMessage(s), nil
}

// HTTPProvider fetches the context document from a URL, retrying transient
// failures with exponential backoff and jitter, and caches the result for a
// TTL so a burst of turns does not hammer the context service.
type HTTPProvider struct {
	url  string
	http *http.Client
	ttl  time.Duration

	mu        sync.Mutex
	cached    json.RawMessage
	fetchedAt time.Time
}

// NewHTTPProvider creates a provider fetching from url. A ttl of zero uses
// DefaultTTL.
func NewHTTPProvider(url string, ttl time.Duration) *HTTPProvider {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &HTTPProvider{
		url:  url,
		http: &http.Client{Timeout: 10 * time.Second},
		ttl:  ttl,
	}
}

// newFetchBackoff creates an exponential backoff with jitter for context
// fetches, bounded by the caller's context.
func newFetchBackoff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = fetchInitialInterval
	b.MaxInterval = fetchMaxInterval
	b.RandomizationFactor = 0.5
	b.Multiplier = 2.0
	b.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(b, fetchMaxRetries), ctx)
}

// Current returns the cached payload when fresh, otherwise refetches.
func (p *HTTPProvider) Current(ctx context.Context) (json.RawMessage, error) {
	p.mu.Lock()
	if p.cached != nil && time.Since(p.fetchedAt) < p.ttl {
		cached := p.cached
		p.mu.Unlock()
		return cached, nil
	}
	p.mu.Unlock()

	payload, err := backoff.RetryWithData(func() (json.RawMessage, error) {
		return p.fetch(ctx)
	}, newFetchBackoff(ctx))
	if err != nil {
		return nil, fmt.Errorf("market context fetch failed: %w", err)
	}

	p.mu.Lock()
	p.cached = payload
	p.fetchedAt = time.Now()
	p.mu.Unlock()

	return payload, nil
}

func (p *HTTPProvider) fetch(ctx context.Context) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return nil, backoff.Permanent(err)
	}

	resp, err := p.http.Do(req)
	if err != nil {
		logging.Debug().Err(err).Str("url", p.url).Msg("market context fetch retrying")
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("status %d", resp.StatusCode)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			// Client errors will not heal on retry.
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if !json.Valid(body) {
		return nil, backoff.Permanent(fmt.Errorf("context document is not valid JSON"))
	}

	return json.RawMessage(body), nil
}

// Invalidate drops the cached payload so the next Current refetches.
func (p *HTTPProvider) Invalidate() {
	p.mu.Lock()
	p.cached = nil
	p.mu.Unlock()
}
