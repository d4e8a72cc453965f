// Package fetch performs rate-limited, retrying HTTP fetches with
// per-host token buckets, robots.txt caching, and proxy failover.
//
// Grounded on the teacher's HTTP retry/backoff client
// (bbiangul-go-reason/llm/openai_compat.go's doPost: exponential
// backoff, retryable status codes, Retry-After handling) generalized
// from POSTing JSON to GETting arbitrary URLs, and on the original
// Python crawler's ProxyManager (original_source/backend/app/crawlers/
// proxy_manager.py: round-robin rotation, N-failures-trips-breaker,
// timed cool-down before retry).
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Result is a successfully fetched resource.
type Result struct {
	URL         string
	StatusCode  int
	Body        []byte
	ContentType string
}

// Config controls fetcher behavior (spec §6.4 fetcher block).
type Config struct {
	UserAgent       string
	PerHostRPS      float64
	Timeout         time.Duration
	MaxRetries      int
	RespectRobots   bool
	RobotsCacheTTL  time.Duration
	Proxies         []string
	CircuitFailures int
	CircuitCooldown time.Duration
}

// Fetcher issues HTTP GETs against arbitrary hosts, throttled
// per-host, honoring robots.txt, and failing over across a pool of
// proxies with a circuit breaker per proxy (spec §4.6).
type Fetcher struct {
	cfg    Config
	client *http.Client

	limiterMu sync.Mutex
	limiters  map[string]*rate.Limiter

	robots *robotsCache
	proxy  *proxyPool
}

// New constructs a Fetcher.
func New(cfg Config) *Fetcher {
	if cfg.UserAgent == "" {
		cfg.UserAgent = "newsbased/1.0 (+personal news knowledge base)"
	}
	if cfg.PerHostRPS <= 0 {
		cfg.PerHostRPS = 1.0
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 1
	}
	if cfg.RobotsCacheTTL <= 0 {
		cfg.RobotsCacheTTL = time.Hour
	}
	if cfg.CircuitFailures <= 0 {
		cfg.CircuitFailures = 3
	}
	if cfg.CircuitCooldown <= 0 {
		cfg.CircuitCooldown = 60 * time.Second
	}

	f := &Fetcher{
		cfg:      cfg,
		client:   &http.Client{Timeout: cfg.Timeout},
		limiters: make(map[string]*rate.Limiter),
		robots:   newRobotsCache(cfg.RobotsCacheTTL),
	}
	if len(cfg.Proxies) > 0 {
		f.proxy = newProxyPool(cfg.Proxies, cfg.CircuitFailures, cfg.CircuitCooldown)
	}
	return f
}

func (f *Fetcher) limiterFor(host string) *rate.Limiter {
	f.limiterMu.Lock()
	defer f.limiterMu.Unlock()
	l, ok := f.limiters[host]
	if !ok {
		l = rate.NewLimiter(rate.Limit(f.cfg.PerHostRPS), 1)
		f.limiters[host] = l
	}
	return l
}

// Fetch retrieves a single URL, respecting per-host throttling,
// robots.txt (when enabled), and retrying transient failures with
// exponential backoff.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Result, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing url %q: %w", rawURL, err)
	}

	if f.cfg.RespectRobots {
		allowed, err := f.robots.allowed(ctx, f, u, f.cfg.UserAgent)
		if err != nil {
			return nil, fmt.Errorf("fetch: robots.txt unavailable for %s, denying: %w", u.Host, err)
		}
		if !allowed {
			return nil, fmt.Errorf("fetch: %s disallowed by robots.txt", rawURL)
		}
	}

	if err := f.limiterFor(u.Host).Wait(ctx); err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt <= f.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(1<<(attempt-1)) * 500 * time.Millisecond
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		res, err := f.doOnce(ctx, rawURL)
		if err == nil {
			return res, nil
		}
		lastErr = err
		if !isRetryable(err) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("fetch: max retries exceeded for %s: %w", rawURL, lastErr)
}

func (f *Fetcher) doOnce(ctx context.Context, rawURL string) (*Result, error) {
	client := f.client
	if f.proxy != nil {
		p, err := f.proxy.next()
		if err != nil {
			return nil, err
		}
		transport, err := proxyTransport(p)
		if err != nil {
			f.proxy.recordFailure(p)
			return nil, err
		}
		client = &http.Client{Timeout: f.cfg.Timeout, Transport: transport}
		defer func() {
			// proxy success/failure is recorded below, after roundTrip
		}()

		res, err := f.roundTrip(ctx, client, rawURL)
		if err != nil {
			f.proxy.recordFailure(p)
			return nil, err
		}
		f.proxy.recordSuccess(p)
		return res, nil
	}
	return f.roundTrip(ctx, client, rawURL)
}

func (f *Fetcher) roundTrip(ctx context.Context, client *http.Client, rawURL string) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)

	resp, err := client.Do(req)
	if err != nil {
		return nil, &retryableError{err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, &retryableError{err: fmt.Errorf("reading body: %w", err)}
	}

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return nil, &retryableError{err: fmt.Errorf("status %d fetching %s", resp.StatusCode, rawURL)}
	}
	if resp.StatusCode >= 400 {
		return nil, &statusError{statusCode: resp.StatusCode, err: fmt.Errorf("status %d fetching %s", resp.StatusCode, rawURL)}
	}

	return &Result{
		URL:         rawURL,
		StatusCode:  resp.StatusCode,
		Body:        body,
		ContentType: resp.Header.Get("Content-Type"),
	}, nil
}

type retryableError struct{ err error }

func (r *retryableError) Error() string { return r.err.Error() }
func (r *retryableError) Unwrap() error { return r.err }

// statusError carries the HTTP status code of a non-retryable 4xx
// response, letting callers like the robots.txt cache distinguish
// "no robots.txt present" (404) from a genuinely unreachable host.
type statusError struct {
	statusCode int
	err        error
}

func (s *statusError) Error() string { return s.err.Error() }
func (s *statusError) Unwrap() error { return s.err }

func isRetryable(err error) bool {
	_, ok := err.(*retryableError)
	return ok
}
