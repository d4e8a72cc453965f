package fetch

import (
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"
)

// proxyPool round-robins across a set of proxy URLs, tripping a
// per-proxy circuit breaker after consecutive failures and cooling
// down before offering that proxy again.
//
// Grounded on the original crawler's ProxyManager
// (original_source/backend/app/crawlers/proxy_manager.py): round-robin
// rotation, a failure counter per proxy, and a timed health recovery
// window, reimplemented as an in-memory ring with a mutex rather than
// the Python version's threading.Lock-guarded dict.
type proxyPool struct {
	mu      sync.Mutex
	items   []*proxyState
	nextIdx int

	maxFailures int
	cooldown    time.Duration
}

type proxyState struct {
	url          string
	failures     int
	openedAt     time.Time
	circuitOpen  bool
}

func newProxyPool(urls []string, maxFailures int, cooldown time.Duration) *proxyPool {
	items := make([]*proxyState, len(urls))
	for i, u := range urls {
		items[i] = &proxyState{url: u}
	}
	return &proxyPool{items: items, maxFailures: maxFailures, cooldown: cooldown}
}

// next returns the next healthy proxy in round-robin order, skipping
// any whose circuit is open and not yet past its cooldown.
func (p *proxyPool) next() (*proxyState, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i := 0; i < len(p.items); i++ {
		idx := (p.nextIdx + i) % len(p.items)
		item := p.items[idx]
		if item.circuitOpen && time.Since(item.openedAt) < p.cooldown {
			continue
		}
		if item.circuitOpen {
			item.circuitOpen = false
			item.failures = 0
		}
		p.nextIdx = (idx + 1) % len(p.items)
		return item, nil
	}
	return nil, fmt.Errorf("fetch: all proxies are in cooldown")
}

func (p *proxyPool) recordFailure(item *proxyState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	item.failures++
	if item.failures >= p.maxFailures {
		item.circuitOpen = true
		item.openedAt = time.Now()
	}
}

func (p *proxyPool) recordSuccess(item *proxyState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	item.failures = 0
	item.circuitOpen = false
}

func proxyTransport(p *proxyState) (*http.Transport, error) {
	u, err := url.Parse(p.url)
	if err != nil {
		return nil, fmt.Errorf("parsing proxy url %q: %w", p.url, err)
	}
	return &http.Transport{Proxy: http.ProxyURL(u)}, nil
}
