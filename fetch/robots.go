package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// robotsCache fetches and caches robots.txt per host with a TTL, so a
// crawl sweep across many articles from the same feed doesn't refetch
// robots.txt per request (spec §4.6).
type robotsCache struct {
	ttl time.Duration

	mu      sync.Mutex
	entries map[string]robotsEntry
}

type robotsEntry struct {
	rules     []disallowRule
	fetchedAt time.Time
}

type disallowRule struct {
	userAgent string
	path      string
}

func newRobotsCache(ttl time.Duration) *robotsCache {
	return &robotsCache{ttl: ttl, entries: make(map[string]robotsEntry)}
}

// allowed reports whether userAgent may fetch u, per the target host's
// robots.txt. A host with no robots.txt (404) has no restrictions, but
// any other fetch failure (network error, timeout, 5xx) leaves the
// rules genuinely unknown, and spec §4.6 says "when in doubt, deny" —
// so allowed fails closed rather than assuming permission.
func (c *robotsCache) allowed(ctx context.Context, f *Fetcher, u *url.URL, userAgent string) (bool, error) {
	c.mu.Lock()
	entry, ok := c.entries[u.Host]
	c.mu.Unlock()

	if !ok || time.Since(entry.fetchedAt) > c.ttl {
		rules, err := c.fetchRules(ctx, f, u)
		if err != nil {
			var se *statusError
			if errors.As(err, &se) && se.statusCode == http.StatusNotFound {
				rules = nil
			} else {
				return false, err
			}
		}
		entry = robotsEntry{rules: rules, fetchedAt: time.Now()}
		c.mu.Lock()
		c.entries[u.Host] = entry
		c.mu.Unlock()
	}

	return matchRules(entry.rules, userAgent, u.Path), nil
}

func (c *robotsCache) fetchRules(ctx context.Context, f *Fetcher, u *url.URL) ([]disallowRule, error) {
	robotsURL := fmt.Sprintf("%s://%s/robots.txt", u.Scheme, u.Host)
	res, err := f.roundTrip(ctx, f.client, robotsURL)
	if err != nil {
		return nil, err
	}
	return parseRobots(string(res.Body)), nil
}

// parseRobots is a minimal robots.txt parser covering User-agent and
// Disallow directives, sufficient for the polite-crawling contract
// spec §4.6 requires (no crawl-delay or sitemap handling).
func parseRobots(body string) []disallowRule {
	var rules []disallowRule
	currentAgents := []string{"*"}

	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(parts[0]))
		value := strings.TrimSpace(parts[1])

		switch key {
		case "user-agent":
			currentAgents = []string{strings.ToLower(value)}
		case "disallow":
			if value == "" {
				continue
			}
			for _, agent := range currentAgents {
				rules = append(rules, disallowRule{userAgent: agent, path: value})
			}
		}
	}
	return rules
}

func matchRules(rules []disallowRule, userAgent, path string) bool {
	ua := strings.ToLower(userAgent)
	for _, r := range rules {
		if r.userAgent != "*" && !strings.Contains(ua, r.userAgent) {
			continue
		}
		if strings.HasPrefix(path, r.path) {
			return false
		}
	}
	return true
}
