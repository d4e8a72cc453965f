// Package webfallback performs external web search and LLM
// summarization when local recall is insufficient, per the retrieval
// pipeline's "external?" stage.
//
// Grounded on original_source/backend/app/api/search.py's
// perform_external_search_streaming: a Google Custom Search API call
// (GOOGLE_SEARCH_API_KEY / GOOGLE_SEARCH_ENGINE_ID) capped at 5
// results, each summarized by the LLM. Reimplemented with the
// teacher's HTTP client and Provider conventions rather than the
// original's requests+LangChainService.
package webfallback

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/atlaslabs/newsbase/fetch"
	"github.com/atlaslabs/newsbase/llm"
)

const searchEndpoint = "https://www.googleapis.com/customsearch/v1"

// maxHits bounds both the number of external results requested and
// the number summarized, matching the "up to 5 hits" ceiling.
const maxHits = 5

// Hit is one external search result, optionally summarized.
type Hit struct {
	Title     string
	URL       string
	Snippet   string
	AISummary string
}

// Config configures the Google Custom Search client.
type Config struct {
	APIKey   string
	EngineID string
}

// Fallback performs external search and LLM synthesis. It satisfies
// the retrieval pipeline's Fallback collaborator interface.
type Fallback struct {
	cfg      Config
	fetcher  *fetch.Fetcher
	provider llm.Provider
	model    string
	endpoint string
}

// New constructs a Fallback. provider is used to synthesize a short
// summary for each hit; pass a Config with an empty APIKey to disable
// external search (Search then always returns ErrNotConfigured).
func New(cfg Config, fetcher *fetch.Fetcher, provider llm.Provider, model string) *Fallback {
	return &Fallback{cfg: cfg, fetcher: fetcher, provider: provider, model: model, endpoint: searchEndpoint}
}

// overrideEndpointForTest points Search at a test server instead of
// the Google Custom Search API.
func (f *Fallback) overrideEndpointForTest(endpoint string) { f.endpoint = endpoint }

// ErrNotConfigured is returned when no Google Search API credentials
// are set; the pipeline treats this the same as any other external
// search failure (non-fatal, emits external_unavailable).
var ErrNotConfigured = fmt.Errorf("webfallback: no search API key configured")

type customSearchResponse struct {
	Items []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
	} `json:"items"`
}

// Search queries the external search provider and summarizes up to 5
// results with the LLM. A summarization failure for one hit doesn't
// fail the others; it just leaves AISummary empty for that hit.
func (f *Fallback) Search(ctx context.Context, query string) ([]Hit, error) {
	if f.cfg.APIKey == "" || f.cfg.EngineID == "" {
		return nil, ErrNotConfigured
	}

	q := url.Values{}
	q.Set("key", f.cfg.APIKey)
	q.Set("cx", f.cfg.EngineID)
	q.Set("q", query)
	q.Set("num", fmt.Sprintf("%d", maxHits))

	res, err := f.fetcher.Fetch(ctx, f.endpoint+"?"+q.Encode())
	if err != nil {
		return nil, fmt.Errorf("querying external search: %w", err)
	}

	var parsed customSearchResponse
	if err := json.Unmarshal(res.Body, &parsed); err != nil {
		return nil, fmt.Errorf("parsing external search response: %w", err)
	}

	items := parsed.Items
	if len(items) > maxHits {
		items = items[:maxHits]
	}

	hits := make([]Hit, len(items))
	for i, item := range items {
		hits[i] = Hit{Title: item.Title, URL: item.Link, Snippet: item.Snippet}
	}

	for i := range hits {
		summary, err := f.summarize(ctx, query, hits[i])
		if err != nil {
			continue
		}
		hits[i].AISummary = summary
	}

	return hits, nil
}

func (f *Fallback) summarize(ctx context.Context, query string, hit Hit) (string, error) {
	prompt := fmt.Sprintf(
		"Question: %s\n\nSummarize how this search result relates to the question in 1-2 sentences.\nTitle: %s\nSnippet: %s",
		query, hit.Title, hit.Snippet,
	)
	resp, err := f.provider.Generate(ctx, llm.GenerateRequest{Model: f.model, Prompt: prompt, MaxTokens: 200})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}
