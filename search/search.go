// Package search implements the retrieval pipeline: embed the query,
// search the caller's vector index, rerank and calibrate candidates,
// optionally fall back to external search, and optionally stream
// per-result LLM summaries — emitting a progress event at every stage
// (spec §4.14).
//
// Grounded on the teacher's fan-out retrieval shape
// (bbiangul-go-reason/retrieval/retrieval.go's Engine.Search: staged
// pipeline with a trace struct and per-stage slog.Debug calls), with
// the FTS/graph/translation stages removed (no FTS index or knowledge
// graph in this system) and rerank/calibrate/external/summarize
// stages added in their place.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/atlaslabs/newsbase/embedding"
	"github.com/atlaslabs/newsbase/llm"
	"github.com/atlaslabs/newsbase/metadata"
	"github.com/atlaslabs/newsbase/rerank"
	"github.com/atlaslabs/newsbase/sse"
	"github.com/atlaslabs/newsbase/vectorstore"
)

// ErrLimitTooLarge is returned when Options.Limit exceeds the maximum
// the pipeline will serve in one request (spec §8).
var ErrLimitTooLarge = errors.New("search: limit exceeds maximum of 100")

// Fallback is the external-search collaborator; satisfied by
// *webfallback.Fallback. Kept as a narrow interface here so this
// package doesn't need to import webfallback (which itself imports
// fetch and llm) just to accept one.
type Fallback interface {
	Search(ctx context.Context, query string) ([]ExternalHit, error)
}

// ExternalHit mirrors webfallback.Hit; the pipeline only needs these
// fields to build a response and doesn't care how they were produced.
type ExternalHit struct {
	Title     string
	URL       string
	Snippet   string
	AISummary string
}

// Config carries the tunables from spec §6.4's search block plus the
// summarization toggle.
type Config struct {
	DefaultLimit              int
	ExternalTriggerThreshold  float64
	ExternalTriggerMinResults int
	SummarizeTopN             int
	SummarizeModel            string
}

func (c Config) withDefaults() Config {
	if c.DefaultLimit <= 0 {
		c.DefaultLimit = 10
	}
	if c.SummarizeTopN <= 0 {
		c.SummarizeTopN = 3
	}
	return c
}

// Options configures a single search request (spec §4.14 input).
type Options struct {
	UserID          int64
	Query           string
	Limit           int
	IncludeExternal bool
	Summarize       bool
	Filter          metadata.Filter
}

// Result is one displayed hit: a document with its calibrated
// similarity, collapsed from possibly several matching chunks.
type Result struct {
	Index      int
	DocumentID int64
	Title      string
	Similarity float64
	Tags       []string
	SourceURL  string
}

// Response is the terminal payload for a blocking (non-streamed)
// search call.
type Response struct {
	Results         []Result
	ExternalResults []ExternalHit
	ResultCount     int
	ElapsedMs       int64
}

// Pipeline wires the collaborators the retrieval stages need.
type Pipeline struct {
	store    *metadata.Store
	embedder *embedding.Embedder
	vectors  *vectorstore.Manager
	reranker *rerank.Reranker
	fallback Fallback
	llm      llm.Provider
	cfg      Config
}

// New constructs a Pipeline. fallback and provider may be nil: with a
// nil fallback the external stage sends an external_unavailable event,
// and with a nil provider summarization is skipped.
func New(store *metadata.Store, embedder *embedding.Embedder, vectors *vectorstore.Manager, reranker *rerank.Reranker, fallback Fallback, provider llm.Provider, cfg Config) *Pipeline {
	return &Pipeline{store: store, embedder: embedder, vectors: vectors, reranker: reranker, fallback: fallback, llm: provider, cfg: cfg.withDefaults()}
}

type candidate struct {
	hit vectorstore.SearchHit
	doc *metadata.Document
}

// Run executes the full staged pipeline, emitting a progress event to
// sink at every stage (spec §6.3). An error at any stage produces a
// terminal error event and no Response; sink.Send failures propagate
// as errors so a disconnected client aborts the pipeline promptly.
func (p *Pipeline) Run(ctx context.Context, opts Options, requestID string, sink sse.Sink) (*Response, error) {
	start := time.Now()
	if opts.Query == "" {
		return nil, p.fail(sink, "invalid_request", fmt.Errorf("search: query is required"))
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = p.cfg.DefaultLimit
	}
	if limit > 100 {
		return nil, p.fail(sink, "invalid_request", ErrLimitTooLarge)
	}

	if err := sink.Send(sse.NewStarted(opts.Query, requestID)); err != nil {
		return nil, err
	}
	recordID, err := p.store.AddSearchRecord(ctx, opts.UserID, opts.Query, 0, 0)
	if err != nil {
		return nil, p.fail(sink, "storage_unavailable", err)
	}

	// Stage: embedding.
	if err := sink.Send(sse.NewProgress(sse.StageEmbedding, 10, "embedding query")); err != nil {
		return nil, err
	}
	queryVec, err := p.embedder.EmbedQuery(ctx, opts.Query)
	if err != nil {
		return nil, p.fail(sink, "embedding_failed", err)
	}

	// Stage: searching.
	if err := sink.Send(sse.NewProgress(sse.StageSearching, 30, "searching vector index")); err != nil {
		return nil, err
	}
	hits, err := p.vectors.Search(ctx, opts.UserID, queryVec, 2*limit)
	if err != nil {
		return nil, p.fail(sink, "vector_search_failed", err)
	}

	candidates, err := p.hydrateAndFilter(ctx, opts.UserID, hits, opts.Filter)
	if err != nil {
		return nil, p.fail(sink, "storage_unavailable", err)
	}

	// Stage: reranking.
	if err := sink.Send(sse.NewProgress(sse.StageReranking, 55, "reranking candidates")); err != nil {
		return nil, err
	}
	results, err := p.rerankAndCollapse(ctx, opts.Query, candidates, limit)
	if err != nil {
		return nil, p.fail(sink, "reranking_failed", err)
	}

	// Stage: calibrating — similarity is already the reranker's
	// calibrated score; this stage streams the per-result events.
	if err := sink.Send(sse.NewProgress(sse.StageCalibrating, 70, "calibrating scores")); err != nil {
		return nil, err
	}
	for _, r := range results {
		if err := sink.Send(sse.NewResultPartial(r.Index, r.DocumentID, r.Title, r.Similarity, r.Tags)); err != nil {
			return nil, err
		}
	}

	// Stage: external?
	var external []ExternalHit
	if opts.IncludeExternal && p.needsExternal(results) {
		if err := sink.Send(sse.NewProgress(sse.StageExternal, 82, "checking external search")); err != nil {
			return nil, err
		}
		external = p.runExternal(ctx, opts.Query, sink)
	}

	// Stage: summarizing.
	if opts.Summarize && p.llm != nil {
		if err := sink.Send(sse.NewProgress(sse.StageSummarizing, 92, "summarizing top results")); err != nil {
			return nil, err
		}
		p.summarizeTop(ctx, opts.Query, results, sink)
	}

	elapsed := time.Since(start).Milliseconds()
	if err := p.store.UpdateSearchRecord(ctx, recordID, len(results), elapsed); err != nil {
		slog.Warn("search: failed to update search record", "record_id", recordID, "error", err)
	}

	if err := sink.Send(sse.NewCompleted(len(results), len(external), elapsed)); err != nil {
		return nil, err
	}

	return &Response{Results: results, ExternalResults: external, ResultCount: len(results), ElapsedMs: elapsed}, nil
}

// hydrateAndFilter fetches the owning Document for each chunk hit and
// drops any that don't match the post-hoc filter (spec §4.14 stage 3:
// "apply filter post-hoc against document metadata").
func (p *Pipeline) hydrateAndFilter(ctx context.Context, userID int64, hits []vectorstore.SearchHit, filter metadata.Filter) ([]candidate, error) {
	docs := make(map[int64]*metadata.Document)
	out := make([]candidate, 0, len(hits))
	for _, h := range hits {
		doc, ok := docs[h.DocumentID]
		if !ok {
			var err error
			doc, err = p.store.GetDocument(ctx, userID, h.DocumentID)
			if err != nil {
				if errors.Is(err, metadata.ErrNotFound) {
					continue
				}
				return nil, err
			}
			docs[h.DocumentID] = doc
		}
		if !matchesFilter(doc, filter) {
			continue
		}
		out = append(out, candidate{hit: h, doc: doc})
	}
	return out, nil
}

func matchesFilter(doc *metadata.Document, f metadata.Filter) bool {
	if f.SourceType != "" && doc.SourceType != f.SourceType {
		return false
	}
	if f.DateFrom != nil && doc.CreatedAt.Before(*f.DateFrom) {
		return false
	}
	if f.DateTo != nil && doc.CreatedAt.After(*f.DateTo) {
		return false
	}
	if len(f.TagsAny) > 0 && !hasAnyTag(doc.Tags, f.TagsAny) {
		return false
	}
	if f.TextLike != "" {
		needle := strings.ToLower(f.TextLike)
		if !strings.Contains(strings.ToLower(doc.Title), needle) && !strings.Contains(strings.ToLower(doc.Content), needle) {
			return false
		}
	}
	return true
}

func hasAnyTag(tags, want []string) bool {
	set := make(map[string]bool, len(tags))
	for _, t := range tags {
		set[strings.ToLower(t)] = true
	}
	for _, w := range want {
		if set[strings.ToLower(w)] {
			return true
		}
	}
	return false
}

// rerankAndCollapse scores every candidate chunk against the query,
// then collapses to one entry per document keeping the max score
// (tie-break by earlier ordinal), truncated to limit (spec §4.14
// stage 4).
func (p *Pipeline) rerankAndCollapse(ctx context.Context, query string, candidates []candidate, limit int) ([]Result, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	passages := make([]string, len(candidates))
	for i, c := range candidates {
		passages[i] = c.hit.TextPreview
	}

	scored, err := p.reranker.Rerank(ctx, query, passages)
	if err != nil {
		return nil, err
	}

	best := make(map[int64]rerank.Scored)
	bestOrdinal := make(map[int64]int)
	for _, s := range scored {
		c := candidates[s.Index]
		docID := c.hit.DocumentID
		existing, ok := best[docID]
		if !ok || s.Calibrated > existing.Calibrated || (s.Calibrated == existing.Calibrated && c.hit.Ordinal < bestOrdinal[docID]) {
			best[docID] = s
			bestOrdinal[docID] = c.hit.Ordinal
		}
	}

	type docScore struct {
		docID int64
		score rerank.Scored
	}
	ordered := make([]docScore, 0, len(best))
	for docID, s := range best {
		ordered = append(ordered, docScore{docID: docID, score: s})
	}
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].score.Calibrated != ordered[j].score.Calibrated {
			return ordered[i].score.Calibrated > ordered[j].score.Calibrated
		}
		return bestOrdinal[ordered[i].docID] < bestOrdinal[ordered[j].docID]
	})
	if len(ordered) > limit {
		ordered = ordered[:limit]
	}

	results := make([]Result, len(ordered))
	for i, o := range ordered {
		doc := candidates[o.score.Index].doc
		results[i] = Result{
			Index:      i,
			DocumentID: o.docID,
			Title:      doc.Title,
			Similarity: o.score.Calibrated,
			Tags:       doc.Tags,
			SourceURL:  doc.SourceURL,
		}
	}
	return results, nil
}

// needsExternal decides whether local recall is insufficient (spec
// §4.14 stage 6: top similarity below threshold or too few results).
func (p *Pipeline) needsExternal(results []Result) bool {
	if len(results) < p.cfg.ExternalTriggerMinResults {
		return true
	}
	top := 0.0
	if len(results) > 0 {
		top = results[0].Similarity
	}
	return top < p.cfg.ExternalTriggerThreshold
}

func (p *Pipeline) runExternal(ctx context.Context, query string, sink sse.Sink) []ExternalHit {
	if p.fallback == nil {
		sink.Send(sse.NewExternalUnavailable("no external search configured"))
		return nil
	}
	hits, err := p.fallback.Search(ctx, query)
	if err != nil {
		slog.Warn("search: external search failed", "error", err)
		sink.Send(sse.NewExternalUnavailable(err.Error()))
		return nil
	}
	return hits
}

// summarizeTop streams an LLM-generated summary for each of the top
// SummarizeTopN results (spec §4.14 stage 7). A failure summarizing
// one result doesn't block the others.
func (p *Pipeline) summarizeTop(ctx context.Context, query string, results []Result, sink sse.Sink) {
	n := p.cfg.SummarizeTopN
	if n > len(results) {
		n = len(results)
	}
	for i := 0; i < n; i++ {
		r := results[i]
		prompt := fmt.Sprintf("Question: %s\n\nSummarize why the document titled %q is relevant, in 2-3 sentences.", query, r.Title)
		err := p.llm.GenerateStream(ctx, llm.GenerateRequest{Model: p.cfg.SummarizeModel, Prompt: prompt, MaxTokens: 200}, func(token string) error {
			return sink.Send(sse.NewSummaryToken(r.Index, token))
		})
		if err != nil {
			slog.Warn("search: summarization failed", "document_id", r.DocumentID, "error", err)
			continue
		}
		sink.Send(sse.NewSummaryEnd(r.Index))
	}
}

func (p *Pipeline) fail(sink sse.Sink, code string, err error) error {
	sink.Send(sse.NewError(code, err.Error()))
	return err
}
