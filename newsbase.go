// Package newsbase wires the metadata store, vector store, model
// providers, acquisition pipeline, and retrieval pipeline into one
// Engine, the same wiring role bbiangul-go-reason/goreason.go's
// Engine.New plays for its own component set.
package newsbase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/atlaslabs/newsbase/chunker"
	"github.com/atlaslabs/newsbase/dedupe"
	"github.com/atlaslabs/newsbase/embedding"
	"github.com/atlaslabs/newsbase/fetch"
	"github.com/atlaslabs/newsbase/ingest"
	"github.com/atlaslabs/newsbase/llm"
	"github.com/atlaslabs/newsbase/metadata"
	"github.com/atlaslabs/newsbase/rerank"
	"github.com/atlaslabs/newsbase/scheduler"
	"github.com/atlaslabs/newsbase/search"
	"github.com/atlaslabs/newsbase/vectorstore"
	"github.com/atlaslabs/newsbase/webfallback"
	"github.com/atlaslabs/newsbase/worker"
)

// Engine bundles every collaborator the HTTP API dispatches to.
type Engine struct {
	Store     *metadata.Store
	Vectors   *vectorstore.Manager
	Fetcher   *fetch.Fetcher
	Ingest    *ingest.Coordinator
	Search    *search.Pipeline
	Scheduler *scheduler.Scheduler
	Poller    *scheduler.Poller
	Pool      *worker.Pool

	cfg Config
}

// externalFallbackAdapter narrows *webfallback.Fallback to the
// search.Fallback interface, which returns search.ExternalHit rather
// than webfallback.Hit so the search package doesn't need to import
// webfallback.
type externalFallbackAdapter struct {
	fallback *webfallback.Fallback
}

func (a externalFallbackAdapter) Search(ctx context.Context, query string) ([]search.ExternalHit, error) {
	hits, err := a.fallback.Search(ctx, query)
	if err != nil {
		return nil, err
	}
	out := make([]search.ExternalHit, len(hits))
	for i, h := range hits {
		out[i] = search.ExternalHit{Title: h.Title, URL: h.URL, Snippet: h.Snippet, AISummary: h.AISummary}
	}
	return out, nil
}

// New constructs an Engine from cfg. Zero-value sub-configs are
// filled in by each component's own constructor, matching the
// teacher's per-component default-filling convention.
func New(cfg Config) (*Engine, error) {
	store, err := metadata.New(cfg.MetadataDBPath)
	if err != nil {
		return nil, fmt.Errorf("opening metadata store: %w", err)
	}

	vectors, err := vectorstore.NewManager(vectorstore.ManagerConfig{
		Root:                  cfg.VectorStoreRoot,
		EmbedderVersion:       cfg.Embedder.ModelID,
		LRUCapacity:           cfg.VectorStore.LRUCapacity,
		CompactCountThreshold: cfg.VectorStore.CompactThresholdCount,
		CompactRatioThreshold: cfg.VectorStore.CompactThresholdRatio,
	})
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("opening vector store: %w", err)
	}

	embedProvider, err := llm.NewProvider(llm.Config{
		Provider: cfg.Embedder.Provider,
		Model:    cfg.Embedder.ModelID,
		BaseURL:  cfg.Embedder.BaseURL,
		APIKey:   cfg.Embedder.APIKey,
	})
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("constructing embedding provider: %w", err)
	}
	embedder := embedding.New(embedProvider, embedding.Config{Model: cfg.Embedder.ModelID, BatchSize: cfg.Embedder.BatchSize})

	llmProvider, err := llm.NewProvider(llm.Config{
		Provider: cfg.LLM.Provider,
		Model:    cfg.LLM.ModelID,
		BaseURL:  cfg.LLM.Endpoint,
		APIKey:   cfg.LLM.APIKey,
	})
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("constructing LLM provider: %w", err)
	}

	reranker := rerank.New(llmProvider, rerank.Config{Model: cfg.Reranker.ModelID, BatchSize: cfg.Reranker.BatchSize, Sharpness: cfg.Reranker.Sharpness})

	fetcher := fetch.New(fetch.Config{
		UserAgent:     cfg.Fetcher.UserAgent,
		PerHostRPS:    cfg.Fetcher.PerHostRPS,
		Timeout:       cfg.Fetcher.Timeout,
		RespectRobots: true,
	})

	fallback := webfallback.New(webfallback.Config{APIKey: cfg.ExternalSearch.APIKey, EngineID: cfg.ExternalSearch.EngineID}, fetcher, llmProvider, cfg.LLM.ModelID)

	pool := worker.New(worker.Config{Workers: cfg.Executor.Workers, QueueCapacity: cfg.Executor.QueueCapacity})

	ck := chunker.New(chunker.Config{})
	deduper := dedupe.New(store)
	coordinator := ingest.New(store, deduper, ck, embedder, vectors, pool)

	pipeline := search.New(store, embedder, vectors, reranker, externalFallbackAdapter{fallback}, llmProvider, search.Config{
		DefaultLimit:              cfg.Search.DefaultLimit,
		ExternalTriggerThreshold:  cfg.Search.ExternalTriggerThreshold,
		ExternalTriggerMinResults: cfg.Search.ExternalTriggerMinResults,
		SummarizeModel:            cfg.LLM.ModelID,
	})

	sched := scheduler.New(pool)
	poller := scheduler.NewPoller(store, coordinator, fetcher, sched, nil)

	if err := poller.RegisterAll(context.Background()); err != nil {
		slog.Warn("newsbase: failed to register existing sources with the scheduler", "error", err)
	}
	sched.Register(scheduler.Job{
		ID:       "weekly-maintenance",
		Kind:     scheduler.JobWeeklyMaintenance,
		Interval: 7 * 24 * time.Hour,
		Run: func(ctx context.Context) error {
			return runMaintenance(ctx, store, vectors)
		},
	})

	return &Engine{
		Store:     store,
		Vectors:   vectors,
		Fetcher:   fetcher,
		Ingest:    coordinator,
		Search:    pipeline,
		Scheduler: sched,
		Poller:    poller,
		Pool:      pool,
		cfg:       cfg,
	}, nil
}

// runMaintenance compacts every user's vector index past the
// tombstone threshold (spec §4.2 "compaction runs off the request
// path"). Users with nothing to compact are skipped cheaply by
// Compact's own threshold check.
func runMaintenance(ctx context.Context, store *metadata.Store, vectors *vectorstore.Manager) error {
	ids, err := store.ListUserIDs(ctx)
	if err != nil {
		return fmt.Errorf("listing users for maintenance: %w", err)
	}
	for _, id := range ids {
		if err := vectors.Compact(ctx, id); err != nil {
			slog.Warn("newsbase: maintenance compaction failed", "user_id", id, "error", err)
		}
	}
	return nil
}

// RegisterSource (re)schedules a single source's polling job.
func (e *Engine) RegisterSource(src metadata.Source) {
	e.Poller.RegisterSource(src)
}

// UnregisterSource stops a source's polling job.
func (e *Engine) UnregisterSource(sourceID int64) {
	e.Poller.UnregisterSource(sourceID)
}

// SchedulerDefaultCadence is the poll interval applied to a new source
// that doesn't specify one.
func (e *Engine) SchedulerDefaultCadence() int {
	return e.cfg.Scheduler.RSSDefaultCadenceSeconds
}

// MaxUploadBytes is the cap applied to structured import uploads
// (spec §4.9).
func (e *Engine) MaxUploadBytes() int64 {
	return e.cfg.Upload.MaxBytes
}

// Close shuts down every collaborator with a lifecycle: the
// scheduler's ticking goroutines, the worker pool (draining queued
// tasks), the vector store (persisting dirty indices), and the
// metadata store's connection pool.
func (e *Engine) Close(ctx context.Context) error {
	e.Scheduler.Close()
	if err := e.Pool.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down worker pool: %w", err)
	}
	if err := e.Vectors.Close(ctx); err != nil {
		return fmt.Errorf("closing vector store: %w", err)
	}
	return e.Store.Close()
}
