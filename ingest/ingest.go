// Package ingest coordinates the pipeline that turns a candidate
// document into a stored, chunked, embedded, and indexed one: hash and
// dedupe, insert as pending, chunk and embed asynchronously, then mark
// indexed — and the symmetric teardown on delete.
//
// Grounded on the orchestration flow in bbiangul-go-reason/goreason.go
// (Engine.Ingest: validate -> hash -> parse -> chunk -> embed -> store,
// all synchronous), split here across a synchronous fast path (insert
// as pending, spec §4.13 wants callers to get a document id back
// immediately) and an asynchronous worker.Task that does the
// actual chunk/embed/index work, matching spec §4.13's two-phase
// contract instead of the teacher's single blocking call.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/atlaslabs/newsbase/chunker"
	"github.com/atlaslabs/newsbase/dedupe"
	"github.com/atlaslabs/newsbase/embedding"
	"github.com/atlaslabs/newsbase/metadata"
	"github.com/atlaslabs/newsbase/vectorstore"
	"github.com/atlaslabs/newsbase/worker"
)

// ErrDuplicate is returned when a candidate document duplicates one
// already stored for the user (spec §4.10).
var ErrDuplicate = errors.New("ingest: duplicate document")

// Candidate is a document proposed for ingestion, from any collector
// (RSS crawl, web scrape, structured import row, or manual upload).
type Candidate struct {
	UserID      int64
	Title       string
	Content     string
	Summary     string
	SourceURL   string
	SourceType  string
	Tags        []string
	PublishedAt *time.Time
}

// Coordinator wires together the metadata store, deduper, chunker,
// embedder, vector store, and background executor.
type Coordinator struct {
	store    *metadata.Store
	dedupe   *dedupe.Deduper
	chunker  *chunker.Chunker
	embedder *embedding.Embedder
	vectors  *vectorstore.Manager
	pool     *worker.Pool
}

// New constructs a Coordinator.
func New(store *metadata.Store, deduper *dedupe.Deduper, ck *chunker.Chunker, emb *embedding.Embedder, vs *vectorstore.Manager, pool *worker.Pool) *Coordinator {
	return &Coordinator{store: store, dedupe: deduper, chunker: ck, embedder: emb, vectors: vs, pool: pool}
}

// Ingest validates, dedupes, and inserts a candidate as pending,
// submitting the chunk/embed/index work to the background executor
// and returning the new document id immediately (spec §4.13).
func (c *Coordinator) Ingest(ctx context.Context, cand Candidate) (int64, error) {
	if cand.Title == "" {
		return 0, fmt.Errorf("ingest: title is required")
	}
	if cand.Content == "" {
		return 0, fmt.Errorf("ingest: content is required")
	}

	hash := dedupe.ContentHash(cand.Content)

	verdict, err := c.dedupe.Check(ctx, dedupe.Candidate{
		UserID:    cand.UserID,
		Content:   cand.Content,
		SourceURL: cand.SourceURL,
	})
	if err != nil {
		return 0, fmt.Errorf("checking for duplicate: %w", err)
	}
	if verdict.Duplicate {
		return verdict.ExistingDocumentID, ErrDuplicate
	}

	docID, err := c.store.PutDocument(ctx, metadata.Document{
		UserID:      cand.UserID,
		Title:       cand.Title,
		Content:     cand.Content,
		Summary:     cand.Summary,
		SourceURL:   cand.SourceURL,
		SourceType:  cand.SourceType,
		ContentHash: hash,
		Tags:        cand.Tags,
		PublishedAt: cand.PublishedAt,
	})
	if err != nil {
		return 0, fmt.Errorf("storing document: %w", err)
	}

	err = c.pool.Submit(worker.Task{
		Kind:   worker.KindIndexDocument,
		UserID: cand.UserID,
		Run: func(ctx context.Context) error {
			return c.indexDocument(ctx, cand.UserID, docID)
		},
	})
	if err != nil {
		// Nothing was ever scheduled to index this row, so don't leave
		// a document stuck pending forever; the caller sees the queue-
		// full error and, per spec §7, is expected to retry.
		if delErr := c.store.HardDelete(ctx, docID); delErr != nil {
			slog.Error("ingest: failed to roll back pending document after backpressure",
				"document_id", docID, "error", delErr)
		}
		return 0, fmt.Errorf("ingest: submitting index task: %w", err)
	}

	return docID, nil
}

// indexDocument performs the actual chunk/embed/index work for a
// pending document, transitioning it to indexed or failed.
func (c *Coordinator) indexDocument(ctx context.Context, userID, docID int64) error {
	doc, err := c.store.GetDocument(ctx, userID, docID)
	if err != nil {
		return fmt.Errorf("fetching document %d: %w", docID, err)
	}

	pieces := c.chunker.Chunk(docID, doc.Content)
	if len(pieces) == 0 {
		return c.store.MarkIndexed(ctx, docID, "indexed")
	}

	texts := make([]string, len(pieces))
	for i, p := range pieces {
		texts[i] = p.Text
	}

	vecs, err := c.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		c.store.MarkIndexed(ctx, docID, "failed")
		return fmt.Errorf("embedding document %d: %w", docID, err)
	}

	chunks := make([]vectorstore.Chunk, len(pieces))
	for i, p := range pieces {
		chunks[i] = vectorstore.Chunk{
			ChunkID:     p.ChunkID,
			DocumentID:  p.DocumentID,
			Ordinal:     p.Ordinal,
			Text:        p.Text,
			TextPreview: previewOf(p.Text),
			Embedding:   vecs[i],
		}
	}

	if err := c.vectors.Add(ctx, userID, chunks); err != nil {
		c.store.MarkIndexed(ctx, docID, "failed")
		return fmt.Errorf("indexing document %d: %w", docID, err)
	}

	return c.store.MarkIndexed(ctx, docID, "indexed")
}

// Delete marks a document as evicting and schedules asynchronous
// eviction of its vectors, per spec §4.13's symmetric deletion flow:
// the metadata row stays in the evicting state until the background
// task has removed its vectors, and is hard-deleted only then, so the
// more expensive vector-store work happens off the request path.
func (c *Coordinator) Delete(ctx context.Context, userID, docID int64) error {
	if err := c.store.BeginEviction(ctx, userID, docID); err != nil {
		return fmt.Errorf("beginning eviction of document %d: %w", docID, err)
	}

	err := c.pool.Submit(worker.Task{
		Kind:   worker.KindEvictDocumentVectors,
		UserID: userID,
		Run: func(ctx context.Context) error {
			return c.evictDocument(ctx, userID, docID)
		},
	})
	if err != nil {
		return fmt.Errorf("submitting eviction task for document %d: %w", docID, err)
	}
	return nil
}

// previewOf truncates chunk text to what the reranker and search
// results need to display, keeping the vector index sidecar small.
func previewOf(text string) string {
	const maxLen = 400
	if len(text) <= maxLen {
		return text
	}
	return text[:maxLen]
}

func (c *Coordinator) evictDocument(ctx context.Context, userID, docID int64) error {
	if err := c.vectors.RemoveByDocument(ctx, userID, docID); err != nil {
		return fmt.Errorf("evicting vectors for document %d: %w", docID, err)
	}
	if err := c.store.HardDelete(ctx, docID); err != nil {
		return fmt.Errorf("hard-deleting document %d: %w", docID, err)
	}
	return nil
}
