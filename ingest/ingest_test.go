//go:build cgo

package ingest

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/atlaslabs/newsbase/chunker"
	"github.com/atlaslabs/newsbase/dedupe"
	"github.com/atlaslabs/newsbase/embedding"
	"github.com/atlaslabs/newsbase/llm"
	"github.com/atlaslabs/newsbase/metadata"
	"github.com/atlaslabs/newsbase/vectorstore"
	"github.com/atlaslabs/newsbase/worker"
)

type stubProvider struct{ dim int }

func (s *stubProvider) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	return &llm.ChatResponse{}, nil
}

func (s *stubProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, s.dim)
	}
	return out, nil
}

func (s *stubProvider) Generate(ctx context.Context, req llm.GenerateRequest) (*llm.ChatResponse, error) {
	return &llm.ChatResponse{}, nil
}

func (s *stubProvider) GenerateStream(ctx context.Context, req llm.GenerateRequest, onToken func(string) error) error {
	return nil
}

func newTestCoordinator(t *testing.T) (*Coordinator, *metadata.Store, int64) {
	t.Helper()
	store, err := metadata.New(filepath.Join(t.TempDir(), "meta.db"))
	if err != nil {
		t.Fatalf("metadata.New: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	userID, err := store.CreateUser(context.Background(), "alice", "Alice")
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	vecMgr, err := vectorstore.NewManager(vectorstore.ManagerConfig{
		Root:            t.TempDir(),
		EmbedderVersion: "test-v1",
		LRUCapacity:     4,
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	t.Cleanup(func() { vecMgr.Close(context.Background()) })

	emb := embedding.New(&stubProvider{dim: 384}, embedding.Config{Model: "test-v1", Dim: 384})
	ck := chunker.New(chunker.Config{})
	dd := dedupe.New(store)
	pool := worker.New(worker.Config{Workers: 2, QueueCapacity: 16})
	t.Cleanup(func() { pool.Shutdown(context.Background()) })

	return New(store, dd, ck, emb, vecMgr, pool), store, userID
}

func TestIngestStoresPendingThenIndexes(t *testing.T) {
	c, store, userID := newTestCoordinator(t)
	ctx := context.Background()

	docID, err := c.Ingest(ctx, Candidate{
		UserID:     userID,
		Title:      "Test Article",
		Content:    "This is the article body used to validate ingestion end to end.",
		SourceType: "manual",
	})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	doc, err := store.GetDocument(ctx, userID, docID)
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	if doc.IndexedState != "pending" && doc.IndexedState != "indexed" {
		t.Errorf("expected pending or indexed state immediately after Ingest, got %s", doc.IndexedState)
	}
}

func TestIngestRejectsDuplicateContent(t *testing.T) {
	c, _, userID := newTestCoordinator(t)
	ctx := context.Background()

	cand := Candidate{UserID: userID, Title: "A", Content: "duplicate body text", SourceType: "manual"}
	if _, err := c.Ingest(ctx, cand); err != nil {
		t.Fatalf("first Ingest: %v", err)
	}
	if _, err := c.Ingest(ctx, cand); err != ErrDuplicate {
		t.Fatalf("expected ErrDuplicate on second identical ingest, got %v", err)
	}
}

func TestDeleteBeginsEvictionSynchronously(t *testing.T) {
	c, store, userID := newTestCoordinator(t)
	ctx := context.Background()

	docID, err := c.Ingest(ctx, Candidate{UserID: userID, Title: "A", Content: "body to delete", SourceType: "manual"})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	if err := c.Delete(ctx, userID, docID); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	doc, err := store.GetDocument(ctx, userID, docID)
	if err == nil && doc.IndexedState != "evicting" {
		t.Errorf("expected evicting state or hard-deleted, got %s", doc.IndexedState)
	}
}
