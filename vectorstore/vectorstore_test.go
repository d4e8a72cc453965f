//go:build cgo

package vectorstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"
)

func testChunk(docID int64, ordinal int, seed float32) Chunk {
	h := sha256.Sum256([]byte(fmt.Sprintf("%d:%d", docID, ordinal)))
	vec := make([]float32, embeddingDim)
	for i := range vec {
		vec[i] = seed
	}
	return Chunk{
		ChunkID:    hex.EncodeToString(h[:]),
		DocumentID: docID,
		Ordinal:    ordinal,
		Text:       fmt.Sprintf("chunk %d/%d", docID, ordinal),
		Embedding:  vec,
	}
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(ManagerConfig{
		Root:                  t.TempDir(),
		EmbedderVersion:       "test-v1",
		LRUCapacity:           4,
		CompactCountThreshold: 1000,
		CompactRatioThreshold: 0.2,
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	t.Cleanup(func() { m.Close(context.Background()) })
	return m
}

func TestAddAndSearch(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	chunks := []Chunk{
		testChunk(1, 0, 0.1),
		testChunk(1, 1, 0.9),
	}
	if err := m.Add(ctx, 42, chunks); err != nil {
		t.Fatalf("Add: %v", err)
	}

	query := make([]float32, embeddingDim)
	for i := range query {
		query[i] = 0.1
	}
	hits, err := m.Search(ctx, 42, query, 1)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("expected 1 hit, got %d", len(hits))
	}
	if hits[0].ChunkID != chunks[0].ChunkID {
		t.Errorf("expected nearest chunk %s, got %s", chunks[0].ChunkID, hits[0].ChunkID)
	}
}

func TestSearchRejectsExcessiveK(t *testing.T) {
	m := newTestManager(t)
	_, err := m.Search(context.Background(), 1, make([]float32, embeddingDim), maxSearchK+1)
	if err != ErrTooManyResults {
		t.Fatalf("expected ErrTooManyResults, got %v", err)
	}
}

func TestRemoveByDocumentExcludesFromSearch(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	chunk := testChunk(7, 0, 0.5)
	if err := m.Add(ctx, 1, []Chunk{chunk}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := m.RemoveByDocument(ctx, 1, 7); err != nil {
		t.Fatalf("RemoveByDocument: %v", err)
	}
	hits, err := m.Search(ctx, 1, make([]float32, embeddingDim), 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 0 {
		t.Fatalf("expected soft-deleted chunk excluded from search, got %d hits", len(hits))
	}
}

func TestCompactRebuildsFromSurvivors(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	if err := m.Add(ctx, 1, []Chunk{testChunk(1, 0, 0.1), testChunk(2, 0, 0.2)}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := m.RemoveByDocument(ctx, 1, 1); err != nil {
		t.Fatalf("RemoveByDocument: %v", err)
	}
	if err := m.Compact(ctx, 1); err != nil {
		t.Fatalf("Compact: %v", err)
	}
	vc, dc, err := m.Stats(1)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if vc != 1 || dc != 0 {
		t.Errorf("expected 1 surviving vector and 0 tombstones after compact, got vc=%d dc=%d", vc, dc)
	}
}

func TestEmbedderVersionMismatchRejected(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()

	m1, err := NewManager(ManagerConfig{Root: root, EmbedderVersion: "v1", LRUCapacity: 4})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	if err := m1.Add(ctx, 5, []Chunk{testChunk(1, 0, 0.1)}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := m1.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}

	m2, err := NewManager(ManagerConfig{Root: root, EmbedderVersion: "v2", LRUCapacity: 4})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	if err := m2.Add(ctx, 5, []Chunk{testChunk(1, 1, 0.2)}); err == nil {
		t.Fatal("expected embedder version mismatch to be rejected")
	}
}
