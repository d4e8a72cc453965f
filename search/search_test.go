//go:build cgo

package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/atlaslabs/newsbase/embedding"
	"github.com/atlaslabs/newsbase/llm"
	"github.com/atlaslabs/newsbase/metadata"
	"github.com/atlaslabs/newsbase/rerank"
	"github.com/atlaslabs/newsbase/sse"
	"github.com/atlaslabs/newsbase/vectorstore"
)

// stubProvider embeds every text as the same constant vector (so ANN
// search returns everything) and scores each passage by looking its
// text up in scores, defaulting to 0.1 for passages not listed.
type stubProvider struct {
	dim    int
	scores map[string]float64
}

func (s *stubProvider) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	var parsed struct {
		Passages []string `json:"passages"`
	}
	if err := json.Unmarshal([]byte(req.Messages[1].Content), &parsed); err != nil {
		return nil, err
	}
	scores := make([]float64, len(parsed.Passages))
	for i, p := range parsed.Passages {
		if v, ok := s.scores[p]; ok {
			scores[i] = v
		} else {
			scores[i] = 0.1
		}
	}
	body, _ := json.Marshal(map[string]interface{}{"scores": scores})
	return &llm.ChatResponse{Content: string(body)}, nil
}

func (s *stubProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		v := make([]float32, s.dim)
		v[0] = 1.0
		out[i] = v
	}
	return out, nil
}

func (s *stubProvider) Generate(ctx context.Context, req llm.GenerateRequest) (*llm.ChatResponse, error) {
	return &llm.ChatResponse{Content: "a summary"}, nil
}

func (s *stubProvider) GenerateStream(ctx context.Context, req llm.GenerateRequest, onToken func(string) error) error {
	return onToken("token")
}

type stubFallback struct {
	hits []ExternalHit
	err  error
}

func (f *stubFallback) Search(ctx context.Context, query string) ([]ExternalHit, error) {
	return f.hits, f.err
}

func setup(t *testing.T, scores map[string]float64) (*Pipeline, *metadata.Store, int64) {
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

	provider := &stubProvider{dim: 384, scores: scores}
	emb := embedding.New(provider, embedding.Config{Model: "test-v1", Dim: 384})
	rr := rerank.New(provider, rerank.Config{})

	pipeline := New(store, emb, vecMgr, rr, nil, provider, Config{
		DefaultLimit:              10,
		ExternalTriggerThreshold:  0.35,
		ExternalTriggerMinResults: 3,
	})

	// Seed two documents each with one chunk in the vector index.
	for i, title := range []string{"Doc A", "Doc B"} {
		docID, err := store.PutDocument(context.Background(), metadata.Document{
			UserID: userID, Title: title, Content: "body", SourceType: "manual", ContentHash: fmt.Sprintf("hash-%d", i),
		})
		if err != nil {
			t.Fatalf("PutDocument: %v", err)
		}
		vec := make([]float32, 384)
		vec[0] = 1.0
		err = vecMgr.Add(context.Background(), userID, []vectorstore.Chunk{{
			ChunkID: fmt.Sprintf("chunk-%d", i), DocumentID: docID, Ordinal: 0,
			Text: title + " body", TextPreview: title + " body", Embedding: vec,
		}})
		if err != nil {
			t.Fatalf("Add: %v", err)
		}
	}

	return pipeline, store, userID
}

func TestRunProducesRankedResults(t *testing.T) {
	pipeline, _, userID := setup(t, map[string]float64{
		"Doc A body": 0.9,
		"Doc B body": 0.2,
	})
	collector := &sse.Collector{}

	resp, err := pipeline.Run(context.Background(), Options{UserID: userID, Query: "battery safety", Limit: 5, IncludeExternal: false}, "req-1", collector)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(resp.Results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(resp.Results))
	}
	if resp.Results[0].Title != "Doc A" {
		t.Errorf("expected Doc A ranked first, got %s", resp.Results[0].Title)
	}
	if len(collector.Events) == 0 {
		t.Error("expected progress events to be emitted")
	}
}

func TestRunTriggersExternalWhenBelowThreshold(t *testing.T) {
	pipeline, _, userID := setup(t, map[string]float64{
		"Doc A body": 0.05,
		"Doc B body": 0.02,
	})
	pipeline.fallback = &stubFallback{hits: []ExternalHit{{Title: "Ext", URL: "https://x", Snippet: "s"}}}
	collector := &sse.Collector{}

	resp, err := pipeline.Run(context.Background(), Options{UserID: userID, Query: "battery safety", Limit: 5, IncludeExternal: true}, "req-2", collector)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(resp.ExternalResults) != 1 {
		t.Fatalf("expected external fallback to fire, got %d external results", len(resp.ExternalResults))
	}
}

func TestRunEmitsExternalUnavailableOnFallbackFailure(t *testing.T) {
	pipeline, _, userID := setup(t, map[string]float64{
		"Doc A body": 0.05,
		"Doc B body": 0.02,
	})
	pipeline.fallback = &stubFallback{err: fmt.Errorf("network down")}
	collector := &sse.Collector{}

	_, err := pipeline.Run(context.Background(), Options{UserID: userID, Query: "q", Limit: 5, IncludeExternal: true}, "req-3", collector)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	found := false
	for _, e := range collector.Events {
		if _, ok := e.(sse.ExternalUnavailable); ok {
			found = true
		}
	}
	if !found {
		t.Error("expected external_unavailable event")
	}
}

func TestRunRejectsEmptyQuery(t *testing.T) {
	pipeline, _, userID := setup(t, nil)
	_, err := pipeline.Run(context.Background(), Options{UserID: userID, Query: ""}, "req-4", &sse.Collector{})
	if err == nil {
		t.Error("expected error for empty query")
	}
}

func TestRunRejectsLimitAboveMaximum(t *testing.T) {
	pipeline, _, userID := setup(t, nil)
	collector := &sse.Collector{}
	_, err := pipeline.Run(context.Background(), Options{UserID: userID, Query: "q", Limit: 101}, "req-5", collector)
	if !errors.Is(err, ErrLimitTooLarge) {
		t.Fatalf("expected ErrLimitTooLarge, got %v", err)
	}
	found := false
	for _, e := range collector.Events {
		if _, ok := e.(sse.Error); ok {
			found = true
		}
	}
	if !found {
		t.Error("expected an error event on the sink")
	}
}
