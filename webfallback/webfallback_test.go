package webfallback

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/atlaslabs/newsbase/fetch"
	"github.com/atlaslabs/newsbase/llm"
)

type stubProvider struct{ summary string }

func (s *stubProvider) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	return &llm.ChatResponse{}, nil
}
func (s *stubProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) { return nil, nil }
func (s *stubProvider) Generate(ctx context.Context, req llm.GenerateRequest) (*llm.ChatResponse, error) {
	return &llm.ChatResponse{Content: s.summary}, nil
}
func (s *stubProvider) GenerateStream(ctx context.Context, req llm.GenerateRequest, onToken func(string) error) error {
	return nil
}

func TestSearchReturnsSummarizedHits(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"items": []map[string]string{
				{"title": "Result A", "link": "https://a.example/", "snippet": "about A"},
				{"title": "Result B", "link": "https://b.example/", "snippet": "about B"},
			},
		})
	}))
	defer srv.Close()

	f := New(Config{APIKey: "k", EngineID: "e"}, fetch.New(fetch.Config{RespectRobots: false}), &stubProvider{summary: "a short summary"}, "test-model")
	f.overrideEndpointForTest(srv.URL)

	hits, err := f.Search(context.Background(), "battery safety")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}
	if hits[0].Title != "Result A" || hits[0].AISummary != "a short summary" {
		t.Errorf("unexpected hit: %+v", hits[0])
	}
}

func TestSearchNotConfigured(t *testing.T) {
	f := New(Config{}, fetch.New(fetch.Config{}), &stubProvider{}, "m")
	if _, err := f.Search(context.Background(), "q"); err != ErrNotConfigured {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestSearchCapsAtFiveHits(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		items := make([]map[string]string, 8)
		for i := range items {
			items[i] = map[string]string{"title": "t", "link": "https://x.example/" + string(rune('a'+i)), "snippet": "s"}
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"items": items})
	}))
	defer srv.Close()

	f := New(Config{APIKey: "k", EngineID: "e"}, fetch.New(fetch.Config{}), &stubProvider{summary: "x"}, "m")
	f.overrideEndpointForTest(srv.URL)

	hits, err := f.Search(context.Background(), "q")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != maxHits {
		t.Fatalf("expected capped at %d hits, got %d", maxHits, len(hits))
	}
}

