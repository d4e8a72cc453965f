package rerank

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/atlaslabs/newsbase/llm"
)

type stubProvider struct {
	scoresByCallIndex [][]float64
	callCount         int
}

func (s *stubProvider) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	scores := s.scoresByCallIndex[s.callCount]
	s.callCount++
	body, _ := json.Marshal(scoreResponse{Scores: scores})
	return &llm.ChatResponse{Content: string(body)}, nil
}

func (s *stubProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, nil
}

func (s *stubProvider) Generate(ctx context.Context, req llm.GenerateRequest) (*llm.ChatResponse, error) {
	return nil, nil
}

func (s *stubProvider) GenerateStream(ctx context.Context, req llm.GenerateRequest, onToken func(string) error) error {
	return nil
}

func TestRerankOrdersByCalibratedScoreDescending(t *testing.T) {
	stub := &stubProvider{scoresByCallIndex: [][]float64{{0.2, 0.9, 0.5}}}
	r := New(stub, Config{Model: "test-rerank", BatchSize: 16})

	scored, err := r.Rerank(context.Background(), "query", []string{"low", "high", "mid"})
	if err != nil {
		t.Fatalf("Rerank: %v", err)
	}
	if scored[0].Index != 1 {
		t.Fatalf("expected passage 1 (highest raw score) first, got index %d", scored[0].Index)
	}
	if scored[0].Calibrated <= scored[2].Calibrated {
		t.Errorf("expected calibrated scores to preserve order")
	}
}

func TestRerankBatchesLargeInput(t *testing.T) {
	stub := &stubProvider{scoresByCallIndex: [][]float64{{0.1, 0.2}, {0.3}}}
	r := New(stub, Config{Model: "test-rerank", BatchSize: 2})

	scored, err := r.Rerank(context.Background(), "q", []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("Rerank: %v", err)
	}
	if len(scored) != 3 {
		t.Fatalf("expected 3 scored passages, got %d", len(scored))
	}
	if stub.callCount != 2 {
		t.Fatalf("expected 2 batched calls, got %d", stub.callCount)
	}
}

func TestCalibrateMapsToUnitRange(t *testing.T) {
	out := calibrate([]float64{-5, 0, 5}, 6.0)
	for _, v := range out {
		if v < 0 || v > 1 {
			t.Errorf("calibrated value %f out of [0,1] range", v)
		}
	}
	if out[0] >= out[2] {
		t.Errorf("expected ascending raw scores to produce ascending calibrated scores")
	}
}

func TestRerankEmptyPassages(t *testing.T) {
	r := New(&stubProvider{}, Config{})
	scored, err := r.Rerank(context.Background(), "q", nil)
	if err != nil {
		t.Fatalf("Rerank: %v", err)
	}
	if scored != nil {
		t.Errorf("expected nil result for empty passages")
	}
}
