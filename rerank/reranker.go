// Package rerank scores (query, passage) pairs with a cross-encoder
// call and calibrates raw scores into a comparable [0,1] range.
//
// Grounded on the teacher's llm.Provider chat-completion plumbing
// (bbiangul-go-reason/llm/openai_compat.go): a cross-encoder endpoint
// isn't in the corpus, so scoring is expressed as a structured chat
// completion against the same Provider used for embeddings and
// generation, matching the "everything is a Provider call" idiom the
// teacher already uses for retrieval-augmented steps.
package rerank

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"github.com/atlaslabs/newsbase/llm"
)

// Scored pairs a passage index with its raw and calibrated score.
type Scored struct {
	Index      int
	RawScore   float64
	Calibrated float64
}

// Reranker cross-encodes a query against a batch of passages.
type Reranker struct {
	provider  llm.Provider
	model     string
	batchSize int
	sharpness float64
}

// Config configures a Reranker (spec §6.4 reranker block).
type Config struct {
	Model     string
	BatchSize int
	// Sharpness is k in the calibration formula
	// cal(s) = sigmoid((s - s_min)/(s_max - s_min + eps) * k).
	Sharpness float64
}

const epsilon = 1e-6

// New constructs a Reranker.
func New(provider llm.Provider, cfg Config) *Reranker {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 16
	}
	if cfg.Sharpness <= 0 {
		cfg.Sharpness = 6.0
	}
	return &Reranker{provider: provider, model: cfg.Model, batchSize: cfg.BatchSize, sharpness: cfg.Sharpness}
}

type scoreRequest struct {
	Query    string   `json:"query"`
	Passages []string `json:"passages"`
}

type scoreResponse struct {
	Scores []float64 `json:"scores"`
}

// Rerank scores every passage against query and returns them ordered
// by calibrated score descending. Passages are processed in batches of
// batchSize to bound prompt size (spec §4.4).
func (r *Reranker) Rerank(ctx context.Context, query string, passages []string) ([]Scored, error) {
	if len(passages) == 0 {
		return nil, nil
	}

	raw := make([]float64, len(passages))
	for start := 0; start < len(passages); start += r.batchSize {
		end := start + r.batchSize
		if end > len(passages) {
			end = len(passages)
		}
		scores, err := r.scoreBatch(ctx, query, passages[start:end])
		if err != nil {
			return nil, fmt.Errorf("scoring batch %d-%d: %w", start, end, err)
		}
		copy(raw[start:end], scores)
	}

	calibrated := calibrate(raw, r.sharpness)

	out := make([]Scored, len(passages))
	for i := range passages {
		out[i] = Scored{Index: i, RawScore: raw[i], Calibrated: calibrated[i]}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Calibrated > out[j].Calibrated })
	return out, nil
}

func (r *Reranker) scoreBatch(ctx context.Context, query string, passages []string) ([]float64, error) {
	reqBody, err := json.Marshal(scoreRequest{Query: query, Passages: passages})
	if err != nil {
		return nil, err
	}

	resp, err := r.provider.Chat(ctx, llm.ChatRequest{
		Model: r.model,
		Messages: []llm.Message{
			{Role: "system", Content: "You are a cross-encoder relevance scorer. Given a JSON object with a query and a list of passages, respond with a JSON object {\"scores\": [...]} giving one relevance score per passage in the same order, each in the range 0 to 1."},
			{Role: "user", Content: string(reqBody)},
		},
		ResponseFormat: "json_object",
	})
	if err != nil {
		return nil, err
	}

	var parsed scoreResponse
	if err := json.Unmarshal([]byte(resp.Content), &parsed); err != nil {
		return nil, fmt.Errorf("decoding scores: %w", err)
	}
	if len(parsed.Scores) != len(passages) {
		return nil, fmt.Errorf("expected %d scores, got %d", len(passages), len(parsed.Scores))
	}
	return parsed.Scores, nil
}

// calibrate maps raw scores into [0,1] via min-max normalization
// followed by a sigmoid squash, per spec §4.4:
// cal(s) = sigmoid((s - s_min)/(s_max - s_min + eps) * k)
func calibrate(raw []float64, k float64) []float64 {
	if len(raw) == 0 {
		return nil
	}
	sMin, sMax := raw[0], raw[0]
	for _, s := range raw {
		if s < sMin {
			sMin = s
		}
		if s > sMax {
			sMax = s
		}
	}

	out := make([]float64, len(raw))
	for i, s := range raw {
		norm := (s - sMin) / (sMax - sMin + epsilon)
		out[i] = sigmoid(norm * k)
	}
	return out
}

func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}
