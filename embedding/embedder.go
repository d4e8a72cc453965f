// Package embedding wraps an llm.Provider to produce fixed-dimension
// vectors for chunk text, batching requests and stamping the model
// identity that vectorstore.Index checks against on load.
//
// Grounded on the teacher's embedding call sites in
// bbiangul-go-reason/goreason.go (which called provider.Embed directly
// inline); this package pulls that concern out into its own component
// so batching and dimension validation happen in one place, per the
// separate Embedder collaborator the retrieval and ingest pipelines
// both depend on.
package embedding

import (
	"context"
	"fmt"

	"github.com/atlaslabs/newsbase/llm"
)

// Embedder produces embeddings for chunk or query text.
type Embedder struct {
	provider  llm.Provider
	model     string
	batchSize int
	dim       int
}

// Config configures an Embedder (spec §6.4 embedder block).
type Config struct {
	Model     string
	BatchSize int
	Dim       int
}

// New constructs an Embedder over the given provider.
func New(provider llm.Provider, cfg Config) *Embedder {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 32
	}
	if cfg.Dim <= 0 {
		cfg.Dim = 384
	}
	return &Embedder{provider: provider, model: cfg.Model, batchSize: cfg.BatchSize, dim: cfg.Dim}
}

// Version identifies the embedding space in effect, stamped into each
// user's vector index meta.json so a model change is detected instead
// of silently corrupting distances (spec §4.2, §9 "Embedder version
// stamping").
func (e *Embedder) Version() string {
	return e.model
}

// Dim returns the configured embedding dimensionality.
func (e *Embedder) Dim() int {
	return e.dim
}

// EmbedQuery embeds a single query string for search.
func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds a slice of texts, chunking the request into
// batches of at most batchSize so a single call can't overrun the
// provider's request-size limits.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.batchSize {
		end := start + e.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch := texts[start:end]

		vecs, err := e.provider.Embed(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("embedding batch %d-%d: %w", start, end, err)
		}
		if len(vecs) != len(batch) {
			return nil, fmt.Errorf("embedding batch %d-%d: expected %d vectors, got %d", start, end, len(batch), len(vecs))
		}
		for _, v := range vecs {
			if len(v) != e.dim {
				return nil, fmt.Errorf("embedding dimension mismatch: expected %d, got %d", e.dim, len(v))
			}
			out = append(out, v)
		}
	}
	return out, nil
}
