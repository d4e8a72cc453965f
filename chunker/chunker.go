// Package chunker splits article text into overlapping segments for
// embedding, using a recursive-separator strategy grounded on the
// teacher's paragraph/sentence splitting cascade
// (bbiangul-go-reason/chunker/chunker.go): try the coarsest separator
// first, fall back to progressively finer ones only where a fragment
// still exceeds the target size.
package chunker

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Chunk is one recursively-split, overlap-carrying segment of a
// document's content, ready for embedding.
type Chunk struct {
	ChunkID    string
	DocumentID int64
	Ordinal    int
	Text       string
}

// Config controls target size and overlap in characters (spec §4.5:
// target 1000 chars, overlap 200).
type Config struct {
	TargetSize int
	Overlap    int
}

// Chunker recursively splits text on a cascade of separators.
type Chunker struct {
	cfg        Config
	separators []string
}

// separators tried coarsest-first: paragraph breaks, then line breaks,
// then spaces, then character-level as a last resort (spec §4.5).
var defaultSeparators = []string{"\n\n", "\n", " ", ""}

// New returns a Chunker with the given configuration. Zero-value
// fields fall back to the spec defaults.
func New(cfg Config) *Chunker {
	if cfg.TargetSize <= 0 {
		cfg.TargetSize = 1000
	}
	if cfg.Overlap <= 0 {
		cfg.Overlap = 200
	}
	return &Chunker{cfg: cfg, separators: defaultSeparators}
}

// Chunk splits content into ordered, overlapping chunks and assigns
// each a deterministic id: sha256(documentID + ":" + ordinal), so
// re-chunking identical content always reproduces the same chunk ids
// (spec §4.5, §9 "Deterministic chunk identity").
func (c *Chunker) Chunk(documentID int64, content string) []Chunk {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil
	}

	pieces := c.split(content, c.separators)
	merged := c.mergeWithOverlap(pieces)

	chunks := make([]Chunk, 0, len(merged))
	for i, text := range merged {
		chunks = append(chunks, Chunk{
			ChunkID:    chunkID(documentID, i),
			DocumentID: documentID,
			Ordinal:    i,
			Text:       text,
		})
	}
	return chunks
}

// split recursively breaks text using the first separator in seps that
// yields fragments no larger than TargetSize once merged; a fragment
// still exceeding TargetSize is recursively re-split with the next,
// finer separator.
func (c *Chunker) split(text string, seps []string) []string {
	if len(text) <= c.cfg.TargetSize {
		return []string{text}
	}
	if len(seps) == 0 {
		return hardWrap(text, c.cfg.TargetSize)
	}

	sep, rest := seps[0], seps[1:]
	var parts []string
	if sep == "" {
		parts = hardWrap(text, c.cfg.TargetSize)
	} else {
		parts = splitKeepingNonEmpty(text, sep)
	}

	var out []string
	for _, p := range parts {
		if len(p) > c.cfg.TargetSize {
			out = append(out, c.split(p, rest)...)
		} else {
			out = append(out, p)
		}
	}
	return out
}

func splitKeepingNonEmpty(text, sep string) []string {
	raw := strings.Split(text, sep)
	out := make([]string, 0, len(raw))
	for _, p := range raw {
		if strings.TrimSpace(p) != "" {
			out = append(out, p)
		}
	}
	return out
}

func hardWrap(text string, size int) []string {
	runes := []rune(text)
	var out []string
	for start := 0; start < len(runes); start += size {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, string(runes[start:end]))
	}
	return out
}

// mergeWithOverlap greedily packs split fragments back up toward
// TargetSize (small fragments from fine-grained splitting shouldn't
// each become their own chunk), then prepends the trailing Overlap
// characters of the previous chunk to each chunk after the first.
func (c *Chunker) mergeWithOverlap(pieces []string) []string {
	if len(pieces) == 0 {
		return nil
	}

	var packed []string
	var current strings.Builder
	for _, p := range pieces {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if current.Len() > 0 && current.Len()+1+len(p) > c.cfg.TargetSize {
			packed = append(packed, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteString(" ")
		}
		current.WriteString(p)
	}
	if current.Len() > 0 {
		packed = append(packed, current.String())
	}

	if len(packed) <= 1 || c.cfg.Overlap <= 0 {
		return packed
	}

	out := make([]string, len(packed))
	out[0] = packed[0]
	for i := 1; i < len(packed); i++ {
		overlap := trailingRunes(packed[i-1], c.cfg.Overlap)
		if overlap == "" {
			out[i] = packed[i]
			continue
		}
		out[i] = overlap + " " + packed[i]
	}
	return out
}

func trailingRunes(text string, n int) string {
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[len(runes)-n:])
}

// chunkID computes the deterministic chunk identifier spec §4.5
// requires: sha256(documentID + ":" + ordinal), hex-encoded.
func chunkID(documentID int64, ordinal int) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("%d:%d", documentID, ordinal)))
	return hex.EncodeToString(h[:])
}
