package chunker

import (
	"strings"
	"testing"
)

func TestChunkShortTextIsSingleChunk(t *testing.T) {
	c := New(Config{})
	chunks := c.Chunk(1, "a short article body.")
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].Ordinal != 0 {
		t.Errorf("expected ordinal 0, got %d", chunks[0].Ordinal)
	}
}

func TestChunkEmptyContent(t *testing.T) {
	c := New(Config{})
	if chunks := c.Chunk(1, "   "); chunks != nil {
		t.Errorf("expected nil chunks for blank content, got %v", chunks)
	}
}

func TestChunkIDIsDeterministic(t *testing.T) {
	c := New(Config{})
	a := c.Chunk(42, "some text repeated for chunk id stability")
	b := c.Chunk(42, "some text repeated for chunk id stability")
	if a[0].ChunkID != b[0].ChunkID {
		t.Errorf("expected identical content to produce identical chunk ids, got %s vs %s", a[0].ChunkID, b[0].ChunkID)
	}
	if a[0].ChunkID != chunkID(42, 0) {
		t.Errorf("expected chunk id to match sha256(documentID:ordinal)")
	}
}

func TestChunkLongTextSplitsOnParagraphs(t *testing.T) {
	c := New(Config{TargetSize: 100, Overlap: 20})
	para := strings.Repeat("word ", 20) // ~100 chars
	text := para + "\n\n" + para + "\n\n" + para
	chunks := c.Chunk(1, text)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks for long text, got %d", len(chunks))
	}
	for i, ch := range chunks {
		if ch.Ordinal != i {
			t.Errorf("expected chunk ordinals in order, got %d at index %d", ch.Ordinal, i)
		}
	}
}

func TestChunkOverlapCarriesTrailingText(t *testing.T) {
	c := New(Config{TargetSize: 50, Overlap: 15})
	text := strings.Repeat("alpha beta gamma delta epsilon ", 10)
	chunks := c.Chunk(1, text)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	// Every chunk after the first should start with a fragment of the
	// previous chunk's tail.
	for i := 1; i < len(chunks); i++ {
		prevTail := trailingRunes(chunks[i-1].Text, 15)
		if !strings.HasPrefix(chunks[i].Text, prevTail) {
			t.Errorf("chunk %d does not start with overlap from chunk %d", i, i-1)
		}
	}
}

func TestChunkHardWrapsUnsplittableText(t *testing.T) {
	// New replaces a zero Overlap with the 200-character default, so the
	// test sets a small overlap and strips it before measuring each chunk.
	const overlap = 3
	c := New(Config{TargetSize: 10, Overlap: overlap})
	text := strings.Repeat("x", 55)
	chunks := c.Chunk(1, text)
	if len(chunks) == 0 {
		t.Fatal("expected chunks for long unsplittable text")
	}
	for i, ch := range chunks {
		body := ch.Text
		if i > 0 {
			body = strings.TrimPrefix(body, strings.Repeat("x", overlap)+" ")
		}
		if len(body) > 10 {
			t.Errorf("expected chunk text to respect target size, got length %d", len(body))
		}
	}
}
