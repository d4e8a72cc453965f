//go:build cgo

package metadata

import (
	"context"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func mustUser(t *testing.T, s *Store) int64 {
	t.Helper()
	id, err := s.CreateUser(context.Background(), "alice", "Alice")
	if err != nil {
		t.Fatalf("creating user: %v", err)
	}
	return id
}

func TestPutDocumentAndGet(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	uid := mustUser(t, s)

	docID, err := s.PutDocument(ctx, Document{
		UserID:      uid,
		Title:       "hello",
		Content:     "world",
		SourceType:  "manual",
		ContentHash: "hash1",
		Tags:        []string{"Go", "go", "News"},
	})
	if err != nil {
		t.Fatalf("PutDocument: %v", err)
	}

	doc, err := s.GetDocument(ctx, uid, docID)
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	if doc.IndexedState != "pending" {
		t.Errorf("expected pending state, got %s", doc.IndexedState)
	}
	if len(doc.Tags) != 2 {
		t.Errorf("expected case-folded dedup to 2 tags, got %v", doc.Tags)
	}
}

func TestPutDocumentDuplicateContentHash(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	uid := mustUser(t, s)

	doc := Document{UserID: uid, Title: "a", Content: "x", SourceType: "manual", ContentHash: "dup"}
	if _, err := s.PutDocument(ctx, doc); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	doc.Title = "b"
	if _, err := s.PutDocument(ctx, doc); err == nil {
		t.Fatal("expected duplicate error on second insert with same content_hash")
	}
}

func TestPutDocumentDuplicateSourceURL(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	uid := mustUser(t, s)

	doc := Document{UserID: uid, Title: "a", Content: "x", SourceType: "rss", SourceURL: "http://x/1", ContentHash: "h1"}
	if _, err := s.PutDocument(ctx, doc); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	doc.ContentHash = "h2"
	if _, err := s.PutDocument(ctx, doc); err == nil {
		t.Fatal("expected duplicate error on second insert with same source_url")
	}
}

func TestListDocumentsOrderingAndFilter(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	uid := mustUser(t, s)

	for _, h := range []string{"h1", "h2", "h3"} {
		_, err := s.PutDocument(ctx, Document{
			UserID: uid, Title: "t", Content: "c", SourceType: "rss", ContentHash: h,
		})
		if err != nil {
			t.Fatalf("insert %s: %v", h, err)
		}
	}

	docs, err := s.ListDocuments(ctx, uid, Filter{SourceType: "rss"}, Page{Limit: 10})
	if err != nil {
		t.Fatalf("ListDocuments: %v", err)
	}
	if len(docs) != 3 {
		t.Fatalf("expected 3 docs, got %d", len(docs))
	}
	// created_at DESC, id DESC: most recently inserted first.
	if docs[0].ContentHash != "h3" {
		t.Errorf("expected h3 first, got %s", docs[0].ContentHash)
	}
}

func TestMarkIndexedAndEvict(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	uid := mustUser(t, s)

	docID, err := s.PutDocument(ctx, Document{UserID: uid, Title: "t", Content: "c", SourceType: "manual", ContentHash: "hh"})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	if err := s.MarkIndexed(ctx, docID, "indexed"); err != nil {
		t.Fatalf("MarkIndexed: %v", err)
	}
	if err := s.BeginEviction(ctx, uid, docID); err != nil {
		t.Fatalf("BeginEviction: %v", err)
	}
	doc, err := s.GetDocument(ctx, uid, docID)
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	if doc.IndexedState != "evicting" {
		t.Errorf("expected evicting, got %s", doc.IndexedState)
	}
	if err := s.HardDelete(ctx, docID); err != nil {
		t.Fatalf("HardDelete: %v", err)
	}
	if _, err := s.GetDocument(ctx, uid, docID); err != ErrNotFound {
		t.Errorf("expected ErrNotFound after hard delete, got %v", err)
	}
}

func TestTopTags(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	uid := mustUser(t, s)

	docs := []struct {
		hash string
		tags []string
	}{
		{"a", []string{"go", "backend"}},
		{"b", []string{"go"}},
		{"c", []string{"rust"}},
	}
	for _, d := range docs {
		if _, err := s.PutDocument(ctx, Document{UserID: uid, Title: "t", Content: "c", SourceType: "manual", ContentHash: d.hash, Tags: d.tags}); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	top, err := s.TopTags(ctx, uid, 10)
	if err != nil {
		t.Fatalf("TopTags: %v", err)
	}
	if len(top) == 0 || top[0].Name != "go" || top[0].Count != 2 {
		t.Fatalf("expected go to be top tag with count 2, got %+v", top)
	}
}
