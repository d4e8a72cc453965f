package crawler

import (
	"strings"
	"testing"
	"time"
)

const sampleRSS = `<?xml version="1.0"?>
<rss version="2.0">
  <channel>
    <title>Example Feed</title>
    <item>
      <title>Hello &amp; World</title>
      <link>http://example.com/1</link>
      <description>&lt;p&gt;Some &lt;b&gt;bold&lt;/b&gt; text.&lt;/p&gt;</description>
      <pubDate>Mon, 02 Jan 2006 15:04:05 -0700</pubDate>
      <guid>guid-1</guid>
    </item>
  </channel>
</rss>`

const sampleAtom = `<?xml version="1.0"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <entry>
    <title>Atom Entry</title>
    <link rel="alternate" href="http://example.com/2"/>
    <summary>plain summary</summary>
    <published>2006-01-02T15:04:05Z</published>
    <id>tag:example.com,2006:2</id>
  </entry>
</feed>`

func TestParseFeedRSS(t *testing.T) {
	items, err := ParseFeed([]byte(sampleRSS))
	if err != nil {
		t.Fatalf("ParseFeed: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
	if items[0].Title != "Hello & World" {
		t.Errorf("expected unescaped title, got %q", items[0].Title)
	}
	if items[0].GUID != "guid-1" {
		t.Errorf("expected guid-1, got %q", items[0].GUID)
	}
	if items[0].PublishedAt.IsZero() {
		t.Error("expected non-zero published date")
	}
	if strings.Contains(items[0].Content, "<b>") {
		t.Errorf("expected sanitized content without tags, got %q", items[0].Content)
	}
}

func TestParseFeedAtom(t *testing.T) {
	items, err := ParseFeed([]byte(sampleAtom))
	if err != nil {
		t.Fatalf("ParseFeed: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
	if items[0].Link != "http://example.com/2" {
		t.Errorf("expected link from alternate rel, got %q", items[0].Link)
	}
}

func TestFilterSinceDropsOldItemsKeepsUndated(t *testing.T) {
	now := time.Date(2026, 8, 6, 0, 0, 0, 0, time.UTC)
	since := now.Add(-24 * time.Hour)
	items := []Item{
		{GUID: "old", PublishedAt: since.Add(-time.Hour)},
		{GUID: "new", PublishedAt: since.Add(time.Hour)},
		{GUID: "undated"},
	}

	kept := filterSince(items, since)

	if len(kept) != 2 {
		t.Fatalf("expected 2 items to survive filtering, got %d", len(kept))
	}
	for _, it := range kept {
		if it.GUID == "old" {
			t.Errorf("expected item published before since to be dropped")
		}
	}
}

func TestFilterSinceZeroKeepsEverything(t *testing.T) {
	items := []Item{{GUID: "a"}, {GUID: "b", PublishedAt: time.Now()}}
	kept := filterSince(items, time.Time{})
	if len(kept) != len(items) {
		t.Fatalf("expected zero since to keep all items, got %d", len(kept))
	}
}

func TestScrapePrefersArticleTag(t *testing.T) {
	page := `<html><head><title>Page Title</title></head>
	<body><div class="sidebar">nav junk</div>
	<article>Main article text here.</article></body></html>`

	result, err := Scrape([]byte(page))
	if err != nil {
		t.Fatalf("Scrape: %v", err)
	}
	if result.Title != "Page Title" {
		t.Errorf("expected title extracted, got %q", result.Title)
	}
	if !strings.Contains(result.Content, "Main article text here") {
		t.Errorf("expected article content extracted, got %q", result.Content)
	}
	if strings.Contains(result.Content, "nav junk") {
		t.Errorf("expected sidebar excluded when article tag present, got %q", result.Content)
	}
}

func TestScrapeFallsBackToClassMatch(t *testing.T) {
	page := `<html><body><div id="post-content">Body text via class fallback.</div></body></html>`
	result, err := Scrape([]byte(page))
	if err != nil {
		t.Fatalf("Scrape: %v", err)
	}
	if !strings.Contains(result.Content, "Body text via class fallback") {
		t.Errorf("expected class-matched content, got %q", result.Content)
	}
}
