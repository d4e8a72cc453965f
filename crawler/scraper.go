package crawler

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// ScrapedArticle is the result of extracting the primary content from
// an arbitrary article HTML page.
type ScrapedArticle struct {
	Title   string
	Content string
}

// selectorChain lists, most-specific first, the element matchers tried
// in order to find an article's main content, grounded on the
// fallback cascade original_source/backend/app/crawlers/web_scraper.py
// uses (try <article>, then common CMS content divs, then <body> as a
// last resort).
var selectorChain = []func(*html.Node) bool{
	isTag("article"),
	hasClassContaining("article-body", "article-content", "post-content", "entry-content"),
	isTag("main"),
	isTag("body"),
}

// Scrape extracts a title and main body text from an HTML document
// using the first matching selector in selectorChain (spec §4.8).
func Scrape(body []byte) (*ScrapedArticle, error) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parsing HTML: %w", err)
	}

	title := findTitle(doc)

	for _, match := range selectorChain {
		if node := findFirst(doc, match); node != nil {
			var b strings.Builder
			extractText(node, &b)
			content := collapseWhitespace(strings.TrimSpace(b.String()))
			if len(content) > 0 {
				return &ScrapedArticle{Title: title, Content: content}, nil
			}
		}
	}

	return &ScrapedArticle{Title: title, Content: ""}, nil
}

// FetchAndScrape fetches an article URL and extracts its content.
func FetchAndScrape(ctx context.Context, f Fetcher, articleURL string) (*ScrapedArticle, error) {
	res, err := f.Fetch(ctx, articleURL)
	if err != nil {
		return nil, fmt.Errorf("fetching article %s: %w", articleURL, err)
	}
	return Scrape(res.Body)
}

func isTag(tag string) func(*html.Node) bool {
	return func(n *html.Node) bool {
		return n.Type == html.ElementNode && n.Data == tag
	}
}

func hasClassContaining(needles ...string) func(*html.Node) bool {
	return func(n *html.Node) bool {
		if n.Type != html.ElementNode {
			return false
		}
		for _, attr := range n.Attr {
			if attr.Key != "class" && attr.Key != "id" {
				continue
			}
			for _, needle := range needles {
				if strings.Contains(attr.Val, needle) {
					return true
				}
			}
		}
		return false
	}
}

func findFirst(n *html.Node, match func(*html.Node) bool) *html.Node {
	if match(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findFirst(c, match); found != nil {
			return found
		}
	}
	return nil
}

func findTitle(n *html.Node) string {
	if n.Type == html.ElementNode && n.Data == "title" && n.FirstChild != nil {
		return strings.TrimSpace(n.FirstChild.Data)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if t := findTitle(c); t != "" {
			return t
		}
	}
	return ""
}
