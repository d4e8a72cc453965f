// Package dedupe normalizes document content for hashing and checks
// candidates against the metadata store's existing documents before
// they're admitted for ingestion.
//
// Grounded on the teacher's content-hash pattern in
// bbiangul-go-reason/chunker/chunker.go (contentHash via sha256),
// generalized from per-chunk hashing to whole-document hashing with a
// normalization pass so trivial whitespace/casing differences between
// re-crawled copies of the same article don't produce false negatives
// (spec §4.10).
package dedupe

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"regexp"
	"strings"

	"github.com/atlaslabs/newsbase/metadata"
)

var whitespaceRun = regexp.MustCompile(`\s+`)

// Normalize collapses whitespace and lower-cases content so
// near-identical copies of the same article (different byte-for-byte
// but semantically the same) hash identically (spec §4.10).
func Normalize(content string) string {
	trimmed := strings.TrimSpace(content)
	collapsed := whitespaceRun.ReplaceAllString(trimmed, " ")
	return strings.ToLower(collapsed)
}

// ContentHash returns the sha256 hex digest of normalized content.
func ContentHash(content string) string {
	h := sha256.Sum256([]byte(Normalize(content)))
	return hex.EncodeToString(h[:])
}

// Lookup is the subset of metadata.Store the Deduper needs, kept
// narrow so callers can pass a *metadata.Store directly.
type Lookup interface {
	FindByContentHash(ctx context.Context, userID int64, hash string) (*metadata.Document, error)
	FindBySourceURL(ctx context.Context, userID int64, sourceURL string) (*metadata.Document, error)
}

// Deduper decides whether an incoming document duplicates one already
// stored for the user.
type Deduper struct {
	store Lookup
}

// New constructs a Deduper over a metadata lookup.
func New(store Lookup) *Deduper {
	return &Deduper{store: store}
}

// Candidate is a document proposed for ingestion.
type Candidate struct {
	UserID    int64
	Content   string
	SourceURL string
}

// Verdict reports whether a candidate is a duplicate and, if so, the
// id of the existing document it duplicates.
type Verdict struct {
	Duplicate         bool
	ExistingDocumentID int64
	Reason            string
}

// Check applies spec §4.10's two-stage dedup: an exact content-hash
// match first (catches re-crawls of the same article verbatim), then
// a source URL match (catches re-crawls where the site edited the
// text but the canonical URL didn't change).
func (d *Deduper) Check(ctx context.Context, c Candidate) (Verdict, error) {
	hash := ContentHash(c.Content)

	if doc, err := d.store.FindByContentHash(ctx, c.UserID, hash); err == nil {
		return Verdict{Duplicate: true, ExistingDocumentID: doc.ID, Reason: "content_hash"}, nil
	} else if !errors.Is(err, metadata.ErrNotFound) {
		return Verdict{}, err
	}

	if c.SourceURL != "" {
		if doc, err := d.store.FindBySourceURL(ctx, c.UserID, c.SourceURL); err == nil {
			return Verdict{Duplicate: true, ExistingDocumentID: doc.ID, Reason: "source_url"}, nil
		} else if !errors.Is(err, metadata.ErrNotFound) {
			return Verdict{}, err
		}
	}

	return Verdict{Duplicate: false}, nil
}
