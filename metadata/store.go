// Package metadata implements the durable relational store (spec §4.1):
// users, documents, sources, tags, and search history, behind typed
// accessors with transactional writes.
package metadata

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Document mirrors spec §3's Document entity.
type Document struct {
	ID           int64
	UserID       int64
	Title        string
	Content      string
	Summary      string
	SourceURL    string
	SourceType   string // rss, web, upload, manual
	PublishedAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
	ContentHash  string
	IndexedState string // pending, indexed, failed, evicting
	Tags         []string
}

// Source mirrors spec §3's Source entity.
type Source struct {
	ID                   int64
	UserID               int64
	Name                 string
	URL                  string
	Kind                 string // rss, web
	CadenceSeconds       int
	Active               bool
	LastFetchedAt        *time.Time
	LastError            string
	ConsecutiveFailures  int
	AutoTags             []string
}

// sourceErrorThreshold mirrors scheduler.errorStateThreshold; kept as
// a separate constant since metadata must not import scheduler.
const sourceErrorThreshold = 3

// State reports the source state machine's current node (spec §4.18):
// paused when deactivated, the soft error state once three consecutive
// polls have failed in a row, else active.
func (s Source) State() string {
	if !s.Active {
		return "paused"
	}
	if s.ConsecutiveFailures >= sourceErrorThreshold {
		return "error"
	}
	return "active"
}

// SearchRecord mirrors spec §3's SearchRecord entity.
type SearchRecord struct {
	ID          int64
	UserID      int64
	Query       string
	ResultCount int
	ElapsedMs   int64
	CreatedAt   time.Time
}

// Filter selects documents by spec §4.1's supported predicates.
type Filter struct {
	SourceType string
	DateFrom   *time.Time
	DateTo     *time.Time
	TagsAny    []string
	TextLike   string
}

// Page is offset/limit pagination with the deterministic ordering
// spec §4.1 requires: (created_at DESC, id DESC).
type Page struct {
	Offset int
	Limit  int
}

// Store wraps the SQLite database backing the metadata layer, following
// the teacher's Store shape (bbiangul-go-reason/store/store.go): a
// *sql.DB plus a tuned connection pool for SQLite's single-writer model.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the metadata database at path and applies the
// schema and any pending migrations.
func New(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating metadata directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("%w: opening database: %v", ErrStorageUnavailable, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: pinging database: %v", ErrStorageUnavailable, err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: creating schema: %v", ErrStorageUnavailable, err)
	}

	// SQLite serializes writers; keep the pool small like the teacher does
	// (bbiangul-go-reason/store/store.go), spec §5's default of 8 readers
	// is honored via MaxOpenConns for read-heavy list/search traffic.
	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(30 * time.Minute)

	s := &Store{db: db}
	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for callers that need raw access
// (e.g. analytics aggregation, out of this repo's core per spec §1).
func (s *Store) DB() *sql.DB {
	return s.db
}
