// Package vectorstore implements the per-user ANN index manager of
// spec §4.2: one sqlite-vec-backed vector index per user, on disk under
// <root>/user_<id>/, with a bounded in-memory cache and per-user
// single-writer discipline.
//
// The on-disk layout generalizes the teacher's single global store
// (bbiangul-go-reason/store/store.go, which embeds one vec0 virtual
// table in one database for all documents) into one such database per
// user, plus a JSON sidecar snapshot and a meta.json stamp so the
// physical layout matches spec §6.2 even though the durable form is a
// SQLite file rather than a raw FAISS index.bin.
package vectorstore

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
)

// serializeFloat32 converts a float32 slice to little-endian bytes for
// sqlite-vec, matching the wire format sqlite-vec's vec0 tables expect.
func serializeFloat32(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// deserializeFloat32 is the inverse of serializeFloat32, used during
// compaction to re-read stored vectors before rewriting them.
func deserializeFloat32(buf []byte) []float32 {
	out := make([]float32, len(buf)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return out
}

func init() {
	sqlite_vec.Auto()
}

// Chunk is the derived, non-relationally-persisted unit spec §3
// describes: a sub-text of a Document embedded and stored in the
// per-user vector index.
type Chunk struct {
	ChunkID      string
	DocumentID   int64
	Ordinal      int
	Text         string
	TextPreview  string
	Embedding    []float32
	CreatedAt    time.Time
}

// SearchHit is one ANN result: a chunk id, its L2 distance, and the
// stored text preview (truncated; callers needing the full chunk text
// re-derive it from the source document).
type SearchHit struct {
	ChunkID     string
	DocumentID  int64
	Ordinal     int
	Distance    float64
	TextPreview string
}

// Meta is the sidecar meta.json stamp: embedder version, counts.
type Meta struct {
	EmbedderVersion string    `json:"embedder_version"`
	CreatedAt       time.Time `json:"created_at"`
	VectorCount     int       `json:"vector_count"`
	DeletedCount    int       `json:"deleted_count"`
}

// sidecarEntry is one row of the chunk_id -> metadata sidecar map
// (spec §6.2, GLOSSARY "Sidecar").
type sidecarEntry struct {
	DocumentID  int64     `json:"document_id"`
	Ordinal     int       `json:"ordinal"`
	TextPreview string    `json:"text_preview"`
	CreatedAt   time.Time `json:"created_at"`
	Deleted     bool      `json:"deleted"`
}

// Index owns one user's on-disk vector store. All mutation methods
// must be called with the write lock held by the owning Manager; reads
// may proceed concurrently with other users' writes (spec §5).
type Index struct {
	mu sync.RWMutex

	dir  string
	db   *sql.DB
	dim  int
	meta Meta
}

const embeddingDim = 384

func indexDir(root string, userID int64) string {
	return filepath.Join(root, fmt.Sprintf("user_%d", userID))
}

// openIndex opens or creates the per-user index directory and its
// backing SQLite database, verifying the embedder version stamp.
func openIndex(root string, userID int64, embedderVersion string) (*Index, error) {
	dir := indexDir(root, userID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating index dir: %w", err)
	}

	dbPath := filepath.Join(dir, "index.db")
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIndexCorrupt, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", ErrIndexCorrupt, err)
	}

	schema := fmt.Sprintf(`
		CREATE VIRTUAL TABLE IF NOT EXISTS vec_chunks USING vec0(
			chunk_id TEXT PRIMARY KEY,
			embedding float[%d]
		);
		CREATE TABLE IF NOT EXISTS sidecar (
			chunk_id TEXT PRIMARY KEY,
			document_id INTEGER NOT NULL,
			ordinal INTEGER NOT NULL,
			text_preview TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			deleted INTEGER NOT NULL DEFAULT 0
		);
		CREATE INDEX IF NOT EXISTS idx_sidecar_document ON sidecar(document_id);
	`, embeddingDim)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: creating schema: %v", ErrIndexCorrupt, err)
	}

	idx := &Index{dir: dir, db: db, dim: embeddingDim}

	meta, err := idx.loadOrInitMeta(embedderVersion)
	if err != nil {
		db.Close()
		return nil, err
	}
	if meta.EmbedderVersion != embedderVersion {
		db.Close()
		return nil, fmt.Errorf("%w: index built with %q, caller expects %q",
			ErrIndexCorrupt, meta.EmbedderVersion, embedderVersion)
	}
	idx.meta = meta

	return idx, nil
}

func (idx *Index) metaPath() string { return filepath.Join(idx.dir, "meta.json") }
func (idx *Index) sidecarPath() string { return filepath.Join(idx.dir, "sidecar.json") }

func (idx *Index) loadOrInitMeta(embedderVersion string) (Meta, error) {
	data, err := os.ReadFile(idx.metaPath())
	if os.IsNotExist(err) {
		m := Meta{EmbedderVersion: embedderVersion, CreatedAt: time.Now()}
		return m, idx.writeMetaFile(m)
	}
	if err != nil {
		return Meta{}, fmt.Errorf("%w: reading meta.json: %v", ErrIndexCorrupt, err)
	}
	var m Meta
	if err := json.Unmarshal(data, &m); err != nil {
		return Meta{}, fmt.Errorf("%w: parsing meta.json: %v", ErrIndexCorrupt, err)
	}
	return m, nil
}

// writeMetaFile persists meta.json atomically via write-temp + rename,
// as spec §6.2 requires.
func (idx *Index) writeMetaFile(m Meta) error {
	return atomicWriteJSON(idx.metaPath(), m)
}

func atomicWriteJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Add appends chunks to the index, updating the sidecar. Add must be
// called with the write lock held (spec §5's per-user FIFO discipline).
func (idx *Index) Add(ctx context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()

	tx, err := idx.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrIndexCorrupt, err)
	}
	defer tx.Rollback()

	for _, c := range chunks {
		if _, err := tx.ExecContext(ctx,
			"INSERT OR REPLACE INTO vec_chunks (chunk_id, embedding) VALUES (?, ?)",
			c.ChunkID, serializeFloat32(c.Embedding)); err != nil {
			return fmt.Errorf("%w: %v", ErrIndexCorrupt, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO sidecar (chunk_id, document_id, ordinal, text_preview, created_at, deleted)
			VALUES (?, ?, ?, ?, ?, 0)
		`, c.ChunkID, c.DocumentID, c.Ordinal, previewOf(c.Text), time.Now()); err != nil {
			return fmt.Errorf("%w: %v", ErrIndexCorrupt, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %v", ErrIndexCorrupt, err)
	}

	idx.meta.VectorCount += len(chunks)
	return nil
}

func previewOf(text string) string {
	const maxLen = 200
	if len(text) <= maxLen {
		return text
	}
	return text[:maxLen]
}

// Search performs a KNN search over non-deleted chunks and returns the
// top-k nearest by L2 distance ascending.
func (idx *Index) Search(ctx context.Context, queryVec []float32, k int) ([]SearchHit, error) {
	if k > maxSearchK {
		return nil, ErrTooManyResults
	}
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	serialized := serializeFloat32(queryVec)

	// Over-fetch to compensate for post-filtering out deleted chunks.
	fetchK := k * 2
	if fetchK > maxSearchK {
		fetchK = maxSearchK
	}
	if fetchK < k {
		fetchK = k
	}

	rows, err := idx.db.QueryContext(ctx, `
		SELECT v.chunk_id, v.distance, s.document_id, s.ordinal, s.text_preview
		FROM vec_chunks v
		JOIN sidecar s ON s.chunk_id = v.chunk_id
		WHERE v.embedding MATCH ? AND k = ? AND s.deleted = 0
		ORDER BY v.distance
	`, serialized, fetchK)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIndexCorrupt, err)
	}
	defer rows.Close()

	var hits []SearchHit
	for rows.Next() {
		var h SearchHit
		if err := rows.Scan(&h.ChunkID, &h.Distance, &h.DocumentID, &h.Ordinal, &h.TextPreview); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrIndexCorrupt, err)
		}
		hits = append(hits, h)
		if len(hits) == k {
			break
		}
	}
	return hits, rows.Err()
}

// RemoveByDocument marks chunks of a document as deleted (soft
// deletion per spec §9 "Soft deletion of vectors"). Returns the
// resulting deleted and total chunk counts so the caller can decide
// whether to trigger a Compact.
func (idx *Index) RemoveByDocument(ctx context.Context, documentID int64) (deletedCount, totalCount int, err error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if _, err := idx.db.ExecContext(ctx,
		"UPDATE sidecar SET deleted = 1 WHERE document_id = ? AND deleted = 0", documentID); err != nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrIndexCorrupt, err)
	}

	row := idx.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sidecar WHERE deleted = 1")
	if err := row.Scan(&deletedCount); err != nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrIndexCorrupt, err)
	}
	row = idx.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sidecar")
	if err := row.Scan(&totalCount); err != nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrIndexCorrupt, err)
	}
	idx.meta.DeletedCount = deletedCount
	return deletedCount, totalCount, nil
}

// Stats returns the current vector/deleted counts.
func (idx *Index) Stats() (vectorCount, deletedCount int) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.meta.VectorCount, idx.meta.DeletedCount
}

// EmbedderVersion returns the version stamped into this index.
func (idx *Index) EmbedderVersion() string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.meta.EmbedderVersion
}

// Persist snapshots the sidecar and meta files atomically (spec §4.2
// Persist, §6.2 atomic-rename layout). The index database itself is
// not synced here; every committed write is already in it.
func (idx *Index) Persist(ctx context.Context) error {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	rows, err := idx.db.QueryContext(ctx, "SELECT chunk_id, document_id, ordinal, text_preview, created_at, deleted FROM sidecar")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrIndexCorrupt, err)
	}
	defer rows.Close()

	snapshot := make(map[string]sidecarEntry)
	for rows.Next() {
		var chunkID string
		var e sidecarEntry
		var deleted int
		if err := rows.Scan(&chunkID, &e.DocumentID, &e.Ordinal, &e.TextPreview, &e.CreatedAt, &deleted); err != nil {
			return fmt.Errorf("%w: %v", ErrIndexCorrupt, err)
		}
		e.Deleted = deleted != 0
		snapshot[chunkID] = e
	}
	if err := rows.Err(); err != nil {
		return err
	}

	if err := atomicWriteJSON(idx.sidecarPath(), snapshot); err != nil {
		return fmt.Errorf("writing sidecar snapshot: %w", err)
	}
	if err := idx.writeMetaFile(idx.meta); err != nil {
		return fmt.Errorf("writing meta snapshot: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (idx *Index) Close() error {
	return idx.db.Close()
}

// documentIDs returns the distinct ids of documents that still have at
// least one non-deleted chunk in the index.
func (idx *Index) documentIDs(ctx context.Context) ([]int64, error) {
	rows, err := idx.db.QueryContext(ctx, "SELECT DISTINCT document_id FROM sidecar WHERE deleted = 0")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
