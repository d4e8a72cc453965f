package vectorstore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
)

// compact rebuilds the index database from its surviving (non-deleted)
// vectors, discarding tombstoned rows, then atomically swaps the
// rebuilt file in for the live one (spec §4.2 "Compact": triggered
// when tombstone ratio or count crosses threshold; rebuild happens
// off the hot path but under the write lock the caller already holds).
func (idx *Index) compact(ctx context.Context) error {
	tmpPath := filepath.Join(idx.dir, "index.db.compact")
	os.Remove(tmpPath)

	tmpDB, err := sql.Open("sqlite3", tmpPath+"?_journal_mode=WAL&_busy_timeout=30000")
	if err != nil {
		return fmt.Errorf("opening compaction target: %w", err)
	}
	defer tmpDB.Close()

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
	`, idx.dim)
	if _, err := tmpDB.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("creating compaction schema: %w", err)
	}

	rows, err := idx.db.QueryContext(ctx, `
		SELECT v.chunk_id, v.embedding, s.document_id, s.ordinal, s.text_preview, s.created_at
		FROM vec_chunks v
		JOIN sidecar s ON s.chunk_id = v.chunk_id
		WHERE s.deleted = 0
	`)
	if err != nil {
		return fmt.Errorf("%w: reading surviving vectors: %v", ErrIndexCorrupt, err)
	}

	tx, err := tmpDB.BeginTx(ctx, nil)
	if err != nil {
		rows.Close()
		return fmt.Errorf("starting compaction transaction: %w", err)
	}

	survivors := 0
	for rows.Next() {
		var chunkID, textPreview string
		var embedding []byte
		var documentID int64
		var ordinal int
		var createdAt interface{}
		if err := rows.Scan(&chunkID, &embedding, &documentID, &ordinal, &textPreview, &createdAt); err != nil {
			rows.Close()
			tx.Rollback()
			return fmt.Errorf("%w: %v", ErrIndexCorrupt, err)
		}
		reserialized := serializeFloat32(deserializeFloat32(embedding))
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO vec_chunks (chunk_id, embedding) VALUES (?, ?)", chunkID, reserialized); err != nil {
			rows.Close()
			tx.Rollback()
			return fmt.Errorf("%w: %v", ErrIndexCorrupt, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO sidecar (chunk_id, document_id, ordinal, text_preview, created_at, deleted)
			VALUES (?, ?, ?, ?, ?, 0)
		`, chunkID, documentID, ordinal, textPreview, createdAt); err != nil {
			rows.Close()
			tx.Rollback()
			return fmt.Errorf("%w: %v", ErrIndexCorrupt, err)
		}
		survivors++
	}
	rowErr := rows.Err()
	rows.Close()
	if rowErr != nil {
		tx.Rollback()
		return fmt.Errorf("%w: %v", ErrIndexCorrupt, rowErr)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing compaction: %w", err)
	}
	if err := tmpDB.Close(); err != nil {
		return fmt.Errorf("closing compaction target: %w", err)
	}

	if err := idx.db.Close(); err != nil {
		return fmt.Errorf("closing live db for swap: %w", err)
	}

	livePath := filepath.Join(idx.dir, "index.db")
	if err := os.Rename(tmpPath, livePath); err != nil {
		return fmt.Errorf("swapping compacted index into place: %w", err)
	}
	for _, suffix := range []string{"-wal", "-shm"} {
		os.Remove(livePath + suffix)
	}

	newDB, err := sql.Open("sqlite3", livePath+"?_journal_mode=WAL&_busy_timeout=30000")
	if err != nil {
		return fmt.Errorf("reopening compacted index: %w", err)
	}
	idx.db = newDB
	idx.meta.VectorCount = survivors
	idx.meta.DeletedCount = 0

	return idx.writeMetaFile(idx.meta)
}
