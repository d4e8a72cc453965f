package metadata

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// PutDocument inserts a new document with its tag set inside a single
// transaction (spec §4.1: "every write that touches Documents and Tags
// runs inside one transaction"). Returns ErrDuplicateDocument if the
// (user_id, source_url) or (user_id, content_hash) uniqueness invariant
// would be violated.
func (s *Store) PutDocument(ctx context.Context, doc Document) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	defer tx.Rollback()

	var sourceURL sql.NullString
	if doc.SourceURL != "" {
		sourceURL = sql.NullString{String: doc.SourceURL, Valid: true}
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO documents (user_id, title, content, summary, source_url, source_type,
			published_at, content_hash, indexed_state)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, doc.UserID, doc.Title, doc.Content, doc.Summary, sourceURL, doc.SourceType,
		doc.PublishedAt, doc.ContentHash, orDefault(doc.IndexedState, "pending"))
	if err != nil {
		if isUniqueViolation(err) {
			return 0, ErrDuplicateDocument
		}
		return 0, fmt.Errorf("%w: inserting document: %v", ErrStorageUnavailable, err)
	}

	docID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	if err := attachTags(ctx, tx, docID, doc.Tags); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return docID, nil
}

// attachTags upserts the tag set (case-folded, deduplicated per spec §3
// invariant 5) and links it to the document within tx.
func attachTags(ctx context.Context, tx *sql.Tx, docID int64, tags []string) error {
	seen := make(map[string]bool, len(tags))
	for _, raw := range tags {
		name := strings.ToLower(strings.TrimSpace(raw))
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO tags (name) VALUES (?) ON CONFLICT(name) DO NOTHING", name); err != nil {
			return fmt.Errorf("%w: upserting tag: %v", ErrStorageUnavailable, err)
		}

		var tagID int64
		if err := tx.QueryRowContext(ctx, "SELECT id FROM tags WHERE name = ?", name).Scan(&tagID); err != nil {
			return fmt.Errorf("%w: resolving tag id: %v", ErrStorageUnavailable, err)
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO document_tags (document_id, tag_id) VALUES (?, ?)",
			docID, tagID); err != nil {
			return fmt.Errorf("%w: linking tag: %v", ErrStorageUnavailable, err)
		}
	}
	return nil
}

// GetDocument fetches a document by id, scoped to userID to enforce
// cross-user isolation at the store layer.
func (s *Store) GetDocument(ctx context.Context, userID, docID int64) (*Document, error) {
	doc := &Document{}
	var sourceURL, summary sql.NullString
	var publishedAt sql.NullTime

	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, title, content, summary, source_url, source_type,
			published_at, created_at, updated_at, content_hash, indexed_state
		FROM documents WHERE id = ? AND user_id = ?
	`, docID, userID).Scan(&doc.ID, &doc.UserID, &doc.Title, &doc.Content, &summary,
		&sourceURL, &doc.SourceType, &publishedAt, &doc.CreatedAt, &doc.UpdatedAt,
		&doc.ContentHash, &doc.IndexedState)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	doc.Summary = summary.String
	doc.SourceURL = sourceURL.String
	if publishedAt.Valid {
		doc.PublishedAt = &publishedAt.Time
	}

	tags, err := s.tagsForDocument(ctx, docID)
	if err != nil {
		return nil, err
	}
	doc.Tags = tags
	return doc, nil
}

func (s *Store) tagsForDocument(ctx context.Context, docID int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.name FROM tags t
		JOIN document_tags dt ON dt.tag_id = t.id
		WHERE dt.document_id = ? ORDER BY t.name
	`, docID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	defer rows.Close()

	var tags []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
		}
		tags = append(tags, name)
	}
	return tags, rows.Err()
}

// ListDocuments returns documents for a user matching filter, ordered
// deterministically by (created_at DESC, id DESC), per spec §4.1.
func (s *Store) ListDocuments(ctx context.Context, userID int64, filter Filter, page Page) ([]Document, error) {
	query := strings.Builder{}
	query.WriteString(`
		SELECT DISTINCT d.id, d.user_id, d.title, d.content, d.summary, d.source_url,
			d.source_type, d.published_at, d.created_at, d.updated_at, d.content_hash, d.indexed_state
		FROM documents d
	`)
	var args []interface{}
	var conds []string
	conds = append(conds, "d.user_id = ?")
	args = append(args, userID)

	if len(filter.TagsAny) > 0 {
		query.WriteString(" JOIN document_tags dt ON dt.document_id = d.id JOIN tags t ON t.id = dt.tag_id")
		placeholders := make([]string, len(filter.TagsAny))
		for i, tag := range filter.TagsAny {
			placeholders[i] = "?"
			args = append(args, strings.ToLower(tag))
		}
		conds = append(conds, "t.name IN ("+strings.Join(placeholders, ",")+")")
	}
	if filter.SourceType != "" {
		conds = append(conds, "d.source_type = ?")
		args = append(args, filter.SourceType)
	}
	if filter.DateFrom != nil {
		conds = append(conds, "d.created_at >= ?")
		args = append(args, *filter.DateFrom)
	}
	if filter.DateTo != nil {
		conds = append(conds, "d.created_at <= ?")
		args = append(args, *filter.DateTo)
	}
	if filter.TextLike != "" {
		conds = append(conds, "(d.title LIKE ? OR d.content LIKE ?)")
		like := "%" + filter.TextLike + "%"
		args = append(args, like, like)
	}

	query.WriteString(" WHERE " + strings.Join(conds, " AND "))
	query.WriteString(" ORDER BY d.created_at DESC, d.id DESC LIMIT ? OFFSET ?")

	limit := page.Limit
	if limit <= 0 {
		limit = 20
	}
	args = append(args, limit, page.Offset)

	rows, err := s.db.QueryContext(ctx, query.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var d Document
		var sourceURL, summary sql.NullString
		var publishedAt sql.NullTime
		if err := rows.Scan(&d.ID, &d.UserID, &d.Title, &d.Content, &summary, &sourceURL,
			&d.SourceType, &publishedAt, &d.CreatedAt, &d.UpdatedAt, &d.ContentHash, &d.IndexedState); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
		}
		d.Summary = summary.String
		d.SourceURL = sourceURL.String
		if publishedAt.Valid {
			d.PublishedAt = &publishedAt.Time
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// MarkIndexed transitions a document's indexed_state (spec §4.18's
// document state machine), bumping updated_at.
func (s *Store) MarkIndexed(ctx context.Context, docID int64, state string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE documents SET indexed_state = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?",
		state, docID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// BeginEviction transitions a document to evicting; the row remains
// until the background vector-eviction task calls HardDelete.
func (s *Store) BeginEviction(ctx context.Context, userID, docID int64) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE documents SET indexed_state = 'evicting', updated_at = CURRENT_TIMESTAMP WHERE id = ? AND user_id = ?",
		docID, userID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// HardDelete removes the document row once eviction of its vectors
// completes (spec §4.13's symmetric deletion flow).
func (s *Store) HardDelete(ctx context.Context, docID int64) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM documents WHERE id = ?", docID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return nil
}

// UpdateMutableFields updates the mutable subset of a document (title
// is immutable per spec §3; only summary/tags may change via PUT).
func (s *Store) UpdateMutableFields(ctx context.Context, userID, docID int64, summary string, tags []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		"UPDATE documents SET summary = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ? AND user_id = ?",
		summary, docID, userID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}

	if tags != nil {
		if _, err := tx.ExecContext(ctx, "DELETE FROM document_tags WHERE document_id = ?", docID); err != nil {
			return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
		}
		if err := attachTags(ctx, tx, docID, tags); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return nil
}

// FindByContentHash returns the document, if any, matching invariant 2
// of spec §3: at most one Document per (user_id, content_hash).
func (s *Store) FindByContentHash(ctx context.Context, userID int64, hash string) (*Document, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		"SELECT id FROM documents WHERE user_id = ? AND content_hash = ?", userID, hash).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return s.GetDocument(ctx, userID, id)
}

// FindBySourceURL returns the document, if any, matching invariant 1 of
// spec §3: at most one Document per (user_id, source_url).
func (s *Store) FindBySourceURL(ctx context.Context, userID int64, sourceURL string) (*Document, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		"SELECT id FROM documents WHERE user_id = ? AND source_url = ?", userID, sourceURL).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return s.GetDocument(ctx, userID, id)
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
