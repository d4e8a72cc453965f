package metadata

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// UpsertSource inserts or updates a Source row (id 0 means insert).
func (s *Store) UpsertSource(ctx context.Context, src Source) (int64, error) {
	autoTags := strings.Join(src.AutoTags, ",")

	if src.ID == 0 {
		res, err := s.db.ExecContext(ctx, `
			INSERT INTO sources (user_id, name, url, kind, cadence_seconds, active, auto_tags)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, src.UserID, src.Name, src.URL, src.Kind, src.CadenceSeconds, src.Active, autoTags)
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
		}
		return res.LastInsertId()
	}

	_, err := s.db.ExecContext(ctx, `
		UPDATE sources SET name = ?, url = ?, kind = ?, cadence_seconds = ?, active = ?, auto_tags = ?
		WHERE id = ? AND user_id = ?
	`, src.Name, src.URL, src.Kind, src.CadenceSeconds, src.Active, autoTags, src.ID, src.UserID)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return src.ID, nil
}

// GetSource fetches a single source scoped to userID.
func (s *Store) GetSource(ctx context.Context, userID, id int64) (*Source, error) {
	src := &Source{}
	var lastFetched sql.NullTime
	var lastError, autoTags sql.NullString

	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, name, url, kind, cadence_seconds, active,
			last_fetched_at, last_error, consecutive_failures, auto_tags
		FROM sources WHERE id = ? AND user_id = ?
	`, id, userID).Scan(&src.ID, &src.UserID, &src.Name, &src.URL, &src.Kind,
		&src.CadenceSeconds, &src.Active, &lastFetched, &lastError, &src.ConsecutiveFailures, &autoTags)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	if lastFetched.Valid {
		src.LastFetchedAt = &lastFetched.Time
	}
	src.LastError = lastError.String
	if autoTags.String != "" {
		src.AutoTags = strings.Split(autoTags.String, ",")
	}
	return src, nil
}

// ListActiveSources returns all active sources of the given kind
// across all users, for the Scheduler to poll (spec §4.11).
func (s *Store) ListActiveSources(ctx context.Context, kind string) ([]Source, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, name, url, kind, cadence_seconds, active,
			last_fetched_at, last_error, consecutive_failures, auto_tags
		FROM sources WHERE active = 1 AND kind = ?
	`, kind)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	defer rows.Close()

	var out []Source
	for rows.Next() {
		var src Source
		var lastFetched sql.NullTime
		var lastError, autoTags sql.NullString
		if err := rows.Scan(&src.ID, &src.UserID, &src.Name, &src.URL, &src.Kind,
			&src.CadenceSeconds, &src.Active, &lastFetched, &lastError, &src.ConsecutiveFailures, &autoTags); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
		}
		if lastFetched.Valid {
			src.LastFetchedAt = &lastFetched.Time
		}
		src.LastError = lastError.String
		if autoTags.String != "" {
			src.AutoTags = strings.Split(autoTags.String, ",")
		}
		out = append(out, src)
	}
	return out, rows.Err()
}

// ListSourcesByUser returns every source (active or not) owned by
// userID, for the sources management surface (spec §6.1).
func (s *Store) ListSourcesByUser(ctx context.Context, userID int64) ([]Source, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, name, url, kind, cadence_seconds, active,
			last_fetched_at, last_error, consecutive_failures, auto_tags
		FROM sources WHERE user_id = ? ORDER BY id DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	defer rows.Close()

	var out []Source
	for rows.Next() {
		var src Source
		var lastFetched sql.NullTime
		var lastError, autoTags sql.NullString
		if err := rows.Scan(&src.ID, &src.UserID, &src.Name, &src.URL, &src.Kind,
			&src.CadenceSeconds, &src.Active, &lastFetched, &lastError, &src.ConsecutiveFailures, &autoTags); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
		}
		if lastFetched.Valid {
			src.LastFetchedAt = &lastFetched.Time
		}
		src.LastError = lastError.String
		if autoTags.String != "" {
			src.AutoTags = strings.Split(autoTags.String, ",")
		}
		out = append(out, src)
	}
	return out, rows.Err()
}

// TouchSource records a poll attempt. On success (fetchErr == nil),
// last_fetched_at advances monotonically (spec §3 invariant 6) and
// consecutive_failures resets; on failure it increments the failure
// counter, matching the source state machine of spec §4.18.
func (s *Store) TouchSource(ctx context.Context, id int64, at time.Time, fetchErr error) error {
	if fetchErr == nil {
		_, err := s.db.ExecContext(ctx, `
			UPDATE sources SET last_fetched_at = ?, last_error = NULL, consecutive_failures = 0
			WHERE id = ? AND (last_fetched_at IS NULL OR last_fetched_at < ?)
		`, at, id, at)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
		}
		return nil
	}

	_, err := s.db.ExecContext(ctx, `
		UPDATE sources SET last_error = ?, consecutive_failures = consecutive_failures + 1
		WHERE id = ?
	`, fetchErr.Error(), id)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return nil
}

// DeleteSource removes a source belonging to userID.
func (s *Store) DeleteSource(ctx context.Context, userID, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM sources WHERE id = ? AND user_id = ?", id, userID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
