package metadata

import (
	"context"
	"fmt"
	"time"
)

// TrendingQuery pairs a query string with how often it was issued and
// the average latency of those searches, within a trailing window
// (spec §6.1's trending-queries analytics).
type TrendingQuery struct {
	Query       string
	Count       int
	AvgElapsed  float64
}

// AddSearchRecord appends a SearchRecord (spec §3: append-only,
// ordered by commit time, not request arrival — spec §5).
func (s *Store) AddSearchRecord(ctx context.Context, userID int64, query string, resultCount int, elapsedMs int64) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO search_history (user_id, query, result_count, elapsed_ms) VALUES (?, ?, ?, ?)
	`, userID, query, resultCount, elapsedMs)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return res.LastInsertId()
}

// UpdateSearchRecord fills in the final result_count/elapsed_ms once a
// retrieval completes (spec §4.14 stage 1 records a placeholder first).
func (s *Store) UpdateSearchRecord(ctx context.Context, id int64, resultCount int, elapsedMs int64) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE search_history SET result_count = ?, elapsed_ms = ? WHERE id = ?",
		resultCount, elapsedMs, id)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return nil
}

// TrendingQueries returns the top n queries by frequency within the
// trailing window, along with their average elapsed time.
func (s *Store) TrendingQueries(ctx context.Context, userID int64, window time.Duration, n int) ([]TrendingQuery, error) {
	since := time.Now().Add(-window)
	rows, err := s.db.QueryContext(ctx, `
		SELECT query, COUNT(*) AS cnt, AVG(elapsed_ms) AS avg_ms
		FROM search_history
		WHERE user_id = ? AND created_at >= ?
		GROUP BY query
		ORDER BY cnt DESC, query ASC
		LIMIT ?
	`, userID, since, n)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	defer rows.Close()

	var out []TrendingQuery
	for rows.Next() {
		var tq TrendingQuery
		if err := rows.Scan(&tq.Query, &tq.Count, &tq.AvgElapsed); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
		}
		out = append(out, tq)
	}
	return out, rows.Err()
}
