package metadata

import (
	"context"
	"fmt"
)

// TagCount pairs a tag with the number of documents carrying it and
// that count as a percentage of the summed counts of all tags returned
// with it (spec §6.1's keyword analytics).
type TagCount struct {
	Name       string
	Count      int
	Percentage float64
}

// TopTags returns the n most-used tags for a user, largest first.
func (s *Store) TopTags(ctx context.Context, userID int64, n int) ([]TagCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.name, COUNT(*) AS cnt
		FROM tags t
		JOIN document_tags dt ON dt.tag_id = t.id
		JOIN documents d ON d.id = dt.document_id
		WHERE d.user_id = ?
		GROUP BY t.name
		ORDER BY cnt DESC, t.name ASC
		LIMIT ?
	`, userID, n)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	defer rows.Close()

	var total int
	var out []TagCount
	for rows.Next() {
		var tc TagCount
		if err := rows.Scan(&tc.Name, &tc.Count); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
		}
		total += tc.Count
		out = append(out, tc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if total > 0 {
		for i := range out {
			out[i].Percentage = float64(out[i].Count) / float64(total) * 100
		}
	}
	return out, nil
}
