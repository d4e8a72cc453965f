package metadata

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// User is the minimal identity record documents and sources are owned
// by. Authentication and JWT issuance are collaborators out of scope
// (spec §1); this store only needs enough of User to enforce ownership.
type User struct {
	ID          int64
	Login       string
	DisplayName string
}

// CreateUser registers a new user. Login uniqueness is enforced by the
// schema's UNIQUE constraint.
func (s *Store) CreateUser(ctx context.Context, login, displayName string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO users (login, display_name) VALUES (?, ?)", login, displayName)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return res.LastInsertId()
}

// ListUserIDs returns every registered user id, for maintenance jobs
// that sweep across all users (spec §4.11's weekly compaction).
func (s *Store) ListUserIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id FROM users")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetUser fetches a user by id.
func (s *Store) GetUser(ctx context.Context, id int64) (*User, error) {
	u := &User{}
	err := s.db.QueryRowContext(ctx,
		"SELECT id, login, display_name FROM users WHERE id = ?", id).Scan(&u.ID, &u.Login, &u.DisplayName)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return u, nil
}
