package storage

import (
	"database/sql"
	"fmt"
	"time"
)

// UpsertSpace inserts a space or renames it if the id already exists.
func (s *Store) UpsertSpace(sp Space) error {
	createdAt := sp.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.Exec(`
		INSERT INTO spaces (id, name, created_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name`,
		sp.ID, sp.Name, createdAt.UTC().Format(time.RFC3339Nano),
	)
	return err
}

// GetSpace returns one space by id.
func (s *Store) GetSpace(id string) (Space, error) {
	var sp Space
	var createdAt string
	err := s.db.QueryRow(`SELECT id, name, created_at FROM spaces WHERE id = ?`, id).
		Scan(&sp.ID, &sp.Name, &createdAt)
	if err == sql.ErrNoRows {
		return Space{}, ErrNotFound
	}
	if err != nil {
		return Space{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return Space{}, fmt.Errorf("parsing created_at: %w", err)
	}
	sp.CreatedAt = t
	return sp, nil
}

// ListSpaces returns all configured spaces ordered by name.
func (s *Store) ListSpaces() ([]Space, error) {
	rows, err := s.db.Query(`SELECT id, name, created_at FROM spaces ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Space
	for rows.Next() {
		var sp Space
		var createdAt string
		if err := rows.Scan(&sp.ID, &sp.Name, &createdAt); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		sp.CreatedAt = t
		results = append(results, sp)
	}
	return results, rows.Err()
}

// DeleteSpace removes a space from the catalog. Existing grants and history
// entries referencing it are left in place.
func (s *Store) DeleteSpace(id string) error {
	res, err := s.db.Exec(`DELETE FROM spaces WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
