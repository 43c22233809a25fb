package storage

import (
	"encoding/json"
	"fmt"
	"time"
)

// SaveAccessRequest stores a pending access request, replacing any earlier
// pending request from the same user.
func (s *Store) SaveAccessRequest(req AccessRequest) error {
	spaceIDs, err := json.Marshal(req.SpaceIDs)
	if err != nil {
		return fmt.Errorf("marshaling space ids: %w", err)
	}
	createdAt := req.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM access_requests WHERE user_email = ?`, req.UserEmail); err != nil {
		return err
	}
	if _, err := tx.Exec(`
		INSERT INTO access_requests (id, user_email, space_ids, created_at)
		VALUES (?, ?, ?, ?)`,
		req.ID, req.UserEmail, string(spaceIDs), createdAt.UTC().Format(time.RFC3339Nano),
	); err != nil {
		return err
	}
	return tx.Commit()
}

// ListAccessRequests returns all pending requests, oldest first.
func (s *Store) ListAccessRequests() ([]AccessRequest, error) {
	rows, err := s.db.Query(`
		SELECT id, user_email, space_ids, created_at
		FROM access_requests ORDER BY created_at ASC, rowid ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []AccessRequest
	for rows.Next() {
		var req AccessRequest
		var spaceIDs, createdAt string
		if err := rows.Scan(&req.ID, &req.UserEmail, &spaceIDs, &createdAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(spaceIDs), &req.SpaceIDs); err != nil {
			return nil, fmt.Errorf("parsing space ids: %w", err)
		}
		t, err := time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		req.CreatedAt = t
		results = append(results, req)
	}
	return results, rows.Err()
}

// DeleteAccessRequestsForUser clears a user's pending requests, typically
// after an admin grants them.
func (s *Store) DeleteAccessRequestsForUser(email string) error {
	_, err := s.db.Exec(`DELETE FROM access_requests WHERE user_email = ?`, email)
	return err
}

// GrantAccess records that a user may use the given spaces. Granting a space
// the user already has is a no-op.
func (s *Store) GrantAccess(email string, spaceIDs []string, grantedBy string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	for _, spaceID := range spaceIDs {
		if _, err := tx.Exec(`
			INSERT INTO access_grants (user_email, space_id, granted_by, created_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(user_email, space_id) DO NOTHING`,
			email, spaceID, grantedBy, now,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// HasAccess reports whether the user has been granted the space.
func (s *Store) HasAccess(email, spaceID string) (bool, error) {
	var n int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM access_grants WHERE user_email = ? AND space_id = ?`,
		email, spaceID,
	).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// SpacesForUser returns the ids of every space the user has been granted.
func (s *Store) SpacesForUser(email string) ([]string, error) {
	rows, err := s.db.Query(`
		SELECT space_id FROM access_grants WHERE user_email = ? ORDER BY space_id ASC`, email)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListGrants returns every grant, grouped by user.
func (s *Store) ListGrants() ([]AccessGrant, error) {
	rows, err := s.db.Query(`
		SELECT user_email, space_id, granted_by, created_at
		FROM access_grants ORDER BY user_email ASC, space_id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []AccessGrant
	for rows.Next() {
		var g AccessGrant
		var createdAt string
		if err := rows.Scan(&g.UserEmail, &g.SpaceID, &g.GrantedBy, &createdAt); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		g.CreatedAt = t
		results = append(results, g)
	}
	return results, rows.Err()
}
