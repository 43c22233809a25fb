package storage

import (
	"fmt"
	"time"
)

// AppendHistory appends one entry to the chat history. History is
// append-only; there is no update or delete path.
func (s *Store) AppendHistory(e HistoryEntry) error {
	_, err := s.db.Exec(`
		INSERT INTO history (id, prompt, conversation_id, message_id, space_id, user_email, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Prompt, e.ConversationID, e.MessageID, e.SpaceID, e.UserEmail,
		e.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	return err
}

// RecentHistory returns the newest entries across all users, newest first.
func (s *Store) RecentHistory(limit int) ([]HistoryEntry, error) {
	return s.queryHistory(`
		SELECT id, prompt, conversation_id, message_id, space_id, user_email, created_at
		FROM history ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
}

// HistoryForUser returns the newest entries recorded for one user, newest first.
func (s *Store) HistoryForUser(email string, limit int) ([]HistoryEntry, error) {
	return s.queryHistory(`
		SELECT id, prompt, conversation_id, message_id, space_id, user_email, created_at
		FROM history WHERE user_email = ? ORDER BY created_at DESC, rowid DESC LIMIT ?`, email, limit)
}

func (s *Store) queryHistory(query string, args ...any) ([]HistoryEntry, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		var createdAt string
		if err := rows.Scan(&e.ID, &e.Prompt, &e.ConversationID, &e.MessageID, &e.SpaceID, &e.UserEmail, &createdAt); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		e.CreatedAt = t
		results = append(results, e)
	}
	return results, rows.Err()
}
