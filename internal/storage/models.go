package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// HistoryEntry is one recorded prompt and the conversation turn it produced.
// History is append-only; entries are never updated or deleted.
type HistoryEntry struct {
	ID             string
	Prompt         string
	ConversationID string
	MessageID      string
	SpaceID        string
	UserEmail      string
	CreatedAt      time.Time
}

// Space is a Genie space users can be granted access to.
type Space struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// AccessRequest is a user's pending request for access to one or more spaces.
type AccessRequest struct {
	ID        string
	UserEmail string
	SpaceIDs  []string
	CreatedAt time.Time
}

// AccessGrant records that a user may use a space.
type AccessGrant struct {
	UserEmail string
	SpaceID   string
	GrantedBy string
	CreatedAt time.Time
}
