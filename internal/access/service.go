// Package access decides who may use which Genie space. Unprivileged users
// file requests; the configured admin grants them.
package access

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/aryanb-code/genie-chat/internal/storage"
)

// ErrNotAdmin is returned when a caller attempts an admin-only operation.
var ErrNotAdmin = fmt.Errorf("admin privileges required")

// Service mediates space access requests and grants over the store.
type Service struct {
	store      *storage.Store
	adminEmail string
}

// New creates a Service. adminEmail is the single account allowed to grant
// access; comparison is case-insensitive.
func New(store *storage.Store, adminEmail string) *Service {
	return &Service{store: store, adminEmail: strings.ToLower(adminEmail)}
}

// IsAdmin reports whether the email belongs to the configured admin.
func (s *Service) IsAdmin(email string) bool {
	return s.adminEmail != "" && strings.ToLower(email) == s.adminEmail
}

// Request files an access request for the given spaces, replacing any
// earlier pending request from the same user.
func (s *Service) Request(email string, spaceIDs []string) (storage.AccessRequest, error) {
	if email == "" {
		return storage.AccessRequest{}, fmt.Errorf("user email is required")
	}
	if len(spaceIDs) == 0 {
		return storage.AccessRequest{}, fmt.Errorf("at least one space id is required")
	}

	req := storage.AccessRequest{
		ID:        uuid.New().String(),
		UserEmail: strings.ToLower(email),
		SpaceIDs:  spaceIDs,
	}
	if err := s.store.SaveAccessRequest(req); err != nil {
		return storage.AccessRequest{}, fmt.Errorf("saving access request: %w", err)
	}
	return req, nil
}

// Grant records access for a user and clears their pending request. Only the
// admin may grant.
func (s *Service) Grant(admin, email string, spaceIDs []string) error {
	if !s.IsAdmin(admin) {
		return ErrNotAdmin
	}
	if email == "" || len(spaceIDs) == 0 {
		return fmt.Errorf("user email and space ids are required")
	}

	email = strings.ToLower(email)
	if err := s.store.GrantAccess(email, spaceIDs, strings.ToLower(admin)); err != nil {
		return fmt.Errorf("recording grants: %w", err)
	}
	if err := s.store.DeleteAccessRequestsForUser(email); err != nil {
		return fmt.Errorf("clearing pending request: %w", err)
	}
	return nil
}

// Authorize reports whether the user may query the space. The admin is
// always authorized.
func (s *Service) Authorize(email, spaceID string) (bool, error) {
	if s.IsAdmin(email) {
		return true, nil
	}
	return s.store.HasAccess(strings.ToLower(email), spaceID)
}

// Pending returns all pending access requests, oldest first.
func (s *Service) Pending() ([]storage.AccessRequest, error) {
	return s.store.ListAccessRequests()
}

// Grants returns every recorded grant.
func (s *Service) Grants() ([]storage.AccessGrant, error) {
	return s.store.ListGrants()
}

// SpacesFor returns the ids of the spaces the user may query.
func (s *Service) SpacesFor(email string) ([]string, error) {
	return s.store.SpacesForUser(strings.ToLower(email))
}
