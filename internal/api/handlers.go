// Package api exposes the chat, history, spaces, and access-control HTTP
// surface plus the MCP tool server.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/aryanb-code/genie-chat/internal/access"
	"github.com/aryanb-code/genie-chat/internal/genie"
	"github.com/aryanb-code/genie-chat/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1MB

// Deps holds what the handlers need.
type Deps struct {
	Store  *storage.Store
	Access *access.Service
	Genie  *genie.Client
	Token  string
}

// NewHandler returns the HTTP API router. All routes except /health sit
// behind bearer auth; caller identity comes from the X-Genie-User header.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Post("/chat", handleStartChat(deps))
		r.Post("/chat/{conversationID}/messages", handleFollowUp(deps))
		r.Get("/chat/{conversationID}/messages/{messageID}/result/{attachmentID}", handleQueryResult(deps))

		r.Get("/history", handleHistory(deps))

		r.Get("/spaces", handleListSpaces(deps))
		r.Post("/spaces", handleAddSpace(deps))
		r.Delete("/spaces/{id}", handleDeleteSpace(deps))

		r.Post("/access/requests", handleRequestAccess(deps))
		r.Get("/access/requests", handleListRequests(deps))
		r.Post("/access/grants", handleGrantAccess(deps))
		r.Get("/access/grants", handleListGrants(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// storeRecorder adapts the storage layer to the conversation history sink.
type storeRecorder struct {
	store *storage.Store
}

func (s storeRecorder) Record(_ context.Context, e genie.HistoryEntry) error {
	return s.store.AppendHistory(storage.HistoryEntry{
		ID:             uuid.New().String(),
		Prompt:         e.Prompt,
		ConversationID: e.ConversationID,
		MessageID:      e.MessageID,
		SpaceID:        e.SpaceID,
		UserEmail:      e.User,
		CreatedAt:      e.Timestamp,
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	writeJSON(w, code, map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

// requireCaller extracts the caller identity or writes a 401.
func requireCaller(w http.ResponseWriter, r *http.Request) (string, bool) {
	caller := callerEmail(r)
	if caller == "" {
		httpError(w, http.StatusUnauthorized, "authentication_error", "missing %s header", userHeader)
		return "", false
	}
	return caller, true
}
