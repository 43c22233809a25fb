package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/aryanb-code/genie-chat/internal/storage"
)

const defaultHistoryLimit = 50

type historyEntryPayload struct {
	ID             string `json:"id"`
	Prompt         string `json:"prompt"`
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id"`
	SpaceID        string `json:"space_id"`
	User           string `json:"user"`
	Timestamp      string `json:"timestamp"`
}

func handleHistory(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := requireCaller(w, r)
		if !ok {
			return
		}

		limit := defaultHistoryLimit
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid limit %q", raw)
				return
			}
			limit = n
		}

		var entries []storage.HistoryEntry
		var err error
		if r.URL.Query().Get("all") == "1" && deps.Access.IsAdmin(caller) {
			entries, err = deps.Store.RecentHistory(limit)
		} else {
			entries, err = deps.Store.HistoryForUser(caller, limit)
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "reading history: %v", err)
			return
		}

		payloads := make([]historyEntryPayload, len(entries))
		for i, e := range entries {
			payloads[i] = historyEntryPayload{
				ID:             e.ID,
				Prompt:         e.Prompt,
				ConversationID: e.ConversationID,
				MessageID:      e.MessageID,
				SpaceID:        e.SpaceID,
				User:           e.UserEmail,
				Timestamp:      e.CreatedAt.Format(time.RFC3339),
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{"entries": payloads})
	}
}
