package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/aryanb-code/genie-chat/internal/genie"
)

type chatRequest struct {
	SpaceID string `json:"space_id"`
	Content string `json:"content"`
}

type attachmentPayload struct {
	Kind         string   `json:"kind"`
	Content      string   `json:"content,omitempty"`
	SQL          string   `json:"sql,omitempty"`
	Description  string   `json:"description,omitempty"`
	AttachmentID string   `json:"attachment_id,omitempty"`
	Columns      []string `json:"columns,omitempty"`
	Rows         [][]any  `json:"rows,omitempty"`
	Error        string   `json:"error,omitempty"`
}

type chatResponse struct {
	ConversationID string              `json:"conversation_id"`
	MessageID      string              `json:"message_id"`
	Status         string              `json:"status"`
	Attachments    []attachmentPayload `json:"attachments"`
}

func handleStartChat(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := requireCaller(w, r)
		if !ok {
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.SpaceID == "" || req.Content == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "space_id and content are required")
			return
		}

		if !authorizeSpace(w, deps, caller, req.SpaceID) {
			return
		}

		cv := genie.NewConversation(deps.Genie, storeRecorder{deps.Store}, caller)
		if err := cv.Start(r.Context(), req.SpaceID, req.Content); err != nil {
			upstreamError(w, "starting conversation", err)
			return
		}

		respondWithAnswer(w, r, deps, cv)
	}
}

func handleFollowUp(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := requireCaller(w, r)
		if !ok {
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.SpaceID == "" || req.Content == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "space_id and content are required")
			return
		}

		if !authorizeSpace(w, deps, caller, req.SpaceID) {
			return
		}

		cv := genie.ResumeConversation(deps.Genie, storeRecorder{deps.Store}, caller, genie.Session{
			SpaceID:        req.SpaceID,
			ConversationID: chi.URLParam(r, "conversationID"),
		})
		if err := cv.FollowUp(r.Context(), req.Content); err != nil {
			upstreamError(w, "sending follow-up", err)
			return
		}

		respondWithAnswer(w, r, deps, cv)
	}
}

// respondWithAnswer waits for the session's current message to finish, then
// resolves its attachments and writes the chat response.
func respondWithAnswer(w http.ResponseWriter, r *http.Request, deps Deps, cv *genie.Conversation) {
	msg, err := cv.Await(r.Context())
	if err != nil {
		var timeoutErr *genie.TimeoutError
		if errors.As(err, &timeoutErr) {
			// Recoverable: the message may still complete. Hand the caller
			// the identifiers so it can poll again.
			writeJSON(w, http.StatusGatewayTimeout, map[string]any{
				"error": map[string]any{
					"message": timeoutErr.Error(),
					"type":    "timeout",
				},
				"conversation_id": cv.ConversationID,
				"message_id":      cv.MessageID,
			})
			return
		}
		upstreamError(w, "waiting for answer", err)
		return
	}

	results, err := deps.Genie.FetchResults(r.Context(), cv.SpaceID, msg)
	if err != nil {
		upstreamError(w, "fetching query results", err)
		return
	}

	writeJSON(w, http.StatusOK, chatResponse{
		ConversationID: cv.ConversationID,
		MessageID:      msg.ID,
		Status:         msg.Status,
		Attachments:    attachmentPayloads(results),
	})
}

func handleQueryResult(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := requireCaller(w, r)
		if !ok {
			return
		}

		spaceID := r.URL.Query().Get("space_id")
		if spaceID == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "space_id query parameter is required")
			return
		}
		if !authorizeSpace(w, deps, caller, spaceID) {
			return
		}

		qr, err := deps.Genie.FetchQueryResult(r.Context(), spaceID,
			chi.URLParam(r, "conversationID"),
			chi.URLParam(r, "messageID"),
			chi.URLParam(r, "attachmentID"))

		var malformed *genie.MalformedResultError
		if errors.As(err, &malformed) {
			// The session survives a bad result; the caller renders "no data".
			writeJSON(w, http.StatusOK, map[string]any{
				"columns": []string{},
				"rows":    [][]any{},
				"error":   malformed.Error(),
			})
			return
		}
		if err != nil {
			upstreamError(w, "fetching query result", err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"columns": qr.Columns,
			"rows":    qr.Rows,
		})
	}
}

// authorizeSpace writes a 403 and returns false when the caller may not use
// the space.
func authorizeSpace(w http.ResponseWriter, deps Deps, caller, spaceID string) bool {
	ok, err := deps.Access.Authorize(caller, spaceID)
	if err != nil {
		httpError(w, http.StatusInternalServerError, "api_error", "checking space access: %v", err)
		return false
	}
	if !ok {
		httpError(w, http.StatusForbidden, "access_denied", "no access to space %s; request it via /access/requests", spaceID)
		return false
	}
	return true
}

// upstreamError maps a Genie client failure onto an HTTP response.
func upstreamError(w http.ResponseWriter, action string, err error) {
	var apiErr *genie.APIError
	if errors.As(err, &apiErr) {
		httpError(w, http.StatusBadGateway, "upstream_error", "%s: genie returned %d: %s", action, apiErr.StatusCode, apiErr.Body)
		return
	}
	httpError(w, http.StatusBadGateway, "upstream_error", "%s: %v", action, err)
}

func attachmentPayloads(results []genie.AttachmentResult) []attachmentPayload {
	payloads := make([]attachmentPayload, 0, len(results))
	for _, res := range results {
		att := res.Attachment
		switch att.Kind {
		case genie.AttachmentText:
			payloads = append(payloads, attachmentPayload{
				Kind:    "text",
				Content: att.Content,
			})
		case genie.AttachmentQuery:
			p := attachmentPayload{
				Kind:         "query",
				SQL:          att.SQL,
				Description:  att.Description,
				AttachmentID: att.AttachmentID,
			}
			if res.Result != nil {
				p.Columns = res.Result.Columns
				p.Rows = res.Result.Rows
			}
			if res.Err != nil {
				p.Error = res.Err.Error()
			}
			payloads = append(payloads, p)
		}
	}
	return payloads
}
