package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/aryanb-code/genie-chat/internal/access"
	"github.com/aryanb-code/genie-chat/internal/storage"
)

type spacePayload struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func handleListSpaces(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := requireCaller(w, r)
		if !ok {
			return
		}

		spaces, err := deps.Store.ListSpaces()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "listing spaces: %v", err)
			return
		}

		// Non-admins only see spaces they were granted.
		if !deps.Access.IsAdmin(caller) {
			granted, err := deps.Access.SpacesFor(caller)
			if err != nil {
				httpError(w, http.StatusInternalServerError, "api_error", "reading grants: %v", err)
				return
			}
			allowed := make(map[string]bool, len(granted))
			for _, id := range granted {
				allowed[id] = true
			}
			filtered := spaces[:0]
			for _, sp := range spaces {
				if allowed[sp.ID] {
					filtered = append(filtered, sp)
				}
			}
			spaces = filtered
		}

		payloads := make([]spacePayload, len(spaces))
		for i, sp := range spaces {
			payloads[i] = spacePayload{ID: sp.ID, Name: sp.Name}
		}
		writeJSON(w, http.StatusOK, map[string]any{"spaces": payloads})
	}
}

func handleAddSpace(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := requireAdmin(w, r, deps); !ok {
			return
		}

		var req spacePayload
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.ID == "" || req.Name == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "id and name are required")
			return
		}

		if err := deps.Store.UpsertSpace(storage.Space{ID: req.ID, Name: req.Name}); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "saving space: %v", err)
			return
		}
		writeJSON(w, http.StatusCreated, req)
	}
}

func handleDeleteSpace(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := requireAdmin(w, r, deps); !ok {
			return
		}

		id := chi.URLParam(r, "id")
		err := deps.Store.DeleteSpace(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "invalid_request_error", "space %s not found", id)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "deleting space: %v", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

type accessRequestPayload struct {
	SpaceIDs []string `json:"space_ids"`
}

func handleRequestAccess(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := requireCaller(w, r)
		if !ok {
			return
		}

		var req accessRequestPayload
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		saved, err := deps.Access.Request(caller, req.SpaceIDs)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{
			"id":        saved.ID,
			"space_ids": saved.SpaceIDs,
		})
	}
}

func handleListRequests(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := requireAdmin(w, r, deps); !ok {
			return
		}

		pending, err := deps.Access.Pending()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "listing requests: %v", err)
			return
		}

		type requestPayload struct {
			ID        string   `json:"id"`
			User      string   `json:"user"`
			SpaceIDs  []string `json:"space_ids"`
			Timestamp string   `json:"timestamp"`
		}
		payloads := make([]requestPayload, len(pending))
		for i, req := range pending {
			payloads[i] = requestPayload{
				ID:        req.ID,
				User:      req.UserEmail,
				SpaceIDs:  req.SpaceIDs,
				Timestamp: req.CreatedAt.Format(time.RFC3339),
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{"requests": payloads})
	}
}

type grantPayload struct {
	UserEmail string   `json:"user_email"`
	SpaceIDs  []string `json:"space_ids"`
}

func handleGrantAccess(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := requireAdmin(w, r, deps)
		if !ok {
			return
		}

		var req grantPayload
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		if err := deps.Access.Grant(caller, req.UserEmail, req.SpaceIDs); err != nil {
			if errors.Is(err, access.ErrNotAdmin) {
				httpError(w, http.StatusForbidden, "access_denied", "%v", err)
				return
			}
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"user_email": req.UserEmail,
			"space_ids":  req.SpaceIDs,
		})
	}
}

func handleListGrants(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := requireAdmin(w, r, deps); !ok {
			return
		}

		grants, err := deps.Access.Grants()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "listing grants: %v", err)
			return
		}

		// Group by user for display, matching the original admin panel.
		byUser := make(map[string][]string)
		for _, g := range grants {
			byUser[g.UserEmail] = append(byUser[g.UserEmail], g.SpaceID)
		}
		writeJSON(w, http.StatusOK, map[string]any{"grants": byUser})
	}
}

// requireAdmin extracts the caller and writes a 403 for non-admins.
func requireAdmin(w http.ResponseWriter, r *http.Request, deps Deps) (string, bool) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return "", false
	}
	if !deps.Access.IsAdmin(caller) {
		httpError(w, http.StatusForbidden, "access_denied", "admin privileges required")
		return "", false
	}
	return caller, true
}
