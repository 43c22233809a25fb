package api

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/aryanb-code/genie-chat/internal/storage"
)

func TestSpaces_AdminAddListDelete(t *testing.T) {
	deps, _ := newTestDeps(t, genieUpstream(t))
	h := NewHandler(deps)

	rr := doRequest(t, h, http.MethodPost, "/spaces", testAdmin, `{"id":"s1","name":"Sales"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("add status = %d, want %d: %s", rr.Code, http.StatusCreated, rr.Body.String())
	}

	rr = doRequest(t, h, http.MethodGet, "/spaces", testAdmin, "")
	var body struct {
		Spaces []spacePayload `json:"spaces"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(body.Spaces) != 1 || body.Spaces[0].ID != "s1" || body.Spaces[0].Name != "Sales" {
		t.Fatalf("spaces = %+v, want [s1 Sales]", body.Spaces)
	}

	rr = doRequest(t, h, http.MethodDelete, "/spaces/s1", testAdmin, "")
	if rr.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d, want %d", rr.Code, http.StatusNoContent)
	}

	rr = doRequest(t, h, http.MethodDelete, "/spaces/s1", testAdmin, "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("second delete status = %d, want %d", rr.Code, http.StatusNotFound)
	}
}

func TestSpaces_AddRequiresAdmin(t *testing.T) {
	deps, _ := newTestDeps(t, genieUpstream(t))
	h := NewHandler(deps)

	rr := doRequest(t, h, http.MethodPost, "/spaces", testUser, `{"id":"s1","name":"Sales"}`)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusForbidden)
	}
}

func TestSpaces_ListFilteredByGrants(t *testing.T) {
	deps, store := newTestDeps(t, genieUpstream(t))
	h := NewHandler(deps)

	for _, sp := range []storage.Space{{ID: "s1", Name: "Sales"}, {ID: "s2", Name: "Finance"}} {
		if err := store.UpsertSpace(sp); err != nil {
			t.Fatalf("seeding space: %v", err)
		}
	}
	if err := store.GrantAccess(testUser, []string{"s2"}, testAdmin); err != nil {
		t.Fatalf("granting access: %v", err)
	}

	rr := doRequest(t, h, http.MethodGet, "/spaces", testUser, "")
	var body struct {
		Spaces []spacePayload `json:"spaces"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(body.Spaces) != 1 || body.Spaces[0].ID != "s2" {
		t.Fatalf("spaces = %+v, want only s2", body.Spaces)
	}
}

func TestAccess_RequestThenGrantFlow(t *testing.T) {
	deps, _ := newTestDeps(t, genieUpstream(t))
	h := NewHandler(deps)

	rr := doRequest(t, h, http.MethodPost, "/access/requests", testUser, `{"space_ids":["s1","s2"]}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("request status = %d, want %d: %s", rr.Code, http.StatusCreated, rr.Body.String())
	}

	// Pending list is admin-only.
	rr = doRequest(t, h, http.MethodGet, "/access/requests", testUser, "")
	if rr.Code != http.StatusForbidden {
		t.Fatalf("pending as user status = %d, want %d", rr.Code, http.StatusForbidden)
	}

	rr = doRequest(t, h, http.MethodGet, "/access/requests", testAdmin, "")
	var pending struct {
		Requests []struct {
			User     string   `json:"user"`
			SpaceIDs []string `json:"space_ids"`
		} `json:"requests"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&pending); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(pending.Requests) != 1 || pending.Requests[0].User != testUser {
		t.Fatalf("pending = %+v, want one request from %s", pending.Requests, testUser)
	}

	rr = doRequest(t, h, http.MethodPost, "/access/grants", testAdmin, `{"user_email":"dev@corp.com","space_ids":["s1"]}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("grant status = %d, want %d: %s", rr.Code, http.StatusOK, rr.Body.String())
	}

	// Granting clears the pending request.
	rr = doRequest(t, h, http.MethodGet, "/access/requests", testAdmin, "")
	if err := json.NewDecoder(rr.Body).Decode(&pending); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(pending.Requests) != 0 {
		t.Fatalf("pending after grant = %+v, want none", pending.Requests)
	}

	rr = doRequest(t, h, http.MethodGet, "/access/grants", testAdmin, "")
	var grants struct {
		Grants map[string][]string `json:"grants"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&grants); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if got := grants.Grants[testUser]; len(got) != 1 || got[0] != "s1" {
		t.Fatalf("grants = %+v, want s1 for %s", grants.Grants, testUser)
	}
}

func TestAccess_GrantRequiresAdmin(t *testing.T) {
	deps, _ := newTestDeps(t, genieUpstream(t))
	h := NewHandler(deps)

	rr := doRequest(t, h, http.MethodPost, "/access/grants", testUser, `{"user_email":"dev@corp.com","space_ids":["s1"]}`)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusForbidden)
	}
}

func TestAccess_RequestValidation(t *testing.T) {
	deps, _ := newTestDeps(t, genieUpstream(t))
	h := NewHandler(deps)

	rr := doRequest(t, h, http.MethodPost, "/access/requests", testUser, `{"space_ids":[]}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusBadRequest)
	}
}
