package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aryanb-code/genie-chat/internal/access"
	"github.com/aryanb-code/genie-chat/internal/genie"
	"github.com/aryanb-code/genie-chat/internal/storage"
)

const (
	testToken = "test-token"
	testAdmin = "admin@corp.com"
	testUser  = "dev@corp.com"
)

// newTestDeps wires a full handler stack: in-memory store, access service
// with a fixed admin, and a genie client pointed at the given fake upstream.
func newTestDeps(t *testing.T, upstream http.HandlerFunc) (Deps, *storage.Store) {
	t.Helper()

	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	srv := httptest.NewServer(upstream)
	t.Cleanup(srv.Close)

	return Deps{
		Store:  store,
		Access: access.New(store, testAdmin),
		Genie:  genie.NewClientWithBaseURL(srv.URL, "test-pat"),
		Token:  testToken,
	}, store
}

func doRequest(t *testing.T, h http.Handler, method, path, user, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+testToken)
	if user != "" {
		req.Header.Set(userHeader, user)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

// genieUpstream mimics the subset of the Genie API the handlers exercise.
func genieUpstream(t *testing.T) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/start-conversation"):
			fmt.Fprint(w, `{"conversation_id":"c1","message_id":"m1"}`)
		case strings.HasSuffix(r.URL.Path, "/conversations/c1/messages") && r.Method == http.MethodPost:
			fmt.Fprint(w, `{"message_id":"m2"}`)
		case strings.Contains(r.URL.Path, "/query-result/"):
			fmt.Fprint(w, `{"statement_response":{"manifest":{"schema":{"columns":[{"name":"date"},{"name":"volume"}]}},"result":{"data_array":[["2024-01-01",100]]}}}`)
		case strings.Contains(r.URL.Path, "/messages/m1"), strings.Contains(r.URL.Path, "/messages/m2"):
			fmt.Fprint(w, `{"id":"m1","conversation_id":"c1","status":"COMPLETED","attachments":[{"text":{"content":"Volume is up."}},{"attachment_id":"a1","query":{"query":"SELECT 1","description":"total volume"}}]}`)
		default:
			http.NotFound(w, r)
		}
	}
}

func TestChat_RequiresBearerToken(t *testing.T) {
	deps, _ := newTestDeps(t, genieUpstream(t))
	h := NewHandler(deps)

	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{}`))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusUnauthorized)
	}
}

func TestChat_RequiresUserHeader(t *testing.T) {
	deps, _ := newTestDeps(t, genieUpstream(t))
	h := NewHandler(deps)

	rr := doRequest(t, h, http.MethodPost, "/chat", "", `{"space_id":"s1","content":"hi"}`)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusUnauthorized)
	}
}

func TestChat_DeniedWithoutGrant(t *testing.T) {
	deps, _ := newTestDeps(t, genieUpstream(t))
	h := NewHandler(deps)

	rr := doRequest(t, h, http.MethodPost, "/chat", testUser, `{"space_id":"s1","content":"hi"}`)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusForbidden)
	}
}

func TestChat_StartReturnsAnswer(t *testing.T) {
	deps, store := newTestDeps(t, genieUpstream(t))
	if err := store.GrantAccess(testUser, []string{"s1"}, testAdmin); err != nil {
		t.Fatalf("granting access: %v", err)
	}
	h := NewHandler(deps)

	rr := doRequest(t, h, http.MethodPost, "/chat", testUser, `{"space_id":"s1","content":"how is volume?"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", rr.Code, http.StatusOK, rr.Body.String())
	}

	var resp chatResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.ConversationID != "c1" || resp.MessageID != "m1" {
		t.Errorf("ids = %s/%s, want c1/m1", resp.ConversationID, resp.MessageID)
	}
	if resp.Status != "COMPLETED" {
		t.Errorf("status = %q, want COMPLETED", resp.Status)
	}
	if len(resp.Attachments) != 2 {
		t.Fatalf("attachments = %d, want 2", len(resp.Attachments))
	}
	if resp.Attachments[0].Kind != "text" || resp.Attachments[0].Content != "Volume is up." {
		t.Errorf("attachment[0] = %+v, want text payload", resp.Attachments[0])
	}
	q := resp.Attachments[1]
	if q.Kind != "query" || q.SQL != "SELECT 1" || q.AttachmentID != "a1" {
		t.Errorf("attachment[1] = %+v, want query payload", q)
	}
	if len(q.Columns) != 2 || q.Columns[0] != "date" {
		t.Errorf("columns = %v, want [date volume]", q.Columns)
	}
	if len(q.Rows) != 1 {
		t.Errorf("rows = %v, want one row", q.Rows)
	}

	entries, err := store.HistoryForUser(testUser, 10)
	if err != nil {
		t.Fatalf("reading history: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("history entries = %d, want 1", len(entries))
	}
	if entries[0].Prompt != "how is volume?" || entries[0].ConversationID != "c1" {
		t.Errorf("history entry = %+v", entries[0])
	}
}

func TestChat_AdminNeedsNoGrant(t *testing.T) {
	deps, _ := newTestDeps(t, genieUpstream(t))
	h := NewHandler(deps)

	rr := doRequest(t, h, http.MethodPost, "/chat", testAdmin, `{"space_id":"s1","content":"hi"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", rr.Code, http.StatusOK, rr.Body.String())
	}
}

func TestChat_FollowUpAdvancesMessage(t *testing.T) {
	deps, store := newTestDeps(t, genieUpstream(t))
	if err := store.GrantAccess(testUser, []string{"s1"}, testAdmin); err != nil {
		t.Fatalf("granting access: %v", err)
	}
	h := NewHandler(deps)

	rr := doRequest(t, h, http.MethodPost, "/chat/c1/messages", testUser, `{"space_id":"s1","content":"and last week?"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", rr.Code, http.StatusOK, rr.Body.String())
	}

	entries, err := store.HistoryForUser(testUser, 10)
	if err != nil {
		t.Fatalf("reading history: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("history entries = %d, want 1", len(entries))
	}
	if entries[0].MessageID != "m2" {
		t.Errorf("recorded message id = %s, want m2", entries[0].MessageID)
	}
}

func TestChat_TimeoutReturns504WithSession(t *testing.T) {
	deps, store := newTestDeps(t, func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/start-conversation") {
			fmt.Fprint(w, `{"conversation_id":"c1","message_id":"m1"}`)
			return
		}
		fmt.Fprint(w, `{"id":"m1","conversation_id":"c1","status":"RUNNING"}`)
	})
	if err := store.GrantAccess(testUser, []string{"s1"}, testAdmin); err != nil {
		t.Fatalf("granting access: %v", err)
	}
	deps.Genie.SetPollPolicy(time.Millisecond, 5*time.Millisecond)
	h := NewHandler(deps)

	rr := doRequest(t, h, http.MethodPost, "/chat", testUser, `{"space_id":"s1","content":"hi"}`)
	if rr.Code != http.StatusGatewayTimeout {
		t.Fatalf("status = %d, want %d: %s", rr.Code, http.StatusGatewayTimeout, rr.Body.String())
	}

	var body struct {
		Error struct {
			Type string `json:"type"`
		} `json:"error"`
		ConversationID string `json:"conversation_id"`
		MessageID      string `json:"message_id"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if body.Error.Type != "timeout" {
		t.Errorf("error type = %q, want timeout", body.Error.Type)
	}
	if body.ConversationID != "c1" || body.MessageID != "m1" {
		t.Errorf("session ids = %s/%s, want c1/m1", body.ConversationID, body.MessageID)
	}
}

func TestChat_UpstreamFailureReturns502(t *testing.T) {
	deps, store := newTestDeps(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "workspace unavailable", http.StatusServiceUnavailable)
	})
	if err := store.GrantAccess(testUser, []string{"s1"}, testAdmin); err != nil {
		t.Fatalf("granting access: %v", err)
	}
	h := NewHandler(deps)

	rr := doRequest(t, h, http.MethodPost, "/chat", testUser, `{"space_id":"s1","content":"hi"}`)
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusBadGateway)
	}
	if !strings.Contains(rr.Body.String(), "workspace unavailable") {
		t.Errorf("body should carry the upstream message: %s", rr.Body.String())
	}
}

func TestQueryResult_MalformedKeepsSessionAlive(t *testing.T) {
	deps, store := newTestDeps(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{}`)
	})
	if err := store.GrantAccess(testUser, []string{"s1"}, testAdmin); err != nil {
		t.Fatalf("granting access: %v", err)
	}
	h := NewHandler(deps)

	rr := doRequest(t, h, http.MethodGet, "/chat/c1/messages/m1/result/a1?space_id=s1", testUser, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", rr.Code, http.StatusOK, rr.Body.String())
	}

	var body struct {
		Columns []string `json:"columns"`
		Rows    [][]any  `json:"rows"`
		Error   string   `json:"error"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(body.Columns) != 0 || len(body.Rows) != 0 {
		t.Errorf("expected empty table, got %v / %v", body.Columns, body.Rows)
	}
	if body.Error == "" {
		t.Error("expected an error message for the malformed result")
	}
}

func TestQueryResult_RequiresSpaceParam(t *testing.T) {
	deps, _ := newTestDeps(t, genieUpstream(t))
	h := NewHandler(deps)

	rr := doRequest(t, h, http.MethodGet, "/chat/c1/messages/m1/result/a1", testAdmin, "")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestHistory_ScopedToCaller(t *testing.T) {
	deps, store := newTestDeps(t, genieUpstream(t))
	h := NewHandler(deps)

	for i, user := range []string{testUser, testUser, "other@corp.com"} {
		err := store.AppendHistory(storage.HistoryEntry{
			ID:        fmt.Sprintf("h%d", i),
			Prompt:    fmt.Sprintf("prompt %d", i),
			SpaceID:   "s1",
			UserEmail: user,
			CreatedAt: time.Now().UTC(),
		})
		if err != nil {
			t.Fatalf("appending history: %v", err)
		}
	}

	rr := doRequest(t, h, http.MethodGet, "/history", testUser, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}
	var body struct {
		Entries []historyEntryPayload `json:"entries"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(body.Entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(body.Entries))
	}
	for _, e := range body.Entries {
		if e.User != testUser {
			t.Errorf("entry for %s leaked to %s", e.User, testUser)
		}
	}

	// Admin with all=1 sees everything.
	rr = doRequest(t, h, http.MethodGet, "/history?all=1", testAdmin, "")
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(body.Entries) != 3 {
		t.Errorf("admin entries = %d, want 3", len(body.Entries))
	}

	// Non-admin asking for all=1 still only sees their own.
	rr = doRequest(t, h, http.MethodGet, "/history?all=1", testUser, "")
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(body.Entries) != 2 {
		t.Errorf("non-admin all=1 entries = %d, want 2", len(body.Entries))
	}
}

func TestHistory_RejectsBadLimit(t *testing.T) {
	deps, _ := newTestDeps(t, genieUpstream(t))
	h := NewHandler(deps)

	rr := doRequest(t, h, http.MethodGet, "/history?limit=zero", testUser, "")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusBadRequest)
	}
}
