package api

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/aryanb-code/genie-chat/internal/storage"
)

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

func makeCallToolRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func TestMCPAskGenie(t *testing.T) {
	deps, store := newTestDeps(t, genieUpstream(t))
	if err := store.GrantAccess(testUser, []string{"s1"}, testAdmin); err != nil {
		t.Fatalf("granting access: %v", err)
	}
	mcpDeps := MCPDeps{Deps: deps, User: testUser}

	handler := mcpAskGenie(mcpDeps)
	result, err := handler(context.Background(), makeCallToolRequest("ask_genie", map[string]interface{}{
		"space_id": "s1",
		"question": "how is volume?",
	}))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if result.IsError {
		t.Fatalf("tool error: %s", toolText(t, result))
	}

	text := toolText(t, result)
	for _, want := range []string{"conversation_id: c1", "Volume is up.", "SELECT 1", `"columns":["date","volume"]`} {
		if !strings.Contains(text, want) {
			t.Errorf("answer missing %q:\n%s", want, text)
		}
	}

	entries, err := store.HistoryForUser(testUser, 10)
	if err != nil {
		t.Fatalf("reading history: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("history entries = %d, want 1", len(entries))
	}
}

func TestMCPAskGenie_MissingArgs(t *testing.T) {
	deps, _ := newTestDeps(t, genieUpstream(t))
	handler := mcpAskGenie(MCPDeps{Deps: deps, User: testUser})

	result, err := handler(context.Background(), makeCallToolRequest("ask_genie", map[string]interface{}{
		"space_id": "s1",
	}))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected tool error for missing question")
	}
}

func TestMCPAskGenie_DeniedSpace(t *testing.T) {
	deps, _ := newTestDeps(t, genieUpstream(t))
	handler := mcpAskGenie(MCPDeps{Deps: deps, User: testUser})

	result, err := handler(context.Background(), makeCallToolRequest("ask_genie", map[string]interface{}{
		"space_id": "s1",
		"question": "hi",
	}))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected tool error for denied space")
	}
	if !strings.Contains(toolText(t, result), "no access") {
		t.Errorf("error = %q, want access denial", toolText(t, result))
	}
}

func TestMCPFollowUp(t *testing.T) {
	deps, store := newTestDeps(t, genieUpstream(t))
	if err := store.GrantAccess(testUser, []string{"s1"}, testAdmin); err != nil {
		t.Fatalf("granting access: %v", err)
	}
	handler := mcpFollowUp(MCPDeps{Deps: deps, User: testUser})

	result, err := handler(context.Background(), makeCallToolRequest("follow_up", map[string]interface{}{
		"space_id":        "s1",
		"conversation_id": "c1",
		"question":        "and last week?",
	}))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if result.IsError {
		t.Fatalf("tool error: %s", toolText(t, result))
	}
	if !strings.Contains(toolText(t, result), "conversation_id: c1") {
		t.Errorf("answer missing conversation id:\n%s", toolText(t, result))
	}
}

func TestMCPResourceHistory(t *testing.T) {
	deps, store := newTestDeps(t, genieUpstream(t))
	err := store.AppendHistory(storage.HistoryEntry{
		ID:             "h1",
		Prompt:         "how is volume?",
		ConversationID: "c1",
		MessageID:      "m1",
		SpaceID:        "s1",
		UserEmail:      testUser,
		CreatedAt:      time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("appending history: %v", err)
	}

	handler := mcpResourceHistory(MCPDeps{Deps: deps, User: testUser})
	contents, err := handler(context.Background(), mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{URI: "genie://history"},
	})
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if len(contents) != 1 {
		t.Fatalf("contents = %d, want 1", len(contents))
	}
	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("expected TextResourceContents, got %T", contents[0])
	}

	var entries []map[string]string
	if err := json.Unmarshal([]byte(tc.Text), &entries); err != nil {
		t.Fatalf("decoding resource: %v", err)
	}
	if len(entries) != 1 || entries[0]["conversation_id"] != "c1" {
		t.Errorf("entries = %+v, want c1", entries)
	}
}
