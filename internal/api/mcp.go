package api

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/aryanb-code/genie-chat/internal/genie"
)

// MCPDeps holds dependencies for the MCP server. The tool handlers act as
// the configured user, so access checks use the same path as the HTTP API.
type MCPDeps struct {
	Deps
	// User is the identity MCP tool calls run as.
	User string
}

// NewMCPServer creates an MCP server exposing Genie as tools: ask a
// question, follow up on a conversation, and browse recent history.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"genie",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("genie answers natural-language questions with SQL against the data warehouse."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("ask_genie",
			mcp.WithDescription("Ask Genie a natural-language question about warehouse data. Returns the answer text, generated SQL, and result tables."),
			mcp.WithString("space_id", mcp.Description("Genie space to ask in"), mcp.Required()),
			mcp.WithString("question", mcp.Description("The question to ask"), mcp.Required()),
		),
		mcpAskGenie(deps),
	)

	s.AddTool(
		mcp.NewTool("follow_up",
			mcp.WithDescription("Ask a follow-up question on an existing Genie conversation."),
			mcp.WithString("space_id", mcp.Description("Genie space of the conversation"), mcp.Required()),
			mcp.WithString("conversation_id", mcp.Description("Conversation to continue"), mcp.Required()),
			mcp.WithString("question", mcp.Description("The follow-up question"), mcp.Required()),
		),
		mcpFollowUp(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"genie://history",
			"Chat History",
			mcp.WithResourceDescription("Recent Genie prompts with their conversation ids"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceHistory(deps),
	)

	return s
}

func mcpAskGenie(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		spaceID, err := req.RequireString("space_id")
		if err != nil {
			return mcpError("space_id is required"), nil
		}
		question, err := req.RequireString("question")
		if err != nil {
			return mcpError("question is required"), nil
		}

		if res := mcpAuthorize(deps, spaceID); res != nil {
			return res, nil
		}

		cv := genie.NewConversation(deps.Genie, storeRecorder{deps.Store}, deps.User)
		if err := cv.Start(ctx, spaceID, question); err != nil {
			return mcpError(fmt.Sprintf("starting conversation: %v", err)), nil
		}
		return mcpAnswer(ctx, deps, cv)
	}
}

func mcpFollowUp(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		spaceID, err := req.RequireString("space_id")
		if err != nil {
			return mcpError("space_id is required"), nil
		}
		conversationID, err := req.RequireString("conversation_id")
		if err != nil {
			return mcpError("conversation_id is required"), nil
		}
		question, err := req.RequireString("question")
		if err != nil {
			return mcpError("question is required"), nil
		}

		if res := mcpAuthorize(deps, spaceID); res != nil {
			return res, nil
		}

		cv := genie.ResumeConversation(deps.Genie, storeRecorder{deps.Store}, deps.User, genie.Session{
			SpaceID:        spaceID,
			ConversationID: conversationID,
		})
		if err := cv.FollowUp(ctx, question); err != nil {
			return mcpError(fmt.Sprintf("sending follow-up: %v", err)), nil
		}
		return mcpAnswer(ctx, deps, cv)
	}
}

func mcpAuthorize(deps MCPDeps, spaceID string) *mcp.CallToolResult {
	ok, err := deps.Access.Authorize(deps.User, spaceID)
	if err != nil {
		return mcpError(fmt.Sprintf("checking space access: %v", err))
	}
	if !ok {
		return mcpError(fmt.Sprintf("no access to space %s", spaceID))
	}
	return nil
}

// mcpAnswer waits for the current message and renders its attachments as a
// single text block: answer text first, then SQL and result tables.
func mcpAnswer(ctx context.Context, deps MCPDeps, cv *genie.Conversation) (*mcp.CallToolResult, error) {
	msg, err := cv.Await(ctx)
	if err != nil {
		return mcpError(fmt.Sprintf("waiting for answer (conversation %s, message %s): %v",
			cv.ConversationID, cv.MessageID, err)), nil
	}

	results, err := deps.Genie.FetchResults(ctx, cv.SpaceID, msg)
	if err != nil {
		return mcpError(fmt.Sprintf("fetching query results: %v", err)), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "conversation_id: %s\nmessage_id: %s\nstatus: %s\n", cv.ConversationID, msg.ID, msg.Status)
	for _, res := range results {
		att := res.Attachment
		switch att.Kind {
		case genie.AttachmentText:
			b.WriteString("\n" + att.Content + "\n")
		case genie.AttachmentQuery:
			if att.Description != "" {
				fmt.Fprintf(&b, "\n%s\n", att.Description)
			}
			fmt.Fprintf(&b, "SQL: %s\n", att.SQL)
			switch {
			case res.Err != nil:
				fmt.Fprintf(&b, "(no data: %v)\n", res.Err)
			case res.Result != nil:
				table, err := json.Marshal(map[string]any{
					"columns": res.Result.Columns,
					"rows":    res.Result.Rows,
				})
				if err != nil {
					return mcpError(fmt.Sprintf("marshaling result table: %v", err)), nil
				}
				b.Write(table)
				b.WriteString("\n")
			}
		}
	}

	return mcpText(b.String()), nil
}

func mcpResourceHistory(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		entries, err := deps.Store.HistoryForUser(deps.User, 20)
		if err != nil {
			return nil, fmt.Errorf("failed to read history: %w", err)
		}

		type entrySummary struct {
			Prompt         string `json:"prompt"`
			ConversationID string `json:"conversation_id"`
			MessageID      string `json:"message_id"`
			SpaceID        string `json:"space_id"`
			Timestamp      string `json:"timestamp"`
		}
		summaries := make([]entrySummary, len(entries))
		for i, e := range entries {
			summaries[i] = entrySummary{
				Prompt:         e.Prompt,
				ConversationID: e.ConversationID,
				MessageID:      e.MessageID,
				SpaceID:        e.SpaceID,
				Timestamp:      e.CreatedAt.Format(time.RFC3339),
			}
		}

		b, err := json.Marshal(summaries)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal history: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
