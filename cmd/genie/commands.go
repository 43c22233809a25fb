package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aryanb-code/genie-chat/internal/config"
)

// --- ask / follow ---

// chatSession is the CLI-side record of the last conversation, so `genie
// follow` can continue where `genie ask` left off.
type chatSession struct {
	SpaceID        string `json:"space_id"`
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id"`
}

func sessionFilePath() (string, error) {
	cfg, err := config.Load()
	if err != nil {
		return "", err
	}
	return filepath.Join(cfg.Storage.DataDir, "session.json"), nil
}

func saveSession(s chatSession) error {
	path, err := sessionFilePath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func loadSession() (chatSession, error) {
	var s chatSession
	path, err := sessionFilePath()
	if err != nil {
		return s, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return s, fmt.Errorf("no conversation to follow up on: ask something first")
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("reading session: %w", err)
	}
	return s, nil
}

type chatAttachment struct {
	Kind        string   `json:"kind"`
	Content     string   `json:"content"`
	SQL         string   `json:"sql"`
	Description string   `json:"description"`
	Columns     []string `json:"columns"`
	Rows        [][]any  `json:"rows"`
	Error       string   `json:"error"`
}

type chatAnswer struct {
	ConversationID string           `json:"conversation_id"`
	MessageID      string           `json:"message_id"`
	Status         string           `json:"status"`
	Attachments    []chatAttachment `json:"attachments"`
}

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a new question in a Genie space",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		spaceID, _ := cmd.Flags().GetString("space")
		if spaceID == "" {
			return fmt.Errorf("--space is required")
		}
		question := strings.Join(args, " ")

		client, err := newAPIClient(cmd)
		if err != nil {
			return err
		}

		printStep("Asking Genie...")
		resp, err := client.post(cmd.Context(), "/chat", map[string]string{
			"space_id": spaceID,
			"content":  question,
		})
		if err != nil {
			return err
		}

		var answer chatAnswer
		if err := decodeJSON(resp, &answer); err != nil {
			return err
		}

		renderAnswer(answer)
		return saveSession(chatSession{
			SpaceID:        spaceID,
			ConversationID: answer.ConversationID,
			MessageID:      answer.MessageID,
		})
	},
}

var followCmd = &cobra.Command{
	Use:   "follow <question>",
	Short: "Ask a follow-up on the last conversation",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		session, err := loadSession()
		if err != nil {
			return err
		}
		question := strings.Join(args, " ")

		client, err := newAPIClient(cmd)
		if err != nil {
			return err
		}

		printStep("Asking Genie...")
		resp, err := client.post(cmd.Context(), "/chat/"+session.ConversationID+"/messages", map[string]string{
			"space_id": session.SpaceID,
			"content":  question,
		})
		if err != nil {
			return err
		}

		var answer chatAnswer
		if err := decodeJSON(resp, &answer); err != nil {
			return err
		}

		renderAnswer(answer)
		session.MessageID = answer.MessageID
		return saveSession(session)
	},
}

func renderAnswer(answer chatAnswer) {
	for _, att := range answer.Attachments {
		switch att.Kind {
		case "text":
			fmt.Printf("\n%s\n", att.Content)
		case "query":
			if att.Description != "" {
				fmt.Printf("\n%s\n", att.Description)
			}
			fmt.Printf("%s %s\n", colorize(colorBold, "SQL:"), att.SQL)
			switch {
			case att.Error != "":
				fmt.Printf("  (no data: %s)\n", att.Error)
			case len(att.Columns) > 0:
				renderTable(att.Columns, att.Rows)
			}
		}
	}
	if answer.Status != "COMPLETED" {
		printWarning("message finished with status %s", answer.Status)
	}
}

func renderTable(columns []string, rows [][]any) {
	fmt.Printf("  %s\n", colorize(colorCyan, strings.Join(columns, " | ")))
	for _, row := range rows {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = fmt.Sprintf("%v", v)
		}
		fmt.Printf("  %s\n", strings.Join(cells, " | "))
	}
}

func init() {
	askCmd.Flags().String("space", "", "Genie space id to ask in")
}

// --- history ---

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List past prompts",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		all, _ := cmd.Flags().GetBool("all")

		client, err := newAPIClient(cmd)
		if err != nil {
			return err
		}

		path := fmt.Sprintf("/history?limit=%d", limit)
		if all {
			path += "&all=1"
		}
		resp, err := client.get(cmd.Context(), path)
		if err != nil {
			return err
		}

		var body struct {
			Entries []struct {
				Prompt         string `json:"prompt"`
				ConversationID string `json:"conversation_id"`
				SpaceID        string `json:"space_id"`
				User           string `json:"user"`
				Timestamp      string `json:"timestamp"`
			} `json:"entries"`
		}
		if err := decodeJSON(resp, &body); err != nil {
			return err
		}

		if len(body.Entries) == 0 {
			fmt.Println("No history yet.")
			return nil
		}
		for _, e := range body.Entries {
			prompt := e.Prompt
			if len(prompt) > 80 {
				prompt = prompt[:80] + "..."
			}
			fmt.Printf("%s  %s  %s  %s\n",
				colorize(colorCyan, e.ConversationID),
				e.Timestamp,
				colorize(colorBold, e.SpaceID),
				prompt,
			)
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().Int("limit", 20, "maximum number of entries to list")
	historyCmd.Flags().Bool("all", false, "show all users' history (admin only)")
}

// --- spaces ---

var spacesCmd = &cobra.Command{
	Use:   "spaces",
	Short: "Manage the Genie space catalog",
}

var spacesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List spaces you may query",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient(cmd)
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/spaces")
		if err != nil {
			return err
		}

		var body struct {
			Spaces []struct {
				ID   string `json:"id"`
				Name string `json:"name"`
			} `json:"spaces"`
		}
		if err := decodeJSON(resp, &body); err != nil {
			return err
		}

		if len(body.Spaces) == 0 {
			fmt.Println("No spaces available. Ask the admin, or run `genie access request`.")
			return nil
		}
		for _, sp := range body.Spaces {
			fmt.Printf("%s  %s\n", colorize(colorCyan, sp.ID), sp.Name)
		}
		return nil
	},
}

var spacesAddCmd = &cobra.Command{
	Use:   "add <id> <name>",
	Short: "Add a space to the catalog (admin only)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient(cmd)
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/spaces", map[string]string{
			"id":   args[0],
			"name": args[1],
		})
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		printSuccess("Added space %s (%s)", result["id"], result["name"])
		return nil
	},
}

var spacesRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Remove a space from the catalog (admin only)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient(cmd)
		if err != nil {
			return err
		}

		resp, err := client.delete(cmd.Context(), "/spaces/"+args[0])
		if err != nil {
			return err
		}
		resp.Body.Close()
		if resp.StatusCode >= 400 {
			return fmt.Errorf("server returned %d", resp.StatusCode)
		}
		printSuccess("Removed space %s", args[0])
		return nil
	},
}

func init() {
	spacesCmd.AddCommand(spacesListCmd)
	spacesCmd.AddCommand(spacesAddCmd)
	spacesCmd.AddCommand(spacesRemoveCmd)
}

// --- access ---

var accessCmd = &cobra.Command{
	Use:   "access",
	Short: "Request and grant space access",
}

var accessRequestCmd = &cobra.Command{
	Use:   "request <space-id>...",
	Short: "Request access to one or more spaces",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient(cmd)
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/access/requests", map[string]any{
			"space_ids": args,
		})
		if err != nil {
			return err
		}

		var result struct {
			ID       string   `json:"id"`
			SpaceIDs []string `json:"space_ids"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		printSuccess("Requested access to %s", strings.Join(result.SpaceIDs, ", "))
		return nil
	},
}

var accessPendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List pending access requests (admin only)",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient(cmd)
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/access/requests")
		if err != nil {
			return err
		}

		var body struct {
			Requests []struct {
				User      string   `json:"user"`
				SpaceIDs  []string `json:"space_ids"`
				Timestamp string   `json:"timestamp"`
			} `json:"requests"`
		}
		if err := decodeJSON(resp, &body); err != nil {
			return err
		}

		if len(body.Requests) == 0 {
			fmt.Println("No pending requests.")
			return nil
		}
		for _, req := range body.Requests {
			fmt.Printf("%s  %s  %s\n",
				req.Timestamp,
				colorize(colorBold, req.User),
				strings.Join(req.SpaceIDs, ", "),
			)
		}
		return nil
	},
}

var accessGrantCmd = &cobra.Command{
	Use:   "grant <email> <space-id>...",
	Short: "Grant a user access to spaces (admin only)",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient(cmd)
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/access/grants", map[string]any{
			"user_email": args[0],
			"space_ids":  args[1:],
		})
		if err != nil {
			return err
		}

		var result map[string]any
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		printSuccess("Granted %s access to %s", args[0], strings.Join(args[1:], ", "))
		return nil
	},
}

var accessGrantsCmd = &cobra.Command{
	Use:   "grants",
	Short: "List all grants by user (admin only)",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient(cmd)
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/access/grants")
		if err != nil {
			return err
		}

		var body struct {
			Grants map[string][]string `json:"grants"`
		}
		if err := decodeJSON(resp, &body); err != nil {
			return err
		}

		if len(body.Grants) == 0 {
			fmt.Println("No grants recorded.")
			return nil
		}
		for user, spaces := range body.Grants {
			fmt.Printf("%s  %s\n", colorize(colorBold, user), strings.Join(spaces, ", "))
		}
		return nil
	},
}

func init() {
	accessCmd.AddCommand(accessRequestCmd)
	accessCmd.AddCommand(accessPendingCmd)
	accessCmd.AddCommand(accessGrantCmd)
	accessCmd.AddCommand(accessGrantsCmd)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
