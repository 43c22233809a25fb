package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/aryanb-code/genie-chat/internal/access"
	"github.com/aryanb-code/genie-chat/internal/api"
	"github.com/aryanb-code/genie-chat/internal/config"
	"github.com/aryanb-code/genie-chat/internal/genie"
	"github.com/aryanb-code/genie-chat/internal/storage"
)

var startCmd = &cobra.Command{
	Use:     "start",
	Aliases: []string{"serve"},
	Short:   "Start the genie server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running genie server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show genie system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

// pidFile tracks the running server's process id in the data directory.
type pidFile string

func newPIDFile(dataDir string) pidFile {
	return pidFile(filepath.Join(dataDir, "genie.pid"))
}

func (p pidFile) write() error {
	if err := os.MkdirAll(filepath.Dir(string(p)), 0o755); err != nil {
		return err
	}
	return os.WriteFile(string(p), []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func (p pidFile) read() (int, error) {
	data, err := os.ReadFile(string(p))
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func (p pidFile) remove() {
	os.Remove(string(p))
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "genie version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Initialize structured logging.
	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	if cfg.Genie.Host == "" {
		return fmt.Errorf("genie.host is not configured: run `genie config set genie.host https://<workspace>.cloud.databricks.com`")
	}

	// The workspace PAT authenticates every Genie call.
	pat, err := config.GetDatabricksToken(cfg.Storage.DataDir)
	if err != nil {
		return err
	}

	// Bearer token for the local API, generated on first start.
	apiToken, err := config.GetAPIToken(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("initializing API token: %w", err)
	}
	slog.Info("API bearer token available")

	// Refuse to start a second instance on the same port.
	pid := newPIDFile(cfg.Storage.DataDir)
	if err := checkNotRunning(cfg.Server.Port, pid); err != nil {
		return err
	}
	if err := pid.write(); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer pid.remove()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Open storage.
	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	// Build the Genie client and access layer.
	genieClient := genie.NewClient(cfg.Genie.Host, pat)
	genieClient.SetPollPolicy(cfg.Genie.PollInterval(), cfg.Genie.PollTimeout())
	accessSvc := access.New(store, cfg.Admin.Email)

	deps := api.Deps{
		Store:  store,
		Access: accessSvc,
		Genie:  genieClient,
		Token:  apiToken,
	}
	handler := api.NewHandler(deps)

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	// Build and start MCP server (stdio transport in a goroutine). Tool calls
	// run as the admin when no MCP user is configured.
	mcpUser := os.Getenv("GENIE_USER")
	if mcpUser == "" {
		mcpUser = cfg.Admin.Email
	}
	mcpSrv := api.NewMCPServer(api.MCPDeps{Deps: deps, User: mcpUser})
	stdioSrv := server.NewStdioServer(mcpSrv)
	go func() {
		if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("MCP stdio server error", "error", err)
		}
	}()
	slog.Info("MCP server started (stdio transport)")

	return serveUntilSignalled(ctx, srv)
}

// serveUntilSignalled runs the HTTP server until the context is cancelled or
// the listener fails, then shuts down gracefully.
func serveUntilSignalled(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "genie listening on %s\n", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// checkNotRunning probes the health endpoint so a second `genie start` fails
// fast instead of fighting over the port.
func checkNotRunning(port int, pid pidFile) error {
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", port)
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(healthURL)
	if err != nil {
		return nil
	}
	resp.Body.Close()
	if running, readErr := pid.read(); readErr == nil {
		printWarning("genie is already running (PID %d)", running)
		return fmt.Errorf("server already running (PID %d)", running)
	}
	printWarning("genie is already running on port %d", port)
	return fmt.Errorf("server already running on port %d", port)
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidf := newPIDFile(cfg.Storage.DataDir)
	pid, err := pidf.read()
	if err != nil {
		printError("genie is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop genie (PID %d): %v", pid, err)
		pidf.remove()
		return err
	}

	printSuccess("Sent stop signal to genie (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		// Still show partial status even if config fails.
		printError("config error: %v", err)
		return nil
	}

	// Check server health.
	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	resp, err := client.Get(serverURL + "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == 200 {
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	if cfg.Genie.Host != "" {
		printStatus("Workspace", "%s", cfg.Genie.Host)
	} else {
		printStatus("Workspace", "not configured")
	}
	printStatus("Poll policy", "every %s, up to %s", cfg.Genie.PollInterval(), cfg.Genie.PollTimeout())
	if cfg.Admin.Email != "" {
		printStatus("Admin", "%s", cfg.Admin.Email)
	}
	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}
