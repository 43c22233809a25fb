package config

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const (
	databricksTokenEnv = "GENIE_DATABRICKS_TOKEN"
	apiTokenEnv        = "GENIE_API_TOKEN"

	// patFileName matches the token file the original deployment used.
	patFileName      = "databricks_pat.txt"
	apiTokenFileName = "api_token"
)

// GetDatabricksToken returns the workspace PAT used to call the Genie API.
// The environment variable wins; otherwise the first line of
// databricks_pat.txt in the data directory is used.
func GetDatabricksToken(dataDir string) (string, error) {
	if tok := os.Getenv(databricksTokenEnv); tok != "" {
		return tok, nil
	}

	path := filepath.Join(dataDir, patFileName)
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("Databricks PAT not found: set %s or put the token in %s", databricksTokenEnv, path)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if scanner.Scan() {
		if tok := strings.TrimSpace(scanner.Text()); tok != "" {
			return tok, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	return "", fmt.Errorf("%s is empty", path)
}

// GetAPIToken returns the bearer token the CLI uses against the local
// server, generating and persisting one on first use. The environment
// variable wins over the persisted token.
func GetAPIToken(dataDir string) (string, error) {
	if tok := os.Getenv(apiTokenEnv); tok != "" {
		return tok, nil
	}

	path := filepath.Join(dataDir, apiTokenFileName)
	if data, err := os.ReadFile(path); err == nil {
		if tok := strings.TrimSpace(string(data)); tok != "" {
			return tok, nil
		}
	}

	tok := uuid.New().String()
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return "", fmt.Errorf("creating data dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(tok+"\n"), 0o600); err != nil {
		return "", fmt.Errorf("persisting API token: %w", err)
	}
	return tok, nil
}
