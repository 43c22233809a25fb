package config

import (
	"fmt"
	"time"
)

type Config struct {
	Server  ServerConfig
	Genie   GenieConfig
	Storage StorageConfig
	Admin   AdminConfig
	Log     LogConfig
}

type ServerConfig struct {
	Port int
}

type GenieConfig struct {
	// Host is the Databricks workspace base URL,
	// e.g. "https://acme-dev.cloud.databricks.com".
	Host                string
	PollIntervalSeconds int
	PollTimeoutSeconds  int
}

type StorageConfig struct {
	DataDir string
}

type AdminConfig struct {
	// Email of the single account allowed to manage spaces and grants.
	Email string
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4400,
		},
		Genie: GenieConfig{
			PollIntervalSeconds: 2,
			PollTimeoutSeconds:  300,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the JSON config file at
// $XDG_CONFIG_HOME/genie/config.json, then applies GENIE_* environment
// overrides. Secrets (the Databricks PAT and the local API token) are not
// part of the config file; see GetDatabricksToken and GetAPIToken.
func Load() (Config, error) {
	return loadWith(newFileBackend())
}

func loadWith(b Backend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}
	applyEnvOverrides(&cfg)

	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validate(cfg Config) error {
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", cfg.Server.Port)
	}
	if cfg.Genie.PollIntervalSeconds < 1 {
		return fmt.Errorf("poll interval must be at least 1 second, got %d", cfg.Genie.PollIntervalSeconds)
	}
	if cfg.Genie.PollTimeoutSeconds <= cfg.Genie.PollIntervalSeconds {
		return fmt.Errorf("poll timeout (%ds) must exceed the poll interval (%ds)",
			cfg.Genie.PollTimeoutSeconds, cfg.Genie.PollIntervalSeconds)
	}
	return nil
}

// PollInterval returns the poll interval as a duration.
func (g GenieConfig) PollInterval() time.Duration {
	return time.Duration(g.PollIntervalSeconds) * time.Second
}

// PollTimeout returns the poll timeout as a duration.
func (g GenieConfig) PollTimeout() time.Duration {
	return time.Duration(g.PollTimeoutSeconds) * time.Second
}
