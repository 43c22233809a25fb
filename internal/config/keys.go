package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "GENIE_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "genie.host", typ: kString, env: "GENIE_DATABRICKS_HOST",
		apply:   func(cfg *Config, v any) { cfg.Genie.Host = v.(string) },
		extract: func(cfg Config) any { return cfg.Genie.Host },
	},
	{
		key: "genie.poll_interval_seconds", typ: kInt, env: "GENIE_POLL_INTERVAL_SECONDS",
		apply:   func(cfg *Config, v any) { cfg.Genie.PollIntervalSeconds = v.(int) },
		extract: func(cfg Config) any { return cfg.Genie.PollIntervalSeconds },
	},
	{
		key: "genie.poll_timeout_seconds", typ: kInt, env: "GENIE_POLL_TIMEOUT_SECONDS",
		apply:   func(cfg *Config, v any) { cfg.Genie.PollTimeoutSeconds = v.(int) },
		extract: func(cfg Config) any { return cfg.Genie.PollTimeoutSeconds },
	},
	{
		key: "storage.data_dir", typ: kString, env: "GENIE_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "admin.email", typ: kString, env: "GENIE_ADMIN_EMAIL",
		apply:   func(cfg *Config, v any) { cfg.Admin.Email = v.(string) },
		extract: func(cfg Config) any { return cfg.Admin.Email },
	},
	{
		key: "log.level", typ: kString, env: "GENIE_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

// set parses value per the key's type and writes it to the backend.
func (s keySpec) set(b Backend, value string) error {
	switch s.typ {
	case kInt:
		i, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid integer value for %s: %w", s.key, err)
		}
		return b.SetInt(s.key, i)
	default:
		return b.SetString(s.key, value)
	}
}

// read fetches the key's value from the backend; ok is false when unset.
func (s keySpec) read(b Backend) (any, bool, error) {
	if s.typ == kInt {
		v, ok, err := b.GetInt(s.key)
		return v, ok, err
	}
	v, ok, err := b.GetString(s.key)
	return v, ok, err
}

func applyBackend(cfg *Config, b Backend) error {
	for _, s := range specs {
		v, ok, err := s.read(b)
		if err != nil {
			return fmt.Errorf("reading %s: %w", s.key, err)
		}
		if ok {
			s.apply(cfg, v)
		}
	}
	return nil
}

// applyEnvOverrides lets GENIE_* environment variables win over file values.
// An unparsable integer keeps the prior value with a warning rather than
// failing startup.
func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		if s.typ == kInt {
			i, err := strconv.Atoi(raw)
			if err != nil {
				fmt.Fprintf(os.Stderr, "[WARN] ignoring %s=%q: %v\n", s.env, raw, err)
				continue
			}
			s.apply(cfg, i)
			continue
		}
		s.apply(cfg, raw)
	}
}
