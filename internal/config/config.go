package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Store     StoreConfig     `yaml:"store"`
	History   HistoryConfig   `yaml:"history"`
	Remote    RemoteConfig    `yaml:"remote"`
	Auth      AuthConfig      `yaml:"auth"`
	Tailscale TailscaleConfig `yaml:"tailscale"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StoreConfig selects the session state store backend. "sqlite" keeps the
// session on local disk, "redis" shares it across processes, "memory" is
// for development only.
type StoreConfig struct {
	Backend   string `yaml:"backend"`
	SQLiteDir string `yaml:"sqlite_dir"`
	RedisURL  string `yaml:"redis_url"`
}

type HistoryConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
}

// RemoteConfig points at the workout backend the session manager syncs
// exercise edits to.
type RemoteConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
}

type AuthConfig struct {
	APIKey string `yaml:"api_key"`
}

type TailscaleConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Hostname string `yaml:"hostname"`
	StateDir string `yaml:"state_dir"`
}

// DSN returns a PostgreSQL connection string for the history database.
func (h HistoryConfig) DSN() string {
	sslmode := h.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		h.User, h.Password, h.Host, h.Port, h.Name, sslmode)
}

// Load reads config from a YAML file, then applies environment variable
// overrides. Env vars use the prefix LIFTLOG_ and underscore-separated
// paths:
//
//	LIFTLOG_SERVER_HOST, LIFTLOG_SERVER_PORT,
//	LIFTLOG_STORE_BACKEND, LIFTLOG_STORE_SQLITE_DIR, LIFTLOG_STORE_REDIS_URL,
//	LIFTLOG_HISTORY_HOST, LIFTLOG_HISTORY_PORT, LIFTLOG_HISTORY_NAME,
//	LIFTLOG_HISTORY_USER, LIFTLOG_HISTORY_PASSWORD, LIFTLOG_HISTORY_SSLMODE,
//	LIFTLOG_REMOTE_BASE_URL, LIFTLOG_REMOTE_API_KEY,
//	LIFTLOG_AUTH_API_KEY
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LIFTLOG_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("LIFTLOG_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("LIFTLOG_STORE_BACKEND"); v != "" {
		cfg.Store.Backend = v
	}
	if v := os.Getenv("LIFTLOG_STORE_SQLITE_DIR"); v != "" {
		cfg.Store.SQLiteDir = v
	}
	if v := os.Getenv("LIFTLOG_STORE_REDIS_URL"); v != "" {
		cfg.Store.RedisURL = v
	}
	if v := os.Getenv("LIFTLOG_HISTORY_HOST"); v != "" {
		cfg.History.Host = v
	}
	if v := os.Getenv("LIFTLOG_HISTORY_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.History.Port = port
		}
	}
	if v := os.Getenv("LIFTLOG_HISTORY_NAME"); v != "" {
		cfg.History.Name = v
	}
	if v := os.Getenv("LIFTLOG_HISTORY_USER"); v != "" {
		cfg.History.User = v
	}
	if v := os.Getenv("LIFTLOG_HISTORY_PASSWORD"); v != "" {
		cfg.History.Password = v
	}
	if v := os.Getenv("LIFTLOG_HISTORY_SSLMODE"); v != "" {
		cfg.History.SSLMode = v
	}
	if v := os.Getenv("LIFTLOG_REMOTE_BASE_URL"); v != "" {
		cfg.Remote.BaseURL = v
	}
	if v := os.Getenv("LIFTLOG_REMOTE_API_KEY"); v != "" {
		cfg.Remote.APIKey = v
	}
	if v := os.Getenv("LIFTLOG_AUTH_API_KEY"); v != "" {
		cfg.Auth.APIKey = v
	}
}

func (c *Config) validate() error {
	if c.Server.Port == 0 {
		return fmt.Errorf("server.port is required")
	}
	if c.Store.Backend == "" {
		c.Store.Backend = "sqlite"
	}
	switch c.Store.Backend {
	case "sqlite":
		if c.Store.SQLiteDir == "" {
			return fmt.Errorf("store.sqlite_dir is required for the sqlite backend")
		}
	case "redis":
		if c.Store.RedisURL == "" {
			return fmt.Errorf("store.redis_url is required for the redis backend")
		}
	case "memory":
	default:
		return fmt.Errorf("store.backend must be sqlite, redis, or memory")
	}
	if c.History.Host == "" {
		return fmt.Errorf("history.host is required")
	}
	if c.History.Port == 0 {
		return fmt.Errorf("history.port is required")
	}
	if c.History.Name == "" {
		return fmt.Errorf("history.name is required")
	}
	if c.History.User == "" {
		return fmt.Errorf("history.user is required")
	}
	if c.Remote.BaseURL == "" {
		return fmt.Errorf("remote.base_url is required")
	}
	if c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key is required")
	}
	return nil
}
