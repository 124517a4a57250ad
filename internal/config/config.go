// Package config loads the assistant configuration from a JSON file,
// resolving $ENV_VAR references, with container-friendly defaults when no
// file is given.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/masterphooey/tater/internal/store"
)

// Config holds the assistant configuration.
type Config struct {
	// Identity
	Name string `json:"name"` // "tater"

	// BasePrompt is the persona block of every system prompt.
	BasePrompt string `json:"base_prompt"`

	// Store selects the persistence driver.
	Store store.Config `json:"store"`

	// LLM provider
	LLM LLMConfig `json:"llm"`

	// History windows
	History HistoryConfig `json:"history"`

	// Dispatch behavior
	Dispatch DispatchConfig `json:"dispatch"`

	// Matrix gateway
	Matrix MatrixConfig `json:"matrix"`

	// Web UI API
	WebUI WebUIConfig `json:"webui"`

	// Home-automation REST bridge
	Bridge BridgeConfig `json:"bridge"`

	// Plugin endpoints
	Plugins PluginsConfig `json:"plugins"`
}

// LLMConfig holds LLM provider settings.
type LLMConfig struct {
	Provider    string  `json:"provider"` // "anthropic", or a compat name
	Model       string  `json:"model"`
	APIKey      string  `json:"api_key"` // can use env var reference: "$ANTHROPIC_API_KEY"
	BaseURL     string  `json:"base_url,omitempty"`
	MaxOutput   int     `json:"max_output,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
}

// HistoryConfig bounds conversation windows.
type HistoryConfig struct {
	// MaxEntries caps each channel's stored log.
	MaxEntries int `json:"max_entries,omitempty"`
	// ReplayWindow is how many entries are replayed into the prompt;
	// zero replays the whole stored window.
	ReplayWindow int `json:"replay_window,omitempty"`
}

// DispatchConfig tunes the router.
type DispatchConfig struct {
	// InvokeTimeout bounds one plugin invocation, e.g. "5m".
	InvokeTimeout string `json:"invoke_timeout,omitempty"`
}

// InvokeTimeoutDuration parses the timeout, falling back to five minutes.
func (d DispatchConfig) InvokeTimeoutDuration() time.Duration {
	if d.InvokeTimeout == "" {
		return 5 * time.Minute
	}
	dur, err := time.ParseDuration(d.InvokeTimeout)
	if err != nil {
		return 5 * time.Minute
	}
	return dur
}

// MatrixConfig holds Matrix connection settings.
type MatrixConfig struct {
	Enabled      bool     `json:"enabled"`
	Homeserver   string   `json:"homeserver"`    // e.g., http://synapse:8008
	UserID       string   `json:"user_id"`       // e.g., @tater:matrix.example.com
	Password     string   `json:"password"`      // bot password
	ServerName   string   `json:"server_name"`   // e.g., matrix.example.com
	AllowedUsers []string `json:"allowed_users"` // who can talk to the bot
	DataDir      string   `json:"data_dir"`      // persistent credential state
}

// WebUIConfig holds the web API listener settings.
type WebUIConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr"` // e.g., ":8788"
}

// BridgeConfig holds the home-automation REST bridge settings.
type BridgeConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr"` // e.g., ":8789"
	// DefaultTransport tags requests that don't name an agent.
	DefaultTransport string `json:"default_transport,omitempty"`
}

// PluginsConfig holds endpoints the built-in plugins talk to.
type PluginsConfig struct {
	// AutomaticURL is the AUTOMATIC1111 API base for draw_picture.
	AutomaticURL string `json:"automatic_url,omitempty"`
	// SearchURL overrides the web_search endpoint.
	SearchURL string `json:"search_url,omitempty"`
	// UserAgent for outbound plugin fetches.
	UserAgent string `json:"user_agent,omitempty"`
}

// Load reads config from a file path. If path is empty, uses defaults
// suitable for container deployment.
func Load(path string) (*Config, error) {
	if path == "" {
		return defaultConfig(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	// Resolve env var references in all $-prefixed values
	cfg.LLM.APIKey = resolveEnv(cfg.LLM.APIKey)
	cfg.LLM.BaseURL = resolveEnv(cfg.LLM.BaseURL)
	cfg.Store.Path = resolveEnv(cfg.Store.Path)
	cfg.Store.PostgresURL = resolveEnv(cfg.Store.PostgresURL)
	cfg.Matrix.Homeserver = resolveEnv(cfg.Matrix.Homeserver)
	cfg.Matrix.UserID = resolveEnv(cfg.Matrix.UserID)
	cfg.Matrix.Password = resolveEnv(cfg.Matrix.Password)
	cfg.Matrix.ServerName = resolveEnv(cfg.Matrix.ServerName)
	cfg.Plugins.AutomaticURL = resolveEnv(cfg.Plugins.AutomaticURL)

	applyDefaults(&cfg)
	return &cfg, nil
}

// resolveEnv replaces $ENV_VAR references with actual values.
func resolveEnv(s string) string {
	if len(s) > 1 && s[0] == '$' {
		if v := os.Getenv(s[1:]); v != "" {
			return v
		}
	}
	return s
}

func applyDefaults(cfg *Config) {
	if cfg.Name == "" {
		cfg.Name = "tater"
	}
	if cfg.BasePrompt == "" {
		cfg.BasePrompt = defaultBasePrompt
	}
	if cfg.History.MaxEntries <= 0 {
		cfg.History.MaxEntries = 20
	}
	if cfg.WebUI.Addr == "" {
		cfg.WebUI.Addr = ":8788"
	}
	if cfg.Bridge.Addr == "" {
		cfg.Bridge.Addr = ":8789"
	}
	if cfg.Bridge.DefaultTransport == "" {
		cfg.Bridge.DefaultTransport = "homeassistant"
	}
}

const defaultBasePrompt = "You are Tater Totterson, a helpful assistant with access to tools.\n" +
	"When a tool fits the request, respond with ONLY the tool's JSON object and nothing else."

// defaultConfig returns a config using environment variables, suitable for
// container deployment.
func defaultConfig() *Config {
	cfg := &Config{
		Store: store.Config{
			Driver:      envOr("TATER_STORE_DRIVER", "sqlite"),
			Path:        envOr("TATER_STORE_PATH", "/data/tater.db"),
			PostgresURL: envOr("TATER_PG_URL", ""),
		},
		LLM: LLMConfig{
			Provider:    envOr("TATER_LLM_PROVIDER", "anthropic"),
			Model:       envOr("TATER_LLM_MODEL", ""),
			APIKey:      os.Getenv("ANTHROPIC_API_KEY"),
			BaseURL:     envOr("TATER_LLM_BASE_URL", ""),
			MaxOutput:   4096,
			Temperature: 0.7,
		},
		Matrix: MatrixConfig{
			Enabled:      envOr("MATRIX_BOT_PASSWORD", "") != "",
			Homeserver:   envOr("MATRIX_HOMESERVER", "http://synapse:8008"),
			UserID:       envOr("MATRIX_BOT_USER", "tater"),
			Password:     envOr("MATRIX_BOT_PASSWORD", ""),
			ServerName:   envOr("MATRIX_SERVER_NAME", "matrix.example.com"),
			AllowedUsers: []string{envOr("ALLOWED_USERS", "@admin:matrix.example.com")},
			DataDir:      envOr("TATER_DATA_DIR", "/data"),
		},
		WebUI: WebUIConfig{
			Enabled: true,
		},
		Bridge: BridgeConfig{
			Enabled: envOr("TATER_BRIDGE_ENABLED", "") != "",
		},
		Plugins: PluginsConfig{
			AutomaticURL: envOr("AUTOMATIC_URL", ""),
		},
	}
	applyDefaults(cfg)
	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
