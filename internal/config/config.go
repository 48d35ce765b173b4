// Package config handles Coldwatch configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/coldwatch/config.yaml, /etc/coldwatch/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "coldwatch", "config.yaml"))
	}

	paths = append(paths, "/etc/coldwatch/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all Coldwatch configuration.
type Config struct {
	Listen    ListenConfig    `yaml:"listen"`
	Models    ModelsConfig    `yaml:"models"`
	Anthropic AnthropicConfig `yaml:"anthropic"`
	Agent     AgentConfig     `yaml:"agent"`
	Data      DataConfig      `yaml:"data"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	LogLevel  string          `yaml:"log_level"`
}

// ListenConfig defines the API server settings.
type ListenConfig struct {
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`
}

// ModelsConfig selects the completion provider and per-workflow models.
// The chat, viz, and codegen slots may name different models; the original
// deployment runs a mid-tier model for chat/ideation and a stronger one for
// visualization code generation.
type ModelsConfig struct {
	Provider     string `yaml:"provider"` // "anthropic" or "ollama"
	OllamaURL    string `yaml:"ollama_url"`
	ChatModel    string `yaml:"chat_model"`
	VizModel     string `yaml:"viz_model"`
	CodegenModel string `yaml:"codegen_model"`
}

// AnthropicConfig defines Anthropic API settings.
type AnthropicConfig struct {
	APIKey string `yaml:"api_key"`
}

// AgentConfig bounds the reasoning workflows.
type AgentConfig struct {
	// MaxIterations caps reasoning/tool cycles per node execution.
	MaxIterations int `yaml:"max_iterations"`
	// CompletionTimeoutSec bounds a single completion call (default 120).
	CompletionTimeoutSec int `yaml:"completion_timeout_sec"`
	// ToolTimeoutSec bounds a single tool invocation (default 15).
	ToolTimeoutSec int `yaml:"tool_timeout_sec"`
	// HistoryWindow is how many recent turns seed the ideation prompt.
	HistoryWindow int `yaml:"history_window"`
}

// DataConfig defines the facility data store.
type DataConfig struct {
	// DBPath is the SQLite database holding sensor readings and the
	// session archive. Defaults to "coldwatch.db" in the working dir.
	DBPath string `yaml:"db_path"`
	// UseDataClock anchors "now" to the newest reading timestamp instead
	// of the wall clock. Useful with seeded datasets.
	UseDataClock bool `yaml:"use_data_clock"`
}

// MQTTConfig defines the optional live readings ingest.
type MQTTConfig struct {
	Enabled bool `yaml:"enabled"`
	// Broker is the broker URL (mqtt://, mqtts://).
	Broker   string `yaml:"broker"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	// TopicPrefix is the subscription root (default "facility").
	// Readings arrive on <prefix>/<sensor_id>/reading.
	TopicPrefix string `yaml:"topic_prefix"`
}

// MaxIterationsOrDefault returns the configured iteration bound with
// the default applied.
func (a AgentConfig) MaxIterationsOrDefault() int {
	if a.MaxIterations <= 0 {
		return 8
	}
	return a.MaxIterations
}

// CompletionTimeout returns the per-completion-call timeout.
func (a AgentConfig) CompletionTimeout() time.Duration {
	if a.CompletionTimeoutSec <= 0 {
		return 120 * time.Second
	}
	return time.Duration(a.CompletionTimeoutSec) * time.Second
}

// ToolTimeout returns the per-tool-invocation timeout.
func (a AgentConfig) ToolTimeout() time.Duration {
	if a.ToolTimeoutSec <= 0 {
		return 15 * time.Second
	}
	return time.Duration(a.ToolTimeoutSec) * time.Second
}

// HistoryWindowOrDefault returns the ideation context window size.
func (a AgentConfig) HistoryWindowOrDefault() int {
	if a.HistoryWindow <= 0 {
		return 10
	}
	return a.HistoryWindow
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns a default configuration.
func Default() *Config {
	return &Config{
		Listen: ListenConfig{Port: 8080},
		Models: ModelsConfig{
			Provider:     "anthropic",
			OllamaURL:    "http://localhost:11434",
			ChatModel:    "claude-sonnet-4-5",
			VizModel:     "claude-sonnet-4-5",
			CodegenModel: "claude-opus-4-5",
		},
		Data: DataConfig{
			DBPath:       "coldwatch.db",
			UseDataClock: true,
		},
		MQTT: MQTTConfig{
			TopicPrefix: "facility",
		},
	}
}
