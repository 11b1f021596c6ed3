// Package config handles Mnemo configuration loading.
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
// Then: ./mnemo.yaml, ~/.config/mnemo/mnemo.yaml, /etc/mnemo/mnemo.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"mnemo.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "mnemo", "mnemo.yaml"))
	}

	paths = append(paths, "/etc/mnemo/mnemo.yaml")
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

// Config holds all Mnemo configuration.
type Config struct {
	Listen     ListenConfig     `yaml:"listen"`
	Gateway    GatewayConfig    `yaml:"gateway"`
	Ollama     OllamaConfig     `yaml:"ollama"`
	Embeddings EmbeddingsConfig `yaml:"embeddings"`
	Memory     MemoryConfig     `yaml:"memory"`
	Agent      AgentConfig      `yaml:"agent"`
	ToolServer []ToolServer     `yaml:"tool_servers"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	DataDir    string           `yaml:"data_dir"`
	UserID     string           `yaml:"user_id"`
	LogLevel   string           `yaml:"log_level"`
	// SystemPrompt overrides the built-in agent system prompt when set.
	SystemPrompt string `yaml:"system_prompt"`
}

// ListenConfig defines the API server settings.
type ListenConfig struct {
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`
}

// GatewayConfig defines the OpenAI-compatible reasoning endpoint.
// This is the primary LLM provider when a base URL is set.
type GatewayConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
}

// OllamaConfig defines a local Ollama provider, used as the reasoning
// fallback when the gateway is unreachable, or as the primary provider
// when no gateway is configured.
type OllamaConfig struct {
	URL   string `yaml:"url"`
	Model string `yaml:"model"`
}

// EmbeddingsConfig defines embedding generation settings.
type EmbeddingsConfig struct {
	BaseURL string `yaml:"base_url"` // Ollama URL (defaults to ollama.url)
	Model   string `yaml:"model"`    // Embedding model name (e.g., nomic-embed-text)
}

// MemoryConfig selects and configures the semantic memory backend.
type MemoryConfig struct {
	// Backend is "sqlite" (default) or "remote".
	Backend string `yaml:"backend"`
	// RemoteURL is the base URL of a mem0-style memory service,
	// required when Backend is "remote".
	RemoteURL string `yaml:"remote_url"`
	// SearchLimit caps recall_memory results (default 10).
	SearchLimit int `yaml:"search_limit"`
}

// AgentConfig tunes the reasoning loop.
type AgentConfig struct {
	// MaxIterations caps reasoning steps per request (default 8).
	MaxIterations int `yaml:"max_iterations"`
	// StepTimeoutSec bounds a single reasoning call (default 120).
	StepTimeoutSec int `yaml:"step_timeout_sec"`
	// ToolTimeoutSec bounds a single tool invocation (default 30).
	ToolTimeoutSec int `yaml:"tool_timeout_sec"`
	// ReasoningRetries is the local retry budget for gateway
	// timeouts/failures before the turn fails (default 2).
	ReasoningRetries int `yaml:"reasoning_retries"`
	// RequestTimeoutSec is the end-to-end deadline for one chat turn
	// (default 300).
	RequestTimeoutSec int `yaml:"request_timeout_sec"`
}

// ToolServer describes one remote MCP tool server.
type ToolServer struct {
	Name string `yaml:"name"`
	// Transport is "sse" (default), "http", or "stdio".
	Transport string            `yaml:"transport"`
	URL       string            `yaml:"url"`
	Command   string            `yaml:"command"`
	Args      []string          `yaml:"args"`
	Headers   map[string]string `yaml:"headers"`
	// DiscoveryTimeoutSec bounds connect + tool enumeration (default 15).
	DiscoveryTimeoutSec int `yaml:"discovery_timeout_sec"`
}

// MQTTConfig defines the optional event mirror. Disabled unless a
// broker URL is set.
type MQTTConfig struct {
	Broker      string `yaml:"broker"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topic_prefix"`
}

// StepTimeout returns the reasoning call deadline as a Duration.
func (a AgentConfig) StepTimeout() time.Duration {
	if a.StepTimeoutSec <= 0 {
		return 120 * time.Second
	}
	return time.Duration(a.StepTimeoutSec) * time.Second
}

// ToolTimeout returns the per-tool invocation deadline as a Duration.
func (a AgentConfig) ToolTimeout() time.Duration {
	if a.ToolTimeoutSec <= 0 {
		return 30 * time.Second
	}
	return time.Duration(a.ToolTimeoutSec) * time.Second
}

// RequestTimeout returns the whole-turn deadline as a Duration.
func (a AgentConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSec <= 0 {
		return 300 * time.Second
	}
	return time.Duration(a.RequestTimeoutSec) * time.Second
}

// DiscoveryTimeout returns the per-server discovery deadline.
func (t ToolServer) DiscoveryTimeout() time.Duration {
	if t.DiscoveryTimeoutSec <= 0 {
		return 15 * time.Second
	}
	return time.Duration(t.DiscoveryTimeoutSec) * time.Second
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
		Listen:  ListenConfig{Port: 8080},
		Ollama:  OllamaConfig{URL: "http://localhost:11434", Model: "qwen3:4b"},
		DataDir: "data",
		UserID:  "default",
		Embeddings: EmbeddingsConfig{
			Model: "nomic-embed-text",
		},
		Memory: MemoryConfig{
			Backend:     "sqlite",
			SearchLimit: 10,
		},
		Agent: AgentConfig{
			MaxIterations:    8,
			ReasoningRetries: 2,
		},
	}
}

// Validate checks for startup-time configuration errors. These are
// fatal: the process refuses to serve rather than run misconfigured.
func (c *Config) Validate() error {
	if c.UserID == "" {
		return fmt.Errorf("config: user_id must be set (memory operations require a user scope)")
	}
	if c.Gateway.BaseURL == "" && c.Ollama.URL == "" {
		return fmt.Errorf("config: no reasoning provider configured (set gateway.base_url or ollama.url)")
	}
	if c.Memory.Backend == "remote" && c.Memory.RemoteURL == "" {
		return fmt.Errorf("config: memory.remote_url is required when memory.backend is %q", c.Memory.Backend)
	}
	if c.Memory.Backend != "" && c.Memory.Backend != "sqlite" && c.Memory.Backend != "remote" {
		return fmt.Errorf("config: unknown memory backend %q (valid: sqlite, remote)", c.Memory.Backend)
	}
	for _, ts := range c.ToolServer {
		if ts.Name == "" {
			return fmt.Errorf("config: tool server missing name")
		}
		switch ts.Transport {
		case "", "sse", "http":
			if ts.URL == "" {
				return fmt.Errorf("config: tool server %q requires a url", ts.Name)
			}
		case "stdio":
			if ts.Command == "" {
				return fmt.Errorf("config: tool server %q requires a command for stdio transport", ts.Name)
			}
		default:
			return fmt.Errorf("config: tool server %q has unknown transport %q", ts.Name, ts.Transport)
		}
	}
	return nil
}
