// Package config handles Sherpa configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/sherpa/config.yaml, /etc/sherpa/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "sherpa", "config.yaml"))
	}

	paths = append(paths, "/etc/sherpa/config.yaml")
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

// Config holds all Sherpa configuration.
type Config struct {
	Listen   ListenConfig `yaml:"listen"`
	Models   ModelsConfig `yaml:"models"`
	Search   SearchConfig `yaml:"search"`
	Agent    AgentConfig  `yaml:"agent"`
	Memory   MemoryConfig `yaml:"memory"`
	DataDir  string       `yaml:"data_dir"`
	LogLevel string       `yaml:"log_level"`
}

// ListenConfig defines the API server settings.
type ListenConfig struct {
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`
}

// ModelsConfig defines model settings.
type ModelsConfig struct {
	Default   string `yaml:"default"`
	OllamaURL string `yaml:"ollama_url"`
}

// SearchConfig defines web search provider settings.
type SearchConfig struct {
	// Primary names the provider used by default ("searxng", "brave",
	// "duckduckgo"). DuckDuckGo needs no key and is the fallback default.
	Primary    string           `yaml:"primary"`
	SearXNG    SearXNGConfig    `yaml:"searxng"`
	Brave      BraveConfig      `yaml:"brave"`
	DuckDuckGo DuckDuckGoConfig `yaml:"duckduckgo"`
}

// SearXNGConfig holds SearXNG provider settings.
type SearXNGConfig struct {
	URL string `yaml:"url"`
}

// BraveConfig holds Brave Search provider settings.
type BraveConfig struct {
	APIKey string `yaml:"api_key"`
}

// DuckDuckGoConfig holds DuckDuckGo provider settings.
type DuckDuckGoConfig struct {
	Enabled bool `yaml:"enabled"`
}

// AgentConfig bounds the agent loop.
type AgentConfig struct {
	// MaxSteps caps non-plan steps per request before the loop gives up.
	MaxSteps int `yaml:"max_steps"`
}

// MemoryConfig bounds conversation memory.
type MemoryConfig struct {
	// MaxTurns caps checkpointed threads to the most recent N turns
	// (2N messages).
	MaxTurns int `yaml:"max_turns"`
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
			Default:   "qwen3:4b",
			OllamaURL: "http://localhost:11434",
		},
		Search: SearchConfig{
			Primary:    "duckduckgo",
			DuckDuckGo: DuckDuckGoConfig{Enabled: true},
		},
		Agent:   AgentConfig{MaxSteps: 8},
		Memory:  MemoryConfig{MaxTurns: 12},
		DataDir: "data",
	}
}
