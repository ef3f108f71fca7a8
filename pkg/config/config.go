package config

import (
	"encoding/json"
	"fmt"
	"os"
)

type Config struct {
	App       AppConfig                 `json:"app"`
	MCP       MCPConfig                 `json:"mcp"`
	Providers map[string]ProviderConfig `json:"providers"`
	Gateways  map[string]GatewayConfig  `json:"gateways"`
	Memory    MemoryConfig              `json:"memory"`
	Policy    PolicyConfig              `json:"policy"`
	Tools     ToolsConfig               `json:"tools"`
}

type AppConfig struct {
	Name         string `json:"name"`
	MaxSteps     int    `json:"max_steps"`
	PromptsDir   string `json:"prompts_dir,omitempty"`
	SystemPrompt string `json:"system_prompt,omitempty"`
}

// MCPConfig describes how to launch and talk to the remote tool server.
type MCPConfig struct {
	Command            string            `json:"command"`
	Args               []string          `json:"args"`
	Env                map[string]string `json:"env,omitempty"`
	CallTimeoutSeconds int               `json:"call_timeout_seconds"`
	// AsyncTools lists tool names dispatched on the suspending path.
	AsyncTools []string `json:"async_tools,omitempty"`
}

type ProviderConfig struct {
	APIKey  string `json:"api_key"`
	Model   string `json:"model"`
	BaseURL string `json:"base_url,omitempty"`
	Enabled bool   `json:"enabled"`
}

type GatewayConfig struct {
	Token   string `json:"token,omitempty"`
	Enabled bool   `json:"enabled"`
}

type MemoryConfig struct {
	Path string `json:"path"`
}

type PolicyConfig struct {
	DeniedTools    []string `json:"denied_tools,omitempty"`
	DeniedPatterns []string `json:"denied_patterns,omitempty"`
}

// ToolsConfig toggles the builtin tools registered next to remote ones.
type ToolsConfig struct {
	Search  bool `json:"search"`
	Scraper bool `json:"scraper"`
	Browser bool `json:"browser"`
}

func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}
	cfg.expand()
	cfg.applyDefaults()

	return &cfg, nil
}

// expand resolves ${VAR} references so secrets can live in the environment
// (or a .env file) instead of the config file.
func (c *Config) expand() {
	for name, p := range c.Providers {
		p.APIKey = os.ExpandEnv(p.APIKey)
		p.BaseURL = os.ExpandEnv(p.BaseURL)
		c.Providers[name] = p
	}
	for name, g := range c.Gateways {
		g.Token = os.ExpandEnv(g.Token)
		c.Gateways[name] = g
	}
	for k, v := range c.MCP.Env {
		c.MCP.Env[k] = os.ExpandEnv(v)
	}
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "orbit"
	}
	if c.App.MaxSteps <= 0 {
		c.App.MaxSteps = 10
	}
	if c.MCP.CallTimeoutSeconds <= 0 {
		c.MCP.CallTimeoutSeconds = 60
	}
}

// GetDefaultProvider returns the first enabled provider
func (c *Config) GetDefaultProvider() (string, ProviderConfig) {
	for name, p := range c.Providers {
		if p.Enabled {
			return name, p
		}
	}
	return "", ProviderConfig{}
}

// GetGateway returns the named gateway config if enabled
func (c *Config) GetGateway(name string) (GatewayConfig, bool) {
	g, ok := c.Gateways[name]
	if ok && g.Enabled {
		return g, true
	}
	return GatewayConfig{}, false
}
