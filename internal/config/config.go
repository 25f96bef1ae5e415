// Package config loads the service configuration from a YAML file with
// environment overrides for deployment-sensitive values.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	configPathEnv  = "SCOUT_CONFIG"
	listenAddrEnv  = "SCOUT_LISTEN_ADDR"
	llmEndpointEnv = "SCOUT_LLM_ENDPOINT"
	llmModelEnv    = "SCOUT_LLM_MODEL"
	llmAPIKeyEnv   = "SCOUT_LLM_API_KEY"
	serpAPIKeyEnv  = "SERPAPI_KEY"
	archiveDSNEnv  = "SCOUT_ARCHIVE_DSN"
	metricsPortEnv = "SCOUT_METRICS_PORT"
)

// Config holds all settings required across the application.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Search  SearchConfig  `yaml:"search"`
	Fetch   FetchConfig   `yaml:"fetch"`
	LLM     LLMConfig     `yaml:"llm"`
	Report  ReportConfig  `yaml:"report"`
	Archive ArchiveConfig `yaml:"archive"`
}

// ServerConfig describes the HTTP listener and the metrics endpoint.
type ServerConfig struct {
	Addr        string `yaml:"addr"`
	MetricsPort int    `yaml:"metricsPort"`
}

// SearchConfig selects and tunes the discovery provider.
type SearchConfig struct {
	Provider    string   `yaml:"provider"` // ddg | bing | serpapi | site
	MaxResults  int      `yaml:"maxResults"`
	Trusted     []string `yaml:"trustedDomains"`
	Blacklist   []string `yaml:"blacklistDomains"`
	OnlyTrusted bool     `yaml:"onlyTrusted"`
	SerpAPIKey  string   `yaml:"serpApiKey"`
}

// FetchConfig tunes the concurrent fetch phase.
type FetchConfig struct {
	MaxFetch       int      `yaml:"maxFetch"`
	TimeoutSeconds int      `yaml:"timeoutSeconds"`
	MaxRedirects   int      `yaml:"maxRedirects"`
	RespectRobots  bool     `yaml:"respectRobots"`
	RequestsPerSec float64  `yaml:"requestsPerSecond"`
	JitterMs       int      `yaml:"jitterMs"`
	UserAgents     []string `yaml:"userAgents"`
	ProxyFile      string   `yaml:"proxyFile"`
	Fingerprint    string   `yaml:"fingerprint"` // chrome | firefox | safari | go
}

// Timeout returns the per-source fetch timeout.
func (f FetchConfig) Timeout() time.Duration {
	return time.Duration(f.TimeoutSeconds) * time.Second
}

// LLMConfig defines how to contact the chat-completions endpoint.
type LLMConfig struct {
	Endpoint string `yaml:"endpoint"`
	Model    string `yaml:"model"`
	APIKey   string `yaml:"apiKey"`
}

// ReportConfig tunes generation and export.
type ReportConfig struct {
	Dir             string  `yaml:"dir"`
	PDFCommand      string  `yaml:"pdfCommand"`
	StreamOutput    bool    `yaml:"streamOutput"`
	LowFetchRate    float64 `yaml:"lowFetchRate"`
	LowFetchMinDocs int     `yaml:"lowFetchMinDocs"`
}

// ArchiveConfig selects the run archive backend.
type ArchiveConfig struct {
	Backend string `yaml:"backend"` // sqlite | postgres | none
	DSN     string `yaml:"dsn"`
}

// Load reads the YAML file at path (or $SCOUT_CONFIG when path is empty) and
// applies environment overrides. A missing file is not an error; defaults
// plus environment carry a working development setup.
func Load(path string) (Config, error) {
	cfg := defaultConfig()

	if path == "" {
		path = os.Getenv(configPathEnv)
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return Config{}, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(listenAddrEnv); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv(metricsPortEnv); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.MetricsPort = port
		}
	}
	if v := os.Getenv(llmEndpointEnv); v != "" {
		c.LLM.Endpoint = v
	}
	if v := os.Getenv(llmModelEnv); v != "" {
		c.LLM.Model = v
	}
	if v := os.Getenv(llmAPIKeyEnv); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv(serpAPIKeyEnv); v != "" {
		c.Search.SerpAPIKey = v
	}
	if v := os.Getenv(archiveDSNEnv); v != "" {
		c.Archive.DSN = v
	}
}

func (c *Config) validate() error {
	switch c.Search.Provider {
	case "ddg", "bing", "serpapi", "site":
	default:
		return fmt.Errorf("unknown search provider %q", c.Search.Provider)
	}
	if c.Search.Provider == "serpapi" && c.Search.SerpAPIKey == "" {
		return fmt.Errorf("search provider serpapi requires an API key")
	}
	if c.Search.Provider == "site" && len(c.Search.Trusted) == 0 {
		return fmt.Errorf("search provider site requires trustedDomains")
	}
	switch c.Archive.Backend {
	case "sqlite", "postgres", "none":
	default:
		return fmt.Errorf("unknown archive backend %q", c.Archive.Backend)
	}
	if c.Fetch.TimeoutSeconds <= 0 {
		return fmt.Errorf("fetch timeout must be positive, got %d", c.Fetch.TimeoutSeconds)
	}
	return nil
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Addr:        ":8080",
			MetricsPort: 9090,
		},
		Search: SearchConfig{
			Provider:   "ddg",
			MaxResults: 10,
		},
		Fetch: FetchConfig{
			MaxFetch:       6,
			TimeoutSeconds: 30,
			MaxRedirects:   5,
			RespectRobots:  true,
			Fingerprint:    "chrome",
		},
		LLM: LLMConfig{
			Endpoint: "https://api.openai.com/v1/chat/completions",
			Model:    "gpt-4o-mini",
		},
		Report: ReportConfig{
			Dir:             "reports",
			StreamOutput:    true,
			LowFetchRate:    0.5,
			LowFetchMinDocs: 2,
		},
		Archive: ArchiveConfig{
			Backend: "sqlite",
			DSN:     "scout.db",
		},
	}
}
