package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scout.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("missing file must fall back to defaults: %v", err)
	}
	if cfg.Search.Provider != "ddg" {
		t.Errorf("default provider: %q", cfg.Search.Provider)
	}
	if cfg.Fetch.TimeoutSeconds != 30 {
		t.Errorf("default fetch timeout: %d", cfg.Fetch.TimeoutSeconds)
	}
	if cfg.Fetch.MaxRedirects != 5 {
		t.Errorf("default max redirects: %d", cfg.Fetch.MaxRedirects)
	}
	if !cfg.Report.StreamOutput {
		t.Error("streaming must default on")
	}
}

func TestLoad_FileAndEnvOverride(t *testing.T) {
	path := writeConfig(t, `
search:
  provider: bing
  maxResults: 5
  trustedDomains: [nature.com, arxiv.org]
fetch:
  timeoutSeconds: 12
  maxFetch: 3
llm:
  model: file-model
archive:
  backend: none
`)
	t.Setenv("SCOUT_LLM_API_KEY", "env-key")
	t.Setenv("SCOUT_LLM_MODEL", "env-model")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Search.Provider != "bing" || cfg.Search.MaxResults != 5 {
		t.Errorf("file values not applied: %+v", cfg.Search)
	}
	if len(cfg.Search.Trusted) != 2 {
		t.Errorf("trusted domains: %v", cfg.Search.Trusted)
	}
	if cfg.Fetch.TimeoutSeconds != 12 || cfg.Fetch.MaxFetch != 3 {
		t.Errorf("fetch values not applied: %+v", cfg.Fetch)
	}
	// Environment wins over the file.
	if cfg.LLM.Model != "env-model" || cfg.LLM.APIKey != "env-key" {
		t.Errorf("env overrides not applied: %+v", cfg.LLM)
	}
}

func TestLoad_Validation(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"unknown provider", "search:\n  provider: altavista\n"},
		{"serpapi without key", "search:\n  provider: serpapi\n"},
		{"site without trusted", "search:\n  provider: site\n"},
		{"unknown archive", "archive:\n  backend: oracle\n"},
		{"bad timeout", "fetch:\n  timeoutSeconds: -1\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tc.body)); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
