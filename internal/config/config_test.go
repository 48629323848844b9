package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "llmgate.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoad_WithExplicitFile(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, `
[server]
port = 9090
log_level = "debug"
data_dir = "`+dir+`"

[router]
cache_ttl_seconds = 60
disable_threshold = 3

[providers.Primary]
type = "anthropic"
api_base = "https://anthropic.example.com"
credential_env = "PRIMARY_KEY"
priority = 1
cost_per_token = 0.002
rate_limit = 2.5
rate_burst = 4

[providers.backup]
name = "Backup"
api_base = "https://backup.example.com/v1"
priority = 2
enabled = false
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	t.Cleanup(func() { set(DefaultConfig()) })

	if cfg.Server.Port != 9090 {
		t.Errorf("Port: got %d, want 9090", cfg.Server.Port)
	}
	if cfg.Server.LogLevel != "debug" {
		t.Errorf("LogLevel: got %q, want %q", cfg.Server.LogLevel, "debug")
	}
	if cfg.Router.CacheTTL() != time.Minute {
		t.Errorf("CacheTTL: got %v, want 1m", cfg.Router.CacheTTL())
	}
	if cfg.Router.DisableThreshold != 3 {
		t.Errorf("DisableThreshold: got %d, want 3", cfg.Router.DisableThreshold)
	}
	if cfg.Router.AttemptTimeout() != 30*time.Second {
		t.Errorf("AttemptTimeout default lost: %v", cfg.Router.AttemptTimeout())
	}

	if len(cfg.Providers) != 2 {
		t.Fatalf("Providers: got %d, want 2 (file replaces defaults): %v", len(cfg.Providers), cfg.Providers)
	}
	p, ok := cfg.Providers["primary"]
	if !ok {
		t.Fatal("provider ids should be lower-cased")
	}
	if !p.Enabled {
		t.Error("provider without enabled key should default to enabled")
	}
	if p.Name != "primary" {
		t.Errorf("Name should default to id, got %q", p.Name)
	}
	if p.Type != "anthropic" || p.RateLimit != 2.5 || p.RateBurst != 4 || p.CostPerToken != 0.002 {
		t.Errorf("primary = %+v", p)
	}
	b := cfg.Providers["backup"]
	if b.Enabled {
		t.Error("backup: explicit enabled = false was overridden")
	}
	if b.Type != DefaultProviderType {
		t.Errorf("backup type: got %q, want %q", b.Type, DefaultProviderType)
	}

	if got := ConfigFilePath(); got != path {
		t.Errorf("ConfigFilePath: got %q, want %q", got, path)
	}
	if Get() != cfg {
		t.Error("Get should return the loaded config")
	}
}

func TestLoad_KeepsDefaultProvidersWithoutTable(t *testing.T) {
	path := writeConfig(t, `
[server]
data_dir = "/tmp/llmgate-test"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	t.Cleanup(func() { set(DefaultConfig()) })

	if len(cfg.Providers) != len(DefaultConfig().Providers) {
		t.Errorf("Providers: got %d, want defaults", len(cfg.Providers))
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	path := writeConfig(t, `
[server]
port = 9090
data_dir = "/tmp/llmgate-test"
`)
	t.Setenv("LLMGATE_SERVER_PORT", "9191")
	t.Setenv("LLMGATE_ROUTER_TEST_PROMPT", "hello?")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	t.Cleanup(func() { set(DefaultConfig()) })

	if cfg.Server.Port != 9191 {
		t.Errorf("Port: got %d, want env override 9191", cfg.Server.Port)
	}
	if cfg.Router.TestPrompt != "hello?" {
		t.Errorf("TestPrompt: got %q", cfg.Router.TestPrompt)
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	path := writeConfig(t, `
[server]
port = 70000
data_dir = "/tmp/llmgate-test"

[providers.bad]
type = "gemini"
api_base = "https://example.com"
`)
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"server.port", "providers.bad.type"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error should mention %s: %v", want, err)
		}
	}
}

func TestLoad_MalformedFile(t *testing.T) {
	path := writeConfig(t, "[server\nport = ")
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Server.Port != 7680 {
		t.Errorf("Port: got %d, want 7680", cfg.Server.Port)
	}
	if cfg.Server.Addr() != "127.0.0.1:7680" {
		t.Errorf("Addr: got %q", cfg.Server.Addr())
	}
	if cfg.Router.CacheTTLSeconds != 300 || cfg.Router.CacheMaxEntries != 1000 {
		t.Errorf("router cache defaults = %+v", cfg.Router)
	}
	if cfg.Router.AttemptTimeoutSeconds != 30 || cfg.Router.DisableThreshold != 5 || cfg.Router.TestPrompt != "ping" {
		t.Errorf("router defaults = %+v", cfg.Router)
	}
	if err := validate(cfg); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestSortedProviders(t *testing.T) {
	cfg := &Config{Providers: map[string]ProviderConfig{
		"zeta":  {Priority: 1},
		"alpha": {Priority: 1},
		"first": {Priority: 0},
		"last":  {Priority: 9},
	}}

	got := cfg.SortedProviders()
	want := []string{"first", "alpha", "zeta", "last"}
	if len(got) != len(want) {
		t.Fatalf("got %d entries, want %d", len(got), len(want))
	}
	for i, id := range want {
		if got[i].ID != id {
			t.Errorf("position %d: got %q, want %q", i, got[i].ID, id)
		}
	}
}

func TestExportConfig_BlanksToken(t *testing.T) {
	exportPath := filepath.Join(t.TempDir(), "exported.toml")

	cfg := DefaultConfig()
	cfg.Auth.Enabled = true
	cfg.Auth.Token = "s3cret"
	set(cfg)
	t.Cleanup(func() { set(DefaultConfig()) })

	if err := ExportConfig(exportPath); err != nil {
		t.Fatalf("ExportConfig: %v", err)
	}

	data, err := os.ReadFile(exportPath)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if strings.Contains(string(data), "s3cret") {
		t.Error("exported config leaks auth token")
	}

	var back Config
	if err := toml.Unmarshal(data, &back); err != nil {
		t.Fatalf("exported config is not valid TOML: %v", err)
	}
	if len(back.Providers) != len(cfg.Providers) {
		t.Errorf("exported providers: got %d, want %d", len(back.Providers), len(cfg.Providers))
	}
	if Get().Auth.Token != "s3cret" {
		t.Error("ExportConfig must not modify the live config")
	}
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	if got := expandHome("~/.llmgate"); got != filepath.Join(home, ".llmgate") {
		t.Errorf("expandHome: got %q", got)
	}
	if got := expandHome("/abs/path"); got != "/abs/path" {
		t.Errorf("absolute path changed: %q", got)
	}
}
