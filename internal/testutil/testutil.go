package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/allaspectsdev/llmgate/internal/config"
	"github.com/allaspectsdev/llmgate/internal/store"
)

// NewTestStore creates an SQLite store in a temporary directory.
// The store is automatically closed when the test completes.
func NewTestStore(t *testing.T) *store.Store {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")
	st, err := store.Open(dbPath)
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

// NewTestConfig returns a minimal valid config for testing: a temporary data
// directory and two OpenAI-compatible providers pointing at baseURL whose
// credentials come from TEST_PRIMARY_KEY and TEST_BACKUP_KEY.
func NewTestConfig(t *testing.T, baseURL string) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Server.DataDir = t.TempDir()
	cfg.Server.Port = 0
	cfg.Providers = map[string]config.ProviderConfig{
		"primary": {
			Name:          "Primary",
			Type:          "openai",
			APIBase:       baseURL,
			Model:         "primary-model",
			CredentialEnv: "TEST_PRIMARY_KEY",
			Priority:      1,
			Enabled:       true,
			CostPerToken:  0.001,
		},
		"backup": {
			Name:          "Backup",
			Type:          "openai",
			APIBase:       baseURL,
			Model:         "backup-model",
			CredentialEnv: "TEST_BACKUP_KEY",
			Priority:      2,
			Enabled:       true,
		},
	}
	return cfg
}

// WriteFile writes content to a file in the given directory.
func WriteFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("failed to create directory: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}
	return path
}
