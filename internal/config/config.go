package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
)

// configPtr holds the current config for thread-safe access.
var configPtr atomic.Pointer[Config]

// loadedConfigFile stores the path of the config file used by the last successful Load.
var loadedConfigFile atomic.Value

// Get returns the current Config. It is safe for concurrent use.
// If no config has been loaded yet, it returns the default config.
func Get() *Config {
	if c := configPtr.Load(); c != nil {
		return c
	}
	d := DefaultConfig()
	configPtr.Store(d)
	return d
}

func set(cfg *Config) {
	configPtr.Store(cfg)
}

// Config is the top-level configuration for llmgate.
type Config struct {
	Server    ServerConfig              `mapstructure:"server"    toml:"server"`
	Auth      AuthConfig                `mapstructure:"auth"      toml:"auth"`
	Router    RouterConfig              `mapstructure:"router"    toml:"router"`
	Providers map[string]ProviderConfig `mapstructure:"providers" toml:"providers"`
	Store     StoreConfig               `mapstructure:"store"     toml:"store"`
	Tracing   TracingConfig             `mapstructure:"tracing"   toml:"tracing"`
	Metrics   MetricsConfig             `mapstructure:"metrics"   toml:"metrics"`
}

// ServerConfig holds the HTTP API settings.
type ServerConfig struct {
	BindAddress  string `mapstructure:"bind_address"  toml:"bind_address"`
	Port         int    `mapstructure:"port"          toml:"port"`
	LogLevel     string `mapstructure:"log_level"     toml:"log_level"`
	DataDir      string `mapstructure:"data_dir"      toml:"data_dir"`
	ReadTimeout  int    `mapstructure:"read_timeout"  toml:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout" toml:"write_timeout"`
	IdleTimeout  int    `mapstructure:"idle_timeout"  toml:"idle_timeout"`
	MaxBodySize  int64  `mapstructure:"max_body_size" toml:"max_body_size"`
}

// Addr returns host:port for the listener.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.BindAddress, s.Port)
}

// AuthConfig holds the bearer-token settings for the HTTP API.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled" toml:"enabled"`
	Token   string `mapstructure:"token"   toml:"token"`
}

// RouterConfig tunes caching, timeouts and auto-disable.
type RouterConfig struct {
	CacheTTLSeconds       int    `mapstructure:"cache_ttl_seconds"       toml:"cache_ttl_seconds"`
	CacheMaxEntries       int    `mapstructure:"cache_max_entries"       toml:"cache_max_entries"`
	AttemptTimeoutSeconds int    `mapstructure:"attempt_timeout_seconds" toml:"attempt_timeout_seconds"`
	DisableThreshold      int    `mapstructure:"disable_threshold"       toml:"disable_threshold"`
	TestPrompt            string `mapstructure:"test_prompt"             toml:"test_prompt"`
}

// CacheTTL returns the cache TTL as a time.Duration.
func (r RouterConfig) CacheTTL() time.Duration {
	return time.Duration(r.CacheTTLSeconds) * time.Second
}

// AttemptTimeout returns the per-attempt timeout as a time.Duration.
func (r RouterConfig) AttemptTimeout() time.Duration {
	return time.Duration(r.AttemptTimeoutSeconds) * time.Second
}

// ProviderConfig describes a single upstream provider. The map key under
// [providers] is the provider id; viper lower-cases it.
type ProviderConfig struct {
	Name          string  `mapstructure:"name"           toml:"name"`
	Type          string  `mapstructure:"type"           toml:"type"` // "openai" or "anthropic"
	APIBase       string  `mapstructure:"api_base"       toml:"api_base"`
	Model         string  `mapstructure:"model"          toml:"model"`
	CredentialEnv string  `mapstructure:"credential_env" toml:"credential_env"`
	KeyRef        string  `mapstructure:"key_ref"        toml:"key_ref"`
	Priority      int     `mapstructure:"priority"       toml:"priority"`
	Enabled       bool    `mapstructure:"enabled"        toml:"enabled"`
	CostPerToken  float64 `mapstructure:"cost_per_token" toml:"cost_per_token"`
	MaxTokens     int     `mapstructure:"max_tokens"     toml:"max_tokens"`
	RateLimit     float64 `mapstructure:"rate_limit"     toml:"rate_limit"` // requests per second, 0 = unlimited
	RateBurst     int     `mapstructure:"rate_burst"     toml:"rate_burst"`
}

// ProviderEntry pairs a provider id with its configuration.
type ProviderEntry struct {
	ID string
	ProviderConfig
}

// SortedProviders returns providers ordered by (priority, id). TOML tables
// have no order, so this is the registration order.
func (c *Config) SortedProviders() []ProviderEntry {
	out := make([]ProviderEntry, 0, len(c.Providers))
	for id, p := range c.Providers {
		out = append(out, ProviderEntry{ID: id, ProviderConfig: p})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// StoreConfig controls the SQLite attempt log.
type StoreConfig struct {
	Enabled       bool `mapstructure:"enabled"        toml:"enabled"`
	RetentionDays int  `mapstructure:"retention_days" toml:"retention_days"`
}

// TracingConfig controls OpenTelemetry distributed tracing.
type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"      toml:"enabled"`
	Exporter    string  `mapstructure:"exporter"     toml:"exporter"`     // "stdout", "otlp-grpc", "otlp-http"
	Endpoint    string  `mapstructure:"endpoint"     toml:"endpoint"`     // e.g. "localhost:4317"
	ServiceName string  `mapstructure:"service_name" toml:"service_name"`
	SampleRate  float64 `mapstructure:"sample_rate"  toml:"sample_rate"` // 0.0 to 1.0
	Insecure    bool    `mapstructure:"insecure"     toml:"insecure"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" toml:"enabled"`
}

// Load reads configuration with the following precedence:
//  1. Environment variables (LLMGATE_ prefix, _ as separator)
//  2. The file at explicitPath if non-empty
//  3. ~/.llmgate/llmgate.toml
//  4. ./llmgate.toml
//  5. Built-in defaults
//
// Before reading, .env files in the working directory and the default data
// directory are loaded into the process environment without overriding
// variables that are already set. The loaded config is validated and stored
// in the global atomic pointer.
func Load(explicitPath string) (*Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigType("toml")

	setViperDefaults(v)

	v.SetEnvPrefix("LLMGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if explicitPath != "" {
		v.SetConfigFile(explicitPath)
	} else {
		if homeDir, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(homeDir, ".llmgate"))
		}
		v.AddConfigPath(".")
		v.SetConfigName("llmgate")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: reading config: %w", err)
		}
	}

	if cf := v.ConfigFileUsed(); cf != "" {
		loadedConfigFile.Store(cf)
	}

	cfg := DefaultConfig()
	// A config file that names any provider replaces the default set.
	if v.IsSet("providers") {
		cfg.Providers = map[string]ProviderConfig{}
	}
	if err := v.Unmarshal(cfg, viper.DecodeHook(
		mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	)); err != nil {
		return nil, fmt.Errorf("config: unmarshalling config: %w", err)
	}

	cfg.Server.DataDir = expandHome(cfg.Server.DataDir)
	applyProviderDefaults(v, cfg)

	if err := validate(cfg); err != nil {
		return nil, err
	}

	set(cfg)
	return cfg, nil
}

// loadDotEnv loads .env from the working directory and the data directory.
// Missing files are ignored.
func loadDotEnv() error {
	candidates := []string{".env", filepath.Join(expandHome(DefaultDataDir), ".env")}
	for _, path := range candidates {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("config: loading %s: %w", path, err)
		}
	}
	return nil
}

// applyProviderDefaults fills fields a provider table may omit. A provider
// without an explicit enabled key is enabled.
func applyProviderDefaults(v *viper.Viper, cfg *Config) {
	for id, p := range cfg.Providers {
		if v.IsSet("providers."+id) && !v.IsSet("providers."+id+".enabled") {
			p.Enabled = true
		}
		if p.Name == "" {
			p.Name = id
		}
		if p.Type == "" {
			p.Type = DefaultProviderType
		}
		p.Type = strings.ToLower(p.Type)
		cfg.Providers[id] = p
	}
}

// InitConfig writes the default configuration file to ~/.llmgate/llmgate.toml.
// If the file already exists it is not overwritten.
func InitConfig() error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("config: determining home directory: %w", err)
	}

	dir := filepath.Join(homeDir, ".llmgate")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("config: creating data directory: %w", err)
	}

	path := filepath.Join(dir, DefaultConfigFilename)
	if _, err := os.Stat(path); err == nil {
		fmt.Printf("Config already exists: %s\n", path)
		return nil
	}

	data, err := toml.Marshal(DefaultConfig())
	if err != nil {
		return fmt.Errorf("config: marshalling default config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("config: writing config: %w", err)
	}

	fmt.Printf("Config written to %s\n", path)
	return nil
}

// ExportConfig writes the current config to path in TOML format. The auth
// token is blanked.
func ExportConfig(path string) error {
	cfg := *Get()
	cfg.Auth.Token = ""
	data, err := toml.Marshal(&cfg)
	if err != nil {
		return fmt.Errorf("config: marshalling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("config: writing config: %w", err)
	}
	return nil
}

// ConfigFilePath returns the path of the config file that was loaded, or
// empty if no file was found.
func ConfigFilePath() string {
	if v, ok := loadedConfigFile.Load().(string); ok {
		return v
	}
	return ""
}

// setViperDefaults registers every known key with viper so that env var binding
// works for all fields even when no config file is present.
func setViperDefaults(v *viper.Viper) {
	d := DefaultConfig()

	// Server
	v.SetDefault("server.bind_address", d.Server.BindAddress)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.log_level", d.Server.LogLevel)
	v.SetDefault("server.data_dir", d.Server.DataDir)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)
	v.SetDefault("server.idle_timeout", d.Server.IdleTimeout)
	v.SetDefault("server.max_body_size", d.Server.MaxBodySize)

	// Auth
	v.SetDefault("auth.enabled", d.Auth.Enabled)
	v.SetDefault("auth.token", d.Auth.Token)

	// Router
	v.SetDefault("router.cache_ttl_seconds", d.Router.CacheTTLSeconds)
	v.SetDefault("router.cache_max_entries", d.Router.CacheMaxEntries)
	v.SetDefault("router.attempt_timeout_seconds", d.Router.AttemptTimeoutSeconds)
	v.SetDefault("router.disable_threshold", d.Router.DisableThreshold)
	v.SetDefault("router.test_prompt", d.Router.TestPrompt)

	// Store
	v.SetDefault("store.enabled", d.Store.Enabled)
	v.SetDefault("store.retention_days", d.Store.RetentionDays)

	// Tracing
	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.exporter", d.Tracing.Exporter)
	v.SetDefault("tracing.endpoint", d.Tracing.Endpoint)
	v.SetDefault("tracing.service_name", d.Tracing.ServiceName)
	v.SetDefault("tracing.sample_rate", d.Tracing.SampleRate)
	v.SetDefault("tracing.insecure", d.Tracing.Insecure)

	// Metrics
	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
}

// expandHome replaces a leading ~ with the user's home directory.
func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
