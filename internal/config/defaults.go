package config

// DefaultBindAddress is the default bind address (localhost only for security).
const DefaultBindAddress = "127.0.0.1"

// DefaultPort is the default port for the HTTP API.
const DefaultPort = 7680

// DefaultLogLevel is the default log level.
const DefaultLogLevel = "info"

// DefaultDataDir is the default data directory (before tilde expansion).
const DefaultDataDir = "~/.llmgate"

// DefaultConfigFilename is the name of the config file.
const DefaultConfigFilename = "llmgate.toml"

// DefaultReadTimeout is the default HTTP server read timeout in seconds.
const DefaultReadTimeout = 10

// DefaultWriteTimeout is the default HTTP server write timeout in seconds.
// It must cover a full failover pass across several providers.
const DefaultWriteTimeout = 180

// DefaultIdleTimeout is the default HTTP server idle timeout in seconds.
const DefaultIdleTimeout = 120

// DefaultMaxBodySize is the default maximum request body size in bytes (4 MB).
const DefaultMaxBodySize = 4 << 20

// DefaultCacheTTLSeconds is how long a completion stays cached.
const DefaultCacheTTLSeconds = 300

// DefaultCacheMaxEntries bounds the response cache.
const DefaultCacheMaxEntries = 1000

// DefaultAttemptTimeoutSeconds bounds a single provider attempt.
const DefaultAttemptTimeoutSeconds = 30

// DefaultDisableThreshold is the consecutive failure count that disables a provider.
const DefaultDisableThreshold = 5

// DefaultTestPrompt is sent by test-providers.
const DefaultTestPrompt = "ping"

// DefaultProviderType is assumed when a provider omits type.
const DefaultProviderType = "openai"

// DefaultRetentionDays is how long attempt rows are kept.
const DefaultRetentionDays = 30

// DefaultTracingExporter is the default tracing exporter type.
const DefaultTracingExporter = "otlp-grpc"

// DefaultTracingEndpoint is the default OTLP collector endpoint.
const DefaultTracingEndpoint = "localhost:4317"

// DefaultTracingServiceName is the default service name for traces.
const DefaultTracingServiceName = "llmgate"

// DefaultTracingSampleRate is the default sampling rate (1.0 = 100%).
const DefaultTracingSampleRate = 1.0

// ValidLogLevels lists the allowed log level values.
var ValidLogLevels = []string{"trace", "debug", "info", "warn", "error", "fatal"}

// ValidProviderTypes lists the provider wire formats the registry builds.
var ValidProviderTypes = []string{"openai", "anthropic"}

// ValidTracingExporters lists the supported span exporters.
var ValidTracingExporters = []string{"stdout", "otlp-grpc", "otlp-http"}

// DefaultConfig returns a Config populated with all default values.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			BindAddress:  DefaultBindAddress,
			Port:         DefaultPort,
			LogLevel:     DefaultLogLevel,
			DataDir:      DefaultDataDir,
			ReadTimeout:  DefaultReadTimeout,
			WriteTimeout: DefaultWriteTimeout,
			IdleTimeout:  DefaultIdleTimeout,
			MaxBodySize:  DefaultMaxBodySize,
		},
		Auth: AuthConfig{
			Enabled: false,
			Token:   "",
		},
		Router: RouterConfig{
			CacheTTLSeconds:       DefaultCacheTTLSeconds,
			CacheMaxEntries:       DefaultCacheMaxEntries,
			AttemptTimeoutSeconds: DefaultAttemptTimeoutSeconds,
			DisableThreshold:      DefaultDisableThreshold,
			TestPrompt:            DefaultTestPrompt,
		},
		Providers: map[string]ProviderConfig{
			"llm7": {
				Name:          "LLM7",
				Type:          "openai",
				APIBase:       "https://api.llm7.io/v1",
				Model:         "gpt-4o-mini",
				CredentialEnv: "LLM7_API_KEY",
				Priority:      1,
				Enabled:       true,
				CostPerToken:  0,
				MaxTokens:     4096,
			},
			"openai": {
				Name:          "OpenAI",
				Type:          "openai",
				APIBase:       "https://api.openai.com/v1",
				Model:         "gpt-4o-mini",
				CredentialEnv: "OPENAI_API_KEY",
				KeyRef:        "keyring://llmgate/openai",
				Priority:      2,
				Enabled:       true,
				CostPerToken:  0.0000006,
				MaxTokens:     4096,
			},
			"anthropic": {
				Name:          "Anthropic",
				Type:          "anthropic",
				APIBase:       "https://api.anthropic.com",
				Model:         "claude-haiku-4-5",
				CredentialEnv: "ANTHROPIC_API_KEY",
				KeyRef:        "keyring://llmgate/anthropic",
				Priority:      3,
				Enabled:       true,
				CostPerToken:  0.000004,
				MaxTokens:     4096,
			},
		},
		Store: StoreConfig{
			Enabled:       true,
			RetentionDays: DefaultRetentionDays,
		},
		Tracing: TracingConfig{
			Enabled:     false,
			Exporter:    DefaultTracingExporter,
			Endpoint:    DefaultTracingEndpoint,
			ServiceName: DefaultTracingServiceName,
			SampleRate:  DefaultTracingSampleRate,
			Insecure:    false,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}
