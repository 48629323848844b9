package config

import (
	"fmt"
	"strings"
)

// validate checks the Config for invalid or out-of-range values.
// It returns a combined error if any checks fail.
func validate(cfg *Config) error {
	var errs []string

	// Server validation
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be between 1 and 65535, got %d", cfg.Server.Port))
	}
	if !isValidEnum(cfg.Server.LogLevel, ValidLogLevels) {
		errs = append(errs, fmt.Sprintf("server.log_level must be one of %v, got %q", ValidLogLevels, cfg.Server.LogLevel))
	}
	if cfg.Server.DataDir == "" {
		errs = append(errs, "server.data_dir must not be empty")
	}
	if cfg.Server.ReadTimeout < 0 {
		errs = append(errs, fmt.Sprintf("server.read_timeout must be non-negative, got %d", cfg.Server.ReadTimeout))
	}
	if cfg.Server.WriteTimeout < 0 {
		errs = append(errs, fmt.Sprintf("server.write_timeout must be non-negative, got %d", cfg.Server.WriteTimeout))
	}
	if cfg.Server.IdleTimeout < 0 {
		errs = append(errs, fmt.Sprintf("server.idle_timeout must be non-negative, got %d", cfg.Server.IdleTimeout))
	}
	if cfg.Server.MaxBodySize < 0 {
		errs = append(errs, fmt.Sprintf("server.max_body_size must be non-negative, got %d", cfg.Server.MaxBodySize))
	}

	// Auth validation
	if cfg.Auth.Enabled && cfg.Auth.Token == "" {
		errs = append(errs, "auth.token must be set when auth.enabled is true")
	}

	// Router validation
	if cfg.Router.CacheTTLSeconds < 0 {
		errs = append(errs, fmt.Sprintf("router.cache_ttl_seconds must be non-negative, got %d", cfg.Router.CacheTTLSeconds))
	}
	if cfg.Router.CacheMaxEntries < 0 {
		errs = append(errs, fmt.Sprintf("router.cache_max_entries must be non-negative, got %d", cfg.Router.CacheMaxEntries))
	}
	if cfg.Router.AttemptTimeoutSeconds < 0 {
		errs = append(errs, fmt.Sprintf("router.attempt_timeout_seconds must be non-negative, got %d", cfg.Router.AttemptTimeoutSeconds))
	}
	if cfg.Router.DisableThreshold < 0 {
		errs = append(errs, fmt.Sprintf("router.disable_threshold must be non-negative, got %d", cfg.Router.DisableThreshold))
	}

	// Provider validation
	for id, p := range cfg.Providers {
		if id == "" {
			errs = append(errs, "providers: id must not be empty")
			continue
		}
		if !isValidEnum(p.Type, ValidProviderTypes) {
			errs = append(errs, fmt.Sprintf("providers.%s.type must be one of %v, got %q", id, ValidProviderTypes, p.Type))
		}
		if p.APIBase == "" {
			errs = append(errs, fmt.Sprintf("providers.%s.api_base must not be empty", id))
		}
		if p.Priority < 0 {
			errs = append(errs, fmt.Sprintf("providers.%s.priority must be non-negative, got %d", id, p.Priority))
		}
		if p.CostPerToken < 0 {
			errs = append(errs, fmt.Sprintf("providers.%s.cost_per_token must be non-negative, got %g", id, p.CostPerToken))
		}
		if p.MaxTokens < 0 {
			errs = append(errs, fmt.Sprintf("providers.%s.max_tokens must be non-negative, got %d", id, p.MaxTokens))
		}
		if p.RateLimit < 0 {
			errs = append(errs, fmt.Sprintf("providers.%s.rate_limit must be non-negative, got %g", id, p.RateLimit))
		}
		if p.RateBurst < 0 {
			errs = append(errs, fmt.Sprintf("providers.%s.rate_burst must be non-negative, got %d", id, p.RateBurst))
		}
	}

	// Store validation
	if cfg.Store.RetentionDays < 0 {
		errs = append(errs, fmt.Sprintf("store.retention_days must be non-negative, got %d", cfg.Store.RetentionDays))
	}

	// Tracing validation
	if cfg.Tracing.Enabled {
		if !isValidEnum(cfg.Tracing.Exporter, ValidTracingExporters) {
			errs = append(errs, fmt.Sprintf("tracing.exporter must be one of %v, got %q", ValidTracingExporters, cfg.Tracing.Exporter))
		}
		if cfg.Tracing.ServiceName == "" {
			errs = append(errs, "tracing.service_name must not be empty when tracing is enabled")
		}
	}
	if cfg.Tracing.SampleRate < 0 || cfg.Tracing.SampleRate > 1 {
		errs = append(errs, fmt.Sprintf("tracing.sample_rate must be between 0 and 1, got %f", cfg.Tracing.SampleRate))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// isValidEnum returns true if val is in the allowed list (case-insensitive).
func isValidEnum(val string, allowed []string) bool {
	lower := strings.ToLower(val)
	for _, a := range allowed {
		if strings.ToLower(a) == lower {
			return true
		}
	}
	return false
}
