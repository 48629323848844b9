package daemon

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/allaspectsdev/llmgate/internal/config"
	"github.com/allaspectsdev/llmgate/internal/provider"
	"github.com/allaspectsdev/llmgate/internal/router"
	"github.com/allaspectsdev/llmgate/internal/tokenizer"
)

// CredentialResolver finds a provider secret. *vault.Vault implements it.
type CredentialResolver interface {
	Resolve(providerID, keyRef, credentialEnv string) (string, error)
}

// BuildRouter constructs a router from cfg and registers every configured
// provider in (priority, id) order. A provider whose credential cannot be
// resolved is still registered so it shows up in listings and can receive
// one later through SetCredential; it is not eligible until then.
func BuildRouter(cfg *config.Config, reg *provider.Registry, creds CredentialResolver, rec router.AttemptRecorder, logger zerolog.Logger) (*router.Router, error) {
	rtr, err := router.New(router.Settings{
		CacheTTL:         cfg.Router.CacheTTL(),
		CacheMaxEntries:  cfg.Router.CacheMaxEntries,
		AttemptTimeout:   cfg.Router.AttemptTimeout(),
		DisableThreshold: cfg.Router.DisableThreshold,
		TestPrompt:       cfg.Router.TestPrompt,
		Logger:           logger,
		Recorder:         rec,
	})
	if err != nil {
		return nil, fmt.Errorf("creating router: %w", err)
	}

	client := provider.NewHTTPClient()
	tok := tokenizer.New()

	for _, p := range cfg.SortedProviders() {
		impl, err := reg.Build(p.Type, provider.Options{
			ID:           p.ID,
			BaseURL:      p.APIBase,
			DefaultModel: p.Model,
			HTTPClient:   client,
			Tokenizer:    tok,
		})
		if err != nil {
			return nil, fmt.Errorf("provider %s: %w", p.ID, err)
		}

		secret := ""
		if creds != nil {
			secret, err = creds.Resolve(p.ID, p.KeyRef, p.CredentialEnv)
			if err != nil && p.Enabled {
				logger.Warn().Err(err).Str("provider", p.ID).Msg("no credential; provider is not eligible until one is set")
			}
		}

		err = rtr.Register(router.Descriptor{
			ID:           p.ID,
			Name:         p.Name,
			Priority:     p.Priority,
			Enabled:      p.Enabled,
			Credential:   secret,
			CostPerToken: p.CostPerToken,
			MaxTokens:    p.MaxTokens,
			Model:        p.Model,
			RateLimit:    p.RateLimit,
			RateBurst:    p.RateBurst,
		}, impl)
		if err != nil {
			return nil, err
		}
	}

	return rtr, nil
}
