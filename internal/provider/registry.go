package provider

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/allaspectsdev/llmgate/internal/tokenizer"
)

// Options carries everything a factory needs to build a provider.
type Options struct {
	ID           string
	BaseURL      string
	DefaultModel string
	HTTPClient   *http.Client
	Tokenizer    *tokenizer.Tokenizer
}

// Factory builds a Provider from Options.
type Factory func(opts Options) (Provider, error)

// Registry maps a provider type ("openai", "anthropic") to its factory.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns a Registry with the built-in provider types.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	r.factories[TypeOpenAI] = NewOpenAI
	r.factories[TypeAnthropic] = NewAnthropic
	return r
}

// Register adds a factory for a new provider type. Registering an empty or
// already known type is an error.
func (r *Registry) Register(providerType string, f Factory) error {
	providerType = strings.ToLower(strings.TrimSpace(providerType))
	if providerType == "" {
		return fmt.Errorf("provider type cannot be empty")
	}
	if f == nil {
		return fmt.Errorf("provider type %s: nil factory", providerType)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[providerType]; exists {
		return fmt.Errorf("provider type %s already registered", providerType)
	}
	r.factories[providerType] = f
	return nil
}

// Build constructs a provider of the given type.
func (r *Registry) Build(providerType string, opts Options) (Provider, error) {
	r.mu.RLock()
	f, ok := r.factories[strings.ToLower(providerType)]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown provider type %q (known: %s)", providerType, strings.Join(r.Types(), ", "))
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = NewHTTPClient()
	}
	return f(opts)
}

// Types returns the registered provider types, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.factories))
	for t := range r.factories {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
