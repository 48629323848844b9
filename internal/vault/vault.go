package vault

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/zalando/go-keyring"
)

const serviceName = "llmgate"

// ErrNoCredential is returned when none of a provider's credential sources
// yields a secret.
var ErrNoCredential = errors.New("vault: no credential found")

// Vault provides secure API key storage using the OS keychain,
// with fallback to environment variables.
type Vault struct{}

// New creates a new Vault instance.
func New() *Vault {
	return &Vault{}
}

// Set stores an API key for the given provider in the OS keychain.
func (v *Vault) Set(provider, key string) error {
	if provider == "" || key == "" {
		return fmt.Errorf("vault: provider and key must not be empty")
	}
	return keyring.Set(serviceName, provider, key)
}

// Get retrieves the API key for the given provider. It first checks the
// OS keychain, then falls back to the environment variable
// LLMGATE_KEY_{UPPER(provider)}.
func (v *Vault) Get(provider string) (string, error) {
	secret, err := keyring.Get(serviceName, provider)
	if err == nil && secret != "" {
		return secret, nil
	}

	envKey := envKeyFor(provider)
	if val := os.Getenv(envKey); val != "" {
		return val, nil
	}

	return "", fmt.Errorf("%w for provider %q: not in keychain and %s not set", ErrNoCredential, provider, envKey)
}

// Delete removes the API key for the given provider from the OS keychain.
func (v *Vault) Delete(provider string) error {
	return keyring.Delete(serviceName, provider)
}

// List returns the subset of providers that currently have a key in the
// keychain or the LLMGATE_KEY_ environment fallback.
func (v *Vault) List(providers []string) []string {
	var out []string
	for _, provider := range providers {
		if _, err := v.Get(provider); err == nil {
			out = append(out, provider)
		}
	}
	return out
}

// Resolve finds the credential for a configured provider. keyRef is tried
// first, then the credentialEnv variable, then the keychain entry named
// after the provider id. Errors from an unusable keyRef are reported only
// when every source comes up empty.
func (v *Vault) Resolve(providerID, keyRef, credentialEnv string) (string, error) {
	var refErr error
	if keyRef != "" {
		secret, err := v.ResolveKeyRef(keyRef)
		if err == nil {
			return secret, nil
		}
		refErr = err
	}

	if credentialEnv != "" {
		if val := os.Getenv(credentialEnv); val != "" {
			return val, nil
		}
	}

	if secret, err := v.Get(providerID); err == nil {
		return secret, nil
	}

	if refErr != nil {
		return "", fmt.Errorf("%w for provider %q: %v", ErrNoCredential, providerID, refErr)
	}
	return "", fmt.Errorf("%w for provider %q", ErrNoCredential, providerID)
}

// ResolveKeyRef parses a key reference and retrieves the corresponding API key.
// Supported formats:
//   - "keyring://llmgate/<provider>"
//   - "env:VARIABLE_NAME" (environment variable)
//   - "file:///path/to/key" (plain-text file)
func (v *Vault) ResolveKeyRef(keyRef string) (string, error) {
	switch {
	case strings.HasPrefix(keyRef, "keyring://"):
		path := strings.TrimPrefix(keyRef, "keyring://")
		parts := strings.SplitN(path, "/", 2)
		if len(parts) != 2 || parts[0] != serviceName || parts[1] == "" {
			return "", fmt.Errorf("invalid key reference format: %q (expected \"keyring://llmgate/<provider>\")", keyRef)
		}
		secret, err := keyring.Get(serviceName, parts[1])
		if err != nil || secret == "" {
			return "", fmt.Errorf("keychain entry %q not found", parts[1])
		}
		return secret, nil

	case strings.HasPrefix(keyRef, "env:"):
		envVar := strings.TrimPrefix(keyRef, "env:")
		if val := os.Getenv(envVar); val != "" {
			return val, nil
		}
		return "", fmt.Errorf("environment variable %q is not set", envVar)

	case strings.HasPrefix(keyRef, "file://"):
		filePath := strings.TrimPrefix(keyRef, "file://")
		data, err := os.ReadFile(filePath)
		if err != nil {
			return "", fmt.Errorf("reading key file %q: %w", filePath, err)
		}
		key := strings.TrimSpace(string(data))
		if key == "" {
			return "", fmt.Errorf("key file %q is empty", filePath)
		}
		return key, nil
	}

	return "", fmt.Errorf("invalid key reference format: %q (expected \"keyring://llmgate/<provider>\", \"env:VARIABLE_NAME\", or \"file:///path/to/key\")", keyRef)
}

func envKeyFor(provider string) string {
	return "LLMGATE_KEY_" + strings.ToUpper(strings.ReplaceAll(provider, "-", "_"))
}
