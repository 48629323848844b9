package router

import (
	"time"

	"github.com/allaspectsdev/llmgate/internal/provider"
)

// MaxHealth is the health score of a provider with no recent failures.
const MaxHealth = 100

// healthPenalty is subtracted from MaxHealth per consecutive failure.
const healthPenalty = 10

// Descriptor is the static configuration of a provider at registration.
type Descriptor struct {
	ID           string
	Name         string
	Priority     int // lower is tried first
	Enabled      bool
	Credential   string
	CostPerToken float64
	MaxTokens    int    // upper bound passed upstream; 0 means no bound
	Model        string // default model used for "auto"
	RateLimit    float64
	RateBurst    int
}

// ProviderStatus is a read-only view of a registered provider. It never
// carries the credential.
type ProviderStatus struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Priority      int       `json:"priority"`
	Enabled       bool      `json:"enabled"`
	HasCredential bool      `json:"hasCredential"`
	Eligible      bool      `json:"eligible"`
	CostPerToken  float64   `json:"costPerToken"`
	MaxTokens     int       `json:"maxTokens"`
	Model         string    `json:"model,omitempty"`
	HealthScore   int       `json:"healthScore"`
	ErrorCount    int       `json:"errorCount"`
	LastError     string    `json:"lastError,omitempty"`
	LastUsed      time.Time `json:"lastUsed,omitzero"`
}

// UsageStats accumulates for the process lifetime.
type UsageStats struct {
	Requests int64   `json:"requests"`
	Tokens   int64   `json:"tokens"`
	Cost     float64 `json:"cost"`
	Errors   int64   `json:"errors"`
}

// entry is the mutable router-side state for one provider. All fields are
// guarded by Router.mu.
type entry struct {
	desc     Descriptor
	provider provider.Provider
	seq      int

	healthScore int
	errorCount  int
	lastError   string
	lastUsed    time.Time

	bucket *tokenBucket
	usage  UsageStats
}

func (e *entry) eligible() bool {
	return e.desc.Enabled && e.desc.Credential != ""
}

// fail applies one failure and reports whether the provider was disabled
// by it.
func (e *entry) fail(msg string, threshold int) bool {
	e.errorCount++
	e.healthScore = MaxHealth - e.errorCount*healthPenalty
	if e.healthScore < 0 {
		e.healthScore = 0
	}
	e.lastError = msg
	if e.errorCount >= threshold && e.desc.Enabled {
		e.desc.Enabled = false
		return true
	}
	return false
}

func (e *entry) reset() {
	e.errorCount = 0
	e.healthScore = MaxHealth
	e.lastError = ""
}

func (e *entry) status() ProviderStatus {
	return ProviderStatus{
		ID:            e.desc.ID,
		Name:          e.desc.Name,
		Priority:      e.desc.Priority,
		Enabled:       e.desc.Enabled,
		HasCredential: e.desc.Credential != "",
		Eligible:      e.eligible(),
		CostPerToken:  e.desc.CostPerToken,
		MaxTokens:     e.desc.MaxTokens,
		Model:         e.desc.Model,
		HealthScore:   e.healthScore,
		ErrorCount:    e.errorCount,
		LastError:     e.lastError,
		LastUsed:      e.lastUsed,
	}
}

// effectiveMaxTokens caps the requested bound by the provider's own.
func (e *entry) effectiveMaxTokens(requested int) int {
	if e.desc.MaxTokens > 0 && (requested <= 0 || requested > e.desc.MaxTokens) {
		return e.desc.MaxTokens
	}
	return requested
}
