// Package provider defines the interface every upstream LLM backend
// implements and the concrete adapters for the supported wire formats.
package provider

import (
	"context"
	"fmt"
)

// AutoModel asks the provider to use its configured default model.
const AutoModel = "auto"

// Message is a single chat message in normalized form.
type Message struct {
	Role    string `json:"role" validate:"required"`
	Content string `json:"content" validate:"required"`
}

// Request is the generic completion request handed to a provider. The
// router fills in the effective model, token bound and credential.
type Request struct {
	Messages    []Message
	Model       string
	MaxTokens   int
	Temperature float64
	Credential  string
}

// Completion is a successful provider response.
type Completion struct {
	Text       string
	TokensUsed int
	Model      string
}

// Provider maps the generic request onto one upstream wire format.
type Provider interface {
	// Name returns the provider id it was built for, e.g. "openai".
	Name() string

	// Send performs one completion call. Any transport, status or parse
	// failure is returned as an error; implementations never fabricate text.
	Send(ctx context.Context, req *Request) (*Completion, error)
}

// Error describes a failed call to an upstream provider.
type Error struct {
	Provider   string `json:"provider"`
	StatusCode int    `json:"status_code,omitempty"`
	Message    string `json:"message"`
	Err        error  `json:"-"`
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: status %d: %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}
