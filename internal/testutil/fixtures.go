package testutil

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/allaspectsdev/llmgate/internal/provider"
)

// SampleCompleteRequest returns a valid /v1/complete request body.
func SampleCompleteRequest() []byte {
	req := map[string]interface{}{
		"messages": []map[string]interface{}{
			{"role": "system", "content": "You are a helpful assistant."},
			{"role": "user", "content": "Hello, how are you?"},
		},
		"model":       "auto",
		"maxTokens":   256,
		"temperature": 0.7,
	}
	data, _ := json.Marshal(req)
	return data
}

// SampleOpenAIResponse returns a valid OpenAI Chat Completions API response body.
func SampleOpenAIResponse(text string) []byte {
	resp := map[string]interface{}{
		"id":      "chatcmpl-test123",
		"object":  "chat.completion",
		"created": 1234567890,
		"model":   "gpt-4o-mini",
		"choices": []map[string]interface{}{
			{
				"index": 0,
				"message": map[string]interface{}{
					"role":    "assistant",
					"content": text,
				},
				"finish_reason": "stop",
			},
		},
		"usage": map[string]interface{}{
			"prompt_tokens":     25,
			"completion_tokens": 12,
			"total_tokens":      37,
		},
	}
	data, _ := json.Marshal(resp)
	return data
}

// SampleMessages generates an n-turn conversation alternating user and
// assistant messages.
func SampleMessages(n int) []provider.Message {
	msgs := make([]provider.Message, n)
	for i := range msgs {
		role := "user"
		if i%2 == 1 {
			role = "assistant"
		}
		msgs[i] = provider.Message{Role: role, Content: fmt.Sprintf("message %d", i)}
	}
	return msgs
}

// FakeProvider is a scripted provider.Provider. Each call pops the next
// scripted step; once the script is exhausted the last step repeats. A
// provider with no script returns Text "ok" and 10 tokens.
type FakeProvider struct {
	ID string

	mu       sync.Mutex
	script   []Step
	requests []provider.Request
}

// Step is one scripted outcome.
type Step struct {
	Text   string
	Tokens int
	Err    error
}

// ErrScripted is the default failure returned by Fail.
var ErrScripted = errors.New("scripted failure")

// NewFakeProvider creates a fake named id that plays steps in order.
func NewFakeProvider(id string, steps ...Step) *FakeProvider {
	return &FakeProvider{ID: id, script: steps}
}

// Succeed is a step returning text and tokens.
func Succeed(text string, tokens int) Step {
	return Step{Text: text, Tokens: tokens}
}

// Fail is a step returning a provider error.
func Fail(msg string) Step {
	return Step{Err: fmt.Errorf("%w: %s", ErrScripted, msg)}
}

// Name implements provider.Provider.
func (f *FakeProvider) Name() string { return f.ID }

// Send implements provider.Provider.
func (f *FakeProvider) Send(ctx context.Context, req *provider.Request) (*provider.Completion, error) {
	f.mu.Lock()
	f.requests = append(f.requests, *req)
	step := Step{Text: "ok", Tokens: 10}
	if len(f.script) > 0 {
		step = f.script[0]
		if len(f.script) > 1 {
			f.script = f.script[1:]
		}
	}
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if step.Err != nil {
		return nil, &provider.Error{Provider: f.ID, Message: step.Err.Error(), Err: step.Err}
	}
	return &provider.Completion{Text: step.Text, TokensUsed: step.Tokens, Model: req.Model}, nil
}

// Calls returns how many times Send was invoked.
func (f *FakeProvider) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

// Requests returns a copy of every request received.
func (f *FakeProvider) Requests() []provider.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]provider.Request, len(f.requests))
	copy(out, f.requests)
	return out
}
