package provider

import (
	"context"
	"fmt"
	"net/http"

	"github.com/tidwall/gjson"

	"github.com/allaspectsdev/llmgate/internal/tokenizer"
)

// TypeOpenAI is the provider type for OpenAI-compatible chat completion
// endpoints (OpenAI, LLM7, Groq, OpenRouter and friends).
const TypeOpenAI = "openai"

const defaultOpenAIBase = "https://api.openai.com/v1"

type openaiRequest struct {
	Model       string          `json:"model"`
	Messages    []openaiMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature float64         `json:"temperature"`
}

type openaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// OpenAI talks to an OpenAI-compatible /chat/completions endpoint.
type OpenAI struct {
	id           string
	baseURL      string
	defaultModel string
	client       *http.Client
	tok          *tokenizer.Tokenizer
}

// NewOpenAI is the Factory for TypeOpenAI.
func NewOpenAI(opts Options) (Provider, error) {
	if opts.ID == "" {
		return nil, fmt.Errorf("openai provider: id must not be empty")
	}
	base := opts.BaseURL
	if base == "" {
		base = defaultOpenAIBase
	}
	client := opts.HTTPClient
	if client == nil {
		client = NewHTTPClient()
	}
	return &OpenAI{
		id:           opts.ID,
		baseURL:      base,
		defaultModel: opts.DefaultModel,
		client:       client,
		tok:          opts.Tokenizer,
	}, nil
}

// Name returns the provider id.
func (p *OpenAI) Name() string { return p.id }

// Send performs a non-streaming chat completion.
func (p *OpenAI) Send(ctx context.Context, req *Request) (*Completion, error) {
	model := resolveModel(req.Model, p.defaultModel)
	if model == "" {
		return nil, &Error{Provider: p.id, Message: "no model requested and no default model configured"}
	}

	body := openaiRequest{
		Model:       model,
		Messages:    make([]openaiMessage, 0, len(req.Messages)),
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	for _, m := range req.Messages {
		body.Messages = append(body.Messages, openaiMessage{Role: m.Role, Content: m.Content})
	}

	headers := map[string]string{"Authorization": "Bearer " + req.Credential}
	data, err := postJSON(ctx, p.client, p.id, joinURL(p.baseURL, "chat/completions"), headers, body)
	if err != nil {
		return nil, err
	}

	if !gjson.ValidBytes(data) {
		return nil, &Error{Provider: p.id, StatusCode: http.StatusOK, Message: "malformed response: invalid JSON"}
	}
	content := gjson.GetBytes(data, "choices.0.message.content")
	if content.Type != gjson.String || content.String() == "" {
		return nil, &Error{Provider: p.id, StatusCode: http.StatusOK, Message: "malformed response: no completion text"}
	}

	text := content.String()
	tokens := int(gjson.GetBytes(data, "usage.total_tokens").Int())
	if tokens <= 0 {
		tokens = estimateTokens(p.tok, model, req.Messages, text)
	}

	respModel := gjson.GetBytes(data, "model").String()
	if respModel == "" {
		respModel = model
	}

	return &Completion{Text: text, TokensUsed: tokens, Model: respModel}, nil
}

// resolveModel maps "auto" and the empty string onto the default model.
func resolveModel(requested, fallback string) string {
	if requested == "" || requested == AutoModel {
		return fallback
	}
	return requested
}

// estimateTokens counts prompt and completion tokens locally for upstreams
// that omit usage. A nil tokenizer yields 0.
func estimateTokens(tok *tokenizer.Tokenizer, model string, messages []Message, completion string) int {
	if tok == nil {
		return 0
	}
	msgs := make([]tokenizer.Message, 0, len(messages))
	for _, m := range messages {
		msgs = append(msgs, tokenizer.Message{Role: m.Role, Content: m.Content})
	}
	return tok.CountMessages(model, msgs) + tok.CountTokens(model, completion)
}
