package provider

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/allaspectsdev/llmgate/internal/tokenizer"
)

// TypeAnthropic is the provider type for the Anthropic Messages API.
const TypeAnthropic = "anthropic"

const (
	defaultAnthropicBase = "https://api.anthropic.com"
	anthropicVersion     = "2023-06-01"

	// anthropicDefaultMaxTokens is sent when the request carries no bound;
	// the Messages API rejects requests without max_tokens.
	anthropicDefaultMaxTokens = 1024
)

type anthropicRequest struct {
	Model       string             `json:"model"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Anthropic talks to the /v1/messages endpoint.
type Anthropic struct {
	id           string
	baseURL      string
	defaultModel string
	client       *http.Client
	tok          *tokenizer.Tokenizer
}

// NewAnthropic is the Factory for TypeAnthropic.
func NewAnthropic(opts Options) (Provider, error) {
	if opts.ID == "" {
		return nil, fmt.Errorf("anthropic provider: id must not be empty")
	}
	base := opts.BaseURL
	if base == "" {
		base = defaultAnthropicBase
	}
	client := opts.HTTPClient
	if client == nil {
		client = NewHTTPClient()
	}
	return &Anthropic{
		id:           opts.ID,
		baseURL:      base,
		defaultModel: opts.DefaultModel,
		client:       client,
		tok:          opts.Tokenizer,
	}, nil
}

// Name returns the provider id.
func (p *Anthropic) Name() string { return p.id }

// Send performs a non-streaming Messages API call. System messages are
// lifted into the top-level system field.
func (p *Anthropic) Send(ctx context.Context, req *Request) (*Completion, error) {
	model := resolveModel(req.Model, p.defaultModel)
	if model == "" {
		return nil, &Error{Provider: p.id, Message: "no model requested and no default model configured"}
	}

	body := anthropicRequest{
		Model:       model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	if body.MaxTokens <= 0 {
		body.MaxTokens = anthropicDefaultMaxTokens
	}
	// Anthropic caps temperature at 1.
	if body.Temperature > 1 {
		body.Temperature = 1
	}

	var system []string
	for _, m := range req.Messages {
		if m.Role == "system" {
			system = append(system, m.Content)
			continue
		}
		body.Messages = append(body.Messages, anthropicMessage{Role: m.Role, Content: m.Content})
	}
	body.System = strings.Join(system, "\n\n")
	if len(body.Messages) == 0 {
		return nil, &Error{Provider: p.id, Message: "request has only system messages"}
	}

	headers := map[string]string{
		"x-api-key":         req.Credential,
		"anthropic-version": anthropicVersion,
	}
	data, err := postJSON(ctx, p.client, p.id, joinURL(p.baseURL, "v1/messages"), headers, body)
	if err != nil {
		return nil, err
	}

	if !gjson.ValidBytes(data) {
		return nil, &Error{Provider: p.id, StatusCode: http.StatusOK, Message: "malformed response: invalid JSON"}
	}

	var parts []string
	gjson.GetBytes(data, "content").ForEach(func(_, block gjson.Result) bool {
		if block.Get("type").String() == "text" {
			parts = append(parts, block.Get("text").String())
		}
		return true
	})
	text := strings.Join(parts, "")
	if text == "" {
		return nil, &Error{Provider: p.id, StatusCode: http.StatusOK, Message: "malformed response: no text content"}
	}

	usage := gjson.GetBytes(data, "usage")
	tokens := int(usage.Get("input_tokens").Int() + usage.Get("output_tokens").Int())
	if tokens <= 0 {
		tokens = estimateTokens(p.tok, model, req.Messages, text)
	}

	respModel := gjson.GetBytes(data, "model").String()
	if respModel == "" {
		respModel = model
	}

	return &Completion{Text: text, TokensUsed: tokens, Model: respModel}, nil
}
