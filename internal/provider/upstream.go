package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/allaspectsdev/llmgate/internal/tracing"
	"github.com/allaspectsdev/llmgate/internal/version"
)

// maxResponseSize bounds how much of an upstream body is read.
const maxResponseSize = 16 << 20

// NewHTTPClient returns the shared upstream client. It carries no overall
// timeout; the router bounds every attempt with a context deadline.
func NewHTTPClient() *http.Client {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	return &http.Client{Transport: transport}
}

// postJSON marshals body, POSTs it to url with the given headers and returns
// the raw response body. Non-2xx statuses come back as *Error.
func postJSON(ctx context.Context, client *http.Client, providerID, url string, headers map[string]string, body interface{}) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, &Error{Provider: providerID, Message: "encoding request", Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, &Error{Provider: providerID, Message: "creating request", Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("User-Agent", version.UserAgent())
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}
	tracing.InjectHeaders(ctx, httpReq)

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, &Error{Provider: providerID, Message: fmt.Sprintf("forwarding to %s: %v", url, err), Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, &Error{Provider: providerID, StatusCode: resp.StatusCode, Message: "reading response", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &Error{
			Provider:   providerID,
			StatusCode: resp.StatusCode,
			Message:    upstreamErrorMessage(data, resp.Status),
		}
	}
	return data, nil
}

// upstreamErrorMessage extracts a readable message from an error body.
// Both OpenAI and Anthropic nest it under error.message.
func upstreamErrorMessage(body []byte, fallback string) string {
	if gjson.ValidBytes(body) {
		if msg := gjson.GetBytes(body, "error.message"); msg.Exists() && msg.String() != "" {
			return msg.String()
		}
		if msg := gjson.GetBytes(body, "message"); msg.Exists() && msg.String() != "" {
			return msg.String()
		}
	}
	text := strings.TrimSpace(string(body))
	if text == "" {
		return fallback
	}
	if len(text) > 256 {
		text = text[:256]
	}
	return text
}

// joinURL appends path to base without doubling slashes.
func joinURL(base, path string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}
