package tokenizer

import (
	"testing"
)

func TestEncoding_PrefixTable(t *testing.T) {
	tests := []struct {
		model string
		want  string
	}{
		{"gpt-4o-mini", encodingO200K},
		{"gpt-4o-2024-08-06", encodingO200K},
		{"GPT-4o", encodingO200K},
		{"gpt-4.1-nano", encodingO200K},
		{"o3-mini", encodingO200K},
		{"gpt-4", encodingCL100K},
		{"gpt-4-turbo", encodingCL100K},
		{"gpt-3.5-turbo", encodingCL100K},
		{"claude-haiku-4-5", encodingCL100K},
		{"claude-sonnet-4-20250514-rc1", encodingCL100K},
		{"llama-3-70b", encodingCL100K},
		{"", encodingCL100K},
	}
	for _, tt := range tests {
		if got := Encoding(tt.model); got != tt.want {
			t.Errorf("Encoding(%q) = %q; want %q", tt.model, got, tt.want)
		}
	}
}

func TestCountTokens_ZeroForEmptyText(t *testing.T) {
	tok := New()
	if n := tok.CountTokens("gpt-4", ""); n != 0 {
		t.Errorf("CountTokens(\"\") = %d; want 0", n)
	}
}

// The remaining tests load real encodings, which tiktoken fetches on first use.

func TestCountTokens_NonZeroForText(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping encoding download in short mode")
	}
	tok := New()
	if n := tok.CountTokens("gpt-4", "Hello, world! This is a test of the tokenizer."); n == 0 {
		t.Error("CountTokens returned 0 for non-empty text")
	}
}

func TestCountMessages_IncludesFraming(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping encoding download in short mode")
	}
	tok := New()
	model := "gpt-4"
	messages := []Message{
		{Role: "user", Content: "Hello"},
		{Role: "assistant", Content: "Hi there"},
	}

	raw := 0
	for _, m := range messages {
		raw += tok.CountTokens(model, m.Role) + tok.CountTokens(model, m.Content)
	}
	want := raw + len(messages)*perMessageOverhead + replyPriming
	if got := tok.CountMessages(model, messages); got != want {
		t.Errorf("CountMessages = %d; want %d", got, want)
	}
}
