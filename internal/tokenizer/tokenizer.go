// Package tokenizer estimates token usage for upstreams that do not report it.
package tokenizer

import (
	"strings"
	"sync"

	tiktoken "github.com/pkoukk/tiktoken-go"
)

const (
	encodingCL100K = "cl100k_base"
	encodingO200K  = "o200k_base"

	// Chat framing: every message costs a fixed overhead for its role
	// markers and every reply is primed with a few more.
	perMessageOverhead = 4
	replyPriming       = 3
)

// Message is the subset of a chat message that contributes to token count.
type Message struct {
	Role    string
	Content string
}

// encodingPrefixes is consulted in order; the first matching prefix wins.
// More specific prefixes must come before shorter ones.
var encodingPrefixes = []struct {
	prefix   string
	encoding string
}{
	{"gpt-4o", encodingO200K},
	{"gpt-4.1", encodingO200K},
	{"o1", encodingO200K},
	{"o3", encodingO200K},
	{"o4", encodingO200K},
	{"gpt-4", encodingCL100K},
	{"gpt-3.5", encodingCL100K},
	{"claude-", encodingCL100K},
}

// Tokenizer counts tokens with tiktoken. Encoders are loaded lazily and
// shared across goroutines.
type Tokenizer struct {
	mu       sync.Mutex
	encoders map[string]*tiktoken.Tiktoken
	failed   map[string]error
}

// New creates a new Tokenizer.
func New() *Tokenizer {
	return &Tokenizer{
		encoders: make(map[string]*tiktoken.Tiktoken),
		failed:   make(map[string]error),
	}
}

// Encoding returns the encoding name used for model. Unknown models fall
// back to cl100k_base.
func Encoding(model string) string {
	lower := strings.ToLower(model)
	for _, e := range encodingPrefixes {
		if strings.HasPrefix(lower, e.prefix) {
			return e.encoding
		}
	}
	return encodingCL100K
}

func (t *Tokenizer) encoder(model string) (*tiktoken.Tiktoken, error) {
	name := Encoding(model)

	t.mu.Lock()
	defer t.mu.Unlock()

	if enc, ok := t.encoders[name]; ok {
		return enc, nil
	}
	if err, ok := t.failed[name]; ok {
		return nil, err
	}
	enc, err := tiktoken.GetEncoding(name)
	if err != nil {
		t.failed[name] = err
		return nil, err
	}
	t.encoders[name] = enc
	return enc, nil
}

// CountTokens counts the tokens in text. It returns 0 when the encoding
// cannot be loaded.
func (t *Tokenizer) CountTokens(model, text string) int {
	if text == "" {
		return 0
	}
	enc, err := t.encoder(model)
	if err != nil {
		return 0
	}
	return len(enc.Encode(text, nil, nil))
}

// CountMessages counts a whole prompt including chat framing.
func (t *Tokenizer) CountMessages(model string, messages []Message) int {
	enc, err := t.encoder(model)
	if err != nil {
		return 0
	}

	total := replyPriming
	for _, m := range messages {
		total += perMessageOverhead
		total += len(enc.Encode(m.Role, nil, nil))
		total += len(enc.Encode(m.Content, nil, nil))
	}
	return total
}
