package cache

import (
	"crypto/sha256"
	"encoding/binary"
	"math"

	"github.com/cespare/xxhash/v2"

	"github.com/allaspectsdev/llmgate/internal/provider"
)

// Key identifies a completion request. Hash buckets the entry; Digest is
// compared on every hit so a Hash collision is a miss, never another
// request's answer.
type Key struct {
	Hash   uint64
	Digest [sha256.Size]byte
}

// KeyFor derives the key from messages, model, maxTokens and temperature.
// The encoding length-prefixes every variable-size field and starts with the
// message count, so distinct requests never produce the same bytes.
func KeyFor(messages []provider.Message, model string, maxTokens int, temperature float64) Key {
	buf := make([]byte, 0, 64)
	buf = binary.AppendUvarint(buf, uint64(len(messages)))
	for _, m := range messages {
		buf = appendString(buf, m.Role)
		buf = appendString(buf, m.Content)
	}
	buf = appendString(buf, model)
	buf = binary.AppendVarint(buf, int64(maxTokens))
	buf = binary.BigEndian.AppendUint64(buf, math.Float64bits(temperature))

	return Key{
		Hash:   xxhash.Sum64(buf),
		Digest: sha256.Sum256(buf),
	}
}

func appendString(buf []byte, s string) []byte {
	buf = binary.AppendUvarint(buf, uint64(len(s)))
	return append(buf, s...)
}
