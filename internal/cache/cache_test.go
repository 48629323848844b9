package cache

import (
	"crypto/sha256"
	"encoding/binary"
	"testing"
	"time"

	"github.com/allaspectsdev/llmgate/internal/provider"
)

type fakeClock struct{ t time.Time }

func (f *fakeClock) now() time.Time          { return f.t }
func (f *fakeClock) advance(d time.Duration) { f.t = f.t.Add(d) }

func testKey(n uint64) Key {
	b := binary.BigEndian.AppendUint64(nil, n)
	return Key{Hash: n, Digest: sha256.Sum256(b)}
}

func newTestCache(t *testing.T, size int, ttl time.Duration) (*Cache, *fakeClock) {
	t.Helper()
	clk := &fakeClock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	c, err := New(size, ttl, WithClock(clk.now))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c, clk
}

// ---------------------------------------------------------------------------
// Get / Add
// ---------------------------------------------------------------------------

func TestCache_HitWithinTTL(t *testing.T) {
	c, clk := newTestCache(t, 10, 300*time.Second)

	c.Add(testKey(1), Entry{Text: "hello", ProviderID: "llm7"})
	clk.advance(299 * time.Second)

	e, ok := c.Get(testKey(1))
	if !ok {
		t.Fatal("expected hit within TTL")
	}
	if e.Text != "hello" || e.ProviderID != "llm7" {
		t.Errorf("entry = %+v", e)
	}
	if !e.CreatedAt.Equal(clk.t.Add(-299 * time.Second)) {
		t.Errorf("CreatedAt = %v; want insert time", e.CreatedAt)
	}
}

func TestCache_ExpiresAtTTL(t *testing.T) {
	c, clk := newTestCache(t, 10, 300*time.Second)

	c.Add(testKey(1), Entry{Text: "hello"})
	clk.advance(300 * time.Second)

	if _, ok := c.Get(testKey(1)); ok {
		t.Fatal("entry should be expired once age reaches TTL")
	}
	if c.Len() != 0 {
		t.Errorf("expired entry should be purged on read, Len = %d", c.Len())
	}
	s := c.Stats()
	if s.Expired != 1 || s.Misses != 1 || s.Hits != 0 {
		t.Errorf("stats = %+v", s)
	}
}

func TestCache_EvictsOldestInserted(t *testing.T) {
	c, _ := newTestCache(t, 2, time.Minute)

	c.Add(testKey(1), Entry{Text: "a"})
	c.Add(testKey(2), Entry{Text: "b"})

	// Reading key 1 must not protect it from eviction.
	if _, ok := c.Get(testKey(1)); !ok {
		t.Fatal("expected hit for key 1")
	}
	c.Add(testKey(3), Entry{Text: "c"})

	if _, ok := c.Get(testKey(1)); ok {
		t.Error("key 1 was inserted first and should have been evicted")
	}
	for _, n := range []uint64{2, 3} {
		if _, ok := c.Get(testKey(n)); !ok {
			t.Errorf("key %d should still be cached", n)
		}
	}
	if s := c.Stats(); s.Evictions != 1 {
		t.Errorf("Evictions = %d; want 1", s.Evictions)
	}
}

func TestCache_ReAddRefreshesTimestamp(t *testing.T) {
	c, clk := newTestCache(t, 10, time.Minute)

	c.Add(testKey(1), Entry{Text: "old"})
	clk.advance(50 * time.Second)
	c.Add(testKey(1), Entry{Text: "new"})
	clk.advance(50 * time.Second)

	e, ok := c.Get(testKey(1))
	if !ok {
		t.Fatal("re-added entry should be fresh")
	}
	if e.Text != "new" {
		t.Errorf("Text = %q; want new", e.Text)
	}
	if c.Len() != 1 {
		t.Errorf("Len = %d; want 1", c.Len())
	}
}

func TestCache_Sweep(t *testing.T) {
	c, clk := newTestCache(t, 10, time.Minute)

	c.Add(testKey(1), Entry{Text: "a"})
	c.Add(testKey(2), Entry{Text: "b"})
	clk.advance(30 * time.Second)
	c.Add(testKey(3), Entry{Text: "c"})
	clk.advance(40 * time.Second)

	if n := c.Sweep(); n != 2 {
		t.Errorf("Sweep removed %d; want 2", n)
	}
	if c.Len() != 1 {
		t.Errorf("Len = %d; want 1", c.Len())
	}
	if _, ok := c.Get(testKey(3)); !ok {
		t.Error("key 3 is still fresh")
	}
}

func TestCache_Defaults(t *testing.T) {
	c, err := New(0, 0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if c.TTL() != DefaultTTL {
		t.Errorf("TTL = %v; want %v", c.TTL(), DefaultTTL)
	}
}

func TestCache_HashCollisionIsMiss(t *testing.T) {
	c, _ := newTestCache(t, 10, time.Minute)

	stored := testKey(7)
	other := Key{Hash: stored.Hash, Digest: sha256.Sum256([]byte("different request"))}

	c.Add(stored, Entry{Text: "answer for stored"})
	if _, ok := c.Get(other); ok {
		t.Fatal("a key sharing only the hash must not hit")
	}
	if e, ok := c.Get(stored); !ok || e.Text != "answer for stored" {
		t.Errorf("original key: got %+v, %v", e, ok)
	}

	c.Add(other, Entry{Text: "answer for other"})
	if _, ok := c.Get(stored); ok {
		t.Error("colliding Add should replace the earlier entry")
	}
	if e, ok := c.Get(other); !ok || e.Text != "answer for other" {
		t.Errorf("replacing key: got %+v, %v", e, ok)
	}
	if st := c.Stats(); st.Hits != 2 || st.Misses != 2 {
		t.Errorf("stats = %+v; want 2 hits, 2 misses", st)
	}
}

// ---------------------------------------------------------------------------
// Key
// ---------------------------------------------------------------------------

func msgs(pairs ...string) []provider.Message {
	out := make([]provider.Message, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, provider.Message{Role: pairs[i], Content: pairs[i+1]})
	}
	return out
}

func TestKeyFor_Deterministic(t *testing.T) {
	m := msgs("user", "hi")
	if KeyFor(m, "auto", 100, 0.7) != KeyFor(m, "auto", 100, 0.7) {
		t.Error("identical inputs must produce identical keys")
	}
}

func TestKeyFor_SensitiveToEachField(t *testing.T) {
	m := msgs("user", "hi")
	base := KeyFor(m, "auto", 100, 0.7)

	variants := map[string]Key{
		"content":     KeyFor(msgs("user", "hello"), "auto", 100, 0.7),
		"role":        KeyFor(msgs("system", "hi"), "auto", 100, 0.7),
		"model":       KeyFor(m, "gpt-4o", 100, 0.7),
		"maxTokens":   KeyFor(m, "auto", 101, 0.7),
		"temperature": KeyFor(m, "auto", 100, 0.8),
		"extra msg":   KeyFor(msgs("user", "hi", "user", "x"), "auto", 100, 0.7),
		"no messages": KeyFor(nil, "auto", 100, 0.7),
	}
	for name, k := range variants {
		if k.Digest == base.Digest {
			t.Errorf("changing %s did not change the digest", name)
		}
		if k.Hash == base.Hash {
			t.Errorf("changing %s did not change the hash", name)
		}
	}
}

func TestKeyFor_FieldBoundaries(t *testing.T) {
	tests := []struct {
		name string
		a, b Key
	}{
		{
			"content and model",
			KeyFor(msgs("user", "ab"), "c", 1, 0),
			KeyFor(msgs("user", "a"), "bc", 1, 0),
		},
		{
			"NUL in content spans a message boundary",
			KeyFor(msgs("user", "x\x00user\x00y"), "auto", 100, 0.7),
			KeyFor(msgs("user", "x", "user", "y"), "auto", 100, 0.7),
		},
		{
			"merged and split messages",
			KeyFor(msgs("user", "ab"), "auto", 100, 0.7),
			KeyFor(msgs("user", "a", "user", "b"), "auto", 100, 0.7),
		},
		{
			"role and content",
			KeyFor(msgs("us", "eruser"), "auto", 100, 0.7),
			KeyFor(msgs("user", "user"), "auto", 100, 0.7),
		},
		{
			"role and content with NUL",
			KeyFor(msgs("user\x00", "hi"), "auto", 100, 0.7),
			KeyFor(msgs("user", "\x00hi"), "auto", 100, 0.7),
		},
		{
			"empty message versus none",
			KeyFor(msgs("", ""), "auto", 100, 0.7),
			KeyFor(nil, "auto", 100, 0.7),
		},
		{
			"last content and model",
			KeyFor(msgs("user", "hi", "user", ""), "auto", 100, 0.7),
			KeyFor(msgs("user", "hi"), "auto", 100, 0.7),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.a == tt.b {
				t.Errorf("distinct requests produced the same key %x", tt.a.Digest)
			}
		})
	}
}
