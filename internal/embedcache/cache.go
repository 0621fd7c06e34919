// Package embedcache wraps an embedder.Embedder with an LRU+TTL cache
// keyed by content hash, so repeated embedding calls for unchanged text
// avoid a network or inference round trip (spec §4.18).
package embedcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/graphmem/graphmem/internal/embedder"
)

// Stats reports cache effectiveness.
type Stats struct {
	Hits, Misses int64
	MemoryBytes  int64
}

// HitRate returns Hits/(Hits+Misses), or 0 if no lookups have occurred.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

type entry struct {
	vector    []float32
	expiresAt time.Time
}

// Cached wraps an Embedder with a bounded LRU cache. Cache keys combine
// the text and the model ID so switching embedding models never serves
// a stale vector from a different model's space.
type Cached struct {
	inner embedder.Embedder
	cache *lru.Cache[string, entry]
	ttl   time.Duration

	mu     sync.Mutex
	hits   int64
	misses int64
}

// New wraps inner with an LRU cache of capacity size and the given TTL.
// ttl of 0 disables expiry (entries live until evicted by capacity).
func New(inner embedder.Embedder, size int, ttl time.Duration) (*Cached, error) {
	c, err := lru.New[string, entry](size)
	if err != nil {
		return nil, err
	}
	return &Cached{inner: inner, cache: c, ttl: ttl}, nil
}

var _ embedder.Embedder = (*Cached)(nil)

func cacheKey(text, modelID string) string {
	sum := sha256.Sum256([]byte(text + "\x00" + modelID))
	return hex.EncodeToString(sum[:])
}

func (c *Cached) lookup(text string) ([]float32, bool) {
	key := cacheKey(text, c.inner.ModelID())
	e, ok := c.cache.Get(key)
	if !ok {
		return nil, false
	}
	if !e.expiresAt.IsZero() && time.Now().After(e.expiresAt) {
		c.cache.Remove(key)
		return nil, false
	}
	return e.vector, true
}

func (c *Cached) store(text string, vec []float32) {
	var expires time.Time
	if c.ttl > 0 {
		expires = time.Now().Add(c.ttl)
	}
	c.cache.Add(cacheKey(text, c.inner.ModelID()), entry{vector: vec, expiresAt: expires})
}

// Embed embeds texts, only sending cache-miss entries to the wrapped
// embedder and splicing the results back into their original positions.
func (c *Cached) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))
	var missTexts []string
	var missIdx []int

	for i, text := range texts {
		if v, ok := c.lookup(text); ok {
			c.mu.Lock()
			c.hits++
			c.mu.Unlock()
			results[i] = v
			continue
		}
		c.mu.Lock()
		c.misses++
		c.mu.Unlock()
		missTexts = append(missTexts, text)
		missIdx = append(missIdx, i)
	}

	if len(missTexts) == 0 {
		return results, nil
	}

	embedded, err := c.inner.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	for j, idx := range missIdx {
		results[idx] = embedded[j]
		c.store(missTexts[j], embedded[j])
	}
	return results, nil
}

// Dimensions delegates to the wrapped embedder.
func (c *Cached) Dimensions() int { return c.inner.Dimensions() }

// ModelID delegates to the wrapped embedder.
func (c *Cached) ModelID() string { return c.inner.ModelID() }

// Stats returns a snapshot of hit/miss counters and an estimate of
// cache memory usage (4 bytes per float32 component, ignoring map
// overhead).
func (c *Cached) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	var bytes int64
	for _, key := range c.cache.Keys() {
		if e, ok := c.cache.Peek(key); ok {
			bytes += int64(len(e.vector) * 4)
		}
	}
	return Stats{Hits: c.hits, Misses: c.misses, MemoryBytes: bytes}
}
