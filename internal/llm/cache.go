package llm

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

// cacheEntry represents a cached completion.
type cacheEntry struct {
	expiry time.Time
	reply  string
}

// responseCache provides thread-safe caching for completions. Expired entries
// are dropped lazily on access and swept when the cache grows past maxEntries.
type responseCache struct {
	now        func() time.Time
	entries    map[string]cacheEntry
	ttl        time.Duration
	maxEntries int
	mu         sync.Mutex
}

// newResponseCache creates a new cache with the specified TTL.
func newResponseCache(ttl time.Duration) *responseCache {
	return &responseCache{
		entries:    make(map[string]cacheEntry),
		ttl:        ttl,
		maxEntries: 1024,
		now:        time.Now,
	}
}

// cacheKey hashes the prompt pair so that large inputs do not become map keys.
func cacheKey(systemPrompt, userText string) string {
	h := sha256.New()
	h.Write([]byte(systemPrompt))
	h.Write([]byte{0})
	h.Write([]byte(userText))
	return hex.EncodeToString(h.Sum(nil))
}

// get retrieves a reply from the cache if it exists and hasn't expired.
func (c *responseCache) get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, exists := c.entries[key]
	if !exists {
		return "", false
	}
	if c.now().After(entry.expiry) {
		delete(c.entries, key)
		return "", false
	}
	return entry.reply, true
}

// set stores a reply in the cache.
func (c *responseCache) set(key, reply string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if len(c.entries) >= c.maxEntries {
		for k, entry := range c.entries {
			if now.After(entry.expiry) {
				delete(c.entries, k)
			}
		}
		if len(c.entries) >= c.maxEntries {
			c.entries = make(map[string]cacheEntry)
		}
	}

	c.entries[key] = cacheEntry{reply: reply, expiry: now.Add(c.ttl)}
}

// size returns the number of entries in the cache.
func (c *responseCache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
