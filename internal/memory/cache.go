package memory

import (
	"strings"
	"time"
	"unicode"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const DefaultCacheCapacity = 50

// CachedReply is a previously produced answer keyed by the fingerprint
// of the prompt that produced it.
type CachedReply struct {
	Reply     string    `json:"reply"`
	CreatedAt time.Time `json:"created_at"`
}

// Cache is an LRU of recent replies. A ttl of zero keeps entries until
// they are evicted by capacity pressure.
type Cache struct {
	lru      *expirable.LRU[string, CachedReply]
	capacity int
}

func NewCache(capacity int, ttl time.Duration) *Cache {
	if capacity <= 0 {
		capacity = DefaultCacheCapacity
	}
	return &Cache{
		lru:      expirable.NewLRU[string, CachedReply](capacity, nil, ttl),
		capacity: capacity,
	}
}

// Fingerprint reduces text to a lookup key: lowercase, letters and
// digits only, single spaces. "What time is it?" and "what time is it"
// collapse to the same key.
func Fingerprint(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// Get looks up a reply by prompt text. Expired or missing entries
// report false.
func (c *Cache) Get(text string) (CachedReply, bool) {
	key := Fingerprint(text)
	if key == "" {
		return CachedReply{}, false
	}
	return c.lru.Get(key)
}

// Put stores a reply under the prompt's fingerprint. Empty prompts and
// empty replies are not cached.
func (c *Cache) Put(text, reply string) {
	key := Fingerprint(text)
	if key == "" || reply == "" {
		return
	}
	c.lru.Add(key, CachedReply{Reply: reply, CreatedAt: time.Now()})
}

func (c *Cache) Len() int { return c.lru.Len() }

func (c *Cache) Capacity() int { return c.capacity }

// Resize changes the capacity, evicting oldest entries when shrinking.
func (c *Cache) Resize(capacity int) {
	if capacity < 1 {
		capacity = 1
	}
	c.capacity = capacity
	c.lru.Resize(capacity)
}

// Purge drops every entry.
func (c *Cache) Purge() { c.lru.Purge() }
