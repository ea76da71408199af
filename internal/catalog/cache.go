package catalog

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/crystaldolphin/metadolphin/internal/metrics"
)

type cacheEntry[T any] struct {
	value     T
	expiresAt time.Time
}

// ttlCache is a keyed cache whose entries expire after a fixed TTL.
// Expired entries are evicted lazily on read.
type ttlCache[T any] struct {
	name    string
	ttl     time.Duration
	enabled bool
	now     func() time.Time

	mu      sync.RWMutex
	entries map[string]cacheEntry[T]
}

func newTTLCache[T any](name string, ttl time.Duration, enabled bool, now func() time.Time) *ttlCache[T] {
	if now == nil {
		now = time.Now
	}
	return &ttlCache[T]{
		name:    name,
		ttl:     ttl,
		enabled: enabled,
		now:     now,
		entries: make(map[string]cacheEntry[T]),
	}
}

func (c *ttlCache[T]) get(key string) (T, bool) {
	var zero T
	if !c.enabled {
		return zero, false
	}

	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		metrics.RecordCacheLookup(c.name, "miss")
		return zero, false
	}
	if !c.now().Before(e.expiresAt) {
		c.mu.Lock()
		// re-check: a concurrent set may have refreshed the entry
		if cur, still := c.entries[key]; still && !c.now().Before(cur.expiresAt) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		metrics.RecordCacheLookup(c.name, "expired")
		return zero, false
	}
	metrics.RecordCacheLookup(c.name, "hit")
	return e.value, true
}

func (c *ttlCache[T]) set(key string, value T) {
	if !c.enabled {
		return
	}
	c.mu.Lock()
	c.entries[key] = cacheEntry[T]{value: value, expiresAt: c.now().Add(c.ttl)}
	c.mu.Unlock()
}

func (c *ttlCache[T]) clear() {
	c.mu.Lock()
	c.entries = make(map[string]cacheEntry[T])
	c.mu.Unlock()
}

func (c *ttlCache[T]) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// cacheKey joins kind, a data source id and name parts. Names are quoted, so
// a separator inside a schema or table name can never make two different
// lookups share a key: ("SALES", "DATA_X") and ("SALES_DATA", "X") differ.
func cacheKey(kind string, dsID int64, names ...string) string {
	var b strings.Builder
	b.WriteString(kind)
	b.WriteByte('_')
	b.WriteString(strconv.FormatInt(dsID, 10))
	for _, n := range names {
		b.WriteByte('_')
		b.WriteString(strconv.Quote(n))
	}
	return b.String()
}
