package constraint

import (
	"fmt"
	"hash/fnv"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/paramguard/paramguard/pkg/catalog"
	"github.com/paramguard/paramguard/pkg/diag"
)

// Key identifies a cached constraint result structurally: parameter id,
// normalized value, constraint kind, and the constraint's payload
// fingerprint. A struct key avoids the serialization cost and ordering
// collisions of concatenated strings. The fingerprint keeps two
// same-kind constraints on one parameter (two patterns, several custom
// markers) from sharing an entry.
type Key struct {
	ParamID string
	Value   string
	Kind    catalog.ConstraintKind
	Payload string
}

// Fingerprint renders the fields of the constraint that influence its
// outcome, so constraints of the same kind hash to distinct keys.
func Fingerprint(c catalog.Constraint) string {
	var payload string
	switch c.Kind {
	case catalog.KindRange:
		payload = strconv.FormatFloat(c.Min, 'g', -1, 64) + ".." + strconv.FormatFloat(c.Max, 'g', -1, 64)
	case catalog.KindEnum:
		payload = strings.Join(c.Values, ",")
	case catalog.KindPattern:
		payload = c.Pattern
	case catalog.KindLength:
		payload = strconv.Itoa(c.MinLen) + ".." + strconv.Itoa(c.MaxLen)
	case catalog.KindCustom:
		payload = c.Validator
	}
	return payload + "|" + string(c.Severity) + "|" + c.Message
}

// Normalize produces the canonical value component of a cache key.
// Distinct Go types with the same printed form must not collide, so the
// form is prefixed with a type tag.
func Normalize(value interface{}, absent bool) string {
	if absent {
		return "absent"
	}
	switch v := value.(type) {
	case nil:
		return "nil"
	case string:
		return "s:" + v
	case bool:
		return "b:" + strconv.FormatBool(v)
	case int:
		return "n:" + strconv.FormatInt(int64(v), 10)
	case int64:
		return "n:" + strconv.FormatInt(v, 10)
	case float64:
		if v == float64(int64(v)) {
			return "n:" + strconv.FormatInt(int64(v), 10)
		}
		return "n:" + strconv.FormatFloat(v, 'g', -1, 64)
	default:
		return fmt.Sprintf("o:%v", v)
	}
}

type entry struct {
	diags     []diag.Diagnostic
	expiresAt time.Time
}

type shard struct {
	mu      sync.RWMutex
	entries map[Key]entry
}

// CacheStats reports cache effectiveness counters.
type CacheStats struct {
	Hits      uint64  `json:"hits"`
	Misses    uint64  `json:"misses"`
	Entries   int     `json:"entries"`
	Evictions uint64  `json:"evictions"`
	HitRate   float64 `json:"hit_rate"`
}

// Cache is a sharded TTL cache for constraint results. Readers on
// different shards never block each other; readers on the same shard
// share a read lock.
type Cache struct {
	shards []*shard
	ttl    time.Duration

	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewCache creates a sharded cache. shards defaults to 32 and ttl to
// five minutes when zero. A background sweeper evicts expired entries.
func NewCache(shards int, ttl time.Duration) *Cache {
	if shards <= 0 {
		shards = 32
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	c := &Cache{
		shards: make([]*shard, shards),
		ttl:    ttl,
		stopCh: make(chan struct{}),
	}
	for i := range c.shards {
		c.shards[i] = &shard{entries: make(map[Key]entry)}
	}

	go c.sweep()
	return c
}

// Get returns the cached diagnostics for the key, if present and fresh.
func (c *Cache) Get(key Key) ([]diag.Diagnostic, bool) {
	s := c.shardFor(key)

	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()

	if !ok || time.Now().After(e.expiresAt) {
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return e.diags, true
}

// Put stores diagnostics for the key with the configured TTL.
func (c *Cache) Put(key Key, diags []diag.Diagnostic) {
	s := c.shardFor(key)
	s.mu.Lock()
	s.entries[key] = entry{diags: diags, expiresAt: time.Now().Add(c.ttl)}
	s.mu.Unlock()
}

// Clear drops every entry in every shard.
func (c *Cache) Clear() {
	for _, s := range c.shards {
		s.mu.Lock()
		evicted := len(s.entries)
		s.entries = make(map[Key]entry)
		s.mu.Unlock()
		c.evictions.Add(uint64(evicted))
	}
}

// Stats returns a snapshot of the cache counters.
func (c *Cache) Stats() CacheStats {
	entries := 0
	for _, s := range c.shards {
		s.mu.RLock()
		entries += len(s.entries)
		s.mu.RUnlock()
	}

	hits := c.hits.Load()
	misses := c.misses.Load()
	stats := CacheStats{
		Hits:      hits,
		Misses:    misses,
		Entries:   entries,
		Evictions: c.evictions.Load(),
	}
	if total := hits + misses; total > 0 {
		stats.HitRate = float64(hits) / float64(total)
	}
	return stats
}

// Close stops the background sweeper.
func (c *Cache) Close() {
	c.stopOnce.Do(func() { close(c.stopCh) })
}

func (c *Cache) shardFor(key Key) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key.ParamID))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(key.Value))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(key.Kind))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(key.Payload))
	return c.shards[h.Sum32()%uint32(len(c.shards))]
}

// sweep periodically removes expired entries. The interval is half the
// TTL, floored at one second.
func (c *Cache) sweep() {
	interval := c.ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			now := time.Now()
			for _, s := range c.shards {
				s.mu.Lock()
				for k, e := range s.entries {
					if now.After(e.expiresAt) {
						delete(s.entries, k)
						c.evictions.Add(1)
					}
				}
				s.mu.Unlock()
			}
		case <-c.stopCh:
			return
		}
	}
}
