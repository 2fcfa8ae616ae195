package cache

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/lysyi3m/anitrack/app/database"
)

type entry struct {
	Timestamp int64           `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// Cache is an expiring key -> payload store on top of the KV repository.
// Stale and unreadable entries are evicted when read.
type Cache struct {
	store  database.KVRepository
	policy Policy
	now    func() time.Time
}

func New(store database.KVRepository, policy Policy) *Cache {
	return &Cache{
		store:  store,
		policy: policy,
		now:    time.Now,
	}
}

// WithClock replaces the time source
func (c *Cache) WithClock(now func() time.Time) *Cache {
	c.now = now
	return c
}

func (c *Cache) Policy() Policy {
	return c.policy
}

// Get returns the payload stored under key when it is still fresh
func (c *Cache) Get(key string) (json.RawMessage, bool) {
	raw, ok, err := c.store.Get(key)
	if err != nil {
		slog.Warn("Cache read failed", "key", key, "error", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}

	var e entry
	if err := json.Unmarshal([]byte(raw), &e); err != nil || e.Payload == nil {
		slog.Warn("Evicting corrupt cache entry", "key", key)
		c.evict(key)
		return nil, false
	}

	age := c.now().Unix() - e.Timestamp
	if age >= int64(c.policy.TTL(key)/time.Second) {
		slog.Debug("Cache entry expired", "key", key, "age", age)
		c.evict(key)
		return nil, false
	}

	return e.Payload, true
}

// GetInto decodes a fresh payload into v; a payload that does not decode counts as a miss
func (c *Cache) GetInto(key string, v any) bool {
	payload, ok := c.Get(key)
	if !ok {
		return false
	}
	if err := json.Unmarshal(payload, v); err != nil {
		slog.Warn("Evicting undecodable cache payload", "key", key, "error", err)
		c.evict(key)
		return false
	}
	return true
}

// Set stores payload under key with a fresh timestamp
func (c *Cache) Set(key string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode payload for %s: %w", key, err)
	}

	raw, err := json.Marshal(entry{Timestamp: c.now().Unix(), Payload: data})
	if err != nil {
		return fmt.Errorf("failed to encode cache entry for %s: %w", key, err)
	}

	return c.store.Set(key, string(raw))
}

// Clear removes every entry whose key starts with prefix. An empty prefix clears
// all cache kinds but leaves other data in the store alone.
func (c *Cache) Clear(prefix string) (int, error) {
	if prefix != "" {
		return c.store.DeleteByPrefix(prefix)
	}

	total := 0
	for _, p := range []string{KindSchedule + "_", KindDetails + "_", UpcomingKey()} {
		n, err := c.store.DeleteByPrefix(p)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

// Entries lists cached keys for a prefix along with when they were written
func (c *Cache) Entries(prefix string) ([]database.Entry, error) {
	if prefix == "" {
		var all []database.Entry
		for _, p := range []string{KindDetails + "_", KindSchedule + "_", UpcomingKey()} {
			entries, err := c.store.List(p)
			if err != nil {
				return nil, err
			}
			all = append(all, entries...)
		}
		return all, nil
	}
	return c.store.List(prefix)
}

func (c *Cache) evict(key string) {
	if err := c.store.Delete(key); err != nil {
		slog.Warn("Cache eviction failed", "key", key, "error", err)
	}
}
