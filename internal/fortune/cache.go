package fortune

import (
	"strconv"
	"time"

	"github.com/coocood/freecache"
	json "github.com/goccy/go-json"
)

const minCacheSizeMB = 1

// Cache is a read-through cache for the day's fortune rows. Misses always
// fall through to the store; the cache is an efficiency layer only.
type Cache interface {
	Get(date string, slot int) (Fortune, bool)
	Set(date string, slot int, row Fortune, ttl time.Duration)
}

type cachedFortune struct {
	ID   uint   `json:"id"`
	Text string `json:"text"`
}

// MemoryCache caches fortune rows in-process with freecache.
type MemoryCache struct {
	cache *freecache.Cache
}

// NewMemoryCache sizes a freecache-backed cache, or returns a no-op cache
// when disabled.
func NewMemoryCache(enabled bool, sizeMB int) Cache {
	if !enabled {
		return noopCache{}
	}
	if sizeMB < minCacheSizeMB {
		sizeMB = minCacheSizeMB
	}
	return &MemoryCache{cache: freecache.NewCache(sizeMB * 1024 * 1024)}
}

func cacheKey(date string, slot int) []byte {
	return []byte(date + ":" + strconv.Itoa(slot))
}

// Get returns the cached fortune for (date, slot) when present.
func (c *MemoryCache) Get(date string, slot int) (Fortune, bool) {
	value, err := c.cache.Get(cacheKey(date, slot))
	if err != nil {
		return Fortune{}, false
	}
	var entry cachedFortune
	if err := json.Unmarshal(value, &entry); err != nil {
		return Fortune{}, false
	}
	return Fortune{ID: entry.ID, Text: entry.Text, Date: date, Slot: slot}, true
}

// Set stores the fortune row under (date, slot) for ttl.
func (c *MemoryCache) Set(date string, slot int, row Fortune, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	value, err := json.Marshal(cachedFortune{ID: row.ID, Text: row.Text})
	if err != nil {
		return
	}
	_ = c.cache.Set(cacheKey(date, slot), value, int(ttl.Seconds()))
}

type noopCache struct{}

func (noopCache) Get(string, int) (Fortune, bool)         { return Fortune{}, false }
func (noopCache) Set(string, int, Fortune, time.Duration) {}
