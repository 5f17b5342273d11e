package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hkipo/ipo-calendar-backend/models"
)

// CacheEntry represents a cached item with expiration
type CacheEntry struct {
	Data      interface{}
	ExpiresAt time.Time
}

// IsExpired checks if the cache entry has expired
func (ce *CacheEntry) IsExpired() bool {
	return time.Now().After(ce.ExpiresAt)
}

// CacheService provides in-memory caching with TTL and automatic cleanup.
// Calendar and details payloads are cached here; the core pipeline itself
// never persists anything.
type CacheService struct {
	cache      map[string]*CacheEntry
	mutex      sync.RWMutex
	defaultTTL time.Duration
	maxSize    int
}

// NewCacheService creates a cache service with the given default TTL and size cap
func NewCacheService(defaultTTL time.Duration, maxSize int) *CacheService {
	cs := &CacheService{
		cache:      make(map[string]*CacheEntry),
		defaultTTL: defaultTTL,
		maxSize:    maxSize,
	}

	// Start cleanup goroutine
	go cs.cleanupExpired()

	return cs
}

// Get retrieves a value from cache
func (cs *CacheService) Get(key string) (interface{}, bool) {
	cs.mutex.RLock()
	defer cs.mutex.RUnlock()

	entry, exists := cs.cache[key]
	if !exists || entry.IsExpired() {
		return nil, false
	}

	return entry.Data, true
}

// Set stores a value in cache with default TTL
func (cs *CacheService) Set(key string, value interface{}) {
	cs.SetWithTTL(key, value, cs.defaultTTL)
}

// SetWithTTL stores a value in cache with custom TTL
func (cs *CacheService) SetWithTTL(key string, value interface{}, ttl time.Duration) {
	cs.mutex.Lock()
	defer cs.mutex.Unlock()

	// Check if we're at max size and need to evict
	if len(cs.cache) >= cs.maxSize {
		cs.evictOldest()
	}

	cs.cache[key] = &CacheEntry{
		Data:      value,
		ExpiresAt: time.Now().Add(ttl),
	}
}

// evictOldest removes the oldest entry from cache (simple FIFO eviction)
func (cs *CacheService) evictOldest() {
	var oldestKey string
	var oldestTime time.Time

	for key, entry := range cs.cache {
		if oldestKey == "" || entry.ExpiresAt.Before(oldestTime) {
			oldestKey = key
			oldestTime = entry.ExpiresAt
		}
	}

	if oldestKey != "" {
		delete(cs.cache, oldestKey)
	}
}

// Delete removes a value from cache
func (cs *CacheService) Delete(key string) {
	cs.mutex.Lock()
	defer cs.mutex.Unlock()

	delete(cs.cache, key)
}

// Clear removes all values from cache
func (cs *CacheService) Clear() {
	cs.mutex.Lock()
	defer cs.mutex.Unlock()

	cs.cache = make(map[string]*CacheEntry)
}

// Size returns the number of items in cache
func (cs *CacheService) Size() int {
	cs.mutex.RLock()
	defer cs.mutex.RUnlock()

	return len(cs.cache)
}

// CleanupExpiredNow removes expired entries immediately and returns how many
// were removed. The background goroutine does the same thing on a timer.
func (cs *CacheService) CleanupExpiredNow() int {
	cs.mutex.Lock()
	defer cs.mutex.Unlock()

	removed := 0
	for key, entry := range cs.cache {
		if entry.IsExpired() {
			delete(cs.cache, key)
			removed++
		}
	}
	return removed
}

// cleanupExpired removes expired entries from cache
func (cs *CacheService) cleanupExpired() {
	ticker := time.NewTicker(5 * time.Minute) // Cleanup every 5 minutes
	defer ticker.Stop()

	for range ticker.C {
		cs.CleanupExpiredNow()
	}
}

// cachedCalendar is the cache payload for one calendar fetch
type cachedCalendar struct {
	Records []models.IPORecord
	Meta    models.CalendarMeta
}

// CachedCalendarService wraps the calendar pipeline with caching. It also
// remembers the most recent record set so that detail requests can resolve a
// record ID without refetching the calendar.
type CachedCalendarService struct {
	calendar *CalendarService
	details  *DetailsService
	cache    *CacheService

	lastMutex   sync.RWMutex
	lastRecords map[string]models.IPORecord
}

// NewCachedCalendarService creates a caching wrapper around the calendar pipeline
func NewCachedCalendarService(calendar *CalendarService, details *DetailsService, cache *CacheService) *CachedCalendarService {
	return &CachedCalendarService{
		calendar:    calendar,
		details:     details,
		cache:       cache,
		lastRecords: make(map[string]models.IPORecord),
	}
}

// GetIPOCalendar returns the calendar, using cache when possible
func (ccs *CachedCalendarService) GetIPOCalendar(ctx context.Context, useLive bool) ([]models.IPORecord, models.CalendarMeta) {
	cacheKey := fmt.Sprintf("calendar:%t", useLive)

	if cached, found := ccs.cache.Get(cacheKey); found {
		if payload, ok := cached.(cachedCalendar); ok {
			return payload.Records, payload.Meta
		}
	}

	records, meta := ccs.calendar.FetchIPOCalendar(ctx, useLive)
	ccs.cache.Set(cacheKey, cachedCalendar{Records: records, Meta: meta})
	ccs.rememberRecords(records)

	return records, meta
}

// GetRecordByID resolves a record from the most recent calendar fetch. A
// cold cache triggers one live fetch before giving up.
func (ccs *CachedCalendarService) GetRecordByID(ctx context.Context, id string) (models.IPORecord, bool) {
	ccs.lastMutex.RLock()
	record, found := ccs.lastRecords[id]
	ccs.lastMutex.RUnlock()
	if found {
		return record, true
	}

	ccs.GetIPOCalendar(ctx, true)

	ccs.lastMutex.RLock()
	record, found = ccs.lastRecords[id]
	ccs.lastMutex.RUnlock()
	return record, found
}

// GetIPODetails resolves filing details for a record, using cache when possible
func (ccs *CachedCalendarService) GetIPODetails(ctx context.Context, record models.IPORecord) models.IPODetails {
	cacheKey := fmt.Sprintf("details:%s", record.ID)

	if cached, found := ccs.cache.Get(cacheKey); found {
		if details, ok := cached.(models.IPODetails); ok {
			return details
		}
	}

	details := ccs.details.ResolveDetails(ctx, record)

	// Details are heavier to compute than the calendar, so they live longer.
	ccs.cache.SetWithTTL(cacheKey, details, 30*time.Minute)

	return details
}

// InvalidateCalendarCache removes calendar cache entries so the next request refetches
func (ccs *CachedCalendarService) InvalidateCalendarCache() {
	ccs.cache.Delete("calendar:true")
	ccs.cache.Delete("calendar:false")
}

// GetCacheStats returns cache statistics
func (ccs *CachedCalendarService) GetCacheStats() map[string]interface{} {
	return map[string]interface{}{
		"size": ccs.cache.Size(),
		"type": "in-memory",
	}
}

func (ccs *CachedCalendarService) rememberRecords(records []models.IPORecord) {
	ccs.lastMutex.Lock()
	defer ccs.lastMutex.Unlock()

	for _, record := range records {
		if record.ID != "" {
			ccs.lastRecords[record.ID] = record
		}
	}
}
