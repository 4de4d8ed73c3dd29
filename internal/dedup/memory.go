package dedup

import (
	"context"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryDeduplicator keeps last taps in process memory. Separate instances do not see each
// other's taps.
type MemoryDeduplicator struct {
	mu    sync.Mutex
	cache *gocache.Cache
	now   func() time.Time
}

// NewMemoryDeduplicator builds a deduplicator whose cache janitor runs every cleanupInterval.
func NewMemoryDeduplicator(cleanupInterval time.Duration) *MemoryDeduplicator {
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}
	return &MemoryDeduplicator{
		cache: gocache.New(gocache.NoExpiration, cleanupInterval),
		now:   time.Now,
	}
}

type tapRecord struct {
	at        time.Time
	expiresAt time.Time
}

func (d *MemoryDeduplicator) IsDuplicateAndRecordTap(_ context.Context, terminalID, cardUID string, cooldown time.Duration) (Result, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	k := key(terminalID, cardUID)
	var previous *time.Time
	if v, ok := d.cache.Get(k); ok {
		rec := v.(tapRecord)
		if !now.After(rec.expiresAt) {
			previous = &rec.at
		}
	}

	ttl := cooldown + ExpiryMargin
	d.cache.Set(k, tapRecord{at: now, expiresAt: now.Add(ttl)}, ttl)
	return evaluate(previous, now, cooldown), nil
}
