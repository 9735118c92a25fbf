package dedup

import (
	"context"
	"sync"
	"time"

	"github.com/user/open-notifier/internal/domain"
)

type memoryEntry struct {
	maxCount   int
	observedAt time.Time
	expiresAt  time.Time
}

// MemoryIndex implements domain.RecencyIndex with an in-memory map guarded by
// a RWMutex. Entries expire after the retention window and are purged
// opportunistically on every call, so memory stays bounded by event volume
// within the window. A process restart clears the index; RedisIndex covers
// deployments that need the window to survive restarts.
type MemoryIndex struct {
	mu        sync.RWMutex
	entries   map[string]memoryEntry
	retention time.Duration
	now       func() time.Time
}

// NewMemoryIndex creates an in-memory recency index with the given retention.
func NewMemoryIndex(retention time.Duration) *MemoryIndex {
	return &MemoryIndex{
		entries:   make(map[string]memoryEntry),
		retention: retention,
		now:       time.Now,
	}
}

// IsKnown reports whether an unexpired mark exists for emailID with an opens
// count greater than or equal to opensCount.
func (i *MemoryIndex) IsKnown(_ context.Context, emailID string, opensCount int) (bool, error) {
	i.purgeExpired()

	i.mu.RLock()
	defer i.mu.RUnlock()

	entry, ok := i.entries[emailID]
	if !ok || i.now().After(entry.expiresAt) {
		return false, nil
	}
	return opensCount <= entry.maxCount, nil
}

// Mark records the pair with expiry observedAt + retention. Marking a lower
// count than already recorded keeps the higher count and only refreshes the
// expiry.
func (i *MemoryIndex) Mark(_ context.Context, emailID string, opensCount int, observedAt time.Time) error {
	i.purgeExpired()

	i.mu.Lock()
	defer i.mu.Unlock()

	entry, ok := i.entries[emailID]
	if ok && entry.maxCount > opensCount {
		opensCount = entry.maxCount
	}
	i.entries[emailID] = memoryEntry{
		maxCount:   opensCount,
		observedAt: observedAt,
		expiresAt:  observedAt.Add(i.retention),
	}
	return nil
}

// Stats returns the current size and oldest observation for operators.
func (i *MemoryIndex) Stats(_ context.Context) (domain.IndexStats, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	stats := domain.IndexStats{
		Size:      len(i.entries),
		Retention: i.retention,
	}
	for _, entry := range i.entries {
		if stats.OldestEntry.IsZero() || entry.observedAt.Before(stats.OldestEntry) {
			stats.OldestEntry = entry.observedAt
		}
	}
	return stats, nil
}

// Clear removes every entry.
func (i *MemoryIndex) Clear(_ context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.entries = make(map[string]memoryEntry)
	return nil
}

// purgeExpired drops entries whose expiry has passed. Cost is proportional to
// the number of expired entries plus a scan, which is acceptable at the low
// event volumes this service sees.
func (i *MemoryIndex) purgeExpired() {
	now := i.now()

	i.mu.Lock()
	defer i.mu.Unlock()
	for id, entry := range i.entries {
		if now.After(entry.expiresAt) {
			delete(i.entries, id)
		}
	}
}
