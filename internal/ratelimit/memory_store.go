package ratelimit

import (
	"sync"
	"time"
)

// clientRecord holds admitted request instants for one client, oldest first.
type clientRecord struct {
	hourly []time.Time
	daily  []time.Time
}

// purge drops instants that have left their window. Only instants strictly
// newer than now-window survive.
func (r *clientRecord) purge(now time.Time) {
	r.hourly = trimBefore(r.hourly, now.Add(-HourlyWindow))
	r.daily = trimBefore(r.daily, now.Add(-DailyWindow))
}

func (r *clientRecord) empty() bool {
	return len(r.hourly) == 0 && len(r.daily) == 0
}

func trimBefore(ts []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(ts) && !ts[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return ts
	}
	if i == len(ts) {
		return nil
	}
	return ts[i:]
}

// memoryStore keeps client records in a single map guarded by one mutex.
// Each admission is a short read-modify-write so a coarse lock keeps the
// hourly/daily pair consistent without per-record locking.
type memoryStore struct {
	mu      sync.Mutex
	records map[string]*clientRecord
}

func newMemoryStore() *memoryStore {
	return &memoryStore{records: make(map[string]*clientRecord)}
}

func (s *memoryStore) getOrCreateLocked(clientID string) *clientRecord {
	rec, ok := s.records[clientID]
	if !ok {
		rec = &clientRecord{}
		s.records[clientID] = rec
	}
	return rec
}

func (s *memoryStore) sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, rec := range s.records {
		rec.purge(now)
		if rec.empty() {
			delete(s.records, id)
			removed++
		}
	}
	return removed
}
