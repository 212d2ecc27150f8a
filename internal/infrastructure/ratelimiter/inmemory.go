package ratelimiter

import (
	"sync"
	"time"
)

const cleanupInterval = time.Minute

type inMemoryEntry struct {
	value     int
	expiresAt time.Time
}

// InMemory is a process-local GetterSetter. Close stops the sweeper.
type InMemory struct {
	mu      sync.RWMutex
	entries map[string]inMemoryEntry
	stop    chan struct{}
	once    sync.Once
	done    chan struct{}
}

func NewInMemory() *InMemory {
	im := &InMemory{
		entries: make(map[string]inMemoryEntry),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go im.sweep()
	return im
}

func (i *InMemory) Get(key string) (int, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	entry, ok := i.entries[key]
	if !ok || entry.expired(time.Now()) {
		return 0, ErrCacheMiss
	}
	return entry.value, nil
}

func (i *InMemory) Set(key string, value int) error {
	return i.SetWithExpiration(key, value, 0)
}

func (i *InMemory) SetWithExpiration(key string, value int, expiration time.Duration) error {
	entry := inMemoryEntry{value: value}
	if expiration > 0 {
		entry.expiresAt = time.Now().Add(expiration)
	}

	i.mu.Lock()
	i.entries[key] = entry
	i.mu.Unlock()
	return nil
}

func (i *InMemory) Close() error {
	i.once.Do(func() { close(i.stop) })
	<-i.done
	return nil
}

func (i *InMemory) sweep() {
	defer close(i.done)

	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			i.removeExpired(now)
		case <-i.stop:
			return
		}
	}
}

func (i *InMemory) removeExpired(now time.Time) {
	i.mu.Lock()
	defer i.mu.Unlock()

	for key, entry := range i.entries {
		if entry.expired(now) {
			delete(i.entries, key)
		}
	}
}

func (e inMemoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}
