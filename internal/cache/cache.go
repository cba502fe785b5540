package cache

import "time"

// Cache defines a generic read-through cache interface
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, data T)
	Delete(key string)
	Size() int
}

// Cleaner interface for caches that support expired-entry cleanup
type Cleaner interface {
	CleanExpired() int
}

// Sweeper periodically removes expired entries from registered caches
type Sweeper struct {
	caches []Cleaner
	stop   chan struct{}
	done   chan struct{}
}

// NewSweeper creates a new cache sweeper
func NewSweeper() *Sweeper {
	return &Sweeper{
		caches: make([]Cleaner, 0),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Register adds a cache to the sweeper. Not safe to call after Start.
func (s *Sweeper) Register(cache Cleaner) {
	s.caches = append(s.caches, cache)
}

// Start begins periodic cleanup of all registered caches
func (s *Sweeper) Start(interval time.Duration) {
	go s.run(interval)
}

func (s *Sweeper) run(interval time.Duration) {
	defer close(s.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			for _, cache := range s.caches {
				cache.CleanExpired()
			}
		case <-s.stop:
			return
		}
	}
}

// Stop gracefully stops the cleanup routine
func (s *Sweeper) Stop() {
	close(s.stop)
	<-s.done
}
