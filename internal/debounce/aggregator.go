// Package debounce coalesces bursts of keyed events into a single flush per
// key once the key has been quiet for the debounce period.
package debounce

import (
	"sync"
	"time"
)

type Options[T any] struct {
	Debounce time.Duration
	OnFlush  func(key string, items []T)
}

type Aggregator[T any] struct {
	mu       sync.Mutex
	debounce time.Duration
	onFlush  func(string, []T)
	pending  map[string]*pendingGroup[T]
	stopped  bool
	wg       sync.WaitGroup
}

type pendingGroup[T any] struct {
	items []T
	timer *time.Timer
}

func New[T any](opts Options[T]) *Aggregator[T] {
	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = 300 * time.Millisecond
	}

	return &Aggregator[T]{
		debounce: debounce,
		onFlush:  opts.OnFlush,
		pending:  make(map[string]*pendingGroup[T]),
	}
}

// Add records item under key and restarts the key's quiet timer.
// Items added after Stop are dropped.
func (a *Aggregator[T]) Add(key string, item T) {
	if key == "" {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.stopped {
		return
	}

	pg, ok := a.pending[key]
	if !ok {
		pg = &pendingGroup[T]{}
		a.pending[key] = pg
	}
	pg.items = append(pg.items, item)

	if pg.timer != nil && pg.timer.Stop() {
		a.wg.Done()
	}
	a.wg.Add(1)
	pg.timer = time.AfterFunc(a.debounce, func() {
		defer a.wg.Done()
		a.flush(key)
	})
}

// Pending returns the number of keys waiting to flush.
func (a *Aggregator[T]) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pending)
}

// Stop cancels every pending flush and waits for running flushes to return.
func (a *Aggregator[T]) Stop() {
	a.mu.Lock()
	a.stopped = true
	for key, pg := range a.pending {
		if pg.timer != nil && pg.timer.Stop() {
			a.wg.Done()
		}
		delete(a.pending, key)
	}
	a.mu.Unlock()

	a.wg.Wait()
}

func (a *Aggregator[T]) flush(key string) {
	a.mu.Lock()
	pg, ok := a.pending[key]
	if !ok {
		a.mu.Unlock()
		return
	}
	delete(a.pending, key)
	items := pg.items
	onFlush := a.onFlush
	a.mu.Unlock()

	if onFlush != nil {
		onFlush(key, items)
	}
}
