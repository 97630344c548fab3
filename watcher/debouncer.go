package watcher

import (
	"sort"
	"sync"
	"time"
)

// Debouncer collects keys (project names) and emits them as one batch after
// a quiet period. A key added several times within the window is emitted once.
type Debouncer struct {
	interval time.Duration

	mu      sync.Mutex
	pending map[string]struct{}
	timer   *time.Timer
	stopped bool

	output chan []string
	done   chan struct{}
}

// NewDebouncer creates a debouncer with the specified quiet interval.
func NewDebouncer(interval time.Duration) *Debouncer {
	return &Debouncer{
		interval: interval,
		pending:  make(map[string]struct{}),
		output:   make(chan []string, 16),
		done:     make(chan struct{}),
	}
}

// Output returns the channel that receives batched keys, sorted.
func (d *Debouncer) Output() <-chan []string {
	return d.output
}

// Add marks key as changed and restarts the quiet period.
func (d *Debouncer) Add(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	d.pending[key] = struct{}{}

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.interval, d.flush)
}

// Stop drops pending keys. Add is a no-op afterwards.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
	d.pending = make(map[string]struct{})
	close(d.done)
}

func (d *Debouncer) flush() {
	d.mu.Lock()
	if len(d.pending) == 0 || d.stopped {
		d.mu.Unlock()
		return
	}
	batch := make([]string, 0, len(d.pending))
	for key := range d.pending {
		batch = append(batch, key)
	}
	d.pending = make(map[string]struct{})
	d.mu.Unlock()

	sort.Strings(batch)
	select {
	case d.output <- batch:
	case <-d.done:
	}
}
