// Package dedupe coalesces recompute requests that are already pending.
//
// A request is identified by its (team, from-round) key. The key is recorded
// when the request is accepted and released once the job has run, so a burst of
// identical requests produces a single recomputation.
package dedupe

import (
	"container/list"
	"context"
	"strconv"
	"sync"
	"sync/atomic"
)

const defaultMaxSize = 50000

// Deduper tracks pending keys.
type Deduper interface {
	// SeenAndRecord reports whether key is already pending and records it if not.
	SeenAndRecord(ctx context.Context, key string) bool

	// Unrecord releases key so a later request is accepted again.
	Unrecord(ctx context.Context, key string)

	// Reset releases every key.
	Reset(ctx context.Context)

	Size() int64
}

// Key identifies a recompute request for a team starting at a round.
func Key(teamID int64, fromRound int) string {
	return strconv.FormatInt(teamID, 10) + ":" + strconv.Itoa(fromRound)
}

// inMemoryDeduper keeps keys in insertion order. In bounded mode the oldest key
// is dropped when the limit is reached; a dropped key only costs one redundant
// recomputation because replays are idempotent.
type inMemoryDeduper struct {
	mu      sync.Mutex
	seen    map[string]*list.Element
	order   *list.List
	maxSize int
	size    atomic.Int64
}

// NewInMemoryDeduper creates an in-memory deduper.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{
		seen:    make(map[string]*list.Element),
		order:   list.New(),
		maxSize: defaultMaxSize,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *inMemoryDeduper) SeenAndRecord(_ context.Context, key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[key]; ok {
		return true
	}
	if d.maxSize > 0 && len(d.seen) >= d.maxSize {
		d.evictOldest()
	}
	d.seen[key] = d.order.PushBack(key)
	d.size.Add(1)
	return false
}

func (d *inMemoryDeduper) Unrecord(_ context.Context, key string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if e, ok := d.seen[key]; ok {
		d.order.Remove(e)
		delete(d.seen, key)
		d.size.Add(-1)
	}
}

func (d *inMemoryDeduper) Reset(_ context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()

	clear(d.seen)
	d.order.Init()
	d.size.Store(0)
}

// evictOldest must be called with d.mu held.
func (d *inMemoryDeduper) evictOldest() {
	e := d.order.Front()
	if e == nil {
		return
	}
	d.order.Remove(e)
	delete(d.seen, e.Value.(string)) //nolint:forcetypeassert // list only holds keys
	d.size.Add(-1)
}

func (d *inMemoryDeduper) Size() int64 {
	return d.size.Load()
}
