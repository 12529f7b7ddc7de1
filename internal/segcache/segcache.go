// Package segcache keeps bounded per-segment dispatch state so the
// realtime pipeline can tell novel snapshots from repeats. A generic LRU
// would not carry the EST->ACTUAL upgrade or the one-way actual_saved
// flag, so the cache is a small list+map of its own.
package segcache

import (
	"container/list"

	"github.com/masphdtrain25/MasPhD/internal/darwin"
)

// Key identifies a segment snapshot stream: one tracked pair of one
// service on one planned departure.
type Key struct {
	RID        string
	First      string
	Second     string
	PlannedDep string // "" when the feed never carried a planned departure
}

// State is the remembered dispatch state for one key.
type State struct {
	LastDepTime *string
	LastKind    string // darwin.KindEstimate | KindActual | KindMissing

	// ActualSaved flips to true only after the confirmed-departure row
	// was handed to the writer, and never reverts.
	ActualSaved bool

	LastSeenOrder int
}

type entry struct {
	key   Key
	state State
}

// Cache is an insertion-ordered bounded map with LRU eviction. Not safe
// for concurrent use; the orchestrator owns it on the delivery thread.
type Cache struct {
	maxSize int
	ll      *list.List // front = least recently used
	items   map[Key]*list.Element
	tick    int
}

// New returns a cache bounded to maxSize entries.
func New(maxSize int) *Cache {
	if maxSize < 1 {
		maxSize = 1
	}
	return &Cache{
		maxSize: maxSize,
		ll:      list.New(),
		items:   make(map[Key]*list.Element, maxSize),
	}
}

// Get returns a copy of the state for k.
func (c *Cache) Get(k Key) (State, bool) {
	el, ok := c.items[k]
	if !ok {
		return State{}, false
	}
	return el.Value.(*entry).state, true
}

// Touch upserts the state for k, marks it most recently used, and evicts
// from the least-recent end until the bound holds. A has_actual snapshot
// upgrades the kind to actual regardless of the reported kind; ActualSaved
// is left alone (only MarkActualSaved sets it, after the write is
// enqueued).
func (c *Cache) Touch(k Key, depTime *string, kind string, hasActual bool) State {
	c.tick++

	el, ok := c.items[k]
	if !ok {
		el = c.ll.PushBack(&entry{key: k, state: State{LastKind: darwin.KindMissing}})
		c.items[k] = el
	} else {
		c.ll.MoveToBack(el)
	}

	st := &el.Value.(*entry).state
	st.LastDepTime = depTime
	st.LastKind = kind
	st.LastSeenOrder = c.tick
	if hasActual && st.LastKind != darwin.KindActual {
		st.LastKind = darwin.KindActual
	}

	for c.ll.Len() > c.maxSize {
		oldest := c.ll.Front()
		delete(c.items, oldest.Value.(*entry).key)
		c.ll.Remove(oldest)
	}

	return *st
}

// MarkActualSaved records that the confirmed-departure row for k reached
// the writer queue. No-op for evicted keys.
func (c *Cache) MarkActualSaved(k Key) {
	if el, ok := c.items[k]; ok {
		el.Value.(*entry).state.ActualSaved = true
	}
}

// Len returns the number of cached keys.
func (c *Cache) Len() int {
	return c.ll.Len()
}
