// Package pool provides a fixed-capacity reusable-object pool with LRU reuse
// ordering, deferred deep reset, hibernation of idle slots, and batched
// statistics. It exists to keep per-frame allocation off the render path.
package pool

import (
	"log/slog"
	"time"
)

// hibernateMinGap rate-limits hibernation scans unless forced.
const hibernateMinGap = 5 * time.Second

// Item is a pooled slot. The pool owns every Item it hands out; callers must
// Release and must not retain the pointer afterwards.
type Item[T any] struct {
	Value T

	index      int
	inUse      bool
	lastAccess int64 // monotonic nanos
	prev, next *Item[T]
}

// InUse reports whether the item is currently checked out.
func (it *Item[T]) InUse() bool { return it.inUse }

// Index returns the item's slot index within its pool.
func (it *Item[T]) Index() int { return it.index }

// Stats is a snapshot of pool counters.
type Stats struct {
	Created  int64
	Reused   int64
	Active   int
	Capacity int

	UtilizationRate float64 // Active / Capacity
	ReuseRatio      float64 // Reused / (Created + Reused)
}

// Pool manages reusable objects of type T. The zero value is not usable;
// construct with New. Not safe for concurrent use; each animated surface
// owns its pools.
type Pool[T any] struct {
	items   []*Item[T]
	factory func() T
	reset   func(*T)
	maxCap  int

	// Free list, coldest (least recently used) first. Intrusive links live
	// on the items so promote and evict are O(1).
	freeHead *Item[T]
	freeTail *Item[T]

	active  int
	created int64
	reused  int64

	pendingOps    int
	flushOps      int
	onFlush       func(Stats)
	lastHibernate int64

	now func() int64
}

// New creates a pool with capacity pre-allocated items. reset is the deep
// reset applied when a slot is reused or hibernated: it must zero numeric
// fields, clear fixed buffers in place, and truncate variable collections so
// no state leaks across reuse.
func New[T any](capacity, maxCapacity int, factory func() T, reset func(*T)) *Pool[T] {
	if capacity < 1 {
		capacity = 1
	}
	if maxCapacity < capacity {
		maxCapacity = capacity
	}
	p := &Pool[T]{
		items:    make([]*Item[T], 0, maxCapacity),
		factory:  factory,
		reset:    reset,
		maxCap:   maxCapacity,
		flushOps: 256,
		now:      func() int64 { return time.Now().UnixNano() },
	}
	for i := 0; i < capacity; i++ {
		p.allocSlot(false)
	}
	return p
}

// SetStatsSink installs a callback that receives coalesced statistics after
// every flushOps get/release operations. Flush is batched so downstream
// reporting never sees per-object traffic.
func (p *Pool[T]) SetStatsSink(flushOps int, fn func(Stats)) {
	if flushOps > 0 {
		p.flushOps = flushOps
	}
	p.onFlush = fn
}

// Capacity returns the number of allocated slots.
func (p *Pool[T]) Capacity() int { return len(p.items) }

// ActiveCount returns the number of checked-out items.
func (p *Pool[T]) ActiveCount() int { return p.active }

// Get returns an item marked in-use. It reuses the least-recently-used free
// slot first, allocates while below max capacity, and as a last resort, when
// every slot is simultaneously active, force-expands by one slot with a
// warning rather than handing out an in-use object.
func (p *Pool[T]) Get() *Item[T] {
	if it := p.popColdest(); it != nil {
		// Deep reset is deferred from release time to reuse time so the
		// release path stays cheap.
		p.reset(&it.Value)
		it.inUse = true
		it.lastAccess = p.now()
		p.active++
		p.reused++
		p.recordOp()
		return it
	}

	if len(p.items) >= p.maxCap {
		slog.Warn("pool exhausted, expanding past max capacity",
			"capacity", len(p.items), "max_capacity", p.maxCap)
	}
	it := p.allocSlot(true)
	p.active++
	p.recordOp()
	return it
}

// Release marks an item free without resetting it. Releasing nil, a foreign
// item, or an already-free item is a logged no-op: pool misuse must degrade,
// not crash, the frame loop.
func (p *Pool[T]) Release(it *Item[T]) {
	if it == nil {
		slog.Warn("pool release of nil item")
		return
	}
	if it.index < 0 || it.index >= len(p.items) || p.items[it.index] != it {
		slog.Warn("pool release of foreign item", "index", it.index)
		return
	}
	if !it.inUse {
		slog.Warn("pool double release", "index", it.index)
		return
	}
	it.inUse = false
	it.lastAccess = p.now()
	p.pushWarmest(it)
	p.active--
	p.recordOp()
}

// Resize grows the pool by allocating new slots or shrinks it by evicting
// free least-recently-used slots. Active items are never evicted; a target
// below the active count is clamped to it.
func (p *Pool[T]) Resize(n int) {
	if n < p.active {
		n = p.active
	}
	for len(p.items) < n {
		p.allocSlot(false)
	}
	if n > p.maxCap {
		p.maxCap = n
	}
	for len(p.items) > n {
		it := p.popColdest()
		if it == nil {
			// Only active items remain; clamp already prevents this.
			break
		}
		p.removeSlot(it)
	}
	p.recordOp()
}

// Hibernate deep-clears free items idle longer than threshold, dropping any
// heavy nested allocations they hold. The next Get on such a slot pays a
// reset it would have paid anyway. Scans are rate-limited to one per five
// seconds unless force is set. Returns the number of slots cleared.
func (p *Pool[T]) Hibernate(threshold time.Duration, force bool) int {
	now := p.now()
	if !force && p.lastHibernate != 0 && now-p.lastHibernate < int64(hibernateMinGap) {
		return 0
	}
	p.lastHibernate = now

	cleared := 0
	for it := p.freeHead; it != nil; it = it.next {
		if now-it.lastAccess > int64(threshold) {
			p.reset(&it.Value)
			cleared++
		}
	}
	if cleared > 0 {
		slog.Debug("pool hibernated idle slots", "cleared", cleared, "capacity", len(p.items))
	}
	return cleared
}

// Stats returns a snapshot of the pool counters.
func (p *Pool[T]) Stats() Stats {
	s := Stats{
		Created:  p.created,
		Reused:   p.reused,
		Active:   p.active,
		Capacity: len(p.items),
	}
	if s.Capacity > 0 {
		s.UtilizationRate = float64(s.Active) / float64(s.Capacity)
	}
	if total := s.Created + s.Reused; total > 0 {
		s.ReuseRatio = float64(s.Reused) / float64(total)
	}
	return s
}

// FlushStats pushes pending statistics to the sink regardless of the
// operation-count threshold. Call once per frame.
func (p *Pool[T]) FlushStats() {
	if p.pendingOps == 0 || p.onFlush == nil {
		return
	}
	p.pendingOps = 0
	p.onFlush(p.Stats())
}

func (p *Pool[T]) recordOp() {
	p.pendingOps++
	if p.onFlush != nil && p.pendingOps >= p.flushOps {
		p.pendingOps = 0
		p.onFlush(p.Stats())
	}
}

// allocSlot appends a freshly constructed item. When inUse is false the slot
// joins the warm end of the free list.
func (p *Pool[T]) allocSlot(inUse bool) *Item[T] {
	it := &Item[T]{
		Value:      p.factory(),
		index:      len(p.items),
		inUse:      inUse,
		lastAccess: p.now(),
	}
	p.items = append(p.items, it)
	p.created++
	if !inUse {
		p.pushWarmest(it)
	}
	return it
}

// removeSlot evicts a detached free item, compacting the slice by moving the
// last slot into the hole.
func (p *Pool[T]) removeSlot(it *Item[T]) {
	last := len(p.items) - 1
	moved := p.items[last]
	p.items[it.index] = moved
	moved.index = it.index
	p.items = p.items[:last]
	it.index = -1
}

// popColdest detaches and returns the least-recently-used free item, or nil.
func (p *Pool[T]) popColdest() *Item[T] {
	it := p.freeHead
	if it == nil {
		return nil
	}
	p.freeHead = it.next
	if p.freeHead != nil {
		p.freeHead.prev = nil
	} else {
		p.freeTail = nil
	}
	it.prev, it.next = nil, nil
	return it
}

// pushWarmest appends an item at the most-recently-used end of the free list.
func (p *Pool[T]) pushWarmest(it *Item[T]) {
	it.prev = p.freeTail
	it.next = nil
	if p.freeTail != nil {
		p.freeTail.next = it
	} else {
		p.freeHead = it
	}
	p.freeTail = it
}
