package pool

import (
	"testing"
	"time"
)

// payload is a representative pooled record with nested allocations.
type payload struct {
	X, Y   float32
	Buf    [4]float32
	Points [][2]float32
	Child  *payload
}

func newPayload() payload {
	return payload{Points: make([][2]float32, 0, 8)}
}

func resetPayload(p *payload) {
	p.X, p.Y = 0, 0
	for i := range p.Buf {
		p.Buf[i] = 0
	}
	p.Points = p.Points[:0]
	p.Child = nil
}

func newTestPool(capacity, maxCapacity int) *Pool[payload] {
	return New(capacity, maxCapacity, newPayload, resetPayload)
}

func TestPool_ActiveNeverExceedsCapacity(t *testing.T) {
	p := newTestPool(4, 8)

	var items []*Item[payload]
	for i := 0; i < 8; i++ {
		it := p.Get()
		if !it.InUse() {
			t.Fatalf("item %d not marked in use", i)
		}
		items = append(items, it)
	}

	if p.ActiveCount() > p.Capacity() {
		t.Errorf("active %d exceeds capacity %d", p.ActiveCount(), p.Capacity())
	}

	for _, it := range items {
		p.Release(it)
		if p.ActiveCount() > p.Capacity() {
			t.Errorf("active %d exceeds capacity %d after release", p.ActiveCount(), p.Capacity())
		}
	}
	if p.ActiveCount() != 0 {
		t.Errorf("active = %d after releasing everything, want 0", p.ActiveCount())
	}
}

func TestPool_ReuseResetsPayload(t *testing.T) {
	p := newTestPool(2, 2)

	it := p.Get()
	it.Value.X = 42
	it.Value.Buf[1] = 7
	it.Value.Points = append(it.Value.Points, [2]float32{1, 2})
	it.Value.Child = &payload{}
	p.Release(it)

	// Cycle gets until the released slot comes back around.
	var reused *Item[payload]
	for i := 0; i < 2; i++ {
		got := p.Get()
		if got == it {
			reused = got
		}
	}
	if reused == nil {
		t.Fatal("released slot was never reused")
	}

	v := &reused.Value
	if v.X != 0 || v.Y != 0 {
		t.Errorf("numeric fields leaked: X=%v Y=%v", v.X, v.Y)
	}
	if v.Buf[1] != 0 {
		t.Errorf("fixed buffer leaked: %v", v.Buf)
	}
	if len(v.Points) != 0 {
		t.Errorf("collection not truncated: len=%d", len(v.Points))
	}
	if v.Child != nil {
		t.Error("nested object not cleared")
	}
}

func TestPool_LRUReuseOrder(t *testing.T) {
	p := newTestPool(3, 3)
	now := int64(0)
	p.now = func() int64 { now++; return now }

	a, b, c := p.Get(), p.Get(), p.Get()
	// Release order b, c, a: b is coldest.
	p.Release(b)
	p.Release(c)
	p.Release(a)

	if got := p.Get(); got != b {
		t.Errorf("first reuse = slot %d, want coldest slot %d", got.Index(), b.Index())
	}
	if got := p.Get(); got != c {
		t.Errorf("second reuse = slot %d, want slot %d", got.Index(), c.Index())
	}
}

func TestPool_ExhaustedPoolExpands(t *testing.T) {
	p := newTestPool(10, 10)

	if p.Stats().Created != 10 {
		t.Fatalf("created = %d after pre-allocation, want 10", p.Stats().Created)
	}

	for i := 0; i < 10; i++ {
		p.Get()
	}

	// Every slot is active: the documented policy is to force-expand by one
	// rather than hand out an in-use object or fail.
	it := p.Get()
	if it == nil {
		t.Fatal("Get returned nil on exhausted pool")
	}
	if !it.InUse() {
		t.Error("expanded item not marked in use")
	}
	s := p.Stats()
	if s.Created != 11 {
		t.Errorf("created = %d, want 11", s.Created)
	}
	if s.Capacity != 11 || s.Active != 11 {
		t.Errorf("capacity=%d active=%d, want 11/11", s.Capacity, s.Active)
	}
}

func TestPool_DoubleReleaseIsNoOp(t *testing.T) {
	p := newTestPool(2, 2)
	it := p.Get()
	p.Release(it)
	p.Release(it) // must not corrupt free list or counters
	if p.ActiveCount() != 0 {
		t.Errorf("active = %d, want 0", p.ActiveCount())
	}

	// Foreign item release.
	foreign := &Item[payload]{index: 0}
	p.Release(foreign)
	if p.ActiveCount() != 0 {
		t.Errorf("active = %d after foreign release, want 0", p.ActiveCount())
	}
}

func TestPool_ResizeGrowAndShrink(t *testing.T) {
	p := newTestPool(4, 8)

	p.Resize(6)
	if p.Capacity() != 6 {
		t.Errorf("capacity = %d after grow, want 6", p.Capacity())
	}
	if p.Stats().Created != 6 {
		t.Errorf("created = %d after grow, want 6", p.Stats().Created)
	}

	p.Resize(2)
	if p.Capacity() != 2 {
		t.Errorf("capacity = %d after shrink, want 2", p.Capacity())
	}
}

func TestPool_ResizeClampsToActive(t *testing.T) {
	p := newTestPool(6, 6)

	var items []*Item[payload]
	for i := 0; i < 4; i++ {
		items = append(items, p.Get())
	}

	p.Resize(1)

	if p.Capacity() != 4 {
		t.Errorf("capacity = %d, want active count 4", p.Capacity())
	}
	for _, it := range items {
		if !it.InUse() {
			t.Error("active item evicted by shrink")
		}
		if it.Index() < 0 || p.items[it.Index()] != it {
			t.Error("active item slot corrupted by shrink")
		}
	}
}

func TestPool_HibernateClearsIdleSlots(t *testing.T) {
	p := newTestPool(3, 3)
	now := int64(0)
	p.now = func() int64 { return now }

	it := p.Get()
	it.Value.Points = append(it.Value.Points, [2]float32{3, 4})
	p.Release(it)

	// Not yet idle long enough.
	now = int64(time.Second)
	if n := p.Hibernate(10*time.Second, true); n != 0 {
		t.Errorf("hibernated %d slots before threshold, want 0", n)
	}

	now = int64(20 * time.Second)
	if n := p.Hibernate(10*time.Second, true); n != 1 {
		t.Errorf("hibernated %d slots, want the 1 released at t=0", n)
	}
	if len(it.Value.Points) != 0 {
		t.Error("hibernation did not clear nested allocation")
	}
}

func TestPool_HibernateRateLimited(t *testing.T) {
	p := newTestPool(2, 2)
	now := int64(100 * time.Second)
	p.now = func() int64 { return now }

	// Touch both slots so their last access is under the fake clock.
	a, b := p.Get(), p.Get()
	p.Release(a)
	p.Release(b)

	p.Hibernate(time.Millisecond, true)
	now += int64(time.Second)
	if n := p.Hibernate(time.Millisecond, false); n != 0 {
		t.Errorf("unforced hibernate ran %d clears within the rate-limit window", n)
	}
	now += int64(10 * time.Second)
	if n := p.Hibernate(time.Millisecond, false); n == 0 {
		t.Error("unforced hibernate never ran after the rate-limit window")
	}
}

func TestPool_StatsBatching(t *testing.T) {
	p := newTestPool(4, 4)

	var flushes []Stats
	p.SetStatsSink(8, func(s Stats) { flushes = append(flushes, s) })

	// 7 ops: below the threshold, nothing flushed yet.
	var items []*Item[payload]
	for i := 0; i < 4; i++ {
		items = append(items, p.Get())
	}
	for i := 0; i < 3; i++ {
		p.Release(items[i])
	}
	if len(flushes) != 0 {
		t.Fatalf("flushed %d times below threshold, want 0", len(flushes))
	}

	// 8th op crosses the threshold.
	p.Release(items[3])
	if len(flushes) != 1 {
		t.Fatalf("flushed %d times at threshold, want 1", len(flushes))
	}

	s := flushes[0]
	if s.Capacity != 4 || s.Active != 0 {
		t.Errorf("snapshot capacity=%d active=%d, want 4/0", s.Capacity, s.Active)
	}
	if s.UtilizationRate != 0 {
		t.Errorf("utilization = %v, want 0", s.UtilizationRate)
	}

	// Explicit flush with no pending ops is a no-op.
	p.FlushStats()
	if len(flushes) != 1 {
		t.Errorf("flush without pending ops emitted a snapshot")
	}
}

func TestPool_ReuseRatio(t *testing.T) {
	p := newTestPool(2, 2)

	a := p.Get()
	p.Release(a)
	p.Get()
	p.Get()

	s := p.Stats()
	// 2 created at pre-allocation, 3 reuses (every Get hit a free slot).
	if s.Reused != 3 {
		t.Errorf("reused = %d, want 3", s.Reused)
	}
	want := 3.0 / 5.0
	if s.ReuseRatio != want {
		t.Errorf("reuse ratio = %v, want %v", s.ReuseRatio, want)
	}
}
