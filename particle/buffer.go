// Package particle holds the flat particle buffer and the simulation step
// that advances it. The buffer is a single contiguous []float32 so ownership
// can move through a channel without copying and without per-frame allocation.
package particle

// Field offsets within one particle record.
const (
	offX      = 0
	offY      = 1
	offZ      = 2
	offPrevSX = 3 // previous projected screen x
	offPrevSY = 4 // previous projected screen y
	offActive = 5
)

// Stride is the number of float32 fields per particle.
const Stride = 6

// PrevUnset marks a particle with no previous screen position yet, such as a
// freshly recycled one. The projector skips the trail for these.
const PrevUnset float32 = -1e9

// Buffer is a flat field of particles. Exactly one goroutine writes it at a
// time; the transport protocol in scene enforces that by moving the backing
// slice and clearing the sender's reference.
type Buffer struct {
	data []float32
}

// NewBuffer allocates a buffer for count inactive particles.
func NewBuffer(count int) *Buffer {
	return &Buffer{data: make([]float32, count*Stride)}
}

// FromData wraps an owned backing slice received from a transfer. Slices
// whose length is not a whole number of records are truncated.
func FromData(data []float32) *Buffer {
	return &Buffer{data: data[:len(data)/Stride*Stride]}
}

// Data surrenders the backing slice for a transfer. The caller owns the
// returned slice; the holder of a Buffer that called Data must not touch it
// again until a slice comes back.
func (b *Buffer) Data() []float32 { return b.data }

// Clone returns an independent copy of the backing slice, for seeding a
// second holder with identical state.
func (b *Buffer) Clone() []float32 {
	out := make([]float32, len(b.data))
	copy(out, b.data)
	return out
}

// Count returns the number of particle records.
func (b *Buffer) Count() int { return len(b.data) / Stride }

func (b *Buffer) X(i int) float32 { return b.data[i*Stride+offX] }
func (b *Buffer) Y(i int) float32 { return b.data[i*Stride+offY] }
func (b *Buffer) Z(i int) float32 { return b.data[i*Stride+offZ] }

// PrevScreen returns the previous projected position for particle i.
func (b *Buffer) PrevScreen(i int) (x, y float32) {
	return b.data[i*Stride+offPrevSX], b.data[i*Stride+offPrevSY]
}

// HasPrevScreen reports whether particle i has a usable previous projection.
func (b *Buffer) HasPrevScreen(i int) bool {
	return b.data[i*Stride+offPrevSX] != PrevUnset
}

func (b *Buffer) SetPos(i int, x, y, z float32) {
	o := i * Stride
	b.data[o+offX] = x
	b.data[o+offY] = y
	b.data[o+offZ] = z
}

func (b *Buffer) SetZ(i int, z float32) { b.data[i*Stride+offZ] = z }

func (b *Buffer) SetPrevScreen(i int, x, y float32) {
	o := i * Stride
	b.data[o+offPrevSX] = x
	b.data[o+offPrevSY] = y
}

func (b *Buffer) ClearPrevScreen(i int) {
	b.SetPrevScreen(i, PrevUnset, PrevUnset)
}

func (b *Buffer) Active(i int) bool { return b.data[i*Stride+offActive] != 0 }

func (b *Buffer) SetActive(i int, active bool) {
	v := float32(0)
	if active {
		v = 1
	}
	b.data[i*Stride+offActive] = v
}

// Resize grows or shrinks the buffer to count records. Existing records are
// kept; init is called for each newly added index.
func (b *Buffer) Resize(count int, init func(i int)) {
	old := b.Count()
	if count == old {
		return
	}
	if count < old {
		b.data = b.data[:count*Stride]
		return
	}
	next := make([]float32, count*Stride)
	copy(next, b.data)
	b.data = next
	if init != nil {
		for i := old; i < count; i++ {
			init(i)
		}
	}
}

// ExtractDiff appends the records at indices to dst as a compact sub-buffer
// and returns it. dst is reused across frames; pass the previous slice
// truncated to zero length.
func (b *Buffer) ExtractDiff(indices []int32, dst []float32) []float32 {
	for _, idx := range indices {
		o := int(idx) * Stride
		dst = append(dst, b.data[o:o+Stride]...)
	}
	return dst
}

// ApplyDiff merges a compact sub-buffer produced by ExtractDiff back into
// this buffer. Indices out of range and truncated records are skipped.
func (b *Buffer) ApplyDiff(indices []int32, sub []float32) {
	n := b.Count()
	for k, idx := range indices {
		o := k * Stride
		if int(idx) < 0 || int(idx) >= n || o+Stride > len(sub) {
			continue
		}
		copy(b.data[int(idx)*Stride:int(idx)*Stride+Stride], sub[o:o+Stride])
	}
}

// Sanitize clamps records that arrived malformed across the transport
// boundary: NaN or non-positive depth resets the record to the far plane,
// out-of-range depth is clamped. Returns the number of repaired records.
func (b *Buffer) Sanitize(width, height, maxDepth float32) int {
	fixed := 0
	for i := 0; i < b.Count(); i++ {
		o := i * Stride
		x, y, z := b.data[o+offX], b.data[o+offY], b.data[o+offZ]
		bad := isNaN32(x) || isNaN32(y) || isNaN32(z) || z <= 0
		if bad {
			b.data[o+offX] = clamp32(x, 0, width)
			b.data[o+offY] = clamp32(y, 0, height)
			b.data[o+offZ] = maxDepth
			b.ClearPrevScreen(i)
			fixed++
			continue
		}
		if z > maxDepth {
			b.data[o+offZ] = maxDepth
			fixed++
		}
	}
	return fixed
}

func isNaN32(v float32) bool { return v != v }

func clamp32(v, lo, hi float32) float32 {
	if isNaN32(v) || v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// MaxChanged returns how many records differ between two equally sized
// buffers, used by tests and the transfer-mode decision diagnostics.
func MaxChanged(a, c *Buffer) int {
	n := a.Count()
	if c.Count() < n {
		n = c.Count()
	}
	changed := 0
	for i := 0; i < n; i++ {
		oa := i * Stride
		same := true
		for f := 0; f < Stride; f++ {
			av, cv := a.data[oa+f], c.data[oa+f]
			if av != cv && !(isNaN32(av) && isNaN32(cv)) {
				same = false
				break
			}
		}
		if !same {
			changed++
		}
	}
	return changed
}
