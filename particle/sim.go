package particle

import "math/rand"

// Params configures a simulation instance. Both the render-side and the
// worker-side instance are built from the same values so their depth
// advances stay bit-identical.
type Params struct {
	Width, Height float32
	MaxDepth      float32
	BaseSpeed     float32 // depth units per second
	BoostSpeed    float32
	Seed          int64
}

// Sim advances a Buffer. It is pure with respect to the buffer: all state
// lives in the buffer plus the pseudo-random sequence used for respawns.
type Sim struct {
	p     Params
	rng   *rand.Rand
	boost bool
}

// NewSim creates a simulation with its own random sequence.
func NewSim(p Params) *Sim {
	if p.MaxDepth <= 0 {
		p.MaxDepth = 32
	}
	if p.BaseSpeed <= 0 {
		p.BaseSpeed = 12
	}
	if p.BoostSpeed < p.BaseSpeed {
		p.BoostSpeed = p.BaseSpeed
	}
	return &Sim{p: p, rng: rand.New(rand.NewSource(p.Seed))}
}

// SetBoost toggles the boosted speed.
func (s *Sim) SetBoost(on bool) { s.boost = on }

// Boost reports the current boost state.
func (s *Sim) Boost() bool { return s.boost }

// SetDims updates the respawn bounds, such as after a window resize.
func (s *Sim) SetDims(w, h float32) {
	if w > 0 {
		s.p.Width = w
	}
	if h > 0 {
		s.p.Height = h
	}
}

// MaxDepth returns the configured far plane.
func (s *Sim) MaxDepth() float32 { return s.p.MaxDepth }

// Speed returns the current depth speed in units per second.
func (s *Sim) Speed() float32 {
	if s.boost {
		return s.p.BoostSpeed
	}
	return s.p.BaseSpeed
}

// Populate randomizes every record in the buffer: uniform x/y within bounds
// and uniform depth so the field has no startup "wall" of stars.
func (s *Sim) Populate(b *Buffer) {
	for i := 0; i < b.Count(); i++ {
		s.respawn(b, i, s.randomDepth())
		b.SetActive(i, true)
	}
}

// Step advances every active particle's depth by speed*dt and recycles the
// ones that crossed the viewer plane. It appends the recycled indices to
// changed and returns the updated slice; those are the only records whose
// evolution is not reproducible from (buffer, dt) alone.
func (s *Sim) Step(b *Buffer, dt float32, changed []int32) []int32 {
	if dt <= 0 {
		return changed
	}
	step := s.Speed() * dt
	for i := 0; i < b.Count(); i++ {
		if !b.Active(i) {
			continue
		}
		z := b.Z(i) - step
		if z <= 0 {
			s.respawn(b, i, s.p.MaxDepth)
			changed = append(changed, int32(i))
			continue
		}
		b.SetZ(i, z)
	}
	return changed
}

// InitParticle sets a single record to a fresh random spawn at the far
// plane. Used when the buffer grows after a count change.
func (s *Sim) InitParticle(b *Buffer, i int) {
	s.respawn(b, i, s.p.MaxDepth)
	b.SetActive(i, true)
}

// respawn re-randomizes position at the given depth. Depth is set exactly,
// never accumulated, so recycled particles always restart from a known
// plane.
func (s *Sim) respawn(b *Buffer, i int, depth float32) {
	x := s.rng.Float32() * s.p.Width
	y := s.rng.Float32() * s.p.Height
	b.SetPos(i, x, y, depth)
	b.ClearPrevScreen(i)
}

// randomDepth picks a depth in (0, maxDepth], avoiding zero so the invariant
// z > 0 holds from the first frame.
func (s *Sim) randomDepth() float32 {
	d := s.rng.Float32() * s.p.MaxDepth
	if d <= 0 {
		d = s.p.MaxDepth
	}
	return d
}
