package scene

import (
	"math"
	"math/rand"
	"time"

	rl "github.com/gen2brain/raylib-go/raylib"

	"github.com/pthm-cable/starfield/pool"
	"github.com/pthm-cable/starfield/render"
)

const (
	sparksPerBurst = 6
	sparkLifeSec   = 0.6
	sparkTrailMax  = 8
)

// Spark is a short-lived ember emitted where a boosted particle streaked past
// the viewer plane. The trail slice is the heavy part of the record: reuse
// keeps it allocated, hibernation of long-idle slots lets it go.
type Spark struct {
	X, Y     float32
	VX, VY   float32
	Life     float32
	MaxLife  float32
	TrailPts [][2]float32
}

func resetSpark(s *Spark) {
	s.X, s.Y = 0, 0
	s.VX, s.VY = 0, 0
	s.Life, s.MaxLife = 0, 0
	s.TrailPts = s.TrailPts[:0]
}

// Sparks owns the pooled burst effect. Not safe for concurrent use; it lives
// entirely on the render side.
type Sparks struct {
	pool   *pool.Pool[Spark]
	active []*pool.Item[Spark]
	rng    *rand.Rand

	chance         float64
	hibernateAfter time.Duration
}

// NewSparks builds the emitter over a pool sized by the config.
func NewSparks(capacity, maxCapacity int, chance float64, hibernateAfter time.Duration, seed int64) *Sparks {
	p := pool.New(capacity, maxCapacity,
		func() Spark {
			return Spark{TrailPts: make([][2]float32, 0, sparkTrailMax)}
		},
		resetSpark,
	)
	return &Sparks{
		pool:           p,
		active:         make([]*pool.Item[Spark], 0, capacity),
		rng:            rand.New(rand.NewSource(seed)),
		chance:         chance,
		hibernateAfter: hibernateAfter,
	}
}

// SetStatsSink forwards batched pool statistics to the telemetry collector.
func (s *Sparks) SetStatsSink(flushOps int, fn func(pool.Stats)) {
	s.pool.SetStatsSink(flushOps, fn)
}

// MaybeEmit rolls the configured chance and emits a burst at (x, y).
func (s *Sparks) MaybeEmit(x, y float32) {
	if s.rng.Float64() >= s.chance {
		return
	}
	s.EmitBurst(x, y)
}

// EmitBurst checks out one pooled spark per burst ray.
func (s *Sparks) EmitBurst(x, y float32) {
	for i := 0; i < sparksPerBurst; i++ {
		it := s.pool.Get()
		sp := &it.Value
		ang := s.rng.Float64() * 2 * math.Pi
		speed := 40 + s.rng.Float32()*80
		sp.X, sp.Y = x, y
		sp.VX = float32(math.Cos(ang)) * speed
		sp.VY = float32(math.Sin(ang)) * speed
		sp.MaxLife = sparkLifeSec * (0.5 + s.rng.Float32()*0.5)
		sp.Life = sp.MaxLife
		s.active = append(s.active, it)
	}
}

// Update advances live sparks and releases expired ones back to the pool.
// Also the periodic hibernation and stats-flush hook, once per frame.
func (s *Sparks) Update(dt float32) {
	n := 0
	for _, it := range s.active {
		sp := &it.Value
		sp.Life -= dt
		if sp.Life <= 0 {
			s.pool.Release(it)
			continue
		}
		sp.X += sp.VX * dt
		sp.Y += sp.VY * dt
		if len(sp.TrailPts) >= sparkTrailMax {
			copy(sp.TrailPts, sp.TrailPts[1:])
			sp.TrailPts = sp.TrailPts[:sparkTrailMax-1]
		}
		sp.TrailPts = append(sp.TrailPts, [2]float32{sp.X, sp.Y})
		s.active[n] = it
		n++
	}
	s.active = s.active[:n]

	s.pool.Hibernate(s.hibernateAfter, false)
	s.pool.FlushStats()
}

// Draw renders live sparks as fading points with a tail segment. color is the
// near-plane palette entry; alpha tracks remaining life.
func (s *Sparks) Draw(surf render.Surface, color rl.Color) {
	for _, it := range s.active {
		sp := &it.Value
		frac := sp.Life / sp.MaxLife
		c := color
		c.A = uint8(255 * frac)
		if len(sp.TrailPts) >= 2 {
			tail := sp.TrailPts[0]
			tc := c
			tc.A /= 3
			surf.StrokeLine(tail[0], tail[1], sp.X, sp.Y, 1, tc)
		}
		surf.FillCircle(sp.X, sp.Y, 1.5*frac+0.5, c)
	}
}

// ActiveCount returns the number of live sparks.
func (s *Sparks) ActiveCount() int { return len(s.active) }

// Stats returns a snapshot of the backing pool's counters.
func (s *Sparks) Stats() pool.Stats { return s.pool.Stats() }
