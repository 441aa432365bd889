// Package quality closes the feedback loop between measured frame time and
// visual-effect cost. A single scalar in [0,1] is the only source of truth
// consumed by the projector, batch renderer, and particle-count target, so
// no component derives its own threshold and the loop cannot oscillate
// against itself.
package quality

import "time"

// Derived-threshold shape constants. They translate the scalar into the
// knobs the renderer consumes.
const (
	glowCapAtFull     = 48   // max glow-eligible batch size at quality 1
	batchSizeMin      = 32   // batch cap at the quality floor
	batchSizeSpan     = 224  // additional cap headroom at quality 1
	fallbackThreshold = 0.35 // below this, the simplified draw path engages
)

// Config holds the controller parameters, normally taken from the loaded
// configuration.
type Config struct {
	TargetMs    float64 // frame budget
	SlowMs      float64 // upper hysteresis trigger
	FastMs      float64 // lower hysteresis trigger
	Floor       float64 // lower clamp for the scalar
	StepDown    float64 // multiplicative step when slow, e.g. 0.9
	StepUp      float64 // multiplicative step when fast, e.g. 1.1
	AdjustEvery int     // frames between adjustments
	EMAAlpha    float64 // smoothing factor for the frame-time average
}

// State is the derived quality snapshot read by consumers each frame.
type State struct {
	Quality         float64
	MaxGlowCount    int
	BatchSize       int
	FallbackEnabled bool
	TargetCount     int // particle-count target at this quality
}

// Controller maintains an exponential moving average of frame time and
// nudges the quality scalar by small multiplicative steps, clamped to
// [floor, 1]. Distinct slow/fast triggers around the budget provide
// hysteresis so the scalar does not flap.
type Controller struct {
	cfg       Config
	baseCount int

	quality float64
	ema     float64
	frames  int
}

// NewController creates a controller starting at full quality.
func NewController(cfg Config, baseCount int) *Controller {
	if cfg.StepDown <= 0 || cfg.StepDown >= 1 {
		cfg.StepDown = 0.9
	}
	if cfg.StepUp <= 1 {
		cfg.StepUp = 1.1
	}
	if cfg.Floor <= 0 || cfg.Floor > 1 {
		cfg.Floor = 0.2
	}
	if cfg.AdjustEvery < 1 {
		cfg.AdjustEvery = 10
	}
	if cfg.EMAAlpha <= 0 || cfg.EMAAlpha > 1 {
		cfg.EMAAlpha = 0.1
	}
	if cfg.TargetMs <= 0 {
		cfg.TargetMs = 16.7
	}
	if cfg.SlowMs <= cfg.TargetMs {
		cfg.SlowMs = cfg.TargetMs * 1.2
	}
	if cfg.FastMs <= 0 || cfg.FastMs >= cfg.TargetMs {
		cfg.FastMs = cfg.TargetMs * 0.75
	}
	return &Controller{cfg: cfg, baseCount: baseCount, quality: 1}
}

// SetBaseCount updates the configured particle count the target scales from.
func (c *Controller) SetBaseCount(n int) {
	if n > 0 {
		c.baseCount = n
	}
}

// Observe records one frame's measured render/update time and adjusts the
// scalar when the adjustment interval elapses.
func (c *Controller) Observe(frameTime time.Duration) {
	ms := float64(frameTime) / float64(time.Millisecond)
	if c.ema == 0 {
		c.ema = ms
	} else {
		c.ema += c.cfg.EMAAlpha * (ms - c.ema)
	}

	c.frames++
	if c.frames < c.cfg.AdjustEvery {
		return
	}
	c.frames = 0

	switch {
	case c.ema > c.cfg.SlowMs:
		c.quality *= c.cfg.StepDown
		if c.quality < c.cfg.Floor {
			c.quality = c.cfg.Floor
		}
	case c.ema < c.cfg.FastMs:
		c.quality *= c.cfg.StepUp
		if c.quality > 1 {
			c.quality = 1
		}
	}
	// Between the triggers the scalar holds steady.
}

// Quality returns the raw scalar.
func (c *Controller) Quality() float64 { return c.quality }

// State derives the consumer-facing thresholds from the scalar.
func (c *Controller) State() State {
	s := State{
		Quality:         c.quality,
		MaxGlowCount:    int(c.quality * glowCapAtFull),
		BatchSize:       batchSizeMin + int(c.quality*batchSizeSpan),
		FallbackEnabled: c.quality < fallbackThreshold,
	}
	s.TargetCount = int(c.quality * float64(c.baseCount))
	if s.TargetCount < 1 {
		s.TargetCount = 1
	}
	return s
}
