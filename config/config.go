// Package config provides configuration loading and access for the starfield.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Config holds all starfield configuration parameters.
// It is constructed in main and passed down; there is no package-level
// instance, so several configs can host independent animated surfaces.
type Config struct {
	Screen    ScreenConfig    `yaml:"screen"`
	Particles ParticlesConfig `yaml:"particles"`
	Render    RenderConfig    `yaml:"render"`
	Quality   QualityConfig   `yaml:"quality"`
	Pool      PoolConfig      `yaml:"pool"`
	Sim       SimConfig       `yaml:"sim"`
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Derived values computed after loading
	Derived DerivedConfig `yaml:"-"`
}

// ScreenConfig holds display settings.
type ScreenConfig struct {
	Width     int     `yaml:"width"`
	Height    int     `yaml:"height"`
	TargetFPS int     `yaml:"target_fps"`
	Scale     float64 `yaml:"scale"` // device pixel scale applied to sizes
}

// ParticlesConfig holds the particle field parameters.
type ParticlesConfig struct {
	Count      int     `yaml:"count"`
	MaxDepth   float64 `yaml:"max_depth"`
	BaseSpeed  float64 `yaml:"base_speed"`  // depth units per second
	BoostSpeed float64 `yaml:"boost_speed"` // depth units per second while boosted
}

// RenderConfig holds drawing parameters.
type RenderConfig struct {
	Palette        []string `yaml:"palette"` // hex colors, far to near
	Glow           bool     `yaml:"glow"`
	MaxSize        float64  `yaml:"max_size"`        // projected size at z -> 0, pre-scale
	Margin         float64  `yaml:"margin"`          // off-screen discard margin in pixels
	TrailThreshold float64  `yaml:"trail_threshold"` // min screen-space travel for a trail, pixels
}

// QualityConfig holds the adaptive quality feedback parameters.
type QualityConfig struct {
	TargetMs    float64 `yaml:"target_ms"`    // frame budget
	SlowMs      float64 `yaml:"slow_ms"`      // above this, quality steps down
	FastMs      float64 `yaml:"fast_ms"`      // below this, quality steps up
	Floor       float64 `yaml:"floor"`        // lower clamp for the quality scalar
	StepDown    float64 `yaml:"step_down"`    // multiplicative step when slow
	StepUp      float64 `yaml:"step_up"`      // multiplicative step when fast
	AdjustEvery int     `yaml:"adjust_every"` // frames between adjustments
	EMAAlpha    float64 `yaml:"ema_alpha"`    // smoothing factor for frame-time average
}

// PoolConfig holds object pool parameters for pooled effect records.
type PoolConfig struct {
	Capacity         int     `yaml:"capacity"`
	MaxCapacity      int     `yaml:"max_capacity"`
	HibernateAfterMs int     `yaml:"hibernate_after_ms"`
	StatsFlushOps    int     `yaml:"stats_flush_ops"`
	SparkChance      float64 `yaml:"spark_chance"` // chance a boosted recycle emits a spark burst
}

// SimConfig holds simulation transport parameters.
type SimConfig struct {
	Worker           bool    `yaml:"worker"`            // run simulation on a background goroutine
	PartialThreshold float64 `yaml:"partial_threshold"` // changed fraction below which a diff is shipped
	GridSize         int     `yaml:"grid_size"`         // culling grid cells per axis
	ThrottleAfterMs  float64 `yaml:"throttle_after_ms"` // frame time beyond which requests are time-gated
	MinRequestGapMs  float64 `yaml:"min_request_gap_ms"`
	DeadAfterMs      float64 `yaml:"dead_after_ms"` // in-flight age after which the worker is presumed gone
}

// TelemetryConfig holds telemetry parameters.
type TelemetryConfig struct {
	WindowSec  float64 `yaml:"window_sec"`
	PerfWindow int     `yaml:"perf_window"`
}

// DerivedConfig holds computed values derived from the loaded config.
type DerivedConfig struct {
	ScreenW32  float32 // Screen.Width as float32
	ScreenH32  float32 // Screen.Height as float32
	MaxDepth32 float32
	Base32     float32
	Boost32    float32
	Scale32    float32
	PaletteRGB [][3]uint8 // parsed palette, far to near
}

// Load loads configuration from a YAML file, merging with embedded defaults.
// If path is empty, only embedded defaults are used.
func Load(path string) (*Config, error) {
	// Start with embedded defaults
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}

	// Load user config if provided
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Unmarshal into same struct - only overwrites fields present in file
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	cfg.Sanitize()
	cfg.computeDerived()

	return cfg, nil
}

// Sanitize clamps out-of-range values to usable defaults. A bad config file
// degrades the effect, it never takes down the loop.
func (c *Config) Sanitize() {
	if c.Screen.Width <= 0 {
		c.Screen.Width = 1280
	}
	if c.Screen.Height <= 0 {
		c.Screen.Height = 720
	}
	if c.Screen.TargetFPS <= 0 {
		c.Screen.TargetFPS = 60
	}
	if c.Screen.Scale <= 0 {
		c.Screen.Scale = 1
	}
	if c.Particles.Count < 1 {
		c.Particles.Count = 300
	}
	if c.Particles.MaxDepth <= 0 {
		c.Particles.MaxDepth = 32
	}
	if c.Particles.BaseSpeed <= 0 {
		c.Particles.BaseSpeed = 12
	}
	if c.Particles.BoostSpeed < c.Particles.BaseSpeed {
		c.Particles.BoostSpeed = c.Particles.BaseSpeed * 4
	}
	if c.Render.MaxSize <= 0 {
		c.Render.MaxSize = 3
	}
	if c.Render.Margin < 0 {
		c.Render.Margin = 0
	}
	if c.Render.TrailThreshold <= 0 {
		c.Render.TrailThreshold = 2
	}
	if len(c.Render.Palette) == 0 {
		c.Render.Palette = []string{"#475569", "#94a3b8", "#e2e8f0", "#ffffff"}
	}
	if c.Quality.TargetMs <= 0 {
		c.Quality.TargetMs = 16.7
	}
	if c.Quality.SlowMs <= c.Quality.TargetMs {
		c.Quality.SlowMs = c.Quality.TargetMs * 1.2
	}
	if c.Quality.FastMs <= 0 || c.Quality.FastMs >= c.Quality.TargetMs {
		c.Quality.FastMs = c.Quality.TargetMs * 0.75
	}
	if c.Quality.Floor <= 0 || c.Quality.Floor > 1 {
		c.Quality.Floor = 0.2
	}
	if c.Quality.StepDown <= 0 || c.Quality.StepDown >= 1 {
		c.Quality.StepDown = 0.9
	}
	if c.Quality.StepUp <= 1 {
		c.Quality.StepUp = 1.1
	}
	if c.Quality.AdjustEvery < 1 {
		c.Quality.AdjustEvery = 10
	}
	if c.Quality.EMAAlpha <= 0 || c.Quality.EMAAlpha > 1 {
		c.Quality.EMAAlpha = 0.1
	}
	if c.Pool.Capacity < 1 {
		c.Pool.Capacity = 64
	}
	if c.Pool.MaxCapacity < c.Pool.Capacity {
		c.Pool.MaxCapacity = c.Pool.Capacity * 2
	}
	if c.Pool.HibernateAfterMs <= 0 {
		c.Pool.HibernateAfterMs = 10000
	}
	if c.Pool.StatsFlushOps < 1 {
		c.Pool.StatsFlushOps = 256
	}
	if c.Pool.SparkChance < 0 || c.Pool.SparkChance > 1 {
		c.Pool.SparkChance = 0.25
	}
	if c.Sim.PartialThreshold <= 0 || c.Sim.PartialThreshold >= 1 {
		c.Sim.PartialThreshold = 0.4
	}
	if c.Sim.GridSize < 2 {
		c.Sim.GridSize = 4
	}
	if c.Sim.ThrottleAfterMs <= 0 {
		c.Sim.ThrottleAfterMs = 25
	}
	if c.Sim.MinRequestGapMs <= 0 {
		c.Sim.MinRequestGapMs = 30
	}
	if c.Sim.DeadAfterMs <= 0 {
		c.Sim.DeadAfterMs = 2000
	}
	if c.Telemetry.WindowSec <= 0 {
		c.Telemetry.WindowSec = 5
	}
	if c.Telemetry.PerfWindow < 1 {
		c.Telemetry.PerfWindow = 120
	}
}

// computeDerived calculates values derived from loaded config.
func (c *Config) computeDerived() {
	c.Derived.ScreenW32 = float32(c.Screen.Width)
	c.Derived.ScreenH32 = float32(c.Screen.Height)
	c.Derived.MaxDepth32 = float32(c.Particles.MaxDepth)
	c.Derived.Base32 = float32(c.Particles.BaseSpeed)
	c.Derived.Boost32 = float32(c.Particles.BoostSpeed)
	c.Derived.Scale32 = float32(c.Screen.Scale)

	c.Derived.PaletteRGB = make([][3]uint8, 0, len(c.Render.Palette))
	for _, hex := range c.Render.Palette {
		rgb, err := ParseHexColor(hex)
		if err != nil {
			// Skip unparsable entries; Sanitize guarantees at least one default
			continue
		}
		c.Derived.PaletteRGB = append(c.Derived.PaletteRGB, rgb)
	}
	if len(c.Derived.PaletteRGB) == 0 {
		c.Derived.PaletteRGB = [][3]uint8{{255, 255, 255}}
	}
}

// Recompute re-runs sanitization and derived-value computation after in-place
// edits, such as those coming from the tuning panel or a hot reload.
func (c *Config) Recompute() {
	c.Sanitize()
	c.computeDerived()
}

// ParseHexColor parses a "#rrggbb" or "rrggbb" string.
func ParseHexColor(s string) ([3]uint8, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(s) != 6 {
		return [3]uint8{}, fmt.Errorf("hex color %q: want 6 digits", s)
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return [3]uint8{}, fmt.Errorf("hex color %q: %w", s, err)
	}
	return [3]uint8{uint8(v >> 16), uint8(v >> 8), uint8(v)}, nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
