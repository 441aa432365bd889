package scene

import (
	"log/slog"
	"time"

	rl "github.com/gen2brain/raylib-go/raylib"

	"github.com/pthm-cable/starfield/config"
	"github.com/pthm-cable/starfield/pool"
	"github.com/pthm-cable/starfield/quality"
	"github.com/pthm-cable/starfield/render"
	"github.com/pthm-cable/starfield/spatial"
	"github.com/pthm-cable/starfield/telemetry"
)

// countDeadband is the relative distance between the adaptive target count
// and the live count below which no resize is requested, so the quality loop
// cannot thrash the worker with count changes.
const countDeadband = 0.1

// Scene wires the whole pipeline: coordinator, culler, projector, batch
// renderer, quality feedback, sparks, and telemetry. One Scene per animated
// surface.
type Scene struct {
	cfg *config.Config

	coord     *Coordinator
	culler    *spatial.Culler
	projector *render.Projector
	renderer  *render.BatchRenderer
	quality   *quality.Controller
	sparks    *Sparks

	perf      *telemetry.PerfCollector
	collector *telemetry.Collector
	output    *telemetry.OutputManager
	logStats  bool

	palette   []rl.Color
	visible   []int32
	projected []render.Projected

	lastFrame  time.Duration
	lastCounts render.DrawCounts
}

// New builds a scene from the loaded config. output may be nil when CSV
// export is disabled.
func New(cfg *config.Config, seed int64, output *telemetry.OutputManager, logStats bool) *Scene {
	palette := paletteColors(cfg)

	s := &Scene{
		cfg:      cfg,
		coord:    NewCoordinator(cfg, seed),
		culler:   spatial.NewCuller(cfg.Sim.GridSize, cfg.Derived.ScreenW32, cfg.Derived.ScreenH32, cfg.Derived.MaxDepth32, float32(cfg.Render.Margin)),
		renderer: render.NewBatchRenderer(palette, cfg.Render.Glow),
		quality:  quality.NewController(qualityConfig(cfg), cfg.Particles.Count),
		sparks: NewSparks(cfg.Pool.Capacity, cfg.Pool.MaxCapacity, cfg.Pool.SparkChance,
			time.Duration(cfg.Pool.HibernateAfterMs)*time.Millisecond, seed+2),
		perf:      telemetry.NewPerfCollector(cfg.Telemetry.PerfWindow),
		collector: telemetry.NewCollector(cfg.Telemetry.WindowSec),
		output:    output,
		logStats:  logStats,
		palette:   palette,
		visible:   make([]int32, 0, cfg.Particles.Count),
		projected: make([]render.Projected, 0, cfg.Particles.Count),
	}
	s.projector = render.NewProjector(render.ProjectorParams{
		Width:          cfg.Derived.ScreenW32,
		Height:         cfg.Derived.ScreenH32,
		MaxDepth:       cfg.Derived.MaxDepth32,
		Margin:         float32(cfg.Render.Margin),
		Scale:          cfg.Derived.Scale32,
		MaxSize:        float32(cfg.Render.MaxSize),
		TrailThreshold: float32(cfg.Render.TrailThreshold),
		Palette:        palette,
	})
	s.coord.AttachSparks(s.sparks)
	s.sparks.SetStatsSink(cfg.Pool.StatsFlushOps, s.collector.PoolSink())
	if err := output.WriteConfig(cfg); err != nil {
		slog.Warn("writing config snapshot", "err", err)
	}
	return s
}

// Frame runs one full frame against the given draw surface: simulation
// transport, cull, project, draw, sparks, and the telemetry window.
func (s *Scene) Frame(surface render.Surface, dt float32) {
	s.perf.StartFrame()

	s.perf.StartPhase(telemetry.PhaseTransport)
	s.coord.Update(dt, s.lastFrame)

	s.perf.StartPhase(telemetry.PhaseCull)
	s.visible = s.culler.VisibleInto(s.visible[:0], s.coord.Buffer())

	s.perf.StartPhase(telemetry.PhaseProject)
	s.projected = s.projector.ProjectInto(s.projected[:0], s.coord.Buffer(), s.visible, s.coord.Boost())

	q := s.quality.State()

	s.perf.StartPhase(telemetry.PhaseDraw)
	s.lastCounts = s.renderer.Draw(surface, s.projected, q)

	s.perf.StartPhase(telemetry.PhaseSparks)
	s.sparks.Update(dt)
	s.sparks.Draw(surface, s.palette[len(s.palette)-1])

	s.lastFrame = s.perf.EndFrame()
	s.quality.Observe(s.lastFrame)
	s.applyTargetCount(q)

	s.collector.RecordFrame(s.lastFrame, q.Quality,
		s.lastCounts.Batches, s.lastCounts.Points, s.lastCounts.Trails)
	if s.collector.WindowReady() {
		s.flushTelemetry()
	}
}

// applyTargetCount feeds the adaptive particle-count target back into the
// coordinator, with a deadband so small quality wobbles do not resize.
func (s *Scene) applyTargetCount(q quality.State) {
	current := s.coord.Count()
	if current == 0 {
		return
	}
	diff := q.TargetCount - current
	if diff < 0 {
		diff = -diff
	}
	if float64(diff)/float64(current) >= countDeadband {
		s.coord.SetCount(q.TargetCount)
	}
}

func (s *Scene) flushTelemetry() {
	w := s.collector.Flush()
	ps := s.perf.Stats()
	if err := s.output.WriteStats(w); err != nil {
		slog.Warn("writing stats window", "err", err)
	}
	if err := s.output.WritePerf(ps, w.WindowEnd); err != nil {
		slog.Warn("writing perf window", "err", err)
	}
	if s.logStats {
		ps.LogStats()
		slog.Info("window", "stats", w)
	}
}

// SetBoost toggles boosted speed and the trail rendering that rides on it.
func (s *Scene) SetBoost(on bool) { s.coord.SetBoost(on) }

// Boost reports the current boost state.
func (s *Scene) Boost() bool { return s.coord.Boost() }

// Reset re-randomizes the particle field.
func (s *Scene) Reset() { s.coord.Reset() }

// Quality returns the current quality scalar for display.
func (s *Scene) Quality() float64 { return s.quality.Quality() }

// Counts returns the last frame's draw counts for display.
func (s *Scene) Counts() render.DrawCounts { return s.lastCounts }

// ParticleCount returns the live particle count.
func (s *Scene) ParticleCount() int { return s.coord.Count() }

// VisibleCount returns how many particles survived the cull last frame.
func (s *Scene) VisibleCount() int { return len(s.visible) }

// PerfStats returns the rolling perf aggregate for display.
func (s *Scene) PerfStats() telemetry.PerfStats { return s.perf.Stats() }

// SparkStats returns the spark pool counters for display.
func (s *Scene) SparkStats() pool.Stats { return s.sparks.Stats() }

// UpdateConfig applies a reloaded or edited configuration across every
// component. The quality controller restarts at full quality; the feedback
// loop settles it again within a few adjustment intervals.
func (s *Scene) UpdateConfig(cfg *config.Config) {
	cfg.Recompute()
	s.cfg = cfg
	s.palette = paletteColors(cfg)

	s.coord.UpdateConfig(cfg)
	s.culler.SetDims(cfg.Derived.ScreenW32, cfg.Derived.ScreenH32)
	s.culler.SetMaxDepth(cfg.Derived.MaxDepth32)
	s.projector.SetDims(cfg.Derived.ScreenW32, cfg.Derived.ScreenH32)
	s.projector.SetMaxDepth(cfg.Derived.MaxDepth32)
	s.projector.SetScale(cfg.Derived.Scale32)
	s.projector.SetPalette(s.palette)
	s.renderer.SetPalette(s.palette)
	s.renderer.SetGlow(cfg.Render.Glow)
	s.quality = quality.NewController(qualityConfig(cfg), cfg.Particles.Count)
	slog.Info("config applied", "count", cfg.Particles.Count, "glow", cfg.Render.Glow)
}

// Config returns the active configuration, for the tuning panel.
func (s *Scene) Config() *config.Config { return s.cfg }

// Stop tears down the background worker and flushes the open telemetry
// window.
func (s *Scene) Stop() {
	s.flushTelemetry()
	s.coord.Stop()
}

func qualityConfig(cfg *config.Config) quality.Config {
	return quality.Config{
		TargetMs:    cfg.Quality.TargetMs,
		SlowMs:      cfg.Quality.SlowMs,
		FastMs:      cfg.Quality.FastMs,
		Floor:       cfg.Quality.Floor,
		StepDown:    cfg.Quality.StepDown,
		StepUp:      cfg.Quality.StepUp,
		AdjustEvery: cfg.Quality.AdjustEvery,
		EMAAlpha:    cfg.Quality.EMAAlpha,
	}
}

func paletteColors(cfg *config.Config) []rl.Color {
	palette := make([]rl.Color, 0, len(cfg.Derived.PaletteRGB))
	for _, rgb := range cfg.Derived.PaletteRGB {
		palette = append(palette, rl.Color{R: rgb[0], G: rgb[1], B: rgb[2], A: 255})
	}
	return palette
}
