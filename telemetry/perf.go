// Package telemetry collects pool and frame statistics, aggregates them over
// windows, and exports them for external consumption.
package telemetry

import (
	"log/slog"
	"time"
)

// Phase names for the frame pipeline.
const (
	PhaseSimulate  = "simulate"
	PhaseTransport = "transport"
	PhaseCull      = "cull"
	PhaseProject   = "project"
	PhaseDraw      = "draw"
	PhaseSparks    = "sparks"
)

// PerfSample holds timing data for a single frame.
type PerfSample struct {
	FrameDuration time.Duration
	Phases        map[string]time.Duration
}

// PerfCollector tracks per-phase frame timing over a rolling window.
type PerfCollector struct {
	windowSize    int
	samples       []PerfSample
	writeIndex    int
	sampleCount   int
	currentPhases map[string]time.Duration
	frameStart    time.Time
	phaseStart    time.Time
	lastPhase     string
}

// NewPerfCollector creates a collector averaging over windowSize frames.
func NewPerfCollector(windowSize int) *PerfCollector {
	if windowSize < 1 {
		windowSize = 120
	}
	return &PerfCollector{
		windowSize:    windowSize,
		samples:       make([]PerfSample, windowSize),
		currentPhases: make(map[string]time.Duration),
	}
}

// StartFrame begins timing a new frame.
func (p *PerfCollector) StartFrame() {
	p.frameStart = time.Now()
	p.currentPhases = make(map[string]time.Duration)
	p.lastPhase = ""
}

// StartPhase begins timing a named phase, closing the previous one.
func (p *PerfCollector) StartPhase(phase string) {
	now := time.Now()
	if p.lastPhase != "" {
		p.currentPhases[p.lastPhase] += now.Sub(p.phaseStart)
	}
	p.phaseStart = now
	p.lastPhase = phase
}

// EndFrame closes the current frame and records the sample. Returns the
// frame duration so the caller can feed the quality controller.
func (p *PerfCollector) EndFrame() time.Duration {
	now := time.Now()
	if p.lastPhase != "" {
		p.currentPhases[p.lastPhase] += now.Sub(p.phaseStart)
	}

	d := now.Sub(p.frameStart)
	p.samples[p.writeIndex] = PerfSample{FrameDuration: d, Phases: p.currentPhases}
	p.writeIndex = (p.writeIndex + 1) % p.windowSize
	if p.sampleCount < p.windowSize {
		p.sampleCount++
	}
	return d
}

// PerfStats holds aggregated frame statistics.
type PerfStats struct {
	AvgFrame time.Duration
	MinFrame time.Duration
	MaxFrame time.Duration
	FPS      float64

	PhaseAvg map[string]time.Duration
	PhasePct map[string]float64
}

// Stats computes aggregated statistics over the current window.
func (p *PerfCollector) Stats() PerfStats {
	if p.sampleCount == 0 {
		return PerfStats{
			PhaseAvg: make(map[string]time.Duration),
			PhasePct: make(map[string]float64),
		}
	}

	var total time.Duration
	var minF, maxF time.Duration
	phaseSum := make(map[string]time.Duration)

	for i := 0; i < p.sampleCount; i++ {
		s := p.samples[i]
		total += s.FrameDuration
		if i == 0 || s.FrameDuration < minF {
			minF = s.FrameDuration
		}
		if s.FrameDuration > maxF {
			maxF = s.FrameDuration
		}
		for phase, dur := range s.Phases {
			phaseSum[phase] += dur
		}
	}

	avg := total / time.Duration(p.sampleCount)

	phaseAvg := make(map[string]time.Duration)
	phasePct := make(map[string]float64)
	for phase, sum := range phaseSum {
		phaseAvg[phase] = sum / time.Duration(p.sampleCount)
		if avg > 0 {
			phasePct[phase] = float64(phaseAvg[phase]) / float64(avg) * 100
		}
	}

	var fps float64
	if avg > 0 {
		fps = float64(time.Second) / float64(avg)
	}

	return PerfStats{
		AvgFrame: avg,
		MinFrame: minF,
		MaxFrame: maxF,
		FPS:      fps,
		PhaseAvg: phaseAvg,
		PhasePct: phasePct,
	}
}

// PerfStatsCSV is the flattened CSV representation of PerfStats.
type PerfStatsCSV struct {
	WindowEnd    int64   `csv:"window_end_frame"`
	AvgFrameUs   int64   `csv:"avg_frame_us"`
	MinFrameUs   int64   `csv:"min_frame_us"`
	MaxFrameUs   int64   `csv:"max_frame_us"`
	FPS          float64 `csv:"fps"`
	SimulatePct  float64 `csv:"simulate_pct"`
	TransportPct float64 `csv:"transport_pct"`
	CullPct      float64 `csv:"cull_pct"`
	ProjectPct   float64 `csv:"project_pct"`
	DrawPct      float64 `csv:"draw_pct"`
	SparksPct    float64 `csv:"sparks_pct"`
}

// ToCSV converts stats to the flattened CSV row.
func (s PerfStats) ToCSV(windowEnd int64) PerfStatsCSV {
	return PerfStatsCSV{
		WindowEnd:    windowEnd,
		AvgFrameUs:   s.AvgFrame.Microseconds(),
		MinFrameUs:   s.MinFrame.Microseconds(),
		MaxFrameUs:   s.MaxFrame.Microseconds(),
		FPS:          s.FPS,
		SimulatePct:  s.PhasePct[PhaseSimulate],
		TransportPct: s.PhasePct[PhaseTransport],
		CullPct:      s.PhasePct[PhaseCull],
		ProjectPct:   s.PhasePct[PhaseProject],
		DrawPct:      s.PhasePct[PhaseDraw],
		SparksPct:    s.PhasePct[PhaseSparks],
	}
}

// LogStats logs frame statistics.
func (s PerfStats) LogStats() {
	attrs := []any{
		"avg_frame_us", s.AvgFrame.Microseconds(),
		"min_frame_us", s.MinFrame.Microseconds(),
		"max_frame_us", s.MaxFrame.Microseconds(),
		"fps", int(s.FPS),
	}

	phases := []string{
		PhaseSimulate, PhaseTransport, PhaseCull,
		PhaseProject, PhaseDraw, PhaseSparks,
	}
	for _, phase := range phases {
		if pct, ok := s.PhasePct[phase]; ok && pct > 0.1 {
			attrs = append(attrs, phase+"_pct", int(pct*10)/10.0)
		}
	}

	slog.Info("perf", attrs...)
}

// LogValue implements slog.LogValuer for structured logging.
func (s PerfStats) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.Int64("avg_frame_us", s.AvgFrame.Microseconds()),
		slog.Int64("min_frame_us", s.MinFrame.Microseconds()),
		slog.Int64("max_frame_us", s.MaxFrame.Microseconds()),
		slog.Float64("fps", s.FPS),
	}
	for phase, pct := range s.PhasePct {
		attrs = append(attrs, slog.Float64(phase+"_pct", pct))
	}
	return slog.GroupValue(attrs...)
}
