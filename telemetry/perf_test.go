package telemetry

import (
	"testing"
	"time"
)

func TestPerfCollector_BasicTiming(t *testing.T) {
	pc := NewPerfCollector(10)

	for i := 0; i < 5; i++ {
		pc.StartFrame()
		pc.StartPhase(PhaseSimulate)
		time.Sleep(100 * time.Microsecond)
		pc.StartPhase(PhaseDraw)
		time.Sleep(200 * time.Microsecond)
		pc.EndFrame()
	}

	stats := pc.Stats()

	if stats.AvgFrame <= 0 {
		t.Error("expected positive average frame duration")
	}
	if _, ok := stats.PhaseAvg[PhaseSimulate]; !ok {
		t.Error("expected simulate phase to be tracked")
	}
	if _, ok := stats.PhaseAvg[PhaseDraw]; !ok {
		t.Error("expected draw phase to be tracked")
	}
}

func TestPerfCollector_EndFrameReturnsDuration(t *testing.T) {
	pc := NewPerfCollector(10)

	pc.StartFrame()
	time.Sleep(time.Millisecond)
	d := pc.EndFrame()

	if d < time.Millisecond {
		t.Errorf("frame duration = %v, want >= 1ms", d)
	}
}

func TestPerfCollector_PhasePercentages(t *testing.T) {
	pc := NewPerfCollector(10)

	for i := 0; i < 5; i++ {
		pc.StartFrame()
		pc.StartPhase(PhaseCull)
		time.Sleep(10 * time.Microsecond)
		pc.StartPhase(PhaseDraw)
		time.Sleep(100 * time.Microsecond)
		pc.EndFrame()
	}

	stats := pc.Stats()
	if stats.PhasePct[PhaseDraw] <= stats.PhasePct[PhaseCull] {
		t.Errorf("expected draw (%v%%) > cull (%v%%)",
			stats.PhasePct[PhaseDraw], stats.PhasePct[PhaseCull])
	}
}

func TestPerfCollector_RollingWindowOverwrites(t *testing.T) {
	pc := NewPerfCollector(5)

	for i := 0; i < 12; i++ {
		pc.StartFrame()
		pc.StartPhase(PhaseSimulate)
		pc.EndFrame()
	}

	stats := pc.Stats()
	if stats.AvgFrame <= 0 {
		t.Error("expected positive average after window wrapped")
	}
	if stats.FPS <= 0 {
		t.Error("expected positive FPS")
	}
}

func TestPerfCollector_EmptyStats(t *testing.T) {
	pc := NewPerfCollector(10)

	stats := pc.Stats()
	if stats.AvgFrame != 0 {
		t.Error("expected zero average frame for empty collector")
	}
	if stats.PhaseAvg == nil || stats.PhasePct == nil {
		t.Error("expected non-nil phase maps")
	}
}

func TestPerfStats_ToCSVFlattensPhases(t *testing.T) {
	s := PerfStats{
		AvgFrame: 16 * time.Millisecond,
		FPS:      60,
		PhasePct: map[string]float64{
			PhaseSimulate: 30,
			PhaseDraw:     50,
		},
	}

	row := s.ToCSV(420)
	if row.WindowEnd != 420 {
		t.Errorf("window end = %d, want 420", row.WindowEnd)
	}
	if row.AvgFrameUs != 16000 {
		t.Errorf("avg frame = %dus, want 16000", row.AvgFrameUs)
	}
	if row.SimulatePct != 30 || row.DrawPct != 50 {
		t.Errorf("phase pcts = %v/%v, want 30/50", row.SimulatePct, row.DrawPct)
	}
	if row.CullPct != 0 {
		t.Errorf("cull pct = %v for absent phase, want 0", row.CullPct)
	}
}
