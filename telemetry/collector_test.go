package telemetry

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pthm-cable/starfield/pool"
)

func TestCollector_FlushAggregatesFrameTimes(t *testing.T) {
	c := NewCollector(5)

	c.RecordFrame(10*time.Millisecond, 1, 4, 100, 10)
	c.RecordFrame(20*time.Millisecond, 1, 4, 100, 10)
	c.RecordFrame(30*time.Millisecond, 0.9, 4, 100, 10)

	w := c.Flush()

	if w.FrameMeanMs != 20 {
		t.Errorf("mean = %v, want 20", w.FrameMeanMs)
	}
	if math.Abs(w.FrameStddevMs-10) > 1e-9 {
		t.Errorf("stddev = %v, want 10", w.FrameStddevMs)
	}
	if w.FrameMaxMs != 30 {
		t.Errorf("max = %v, want 30", w.FrameMaxMs)
	}
	if w.Quality != 0.9 {
		t.Errorf("quality = %v, want latest observation 0.9", w.Quality)
	}
	if w.DrawBatches != 12 || w.DrawnPoints != 300 || w.DrawnTrails != 30 {
		t.Errorf("draw totals = %d/%d/%d, want 12/300/30",
			w.DrawBatches, w.DrawnPoints, w.DrawnTrails)
	}
	if w.WindowEnd != 3 {
		t.Errorf("window end = %d, want 3", w.WindowEnd)
	}
}

func TestCollector_FlushResetsWindow(t *testing.T) {
	c := NewCollector(5)

	c.RecordFrame(10*time.Millisecond, 1, 4, 100, 10)
	c.Flush()

	w := c.Flush()
	if w.FrameMeanMs != 0 || w.DrawBatches != 0 {
		t.Errorf("second flush not empty: %+v", w)
	}
	if w.WindowEnd != 1 {
		t.Errorf("frame counter reset across windows: %d", w.WindowEnd)
	}
}

func TestCollector_PoolSinkCapturesLatestSnapshot(t *testing.T) {
	c := NewCollector(5)
	sink := c.PoolSink()

	sink(pool.Stats{Created: 10, Reused: 5, Active: 8, Capacity: 16})
	sink(pool.Stats{Created: 10, Reused: 30, Active: 4, Capacity: 16,
		UtilizationRate: 0.25, ReuseRatio: 0.75})

	w := c.Flush()
	if w.Reused != 30 || w.Active != 4 {
		t.Errorf("pool snapshot = reused %d active %d, want latest 30/4", w.Reused, w.Active)
	}
	if w.ReuseRatio != 0.75 {
		t.Errorf("reuse ratio = %v, want 0.75", w.ReuseRatio)
	}
}

func TestCollector_WindowReady(t *testing.T) {
	c := NewCollector(5)

	base := time.Now()
	c.now = func() time.Time { return base }
	c.windowStart = base

	if c.WindowReady() {
		t.Error("window ready immediately")
	}
	c.now = func() time.Time { return base.Add(6 * time.Second) }
	if !c.WindowReady() {
		t.Error("window not ready after interval elapsed")
	}
}

func TestOutputManager_DisabledWhenDirEmpty(t *testing.T) {
	om, err := NewOutputManager("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if om != nil {
		t.Fatal("expected nil manager for empty dir")
	}

	// Nil receiver methods are no-ops.
	if err := om.WriteStats(WindowStats{}); err != nil {
		t.Errorf("nil WriteStats: %v", err)
	}
	if err := om.Close(); err != nil {
		t.Errorf("nil Close: %v", err)
	}
	if om.Dir() != "" {
		t.Error("nil Dir not empty")
	}
}

func TestOutputManager_WritesCSVWithSingleHeader(t *testing.T) {
	dir := t.TempDir()
	om, err := NewOutputManager(dir)
	if err != nil {
		t.Fatalf("creating output manager: %v", err)
	}

	if err := om.WriteStats(WindowStats{WindowEnd: 1, FrameMeanMs: 16}); err != nil {
		t.Fatalf("first write: %v", err)
	}
	if err := om.WriteStats(WindowStats{WindowEnd: 2, FrameMeanMs: 17}); err != nil {
		t.Fatalf("second write: %v", err)
	}
	if err := om.WritePerf(PerfStats{AvgFrame: 16 * time.Millisecond, PhasePct: map[string]float64{}}, 1); err != nil {
		t.Fatalf("perf write: %v", err)
	}
	if err := om.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "stats.csv"))
	if err != nil {
		t.Fatalf("reading stats.csv: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 3 {
		t.Fatalf("stats.csv has %d lines, want header + 2 records", len(lines))
	}
	if !strings.Contains(lines[0], "frame_mean_ms") {
		t.Errorf("header missing frame_mean_ms: %q", lines[0])
	}
	if strings.Contains(lines[1], "frame_mean_ms") {
		t.Error("header repeated in record rows")
	}

	if _, err := os.Stat(filepath.Join(dir, "perf.csv")); err != nil {
		t.Errorf("perf.csv missing: %v", err)
	}
}
