package telemetry

import (
	"log/slog"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/pthm-cable/starfield/pool"
)

// WindowStats is one telemetry window: the latest pool snapshot plus frame
// timing aggregates, flattened for CSV export.
type WindowStats struct {
	WindowEnd   int64   `csv:"window_end_frame"`
	ElapsedSec  float64 `csv:"elapsed_sec"`
	Created     int64   `csv:"pool_created"`
	Reused      int64   `csv:"pool_reused"`
	Active      int     `csv:"pool_active"`
	Capacity    int     `csv:"pool_capacity"`
	Utilization float64 `csv:"pool_utilization"`
	ReuseRatio  float64 `csv:"pool_reuse_ratio"`

	FrameMeanMs   float64 `csv:"frame_mean_ms"`
	FrameStddevMs float64 `csv:"frame_stddev_ms"`
	FrameMaxMs    float64 `csv:"frame_max_ms"`
	FPS           float64 `csv:"fps"`
	Quality       float64 `csv:"quality"`
	DrawBatches   int     `csv:"draw_batches"`
	DrawnPoints   int     `csv:"drawn_points"`
	DrawnTrails   int     `csv:"drawn_trails"`
}

// LogValue implements slog.LogValuer.
func (w WindowStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int64("window_end_frame", w.WindowEnd),
		slog.Int64("pool_created", w.Created),
		slog.Int64("pool_reused", w.Reused),
		slog.Int("pool_active", w.Active),
		slog.Int("pool_capacity", w.Capacity),
		slog.Float64("pool_utilization", w.Utilization),
		slog.Float64("pool_reuse_ratio", w.ReuseRatio),
		slog.Float64("frame_mean_ms", w.FrameMeanMs),
		slog.Float64("frame_stddev_ms", w.FrameStddevMs),
		slog.Float64("fps", w.FPS),
		slog.Float64("quality", w.Quality),
	)
}

// Collector accumulates per-frame observations and emits WindowStats once
// per window. Pool snapshots arrive through the pool's batched stats sink,
// never per operation.
type Collector struct {
	windowSec float64

	frame       int64
	windowStart time.Time
	frameMs     []float64

	lastPool pool.Stats
	quality  float64
	batches  int
	points   int
	trails   int

	now func() time.Time
}

// NewCollector creates a collector emitting one window every windowSec.
func NewCollector(windowSec float64) *Collector {
	if windowSec <= 0 {
		windowSec = 5
	}
	c := &Collector{
		windowSec: windowSec,
		frameMs:   make([]float64, 0, 1024),
		now:       time.Now,
	}
	c.windowStart = c.now()
	return c
}

// PoolSink returns the callback to install as a pool statistics sink.
func (c *Collector) PoolSink() func(pool.Stats) {
	return func(s pool.Stats) { c.lastPool = s }
}

// RecordFrame adds one frame's observations to the open window.
func (c *Collector) RecordFrame(frameTime time.Duration, quality float64, batches, points, trails int) {
	c.frame++
	c.frameMs = append(c.frameMs, float64(frameTime)/float64(time.Millisecond))
	c.quality = quality
	c.batches += batches
	c.points += points
	c.trails += trails
}

// WindowReady reports whether the current window has elapsed.
func (c *Collector) WindowReady() bool {
	return c.now().Sub(c.windowStart).Seconds() >= c.windowSec
}

// Flush closes the window and returns its aggregate. Frame-time spread uses
// gonum's moment estimators so jitter shows up alongside the mean.
func (c *Collector) Flush() WindowStats {
	elapsed := c.now().Sub(c.windowStart).Seconds()

	w := WindowStats{
		WindowEnd:   c.frame,
		ElapsedSec:  elapsed,
		Created:     c.lastPool.Created,
		Reused:      c.lastPool.Reused,
		Active:      c.lastPool.Active,
		Capacity:    c.lastPool.Capacity,
		Utilization: c.lastPool.UtilizationRate,
		ReuseRatio:  c.lastPool.ReuseRatio,
		Quality:     c.quality,
		DrawBatches: c.batches,
		DrawnPoints: c.points,
		DrawnTrails: c.trails,
	}

	if len(c.frameMs) > 0 {
		mean, std := stat.MeanStdDev(c.frameMs, nil)
		w.FrameMeanMs = mean
		w.FrameStddevMs = std
		maxMs := c.frameMs[0]
		for _, v := range c.frameMs[1:] {
			if v > maxMs {
				maxMs = v
			}
		}
		w.FrameMaxMs = maxMs
		if mean > 0 {
			w.FPS = 1000 / mean
		}
	}

	c.frameMs = c.frameMs[:0]
	c.batches, c.points, c.trails = 0, 0, 0
	c.windowStart = c.now()
	return w
}
