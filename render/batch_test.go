package render

import (
	"testing"

	rl "github.com/gen2brain/raylib-go/raylib"

	"github.com/pthm-cable/starfield/quality"
)

// recordingSurface captures draw calls for assertions.
type recordingSurface struct {
	circles []rl.Color
	rects   []rl.Color
	lines   []rl.Color
}

func (r *recordingSurface) FillCircle(x, y, radius float32, c rl.Color) {
	r.circles = append(r.circles, c)
}

func (r *recordingSurface) FillRect(x, y, w, h float32, c rl.Color) {
	r.rects = append(r.rects, c)
}

func (r *recordingSurface) StrokeLine(x1, y1, x2, y2, width float32, c rl.Color) {
	r.lines = append(r.lines, c)
}

func fullQuality() quality.State {
	return quality.State{Quality: 1, MaxGlowCount: 48, BatchSize: 256}
}

func testPalette() []rl.Color {
	return []rl.Color{rl.Gray, rl.LightGray, rl.White}
}

func makeProjected(n int, sizeGroup, colorIndex uint8, trail bool) []Projected {
	out := make([]Projected, n)
	for i := range out {
		out[i] = Projected{
			Index:      int32(i),
			X:          float32(i * 10),
			Y:          float32(i * 5),
			PrevX:      float32(i*10 - 4),
			PrevY:      float32(i*5 - 4),
			Size:       2,
			SizeGroup:  sizeGroup,
			ColorIndex: colorIndex,
			Trail:      trail,
		}
	}
	return out
}

func TestBatchRenderer_GroupsByModeSizeColor(t *testing.T) {
	r := NewBatchRenderer(testPalette(), false)
	s := &recordingSurface{}

	var projected []Projected
	projected = append(projected, makeProjected(10, 0, 0, false)...)
	projected = append(projected, makeProjected(10, 1, 0, false)...)
	projected = append(projected, makeProjected(10, 0, 1, false)...)
	projected = append(projected, makeProjected(5, 0, 0, true)...)

	counts := r.Draw(s, projected, fullQuality())

	if counts.Batches != 4 {
		t.Errorf("batches = %d, want 4 distinct (mode,size,color) groups", counts.Batches)
	}
	if counts.Points != 30 || counts.Trails != 5 {
		t.Errorf("points=%d trails=%d, want 30/5", counts.Points, counts.Trails)
	}
	if len(s.circles) != 30 || len(s.lines) != 5 {
		t.Errorf("drew %d circles and %d lines, want 30/5", len(s.circles), len(s.lines))
	}
}

func TestBatchRenderer_CapForcesEarlyFlush(t *testing.T) {
	r := NewBatchRenderer(testPalette(), false)
	s := &recordingSurface{}

	q := fullQuality()
	q.BatchSize = 8

	counts := r.Draw(s, makeProjected(20, 0, 0, false), q)

	// 20 identical particles with a cap of 8: two early flushes plus the
	// remainder.
	if counts.Batches != 3 {
		t.Errorf("batches = %d, want 3 flushes at cap 8", counts.Batches)
	}
	if counts.Points != 20 {
		t.Errorf("points = %d, want 20", counts.Points)
	}
}

func TestBatchRenderer_GlowOnlyUnderCap(t *testing.T) {
	r := NewBatchRenderer(testPalette(), true)

	q := fullQuality()
	q.MaxGlowCount = 8

	// Small batch glows: one glow circle plus one body circle per particle.
	s := &recordingSurface{}
	counts := r.Draw(s, makeProjected(5, 0, 0, false), q)
	if counts.Glows != 5 {
		t.Errorf("glows = %d for small batch, want 5", counts.Glows)
	}
	if len(s.circles) != 10 {
		t.Errorf("drew %d circles, want 10 (glow + body)", len(s.circles))
	}

	// Oversized batch draws no glow at all.
	s = &recordingSurface{}
	counts = r.Draw(s, makeProjected(9, 0, 0, false), q)
	if counts.Glows != 0 {
		t.Errorf("glows = %d for oversized batch, want 0", counts.Glows)
	}
	if len(s.circles) != 9 {
		t.Errorf("drew %d circles, want 9 bodies only", len(s.circles))
	}
}

func TestBatchRenderer_GlowDisabled(t *testing.T) {
	r := NewBatchRenderer(testPalette(), false)
	s := &recordingSurface{}

	counts := r.Draw(s, makeProjected(5, 0, 0, false), fullQuality())
	if counts.Glows != 0 {
		t.Errorf("glows = %d with glow disabled, want 0", counts.Glows)
	}
}

func TestBatchRenderer_FallbackPath(t *testing.T) {
	r := NewBatchRenderer(testPalette(), true)
	s := &recordingSurface{}

	q := quality.State{Quality: 0.2, FallbackEnabled: true, BatchSize: 32, MaxGlowCount: 9}

	var projected []Projected
	projected = append(projected, makeProjected(10, 0, 0, false)...)
	projected = append(projected, makeProjected(10, 1, 0, false)...) // same color, different size
	projected = append(projected, makeProjected(10, 0, 2, true)...)  // trails collapse to squares

	counts := r.Draw(s, projected, q)

	if !counts.Fallback {
		t.Error("fallback flag not set")
	}
	// Color-only grouping: size groups 0 and 1 with color 0 merge.
	if counts.Batches != 2 {
		t.Errorf("batches = %d, want 2 color groups", counts.Batches)
	}
	if len(s.rects) != 30 {
		t.Errorf("drew %d rects, want 30", len(s.rects))
	}
	if len(s.circles) != 0 || len(s.lines) != 0 {
		t.Error("fallback drew circles or lines")
	}
	if counts.Glows != 0 {
		t.Error("fallback drew glow")
	}
}

func TestBatchRenderer_ReusesBatchStorage(t *testing.T) {
	r := NewBatchRenderer(testPalette(), false)
	s := &recordingSurface{}

	projected := makeProjected(50, 0, 0, false)
	first := r.Draw(s, projected, fullQuality())
	for frame := 0; frame < 5; frame++ {
		counts := r.Draw(s, projected, fullQuality())
		if counts != first {
			t.Fatalf("frame %d: counts %+v differ from first frame %+v", frame, counts, first)
		}
	}
}
