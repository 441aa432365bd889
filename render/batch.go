package render

import (
	rl "github.com/gen2brain/raylib-go/raylib"

	"github.com/pthm-cable/starfield/quality"
)

// Surface is the minimal draw target the batch renderer needs. Keeping it an
// interface lets batching be exercised headless; RaylibSurface is the
// production implementation.
type Surface interface {
	FillCircle(x, y, radius float32, c rl.Color)
	FillRect(x, y, w, h float32, c rl.Color)
	StrokeLine(x1, y1, x2, y2, width float32, c rl.Color)
}

// RaylibSurface draws on the current raylib frame.
type RaylibSurface struct{}

func (RaylibSurface) FillCircle(x, y, radius float32, c rl.Color) {
	rl.DrawCircleV(rl.Vector2{X: x, Y: y}, radius, c)
}

func (RaylibSurface) FillRect(x, y, w, h float32, c rl.Color) {
	rl.DrawRectangleRec(rl.Rectangle{X: x, Y: y, Width: w, Height: h}, c)
}

func (RaylibSurface) StrokeLine(x1, y1, x2, y2, width float32, c rl.Color) {
	rl.DrawLineEx(rl.Vector2{X: x1, Y: y1}, rl.Vector2{X: x2, Y: y2}, width, c)
}

// Draw modes used as batch keys.
const (
	modePoint = iota
	modeTrail
)

// batchKey groups particles sharing draw state.
type batchKey struct {
	mode       uint8
	sizeGroup  uint8
	colorIndex uint8
}

// DrawCounts summarizes one frame's draw activity for telemetry and tests.
type DrawCounts struct {
	Batches  int
	Points   int
	Trails   int
	Glows    int
	Fallback bool
}

// BatchRenderer groups projected particles by (mode, size group, color) so
// draw-state changes stay far below particle count. Batch storage is reused
// across frames.
type BatchRenderer struct {
	palette []rl.Color
	glow    bool

	batches map[batchKey]*batch
	order   []batchKey // stable-ish flush order, rebuilt per frame
}

type batch struct {
	items []Projected
}

// NewBatchRenderer creates a renderer over the given palette.
func NewBatchRenderer(palette []rl.Color, glow bool) *BatchRenderer {
	if len(palette) == 0 {
		palette = []rl.Color{rl.White}
	}
	return &BatchRenderer{
		palette: palette,
		glow:    glow,
		batches: make(map[batchKey]*batch, 32),
	}
}

// SetPalette swaps the palette used to resolve color indices.
func (r *BatchRenderer) SetPalette(palette []rl.Color) {
	if len(palette) > 0 {
		r.palette = palette
	}
}

// SetGlow toggles the glow pass.
func (r *BatchRenderer) SetGlow(on bool) { r.glow = on }

// Draw renders the projected set. Under the quality state's fallback
// threshold it switches to the simplified path: axis-aligned squares grouped
// by color only, no glow.
func (r *BatchRenderer) Draw(s Surface, projected []Projected, q quality.State) DrawCounts {
	if q.FallbackEnabled {
		return r.drawFallback(s, projected)
	}
	return r.drawBatched(s, projected, q)
}

func (r *BatchRenderer) drawBatched(s Surface, projected []Projected, q quality.State) DrawCounts {
	var counts DrawCounts

	maxBatch := q.BatchSize
	if maxBatch < 1 {
		maxBatch = 1
	}

	r.order = r.order[:0]
	for i := range projected {
		p := &projected[i]
		key := batchKey{mode: modePoint, sizeGroup: p.SizeGroup, colorIndex: p.ColorIndex}
		if p.Trail {
			key.mode = modeTrail
		}
		b, ok := r.batches[key]
		if !ok {
			b = &batch{items: make([]Projected, 0, maxBatch)}
			r.batches[key] = b
		}
		if len(b.items) == 0 {
			r.order = append(r.order, key)
		}
		b.items = append(b.items, *p)

		// Cap forces an early flush instead of unbounded batch growth.
		if len(b.items) >= maxBatch {
			r.flushBatch(s, key, b, q, &counts)
		}
	}

	for _, key := range r.order {
		b := r.batches[key]
		if len(b.items) > 0 {
			r.flushBatch(s, key, b, q, &counts)
		}
	}
	return counts
}

// flushBatch issues the draw calls for one batch and truncates it in place.
func (r *BatchRenderer) flushBatch(s Surface, key batchKey, b *batch, q quality.State, counts *DrawCounts) {
	color := r.color(key.colorIndex)
	counts.Batches++

	// Glow is a per-batch decision, never per particle, and only under the
	// adaptive cap so the worst case stays bounded.
	if r.glow && key.mode == modePoint && len(b.items) <= q.MaxGlowCount {
		glowColor := color
		glowColor.A = 60
		for i := range b.items {
			p := &b.items[i]
			s.FillCircle(p.X, p.Y, p.Size*2.5+1, glowColor)
		}
		counts.Glows += len(b.items)
	}

	switch key.mode {
	case modeTrail:
		for i := range b.items {
			p := &b.items[i]
			s.StrokeLine(p.PrevX, p.PrevY, p.X, p.Y, maxf(p.Size, 0.5), color)
		}
		counts.Trails += len(b.items)
	default:
		for i := range b.items {
			p := &b.items[i]
			s.FillCircle(p.X, p.Y, maxf(p.Size, 0.5), color)
		}
		counts.Points += len(b.items)
	}

	b.items = b.items[:0]
}

// drawFallback is the simplified path: color-only grouping, squares, no glow.
func (r *BatchRenderer) drawFallback(s Surface, projected []Projected) DrawCounts {
	counts := DrawCounts{Fallback: true}

	r.order = r.order[:0]
	for i := range projected {
		p := &projected[i]
		key := batchKey{mode: modePoint, colorIndex: p.ColorIndex}
		b, ok := r.batches[key]
		if !ok {
			b = &batch{items: make([]Projected, 0, 64)}
			r.batches[key] = b
		}
		if len(b.items) == 0 {
			r.order = append(r.order, key)
		}
		b.items = append(b.items, *p)
	}

	for _, key := range r.order {
		b := r.batches[key]
		if len(b.items) == 0 {
			continue
		}
		counts.Batches++
		color := r.color(key.colorIndex)
		for i := range b.items {
			p := &b.items[i]
			side := maxf(p.Size, 1)
			s.FillRect(p.X-side/2, p.Y-side/2, side, side, color)
		}
		counts.Points += len(b.items)
		b.items = b.items[:0]
	}
	return counts
}

func (r *BatchRenderer) color(idx uint8) rl.Color {
	if int(idx) >= len(r.palette) {
		return r.palette[len(r.palette)-1]
	}
	return r.palette[idx]
}

func maxf(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}
