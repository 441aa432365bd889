// Package render projects the particle field to screen space and draws it
// with batched, state-change-minimizing calls.
package render

import (
	rl "github.com/gen2brain/raylib-go/raylib"

	"github.com/pthm-cable/starfield/particle"
)

// depthBuckets is the resolution of the depth-quantized size/color cache.
const depthBuckets = 64

// sizeGroups is the number of size buckets used as batch keys.
const sizeGroups = 6

// Projected is a particle mapped to screen space. Recomputed every frame,
// never persisted beyond the draw that consumes it.
type Projected struct {
	Index      int32
	X, Y       float32
	PrevX      float32
	PrevY      float32
	Size       float32
	SizeGroup  uint8
	ColorIndex uint8
	Trail      bool
}

// depthEntry is one precomputed bucket of the depth lookup table.
type depthEntry struct {
	size       float32
	sizeGroup  uint8
	colorIndex uint8
}

// Projector maps buffer records to Projected records using a simplified
// pinhole approximation. Size and color are functions of depth alone, so
// both live in a lookup table rebuilt only when scale or palette changes.
type Projector struct {
	width, height  float32
	centerX        float32
	centerY        float32
	maxDepth       float32
	margin         float32
	scale          float32
	maxSize        float32
	trailThreshold float32
	palette        []rl.Color

	lut [depthBuckets]depthEntry
}

// ProjectorParams configures a Projector.
type ProjectorParams struct {
	Width, Height  float32
	MaxDepth       float32
	Margin         float32
	Scale          float32
	MaxSize        float32
	TrailThreshold float32
	Palette        []rl.Color
}

// NewProjector creates a projector and builds the depth table.
func NewProjector(p ProjectorParams) *Projector {
	pr := &Projector{
		width:          p.Width,
		height:         p.Height,
		centerX:        p.Width / 2,
		centerY:        p.Height / 2,
		maxDepth:       p.MaxDepth,
		margin:         p.Margin,
		scale:          p.Scale,
		maxSize:        p.MaxSize,
		trailThreshold: p.TrailThreshold,
		palette:        p.Palette,
	}
	if pr.scale <= 0 {
		pr.scale = 1
	}
	if pr.maxSize <= 0 {
		pr.maxSize = 3
	}
	if len(pr.palette) == 0 {
		pr.palette = []rl.Color{rl.White}
	}
	pr.rebuildLUT()
	return pr
}

// SetDims updates screen bounds and recenters. The depth table depends only
// on scale and palette, so no rebuild happens here.
func (p *Projector) SetDims(width, height float32) {
	if width <= 0 || height <= 0 {
		return
	}
	p.width, p.height = width, height
	p.centerX, p.centerY = width/2, height/2
}

// SetScale updates the device pixel scale and rebuilds the depth table.
func (p *Projector) SetScale(scale float32) {
	if scale <= 0 || scale == p.scale {
		return
	}
	p.scale = scale
	p.rebuildLUT()
}

// SetPalette swaps the color palette and rebuilds the depth table.
func (p *Projector) SetPalette(palette []rl.Color) {
	if len(palette) == 0 {
		return
	}
	p.palette = palette
	p.rebuildLUT()
}

// SetMaxDepth updates the far plane and rebuilds the depth table.
func (p *Projector) SetMaxDepth(d float32) {
	if d <= 0 || d == p.maxDepth {
		return
	}
	p.maxDepth = d
	p.rebuildLUT()
}

// Palette returns the active palette; batch draws index into it.
func (p *Projector) Palette() []rl.Color { return p.palette }

// Size returns the projected point size for depth z: zero at the far plane,
// maximal as z approaches the viewer, quantized to the depth table.
func (p *Projector) Size(z float32) float32 {
	return p.lut[p.bucket(z)].size
}

// ProjectInto projects the given buffer indices, appending survivors to dst
// and returning it. Records projecting outside the canvas plus margin are
// discarded; the margin compensates for the coarseness of the cell-level
// cull. Each projected record's screen position is written back to the
// buffer as the previous position for next frame's trail.
func (p *Projector) ProjectInto(dst []Projected, b *particle.Buffer, indices []int32, trails bool) []Projected {
	for _, idx := range indices {
		i := int(idx)
		z := b.Z(i)
		if z <= 0 {
			// Recycle is owed before the next read; skip rather than divide
			// by zero if a stale record slips through.
			continue
		}
		k := p.maxDepth / z
		sx := (b.X(i)-p.centerX)*k + p.centerX
		sy := (b.Y(i)-p.centerY)*k + p.centerY

		if sx < -p.margin || sx > p.width+p.margin || sy < -p.margin || sy > p.height+p.margin {
			b.SetPrevScreen(i, sx, sy)
			continue
		}

		e := p.lut[p.bucket(z)]
		pr := Projected{
			Index:      idx,
			X:          sx,
			Y:          sy,
			Size:       e.size,
			SizeGroup:  e.sizeGroup,
			ColorIndex: e.colorIndex,
		}
		if trails && b.HasPrevScreen(i) {
			px, py := b.PrevScreen(i)
			dx, dy := sx-px, sy-py
			if dx*dx+dy*dy >= p.trailThreshold*p.trailThreshold {
				pr.PrevX, pr.PrevY = px, py
				pr.Trail = true
			}
		}
		b.SetPrevScreen(i, sx, sy)
		dst = append(dst, pr)
	}
	return dst
}

// bucket quantizes depth to a table index. Depths beyond the far plane clamp
// into the last bucket, which carries size zero.
func (p *Projector) bucket(z float32) int {
	q := int(z / p.maxDepth * depthBuckets)
	if q < 0 {
		return 0
	}
	if q >= depthBuckets {
		return depthBuckets - 1
	}
	return q
}

// rebuildLUT recomputes the size/color table. Each bucket's size is taken at
// its far edge so the last bucket, which contains z == maxDepth, is exactly
// zero, and size grows monotonically toward the viewer.
func (p *Projector) rebuildLUT() {
	for q := 0; q < depthBuckets; q++ {
		farEdge := float32(q+1) / depthBuckets // normalized depth of bucket far edge
		size := (1 - farEdge) * p.maxSize * p.scale

		// Normalized nearness picks the palette entry: far -> first color,
		// near -> last.
		nearness := 1 - float32(q)/float32(depthBuckets-1)
		ci := int(nearness * float32(len(p.palette)-1))
		if ci < 0 {
			ci = 0
		}
		if ci >= len(p.palette) {
			ci = len(p.palette) - 1
		}

		sg := uint8(float64(size) / float64(p.maxSize*p.scale) * (sizeGroups - 1))
		if sg >= sizeGroups {
			sg = sizeGroups - 1
		}

		p.lut[q] = depthEntry{size: size, sizeGroup: sg, colorIndex: uint8(ci)}
	}
}
