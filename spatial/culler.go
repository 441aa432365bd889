// Package spatial buckets the particle field into a coarse 3-D grid each
// frame and culls whole cells against a simplified view frustum, bounding
// projection and draw cost before per-particle work starts.
package spatial

import (
	"github.com/pthm-cable/starfield/particle"
)

// DefaultGridSize is the cells-per-axis default; the grid stays deliberately
// coarse so rebucketing is cheap relative to what culling saves.
const DefaultGridSize = 4

// Culler owns the per-frame grid. Cell slices are truncated and refilled
// every frame, never reallocated, so steady-state operation allocates
// nothing.
type Culler struct {
	g        int
	width    float32
	height   float32
	maxDepth float32
	margin   float32

	cells [][]int32
}

// NewCuller creates a culler over the given screen dimensions and far plane.
// margin is the projector's off-screen discard margin in pixels; the far
// band bound widens by it so cell-level culling never drops what the
// projector would keep.
func NewCuller(gridSize int, width, height, maxDepth, margin float32) *Culler {
	if gridSize < 2 {
		gridSize = DefaultGridSize
	}
	c := &Culler{
		g:        gridSize,
		width:    width,
		height:   height,
		maxDepth: maxDepth,
		margin:   margin,
	}
	c.cells = make([][]int32, gridSize*gridSize*gridSize)
	for i := range c.cells {
		c.cells[i] = make([]int32, 0, 16)
	}
	return c
}

// SetDims updates screen bounds after a resize.
func (c *Culler) SetDims(width, height float32) {
	if width > 0 {
		c.width = width
	}
	if height > 0 {
		c.height = height
	}
}

// SetMaxDepth updates the far plane after a config change.
func (c *Culler) SetMaxDepth(d float32) {
	if d > 0 {
		c.maxDepth = d
	}
}

// VisibleInto buckets every active particle, tests each cell against the
// frustum approximation, and appends the indices of particles in visible
// cells to dst. Pass last frame's slice truncated to zero length to reuse
// its capacity.
func (c *Culler) VisibleInto(dst []int32, b *particle.Buffer) []int32 {
	for i := range c.cells {
		c.cells[i] = c.cells[i][:0]
	}

	for i := 0; i < b.Count(); i++ {
		if !b.Active(i) {
			continue
		}
		gx := c.axisCell(b.X(i), c.width)
		gy := c.axisCell(b.Y(i), c.height)
		gz := c.axisCell(b.Z(i), c.maxDepth)
		idx := (gz*c.g+gy)*c.g + gx
		c.cells[idx] = append(c.cells[idx], int32(i))
	}

	for gz := 0; gz < c.g; gz++ {
		for gy := 0; gy < c.g; gy++ {
			for gx := 0; gx < c.g; gx++ {
				cell := c.cells[(gz*c.g+gy)*c.g+gx]
				if len(cell) == 0 {
					continue
				}
				if c.cellVisible(gx, gy, gz) {
					dst = append(dst, cell...)
				}
			}
		}
	}
	return dst
}

// cellVisible is the coarse frustum test. Perspective magnification pushes
// points away from screen center, so the world-space region that can project
// on screen shrinks as depth falls. The banded bounds below always contain
// that region; false positives are accepted, false negatives are not, so
// there is no pop-in at cell boundaries.
func (c *Culler) cellVisible(gx, gy, gz int) bool {
	if gz == 0 {
		// Nearest band: always drawn.
		return true
	}

	cw := c.width / float32(c.g)
	ch := c.height / float32(c.g)
	minX := float32(gx) * cw
	minY := float32(gy) * ch
	maxX := minX + cw
	maxY := minY + ch

	var bx0, by0, bx1, by1 float32
	if gz == c.g-1 {
		// Far band: depth near the far plane projects close to identity,
		// so the screen rect plus the projector margin bounds it.
		bx0, by0 = -c.margin, -c.margin
		bx1, by1 = c.width+c.margin, c.height+c.margin
	} else {
		// Middle bands: a generously widened screen-space bound.
		bx0, by0 = -c.width/2, -c.height/2
		bx1, by1 = c.width*1.5, c.height*1.5
	}

	return maxX >= bx0 && minX <= bx1 && maxY >= by0 && minY <= by1
}

// axisCell quantizes a coordinate to a grid cell, clamping outliers into the
// boundary cells so out-of-range records still land somewhere testable.
func (c *Culler) axisCell(v, extent float32) int {
	if extent <= 0 {
		return 0
	}
	cell := int(v / extent * float32(c.g))
	if cell < 0 {
		return 0
	}
	if cell >= c.g {
		return c.g - 1
	}
	return cell
}
