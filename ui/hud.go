// Package ui draws the stats readout and the raygui tuning panel on top of
// the particle field.
package ui

import (
	"fmt"

	rl "github.com/gen2brain/raylib-go/raylib"
)

// HUDData holds everything the readout displays for one frame.
type HUDData struct {
	FPS           int32
	ParticleCount int
	Visible       int
	Quality       float64
	Batches       int
	Points        int
	Trails        int
	Glows         int
	Fallback      bool
	Boost         bool
	PoolActive    int
	PoolCapacity  int
	ReuseRatio    float64
}

// DrawHUD renders the stats readout in the top-left corner.
func DrawHUD(d HUDData) {
	rl.DrawText("Starfield", 10, 10, 20, rl.White)

	rl.DrawText(
		fmt.Sprintf("FPS: %d | Particles: %d | Visible: %d | Quality: %.2f",
			d.FPS, d.ParticleCount, d.Visible, d.Quality),
		10, 35, 16, rl.LightGray,
	)

	rl.DrawText(
		fmt.Sprintf("Batches: %d | Points: %d | Trails: %d | Glows: %d",
			d.Batches, d.Points, d.Trails, d.Glows),
		10, 55, 16, rl.LightGray,
	)

	rl.DrawText(
		fmt.Sprintf("Spark pool: %d/%d | Reuse: %.0f%%",
			d.PoolActive, d.PoolCapacity, d.ReuseRatio*100),
		10, 75, 16, rl.LightGray,
	)

	switch {
	case d.Fallback:
		rl.DrawText("FALLBACK", 10, 95, 16, rl.Orange)
	case d.Boost:
		rl.DrawText("BOOST", 10, 95, 16, rl.Yellow)
	}

	rl.DrawText("TAB: panel | SPACE: boost | R: reset", 10, 115, 14, rl.Gray)
}
