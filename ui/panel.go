package ui

import (
	"fmt"

	gui "github.com/gen2brain/raylib-go/raygui"
	rl "github.com/gen2brain/raylib-go/raylib"
)

const (
	panelWidth  = 280
	panelMargin = 10
)

// PanelState mirrors the tunables the panel edits. The host applies Changed
// values back into the config and the scene.
type PanelState struct {
	ParticleCount float32
	QualityFloor  float32
	Boost         bool
	Glow          bool

	Changed        bool
	ResetRequested bool
}

// Panel is the tuning panel, drawn over the field when visible.
type Panel struct {
	visible bool
}

// Toggle flips panel visibility.
func (p *Panel) Toggle() { p.visible = !p.visible }

// Visible reports whether the panel is shown.
func (p *Panel) Visible() bool { return p.visible }

// Draw renders the panel and mutates st with any edits, setting st.Changed
// when a value moved. No-op while hidden.
func (p *Panel) Draw(st *PanelState, screenWidth int32) {
	if !p.visible {
		return
	}

	x := float32(screenWidth - panelWidth - panelMargin)
	y := float32(panelMargin)

	rl.DrawRectangle(int32(x)-10, int32(y)-5, panelWidth+15, 215, rl.Color{R: 20, G: 20, B: 28, A: 220})
	rl.DrawText("Tuning", int32(x), int32(y), 20, rl.White)
	y += 30

	rl.DrawText("Particle count", int32(x), int32(y), 14, rl.Gray)
	y += 18
	count := gui.SliderBar(
		rl.Rectangle{X: x, Y: y, Width: panelWidth - 80, Height: 20},
		"50", "2000",
		st.ParticleCount, 50, 2000,
	)
	rl.DrawText(fmt.Sprintf("%d", int(st.ParticleCount)), int32(x+panelWidth-70), int32(y+2), 16, rl.LightGray)
	if int(count) != int(st.ParticleCount) {
		st.ParticleCount = count
		st.Changed = true
	}
	y += 35

	rl.DrawText("Quality floor", int32(x), int32(y), 14, rl.Gray)
	y += 18
	floor := gui.SliderBar(
		rl.Rectangle{X: x, Y: y, Width: panelWidth - 80, Height: 20},
		"0.1", "1.0",
		st.QualityFloor, 0.1, 1.0,
	)
	rl.DrawText(fmt.Sprintf("%.2f", st.QualityFloor), int32(x+panelWidth-70), int32(y+2), 16, rl.LightGray)
	if floor != st.QualityFloor {
		st.QualityFloor = floor
		st.Changed = true
	}
	y += 35

	if gui.Button(rl.Rectangle{X: x, Y: y, Width: 120, Height: 30}, toggleText(st.Boost, "Boost: on", "Boost: off")) {
		st.Boost = !st.Boost
		st.Changed = true
	}
	if gui.Button(rl.Rectangle{X: x + 130, Y: y, Width: 120, Height: 30}, toggleText(st.Glow, "Glow: on", "Glow: off")) {
		st.Glow = !st.Glow
		st.Changed = true
	}
	y += 40

	if gui.Button(rl.Rectangle{X: x, Y: y, Width: 120, Height: 30}, "Reset field") {
		st.ResetRequested = true
	}
}

func toggleText(on bool, whenOn, whenOff string) string {
	if on {
		return whenOn
	}
	return whenOff
}
