package main

import (
	"flag"
	"log/slog"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
	rl "github.com/gen2brain/raylib-go/raylib"

	"github.com/pthm-cable/starfield/config"
	"github.com/pthm-cable/starfield/render"
	"github.com/pthm-cable/starfield/scene"
	"github.com/pthm-cable/starfield/telemetry"
	"github.com/pthm-cable/starfield/ui"
)

// nullSurface discards draw calls; headless runs exercise the full pipeline
// including batching without a window.
type nullSurface struct{}

func (nullSurface) FillCircle(x, y, radius float32, c rl.Color)          {}
func (nullSurface) FillRect(x, y, w, h float32, c rl.Color)              {}
func (nullSurface) StrokeLine(x1, y1, x2, y2, width float32, c rl.Color) {}

func main() {
	configPath := flag.String("config", "", "Path to config.yaml (empty = use defaults)")
	headless := flag.Bool("headless", false, "Run without graphics")
	logStats := flag.Bool("log-stats", false, "Output window stats via slog")
	outputDir := flag.String("output-dir", "", "Output directory for CSV logs and config snapshot")
	seed := flag.Int64("seed", 0, "RNG seed (0 = time-based)")
	maxFrames := flag.Int("max-frames", 0, "Stop after N frames (0 = unlimited)")
	noWorker := flag.Bool("no-worker", false, "Step the simulation in-process instead of on a worker")

	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if *noWorker {
		cfg.Sim.Worker = false
	}

	rngSeed := *seed
	if rngSeed == 0 {
		rngSeed = time.Now().UnixNano()
	}

	output, err := telemetry.NewOutputManager(*outputDir)
	if err != nil {
		slog.Error("failed to create output directory", "error", err)
		os.Exit(1)
	}
	defer output.Close()

	reload := watchConfig(*configPath)

	slog.Info("starting starfield",
		"seed", rngSeed,
		"headless", *headless,
		"worker", cfg.Sim.Worker,
		"particles", cfg.Particles.Count,
	)

	if *headless {
		runHeadless(cfg, rngSeed, output, *logStats, *maxFrames, *configPath, reload)
		return
	}
	runWindowed(cfg, rngSeed, output, *logStats, *maxFrames, *configPath, reload)
}

// watchConfig watches the config file and signals on writes. Returns nil when
// there is nothing to watch.
func watchConfig(path string) <-chan struct{} {
	if path == "" {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Warn("config watcher unavailable", "error", err)
		return nil
	}
	if err := watcher.Add(path); err != nil {
		slog.Warn("cannot watch config file", "path", path, "error", err)
		watcher.Close()
		return nil
	}

	ch := make(chan struct{}, 1)
	go func() {
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Op.Has(fsnotify.Write) || ev.Op.Has(fsnotify.Create) {
					select {
					case ch <- struct{}{}:
					default:
					}
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Warn("config watcher error", "error", err)
			}
		}
	}()
	return ch
}

// maybeReload picks up a pending watcher signal and applies the reloaded
// file to the scene.
func maybeReload(sc *scene.Scene, path string, reload <-chan struct{}) {
	if reload == nil {
		return
	}
	select {
	case <-reload:
		cfg, err := config.Load(path)
		if err != nil {
			slog.Warn("config reload failed", "error", err)
			return
		}
		slog.Info("config reloaded", "path", path)
		sc.UpdateConfig(cfg)
	default:
	}
}

func runHeadless(cfg *config.Config, seed int64, output *telemetry.OutputManager, logStats bool, maxFrames int, configPath string, reload <-chan struct{}) {
	sc := scene.New(cfg, seed, output, logStats)
	defer sc.Stop()

	dt := float32(1) / float32(cfg.Screen.TargetFPS)
	surface := nullSurface{}

	for frame := 0; ; frame++ {
		maybeReload(sc, configPath, reload)
		sc.Frame(surface, dt)
		if maxFrames > 0 && frame+1 >= maxFrames {
			slog.Info("max frames reached", "frames", frame+1)
			return
		}
	}
}

func runWindowed(cfg *config.Config, seed int64, output *telemetry.OutputManager, logStats bool, maxFrames int, configPath string, reload <-chan struct{}) {
	rl.InitWindow(int32(cfg.Screen.Width), int32(cfg.Screen.Height), "Starfield")
	defer rl.CloseWindow()
	rl.SetTargetFPS(int32(cfg.Screen.TargetFPS))

	sc := scene.New(cfg, seed, output, logStats)
	defer sc.Stop()

	var panel ui.Panel
	panelState := ui.PanelState{
		ParticleCount: float32(cfg.Particles.Count),
		QualityFloor:  float32(cfg.Quality.Floor),
		Glow:          cfg.Render.Glow,
	}
	surface := render.RaylibSurface{}

	for frame := 0; !rl.WindowShouldClose(); frame++ {
		maybeReload(sc, configPath, reload)
		handleInput(sc, &panel, &panelState)

		rl.BeginDrawing()
		rl.ClearBackground(rl.Color{R: 8, G: 10, B: 18, A: 255})

		sc.Frame(surface, rl.GetFrameTime())

		counts := sc.Counts()
		sparkStats := sc.SparkStats()
		ui.DrawHUD(ui.HUDData{
			FPS:           rl.GetFPS(),
			ParticleCount: sc.ParticleCount(),
			Visible:       sc.VisibleCount(),
			Quality:       sc.Quality(),
			Batches:       counts.Batches,
			Points:        counts.Points,
			Trails:        counts.Trails,
			Glows:         counts.Glows,
			Fallback:      counts.Fallback,
			Boost:         sc.Boost(),
			PoolActive:    sparkStats.Active,
			PoolCapacity:  sparkStats.Capacity,
			ReuseRatio:    sparkStats.ReuseRatio,
		})
		panel.Draw(&panelState, int32(cfg.Screen.Width))
		rl.EndDrawing()

		applyPanel(sc, &panelState)

		if maxFrames > 0 && frame+1 >= maxFrames {
			break
		}
	}
}

func handleInput(sc *scene.Scene, panel *ui.Panel, st *ui.PanelState) {
	if rl.IsKeyPressed(rl.KeyTab) {
		panel.Toggle()
	}
	if rl.IsKeyPressed(rl.KeySpace) {
		st.Boost = !st.Boost
		sc.SetBoost(st.Boost)
	}
	if rl.IsKeyPressed(rl.KeyR) {
		sc.Reset()
	}
}

// applyPanel pushes panel edits into the config and the scene.
func applyPanel(sc *scene.Scene, st *ui.PanelState) {
	if st.ResetRequested {
		st.ResetRequested = false
		sc.Reset()
	}
	if !st.Changed {
		return
	}
	st.Changed = false

	sc.SetBoost(st.Boost)

	cfg := sc.Config()
	count := int(st.ParticleCount)
	if count != cfg.Particles.Count ||
		st.QualityFloor != float32(cfg.Quality.Floor) ||
		st.Glow != cfg.Render.Glow {
		cfg.Particles.Count = count
		cfg.Quality.Floor = float64(st.QualityFloor)
		cfg.Render.Glow = st.Glow
		sc.UpdateConfig(cfg)
	}
}
