package scene

import (
	"log/slog"
	"time"

	"github.com/pthm-cable/starfield/config"
	"github.com/pthm-cable/starfield/particle"
)

// stopGrace is how long Stop waits for the worker's done reply before killing
// the goroutine outright.
const stopGrace = 200 * time.Millisecond

// Coordinator owns the render-side particle buffer and the transport protocol
// around it. In steady state it steps the field locally every frame with the
// same deterministic math the worker replays, so only recycled records, whose
// respawn randomness is not reproducible from the buffer alone, need to cross
// the channel. Full buffer transfers are reserved for mass changes: startup,
// reset, count changes, and recovery.
//
// At most one request is ever outstanding. When no reply has arrived the
// last known buffer keeps rendering; a frame never blocks on the worker.
type Coordinator struct {
	sim *particle.Sim
	buf *particle.Buffer

	worker *Worker
	reqCh  chan<- Request
	repCh  <-chan Reply

	seed                    int64
	width, height, maxDepth float32
	baseSpeed, boostSpeed   float32
	threshold               float64
	boost                   bool

	inFlight   bool
	awaitFull  bool
	forceFull  bool
	workerDead bool
	gen        uint64
	sentAt     time.Time
	lastSend   time.Time

	pendingReset  bool
	pendingCount  int // 0 means no count change queued
	pendingParams particle.Params
	pendingBoost  *bool

	// Frames and recycled records accumulated since the last request.
	pendSteps   []FrameStep
	pendIndices []int32

	// Scratch reclaimed from replies, reused for the next request.
	spareSteps   []FrameStep
	spareIndices []int32
	spareSub     []float32
	spareData    []float32

	scratch []int32 // recycle scratch for the in-process path

	sparks *Sparks

	throttleAfter time.Duration
	minGap        time.Duration
	deadAfter     time.Duration

	now func() time.Time
}

// NewCoordinator builds the render-side field, populates it, and, when the
// config asks for one, starts the background worker seeded with a snapshot of
// that field so both sides begin identical.
func NewCoordinator(cfg *config.Config, seed int64) *Coordinator {
	c := &Coordinator{
		seed: seed,
		now:  time.Now,
	}
	c.applyConfig(cfg)

	c.sim = particle.NewSim(c.simParams(seed))
	c.buf = particle.NewBuffer(cfg.Particles.Count)
	c.sim.Populate(c.buf)
	c.scratch = make([]int32, 0, 64)

	if cfg.Sim.Worker {
		w := StartWorker()
		c.worker = w
		c.reqCh = w.Requests()
		c.repCh = w.Replies()
		c.sendInit()
	}
	return c
}

// applyConfig copies the transport and field parameters out of the config.
func (c *Coordinator) applyConfig(cfg *config.Config) {
	c.width = cfg.Derived.ScreenW32
	c.height = cfg.Derived.ScreenH32
	c.maxDepth = cfg.Derived.MaxDepth32
	c.threshold = cfg.Sim.PartialThreshold
	c.throttleAfter = time.Duration(cfg.Sim.ThrottleAfterMs * float64(time.Millisecond))
	c.minGap = time.Duration(cfg.Sim.MinRequestGapMs * float64(time.Millisecond))
	c.deadAfter = time.Duration(cfg.Sim.DeadAfterMs * float64(time.Millisecond))
	c.baseSpeed = cfg.Derived.Base32
	c.boostSpeed = cfg.Derived.Boost32
}

func (c *Coordinator) simParams(seed int64) particle.Params {
	return particle.Params{
		Width:      c.width,
		Height:     c.height,
		MaxDepth:   c.maxDepth,
		BaseSpeed:  c.baseSpeed,
		BoostSpeed: c.boostSpeed,
		Seed:       seed,
	}
}

// Buffer returns the current render buffer. Valid until the next Update.
func (c *Coordinator) Buffer() *particle.Buffer { return c.buf }

// Count returns the current particle count.
func (c *Coordinator) Count() int { return c.buf.Count() }

// Boost reports the current boost state.
func (c *Coordinator) Boost() bool { return c.boost }

// AttachSparks installs the spark emitter fed by boosted near-plane recycles.
func (c *Coordinator) AttachSparks(s *Sparks) { c.sparks = s }

// SetBoost switches between base and boosted speed. The change rides the next
// frame step; a standalone protocol message covers windows where stepping is
// suspended.
func (c *Coordinator) SetBoost(on bool) {
	if on == c.boost {
		return
	}
	c.boost = on
	c.sim.SetBoost(on)
	if c.transportActive() {
		v := on
		c.pendingBoost = &v
	}
}

// Reset re-randomizes the whole field. With a worker attached the worker
// repopulates and ships the new field back whole; without one the reset is
// immediate.
func (c *Coordinator) Reset() {
	if !c.transportActive() {
		c.sim.Populate(c.buf)
		return
	}
	c.pendingReset = true
	c.forceFull = true
	c.clearPending()
}

// UpdateConfig applies a changed configuration: field dimensions, speeds,
// transport tuning, and particle count. Count changes route through the
// worker's countChanged path and resolve with a full transfer.
func (c *Coordinator) UpdateConfig(cfg *config.Config) {
	c.applyConfig(cfg)
	c.sim = particle.NewSim(c.simParams(c.seed))
	c.sim.SetBoost(c.boost)

	if !c.transportActive() {
		c.buf.Resize(cfg.Particles.Count, func(i int) {
			c.sim.InitParticle(c.buf, i)
		})
		return
	}
	c.pendingCount = cfg.Particles.Count
	c.pendingParams = c.simParams(c.seed + 1)
	c.forceFull = true
	c.clearPending()
}

// SetCount changes only the particle count, used by the adaptive quality
// loop. Same resolution path as a config change.
func (c *Coordinator) SetCount(n int) {
	if n < 1 || n == c.buf.Count() {
		return
	}
	if !c.transportActive() {
		c.buf.Resize(n, func(i int) {
			c.sim.InitParticle(c.buf, i)
		})
		return
	}
	c.pendingCount = n
	c.pendingParams = c.simParams(c.seed + 1)
	c.forceFull = true
	c.clearPending()
}

// Update runs one frame of simulation transport: apply any reply, advance the
// local field, and issue the next request. lastFrame is the previous frame's
// measured duration, used to throttle request frequency under sustained slow
// frames.
func (c *Coordinator) Update(dt float32, lastFrame time.Duration) {
	now := c.now()
	c.drainReply()
	c.checkLiveness(now)

	if !c.transportActive() {
		c.inProcessStep(dt)
		return
	}

	// While a full transfer is owed or in flight the local field is about to
	// be replaced, so stepping it would be wasted divergence; render it stale
	// instead.
	if !c.forceFull && !c.awaitFull {
		c.localStep(dt)
	}

	if c.inFlight {
		return
	}
	if lastFrame > c.throttleAfter && now.Sub(c.lastSend) < c.minGap {
		return
	}
	c.sendNext(now)
}

// Stop tears the transport down: best-effort cleanup handshake with a grace
// window, then a hard kill.
func (c *Coordinator) Stop() {
	if c.worker == nil {
		return
	}
	c.gen++
	sent := false
	select {
	case c.reqCh <- Request{Kind: reqCleanup, Gen: c.gen}:
		sent = true
	default:
	}
	if sent {
		deadline := time.After(stopGrace)
	drain:
		for {
			select {
			case rep := <-c.repCh:
				if rep.Kind == replyDone {
					break drain
				}
			case <-deadline:
				break drain
			}
		}
	}
	c.worker.Kill()
	c.worker = nil
	c.reqCh = nil
	c.repCh = nil
}

func (c *Coordinator) transportActive() bool {
	return c.reqCh != nil && !c.workerDead
}

// attachTransport wires the coordinator to a request/reply pair. Split out so
// tests can substitute a stub for the worker goroutine.
func (c *Coordinator) attachTransport(req chan<- Request, rep <-chan Reply) {
	c.reqCh = req
	c.repCh = rep
	c.workerDead = false
}

// sendInit ships a snapshot of the freshly populated field so the worker
// starts from the identical state the render side will keep stepping.
func (c *Coordinator) sendInit() {
	snapshot := c.buf.Clone()
	c.gen++
	req := Request{
		Kind:   reqInit,
		Gen:    c.gen,
		Data:   snapshot,
		Params: c.simParams(c.seed + 1),
	}
	now := c.now()
	select {
	case c.reqCh <- req:
		c.inFlight = true
		c.sentAt, c.lastSend = now, now
	default:
		c.transportFailed("init send blocked")
	}
}

// localStep advances the render buffer one frame and records the step plus
// any recycled records for the next sync.
func (c *Coordinator) localStep(dt float32) {
	if dt <= 0 {
		return
	}
	if c.sparks != nil && c.boost {
		c.emitRecycleSparks(dt)
	}
	c.pendSteps = append(c.pendSteps, FrameStep{DT: dt, Boost: c.boost})
	c.pendIndices = c.sim.Step(c.buf, dt, c.pendIndices)
}

// inProcessStep is the fallback when no worker exists or it stopped
// responding: same stepping, no bookkeeping for a sync that will never come.
func (c *Coordinator) inProcessStep(dt float32) {
	if dt <= 0 {
		return
	}
	if c.sparks != nil && c.boost {
		c.emitRecycleSparks(dt)
	}
	c.scratch = c.sim.Step(c.buf, dt, c.scratch[:0])
}

// emitRecycleSparks finds particles about to cross the viewer plane this
// frame, before the step respawns them and discards their last screen
// position, and offers each as a spark burst origin.
func (c *Coordinator) emitRecycleSparks(dt float32) {
	step := c.sim.Speed() * dt
	for i := 0; i < c.buf.Count(); i++ {
		if !c.buf.Active(i) || c.buf.Z(i) > step {
			continue
		}
		if !c.buf.HasPrevScreen(i) {
			continue
		}
		px, py := c.buf.PrevScreen(i)
		c.sparks.MaybeEmit(px, py)
	}
}

// sendNext issues the highest-priority queued request, if any.
func (c *Coordinator) sendNext(now time.Time) {
	var req Request
	switch {
	case c.pendingReset:
		req = Request{Kind: reqReset}
		c.pendingReset = false

	case c.pendingCount != 0:
		req = Request{Kind: reqUpdateConfig, Count: c.pendingCount, Params: c.pendingParams}
		c.pendingCount = 0

	case c.forceFull || !transferMode(len(c.pendIndices), c.buf.Count(), c.threshold):
		data := c.spareData
		need := c.buf.Count() * particle.Stride
		if cap(data) < need {
			data = make([]float32, need)
		}
		req = Request{Kind: reqFrame, Data: data[:need], Steps: c.takeSteps(), Boost: c.boost}
		c.spareData = nil
		c.pendIndices = c.pendIndices[:0] // subsumed by the full copy
		c.awaitFull = true
		c.pendingBoost = nil

	case len(c.pendSteps) > 0 || len(c.pendIndices) > 0:
		indices := c.takeIndices()
		sub := c.buf.ExtractDiff(indices, c.spareSub[:0])
		c.spareSub = nil
		req = Request{Kind: reqPartialFrame, Steps: c.takeSteps(), Indices: indices, Sub: sub}
		c.pendingBoost = nil

	case c.pendingBoost != nil:
		req = Request{Kind: reqSetBoost, Boost: *c.pendingBoost}
		c.pendingBoost = nil

	default:
		return
	}

	c.gen++
	req.Gen = c.gen
	select {
	case c.reqCh <- req:
		c.inFlight = true
		c.sentAt, c.lastSend = now, now
	default:
		// Cap-one channel with nothing in flight should never be full; if it
		// is, the worker stopped draining.
		c.restorePending(req)
		c.transportFailed("request send blocked")
	}
}

// takeSteps moves the accumulated frame sequence out, swapping in reclaimed
// scratch so accumulation continues without allocating.
func (c *Coordinator) takeSteps() []FrameStep {
	steps := c.pendSteps
	c.pendSteps = c.spareSteps[:0]
	c.spareSteps = nil
	return steps
}

func (c *Coordinator) takeIndices() []int32 {
	indices := c.pendIndices
	c.pendIndices = c.spareIndices[:0]
	c.spareIndices = nil
	return indices
}

// restorePending puts a request's payload back after a failed send.
func (c *Coordinator) restorePending(req Request) {
	switch req.Kind {
	case reqReset:
		c.pendingReset = true
	case reqUpdateConfig:
		c.pendingCount = req.Count
		c.pendingParams = req.Params
	case reqFrame:
		c.spareData = req.Data
		c.pendSteps = append(req.Steps, c.pendSteps...)
	case reqPartialFrame:
		c.pendSteps = append(req.Steps, c.pendSteps...)
		c.pendIndices = append(req.Indices, c.pendIndices...)
		c.spareSub = req.Sub
	}
}

func (c *Coordinator) drainReply() {
	if c.repCh == nil {
		return
	}
	select {
	case rep := <-c.repCh:
		if rep.Gen != c.gen {
			// A reply from before a liveness reset; salvage its scratch.
			c.reclaim(rep)
			return
		}
		c.inFlight = false
		c.applyReply(rep)
	default:
	}
}

func (c *Coordinator) applyReply(rep Reply) {
	switch rep.Kind {
	case replyInitialized:
		// Transport is live; nothing to merge.

	case replyFrameUpdate:
		old := c.buf.Data()
		next := particle.FromData(rep.Data)
		if fixed := next.Sanitize(c.width, c.height, c.maxDepth); fixed > 0 {
			slog.Warn("full frame carried malformed records", "fixed", fixed)
		}
		c.buf = next
		c.spareData = old
		c.spareSteps = rep.Steps
		c.awaitFull = false
		c.forceFull = false

	case replyPartialFrameUpdate, replyNoChanges:
		c.reclaim(rep)
		if rep.Fixed > 0 {
			// The worker repaired records the render side never saw; the two
			// fields no longer agree, so resync whole.
			slog.Warn("worker sanitized diverged records", "fixed", rep.Fixed)
			c.forceFull = true
		}

	case replyResetDone, replyCountChanged:
		c.clearPending()
		c.forceFull = true
	}
}

// reclaim takes a reply's slices back as scratch for future requests.
func (c *Coordinator) reclaim(rep Reply) {
	if rep.Data != nil && c.spareData == nil {
		c.spareData = rep.Data
	}
	if rep.Steps != nil && c.spareSteps == nil {
		c.spareSteps = rep.Steps[:0]
	}
	if rep.Indices != nil && c.spareIndices == nil {
		c.spareIndices = rep.Indices[:0]
	}
	if rep.Sub != nil && c.spareSub == nil {
		c.spareSub = rep.Sub[:0]
	}
}

// clearPending drops accumulated steps and recycles. Called when a full
// transfer makes them moot.
func (c *Coordinator) clearPending() {
	c.pendSteps = c.pendSteps[:0]
	c.pendIndices = c.pendIndices[:0]
}

// checkLiveness presumes the worker dead when a request has gone unanswered
// past the deadline, and falls back to in-process stepping.
func (c *Coordinator) checkLiveness(now time.Time) {
	if !c.inFlight || c.workerDead {
		return
	}
	if now.Sub(c.sentAt) <= c.deadAfter {
		return
	}
	c.transportFailed("worker reply deadline exceeded")
}

// transportFailed switches to in-process mode. The generation bump makes any
// reply that eventually arrives stale.
func (c *Coordinator) transportFailed(reason string) {
	slog.Warn("simulation transport failed, stepping in-process", "reason", reason)
	c.workerDead = true
	c.inFlight = false
	c.awaitFull = false
	c.forceFull = false
	c.gen++
	c.clearPending()
	if c.pendingReset {
		c.pendingReset = false
		c.sim.Populate(c.buf)
	}
	if c.pendingCount != 0 {
		n := c.pendingCount
		c.pendingCount = 0
		c.buf.Resize(n, func(i int) {
			c.sim.InitParticle(c.buf, i)
		})
	}
}
