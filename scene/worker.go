package scene

import (
	"github.com/pthm-cable/starfield/particle"
)

// Worker runs the authoritative simulation on its own goroutine. Both
// channels are bounded at one message so at most one request is ever queued;
// the coordinator's in-flight flag keeps it that way.
type Worker struct {
	requests chan Request
	replies  chan Reply
	stop     chan struct{}
	done     chan struct{}

	sim     *particle.Sim
	buf     *particle.Buffer
	changed []int32

	width, height, maxDepth float32
}

// StartWorker launches the worker goroutine. The worker holds no state until
// an init request arrives.
func StartWorker() *Worker {
	w := &Worker{
		requests: make(chan Request, 1),
		replies:  make(chan Reply, 1),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
		changed:  make([]int32, 0, 64),
	}
	go w.run()
	return w
}

// Requests returns the channel the coordinator sends on.
func (w *Worker) Requests() chan<- Request { return w.requests }

// Replies returns the channel the coordinator receives on.
func (w *Worker) Replies() <-chan Reply { return w.replies }

// Kill stops the goroutine without the cleanup handshake. Used when the
// graceful path timed out or was never possible.
func (w *Worker) Kill() {
	select {
	case <-w.stop:
	default:
		close(w.stop)
	}
	<-w.done
}

func (w *Worker) run() {
	defer close(w.done)
	for {
		select {
		case <-w.stop:
			return
		case req := <-w.requests:
			rep, exit := w.handle(req)
			select {
			case w.replies <- rep:
			case <-w.stop:
				return
			}
			if exit {
				return
			}
		}
	}
}

func (w *Worker) handle(req Request) (Reply, bool) {
	switch req.Kind {
	case reqInit:
		w.sim = particle.NewSim(req.Params)
		w.buf = particle.FromData(req.Data)
		w.width = req.Params.Width
		w.height = req.Params.Height
		w.maxDepth = w.sim.MaxDepth()
		return Reply{Kind: replyInitialized, Gen: req.Gen, Count: w.buf.Count()}, false

	case reqFrame:
		if w.buf == nil {
			return Reply{Kind: replyNoChanges, Gen: req.Gen, Data: req.Data, Steps: req.Steps}, false
		}
		w.replay(req.Steps)
		need := w.buf.Count() * particle.Stride
		data := req.Data
		if cap(data) < need {
			data = make([]float32, need)
		}
		data = data[:need]
		copy(data, w.buf.Data())
		return Reply{
			Kind:  replyFrameUpdate,
			Gen:   req.Gen,
			Data:  data,
			Steps: req.Steps,
			Count: w.buf.Count(),
		}, false

	case reqPartialFrame:
		if w.buf == nil {
			return Reply{Kind: replyNoChanges, Gen: req.Gen, Steps: req.Steps, Indices: req.Indices, Sub: req.Sub}, false
		}
		// Replay first: the merged records describe post-replay state.
		w.replay(req.Steps)
		kind := replyNoChanges
		if len(req.Indices) > 0 {
			w.buf.ApplyDiff(req.Indices, req.Sub)
			kind = replyPartialFrameUpdate
		}
		fixed := w.buf.Sanitize(w.width, w.height, w.maxDepth)
		return Reply{
			Kind:    kind,
			Gen:     req.Gen,
			Steps:   req.Steps,
			Indices: req.Indices,
			Sub:     req.Sub,
			Fixed:   fixed,
		}, false

	case reqReset:
		if w.sim != nil && w.buf != nil {
			w.sim.Populate(w.buf)
		}
		return Reply{Kind: replyResetDone, Gen: req.Gen}, false

	case reqUpdateConfig:
		w.sim = particle.NewSim(req.Params)
		w.width = req.Params.Width
		w.height = req.Params.Height
		w.maxDepth = w.sim.MaxDepth()
		if w.buf == nil {
			w.buf = particle.NewBuffer(req.Count)
			w.sim.Populate(w.buf)
		} else {
			w.buf.Resize(req.Count, func(i int) {
				w.sim.InitParticle(w.buf, i)
			})
		}
		return Reply{Kind: replyCountChanged, Gen: req.Gen, Count: w.buf.Count()}, false

	case reqSetBoost:
		if w.sim != nil {
			w.sim.SetBoost(req.Boost)
		}
		return Reply{Kind: replyNoChanges, Gen: req.Gen}, false

	case reqCleanup:
		return Reply{Kind: replyDone, Gen: req.Gen}, true
	}
	return Reply{Kind: replyNoChanges, Gen: req.Gen}, false
}

// replay applies the shipped frame sequence to the authoritative buffer. The
// worker's own respawn randomness diverges from the render side's, but every
// record it respawns here is overwritten by the merged diff, so divergence
// never survives a partial sync.
func (w *Worker) replay(steps []FrameStep) {
	for _, s := range steps {
		w.sim.SetBoost(s.Boost)
		w.changed = w.sim.Step(w.buf, s.DT, w.changed[:0])
	}
}
