// Package scene coordinates the render-side frame loop with a background
// simulation worker. Particle-buffer ownership moves through bounded channels
// instead of being shared under a lock: whoever holds the backing slice may
// touch it, and a sender clears its reference on send.
package scene

import "github.com/pthm-cable/starfield/particle"

// FrameStep is one frame's advance: elapsed time plus the boost state it was
// stepped under. The render side ships the exact per-frame sequence so the
// worker's replay applies the same float operations in the same order and the
// two buffers stay bit-identical.
type FrameStep struct {
	DT    float32
	Boost bool
}

type requestKind uint8

const (
	reqInit requestKind = iota
	reqFrame        // full transfer: reply carries a complete buffer copy
	reqPartialFrame // diff transfer: replay steps, merge recycled records
	reqReset
	reqUpdateConfig
	reqSetBoost
	reqCleanup
)

// Request is one message to the worker. Slices referenced here belong to the
// worker from send until they come back in a Reply.
type Request struct {
	Kind requestKind
	Gen  uint64

	Data    []float32   // reqInit: field snapshot; reqFrame: vehicle to fill
	Steps   []FrameStep // frames elapsed since the previous request
	Indices []int32     // reqPartialFrame: recycled record indices
	Sub     []float32   // reqPartialFrame: compact records for those indices

	Count  int
	Params particle.Params
	Boost  bool
}

type replyKind uint8

const (
	replyInitialized replyKind = iota
	replyFrameUpdate
	replyPartialFrameUpdate
	replyNoChanges
	replyResetDone
	replyCountChanged
	replyDone
)

// Reply is one message back from the worker. Request slices ride back so the
// coordinator can reclaim them as scratch.
type Reply struct {
	Kind replyKind
	Gen  uint64

	Data    []float32
	Steps   []FrameStep
	Indices []int32
	Sub     []float32

	Count int
	Fixed int // records repaired by sanitization; nonzero forces a resync
}

// transferMode reports whether a sync carrying changed records out of
// capacity should ship a diff (true) or a full buffer (false). Below the
// threshold the compact sub-buffer is cheaper than copying the whole field;
// at or above it a full transfer wins.
func transferMode(changed, capacity int, threshold float64) bool {
	if capacity <= 0 {
		return false
	}
	return float64(changed) < threshold*float64(capacity)
}
