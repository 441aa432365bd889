package scene

import (
	"testing"

	"github.com/pthm-cable/starfield/particle"
)

func workerParams() particle.Params {
	return particle.Params{
		Width:      1280,
		Height:     720,
		MaxDepth:   32,
		BaseSpeed:  12,
		BoostSpeed: 48,
		Seed:       9,
	}
}

func initWorker(t *testing.T, records ...[3]float32) *Worker {
	t.Helper()
	b := particle.NewBuffer(len(records))
	for i, r := range records {
		b.SetPos(i, r[0], r[1], r[2])
		b.SetActive(i, true)
	}
	w := StartWorker()
	t.Cleanup(w.Kill)

	w.Requests() <- Request{
		Kind:   reqInit,
		Gen:    1,
		Data:   append([]float32(nil), b.Data()...),
		Params: workerParams(),
	}
	rep := <-w.Replies()
	if rep.Kind != replyInitialized || rep.Count != len(records) {
		t.Fatalf("init reply = %+v", rep)
	}
	return w
}

// readField pulls a full copy of the worker's buffer without stepping it.
func readField(t *testing.T, w *Worker, gen uint64, count int) *particle.Buffer {
	t.Helper()
	w.Requests() <- Request{Kind: reqFrame, Gen: gen, Data: make([]float32, count*particle.Stride)}
	rep := <-w.Replies()
	if rep.Kind != replyFrameUpdate {
		t.Fatalf("frame reply = %+v", rep)
	}
	return particle.FromData(rep.Data)
}

func TestWorker_FullFrameAppliesReplayedSteps(t *testing.T) {
	w := initWorker(t, [3]float32{100, 100, 32})

	w.Requests() <- Request{
		Kind:  reqFrame,
		Gen:   2,
		Data:  make([]float32, particle.Stride),
		Steps: []FrameStep{{DT: 1}, {DT: 1}},
	}
	rep := <-w.Replies()
	if rep.Kind != replyFrameUpdate {
		t.Fatalf("reply kind = %v, want frame update", rep.Kind)
	}
	out := particle.FromData(rep.Data)
	if got := out.Z(0); got != 8 {
		t.Errorf("z after two 1s steps at speed 12 = %v, want 8", got)
	}
}

func TestWorker_BoostedReplayRecyclesAtFarPlane(t *testing.T) {
	w := initWorker(t, [3]float32{100, 100, 32})

	w.Requests() <- Request{
		Kind:  reqFrame,
		Gen:   2,
		Data:  make([]float32, particle.Stride),
		Steps: []FrameStep{{DT: 1, Boost: true}},
	}
	rep := <-w.Replies()
	out := particle.FromData(rep.Data)
	if got := out.Z(0); got != 32 {
		t.Errorf("recycled z = %v, want exactly the far plane", got)
	}
	if x := out.X(0); x < 0 || x > 1280 {
		t.Errorf("respawn x = %v out of bounds", x)
	}
}

func TestWorker_PartialMergesDiffAfterReplay(t *testing.T) {
	w := initWorker(t, [3]float32{100, 100, 32}, [3]float32{200, 200, 16})

	// The diff overrides record 1 with a hand-built post-replay state.
	patch := particle.NewBuffer(1)
	patch.SetPos(0, 7, 9, 5)
	patch.SetActive(0, true)

	w.Requests() <- Request{
		Kind:    reqPartialFrame,
		Gen:     2,
		Steps:   []FrameStep{{DT: 1}},
		Indices: []int32{1},
		Sub:     patch.Data(),
	}
	rep := <-w.Replies()
	if rep.Kind != replyPartialFrameUpdate {
		t.Fatalf("reply kind = %v, want partial update", rep.Kind)
	}
	if rep.Fixed != 0 {
		t.Errorf("sanitizer fixed %d records on a clean merge", rep.Fixed)
	}

	field := readField(t, w, 3, 2)
	if got := field.Z(0); got != 20 {
		t.Errorf("unmerged record z = %v, want 20 after the replayed step", got)
	}
	if field.X(1) != 7 || field.Y(1) != 9 || field.Z(1) != 5 {
		t.Errorf("merged record = (%v,%v,%v), want (7,9,5)",
			field.X(1), field.Y(1), field.Z(1))
	}
}

func TestWorker_EmptyPartialRepliesNoChanges(t *testing.T) {
	w := initWorker(t, [3]float32{100, 100, 32})

	w.Requests() <- Request{Kind: reqPartialFrame, Gen: 2, Steps: []FrameStep{{DT: 0.5}}}
	rep := <-w.Replies()
	if rep.Kind != replyNoChanges {
		t.Errorf("reply kind = %v, want no changes", rep.Kind)
	}
}

func TestWorker_ResetRepopulatesField(t *testing.T) {
	w := initWorker(t, [3]float32{100, 100, 32}, [3]float32{200, 200, 16})

	w.Requests() <- Request{Kind: reqReset, Gen: 2}
	rep := <-w.Replies()
	if rep.Kind != replyResetDone {
		t.Fatalf("reply kind = %v, want reset done", rep.Kind)
	}

	field := readField(t, w, 3, 2)
	for i := 0; i < 2; i++ {
		if !field.Active(i) {
			t.Errorf("record %d inactive after reset", i)
		}
		if z := field.Z(i); z <= 0 || z > 32 {
			t.Errorf("record %d depth %v out of range after reset", i, z)
		}
	}
}

func TestWorker_CountChangeResizesField(t *testing.T) {
	w := initWorker(t, [3]float32{100, 100, 32})

	w.Requests() <- Request{Kind: reqUpdateConfig, Gen: 2, Count: 4, Params: workerParams()}
	rep := <-w.Replies()
	if rep.Kind != replyCountChanged || rep.Count != 4 {
		t.Fatalf("reply = %+v, want count changed to 4", rep)
	}

	field := readField(t, w, 3, 4)
	if field.Count() != 4 {
		t.Fatalf("field count = %d, want 4", field.Count())
	}
	for i := 1; i < 4; i++ {
		if !field.Active(i) || field.Z(i) != 32 {
			t.Errorf("grown record %d = active %v z %v, want active at far plane",
				i, field.Active(i), field.Z(i))
		}
	}
}

func TestWorker_CleanupRepliesDoneAndExits(t *testing.T) {
	w := initWorker(t, [3]float32{100, 100, 32})

	w.Requests() <- Request{Kind: reqCleanup, Gen: 2}
	rep := <-w.Replies()
	if rep.Kind != replyDone {
		t.Fatalf("reply kind = %v, want done", rep.Kind)
	}
	// Kill returns promptly because the goroutine already exited.
	w.Kill()
}
