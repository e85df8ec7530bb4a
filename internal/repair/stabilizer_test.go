package repair

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap/zaptest"

	"ringkv/internal/addr"
	"ringkv/internal/ring"
	"ringkv/internal/storage"
	"ringkv/internal/telemetry"
)

type recordingCreator struct {
	keys []string
	fail map[string]bool
}

func (c *recordingCreator) Create(key, value string) (int64, error) {
	if c.fail[key] {
		return 0, errors.New("unavailable")
	}
	c.keys = append(c.keys, key)
	return int64(len(c.keys)), nil
}

func members(ids ...uint32) []addr.Address {
	out := make([]addr.Address, len(ids))
	for i, id := range ids {
		out[i] = addr.New(id, 0)
	}
	return out
}

func newStabilizer(t *testing.T, pairs map[string]string) (*Stabilizer, *recordingCreator) {
	t.Helper()
	store := storage.NewInMemoryStore()
	for k, v := range pairs {
		if err := store.Create(k, v); err != nil {
			t.Fatalf("seed %s: %v", k, err)
		}
	}
	c := &recordingCreator{}
	return NewStabilizer(addr.New(1, 0), 3, store, c, zaptest.NewLogger(t)), c
}

func TestStabilize_SkipsSmallRing(t *testing.T) {
	s, c := newStabilizer(t, map[string]string{"a": "1"})

	if n := s.Stabilize(ring.Build(members(1, 2), 512, nil)); n != 0 {
		t.Errorf("Expected no push, got %d", n)
	}
	if len(c.keys) != 0 || len(s.Remembered()) != 0 {
		t.Error("Small ring must not push or touch memory")
	}
}

func TestStabilize_FirstRingPushesInKeyOrder(t *testing.T) {
	s, c := newStabilizer(t, map[string]string{"c": "3", "a": "1", "b": "2"})
	before := testutil.ToFloat64(telemetry.StabilizationPushes)

	r := ring.Build(members(1, 2, 3), 512, nil)
	if n := s.Stabilize(r); n != 3 {
		t.Fatalf("Expected 3 keys pushed, got %d", n)
	}
	want := []string{"a", "b", "c"}
	for i, k := range want {
		if c.keys[i] != k {
			t.Errorf("push %d: expected %s, got %s", i, k, c.keys[i])
		}
	}
	if got := testutil.ToFloat64(telemetry.StabilizationPushes) - before; got != 3 {
		t.Errorf("Expected counter to grow by 3, got %v", got)
	}

	succ, _ := r.Successors(addr.New(1, 0), 2)
	remembered := s.Remembered()
	if len(remembered) != 2 || remembered[0] != succ[0].Address || remembered[1] != succ[1].Address {
		t.Errorf("Expected memory %v, got %v", succ, remembered)
	}
}

func TestStabilize_UnchangedSuccessorsDoNothing(t *testing.T) {
	s, c := newStabilizer(t, map[string]string{"a": "1"})
	r := ring.Build(members(1, 2, 3), 512, nil)

	s.Stabilize(r)
	s.Stabilize(r)
	s.Stabilize(ring.Build(members(3, 2, 1), 512, nil))

	if len(c.keys) != 1 {
		t.Errorf("Expected a single push, got %d", len(c.keys))
	}
}

func TestStabilize_ChangedSuccessorsPushAgain(t *testing.T) {
	s, c := newStabilizer(t, map[string]string{"a": "1"})

	small := ring.Build(members(1, 2, 3), 512, nil)
	s.Stabilize(small)
	first := s.Remembered()

	// Grow the ring until the successors of 1:0 change.
	ids := []uint32{1, 2, 3}
	var grown ring.Ring
	for id := uint32(4); ; id++ {
		ids = append(ids, id)
		grown = ring.Build(members(ids...), 512, nil)
		succ, _ := grown.Successors(addr.New(1, 0), 2)
		if succ[0].Address != first[0] || succ[1].Address != first[1] {
			break
		}
	}

	if n := s.Stabilize(grown); n != 1 {
		t.Errorf("Expected key pushed again, got %d", n)
	}
	if len(c.keys) != 2 {
		t.Errorf("Expected two pushes in total, got %d", len(c.keys))
	}
}

func TestStabilize_FailedCreateIsNotCounted(t *testing.T) {
	s, c := newStabilizer(t, map[string]string{"a": "1", "b": "2"})
	c.fail = map[string]bool{"a": true}

	if n := s.Stabilize(ring.Build(members(1, 2, 3), 512, nil)); n != 1 {
		t.Errorf("Expected 1 key pushed, got %d", n)
	}
	if len(s.Remembered()) != 2 {
		t.Error("Memory must be updated after a push attempt")
	}
}

func TestStabilize_SelfNotOnRing(t *testing.T) {
	s, c := newStabilizer(t, map[string]string{"a": "1"})

	if n := s.Stabilize(ring.Build(members(2, 3, 4), 512, nil)); n != 0 {
		t.Errorf("Expected no push, got %d", n)
	}
	if len(c.keys) != 0 {
		t.Error("Node missing from the ring must not push")
	}
}

func TestStabilize_ChangedPredecessorsPushAgain(t *testing.T) {
	s, c := newStabilizer(t, map[string]string{"a": "1"})
	slots := map[string]uint64{"1:0": 10, "2:0": 100, "3:0": 200, "4:0": 300, "5:0": 400}
	h := func(k string) uint64 { return slots[k] }

	full := ring.Build(members(1, 2, 3, 4, 5), 512, h)
	s.Stabilize(full)
	before := s.Remembered()

	// 4:0 fails: the successors of 1:0 stay 2:0 and 3:0, its predecessors
	// move from (5:0, 4:0) to (5:0, 3:0).
	shrunk := ring.Build(members(1, 2, 3, 5), 512, h)
	if n := s.Stabilize(shrunk); n != 1 {
		t.Errorf("Expected key pushed after predecessor loss, got %d", n)
	}
	after := s.Remembered()
	if after[0] != before[0] || after[1] != before[1] {
		t.Errorf("Successors should not change: %v -> %v", before, after)
	}
	if len(c.keys) != 2 {
		t.Errorf("Expected two pushes in total, got %d", len(c.keys))
	}

	if n := s.Stabilize(shrunk); n != 0 {
		t.Errorf("Expected no push on an unchanged ring, got %d", n)
	}
}
