package repair

import (
	"slices"

	"go.uber.org/zap"

	"ringkv/internal/addr"
	"ringkv/internal/ring"
	"ringkv/internal/storage"
	"ringkv/internal/telemetry"
)

// Creator issues a replicated CREATE. replication.Coordinator satisfies it.
type Creator interface {
	Create(key, value string) (int64, error)
}

// Stabilizer re-replicates the local partition when the replica neighborhood
// of self changes: its successors (the replicas of keys it is primary for) or
// its predecessors (the primaries whose replica sets include self). Watching
// predecessors covers the loss of a primary, after which the surviving
// holders keep their successors but a new node must receive the keys.
// It is not safe for concurrent use.
type Stabilizer struct {
	self     addr.Address
	replicas int
	store    storage.Store
	creator  Creator
	logger   *zap.Logger

	// remembered holds the successors pushed to last, empty until the first push.
	remembered   []addr.Address
	predecessors []addr.Address
}

// NewStabilizer creates a stabilizer for self. replicas is the replication
// factor; self remembers replicas-1 successors.
func NewStabilizer(self addr.Address, replicas int, store storage.Store, creator Creator, logger *zap.Logger) *Stabilizer {
	if replicas <= 0 {
		replicas = 3
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Stabilizer{
		self:     self,
		replicas: replicas,
		store:    store,
		creator:  creator,
		logger:   logger,
	}
}

// Remembered returns the successors last pushed to.
func (s *Stabilizer) Remembered() []addr.Address {
	return slices.Clone(s.remembered)
}

// Stabilize checks r and pushes the local partition if the successors or
// predecessors of self differ from the remembered ones. It returns the number
// of keys pushed. Rings smaller than the replication factor are skipped
// without touching the memory.
func (s *Stabilizer) Stabilize(r ring.Ring) int {
	if r.Len() < s.replicas {
		return 0
	}
	succ, err := r.Successors(s.self, s.replicas-1)
	if err != nil {
		s.logger.Debug("stabilization skipped", zap.Error(err))
		return 0
	}
	pred, err := r.Predecessors(s.self, s.replicas-1)
	if err != nil {
		s.logger.Debug("stabilization skipped", zap.Error(err))
		return 0
	}

	current := addresses(succ)
	behind := addresses(pred)
	if len(s.remembered) > 0 && slices.Equal(current, s.remembered) && slices.Equal(behind, s.predecessors) {
		return 0
	}

	pushed := 0
	for _, p := range s.store.Pairs() {
		if _, err := s.creator.Create(p.Key, p.Value); err != nil {
			s.logger.Warn("stabilization push failed", zap.String("key", p.Key), zap.Error(err))
			continue
		}
		pushed++
	}
	telemetry.StabilizationPushes.Add(float64(pushed))

	s.logger.Debug("replica set changed",
		zap.Stringers("previous", s.remembered),
		zap.Stringers("current", current),
		zap.Stringers("predecessors", behind),
		zap.Int("pushed", pushed))
	s.remembered = current
	s.predecessors = behind
	return pushed
}

func addresses(nodes []ring.Node) []addr.Address {
	out := make([]addr.Address, len(nodes))
	for i, n := range nodes {
		out[i] = n.Address
	}
	return out
}
