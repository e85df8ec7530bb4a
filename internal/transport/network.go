package transport

import (
	"fmt"
	"math/rand"
	"sync"

	"go.uber.org/zap"

	"ringkv/internal/addr"
	"ringkv/internal/queue"
	"ringkv/internal/telemetry"
)

// Faults configures how the simulated network misbehaves.
type Faults struct {
	// DropRate is the probability in [0,1] that a packet is lost.
	DropRate float64 `yaml:"drop_rate"`
	// DuplicateRate is the probability in [0,1] that a delivered packet is
	// delivered twice.
	DuplicateRate float64 `yaml:"duplicate_rate"`
	// Reorder shuffles each batch returned by Receive.
	Reorder bool `yaml:"reorder"`
}

// Validate checks that the rates are probabilities.
func (f Faults) Validate() error {
	if f.DropRate < 0 || f.DropRate > 1 {
		return fmt.Errorf("drop rate %v out of [0,1]", f.DropRate)
	}
	if f.DuplicateRate < 0 || f.DuplicateRate > 1 {
		return fmt.Errorf("duplicate rate %v out of [0,1]", f.DuplicateRate)
	}
	return nil
}

// Network is an in-process lossy network. Each registered address owns an
// inbox queue; Send copies the buffer into the destination inbox.
type Network struct {
	mu      sync.Mutex
	rng     *rand.Rand
	faults  Faults
	inboxes map[addr.Address]*queue.Queue
	logger  *zap.Logger
}

// NewNetwork creates a network whose random choices derive from seed.
func NewNetwork(faults Faults, seed int64, logger *zap.Logger) *Network {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Network{
		rng:     rand.New(rand.NewSource(seed)),
		faults:  faults,
		inboxes: make(map[addr.Address]*queue.Queue),
		logger:  logger,
	}
}

// Register creates the inbox for a. Registering twice keeps the existing inbox.
func (n *Network) Register(a addr.Address) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.inboxes[a]; !ok {
		n.inboxes[a] = queue.New()
	}
}

// Unregister removes the inbox for a, discarding anything still queued.
func (n *Network) Unregister(a addr.Address) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.inboxes, a)
}

// SetFaults replaces the fault configuration.
func (n *Network) SetFaults(f Faults) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.faults = f
}

// Send implements Transport.
func (n *Network) Send(from, to addr.Address, data []byte) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	inbox, ok := n.inboxes[to]
	if !ok {
		telemetry.MessagesDropped.WithLabelValues("unreachable").Inc()
		return fmt.Errorf("send %s -> %s: %w", from, to, ErrUnreachable)
	}

	kind := kindLabel(data)
	telemetry.MessagesSent.WithLabelValues(kind).Inc()

	if n.faults.DropRate > 0 && n.rng.Float64() < n.faults.DropRate {
		telemetry.MessagesDropped.WithLabelValues("fault").Inc()
		n.logger.Debug("packet dropped",
			zap.Stringer("from", from), zap.Stringer("to", to), zap.String("kind", kind))
		return nil
	}

	buf := frame(from, data)
	inbox.Push(buf)
	if n.faults.DuplicateRate > 0 && n.rng.Float64() < n.faults.DuplicateRate {
		inbox.Push(buf)
	}
	return nil
}

// Receive implements Transport.
func (n *Network) Receive(at addr.Address) []Packet {
	n.mu.Lock()
	inbox, ok := n.inboxes[at]
	n.mu.Unlock()
	if !ok {
		return nil
	}

	bufs := inbox.Drain()
	packets := make([]Packet, 0, len(bufs))
	for _, buf := range bufs {
		p, err := unframe(at, buf)
		if err != nil {
			n.logger.Warn("discarding queued buffer", zap.Stringer("at", at), zap.Error(err))
			continue
		}
		packets = append(packets, p)
	}

	n.mu.Lock()
	if n.faults.Reorder {
		n.rng.Shuffle(len(packets), func(i, j int) {
			packets[i], packets[j] = packets[j], packets[i]
		})
	}
	n.mu.Unlock()

	return packets
}

// Pending returns the number of buffers queued for at.
func (n *Network) Pending(at addr.Address) int {
	n.mu.Lock()
	inbox, ok := n.inboxes[at]
	n.mu.Unlock()
	if !ok {
		return 0
	}
	return inbox.Len()
}
