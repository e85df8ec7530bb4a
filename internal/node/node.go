package node

import (
	"errors"
	"fmt"
	"math/rand"

	"go.uber.org/zap"

	"ringkv/internal/addr"
	"ringkv/internal/audit"
	"ringkv/internal/clock"
	"ringkv/internal/config"
	"ringkv/internal/gossip"
	"ringkv/internal/repair"
	"ringkv/internal/replication"
	"ringkv/internal/ring"
	"ringkv/internal/storage"
	"ringkv/internal/telemetry"
	"ringkv/internal/transport"
	"ringkv/internal/wire"
)

// ErrFailed is returned by client operations on a failed node.
var ErrFailed = errors.New("node has failed")

// Options configures a node beyond the shared parameters.
type Options struct {
	Params config.Params
	Sink   audit.Sink
	Logger *zap.Logger
	// Rand drives gossip relay choices. Nil derives a source from the address.
	Rand *rand.Rand
}

// Node is a single member of the group: membership, ring, coordinator,
// replica and stabilization over one transport endpoint.
//
// A Node is single threaded. Tick and the client operations must not be
// called concurrently; Server serializes them for network use.
type Node struct {
	self      addr.Address
	params    config.Params
	clock     clock.Clock
	transport transport.Transport
	logger    *zap.Logger

	members     *gossip.Membership
	store       *storage.InMemoryStore
	coordinator *replication.Coordinator
	replica     *replication.Replica
	stabilizer  *repair.Stabilizer

	hasher ring.Hasher
	ring   ring.Ring
}

// New creates the node self attached to tr. The node is idle until Start.
func New(self addr.Address, clk clock.Clock, tr transport.Transport, opts Options) (*Node, error) {
	p := opts.Params
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("node %s: %w", self, err)
	}
	mode, ok := gossip.ParseMode(p.Dissemination)
	if !ok {
		return nil, fmt.Errorf("node %s: %w", self, config.ErrInvalidDissemination)
	}
	hasher, err := ring.HasherByName(p.Hasher)
	if err != nil {
		return nil, fmt.Errorf("node %s: %w", self, err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.Stringer("node", self))
	sink := opts.Sink
	if sink == nil {
		sink = audit.Discard
	}

	n := &Node{
		self:      self,
		params:    p,
		clock:     clk,
		transport: tr,
		logger:    logger,
		store:     storage.NewInMemoryStore(),
		hasher:    hasher,
	}
	out := &sender{self: self, transport: tr, logger: logger}

	n.members = gossip.New(gossip.Config{
		Self:       self,
		Introducer: p.Introducer,
		TFail:      p.TFail,
		TRemove:    p.TRemove,
		JoinRetry:  p.JoinRetry,
		Mode:       mode,
		Fanout:     p.GossipFanout,
		Rand:       opts.Rand,
	}, clk, out, sink, logger.Named("gossip"))

	n.coordinator = replication.NewCoordinator(replication.CoordinatorConfig{
		Self:     self,
		Replicas: p.Replicas,
		Quorum:   p.Quorum,
		Timeout:  p.TransactionTimeout,
	}, clk, out, sink, logger.Named("coordinator"))
	n.replica = replication.NewReplica(self, clk, n.store, out, sink, logger.Named("replica"))
	n.stabilizer = repair.NewStabilizer(self, p.Replicas, n.store, n.coordinator, logger.Named("stabilizer"))

	n.rebuildRing()
	return n, nil
}

// Address returns the node's address.
func (n *Node) Address() addr.Address {
	return n.self
}

// Start joins the group through the introducer.
func (n *Node) Start() {
	n.members.Start()
	n.rebuildRing()
	n.logger.Info("node started", zap.Stringer("state", n.members.State()))
}

// Fail stops the node for good. A failed node ignores its inbox and refuses
// client operations.
func (n *Node) Fail() {
	n.members.Fail()
}

// State returns the membership state.
func (n *Node) State() gossip.State {
	return n.members.State()
}

// Tick runs one protocol round: drain the inbox, then membership
// housekeeping, the transaction sweep and stabilization. Frames that do not
// decode are skipped; their errors are joined into the result.
func (n *Node) Tick() error {
	if n.members.State() == gossip.Failed {
		return nil
	}

	var errs []error
	for _, p := range n.transport.Receive(n.self) {
		msg, err := wire.Decode(p.Data)
		if errors.Is(err, wire.ErrUnknownKind) {
			n.logger.Warn("ignoring unknown message", zap.Stringer("from", p.From), zap.Error(err))
			continue
		}
		if err != nil {
			telemetry.ProtocolViolations.Inc()
			errs = append(errs, fmt.Errorf("from %s: %w", p.From, err))
			continue
		}
		telemetry.MessagesReceived.WithLabelValues(msg.Kind().String()).Inc()
		n.handle(p.From, msg)
	}

	n.members.Housekeep()
	n.rebuildRing()
	n.coordinator.Sweep()
	if n.members.State() == gossip.InGroup {
		n.stabilizer.Stabilize(n.ring)
	}
	return errors.Join(errs...)
}

func (n *Node) handle(from addr.Address, msg wire.Message) {
	if n.members.Handle(from, msg) {
		return
	}
	// Replication needs a node that is in the group.
	if n.members.State() != gossip.InGroup {
		n.logger.Debug("dropping replication message while joining",
			zap.Stringer("from", from), zap.Stringer("kind", msg.Kind()))
		return
	}
	switch v := msg.(type) {
	case wire.Request:
		n.replica.HandleRequest(v)
	case wire.Reply:
		n.coordinator.HandleReply(v)
	case wire.ReadReply:
		n.coordinator.HandleReadReply(v)
	}
}

func (n *Node) rebuildRing() {
	r := ring.Build(n.members.Addresses(), n.params.RingSize, n.hasher)
	if !r.Equal(n.ring) {
		n.logger.Debug("ring changed", zap.Int("previous", n.ring.Len()), zap.Int("current", r.Len()))
	}
	n.ring = r
	n.coordinator.SetRing(r)
}

// Create inserts key through a quorum of its replicas.
func (n *Node) Create(key, value string) (int64, error) {
	if n.members.State() == gossip.Failed {
		return 0, ErrFailed
	}
	return n.coordinator.Create(key, value)
}

// Read fetches key through a quorum of its replicas.
func (n *Node) Read(key string) (int64, error) {
	if n.members.State() == gossip.Failed {
		return 0, ErrFailed
	}
	return n.coordinator.Read(key)
}

// Update replaces the value of key through a quorum of its replicas.
func (n *Node) Update(key, value string) (int64, error) {
	if n.members.State() == gossip.Failed {
		return 0, ErrFailed
	}
	return n.coordinator.Update(key, value)
}

// Delete removes key through a quorum of its replicas.
func (n *Node) Delete(key string) (int64, error) {
	if n.members.State() == gossip.Failed {
		return 0, ErrFailed
	}
	return n.coordinator.Delete(key)
}

// Ring returns the ring built on the last tick.
func (n *Node) Ring() ring.Ring {
	return n.ring
}

// Members returns the membership table ordered by address.
func (n *Node) Members() []gossip.Entry {
	return n.members.Snapshot()
}

// Pairs returns the local partition ordered by key.
func (n *Node) Pairs() []storage.Pair {
	return n.store.Pairs()
}

// Pending returns the number of unresolved transactions coordinated here.
func (n *Node) Pending() int {
	return n.coordinator.Pending()
}
