package sim

import (
	"errors"
	"fmt"
	"math/rand"
	"slices"

	"go.uber.org/zap"

	"ringkv/internal/addr"
	"ringkv/internal/audit"
	"ringkv/internal/clock"
	"ringkv/internal/config"
	"ringkv/internal/gossip"
	"ringkv/internal/node"
	"ringkv/internal/transport"
)

// Cluster is a set of nodes sharing a simulated network and clock. Node i
// has address i:0; the first node added is the introducer by default.
type Cluster struct {
	params config.Params
	seed   int64
	clock  *clock.Manual
	net    *transport.Network
	audit  *audit.Recorder
	sink   audit.Sink
	logger *zap.Logger

	nodes []*node.Node
	dead  map[addr.Address]bool
}

// ClusterOption configures a Cluster.
type ClusterOption func(*Cluster)

// WithSink sends audit events to sink as well as to the cluster recorder.
func WithSink(sink audit.Sink) ClusterOption {
	return func(c *Cluster) {
		c.sink = audit.Multi{c.audit, sink}
	}
}

// NewCluster creates an empty cluster. Random choices of the network and the
// nodes derive from seed.
func NewCluster(p config.Params, faults transport.Faults, seed int64, logger *zap.Logger, opts ...ClusterOption) (*Cluster, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("cluster params: %w", err)
	}
	if err := faults.Validate(); err != nil {
		return nil, fmt.Errorf("cluster faults: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Cluster{
		params: p,
		seed:   seed,
		clock:  clock.NewManual(0),
		net:    transport.NewNetwork(faults, seed, logger.Named("network")),
		audit:  audit.NewRecorder(),
		logger: logger,
		dead:   make(map[addr.Address]bool),
	}
	c.sink = c.audit
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// AddNode creates and starts the next node.
func (c *Cluster) AddNode() (*node.Node, error) {
	a := addr.New(uint32(len(c.nodes)+1), 0)
	c.net.Register(a)

	n, err := node.New(a, c.clock, c.net, node.Options{
		Params: c.params,
		Sink:   c.sink,
		Logger: c.logger,
		Rand:   rand.New(rand.NewSource(c.seed + int64(a.ID))),
	})
	if err != nil {
		c.net.Unregister(a)
		return nil, err
	}
	n.Start()
	c.nodes = append(c.nodes, n)
	return n, nil
}

// Node returns the node at a, dead or alive.
func (c *Cluster) Node(a addr.Address) (*node.Node, bool) {
	i := int(a.ID) - 1
	if a.Port != 0 || i < 0 || i >= len(c.nodes) {
		return nil, false
	}
	return c.nodes[i], true
}

// Nodes returns every node ever added, in address order.
func (c *Cluster) Nodes() []*node.Node {
	return slices.Clone(c.nodes)
}

// Live returns the nodes that have not been killed.
func (c *Cluster) Live() []*node.Node {
	out := make([]*node.Node, 0, len(c.nodes))
	for _, n := range c.nodes {
		if !c.dead[n.Address()] {
			out = append(out, n)
		}
	}
	return out
}

// Now returns the current tick.
func (c *Cluster) Now() clock.Tick {
	return c.clock.Now()
}

// Audit returns everything observed so far.
func (c *Cluster) Audit() *audit.Recorder {
	return c.audit
}

// Network returns the simulated network, for changing faults mid-run.
func (c *Cluster) Network() *transport.Network {
	return c.net
}

// Step advances the clock one tick and ticks every live node. Protocol
// violations do not stop the step; they are joined into the result.
func (c *Cluster) Step() error {
	c.clock.Advance(1)

	var errs []error
	for _, n := range c.Live() {
		if err := n.Tick(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", n.Address(), err))
		}
	}
	return errors.Join(errs...)
}

// Run steps the cluster ticks times and returns every error seen.
func (c *Cluster) Run(ticks int) error {
	var errs []error
	for i := 0; i < ticks; i++ {
		if err := c.Step(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Kill fails the node at a and disconnects it from the network.
func (c *Cluster) Kill(a addr.Address) error {
	n, ok := c.Node(a)
	if !ok {
		return fmt.Errorf("kill %s: no such node", a)
	}
	if c.dead[a] {
		return nil
	}
	n.Fail()
	c.net.Unregister(a)
	c.dead[a] = true
	c.logger.Info("node killed", zap.Stringer("node", a), zap.Int64("tick", int64(c.clock.Now())))
	return nil
}

// Converged reports whether every live node is in the group and knows
// exactly the live nodes.
func (c *Cluster) Converged() bool {
	live := c.Live()
	want := make([]addr.Address, len(live))
	for i, n := range live {
		want[i] = n.Address()
	}

	for _, n := range live {
		if n.State() != gossip.InGroup {
			return false
		}
		members := n.Members()
		if len(members) != len(want) {
			return false
		}
		for i, e := range members {
			if e.Address != want[i] {
				return false
			}
		}
	}
	return true
}
