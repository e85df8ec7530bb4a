package it

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"ringkv/internal/addr"
	"ringkv/internal/audit"
	"ringkv/internal/config"
	"ringkv/internal/node"
	"ringkv/internal/sim"
	"ringkv/internal/transport"
)

// Harness drives an in-process cluster for scenario tests.
type Harness struct {
	t       testing.TB
	Cluster *sim.Cluster
}

// NewHarness creates an empty cluster with params over a network with
// the given faults.
func NewHarness(t testing.TB, params config.Params, faults transport.Faults) *Harness {
	t.Helper()
	c, err := sim.NewCluster(params, faults, 42, zaptest.NewLogger(t))
	require.NoError(t, err)
	return &Harness{t: t, Cluster: c}
}

// StartCluster adds n nodes and waits for them to converge.
func (h *Harness) StartCluster(n int) {
	h.t.Helper()
	for i := 0; i < n; i++ {
		h.AddNode()
	}
	h.WaitConverged(200)
}

// AddNode starts one more node.
func (h *Harness) AddNode() *node.Node {
	h.t.Helper()
	n, err := h.Cluster.AddNode()
	require.NoError(h.t, err)
	return n
}

// Run steps the cluster ticks times.
func (h *Harness) Run(ticks int) {
	h.t.Helper()
	require.NoError(h.t, h.Cluster.Run(ticks))
}

// WaitConverged steps until every live node knows exactly the live nodes.
func (h *Harness) WaitConverged(within int) {
	h.t.Helper()
	for i := 0; i < within; i++ {
		if h.Cluster.Converged() {
			return
		}
		require.NoError(h.t, h.Cluster.Step())
	}
	require.True(h.t, h.Cluster.Converged(), "cluster did not converge within %d ticks", within)
}

// GetNode returns node id:0.
func (h *Harness) GetNode(id uint32) *node.Node {
	h.t.Helper()
	n, ok := h.Cluster.Node(addr.New(id, 0))
	require.True(h.t, ok, "node %d does not exist", id)
	return n
}

// KillNode fails node id:0.
func (h *Harness) KillNode(id uint32) {
	h.t.Helper()
	require.NoError(h.t, h.Cluster.Kill(addr.New(id, 0)))
}

// Await steps until the transaction coordinated by n resolves.
func (h *Harness) Await(n *node.Node, txID int64, within int) audit.Event {
	h.t.Helper()
	for i := 0; i <= within; i++ {
		events := h.Cluster.Audit().Filter(audit.Coordinated(n.Address(), txID))
		if len(events) > 0 {
			require.Len(h.t, events, 1, "transaction %d resolved twice", txID)
			return events[0]
		}
		require.NoError(h.t, h.Cluster.Step())
	}
	require.FailNow(h.t, "transaction did not resolve", "tx %d on %s", txID, n.Address())
	return audit.Event{}
}

// Do issues an operation on n and waits for its outcome.
func (h *Harness) Do(n *node.Node, issue func(*node.Node) (int64, error)) audit.Event {
	h.t.Helper()
	txID, err := issue(n)
	require.NoError(h.t, err)
	return h.Await(n, txID, 20)
}

// Create returns an operation creating key.
func Create(key, value string) func(*node.Node) (int64, error) {
	return func(n *node.Node) (int64, error) { return n.Create(key, value) }
}

// Read returns an operation reading key.
func Read(key string) func(*node.Node) (int64, error) {
	return func(n *node.Node) (int64, error) { return n.Read(key) }
}

// Update returns an operation updating key.
func Update(key, value string) func(*node.Node) (int64, error) {
	return func(n *node.Node) (int64, error) { return n.Update(key, value) }
}

// Delete returns an operation deleting key.
func Delete(key string) func(*node.Node) (int64, error) {
	return func(n *node.Node) (int64, error) { return n.Delete(key) }
}

// Holders returns the live nodes whose local partition contains key.
func (h *Harness) Holders(key string) []addr.Address {
	var out []addr.Address
	for _, n := range h.Cluster.Live() {
		for _, p := range n.Pairs() {
			if p.Key == key {
				out = append(out, n.Address())
				break
			}
		}
	}
	return out
}
