package sim

import (
	"strings"
	"testing"

	"go.uber.org/zap/zaptest"

	"ringkv/internal/addr"
	"ringkv/internal/audit"
	"ringkv/internal/config"
	"ringkv/internal/gossip"
	"ringkv/internal/transport"
)

func newCluster(t *testing.T, size int) *Cluster {
	t.Helper()
	c, err := NewCluster(config.Default(), transport.Faults{}, 1, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewCluster failed: %v", err)
	}
	for i := 0; i < size; i++ {
		if _, err := c.AddNode(); err != nil {
			t.Fatalf("AddNode failed: %v", err)
		}
	}
	return c
}

func TestCluster_Converges(t *testing.T) {
	c := newCluster(t, 5)
	if err := c.Run(40); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !c.Converged() {
		t.Error("Expected the cluster to converge")
	}
}

func TestCluster_KillIsDetected(t *testing.T) {
	c := newCluster(t, 4)
	_ = c.Run(40)

	victim := addr.New(3, 0)
	if err := c.Kill(victim); err != nil {
		t.Fatalf("Kill failed: %v", err)
	}
	if c.Converged() {
		t.Fatal("Survivors still list the victim and must not be converged yet")
	}
	_ = c.Run(40)

	if !c.Converged() {
		t.Error("Expected survivors to evict the victim")
	}
	if len(c.Live()) != 3 {
		t.Errorf("Expected 3 live nodes, got %d", len(c.Live()))
	}
	n, _ := c.Node(victim)
	if n.State() != gossip.Failed {
		t.Errorf("Expected victim to be failed, got %v", n.State())
	}

	removed := c.Audit().Filter(func(e audit.Event) bool {
		return e.Kind == audit.NodeRemoved && e.Subject == victim
	})
	if len(removed) != 3 {
		t.Errorf("Expected each survivor to report the removal, got %d", len(removed))
	}

	if err := c.Kill(addr.New(9, 0)); err == nil {
		t.Error("Killing an unknown node should fail")
	}
}

func TestCluster_TotalLossMidRunEvictsPeers(t *testing.T) {
	c := newCluster(t, 3)
	_ = c.Run(40)
	if !c.Converged() {
		t.Fatal("Expected the cluster to converge before the outage")
	}

	c.Network().SetFaults(transport.Faults{DropRate: 1})
	_ = c.Run(40)

	if c.Converged() {
		t.Error("Nodes cut off from each other must not stay converged")
	}
	removed := c.Audit().Filter(func(e audit.Event) bool { return e.Kind == audit.NodeRemoved })
	if len(removed) != 6 {
		t.Errorf("Expected every node to evict both peers, got %d removals", len(removed))
	}
	if len(c.Live()) != 3 {
		t.Errorf("Packet loss must not kill nodes, got %d live", len(c.Live()))
	}
}

func TestCluster_NodeLookup(t *testing.T) {
	c := newCluster(t, 2)
	for _, a := range []addr.Address{addr.New(0, 0), addr.New(3, 0), addr.New(1, 1)} {
		if _, ok := c.Node(a); ok {
			t.Errorf("Node(%s) should not exist", a)
		}
	}
	if n, ok := c.Node(addr.New(2, 0)); !ok || n.Address() != addr.New(2, 0) {
		t.Error("Node(2:0) should exist")
	}
}

func TestLoadScenario_Defaults(t *testing.T) {
	s, err := LoadScenario(strings.NewReader(""))
	if err != nil {
		t.Fatalf("LoadScenario failed: %v", err)
	}
	if s.Nodes != 4 || s.Ticks != 100 || s.Params != config.Default() {
		t.Errorf("Unexpected defaults %+v", s)
	}
}

func TestLoadScenario_Invalid(t *testing.T) {
	tests := map[string]string{
		"unknown field":  "bogus: 1",
		"unknown action": "steps: [{at: 1, action: explode, node: \"1:0\"}]",
		"missing value":  "steps: [{at: 1, action: create, node: \"1:0\", key: k}]",
		"foreign node":   "nodes: 2\nsteps: [{at: 1, action: kill, node: \"3:0\"}]",
		"late step":      "ticks: 10\nsteps: [{at: 10, action: kill, node: \"1:0\"}]",
		"bad params":     "params: {quorum: 1}",
		"bad faults":     "network: {drop_rate: 2}",
		"no nodes":       "nodes: 0",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := LoadScenario(strings.NewReader(doc)); err == nil {
				t.Errorf("Expected %q to be rejected", doc)
			}
		})
	}
}

func TestScenario_KillFile(t *testing.T) {
	s, err := LoadScenarioFile("testdata/kill.yaml")
	if err != nil {
		t.Fatalf("LoadScenarioFile failed: %v", err)
	}

	res, err := s.Run(zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Violations != 0 {
		t.Errorf("Expected no protocol violations, got %d", res.Violations)
	}
	if len(res.Issued) != 4 {
		t.Fatalf("Expected 4 issued operations, got %d", len(res.Issued))
	}

	wantValue := []string{"one", "one", "two", "two"}
	for i, is := range res.Issued {
		if is.Err != nil {
			t.Errorf("%s at %d rejected: %v", is.Step.Action, is.Step.At, is.Err)
			continue
		}
		e, ok := res.Outcome(is)
		if !ok {
			t.Errorf("%s at %d never resolved", is.Step.Action, is.Step.At)
			continue
		}
		if e.Kind != audit.OpSuccess || e.Value != wantValue[i] {
			t.Errorf("%s at %d: got %s %q", is.Step.Action, is.Step.At, e.Kind, e.Value)
		}
	}
}
