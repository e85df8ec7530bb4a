package sim

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"ringkv/internal/addr"
	"ringkv/internal/audit"
	"ringkv/internal/config"
	"ringkv/internal/transport"
)

// Action names accepted in scenario steps.
const (
	ActionCreate = "create"
	ActionRead   = "read"
	ActionUpdate = "update"
	ActionDelete = "delete"
	ActionKill   = "kill"
)

// Step is one scripted action, applied before the cluster ticks At.
type Step struct {
	At     int64        `yaml:"at"`
	Action string       `yaml:"action"`
	Node   addr.Address `yaml:"node"`
	Key    string       `yaml:"key"`
	Value  string       `yaml:"value"`
}

// Scenario describes a complete simulated run.
type Scenario struct {
	Params  config.Params    `yaml:"params"`
	Network transport.Faults `yaml:"network"`
	Seed    int64            `yaml:"seed"`
	Nodes   int              `yaml:"nodes"`
	// JoinInterval is the number of ticks between node starts.
	JoinInterval int64  `yaml:"join_interval"`
	Ticks        int64  `yaml:"ticks"`
	Steps        []Step `yaml:"steps"`
}

// LoadScenario reads a YAML scenario. Omitted parameters take their defaults.
func LoadScenario(r io.Reader) (Scenario, error) {
	s := Scenario{
		Params:       config.Default(),
		Seed:         1,
		Nodes:        4,
		JoinInterval: 1,
		Ticks:        100,
	}

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil && !errors.Is(err, io.EOF) {
		return Scenario{}, fmt.Errorf("decode scenario: %w", err)
	}
	if err := s.Validate(); err != nil {
		return Scenario{}, err
	}
	return s, nil
}

// LoadScenarioFile is LoadScenario for a file on disk.
func LoadScenarioFile(path string) (Scenario, error) {
	f, err := os.Open(path)
	if err != nil {
		return Scenario{}, err
	}
	defer f.Close()
	return LoadScenario(f)
}

// Validate checks the scenario before running it.
func (s Scenario) Validate() error {
	if err := s.Params.Validate(); err != nil {
		return fmt.Errorf("invalid params: %w", err)
	}
	if err := s.Network.Validate(); err != nil {
		return fmt.Errorf("invalid network: %w", err)
	}
	if s.Nodes <= 0 {
		return fmt.Errorf("nodes must be positive, got %d", s.Nodes)
	}
	if s.JoinInterval < 0 {
		return fmt.Errorf("join_interval must not be negative, got %d", s.JoinInterval)
	}
	if s.Ticks <= 0 {
		return fmt.Errorf("ticks must be positive, got %d", s.Ticks)
	}
	for i, st := range s.Steps {
		switch st.Action {
		case ActionCreate, ActionUpdate:
			if st.Key == "" || st.Value == "" {
				return fmt.Errorf("step %d: %s needs key and value", i, st.Action)
			}
		case ActionRead, ActionDelete:
			if st.Key == "" {
				return fmt.Errorf("step %d: %s needs a key", i, st.Action)
			}
		case ActionKill:
		default:
			return fmt.Errorf("step %d: unknown action %q", i, st.Action)
		}
		if st.Node.ID == 0 || int(st.Node.ID) > s.Nodes || st.Node.Port != 0 {
			return fmt.Errorf("step %d: node %s is not part of the scenario", i, st.Node)
		}
		if st.At < 0 || st.At >= s.Ticks {
			return fmt.Errorf("step %d: tick %d outside the run", i, st.At)
		}
	}
	return nil
}

// Issued is a client operation submitted during a run.
type Issued struct {
	Step Step
	TxID int64
	Err  error
}

// Result summarizes a run.
type Result struct {
	Cluster *Cluster
	Issued  []Issued
	// Violations counts protocol errors reported by node ticks.
	Violations int
}

// Outcome returns the coordinator outcome of an issued operation.
func (r *Result) Outcome(i Issued) (audit.Event, bool) {
	if i.Err != nil || i.TxID == 0 {
		return audit.Event{}, false
	}
	events := r.Cluster.Audit().Filter(audit.Coordinated(i.Step.Node, i.TxID))
	if len(events) == 0 {
		return audit.Event{}, false
	}
	return events[0], true
}

// Run executes the scenario. Node i starts at tick (i-1)*JoinInterval;
// steps scheduled for a tick are applied before it runs.
func (s Scenario) Run(logger *zap.Logger, opts ...ClusterOption) (*Result, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	c, err := NewCluster(s.Params, s.Network, s.Seed, logger, opts...)
	if err != nil {
		return nil, err
	}

	steps := append([]Step(nil), s.Steps...)
	sort.SliceStable(steps, func(i, j int) bool { return steps[i].At < steps[j].At })

	res := &Result{Cluster: c}
	next := 0
	for tick := int64(0); tick < s.Ticks; tick++ {
		for len(c.Nodes()) < s.Nodes && int64(len(c.Nodes()))*s.JoinInterval <= tick {
			if _, err := c.AddNode(); err != nil {
				return nil, err
			}
		}

		for ; next < len(steps) && steps[next].At == tick; next++ {
			if err := s.apply(c, res, steps[next]); err != nil {
				return nil, err
			}
		}

		if err := c.Step(); err != nil {
			res.Violations++
			c.logger.Debug("tick reported errors", zap.Int64("tick", tick), zap.Error(err))
		}
	}
	return res, nil
}

func (s Scenario) apply(c *Cluster, res *Result, st Step) error {
	if st.Action == ActionKill {
		return c.Kill(st.Node)
	}

	n, ok := c.Node(st.Node)
	if !ok {
		return fmt.Errorf("tick %d: node %s has not started", st.At, st.Node)
	}

	var (
		id  int64
		err error
	)
	switch st.Action {
	case ActionCreate:
		id, err = n.Create(st.Key, st.Value)
	case ActionRead:
		id, err = n.Read(st.Key)
	case ActionUpdate:
		id, err = n.Update(st.Key, st.Value)
	case ActionDelete:
		id, err = n.Delete(st.Key)
	}
	if err != nil {
		c.logger.Info("operation rejected",
			zap.String("action", st.Action), zap.Stringer("node", st.Node), zap.Error(err))
	}
	res.Issued = append(res.Issued, Issued{Step: st, TxID: id, Err: err})
	return nil
}
