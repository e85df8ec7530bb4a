package replication

import (
	"go.uber.org/zap"

	"ringkv/internal/addr"
	"ringkv/internal/audit"
	"ringkv/internal/clock"
	"ringkv/internal/quorum"
	"ringkv/internal/ring"
	"ringkv/internal/telemetry"
	"ringkv/internal/wire"
)

// CoordinatorConfig holds the quorum parameters of a coordinator.
type CoordinatorConfig struct {
	Self     addr.Address
	Replicas int
	Quorum   int
	// Timeout is the number of ticks before missing replies count as seen.
	Timeout int64
}

// Coordinator issues client operations to the replicas of each key and
// resolves them by quorum. Outcomes are reported to the audit sink. It is not
// safe for concurrent use.
type Coordinator struct {
	cfg    CoordinatorConfig
	clock  clock.Clock
	sender wire.Sender
	sink   audit.Sink
	logger *zap.Logger

	ring  ring.Ring
	table *quorum.Table
}

// NewCoordinator creates a coordinator. Call SetRing before issuing operations.
func NewCoordinator(cfg CoordinatorConfig, clk clock.Clock, sender wire.Sender, sink audit.Sink, logger *zap.Logger) *Coordinator {
	if cfg.Replicas <= 0 {
		cfg.Replicas = quorum.DefaultReplicas
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if sink == nil {
		sink = audit.Discard
	}
	return &Coordinator{
		cfg:    cfg,
		clock:  clk,
		sender: sender,
		sink:   sink,
		logger: logger,
		table:  quorum.NewTable(cfg.Replicas, cfg.Quorum, cfg.Timeout),
	}
}

// SetRing replaces the ring used to place subsequent operations.
func (c *Coordinator) SetRing(r ring.Ring) {
	c.ring = r
}

// Create inserts key on its replicas.
func (c *Coordinator) Create(key, value string) (int64, error) {
	return c.dispatch(wire.OpCreate, key, value)
}

// Read fetches key from its replicas.
func (c *Coordinator) Read(key string) (int64, error) {
	return c.dispatch(wire.OpRead, key, "")
}

// Update replaces the value of key on its replicas.
func (c *Coordinator) Update(key, value string) (int64, error) {
	return c.dispatch(wire.OpUpdate, key, value)
}

// Delete removes key from its replicas.
func (c *Coordinator) Delete(key string) (int64, error) {
	return c.dispatch(wire.OpDelete, key, "")
}

// Pending returns the number of unresolved transactions.
func (c *Coordinator) Pending() int {
	return c.table.Len()
}

func (c *Coordinator) dispatch(op wire.Op, key, value string) (int64, error) {
	if key == "" {
		return 0, ErrInvalidArgument
	}

	now := c.clock.Now()

	targets, err := GetReplicasForKey(c.ring, key, c.cfg.Replicas)
	if err != nil {
		c.logger.Warn("operation unavailable",
			zap.Stringer("op", op), zap.String("key", key), zap.Int("ring", c.ring.Len()), zap.Error(err))
		telemetry.TransactionsResolved.WithLabelValues(op.String(), "unavailable").Inc()
		c.sink.Record(audit.Event{
			Kind:        audit.OpFailure,
			At:          now,
			Node:        c.cfg.Self,
			Coordinator: true,
			Op:          op,
			Key:         key,
			Value:       value,
		})
		return 0, err
	}

	tx := c.table.Open(op, key, value, now)
	for _, t := range targets {
		c.sender.Send(t.Node.Address, wire.Request{
			TxID:   tx.ID,
			Origin: c.cfg.Self,
			Op:     op,
			Role:   t.Role,
			Key:    key,
			Value:  value,
		})
	}

	c.logger.Debug("dispatched",
		zap.Int64("tx", tx.ID),
		zap.Stringer("op", op),
		zap.String("key", key),
		zap.Stringer("primary", targets[0].Node.Address))
	c.reportPending()
	return tx.ID, nil
}

// HandleReply accounts a REPLY.
func (c *Coordinator) HandleReply(r wire.Reply) {
	if res, ok := c.table.Ack(r.TxID, r.Success); ok {
		c.resolve(res)
	}
}

// HandleReadReply accounts a READ-REPLY.
func (c *Coordinator) HandleReadReply(r wire.ReadReply) {
	if res, ok := c.table.ReadAck(r.TxID, r.Value); ok {
		c.resolve(res)
	}
}

// Sweep ages outstanding transactions and resolves those that ran out of
// time.
func (c *Coordinator) Sweep() {
	for _, res := range c.table.Sweep(c.clock.Now()) {
		c.resolve(res)
	}
	c.reportPending()
}

func (c *Coordinator) resolve(res quorum.Resolution) {
	e := audit.Event{
		Kind:        audit.OpFailure,
		At:          c.clock.Now(),
		Node:        c.cfg.Self,
		Coordinator: true,
		TxID:        res.ID,
		Op:          res.Op,
		Key:         res.Key,
		Value:       res.Value,
	}
	outcome := "failure"
	if res.Success {
		e.Kind = audit.OpSuccess
		outcome = "success"
	}
	if res.Op == wire.OpRead {
		e.Value = res.Result
	}

	c.logger.Debug("resolved", zap.Stringer("tx", res))
	telemetry.TransactionsResolved.WithLabelValues(res.Op.String(), outcome).Inc()
	c.sink.Record(e)
}

func (c *Coordinator) reportPending() {
	telemetry.TransactionsPending.WithLabelValues(c.cfg.Self.String()).Set(float64(c.table.Len()))
}
