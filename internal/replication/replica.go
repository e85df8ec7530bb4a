package replication

import (
	"go.uber.org/zap"

	"ringkv/internal/addr"
	"ringkv/internal/audit"
	"ringkv/internal/clock"
	"ringkv/internal/storage"
	"ringkv/internal/wire"
)

// Replica executes requests from coordinators against the local store.
type Replica struct {
	self   addr.Address
	clock  clock.Clock
	store  storage.Store
	sender wire.Sender
	sink   audit.Sink
	logger *zap.Logger
}

// NewReplica creates the replica side of self.
func NewReplica(self addr.Address, clk clock.Clock, store storage.Store, sender wire.Sender, sink audit.Sink, logger *zap.Logger) *Replica {
	if logger == nil {
		logger = zap.NewNop()
	}
	if sink == nil {
		sink = audit.Discard
	}
	return &Replica{
		self:   self,
		clock:  clk,
		store:  store,
		sender: sender,
		sink:   sink,
		logger: logger,
	}
}

// HandleRequest executes req and answers its origin.
func (r *Replica) HandleRequest(req wire.Request) {
	var err error

	switch req.Op {
	case wire.OpCreate:
		err = r.store.Create(req.Key, req.Value)
	case wire.OpUpdate:
		err = r.store.Update(req.Key, req.Value)
	case wire.OpDelete:
		err = r.store.Delete(req.Key)
	case wire.OpRead:
		v, ok := r.store.Read(req.Key)
		r.record(req, ok, v)
		r.sender.Send(req.Origin, wire.ReadReply{TxID: req.TxID, Origin: r.self, Value: v})
		return
	default:
		r.logger.Warn("unknown operation", zap.Uint8("op", uint8(req.Op)), zap.Int64("tx", req.TxID))
		r.sender.Send(req.Origin, wire.Reply{TxID: req.TxID, Origin: r.self, Success: false})
		return
	}

	if err != nil {
		r.logger.Debug("replica operation failed",
			zap.Int64("tx", req.TxID),
			zap.Stringer("op", req.Op),
			zap.Stringer("role", req.Role),
			zap.Error(err))
	}
	r.record(req, err == nil, req.Value)
	r.sender.Send(req.Origin, wire.Reply{TxID: req.TxID, Origin: r.self, Success: err == nil})
}

func (r *Replica) record(req wire.Request, ok bool, value string) {
	kind := audit.OpSuccess
	if !ok {
		kind = audit.OpFailure
	}
	r.sink.Record(audit.Event{
		Kind:  kind,
		At:    r.clock.Now(),
		Node:  r.self,
		TxID:  req.TxID,
		Op:    req.Op,
		Key:   req.Key,
		Value: value,
	})
}
