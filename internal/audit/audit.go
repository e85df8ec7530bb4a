package audit

import (
	"sync"

	"go.uber.org/zap"

	"ringkv/internal/addr"
	"ringkv/internal/clock"
	"ringkv/internal/wire"
)

// Kind classifies an audit event.
type Kind string

const (
	NodeAdded   Kind = "node_added"
	NodeRemoved Kind = "node_removed"
	OpSuccess   Kind = "op_success"
	OpFailure   Kind = "op_failure"
)

// Event is one externally observable outcome. Membership events set Subject;
// operation events set Coordinator, TxID, Op, Key and Value.
type Event struct {
	Kind Kind
	At   clock.Tick
	Node addr.Address

	Subject addr.Address

	Coordinator bool
	TxID        int64
	Op          wire.Op
	Key         string
	Value       string
}

// Sink receives audit events. Implementations must be safe for concurrent use.
type Sink interface {
	Record(e Event)
}

// Discard drops every event.
var Discard Sink = discard{}

type discard struct{}

func (discard) Record(Event) {}

// Recorder keeps every event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Record implements Sink.
func (r *Recorder) Record(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Filter returns the recorded events matching keep, in recording order.
func (r *Recorder) Filter(keep func(Event) bool) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Event
	for _, e := range r.events {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}

// Reset forgets every recorded event.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

// Coordinated matches coordinator outcomes for txID issued by node.
func Coordinated(node addr.Address, txID int64) func(Event) bool {
	return func(e Event) bool {
		return e.Coordinator && e.Node == node && e.TxID == txID &&
			(e.Kind == OpSuccess || e.Kind == OpFailure)
	}
}

// Logger writes events to a zap logger.
type Logger struct {
	logger *zap.Logger
}

// NewLogger creates a Sink backed by logger.
func NewLogger(logger *zap.Logger) *Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Logger{logger: logger.Named("audit")}
}

// Record implements Sink.
func (l *Logger) Record(e Event) {
	fields := []zap.Field{
		zap.String("event", string(e.Kind)),
		zap.Int64("tick", int64(e.At)),
		zap.Stringer("node", e.Node),
	}

	switch e.Kind {
	case NodeAdded, NodeRemoved:
		fields = append(fields, zap.Stringer("subject", e.Subject))
	default:
		fields = append(fields,
			zap.Bool("coordinator", e.Coordinator),
			zap.Int64("tx", e.TxID),
			zap.Stringer("op", e.Op),
			zap.String("key", e.Key),
		)
		if e.Value != "" {
			fields = append(fields, zap.String("value", e.Value))
		}
	}

	l.logger.Info("audit", fields...)
}

// Multi fans every event out to several sinks.
type Multi []Sink

// Record implements Sink.
func (m Multi) Record(e Event) {
	for _, s := range m {
		s.Record(e)
	}
}
