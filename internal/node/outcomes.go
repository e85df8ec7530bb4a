package node

import (
	"sync"

	"ringkv/internal/addr"
	"ringkv/internal/audit"
)

// Outcomes is an audit.Sink remembering the latest coordinator outcomes of
// one node so clients can poll them by transaction id. Older outcomes are
// forgotten once limit is reached.
type Outcomes struct {
	self  addr.Address
	limit int

	mu    sync.Mutex
	order []int64
	byID  map[int64]audit.Event
}

// NewOutcomes creates a sink keeping up to limit outcomes coordinated by self.
func NewOutcomes(self addr.Address, limit int) *Outcomes {
	if limit <= 0 {
		limit = 1024
	}
	return &Outcomes{
		self:  self,
		limit: limit,
		byID:  make(map[int64]audit.Event),
	}
}

// Record implements audit.Sink.
func (o *Outcomes) Record(e audit.Event) {
	if e.TxID == 0 || !audit.Coordinated(o.self, e.TxID)(e) {
		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if _, ok := o.byID[e.TxID]; !ok {
		o.order = append(o.order, e.TxID)
	}
	o.byID[e.TxID] = e
	for len(o.order) > o.limit {
		delete(o.byID, o.order[0])
		o.order = o.order[1:]
	}
}

// Lookup returns the outcome of txID, if resolved and still remembered.
func (o *Outcomes) Lookup(txID int64) (audit.Event, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	e, ok := o.byID[txID]
	return e, ok
}
