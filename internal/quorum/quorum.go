package quorum

import (
	"fmt"
	"slices"

	"ringkv/internal/clock"
	"ringkv/internal/wire"
)

const (
	// DefaultReplicas is the number of replicas each request is sent to.
	DefaultReplicas = 3
	// DefaultRequired is the number of successful replies needed.
	DefaultRequired = 2
	// DefaultTimeout is how many ticks a transaction waits before missing
	// replies start counting as seen.
	DefaultTimeout = 3
)

// Transaction is one outstanding client operation on its coordinator.
type Transaction struct {
	ID      int64
	Op      wire.Op
	Key     string
	Value   string
	Created clock.Tick

	// Seen counts replies plus one per sweep after the timeout.
	Seen int
	// Succeeded counts successful replies; for reads, non-empty values.
	Succeeded int
	// Result is the last non-empty value returned by a read.
	Result string
}

// Resolution is a transaction that left the table.
type Resolution struct {
	Transaction
	Success  bool
	Required int
	Replicas int
}

// String describes the outcome for logs.
func (r Resolution) String() string {
	status := "failed"
	if r.Success {
		status = "succeeded"
	}
	return fmt.Sprintf("tx %d %s %q %s: succeeded=%d required=%d seen=%d replicas=%d",
		r.ID, r.Op, r.Key, status, r.Succeeded, r.Required, r.Seen, r.Replicas)
}

// Table tracks the outstanding transactions of one coordinator. It is not
// safe for concurrent use; the owning node serializes access.
type Table struct {
	replicas int
	required int
	timeout  int64

	nextID  int64
	pending map[int64]*Transaction
}

// NewTable creates a table resolving transactions once required of replicas
// replies succeed. Non-positive arguments select the defaults.
func NewTable(replicas, required int, timeout int64) *Table {
	if replicas <= 0 {
		replicas = DefaultReplicas
	}
	if required <= 0 {
		required = (replicas / 2) + 1 // default: majority
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Table{
		replicas: replicas,
		required: required,
		timeout:  timeout,
		pending:  make(map[int64]*Transaction),
	}
}

// Open registers a new transaction created at now and returns it. IDs
// increase monotonically from 1.
func (t *Table) Open(op wire.Op, key, value string, now clock.Tick) Transaction {
	t.nextID++
	tx := &Transaction{
		ID:      t.nextID,
		Op:      op,
		Key:     key,
		Value:   value,
		Created: now,
	}
	t.pending[tx.ID] = tx
	return *tx
}

// Get returns the pending transaction with id.
func (t *Table) Get(id int64) (Transaction, bool) {
	tx, ok := t.pending[id]
	if !ok {
		return Transaction{}, false
	}
	return *tx, true
}

// Len returns the number of pending transactions.
func (t *Table) Len() int {
	return len(t.pending)
}

// Ack records a REPLY for id. It reports the resolution if this reply
// resolved the transaction. Replies for unknown ids are ignored.
func (t *Table) Ack(id int64, success bool) (Resolution, bool) {
	tx, ok := t.pending[id]
	if !ok {
		return Resolution{}, false
	}
	tx.Seen++
	if success {
		tx.Succeeded++
	}
	return t.evaluate(tx)
}

// ReadAck records a READ-REPLY for id. An empty value is a miss; a non-empty
// one counts as success and replaces the stored result.
func (t *Table) ReadAck(id int64, value string) (Resolution, bool) {
	tx, ok := t.pending[id]
	if !ok {
		return Resolution{}, false
	}
	tx.Seen++
	if value != "" {
		tx.Succeeded++
		tx.Result = value
	}
	return t.evaluate(tx)
}

// Sweep ages every pending transaction: once older than the timeout each
// sweep counts as one more reply seen. It returns the transactions resolved
// by this sweep ordered by id.
func (t *Table) Sweep(now clock.Tick) []Resolution {
	ids := make([]int64, 0, len(t.pending))
	for id := range t.pending {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	var resolved []Resolution
	for _, id := range ids {
		tx := t.pending[id]
		if tx.Created.Since(now) > t.timeout {
			tx.Seen++
		}
		if res, ok := t.evaluate(tx); ok {
			resolved = append(resolved, res)
		}
	}
	return resolved
}

// Discard drops id without resolving it.
func (t *Table) Discard(id int64) {
	delete(t.pending, id)
}

func (t *Table) evaluate(tx *Transaction) (Resolution, bool) {
	res := Resolution{
		Transaction: *tx,
		Required:    t.required,
		Replicas:    t.replicas,
	}
	switch {
	case tx.Succeeded >= t.required:
		res.Success = true
	case tx.Seen >= t.replicas:
		res.Success = false
	default:
		return Resolution{}, false
	}
	delete(t.pending, tx.ID)
	return res, true
}
