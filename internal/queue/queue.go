package queue

import "sync"

// Queue is an unbounded FIFO of byte buffers. Producers (the transport) and
// the single consumer (a node draining its inbox) may run concurrently.
type Queue struct {
	mu    sync.Mutex
	items [][]byte
}

// New creates an empty queue.
func New() *Queue {
	return &Queue{}
}

// Push appends a copy of buf to the tail of the queue.
func (q *Queue) Push(buf []byte) {
	elt := append([]byte(nil), buf...)

	q.mu.Lock()
	q.items = append(q.items, elt)
	q.mu.Unlock()
}

// Pop removes and returns the head of the queue.
func (q *Queue) Pop() ([]byte, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil, false
	}
	head := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return head, true
}

// Drain removes and returns every queued buffer in FIFO order.
func (q *Queue) Drain() [][]byte {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := q.items
	q.items = nil
	return out
}

// Len returns the number of queued buffers.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
