// Package book implements the order indices: the Submitted Queue and the
// two-tier Order Book (Open and Closed). Each index holds one owning
// id->Order map; an order lives in exactly one of them at a time.
package book

import "backxchange/internal/order"

// SubmittedQueue is a FIFO of newly created orders awaiting the drain
// phase. Cancel-by-id marks the order Cancelled but leaves it queued; the
// drain phase still pops it so it can be moved into the Closed
// Book in FIFO position.
type SubmittedQueue struct {
	ids []string
	store map[string]*order.Order
}

// NewSubmittedQueue builds an empty queue.
func NewSubmittedQueue() *SubmittedQueue {
	return &SubmittedQueue{store: make(map[string]*order.Order)}
}

// Push appends o to the back of the queue.
func (q *SubmittedQueue) Push(o *order.Order) {
	q.ids = append(q.ids, o.ID)
	q.store[o.ID] = o
}

// PopFront removes and returns the order at the front of the queue, or nil
// if the queue is empty.
func (q *SubmittedQueue) PopFront() *order.Order {
	if len(q.ids) == 0 {
		return nil
	}
	id := q.ids[0]
	q.ids = q.ids[1:]
	o := q.store[id]
	delete(q.store, id)
	return o
}

// PeekFront returns the order at the front of the queue without removing
// it, or nil if the queue is empty. Used by the Matching Engine so that a
// drain-phase failure leaves the order in place rather than losing it.
func (q *SubmittedQueue) PeekFront() *order.Order {
	if len(q.ids) == 0 {
		return nil
	}
	return q.store[q.ids[0]]
}

// Dequeue removes the front order, which must match id (a consistency
// check against a prior PeekFront). It is a no-op if the queue is empty.
func (q *SubmittedQueue) Dequeue(id string) {
	if len(q.ids) == 0 || q.ids[0] != id {
		return
	}
	q.ids = q.ids[1:]
	delete(q.store, id)
}

// Len reports the number of orders still queued.
func (q *SubmittedQueue) Len() int {
	return len(q.ids)
}

// Cancel marks the queued order id as Cancelled in place. It is still
// drained in its original FIFO position; the drain phase observes the
// Cancelled status and moves it straight to the Closed Book. Returns false
// if id is not in the queue.
func (q *SubmittedQueue) Cancel(id string) bool {
	o, ok := q.store[id]
	if !ok {
		return false
	}
	return o.Cancel() == nil
}

// Get returns the order id if it is still queued.
func (q *SubmittedQueue) Get(id string) (*order.Order, bool) {
	o, ok := q.store[id]
	return o, ok
}

// IDs returns a copy of every id still queued, FIFO order.
func (q *SubmittedQueue) IDs() []string {
	out := make([]string, len(q.ids))
	copy(out, q.ids)
	return out
}
