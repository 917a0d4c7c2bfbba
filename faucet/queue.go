package faucet

import (
	"context"
	"sync"
)

// Entry is a queued payout request.
type Entry struct {
	Address string
	Chain   string
}

// PayoutQueue is a FIFO queue of addresses awaiting payout, deduplicated by
// address. Request handlers enqueue concurrently; the dispatcher is the sole
// consumer.
type PayoutQueue struct {
	mu      sync.Mutex
	items   []Entry
	present map[string]struct{}
	wake    chan struct{}
}

// NewPayoutQueue builds an empty queue.
func NewPayoutQueue() *PayoutQueue {
	return &PayoutQueue{
		present: make(map[string]struct{}),
		wake:    make(chan struct{}, 1),
	}
}

// Enqueue appends address unless it is already queued, preserving the order
// of first enqueue. It reports whether a new entry was added.
func (q *PayoutQueue) Enqueue(address, chain string) bool {
	q.mu.Lock()
	if _, ok := q.present[address]; ok {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, Entry{Address: address, Chain: chain})
	q.present[address] = struct{}{}
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return true
}

// Dequeue removes and returns the oldest entry.
func (q *PayoutQueue) Dequeue() (Entry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return Entry{}, false
	}
	entry := q.items[0]
	q.items = q.items[1:]
	delete(q.present, entry.Address)
	return entry, true
}

// Len reports the number of queued entries.
func (q *PayoutQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Wait blocks until an entry may be available or ctx is done. A wake-up is
// advisory: the caller must still check Dequeue's result.
func (q *PayoutQueue) Wait(ctx context.Context) error {
	q.mu.Lock()
	pending := len(q.items)
	q.mu.Unlock()
	if pending > 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-q.wake:
		return nil
	}
}
