// Package updatequeue holds the FIFO of pending updates a committed
// transaction leaves behind for shipment to the authoritative server:
// object/binding commits, and the decache/downgrade acknowledgements the
// store owes back once a server-requested eviction or downgrade has
// actually drained its in-flight holders. Ordering matters: spec.md
// requires a transaction's commits ship before any later eviction of the
// same key can be acknowledged, so the queue is strictly FIFO per key and
// globally ordered by context id.
package updatequeue

import (
	"container/list"
	"sync"

	"github.com/google/btree"

	"github.com/objectgraph/cachestore/cachelog"
	"github.com/objectgraph/cachestore/entry"
	"github.com/objectgraph/cachestore/wire"
)

// contextIDItem adapts wire.ContextID to btree.Item, the same ordering
// interface retryrpc/api.go's ack-tracking btree uses to keep a client's
// outstanding request ids in sorted order.
type contextIDItem wire.ContextID

func (c contextIDItem) Less(than btree.Item) bool {
	return c < than.(contextIDItem)
}

// ItemKind distinguishes the five update shapes the queue carries.
type ItemKind int

const (
	CommitObject ItemKind = iota
	CommitBinding
	EvictObject
	EvictBinding
	DowngradeObject
	DowngradeBinding
)

// Item is one pending update. Completion is invoked once the item has
// been shipped to (and acknowledged by) the server; it is nil for items
// enqueued without a caller waiting on shipment.
type Item struct {
	Kind       ItemKind
	ContextID  wire.ContextID
	OID        wire.OID
	Binding    wire.BindingKey
	Value      []byte
	Entry      *entry.Entry
	Completion func(error)
}

// Queue is the ordered list of pending Items plus the bookkeeping needed
// to answer highestPendingContextId() (spec.md section 4.3): the highest
// context id with any item still in the queue.
type Queue struct {
	mu   sync.Mutex
	cond *sync.Cond
	list *list.List

	maxSize int

	pendingByContext map[wire.ContextID]int
	pendingSet       *btree.BTree
}

// New creates an empty Queue bounded at maxSize items (update.queue.size),
// beyond which Enqueue blocks until the shipment goroutine drains room.
func New(maxSize int) *Queue {
	q := &Queue{
		list:             list.New(),
		maxSize:          maxSize,
		pendingByContext: make(map[wire.ContextID]int),
		pendingSet:       btree.New(2),
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Enqueue appends item to the tail of the queue, blocking while the queue
// is at maxSize capacity.
func (q *Queue) Enqueue(item Item) {
	q.mu.Lock()
	for q.list.Len() >= q.maxSize {
		q.cond.Wait()
	}
	q.list.PushBack(item)
	if q.pendingByContext[item.ContextID] == 0 {
		q.pendingSet.ReplaceOrInsert(contextIDItem(item.ContextID))
	}
	q.pendingByContext[item.ContextID]++
	q.mu.Unlock()
	cachelog.TxnEvent(item.ContextID, "enqueued update kind=%d", int(item.Kind))
}

// Dequeue blocks until an item is available and returns it, FIFO.
func (q *Queue) Dequeue() Item {
	q.mu.Lock()
	for q.list.Len() == 0 {
		q.cond.Wait()
	}
	front := q.list.Front()
	q.list.Remove(front)
	item := front.Value.(Item)
	q.pendingByContext[item.ContextID]--
	if q.pendingByContext[item.ContextID] == 0 {
		delete(q.pendingByContext, item.ContextID)
		q.pendingSet.Delete(contextIDItem(item.ContextID))
	}
	q.cond.Broadcast()
	q.mu.Unlock()
	return item
}

// HighestPendingContextId returns the highest context id with an item
// still awaiting shipment, or zero if the queue is empty, per spec.md
// section 4.3's settled-ness test.
func (q *Queue) HighestPendingContextId() wire.ContextID {
	q.mu.Lock()
	defer q.mu.Unlock()
	max := q.pendingSet.Max()
	if max == nil {
		return 0
	}
	return wire.ContextID(max.(contextIDItem))
}

// Len returns the number of items currently queued.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.list.Len()
}

// IsPending reports whether contextID has any item still in the queue.
func (q *Queue) IsPending(contextID wire.ContextID) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.pendingByContext[contextID]
	return ok
}
