package updatequeue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/objectgraph/cachestore/wire"
)

func TestFIFOOrdering(t *testing.T) {
	assert := assert.New(t)

	q := New(10)
	q.Enqueue(Item{Kind: CommitObject, ContextID: 1, OID: 1})
	q.Enqueue(Item{Kind: CommitObject, ContextID: 2, OID: 2})

	first := q.Dequeue()
	assert.Equal(wire.OID(1), first.OID)
	second := q.Dequeue()
	assert.Equal(wire.OID(2), second.OID)
}

func TestHighestPendingContextId(t *testing.T) {
	assert := assert.New(t)

	q := New(10)
	assert.Equal(wire.ContextID(0), q.HighestPendingContextId())

	q.Enqueue(Item{Kind: CommitObject, ContextID: 5, OID: 1})
	q.Enqueue(Item{Kind: CommitObject, ContextID: 3, OID: 2})
	assert.Equal(wire.ContextID(5), q.HighestPendingContextId())

	q.Dequeue()
	assert.Equal(wire.ContextID(3), q.HighestPendingContextId())

	q.Dequeue()
	assert.Equal(wire.ContextID(0), q.HighestPendingContextId())
}

func TestEnqueueBlocksAtCapacity(t *testing.T) {
	assert := assert.New(t)

	q := New(1)
	q.Enqueue(Item{Kind: CommitObject, ContextID: 1, OID: 1})

	done := make(chan struct{})
	go func() {
		q.Enqueue(Item{Kind: CommitObject, ContextID: 2, OID: 2})
		close(done)
	}()

	select {
	case <-done:
		t.Fatalf("Enqueue should have blocked at capacity")
	case <-time.After(20 * time.Millisecond):
	}

	q.Dequeue()
	<-done
	assert.Equal(1, q.Len())
}

func TestIsPending(t *testing.T) {
	assert := assert.New(t)

	q := New(10)
	q.Enqueue(Item{Kind: CommitBinding, ContextID: 9, Binding: wire.Name("x")})
	assert.True(q.IsPending(wire.ContextID(9)))
	q.Dequeue()
	assert.False(q.IsPending(wire.ContextID(9)))
}
