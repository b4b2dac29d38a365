package evictor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/objectgraph/cachestore/cacheconf"
	"github.com/objectgraph/cachestore/cachetable"
	"github.com/objectgraph/cachestore/entry"
	"github.com/objectgraph/cachestore/serverproto"
	"github.com/objectgraph/cachestore/updatequeue"
	"github.com/objectgraph/cachestore/wire"
)

type noopTransport struct{}

func (noopTransport) Call(method string, args, reply interface{}) error { return nil }

func newTestEvictor(table *cachetable.Table, queue *updatequeue.Queue) *Evictor {
	conf := cacheconf.Default()
	conf.EvictionReserveSize = 1
	conf.EvictionBatchSize = 10
	client := serverproto.NewClient(noopTransport{}, time.Millisecond, time.Second)
	return New(table, queue, client, conf)
}

func TestMaybeReclaimNoopWhenReserveHealthy(t *testing.T) {
	assert := assert.New(t)

	table := cachetable.New(10, 1)
	queue := updatequeue.New(10)
	ev := newTestEvictor(table, queue)

	e := entry.New()
	e.CompleteRead([]byte("v"))
	table.Reserve(1)
	table.InsertObject(wire.OID(1), e)

	ev.maybeReclaim()

	state, _ := e.State()
	assert.Equal(entry.Readable, state)
	assert.Equal(0, queue.Len())
}

func TestReclaimEvictsUnusedEntry(t *testing.T) {
	assert := assert.New(t)

	table := cachetable.New(1, 1)
	queue := updatequeue.New(10)
	ev := newTestEvictor(table, queue)

	e := entry.New()
	e.CompleteRead([]byte("v"))
	table.Reserve(1)
	table.InsertObject(wire.OID(1), e)

	assert.True(table.FreeCapacity() < ev.conf.EvictionReserveSize)
	ev.maybeReclaim()

	state, _ := e.State()
	assert.Equal(entry.Decaching, state)
	assert.Equal(1, queue.Len())
}

func TestReclaimPrefersUnusedOverWritable(t *testing.T) {
	assert := assert.New(t)

	table := cachetable.New(2, 1)
	queue := updatequeue.New(10)
	ev := newTestEvictor(table, queue)

	writable := entry.NewForUpdate(wire.ContextID(7))
	writable.CompleteUpgrade([]byte("held"))
	table.Reserve(1)
	table.InsertObject(wire.OID(1), writable)

	unused := entry.New()
	unused.CompleteRead([]byte("free"))
	table.Reserve(1)
	table.InsertObject(wire.OID(2), unused)

	ev.maybeReclaim()

	writableState, _ := writable.State()
	unusedState, _ := unused.State()
	assert.Equal(entry.Writable, writableState)
	assert.Equal(entry.Decaching, unusedState)
	assert.Equal(1, queue.Len())
}

func TestReclaimSchedulesRetryWhenEverythingInUse(t *testing.T) {
	assert := assert.New(t)

	table := cachetable.New(1, 1)
	queue := updatequeue.New(10)
	ev := newTestEvictor(table, queue)

	e := entry.NewForUpdate(wire.ContextID(7))
	e.CompleteUpgrade([]byte("v"))
	table.Reserve(1)
	table.InsertObject(wire.OID(1), e)

	ev.maybeReclaim()

	state, _ := e.State()
	assert.Equal(entry.Writable, state)
	assert.Equal(0, queue.Len())
	assert.Contains(ev.pendingRetry, wire.OID(1))
}

// TestReclaimEvictsSettledWriter exercises the maintainer-reported
// staleness bug directly: a write that has shipped through ship() must
// become reclaimable even though nothing ever downgrades its entry back
// out of Writable.
func TestReclaimEvictsSettledWriter(t *testing.T) {
	assert := assert.New(t)

	table := cachetable.New(1, 1)
	queue := updatequeue.New(10)
	ev := newTestEvictor(table, queue)

	e := entry.NewForUpdate(wire.ContextID(7))
	e.CompleteUpgrade([]byte("v"))
	e.MarkModified()
	table.Reserve(1)
	table.InsertObject(wire.OID(1), e)

	ev.ship(updatequeue.Item{
		Kind:      updatequeue.CommitObject,
		ContextID: wire.ContextID(7),
		OID:       wire.OID(1),
		Value:     []byte("v"),
		Entry:     e,
	})

	state, ctxID := e.State()
	assert.Equal(entry.Writable, state, "ship never downgrades; only a server-initiated downgrade does")
	assert.Equal(wire.ContextID(0), ctxID, "ClearModified must release the settled write's hold")
	assert.False(e.InUse())

	ev.maybeReclaim()

	finalState, _ := e.State()
	assert.Equal(entry.Decaching, finalState, "a settled write must be reclaimable despite staying Writable")
	assert.Equal(1, queue.Len())
}

func TestShipCommitInvokesCompletion(t *testing.T) {
	assert := assert.New(t)

	table := cachetable.New(10, 1)
	queue := updatequeue.New(10)
	ev := newTestEvictor(table, queue)

	called := false
	ev.ship(updatequeue.Item{
		Kind:      updatequeue.CommitObject,
		ContextID: wire.ContextID(1),
		OID:       wire.OID(5),
		Completion: func(err error) {
			called = true
			assert.NoError(err)
		},
	})
	assert.True(called)
}
