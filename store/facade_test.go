package store

import (
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/objectgraph/cachestore/cachetable"
	"github.com/objectgraph/cachestore/serverproto"
	"github.com/objectgraph/cachestore/txncontext"
	"github.com/objectgraph/cachestore/updatequeue"
	"github.com/objectgraph/cachestore/wire"
)

// fakeServerTransport stands in for the authoritative server: an
// in-memory object store and a sorted binding namespace, enough to drive
// getObject/getBinding/nextBoundName's round trips without a real RPC
// connection. mu guards the tests that drive it from more than one
// goroutine (the rebind-race test).
type fakeServerTransport struct {
	mu       sync.Mutex
	objects  map[wire.OID][]byte
	bindings map[string]wire.OID
	calls    []string
}

func newFakeServerTransport() *fakeServerTransport {
	return &fakeServerTransport{
		objects:  make(map[wire.OID][]byte),
		bindings: make(map[string]wire.OID),
	}
}

func (f *fakeServerTransport) sortedNames() []string {
	names := make([]string, 0, len(f.bindings))
	for n := range f.bindings {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (f *fakeServerTransport) nextNameAbove(name string) (string, bool) {
	for _, n := range f.sortedNames() {
		if n > name {
			return n, true
		}
	}
	return "", false
}

func (f *fakeServerTransport) Call(method string, args, reply interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, method)
	switch method {
	case "Server.RegisterNode":
		reply.(*serverproto.RegisterNodeReply).NodeID = wire.NodeID(1)
	case "Server.GetObject":
		a := args.(*serverproto.GetObjectArgs)
		value, ok := f.objects[a.OID]
		reply.(*serverproto.GetObjectReply).Value = value
		reply.(*serverproto.GetObjectReply).Found = ok
	case "Server.UpgradeObject":
		a := args.(*serverproto.UpgradeObjectArgs)
		reply.(*serverproto.UpgradeObjectReply).Value = f.objects[a.OID]
	case "Server.GetBinding":
		a := args.(*serverproto.GetBindingArgs)
		r := reply.(*serverproto.GetBindingReply)
		if oid, ok := f.bindings[a.Name]; ok {
			r.Found = true
			r.OID = oid
			return nil
		}
		if next, ok := f.nextNameAbove(a.Name); ok {
			r.NextName = next
			return nil
		}
		r.NextIsLast = true
	case "Server.NextBoundName":
		a := args.(*serverproto.NextBoundNameArgs)
		r := reply.(*serverproto.NextBoundNameReply)
		if next, ok := f.nextNameAbove(a.Name); ok {
			r.Name = next
			r.OID = f.bindings[next]
			return nil
		}
		r.IsLast = true
	}
	return nil
}

func newTestStore(t *testing.T, transport *fakeServerTransport) (*Store, *txncontext.Manager) {
	t.Helper()
	table := cachetable.New(100, 4)
	queue := updatequeue.New(100)
	client := serverproto.NewClient(transport, time.Millisecond, time.Second)
	assert.NoError(t, client.RegisterNode("localhost", 1234))
	return New(table, client, queue), txncontext.NewManager()
}

func TestGetObjectFetchesThenCaches(t *testing.T) {
	assert := assert.New(t)

	transport := newFakeServerTransport()
	transport.objects[wire.OID(1)] = []byte("hello")
	s, mgr := newTestStore(t, transport)

	txn := mgr.Join(time.Time{})
	value, err := s.GetObject(txn, wire.OID(1), false)
	assert.NoError(err)
	assert.Equal([]byte("hello"), value)

	calls := len(transport.calls)
	value, err = s.GetObject(txn, wire.OID(1), false)
	assert.NoError(err)
	assert.Equal([]byte("hello"), value)
	assert.Equal(calls, len(transport.calls), "second read should hit the cache, not the server")
}

func TestSetObjectRoundTripsThroughCommit(t *testing.T) {
	assert := assert.New(t)

	transport := newFakeServerTransport()
	transport.objects[wire.OID(1)] = []byte("before")
	s, mgr := newTestStore(t, transport)

	txn := mgr.Join(time.Time{})
	_, err := s.GetObject(txn, wire.OID(1), true)
	assert.NoError(err)
	assert.NoError(s.SetObject(txn, wire.OID(1), []byte("after")))

	assert.NoError(txn.Prepare())

	queue := updatequeue.New(100)
	assert.NoError(txn.Commit(queue))
	assert.Equal(1, queue.Len())
}

func TestSetBindingThenGetBindingSeesItInCache(t *testing.T) {
	assert := assert.New(t)

	transport := newFakeServerTransport()
	s, mgr := newTestStore(t, transport)

	txn := mgr.Join(time.Time{})
	assert.NoError(s.SetBinding(txn, wire.Name("apples"), wire.OID(42)))

	lookup, err := s.GetBinding(txn, wire.Name("apples"))
	assert.NoError(err)
	assert.True(lookup.Found)
	assert.Equal(wire.OID(42), lookup.OID)
}

func TestGetBindingUnboundReportsCeiling(t *testing.T) {
	assert := assert.New(t)

	transport := newFakeServerTransport()
	transport.bindings["carrots"] = wire.OID(2)
	s, mgr := newTestStore(t, transport)

	txn := mgr.Join(time.Time{})
	lookup, err := s.GetBinding(txn, wire.Name("bananas"))
	assert.NoError(err)
	assert.False(lookup.Found)
	assert.Equal(wire.Name("carrots"), lookup.CeilingName)
}

func TestNextBoundNameIsMonotonic(t *testing.T) {
	assert := assert.New(t)

	transport := newFakeServerTransport()
	transport.bindings["apples"] = wire.OID(1)
	transport.bindings["carrots"] = wire.OID(2)
	s, mgr := newTestStore(t, transport)

	txn := mgr.Join(time.Time{})
	next, oid, err := s.NextBoundName(txn, wire.First())
	assert.NoError(err)
	assert.Equal(wire.Name("apples"), next)
	assert.Equal(wire.OID(1), oid)

	next2, oid2, err := s.NextBoundName(txn, next)
	assert.NoError(err)
	assert.Equal(wire.Name("carrots"), next2)
	assert.Equal(wire.OID(2), oid2)

	next3, _, err := s.NextBoundName(txn, next2)
	assert.NoError(err)
	assert.True(next3.IsLast())
}

func TestRequestEvictObjectIsIdempotent(t *testing.T) {
	assert := assert.New(t)

	transport := newFakeServerTransport()
	transport.objects[wire.OID(1)] = []byte("v")
	s, mgr := newTestStore(t, transport)

	txn := mgr.Join(time.Time{})
	_, err := s.GetObject(txn, wire.OID(1), false)
	assert.NoError(err)

	first := s.RequestEvictObject(wire.OID(1))
	second := s.RequestEvictObject(wire.OID(1))
	assert.Equal(first, second)
	assert.True(second)
}

func TestRequestEvictObjectDefersWhileHeldForWrite(t *testing.T) {
	assert := assert.New(t)

	transport := newFakeServerTransport()
	transport.objects[wire.OID(1)] = []byte("v")
	s, mgr := newTestStore(t, transport)

	txn := mgr.Join(time.Time{})
	_, err := s.GetObject(txn, wire.OID(1), true)
	assert.NoError(err)

	assert.False(s.RequestEvictObject(wire.OID(1)))
}

// TestGetObjectForUpdateUpgradesFromReadable exercises the branch
// AwaitWritable's Readable/Writable/Decached trichotomy exists for:
// a read-only cached entry must still be promoted via upgradeObject
// rather than treated as already writable.
func TestGetObjectForUpdateUpgradesFromReadable(t *testing.T) {
	assert := assert.New(t)

	transport := newFakeServerTransport()
	transport.objects[wire.OID(1)] = []byte("v1")
	s, mgr := newTestStore(t, transport)

	reader := mgr.Join(time.Time{})
	value, err := s.GetObject(reader, wire.OID(1), false)
	assert.NoError(err)
	assert.Equal([]byte("v1"), value)

	calls := len(transport.calls)

	writer := mgr.Join(time.Time{})
	value, err = s.GetObject(writer, wire.OID(1), true)
	assert.NoError(err)
	assert.Equal([]byte("v1"), value)
	assert.Contains(transport.calls[calls:], "Server.UpgradeObject")
	assert.NotContains(transport.calls[calls:], "Server.GetObject",
		"a cached Readable entry must upgrade in place, not re-fetch")

	assert.NoError(s.SetObject(writer, wire.OID(1), []byte("v2")))
}

// TestSetBindingRebindRaceHasSingleWinner drives two transactions that
// both try to rebind the same already-bound name concurrently. Exactly
// one must win the Readable->Writable upgrade claim; the other must see
// the name already held writable by a different transaction rather than
// also completing its rebind.
func TestSetBindingRebindRaceHasSingleWinner(t *testing.T) {
	assert := assert.New(t)

	transport := newFakeServerTransport()
	transport.bindings["apples"] = wire.OID(1)
	s, mgr := newTestStore(t, transport)

	seed := mgr.Join(time.Time{})
	lookup, err := s.GetBinding(seed, wire.Name("apples"))
	assert.NoError(err)
	assert.True(lookup.Found)

	type result struct {
		err error
	}
	results := make(chan result, 2)
	start := make(chan struct{})

	rebind := func(oid wire.OID) {
		<-start
		txn := mgr.Join(time.Time{})
		results <- result{err: s.SetBinding(txn, wire.Name("apples"), oid)}
	}
	go rebind(wire.OID(2))
	go rebind(wire.OID(3))
	close(start)

	first := <-results
	second := <-results

	succeeded := 0
	failed := 0
	for _, r := range []result{first, second} {
		if r.err == nil {
			succeeded++
		} else {
			failed++
			assert.Contains(r.err.Error(), "held writable by another transaction")
		}
	}
	assert.Equal(1, succeeded, "exactly one rebind should win the upgrade claim")
	assert.Equal(1, failed, "the loser must see a conflict, not silently succeed")
}

// TestRemoveBindingWithSuccessorExtendsItsRange exercises removeBinding's
// successor branch: "y" is "x"'s successor, so removing "x" must extend
// "y"'s previousKey down to whatever already lay below "x", and the
// successor's write acquisition must actually complete rather than hang
// forever awaiting a pending-previous guard that (before this fix) could
// never clear in time for AwaitWritable to observe it.
func TestRemoveBindingWithSuccessorExtendsItsRange(t *testing.T) {
	assert := assert.New(t)

	transport := newFakeServerTransport()
	transport.bindings["x"] = wire.OID(1)
	transport.bindings["y"] = wire.OID(2)
	s, mgr := newTestStore(t, transport)

	seed := mgr.Join(time.Time{})
	_, err := s.GetBinding(seed, wire.Name("x"))
	assert.NoError(err)
	_, err = s.GetBinding(seed, wire.Name("y"))
	assert.NoError(err)

	target, ok := s.table.LookupBinding(wire.Name("x"))
	assert.True(ok)
	wantPreviousKey, wantUnbound := target.PreviousKey()

	txn := mgr.Join(time.Time{})
	done := make(chan error, 1)
	go func() { done <- s.RemoveBinding(txn, wire.Name("x")) }()

	select {
	case err := <-done:
		assert.NoError(err)
	case <-time.After(time.Second):
		t.Fatal("removeBinding deadlocked acquiring the successor's write access")
	}

	successor, ok := s.table.LookupBinding(wire.Name("y"))
	assert.True(ok)
	assert.False(successor.IsPendingPrevious(), "resolving the removal must clear the successor's guard flag")
	gotPreviousKey, gotUnbound := successor.PreviousKey()
	assert.Equal(wantPreviousKey, gotPreviousKey)
	assert.Equal(wantUnbound, gotUnbound)
}
