// Package cachetable holds the cache's coherence state: one Entry per
// cached object or binding, looked up by wire.OID or wire.BindingKey, plus
// the ordered binding index used to answer ceiling/higher lookups over the
// binding-name keyspace.
//
// Locking follows the teacher's striped-lock convention (dlm.RWLockStruct,
// trackedlock.Mutex): a fixed number of stripes, each guarding a subset of
// entries selected by hashing the key, so that unrelated keys rarely
// contend. The table itself additionally holds a single mutex protecting
// the sortedmap binding index and the object map headers (not the entries'
// internal state, which is protected by its own stripe).
package cachetable

import (
	"fmt"

	"github.com/NVIDIA/sortedmap"
	"github.com/creachadair/cityhash"

	"github.com/objectgraph/cachestore/entry"
	"github.com/objectgraph/cachestore/trackedlock"
	"github.com/objectgraph/cachestore/wire"
)

// Table is the client-side cache: a map of object entries, a map of
// binding entries, and an ordered index over the binding keyspace letting
// the store answer "what is bound at or above this name" without a linear
// scan.
type Table struct {
	numStripes uint32
	stripes    []trackedlock.Mutex

	mapMutex trackedlock.Mutex
	objects  map[wire.OID]*entry.Entry
	bindings map[wire.BindingKey]*entry.Entry
	index    sortedmap.LLRBTree

	capacity int
	reserved int
	inUse    int

	full *FullNotifier
}

// FullNotifier lets the evictor block until capacity frees up, following
// the pfsagentd/lease.go pattern of a FIFO queue of per-waiter channels
// rather than a single broadcast sync.Cond.
type FullNotifier struct {
	waiters []chan struct{}
}

func (f *FullNotifier) wait() chan struct{} {
	ch := make(chan struct{})
	f.waiters = append(f.waiters, ch)
	return ch
}

func (f *FullNotifier) notifyOne() {
	if len(f.waiters) == 0 {
		return
	}
	ch := f.waiters[0]
	f.waiters = f.waiters[1:]
	close(ch)
}

func (f *FullNotifier) notifyAll() {
	for _, ch := range f.waiters {
		close(ch)
	}
	f.waiters = nil
}

type dumpCallbacks struct{}

func (dumpCallbacks) DumpKey(key sortedmap.Key) (string, error) {
	bk, ok := key.(wire.BindingKey)
	if !ok {
		return "", fmt.Errorf("cachetable: index key %v is not a wire.BindingKey", key)
	}
	return bk.String(), nil
}

func (dumpCallbacks) DumpValue(value sortedmap.Value) (string, error) {
	return fmt.Sprintf("%v", value), nil
}

// New creates an empty Table sized for capacity entries, split across
// numStripes lock stripes (defaults to cacheconf's NumLocks, typically 20).
func New(capacity int, numStripes uint32) *Table {
	if numStripes == 0 {
		numStripes = 1
	}
	t := &Table{
		numStripes: numStripes,
		stripes:    make([]trackedlock.Mutex, numStripes),
		objects:    make(map[wire.OID]*entry.Entry),
		bindings:   make(map[wire.BindingKey]*entry.Entry),
		index:      sortedmap.NewLLRBTree(wire.CompareSortedMap, dumpCallbacks{}),
		capacity:   capacity,
		full:       &FullNotifier{},
	}
	// the FIRST/LAST sentinels always sit in the index so ceiling/higher
	// lookups never fall off either end.
	_, _ = t.index.Put(wire.First(), struct{}{})
	_, _ = t.index.Put(wire.Last(), struct{}{})
	return t
}

func (t *Table) stripeForOID(oid wire.OID) *trackedlock.Mutex {
	return &t.stripes[uint64(oid)%uint64(t.numStripes)]
}

func (t *Table) stripeForBinding(key wire.BindingKey) *trackedlock.Mutex {
	h := cityhash.Hash32([]byte(key.String()))
	return &t.stripes[h%t.numStripes]
}

// ObjectStripe returns the stripe lock guarding oid's entry, letting the
// store facade hold it across the multi-step getObject/setObject
// protocol described in spec.md 4.6.1 rather than re-deriving the stripe
// index itself.
func (t *Table) ObjectStripe(oid wire.OID) *trackedlock.Mutex {
	return t.stripeForOID(oid)
}

// BindingStripe returns the stripe lock guarding name's entry.
func (t *Table) BindingStripe(name wire.BindingKey) *trackedlock.Mutex {
	return t.stripeForBinding(name)
}

// LookupObject returns the entry for oid, if cached.
func (t *Table) LookupObject(oid wire.OID) (*entry.Entry, bool) {
	stripe := t.stripeForOID(oid)
	stripe.Lock()
	defer stripe.Unlock()

	t.mapMutex.Lock()
	defer t.mapMutex.Unlock()
	e, ok := t.objects[oid]
	return e, ok
}

// LookupBinding returns the entry for name, if cached.
func (t *Table) LookupBinding(name wire.BindingKey) (*entry.Entry, bool) {
	stripe := t.stripeForBinding(name)
	stripe.Lock()
	defer stripe.Unlock()

	t.mapMutex.Lock()
	defer t.mapMutex.Unlock()
	e, ok := t.bindings[name]
	return e, ok
}

// LookupObjectStriped is LookupObject's counterpart for a caller that
// already holds the stripe lock returned by ObjectStripe — it touches only
// mapMutex, never the stripe, so it is safe to call while that stripe is
// held (LookupObject itself is not: it would deadlock on its own stripe).
func (t *Table) LookupObjectStriped(oid wire.OID) (*entry.Entry, bool) {
	t.mapMutex.Lock()
	defer t.mapMutex.Unlock()
	e, ok := t.objects[oid]
	return e, ok
}

// LookupBindingStriped is LookupBinding's counterpart for a caller that
// already holds the stripe lock returned by BindingStripe.
func (t *Table) LookupBindingStriped(name wire.BindingKey) (*entry.Entry, bool) {
	t.mapMutex.Lock()
	defer t.mapMutex.Unlock()
	e, ok := t.bindings[name]
	return e, ok
}

// InsertObject installs a freshly fetched object entry, reserving capacity
// for it first; callers must have already called Reserve.
func (t *Table) InsertObject(oid wire.OID, e *entry.Entry) {
	t.mapMutex.Lock()
	defer t.mapMutex.Unlock()
	t.objects[oid] = e
	t.reserved--
	t.inUse++
}

// InsertBinding installs a binding entry and threads it into the ordered
// index so ceiling/higher lookups can find it.
func (t *Table) InsertBinding(name wire.BindingKey, e *entry.Entry) error {
	t.mapMutex.Lock()
	defer t.mapMutex.Unlock()
	t.bindings[name] = e
	ok, err := t.index.Put(name, e)
	if err != nil {
		return fmt.Errorf("cachetable: indexing binding %s: %w", name, err)
	}
	if !ok {
		return fmt.Errorf("cachetable: binding %s already indexed", name)
	}
	t.reserved--
	t.inUse++
	return nil
}

// RemoveObject deletes oid's entry entirely (used on eviction/decache).
func (t *Table) RemoveObject(oid wire.OID) {
	t.mapMutex.Lock()
	defer t.mapMutex.Unlock()
	if _, ok := t.objects[oid]; ok {
		delete(t.objects, oid)
		t.inUse--
	}
}

// RemoveBinding deletes name's entry and its index row.
func (t *Table) RemoveBinding(name wire.BindingKey) error {
	t.mapMutex.Lock()
	defer t.mapMutex.Unlock()
	if _, ok := t.bindings[name]; !ok {
		return nil
	}
	delete(t.bindings, name)
	ok, err := t.index.DeleteByKey(name)
	if err != nil {
		return fmt.Errorf("cachetable: deindexing binding %s: %w", name, err)
	}
	if !ok {
		return fmt.Errorf("cachetable: binding %s missing from index", name)
	}
	t.inUse--
	return nil
}

// CeilingBinding returns the lowest indexed key >= name (FIRST/LAST
// included), the companion entry if it is an ordinary name, and whether
// that row is present at all (always true, since FIRST/LAST are sentinels
// permanently resident in the index).
func (t *Table) CeilingBinding(name wire.BindingKey) (key wire.BindingKey, e *entry.Entry, err error) {
	t.mapMutex.Lock()
	defer t.mapMutex.Unlock()

	index, found, err := t.index.BisectLeft(name)
	if err != nil {
		return wire.BindingKey{}, nil, fmt.Errorf("cachetable: bisecting for ceiling of %s: %w", name, err)
	}
	if !found {
		// BisectLeft lands just before name's insertion point when there
		// is no exact match; the ceiling is one row further on.
		index++
	}
	k, v, ok, err := t.index.GetByIndex(index)
	if err != nil {
		return wire.BindingKey{}, nil, fmt.Errorf("cachetable: reading ceiling row %d: %w", index, err)
	}
	if !ok {
		return wire.Last(), nil, nil
	}
	key = k.(wire.BindingKey)
	if ent, ok := v.(*entry.Entry); ok {
		e = ent
	}
	return key, e, nil
}

// HigherBinding returns the lowest indexed key strictly greater than name.
func (t *Table) HigherBinding(name wire.BindingKey) (key wire.BindingKey, e *entry.Entry, err error) {
	t.mapMutex.Lock()
	defer t.mapMutex.Unlock()

	index, found, err := t.index.BisectRight(name)
	if err != nil {
		return wire.BindingKey{}, nil, fmt.Errorf("cachetable: bisecting for higher of %s: %w", name, err)
	}
	if found {
		// BisectRight's match already lands one row past an exact hit for
		// the strict-greater case; a miss lands there directly too.
	}
	k, v, ok, err := t.index.GetByIndex(index)
	if err != nil {
		return wire.BindingKey{}, nil, fmt.Errorf("cachetable: reading higher row %d: %w", index, err)
	}
	if !ok {
		return wire.Last(), nil, nil
	}
	key = k.(wire.BindingKey)
	if ent, ok := v.(*entry.Entry); ok {
		e = ent
	}
	return key, e, nil
}

// Reserve attempts to claim n slots of capacity, blocking on the
// FullNotifier until the evictor frees enough room. Callers release
// unused reservations with Release.
func (t *Table) Reserve(n int) {
	for {
		t.mapMutex.Lock()
		if t.reserved+t.inUse+n <= t.capacity {
			t.reserved += n
			t.mapMutex.Unlock()
			return
		}
		ch := t.full.wait()
		t.mapMutex.Unlock()
		<-ch
	}
}

// Release returns n previously reserved slots, waking one blocked reserver.
func (t *Table) Release(n int) {
	t.mapMutex.Lock()
	t.reserved -= n
	t.full.notifyOne()
	t.mapMutex.Unlock()
}

// Len returns the number of live object+binding entries, for stats and for
// the evictor's high-water-mark check.
func (t *Table) Len() int {
	t.mapMutex.Lock()
	defer t.mapMutex.Unlock()
	return t.inUse
}

// ObjectSnapshot pairs a cached object's key with its entry, for callers
// (the evictor) that need to act on whichever entry they pick from a scan.
type ObjectSnapshot struct {
	OID   wire.OID
	Entry *entry.Entry
}

// BindingSnapshot pairs a cached binding's key with its entry.
type BindingSnapshot struct {
	Name  wire.BindingKey
	Entry *entry.Entry
}

// AllObjects returns a snapshot slice of every cached object entry, used by
// the evictor to scan for eviction candidates. Snapshotting avoids holding
// mapMutex for the duration of a scan.
func (t *Table) AllObjects() []ObjectSnapshot {
	t.mapMutex.Lock()
	defer t.mapMutex.Unlock()
	out := make([]ObjectSnapshot, 0, len(t.objects))
	for oid, e := range t.objects {
		out = append(out, ObjectSnapshot{OID: oid, Entry: e})
	}
	return out
}

// AllBindings returns a snapshot slice of every cached binding entry.
func (t *Table) AllBindings() []BindingSnapshot {
	t.mapMutex.Lock()
	defer t.mapMutex.Unlock()
	out := make([]BindingSnapshot, 0, len(t.bindings))
	for name, e := range t.bindings {
		out = append(out, BindingSnapshot{Name: name, Entry: e})
	}
	return out
}

// FreeCapacity returns the number of unreserved, unoccupied slots left.
func (t *Table) FreeCapacity() int {
	t.mapMutex.Lock()
	defer t.mapMutex.Unlock()
	return t.capacity - t.reserved - t.inUse
}

// Capacity returns the table's total slot budget.
func (t *Table) Capacity() int {
	t.mapMutex.Lock()
	defer t.mapMutex.Unlock()
	return t.capacity
}
