// Package entry implements the per-key coherence state machine shared by
// cached objects and cached bindings: the flag set, the legal transitions
// between them, and the blocking awaits a transaction context uses to wait
// for an entry to settle into a stable state.
//
// The wait-queue mechanism follows pfsagentd/lease.go's lockWaiters
// pattern: a FIFO list of per-waiter channels, each woken with a single
// value send rather than a broadcast, so exactly one blocked goroutine
// proceeds per wakeup and ordering among waiters is preserved. Awaiters
// here all wait on the same condition space (entry settled into a new
// state) so every wakeup is a wakeAll rather than a single wake.
package entry

import (
	"container/list"
	"sync"
	"time"

	"github.com/objectgraph/cachestore/wire"
)

// State is the set of flags an Entry can carry. Object entries use
// FetchingRead, FetchingUpgrade, Readable, Writable, Downgrading,
// Decaching and Decached; binding entries use those same states plus the
// orthogonal pendingPrevious guard flag below, which can combine with any
// of them (spec.md section 4.2 describes PENDING_PREVIOUS as a
// binding-only flag, not a state of its own — fusing it into State made
// AwaitWritable on a pending-previous successor unsatisfiable, since the
// only way out of a fused PendingPrevious state was a call this code path
// made only after AwaitWritable had already returned).
type State uint8

const (
	// FetchingRead means a getObject/getBinding round-trip to the server
	// is outstanding and no value is available yet.
	FetchingRead State = iota
	// FetchingUpgrade means a getObjectForUpdate/upgradeObject round-trip
	// is outstanding; a stale read-only value may still be visible.
	FetchingUpgrade
	// Readable means a value is cached and safe to read.
	Readable
	// Writable means a value is cached and held exclusively; the holder
	// may modify it and the modification will be shipped at commit.
	Writable
	// Downgrading means the server has requested this entry relinquish
	// its write access; in-flight transactions must finish before the
	// downgrade completes.
	Downgrading
	// Decaching means the server has requested this entry be evicted
	// entirely; in-flight transactions must finish before the decache
	// completes.
	Decaching
	// Decached is terminal: the entry has left the cache and any holder
	// must look it up again.
	Decached
)

func (s State) String() string {
	switch s {
	case FetchingRead:
		return "FETCHING_READ"
	case FetchingUpgrade:
		return "FETCHING_UPGRADE"
	case Readable:
		return "READABLE"
	case Writable:
		return "WRITABLE"
	case Downgrading:
		return "DOWNGRADING"
	case Decaching:
		return "DECACHING"
	case Decached:
		return "DECACHED"
	default:
		return "UNKNOWN"
	}
}

// Entry is the coherence record for one cached object or binding. Value
// holds the last fetched payload (an opaque blob for objects, a wire.OID
// for bindings); callers serialize/deserialize it themselves.
type Entry struct {
	mu sync.Mutex

	state State
	value interface{}

	// contextID is the owning transaction while state is Writable or
	// FetchingUpgrade and the write hasn't settled yet; ClearModified
	// resets it to zero once the write ships, even though state stays
	// Writable until an explicit downgrade.
	contextID wire.ContextID

	// previousKey and previousKeyUnbound record, for a binding entry,
	// how far below this key the cache can assert "nothing is bound"
	// without consulting the server again.
	previousKey        wire.BindingKey
	previousKeyUnbound bool

	// pendingPrevious is binding-only: true while the unbound range below
	// this binding is being resolved against the server, so reads of "no
	// binding exists in this range" must wait. It is orthogonal to state
	// rather than a state of its own, since a binding can be Writable (or
	// any other state) while its predecessor's range is still resolving.
	pendingPrevious bool

	// settled is the FIFO of waiters blocked in one of the Await*
	// methods; every state transition wakes the whole queue since each
	// waiter has its own predicate to recheck.
	settled *list.List

	lastAccess time.Time

	// modified records that a local transaction has committed a change to
	// this entry that has not yet shipped to the authoritative server
	// (spec.md section 3's common modified flag).
	modified bool
}

// New creates an entry in FetchingRead, as installed by the store while a
// getObject/getBinding RPC is outstanding.
func New() *Entry {
	return &Entry{
		state:   FetchingRead,
		settled: list.New(),
	}
}

// NewForUpdate creates an entry in FetchingUpgrade, owned by contextID,
// as installed while a getObjectForUpdate/getBindingForUpdate RPC is
// outstanding.
func NewForUpdate(contextID wire.ContextID) *Entry {
	e := New()
	e.state = FetchingUpgrade
	e.contextID = contextID
	return e
}

func wakeAll(q *list.List) {
	for {
		front := q.Front()
		if front == nil {
			return
		}
		q.Remove(front)
		ch := front.Value.(chan struct{})
		ch <- struct{}{}
	}
}

// State returns the entry's current state and owning context, if any.
func (e *Entry) State() (State, wire.ContextID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state, e.contextID
}

// Value returns the entry's cached payload.
func (e *Entry) Value() interface{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.value
}

// Touch records an access for LRU/eviction-hint purposes.
func (e *Entry) Touch() {
	e.mu.Lock()
	e.lastAccess = time.Now()
	e.mu.Unlock()
}

// LastAccess reports the time of the most recent Touch.
func (e *Entry) LastAccess() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastAccess
}

// CompleteRead transitions FetchingRead -> Readable (transition 1) and
// installs value.
func (e *Entry) CompleteRead(value interface{}) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = Readable
	e.value = value
	wakeAll(e.settled)
}

// CompleteUpgrade transitions FetchingUpgrade -> Writable (transition 2)
// and installs value.
func (e *Entry) CompleteUpgrade(value interface{}) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = Writable
	e.value = value
	wakeAll(e.settled)
}

// BeginDowngrade transitions Writable -> Downgrading (transition 3),
// called when the server requests this entry relinquish write access.
func (e *Entry) BeginDowngrade() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = Downgrading
}

// CompleteDowngrade transitions Downgrading -> Readable (transition 4),
// once every in-flight transaction holding this entry has finished.
func (e *Entry) CompleteDowngrade() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = Readable
	e.contextID = 0
	wakeAll(e.settled)
}

// BeginDecache transitions Readable|Writable -> Decaching (transition 5),
// called when the server requests this entry be evicted or when the
// evictor chooses it.
func (e *Entry) BeginDecache() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = Decaching
}

// CompleteDecache transitions Decaching -> Decached (transition 6), the
// terminal state; every blocked waiter is woken so it can retry its
// lookup and observe the entry gone from the table.
func (e *Entry) CompleteDecache() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = Decached
	wakeAll(e.settled)
}

// SetPendingPrevious raises the pendingPrevious guard flag (binding-only)
// while this entry's unbound range below is being resolved, without
// disturbing state: a binding can be Writable (e.g. while RemoveBinding
// extends its previous_key) at the same time its range is pending.
func (e *Entry) SetPendingPrevious() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pendingPrevious = true
}

// ResolvePendingPrevious lowers the pendingPrevious guard flag and
// records how far below this binding the cache can assert "unbound"
// without asking the server again. It leaves state untouched.
func (e *Entry) ResolvePendingPrevious(previousKey wire.BindingKey, unbound bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pendingPrevious = false
	e.previousKey = previousKey
	e.previousKeyUnbound = unbound
	wakeAll(e.settled)
}

// PreviousKey returns the recorded unbound lower bound for a binding
// entry and whether it is actually unbound (false once a binding has been
// observed in that range).
func (e *Entry) PreviousKey() (wire.BindingKey, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.previousKey, e.previousKeyUnbound
}

// IsDecached reports whether the entry has reached its terminal state.
func (e *Entry) IsDecached() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state == Decached
}

// InUse reports whether any transaction currently holds this entry for
// reading or writing, used by the evictor's eviction-preference order.
func (e *Entry) InUse() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.contextID != 0
}

// InUseForWrite reports whether the entry is held Writable, the second
// tier of the evictor's eviction-preference order.
func (e *Entry) InUseForWrite() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state == Writable || e.state == FetchingUpgrade
}

// ContextID returns the owning transaction's context id, zero if none.
func (e *Entry) ContextID() wire.ContextID {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.contextID
}

// IsDecaching reports whether a decache is already underway, letting a
// repeated requestEvict* callback for the same key recognize it has
// already been accepted instead of enqueueing a second eviction.
func (e *Entry) IsDecaching() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state == Decaching
}

// IsDowngrading reports whether a downgrade is already underway.
func (e *Entry) IsDowngrading() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state == Downgrading
}

// IsPendingPrevious reports whether the binding-only guard flag is
// currently raised.
func (e *Entry) IsPendingPrevious() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pendingPrevious
}

// IsFetching reports whether a getObject/getBinding or
// getObjectForUpdate/getBindingForUpdate round trip is still outstanding.
// A server-initiated requestEvict/requestDowngrade callback racing a
// fetch in this state must not settle synchronously: the fetch's
// Complete{Read,Upgrade} call will otherwise stomp whatever terminal
// state the callback just installed, since it writes state
// unconditionally once the round trip returns.
func (e *Entry) IsFetching() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state == FetchingRead || e.state == FetchingUpgrade
}

// MarkModified flags the entry as carrying a locally committed change not
// yet shipped to the server.
func (e *Entry) MarkModified() {
	e.mu.Lock()
	e.modified = true
	e.mu.Unlock()
}

// ClearModified flags a previously staged change as shipped and releases
// the owning transaction's hold: once the update queue has drained past
// this write, contextID no longer names a live writer, so InUse (and the
// evictor's preference order) stop treating the entry as held regardless
// of how long it sits at Writable waiting for a server-initiated
// downgrade that may never come.
func (e *Entry) ClearModified() {
	e.mu.Lock()
	e.modified = false
	e.contextID = 0
	e.mu.Unlock()
}

// IsModified reports whether the entry carries an unshipped local change.
func (e *Entry) IsModified() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.modified
}

// TryBeginUpgrade atomically claims e for an upgrade to Writable on behalf
// of contextID, transitioning Readable -> FetchingUpgrade. It returns false
// without changing state if e was not Readable, meaning some other
// transaction already owns the upgrade (or the entry moved on entirely);
// the caller must fall back to awaiting the entry's next settled state
// instead of racing a second upgradeObject/upgradeBinding RPC.
func (e *Entry) TryBeginUpgrade(contextID wire.ContextID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != Readable {
		return false
	}
	e.state = FetchingUpgrade
	e.contextID = contextID
	return true
}

// AbortUpgrade reverts a failed TryBeginUpgrade back to Readable, clearing
// the context id it claimed, and wakes any waiter blocked on the entry
// settling so it can retry.
func (e *Entry) AbortUpgrade() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = Readable
	e.contextID = 0
	wakeAll(e.settled)
}

// ErrTimeout is returned by the Await* functions when stopTime elapses
// before the entry reaches the awaited state.
var ErrTimeout = errTimeout{}

type errTimeout struct{}

func (errTimeout) Error() string { return "entry: await deadline exceeded" }

// AwaitReadable blocks until the entry is Readable, Writable (a writer
// may always read its own write), or Decached, or until stopTime passes.
func (e *Entry) AwaitReadable(stopTime time.Time) error {
	return e.awaitUntil(stopTime, func() bool {
		return e.state == Readable || e.state == Writable || e.state == Decached
	})
}

// AwaitWritable blocks until the entry settles into the trichotomy spec.md
// section 4.2 requires of awaitWritable — Decached, Readable (the caller
// must still schedule an upgrade), or Writable — or until stopTime passes.
func (e *Entry) AwaitWritable(stopTime time.Time) error {
	return e.awaitUntil(stopTime, func() bool {
		return e.state == Writable || e.state == Readable || e.state == Decached
	})
}

// AwaitNotPendingPrevious blocks until a binding entry's pendingPrevious
// guard flag lowers, or until stopTime passes.
func (e *Entry) AwaitNotPendingPrevious(stopTime time.Time) error {
	return e.awaitUntil(stopTime, func() bool {
		return !e.pendingPrevious
	})
}

// awaitUntil blocks on e.settled until cond holds, enqueuing a waiter
// channel per pfsagentd/lease.go's lockWaiters convention: the waiter
// pushes its channel while still holding mu, releases mu, and blocks on a
// single-value receive so wakeups are never missed between the check and
// the block.
func (e *Entry) awaitUntil(stopTime time.Time, cond func() bool) error {
	for {
		e.mu.Lock()
		if cond() {
			e.mu.Unlock()
			return nil
		}
		ch := make(chan struct{})
		elem := e.settled.PushBack(ch)
		e.mu.Unlock()

		if stopTime.IsZero() {
			<-ch
			continue
		}

		timer := time.NewTimer(time.Until(stopTime))
		select {
		case <-ch:
			timer.Stop()
		case <-timer.C:
			e.mu.Lock()
			e.settled.Remove(elem)
			e.mu.Unlock()
			return ErrTimeout
		}
	}
}
