// Package txncontext tracks one in-flight transaction's footprint over
// the cache: every object and binding it has read (accesses), every one
// it has modified (modifications), the object ids it minted itself
// (new_objects), and the deadline (stop_time) by which it must either
// commit or abort. Context.Prepare validates the footprint is still
// coherent; Context.Commit stages the footprint's modifications onto the
// update queue for shipment; Context.Abort discards it.
package txncontext

import (
	"sync"
	"time"

	"github.com/objectgraph/cachestore/cachefail"
	"github.com/objectgraph/cachestore/cachestats"
	"github.com/objectgraph/cachestore/entry"
	"github.com/objectgraph/cachestore/updatequeue"
	"github.com/objectgraph/cachestore/wire"
)

// ObjectModification is a single object write staged for commit. Entry is
// nil only in tests that note a modification without a real cachetable
// entry behind it.
type ObjectModification struct {
	OID   wire.OID
	Value []byte
	Entry *entry.Entry
}

// BindingModification is a single binding write (set or remove, Removed
// distinguishes the two) staged for commit.
type BindingModification struct {
	Name    wire.BindingKey
	OID     wire.OID
	Removed bool
	Entry   *entry.Entry
}

// Context is one transaction's accumulated state between join and
// commit/abort.
type Context struct {
	mu sync.Mutex

	contextID wire.ContextID
	stopTime  time.Time

	accessedObjects  map[wire.OID]*entry.Entry
	accessedBindings map[wire.BindingKey]*entry.Entry

	modifiedObjects  map[wire.OID]ObjectModification
	modifiedBindings map[wire.BindingKey]BindingModification

	newObjects map[wire.OID]struct{}

	lastBinding wire.BindingKey

	done bool
}

// New creates a Context for contextID with the given stop_time deadline.
func New(contextID wire.ContextID, stopTime time.Time) *Context {
	return &Context{
		contextID:        contextID,
		stopTime:         stopTime,
		accessedObjects:  make(map[wire.OID]*entry.Entry),
		accessedBindings: make(map[wire.BindingKey]*entry.Entry),
		modifiedObjects:  make(map[wire.OID]ObjectModification),
		modifiedBindings: make(map[wire.BindingKey]BindingModification),
		newObjects:       make(map[wire.OID]struct{}),
	}
}

// ContextID returns the transaction's identifier.
func (c *Context) ContextID() wire.ContextID { return c.contextID }

// StopTime returns the transaction's deadline.
func (c *Context) StopTime() time.Time { return c.stopTime }

// Expired reports whether stopTime has already passed.
func (c *Context) Expired() bool {
	return !c.stopTime.IsZero() && time.Now().After(c.stopTime)
}

// NoteAccess records a read of oid against the entry that served it, so
// Prepare can later confirm the entry was never decached out from under
// this transaction.
func (c *Context) NoteAccess(oid wire.OID, e *entry.Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessedObjects[oid] = e
}

// NoteCachedObject is an alias for NoteAccess kept distinct at the call
// site so store code reads like the spec's noteCachedObject hook.
func (c *Context) NoteCachedObject(oid wire.OID, e *entry.Entry) { c.NoteAccess(oid, e) }

// NoteCachedReservedBinding records a read of a binding, including the
// synthetic reservation a PENDING_PREVIOUS lookup installs.
func (c *Context) NoteCachedReservedBinding(name wire.BindingKey, e *entry.Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessedBindings[name] = e
}

// NoteNewObject records that oid was minted by this transaction (via
// serverproto.NewObjectIds) and will be staged as a commit rather than
// looked up from the server.
func (c *Context) NoteNewObject(oid wire.OID, value []byte, e *entry.Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.newObjects[oid] = struct{}{}
	c.modifiedObjects[oid] = ObjectModification{OID: oid, Value: value, Entry: e}
}

// NoteModifiedObject records a write to an existing object.
func (c *Context) NoteModifiedObject(oid wire.OID, value []byte, e *entry.Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.modifiedObjects[oid] = ObjectModification{OID: oid, Value: value, Entry: e}
}

// NoteModifiedBinding records a set or remove of a binding.
func (c *Context) NoteModifiedBinding(name wire.BindingKey, oid wire.OID, removed bool, e *entry.Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.modifiedBindings[name] = BindingModification{Name: name, OID: oid, Removed: removed, Entry: e}
}

// NoteLastBinding records the highest-ordered binding name this
// transaction observed, used by nextBoundName's PENDING_PREVIOUS
// resolution to know how far its unbound-range claim extends.
func (c *Context) NoteLastBinding(name wire.BindingKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastBinding = name
}

// Prepare validates that the transaction's footprint is still consistent
// enough to commit: nothing it accessed or modified may have expired past
// stop_time, and no entry it accessed along the way may have since been
// decached by a server callback racing this transaction. Prepare performs
// no mutation of cache state; Commit does the staging.
func (c *Context) Prepare() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done {
		return cachefail.ReportProtocolViolation("txncontext: context %d prepared twice", uint64(c.contextID))
	}
	if c.Expired() {
		return cachefail.ReportTimeout(c.contextID)
	}
	for _, e := range c.accessedObjects {
		if e != nil && e.IsDecached() {
			return cachefail.ReportConflict(c.contextID)
		}
	}
	for _, e := range c.accessedBindings {
		if e != nil && e.IsDecached() {
			return cachefail.ReportConflict(c.contextID)
		}
	}
	return nil
}

// Commit stages every modification this transaction accumulated onto
// queue and marks the context done; queue delivery, not this call, is
// what ships the commit to the server.
func (c *Context) Commit(queue *updatequeue.Queue) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done {
		return cachefail.ReportProtocolViolation("txncontext: context %d committed twice", uint64(c.contextID))
	}
	c.done = true

	for _, mod := range c.modifiedObjects {
		queue.Enqueue(updatequeue.Item{
			Kind:      updatequeue.CommitObject,
			ContextID: c.contextID,
			OID:       mod.OID,
			Value:     mod.Value,
			Entry:     mod.Entry,
		})
	}
	for _, mod := range c.modifiedBindings {
		queue.Enqueue(updatequeue.Item{
			Kind:      updatequeue.CommitBinding,
			ContextID: c.contextID,
			Binding:   mod.Name,
			OID:       mod.OID,
			Entry:     mod.Entry,
		})
	}
	cachestats.TxnCommitted()
	cachestats.CommitShipped()
	return nil
}

// Abort discards the transaction's footprint without staging anything.
func (c *Context) Abort() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.done = true
	cachestats.TxnAborted()
}

// AccessedObjects returns the set of object ids this transaction has read.
func (c *Context) AccessedObjects() []wire.OID {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]wire.OID, 0, len(c.accessedObjects))
	for oid := range c.accessedObjects {
		out = append(out, oid)
	}
	return out
}

// ModifiedObjects returns the set of object modifications staged so far.
func (c *Context) ModifiedObjects() []ObjectModification {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]ObjectModification, 0, len(c.modifiedObjects))
	for _, mod := range c.modifiedObjects {
		out = append(out, mod)
	}
	return out
}

// Manager tracks every live Context by context id, handing out
// monotonically increasing ids as transactions join.
type Manager struct {
	mu       sync.Mutex
	next     wire.ContextID
	contexts map[wire.ContextID]*Context
}

// NewManager creates an empty Manager.
func NewManager() *Manager {
	return &Manager{contexts: make(map[wire.ContextID]*Context)}
}

// Join allocates a new Context with a fresh monotonically increasing
// context id and the given stop_time deadline.
func (m *Manager) Join(stopTime time.Time) *Context {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	ctx := New(m.next, stopTime)
	m.contexts[ctx.contextID] = ctx
	return ctx
}

// Lookup returns the Context for contextID, if still live.
func (m *Manager) Lookup(contextID wire.ContextID) (*Context, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ctx, ok := m.contexts[contextID]
	return ctx, ok
}

// Release removes contextID from the manager once it has committed or
// aborted.
func (m *Manager) Release(contextID wire.ContextID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.contexts, contextID)
}

// Count returns the number of live (joined but not yet released)
// contexts, used for txn_count bookkeeping.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.contexts)
}
