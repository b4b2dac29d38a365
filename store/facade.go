// Package store implements the cache's externally visible operations
// (spec.md section 4.6): getObject, getBinding, setBinding, removeBinding,
// nextBoundName, and the server-initiated requestEvict/requestDowngrade
// callbacks. It is the one component that drives cachetable, entry,
// serverproto, updatequeue and txncontext together.
package store

import (
	"errors"

	"github.com/objectgraph/cachestore/cachefail"
	"github.com/objectgraph/cachestore/cachelog"
	"github.com/objectgraph/cachestore/cachestats"
	"github.com/objectgraph/cachestore/cachetable"
	"github.com/objectgraph/cachestore/entry"
	"github.com/objectgraph/cachestore/serverproto"
	"github.com/objectgraph/cachestore/txncontext"
	"github.com/objectgraph/cachestore/updatequeue"
	"github.com/objectgraph/cachestore/utils"
	"github.com/objectgraph/cachestore/wire"
)

// retryCap bounds the getObject/getBinding/setBinding/removeBinding/
// nextBoundName retry loops so a coherence bug shows up as an error
// rather than an infinite loop; production escalates via cachefail
// instead of the debug-only assertion original_source/CachingDataStore.java
// used.
const retryCap = 1000

// ErrObjectNotFound is returned by GetObject when oid is absent or
// tombstoned on the server.
var ErrObjectNotFound = errors.New("store: object not found")

// Store is the cache's facade over the table, server client, update
// queue and transaction contexts.
type Store struct {
	table  *cachetable.Table
	client *serverproto.Client
	queue  *updatequeue.Queue
}

// New builds a Store over the given table, server client and update
// queue.
func New(table *cachetable.Table, client *serverproto.Client, queue *updatequeue.Queue) *Store {
	return &Store{table: table, client: client, queue: queue}
}

// GetObject implements spec.md 4.6.1: fetch oid, optionally for update,
// noting the access in txn's footprint.
func (s *Store) GetObject(txn *txncontext.Context, oid wire.OID, forUpdate bool) ([]byte, error) {
	stripe := s.table.ObjectStripe(oid)

	for attempt := 0; attempt < retryCap; attempt++ {
		stripe.Lock()
		// LookupObjectStriped, not LookupObject: LookupObject independently
		// locks this same stripe and would deadlock against the Lock above.
		e, ok := s.table.LookupObjectStriped(oid)
		if !ok {
			s.table.Reserve(1)
			if forUpdate {
				e = entry.NewForUpdate(txn.ContextID())
			} else {
				e = entry.New()
			}
			s.table.InsertObject(oid, e)
			stripe.Unlock()

			s.fetchObject(txn, oid, e, forUpdate)
			continue
		}
		stripe.Unlock()

		if forUpdate {
			if err := e.AwaitWritable(txn.StopTime()); err != nil {
				return nil, cachefail.ReportTimeout(txn.ContextID())
			}
			state, _ := e.State()
			if state == entry.Decached {
				continue
			}
			if state == entry.Readable {
				s.upgradeObject(txn, oid, e)
				continue
			}
			// state == Writable
		} else {
			if err := e.AwaitReadable(txn.StopTime()); err != nil {
				return nil, cachefail.ReportTimeout(txn.ContextID())
			}
			state, _ := e.State()
			if state == entry.Decached {
				continue
			}
		}

		value, ok := e.Value().([]byte)
		if !ok || value == nil {
			return nil, ErrObjectNotFound
		}
		txn.NoteAccess(oid, e)
		e.Touch()
		cachestats.ObjectHit()
		return value, nil
	}
	return nil, cachefail.ReportProtocolViolation("store: getObject(%d) exceeded retry cap", uint64(oid))
}

func (s *Store) fetchObject(txn *txncontext.Context, oid wire.OID, e *entry.Entry, forUpdate bool) {
	sw := utils.NewStopwatch()
	var (
		value []byte
		found bool
		err   error
	)
	if forUpdate {
		value, found, err = s.client.GetObjectForUpdate(txn.ContextID(), oid)
	} else {
		value, found, err = s.client.GetObject(txn.ContextID(), oid)
	}
	cachestats.ObjectFetchUsec(uint64(sw.ElapsedUs()))
	if err != nil {
		cachelog.ObjectEvent(oid, "fetch failed: %v", err)
		s.table.Release(1)
		s.table.RemoveObject(oid)
		e.CompleteDecache()
		return
	}
	if !found {
		value = nil
	}
	if forUpdate {
		e.CompleteUpgrade(value)
	} else {
		e.CompleteRead(value)
	}
}

// upgradeObject claims e for txn via TryBeginUpgrade before issuing the
// RPC, so two transactions racing to upgrade the same Readable entry never
// both call UpgradeObject; the loser simply finds TryBeginUpgrade already
// lost its race and falls back to the outer loop's AwaitWritable.
func (s *Store) upgradeObject(txn *txncontext.Context, oid wire.OID, e *entry.Entry) {
	if !e.TryBeginUpgrade(txn.ContextID()) {
		return
	}
	value, err := s.client.UpgradeObject(txn.ContextID(), oid)
	if err != nil {
		cachelog.ObjectEvent(oid, "upgrade failed: %v", err)
		e.AbortUpgrade()
		return
	}
	e.CompleteUpgrade(value)
}

// SetObject stages a write to oid onto txn's footprint; the entry must
// already be held writable via a prior GetObject(forUpdate=true).
func (s *Store) SetObject(txn *txncontext.Context, oid wire.OID, value []byte) error {
	e, ok := s.table.LookupObject(oid)
	if !ok || e.ContextID() != txn.ContextID() {
		return cachefail.ReportProtocolViolation("store: setObject(%d) without a held write lock", uint64(oid))
	}
	e.MarkModified()
	txn.NoteModifiedObject(oid, value, e)
	return nil
}

// bindingLookupResult mirrors the {oid, ceilingName} tuple spec.md 4.6.2
// and 4.6.3 return: Found=false with CeilingName set means "unbound, and
// the nearest bound name at or above is CeilingName".
type bindingLookupResult struct {
	Found       bool
	OID         wire.OID
	CeilingName wire.BindingKey
}

// GetBinding implements spec.md 4.6.2's ceiling-entry search.
func (s *Store) GetBinding(txn *txncontext.Context, name wire.BindingKey) (bindingLookupResult, error) {
	for attempt := 0; attempt < retryCap; attempt++ {
		ceilingKey, ceilingEntry, err := s.table.CeilingBinding(name)
		if err != nil {
			return bindingLookupResult{}, err
		}

		if ceilingEntry == nil {
			// No cached entry at or above name at all (only the LAST
			// sentinel row, or an as-yet-unpopulated range): ask the
			// server directly.
			found, oid, retry := s.resolveBindingMiss(txn, name, ceilingKey)
			if retry {
				continue
			}
			if found {
				return bindingLookupResult{Found: true, OID: oid}, nil
			}
			return bindingLookupResult{Found: false, CeilingName: ceilingKey}, nil
		}

		if err := ceilingEntry.AwaitNotPendingPrevious(txn.StopTime()); err != nil {
			return bindingLookupResult{}, cachefail.ReportTimeout(txn.ContextID())
		}
		if err := ceilingEntry.AwaitReadable(txn.StopTime()); err != nil {
			return bindingLookupResult{}, cachefail.ReportTimeout(txn.ContextID())
		}
		state, _ := ceilingEntry.State()
		if state == entry.Decached {
			continue
		}

		if wire.Compare(ceilingKey, name) == 0 {
			oid, _ := ceilingEntry.Value().(wire.OID)
			txn.NoteCachedObject(oid, ceilingEntry)
			cachestats.BindingHit()
			return bindingLookupResult{Found: true, OID: oid}, nil
		}

		previousKey, unbound := ceilingEntry.PreviousKey()
		if unbound && wire.Compare(previousKey, name) < 0 {
			txn.NoteCachedReservedBinding(name, ceilingEntry)
			cachestats.BindingHit()
			return bindingLookupResult{Found: false, CeilingName: ceilingKey}, nil
		}

		found, oid, retry := s.resolveBindingMiss(txn, name, ceilingKey)
		if retry {
			continue
		}
		if found {
			return bindingLookupResult{Found: true, OID: oid}, nil
		}
		return bindingLookupResult{Found: false, CeilingName: ceilingKey}, nil
	}
	return bindingLookupResult{}, cachefail.ReportProtocolViolation("store: getBinding(%s) exceeded retry cap", name.String())
}

// resolveBindingMiss asks the server to resolve name against the cache's
// current ceilingKey, inserting whatever new cache state the answer
// implies; retry=true means the caller's outer loop should run again
// because the cache state changed out from under it.
func (s *Store) resolveBindingMiss(txn *txncontext.Context, name, ceilingKey wire.BindingKey) (found bool, oid wire.OID, retry bool) {
	cachestats.BindingMiss()
	nameStr, _ := name.AllowLast()
	sw := utils.NewStopwatch()
	found, oid, nextName, err := s.client.GetBinding(txn.ContextID(), nameStr)
	cachestats.BindingFetchUsec(uint64(sw.ElapsedUs()))
	if err != nil {
		cachelog.BindingEvent(name, "server lookup failed: %v", err)
		return false, 0, false
	}

	if found {
		stripe := s.table.BindingStripe(name)
		stripe.Lock()
		if _, already := s.table.LookupBindingStriped(name); already {
			// a racing caller resolved the same miss first; the outer
			// loop will re-read whatever it installed.
			stripe.Unlock()
			return true, oid, true
		}
		e := entry.New()
		e.CompleteRead(oid)
		s.table.Reserve(1)
		_ = s.table.InsertBinding(name, e)
		stripe.Unlock()
		return true, oid, true
	}

	if wire.Compare(nextName, ceilingKey) == 0 {
		if ceilingEntry, ok := s.table.LookupBinding(ceilingKey); ok {
			ceilingEntry.ResolvePendingPrevious(name, true)
		}
		return false, 0, false
	}

	nextNameStr, _ := nextName.AllowLast()
	nextFound, nextOID, _, err := s.client.GetBinding(txn.ContextID(), nextNameStr)
	if err != nil || !nextFound {
		cachelog.BindingEvent(nextName, "server reported as next bound name but a follow-up lookup disagreed: %v", err)
		return false, 0, false
	}
	nextStripe := s.table.BindingStripe(nextName)
	nextStripe.Lock()
	if _, already := s.table.LookupBindingStriped(nextName); already {
		nextStripe.Unlock()
		return false, 0, true
	}
	e := entry.New()
	e.CompleteRead(nextOID)
	e.ResolvePendingPrevious(name, true)
	s.table.Reserve(1)
	_ = s.table.InsertBinding(nextName, e)
	nextStripe.Unlock()
	return false, 0, true
}

// acquireBindingWrite implements the "ensure writable (upgrading if
// necessary)" half of spec.md 4.6.3/4.6.4 shared by setBinding's rebind
// case and removeBinding: it loops on e's awaitWritable trichotomy,
// claiming the Readable->Writable upgrade itself via TryBeginUpgrade (so
// two transactions racing the same name never both call fetchForWrite) and
// restarting the wait once the claim lands. decached=true means e was
// evicted out from under the caller and the whole operation must restart
// against a fresh table lookup.
func (s *Store) acquireBindingWrite(txn *txncontext.Context, name wire.BindingKey, e *entry.Entry, fetchForWrite func(contextID wire.ContextID, name string) (bool, wire.OID, error)) (decached bool, err error) {
	for attempt := 0; attempt < retryCap; attempt++ {
		if err := e.AwaitWritable(txn.StopTime()); err != nil {
			return false, cachefail.ReportTimeout(txn.ContextID())
		}
		state, ctxID := e.State()
		if state == entry.Decached {
			return true, nil
		}
		if state == entry.Readable {
			if !e.TryBeginUpgrade(txn.ContextID()) {
				continue // lost the race to claim the upgrade; recheck
			}
			nameStr, _ := name.AllowLast()
			found, boundOID, ferr := fetchForWrite(txn.ContextID(), nameStr)
			if ferr != nil {
				e.AbortUpgrade()
				return false, ferr
			}
			if !found {
				e.AbortUpgrade()
				return false, cachefail.ReportProtocolViolation("store: %s vanished server-side while acquiring write access", name.String())
			}
			e.CompleteUpgrade(boundOID)
			continue
		}
		// state == Writable
		if ctxID != txn.ContextID() {
			return false, cachefail.ReportProtocolViolation("store: %s is held writable by another transaction", name.String())
		}
		return false, nil
	}
	return false, cachefail.ReportProtocolViolation("store: acquiring write access to %s exceeded retry cap", name.String())
}

// SetBinding implements spec.md 4.6.3.
func (s *Store) SetBinding(txn *txncontext.Context, name wire.BindingKey, oid wire.OID) error {
	ceilingKey, ceilingEntry, err := s.table.CeilingBinding(name)
	if err != nil {
		return err
	}

	if ceilingEntry != nil && wire.Compare(ceilingKey, name) == 0 {
		decached, err := s.acquireBindingWrite(txn, name, ceilingEntry, func(ctxID wire.ContextID, nm string) (bool, wire.OID, error) {
			found, boundOID, _, err := s.client.GetBindingForUpdate(ctxID, nm)
			return found, boundOID, err
		})
		if err != nil {
			return err
		}
		if decached {
			// the name's binding was evicted out from under the rebind;
			// start over against the table's current state.
			return s.SetBinding(txn, name, oid)
		}
		ceilingEntry.MarkModified()
		txn.NoteModifiedBinding(name, oid, false, ceilingEntry)
		cachelog.BindingEvent(name, "rebound in txn %d", uint64(txn.ContextID()))
		return nil
	}

	lookup, err := s.GetBinding(txn, name)
	if err != nil {
		return err
	}
	if lookup.Found {
		return cachefail.ReportProtocolViolation("store: setBinding(%s) raced with a concurrent bind", name.String())
	}

	// Extending ceilingEntry's previousKey is a write against ceilingEntry
	// (spec.md 4.6.3), so it must be held writable the same way the rebind
	// branch above holds the target writable, not just read.
	if ceilingEntry != nil {
		decached, err := s.acquireBindingWrite(txn, ceilingKey, ceilingEntry, func(ctxID wire.ContextID, nm string) (bool, wire.OID, error) {
			found, boundOID, _, err := s.client.GetBindingForUpdate(ctxID, nm)
			return found, boundOID, err
		})
		if err != nil {
			return err
		}
		if decached {
			// ceilingEntry was evicted out from under the fresh bind;
			// start over against the table's current state.
			return s.SetBinding(txn, name, oid)
		}
	}

	previousKey, previousUnbound := wire.First(), true
	if ceilingEntry != nil {
		previousKey, previousUnbound = ceilingEntry.PreviousKey()
	}

	stripe := s.table.BindingStripe(name)
	stripe.Lock()
	if _, already := s.table.LookupBindingStriped(name); already {
		stripe.Unlock()
		return cachefail.ReportProtocolViolation("store: setBinding(%s) raced with a concurrent bind", name.String())
	}
	e := entry.New()
	e.CompleteRead(oid)
	e.ResolvePendingPrevious(previousKey, previousUnbound)
	e.MarkModified()
	s.table.Reserve(1)
	if err := s.table.InsertBinding(name, e); err != nil {
		stripe.Unlock()
		return cachefail.ReportCacheConsistency("store: setBinding(%s): %v", name.String(), err)
	}
	stripe.Unlock()
	if ceilingEntry != nil {
		ceilingEntry.ResolvePendingPrevious(name, false)
		txn.NoteCachedReservedBinding(ceilingKey, ceilingEntry)
	}

	txn.NoteModifiedBinding(name, oid, false, e)
	cachelog.BindingEvent(name, "bound in txn %d", uint64(txn.ContextID()))
	return nil
}

// RemoveBinding implements spec.md 4.6.4: target then successor, lower
// key first to respect the fixed lock order.
func (s *Store) RemoveBinding(txn *txncontext.Context, name wire.BindingKey) error {
	stripe := s.table.BindingStripe(name)
	stripe.Lock()
	targetEntry, ok := s.table.LookupBindingStriped(name)
	stripe.Unlock()
	if !ok {
		return cachefail.ReportProtocolViolation("store: removeBinding(%s) on an unbound name", name.String())
	}

	decached, err := s.acquireBindingWrite(txn, name, targetEntry, func(ctxID wire.ContextID, nm string) (bool, wire.OID, error) {
		found, boundOID, _, err := s.client.GetBindingForRemove(ctxID, nm)
		return found, boundOID, err
	})
	if err != nil {
		return err
	}
	if decached {
		return cachefail.ReportProtocolViolation("store: removeBinding(%s) target was decached mid-removal", name.String())
	}
	targetEntry.MarkModified()

	successorKey, successorEntry, err := s.table.HigherBinding(name)
	if err != nil {
		return err
	}
	if successorEntry != nil {
		// Raise the guard before acquiring write access: it blocks any
		// concurrent getBinding against successorKey (AwaitNotPendingPrevious)
		// for the whole window this removal is still in flight, the same
		// window the old single-State implementation tried and failed to
		// cover by fusing the guard into state itself.
		successorEntry.SetPendingPrevious()
		decached, err := s.acquireBindingWrite(txn, successorKey, successorEntry, func(ctxID wire.ContextID, nm string) (bool, wire.OID, error) {
			found, boundOID, _, err := s.client.GetBindingForUpdate(ctxID, nm)
			return found, boundOID, err
		})
		if err != nil {
			successorEntry.ResolvePendingPrevious(name, false)
			return err
		}
		if decached {
			successorEntry.ResolvePendingPrevious(name, false)
			return cachefail.ReportProtocolViolation("store: removeBinding(%s) successor %s was decached mid-removal", name.String(), successorKey.String())
		}
	}

	previousKey, unbound := targetEntry.PreviousKey()
	if successorEntry != nil {
		successorEntry.ResolvePendingPrevious(previousKey, unbound)
		txn.NoteCachedReservedBinding(successorKey, successorEntry)
	}

	txn.NoteModifiedBinding(name, 0, true, targetEntry)
	cachelog.BindingEvent(name, "removed in txn %d", uint64(txn.ContextID()))
	return nil
}

// NextBoundName implements spec.md 4.6.5.
func (s *Store) NextBoundName(txn *txncontext.Context, name wire.BindingKey) (wire.BindingKey, wire.OID, error) {
	for attempt := 0; attempt < retryCap; attempt++ {
		higherKey, higherEntry, err := s.table.HigherBinding(name)
		if err != nil {
			return wire.BindingKey{}, 0, err
		}
		if higherEntry == nil {
			if higherKey.IsLast() {
				txn.NoteLastBinding(name)
				return wire.Last(), 0, nil
			}
			continue
		}
		if err := higherEntry.AwaitReadable(txn.StopTime()); err != nil {
			return wire.BindingKey{}, 0, cachefail.ReportTimeout(txn.ContextID())
		}
		state, _ := higherEntry.State()
		if state == entry.Decached {
			continue
		}
		previousKey, _ := higherEntry.PreviousKey()
		if wire.Compare(previousKey, name) <= 0 {
			oid, _ := higherEntry.Value().(wire.OID)
			txn.NoteLastBinding(higherKey)
			return higherKey, oid, nil
		}

		next, nextOID, err := s.client.NextBoundName(txn.ContextID(), name)
		if err != nil {
			return wire.BindingKey{}, 0, err
		}
		if next.IsLast() {
			txn.NoteLastBinding(name)
			return wire.Last(), 0, nil
		}
		freshEntry := entry.New()
		freshEntry.CompleteRead(nextOID)
		freshEntry.ResolvePendingPrevious(name, false)
		s.table.Reserve(1)
		_ = s.table.InsertBinding(next, freshEntry)
	}
	return wire.BindingKey{}, 0, cachefail.ReportProtocolViolation("store: nextBoundName(%s) exceeded retry cap", name.String())
}

// RequestEvictObject implements the object half of spec.md 4.6.6: returns
// true iff the entry settled synchronously.
func (s *Store) RequestEvictObject(oid wire.OID) bool {
	e, ok := s.table.LookupObject(oid)
	if !ok {
		return true
	}
	if e.IsDecached() || e.IsDecaching() {
		return true
	}
	if e.IsFetching() || e.InUse() {
		return false
	}
	e.BeginDecache()
	s.queue.Enqueue(updatequeue.Item{
		Kind: updatequeue.EvictObject,
		OID:  oid,
		Completion: func(err error) {
			e.CompleteDecache()
			s.table.RemoveObject(oid)
			s.table.Release(1)
			cachelog.Evicted(oid, "server request")
		},
	})
	cachestats.EvictionRequested()
	return true
}

// RequestEvictBinding is the binding half of spec.md 4.6.6.
func (s *Store) RequestEvictBinding(name wire.BindingKey) bool {
	e, ok := s.table.LookupBinding(name)
	if !ok {
		return true
	}
	if e.IsDecached() || e.IsDecaching() {
		return true
	}
	if e.IsFetching() || e.IsPendingPrevious() || e.InUse() {
		return false
	}
	e.BeginDecache()
	s.queue.Enqueue(updatequeue.Item{
		Kind:    updatequeue.EvictBinding,
		Binding: name,
		Completion: func(err error) {
			e.CompleteDecache()
			_ = s.table.RemoveBinding(name)
			s.table.Release(1)
		},
	})
	cachestats.EvictionRequested()
	return true
}

// RequestDowngradeObject implements the object half of the downgrade
// callback.
func (s *Store) RequestDowngradeObject(oid wire.OID) bool {
	e, ok := s.table.LookupObject(oid)
	if !ok {
		return true
	}
	if e.IsDowngrading() {
		return true
	}
	if e.IsFetching() || e.InUseForWrite() {
		return false
	}
	e.BeginDowngrade()
	s.queue.Enqueue(updatequeue.Item{
		Kind: updatequeue.DowngradeObject,
		OID:  oid,
		Completion: func(err error) {
			e.CompleteDowngrade()
		},
	})
	cachestats.DowngradeRequested()
	return true
}

// RequestDowngradeBinding is the binding half of the downgrade callback.
func (s *Store) RequestDowngradeBinding(name wire.BindingKey) bool {
	e, ok := s.table.LookupBinding(name)
	if !ok {
		return true
	}
	if e.IsDowngrading() {
		return true
	}
	if e.IsFetching() || e.InUseForWrite() {
		return false
	}
	e.BeginDowngrade()
	s.queue.Enqueue(updatequeue.Item{
		Kind:    updatequeue.DowngradeBinding,
		Binding: name,
		Completion: func(err error) {
			e.CompleteDowngrade()
		},
	})
	cachestats.DowngradeRequested()
	return true
}
