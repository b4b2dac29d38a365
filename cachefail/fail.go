// Package cachefail centralizes how the cache reports an unrecoverable
// condition: a server RPC that exhausted its retry budget, a coherence
// invariant violated by a malformed server callback, or a transaction
// that aged past its stop_time. It layers cache-domain error values on
// top of blunder the way blunder itself layers onto ansel1/merry, and
// wires halter so a test harness can force these paths deterministically
// (halter.Arm("cachestore.serverRetryExhausted", 1) then exercise a
// retrying RPC to HALT on the Nth occurrence).
package cachefail

import (
	"sync/atomic"

	"github.com/ansel1/merry"

	"github.com/objectgraph/cachestore/blunder"
	"github.com/objectgraph/cachestore/halter"
	"github.com/objectgraph/cachestore/logger"
	"github.com/objectgraph/cachestore/wire"
)

// Kind classifies a cache failure for the caller deciding how to react
// (retry the surrounding transaction, tear down the node, or propagate a
// typed error up the store API).
type Kind int

const (
	// RetryExhausted means an RPC to the authoritative server never
	// succeeded within MaxRetry.
	RetryExhausted Kind = iota
	// TransactionTimeout means a transaction's stop_time elapsed while
	// still waiting on an entry to settle.
	TransactionTimeout
	// ProtocolViolation means the server issued a callback or reply that
	// cannot be reconciled with local cache state.
	ProtocolViolation
	// NodeUnregistered means an RPC was attempted after this cache's
	// node registration was revoked or never completed.
	NodeUnregistered
	// CacheConsistency means a local coherence invariant was violated
	// (e.g. the table's binding index disagreed with its own stripe
	// locking about whether a name was already indexed). Unlike the other
	// kinds, this is never a transient or remote condition: it means the
	// cache's own bookkeeping can no longer be trusted, so it is fatal and
	// marks the node failed.
	CacheConsistency
	// Conflict means a transaction's Prepare found that an entry it had
	// only read (never modified) was decached by a server callback while
	// the transaction was still in flight. The transaction never touched
	// server state, so the caller can simply retry it against whatever
	// the cache now holds.
	Conflict
)

func (k Kind) String() string {
	switch k {
	case RetryExhausted:
		return "retry exhausted"
	case TransactionTimeout:
		return "transaction timeout"
	case ProtocolViolation:
		return "protocol violation"
	case NodeUnregistered:
		return "node unregistered"
	case CacheConsistency:
		return "cache consistency violation"
	case Conflict:
		return "accessed entry decached mid-transaction"
	default:
		return "unknown cache failure"
	}
}

// fsErrorFor maps a Kind onto the blunder.FsError a caller can match with
// blunder.Is/blunder.Errno, so a cachefail.Error is still a well-formed
// cachestore error rather than a parallel error hierarchy.
func fsErrorFor(kind Kind) blunder.FsError {
	switch kind {
	case RetryExhausted:
		return blunder.TryAgainError
	case TransactionTimeout:
		return blunder.TimedOut
	case ProtocolViolation:
		return blunder.IOError
	case NodeUnregistered:
		return blunder.NotPermError
	case CacheConsistency:
		return blunder.IOError
	case Conflict:
		return blunder.TryAgainError
	default:
		return blunder.IOError
	}
}

// failed latches true the first time a CacheConsistency failure is
// reported; once set, it never clears for the life of the process, the
// same one-way latch pfsagentd uses for a FUSE mount gone bad.
var failed int32

// NodeFailed reports whether this cache node has hit an internal
// consistency violation and should be considered permanently unhealthy.
func NodeFailed() bool {
	return atomic.LoadInt32(&failed) != 0
}

// Error wraps a Kind with the merry-backed stacktrace blunder gives every
// cachestore error, so callers can still use blunder.Is/blunder.Errno on
// it via the embedded blunder.FsError value.
type Error struct {
	Kind Kind
	err  error
}

func (e *Error) Error() string { return e.err.Error() }
func (e *Error) Unwrap() error { return e.err }

func wrap(kind Kind, format string, args ...interface{}) *Error {
	err := merry.Errorf(format, args...)
	err = blunder.AddError(err, fsErrorFor(kind))
	return &Error{Kind: kind, err: err}
}

// Report logs and returns a RetryExhausted failure for an RPC that never
// succeeded, and triggers halter's CacheServerRetryExhausted label so a
// test can force a HALT on a chosen occurrence instead of looping forever.
func Report(method string, attempts int, lastErr error) error {
	logger.ErrorfWithError(lastErr, "server RPC %s gave up after %d attempts", method, attempts)
	halter.Trigger(halter.CacheServerRetryExhausted)
	return wrap(RetryExhausted, "cachestore: RPC %s exhausted its retry budget after %d attempts: %v", method, attempts, lastErr)
}

// ReportTimeout builds a TransactionTimeout failure for a transaction
// context that aged past its stop_time.
func ReportTimeout(contextID wire.ContextID) error {
	logger.Warnf("txn %d: exceeded its stop_time", uint64(contextID))
	return wrap(TransactionTimeout, "cachestore: transaction %d exceeded its stop_time", uint64(contextID))
}

// ReportProtocolViolation builds a ProtocolViolation failure; these are
// always logged at Error level since they indicate a bug rather than an
// expected runtime condition.
func ReportProtocolViolation(format string, args ...interface{}) error {
	e := wrap(ProtocolViolation, format, args...)
	logger.Errorf("%v", e)
	return e
}

// ReportNodeUnregistered builds a NodeUnregistered failure.
func ReportNodeUnregistered() error {
	return wrap(NodeUnregistered, "cachestore: node is not registered with the server")
}

// ReportCacheConsistency builds a CacheConsistency failure, logs it at
// Error level, and latches NodeFailed so the rest of the node can refuse
// further work instead of operating on a table it can no longer trust.
func ReportCacheConsistency(format string, args ...interface{}) error {
	atomic.StoreInt32(&failed, 1)
	e := wrap(CacheConsistency, format, args...)
	logger.Errorf("internal invariant violated, node failed: %v", e)
	halter.Trigger(halter.CacheConsistencyViolation)
	return e
}

// ReportConflict builds a Conflict failure for a transaction whose
// Prepare found that an entry it had accessed (but never modified) was
// decached out from under it before the transaction could commit.
func ReportConflict(contextID wire.ContextID) error {
	logger.Warnf("txn %d: an accessed entry was decached before prepare", uint64(contextID))
	return wrap(Conflict, "cachestore: transaction %d: an accessed entry was decached before prepare", uint64(contextID))
}

// Is reports whether err is a cachefail.Error of the given Kind.
func Is(err error, kind Kind) bool {
	cfe, ok := err.(*Error)
	return ok && cfe.Kind == kind
}

