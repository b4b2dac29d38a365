// Package cachelog adds cache-domain vocabulary (object id, binding name,
// context id) on top of the logger package's structured log calls, the
// way blunder layers error-domain vocabulary on top of plain errors.
package cachelog

import (
	"github.com/objectgraph/cachestore/logger"
	"github.com/objectgraph/cachestore/wire"
)

// ObjectEvent logs a state transition or RPC outcome for a cached object.
func ObjectEvent(oid wire.OID, event string, args ...interface{}) {
	logger.Infof("object %d: "+event, append([]interface{}{uint64(oid)}, args...)...)
}

// BindingEvent logs a state transition or RPC outcome for a cached binding.
func BindingEvent(name wire.BindingKey, event string, args ...interface{}) {
	logger.Infof("binding %s: "+event, append([]interface{}{name.String()}, args...)...)
}

// TxnEvent logs a transaction-context lifecycle event.
func TxnEvent(contextID wire.ContextID, event string, args ...interface{}) {
	logger.Infof("txn %d: "+event, append([]interface{}{uint64(contextID)}, args...)...)
}

// ServerError logs a failed server RPC at warn level; retried RPCs log
// repeatedly here until they either succeed or exhaust their retry budget,
// at which point cachefail.Report takes over.
func ServerError(method string, err error) {
	logger.WarnfWithError(err, "server RPC %s failed", method)
}

// Evicted logs an eviction decision made by the evictor.
func Evicted(oid wire.OID, reason string) {
	logger.Infof("object %d: evicted (%s)", uint64(oid), reason)
}
