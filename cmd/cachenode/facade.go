package main

import (
	"errors"
	"time"

	"github.com/objectgraph/cachestore/cachefail"
	"github.com/objectgraph/cachestore/store"
	"github.com/objectgraph/cachestore/txncontext"
	"github.com/objectgraph/cachestore/updatequeue"
	"github.com/objectgraph/cachestore/wire"
)

// facadeHandler exposes store.Store's six client-facing operations, plus
// the transaction join/commit/abort lifecycle txncontext.Manager governs,
// as net/rpc methods — served over JSON-RPC per SPEC_FULL.md section 0, the
// counterpart to callbackHandler's server-initiated callbacks. A caller
// joins a transaction once, drives any number of the six operations against
// the returned context id, then commits or aborts.
type facadeHandler struct {
	store      *store.Store
	manager    *txncontext.Manager
	queue      *updatequeue.Queue
	txnTimeout time.Duration
}

func keyFromArgs(name string, isLast bool) wire.BindingKey {
	if isLast {
		return wire.Last()
	}
	return wire.Name(name)
}

func (h *facadeHandler) context(contextID uint64) (*txncontext.Context, error) {
	ctx, ok := h.manager.Lookup(wire.ContextID(contextID))
	if !ok {
		return nil, cachefail.ReportProtocolViolation("cachenode: unknown context id %d", contextID)
	}
	return ctx, nil
}

// JoinArgs/Reply back the transaction lifecycle's entry point.
type JoinArgs struct{}

type JoinReply struct {
	ContextID uint64
}

// Join allocates a new transaction context good until txnTimeout elapses.
func (h *facadeHandler) Join(args *JoinArgs, reply *JoinReply) error {
	ctx := h.manager.Join(time.Now().Add(h.txnTimeout))
	reply.ContextID = uint64(ctx.ContextID())
	return nil
}

type CommitArgs struct {
	ContextID uint64
}

// Commit prepares and stages ctx's footprint onto the update queue, then
// releases the context from the manager regardless of outcome.
func (h *facadeHandler) Commit(args *CommitArgs, reply *struct{}) error {
	ctx, err := h.context(args.ContextID)
	if err != nil {
		return err
	}
	defer h.manager.Release(ctx.ContextID())
	if err := ctx.Prepare(); err != nil {
		return err
	}
	return ctx.Commit(h.queue)
}

type AbortArgs struct {
	ContextID uint64
}

// Abort discards ctx's footprint and releases it from the manager.
func (h *facadeHandler) Abort(args *AbortArgs, reply *struct{}) error {
	ctx, err := h.context(args.ContextID)
	if err != nil {
		return err
	}
	ctx.Abort()
	h.manager.Release(ctx.ContextID())
	return nil
}

type GetObjectArgs struct {
	ContextID uint64
	OID       uint64
	ForUpdate bool
}

type GetObjectReply struct {
	Value []byte
	Found bool
}

// GetObject implements spec.md 4.6.1 over RPC.
func (h *facadeHandler) GetObject(args *GetObjectArgs, reply *GetObjectReply) error {
	ctx, err := h.context(args.ContextID)
	if err != nil {
		return err
	}
	value, err := h.store.GetObject(ctx, wire.OID(args.OID), args.ForUpdate)
	if err != nil {
		if errors.Is(err, store.ErrObjectNotFound) {
			return nil
		}
		return err
	}
	reply.Value = value
	reply.Found = true
	return nil
}

type SetObjectArgs struct {
	ContextID uint64
	OID       uint64
	Value     []byte
}

// SetObject implements spec.md 4.6.1's write half over RPC.
func (h *facadeHandler) SetObject(args *SetObjectArgs, reply *struct{}) error {
	ctx, err := h.context(args.ContextID)
	if err != nil {
		return err
	}
	return h.store.SetObject(ctx, wire.OID(args.OID), args.Value)
}

type GetBindingArgs struct {
	ContextID uint64
	Name      string
	IsLast    bool
}

type GetBindingReply struct {
	Found         bool
	OID           uint64
	CeilingName   string
	CeilingIsLast bool
}

// GetBinding implements spec.md 4.6.2 over RPC.
func (h *facadeHandler) GetBinding(args *GetBindingArgs, reply *GetBindingReply) error {
	ctx, err := h.context(args.ContextID)
	if err != nil {
		return err
	}
	result, err := h.store.GetBinding(ctx, keyFromArgs(args.Name, args.IsLast))
	if err != nil {
		return err
	}
	reply.Found = result.Found
	reply.OID = uint64(result.OID)
	reply.CeilingName, reply.CeilingIsLast = result.CeilingName.AllowLast()
	return nil
}

type SetBindingArgs struct {
	ContextID uint64
	Name      string
	OID       uint64
}

// SetBinding implements spec.md 4.6.3 over RPC.
func (h *facadeHandler) SetBinding(args *SetBindingArgs, reply *struct{}) error {
	ctx, err := h.context(args.ContextID)
	if err != nil {
		return err
	}
	return h.store.SetBinding(ctx, wire.Name(args.Name), wire.OID(args.OID))
}

type RemoveBindingArgs struct {
	ContextID uint64
	Name      string
}

// RemoveBinding implements spec.md 4.6.4 over RPC.
func (h *facadeHandler) RemoveBinding(args *RemoveBindingArgs, reply *struct{}) error {
	ctx, err := h.context(args.ContextID)
	if err != nil {
		return err
	}
	return h.store.RemoveBinding(ctx, wire.Name(args.Name))
}

type NextBoundNameArgs struct {
	ContextID uint64
	Name      string
	IsLast    bool
}

type NextBoundNameReply struct {
	Name   string
	OID    uint64
	IsLast bool
}

// NextBoundName implements spec.md 4.6.5 over RPC.
func (h *facadeHandler) NextBoundName(args *NextBoundNameArgs, reply *NextBoundNameReply) error {
	ctx, err := h.context(args.ContextID)
	if err != nil {
		return err
	}
	next, oid, err := h.store.NextBoundName(ctx, keyFromArgs(args.Name, args.IsLast))
	if err != nil {
		return err
	}
	reply.Name, reply.IsLast = next.AllowLast()
	reply.OID = uint64(oid)
	return nil
}
