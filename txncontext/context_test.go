package txncontext

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/objectgraph/cachestore/updatequeue"
	"github.com/objectgraph/cachestore/wire"
)

func TestJoinAssignsIncreasingContextIDs(t *testing.T) {
	assert := assert.New(t)

	mgr := NewManager()
	c1 := mgr.Join(time.Time{})
	c2 := mgr.Join(time.Time{})
	assert.True(c2.ContextID() > c1.ContextID())
	assert.Equal(2, mgr.Count())
}

func TestCommitStagesModifications(t *testing.T) {
	assert := assert.New(t)

	mgr := NewManager()
	ctx := mgr.Join(time.Time{})
	ctx.NoteModifiedObject(wire.OID(1), []byte("v1"), nil)
	ctx.NoteModifiedBinding(wire.Name("x"), wire.OID(1), false, nil)

	assert.NoError(ctx.Prepare())

	queue := updatequeue.New(10)
	assert.NoError(ctx.Commit(queue))
	assert.Equal(2, queue.Len())
}

func TestDoubleCommitFails(t *testing.T) {
	assert := assert.New(t)

	mgr := NewManager()
	ctx := mgr.Join(time.Time{})
	queue := updatequeue.New(10)
	assert.NoError(ctx.Commit(queue))
	assert.Error(ctx.Commit(queue))
}

func TestExpiredContextFailsPrepare(t *testing.T) {
	assert := assert.New(t)

	mgr := NewManager()
	ctx := mgr.Join(time.Now().Add(-time.Second))
	assert.Error(ctx.Prepare())
}

func TestAbortDoesNotEnqueue(t *testing.T) {
	assert := assert.New(t)

	mgr := NewManager()
	ctx := mgr.Join(time.Time{})
	ctx.NoteModifiedObject(wire.OID(1), []byte("v1"), nil)
	ctx.Abort()

	queue := updatequeue.New(10)
	assert.Equal(0, queue.Len())
}

func TestReleaseRemovesContext(t *testing.T) {
	assert := assert.New(t)

	mgr := NewManager()
	ctx := mgr.Join(time.Time{})
	mgr.Release(ctx.ContextID())
	_, ok := mgr.Lookup(ctx.ContextID())
	assert.False(ok)
}
