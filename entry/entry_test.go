package entry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/objectgraph/cachestore/wire"
)

func TestReadTransition(t *testing.T) {
	assert := assert.New(t)

	e := New()
	state, _ := e.State()
	assert.Equal(FetchingRead, state)

	done := make(chan error, 1)
	go func() {
		done <- e.AwaitReadable(time.Time{})
	}()

	time.Sleep(10 * time.Millisecond)
	e.CompleteRead("payload")

	assert.NoError(t, <-done)
	state, _ = e.State()
	assert.Equal(Readable, state)
	assert.Equal("payload", e.Value())
}

func TestUpgradeTransition(t *testing.T) {
	assert := assert.New(t)

	e := NewForUpdate(wire.ContextID(7))
	state, ctxID := e.State()
	assert.Equal(FetchingUpgrade, state)
	assert.Equal(wire.ContextID(7), ctxID)
	assert.True(t, e.InUseForWrite())

	done := make(chan error, 1)
	go func() {
		done <- e.AwaitWritable(time.Time{})
	}()

	time.Sleep(10 * time.Millisecond)
	e.CompleteUpgrade("payload")

	assert.NoError(t, <-done)
	state, _ = e.State()
	assert.Equal(Writable, state)
}

func TestDowngradeTransition(t *testing.T) {
	assert := assert.New(t)

	e := NewForUpdate(wire.ContextID(1))
	e.CompleteUpgrade("v1")
	e.BeginDowngrade()

	state, _ := e.State()
	assert.Equal(Downgrading, state)

	e.CompleteDowngrade()
	state, ctxID := e.State()
	assert.Equal(Readable, state)
	assert.Equal(wire.ContextID(0), ctxID)
}

func TestDecacheWakesAllWaiters(t *testing.T) {
	assert := assert.New(t)

	e := New()

	results := make(chan error, 3)
	for i := 0; i < 3; i++ {
		go func() {
			results <- e.AwaitReadable(time.Time{})
		}()
	}

	time.Sleep(10 * time.Millisecond)
	e.BeginDecache()
	e.CompleteDecache()

	for i := 0; i < 3; i++ {
		assert.NoError(t, <-results)
	}
	assert.True(t, e.IsDecached())
}

func TestAwaitTimesOut(t *testing.T) {
	assert := assert.New(t)

	e := New()
	err := e.AwaitReadable(time.Now().Add(20 * time.Millisecond))
	assert.Equal(ErrTimeout, err)
}

// TestPendingPrevious exercises the orthogonal guard flag: it must combine
// with whatever State the entry is already in rather than replace it, so a
// binding entry stays Readable (and answerable) while the flag is raised.
func TestPendingPrevious(t *testing.T) {
	assert := assert.New(t)

	e := New()
	e.CompleteRead(wire.OID(42))
	e.SetPendingPrevious()

	state, _ := e.State()
	assert.Equal(Readable, state)
	assert.True(t, e.IsPendingPrevious())

	done := make(chan error, 1)
	go func() {
		done <- e.AwaitNotPendingPrevious(time.Time{})
	}()

	time.Sleep(10 * time.Millisecond)
	e.ResolvePendingPrevious(wire.First(), true)

	assert.NoError(t, <-done)
	assert.False(t, e.IsPendingPrevious())
	key, unbound := e.PreviousKey()
	assert.True(t, key.IsFirst())
	assert.True(t, unbound)
}

// TestPendingPreviousCombinesWithWritable confirms the guard flag can be
// raised on an entry that is concurrently held Writable by a transaction,
// the exact combination a fused single-State design could never represent.
func TestPendingPreviousCombinesWithWritable(t *testing.T) {
	assert := assert.New(t)

	e := NewForUpdate(wire.ContextID(9))
	e.CompleteUpgrade(wire.OID(1))
	e.SetPendingPrevious()

	state, ctxID := e.State()
	assert.Equal(Writable, state)
	assert.Equal(wire.ContextID(9), ctxID)
	assert.True(t, e.IsPendingPrevious())

	assert.NoError(t, e.AwaitWritable(time.Time{}))
}
