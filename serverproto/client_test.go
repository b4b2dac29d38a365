package serverproto

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/objectgraph/cachestore/wire"
)

type fakeTransport struct {
	failures int
	calls    []string
}

func (f *fakeTransport) Call(method string, args, reply interface{}) error {
	f.calls = append(f.calls, method)
	if f.failures > 0 {
		f.failures--
		return errors.New("fake: transient failure")
	}
	switch method {
	case "Server.RegisterNode":
		reply.(*RegisterNodeReply).NodeID = wire.NodeID(1)
	case "Server.GetObject":
		reply.(*GetObjectReply).Value = []byte("payload")
		reply.(*GetObjectReply).Found = true
	case "Server.NextBoundName":
		reply.(*NextBoundNameReply).IsLast = true
	case "Server.GetClassId":
		reply.(*GetClassIdReply).ClassID = 42
	case "Server.GetClassInfo":
		reply.(*GetClassInfoReply).ClassInfo = []byte("descriptor")
	}
	return nil
}

func TestRegisterNodeThenGetObject(t *testing.T) {
	assert := assert.New(t)

	transport := &fakeTransport{}
	client := NewClient(transport, time.Millisecond, time.Second)

	assert.NoError(client.RegisterNode("localhost", 44541))
	assert.Equal(wire.NodeID(1), client.nodeID)

	value, found, err := client.GetObject(wire.ContextID(1), wire.OID(1))
	assert.NoError(err)
	assert.True(found)
	assert.Equal([]byte("payload"), value)
}

func TestGetObjectRequiresRegistration(t *testing.T) {
	assert := assert.New(t)

	client := NewClient(&fakeTransport{}, time.Millisecond, time.Second)
	_, _, err := client.GetObject(wire.ContextID(1), wire.OID(1))
	assert.Error(err)
}

func TestRetriesTransientFailures(t *testing.T) {
	assert := assert.New(t)

	transport := &fakeTransport{failures: 2}
	client := NewClient(transport, time.Millisecond, time.Second)
	assert.NoError(client.RegisterNode("localhost", 44541))
	assert.True(len(transport.calls) >= 3)
}

func TestRetryExhaustionReportsFailure(t *testing.T) {
	assert := assert.New(t)

	transport := &fakeTransport{failures: 1000000}
	client := NewClient(transport, time.Millisecond, 20*time.Millisecond)
	err := client.RegisterNode("localhost", 44541)
	assert.Error(err)
}

func TestGetClassIdCachesAcrossCalls(t *testing.T) {
	assert := assert.New(t)

	transport := &fakeTransport{}
	client := NewClient(transport, time.Millisecond, time.Second)

	id, err := client.GetClassId("com.example.Widget")
	assert.NoError(err)
	assert.Equal(uint64(42), id)

	callsAfterFirst := len(transport.calls)
	id, err = client.GetClassId("com.example.Widget")
	assert.NoError(err)
	assert.Equal(uint64(42), id)
	assert.Equal(callsAfterFirst, len(transport.calls), "second lookup should be answered from classCache")
}

func TestGetClassInfoCachesAcrossCalls(t *testing.T) {
	assert := assert.New(t)

	transport := &fakeTransport{}
	client := NewClient(transport, time.Millisecond, time.Second)

	info, err := client.GetClassInfo(42)
	assert.NoError(err)
	assert.Equal([]byte("descriptor"), info)

	callsAfterFirst := len(transport.calls)
	info, err = client.GetClassInfo(42)
	assert.NoError(err)
	assert.Equal([]byte("descriptor"), info)
	assert.Equal(callsAfterFirst, len(transport.calls), "second lookup should be answered from classCache")
}

func TestNextBoundNameReportsLast(t *testing.T) {
	assert := assert.New(t)

	transport := &fakeTransport{}
	client := NewClient(transport, time.Millisecond, time.Second)
	assert.NoError(client.RegisterNode("localhost", 44541))

	next, _, err := client.NextBoundName(wire.ContextID(1), wire.Name("a"))
	assert.NoError(err)
	assert.True(next.IsLast())
}
