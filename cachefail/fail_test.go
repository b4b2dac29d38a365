package cachefail

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/objectgraph/cachestore/blunder"
	"github.com/objectgraph/cachestore/wire"
)

func TestReportIsRetryExhausted(t *testing.T) {
	assert := assert.New(t)

	err := Report("getObject", 1000, assert.AnError)
	assert.True(Is(err, RetryExhausted))
	assert.False(Is(err, ProtocolViolation))
	assert.True(blunder.Is(err, blunder.TryAgainError))
}

func TestReportTimeoutIsTransactionTimeout(t *testing.T) {
	assert := assert.New(t)

	err := ReportTimeout(wire.ContextID(5))
	assert.True(Is(err, TransactionTimeout))
	assert.True(blunder.Is(err, blunder.TimedOut))
}
