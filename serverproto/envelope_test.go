package serverproto

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPackValueRoundTrips(t *testing.T) {
	assert := assert.New(t)

	packed, err := PackValue([]byte("hello"))
	assert.NoError(err)

	value, err := UnpackValue(packed)
	assert.NoError(err)
	assert.Equal([]byte("hello"), value)
}

func TestPackValueRoundTripsEmptyValue(t *testing.T) {
	assert := assert.New(t)

	packed, err := PackValue(nil)
	assert.NoError(err)

	value, err := UnpackValue(packed)
	assert.NoError(err)
	assert.Empty(value)
}

func TestUnpackValueRejectsUnrecognizedVersion(t *testing.T) {
	assert := assert.New(t)

	packed, err := PackValue([]byte("hello"))
	assert.NoError(err)
	// flip the version byte (immediately following the 1-byte corruption
	// flag) to a value no envelope version defines.
	packed[1] = 0xEE

	_, err = UnpackValue(packed)
	assert.Error(err)
}
