package dlm

// Configuration variables for DLM

import (
	"sync"

	"github.com/objectgraph/cachestore/conf"
)

type globalsStruct struct {
	sync.Mutex

	// Map used to store locks owned locally
	// NOTE: This map is protected by the Mutex
	localLockMap map[string]*localLockTrack
}

var globals globalsStruct

// Up initializes the DLM's local lock tracking; called once at process start.
func Up(confMap conf.ConfMap) (err error) {
	globals.localLockMap = make(map[string]*localLockTrack)
	return nil
}

// Down releases the DLM's local lock tracking.
func Down() (err error) {
	globals.Lock()
	globals.localLockMap = nil
	globals.Unlock()
	return nil
}
