// Package cacheconf parses the cache's configuration section, following
// the ConfMap FetchOptionValue* convention used throughout the teacher's
// ...Up(confMap conf.ConfMap) startup functions. Every key has a default so
// a confMap that omits the [Cache] section entirely still produces a
// usable Config.
package cacheconf

import (
	"fmt"
	"time"

	"github.com/objectgraph/cachestore/conf"
)

// CheckBindingsLevel controls how aggressively the store double-checks
// binding cache consistency against the server, trading latency for an
// earlier catch of a coherence bug.
type CheckBindingsLevel int

const (
	// CheckBindingsNone performs no extra verification (the default).
	CheckBindingsNone CheckBindingsLevel = iota
	// CheckBindingsOperation re-verifies a binding once per store
	// operation that touches it.
	CheckBindingsOperation
	// CheckBindingsTxn re-verifies every binding a transaction touched
	// at commit time.
	CheckBindingsTxn
)

// Config holds the cache's tunables, named after spec.md section 6's
// configuration keys (and, before that, Project Darkstar's
// CachingDataStore static-final constants of the same defaults).
type Config struct {
	ServerHost     string
	ServerPort     uint16
	CallbackPort   uint16
	FacadePort     uint16

	CacheSize    int
	CacheSizeMin int

	EvictionBatchSize   int
	EvictionReserveSize int

	LockTimeout time.Duration
	NumLocks    uint32

	MaxRetry  time.Duration
	RetryWait time.Duration

	ObjectIDBatchSize int
	UpdateQueueSize   int

	TxnTimeout time.Duration

	CheckBindings CheckBindingsLevel
}

// Default returns the configuration Project Darkstar's CachingDataStore
// ships with, used whenever a key is absent from confMap.
func Default() Config {
	return Config{
		ServerHost:          "localhost",
		ServerPort:          44540,
		CallbackPort:        44541,
		FacadePort:          44542,
		CacheSize:           5000,
		CacheSizeMin:        1000,
		EvictionBatchSize:   100,
		EvictionReserveSize: 50,
		LockTimeout:         10 * time.Millisecond,
		NumLocks:            20,
		MaxRetry:            1000 * time.Millisecond,
		RetryWait:           10 * time.Millisecond,
		ObjectIDBatchSize:   1000,
		UpdateQueueSize:     100,
		TxnTimeout:          30 * time.Second,
		CheckBindings:       CheckBindingsNone,
	}
}

// Load reads the [Cache] section of confMap, falling back to Default()'s
// value for any option that is absent or unparseable (logged via the
// caller's own error, not swallowed, unlike the teacher's looser
// confMap.FetchOptionValue*-ignore-err idiom, since a malformed cache
// tunable should fail startup rather than silently under-provision).
func Load(confMap conf.ConfMap) (cfg Config, err error) {
	cfg = Default()

	if v, ferr := confMap.FetchOptionValueString("Cache", "ServerHost"); ferr == nil {
		cfg.ServerHost = v
	}
	if v, ferr := confMap.FetchOptionValueUint16("Cache", "ServerPort"); ferr == nil {
		cfg.ServerPort = v
	}
	if v, ferr := confMap.FetchOptionValueUint16("Cache", "CallbackPort"); ferr == nil {
		cfg.CallbackPort = v
	}
	if v, ferr := confMap.FetchOptionValueUint16("Cache", "FacadePort"); ferr == nil {
		cfg.FacadePort = v
	}
	if v, ferr := confMap.FetchOptionValueUint32("Cache", "CacheSize"); ferr == nil {
		cfg.CacheSize = int(v)
	}
	if v, ferr := confMap.FetchOptionValueUint32("Cache", "CacheSizeMin"); ferr == nil {
		cfg.CacheSizeMin = int(v)
	}
	if v, ferr := confMap.FetchOptionValueUint32("Cache", "EvictionBatchSize"); ferr == nil {
		cfg.EvictionBatchSize = int(v)
	}
	if v, ferr := confMap.FetchOptionValueUint32("Cache", "EvictionReserveSize"); ferr == nil {
		cfg.EvictionReserveSize = int(v)
	}
	if v, ferr := confMap.FetchOptionValueDuration("Cache", "LockTimeout"); ferr == nil {
		cfg.LockTimeout = v
	}
	if v, ferr := confMap.FetchOptionValueUint32("Cache", "NumLocks"); ferr == nil {
		cfg.NumLocks = v
	}
	if v, ferr := confMap.FetchOptionValueDuration("Cache", "MaxRetry"); ferr == nil {
		cfg.MaxRetry = v
	}
	if v, ferr := confMap.FetchOptionValueDuration("Cache", "RetryWait"); ferr == nil {
		cfg.RetryWait = v
	}
	if v, ferr := confMap.FetchOptionValueUint32("Cache", "ObjectIDBatchSize"); ferr == nil {
		cfg.ObjectIDBatchSize = int(v)
	}
	if v, ferr := confMap.FetchOptionValueUint32("Cache", "UpdateQueueSize"); ferr == nil {
		cfg.UpdateQueueSize = int(v)
	}
	if v, ferr := confMap.FetchOptionValueDuration("Cache", "TxnTimeout"); ferr == nil {
		cfg.TxnTimeout = v
	}
	if v, ferr := confMap.FetchOptionValueString("Cache", "CheckBindings"); ferr == nil {
		switch v {
		case "NONE":
			cfg.CheckBindings = CheckBindingsNone
		case "OPERATION":
			cfg.CheckBindings = CheckBindingsOperation
		case "TXN":
			cfg.CheckBindings = CheckBindingsTxn
		default:
			return Config{}, fmt.Errorf("cacheconf: Cache.CheckBindings %q is not one of NONE, OPERATION, TXN", v)
		}
	}

	if cfg.CacheSizeMin > cfg.CacheSize {
		return Config{}, fmt.Errorf("cacheconf: Cache.CacheSizeMin (%d) exceeds Cache.CacheSize (%d)", cfg.CacheSizeMin, cfg.CacheSize)
	}

	return cfg, nil
}
