// Package cachestats declares the bucketstats-registered counters kept by
// the cache, following swiftclient/config.go's convention of one embedding
// struct of Total/Average/BucketLog2Round fields, registered once at
// startup and unregistered at shutdown.
package cachestats

import (
	"github.com/dustin/go-humanize"

	"github.com/objectgraph/cachestore/bucketstats"
)

type statsStruct struct {
	ObjectHit      bucketstats.Total
	ObjectMiss     bucketstats.Total
	BindingHit     bucketstats.Total
	BindingMiss    bucketstats.Total
	ObjectFetchUsec  bucketstats.BucketLog2Round
	BindingFetchUsec bucketstats.BucketLog2Round

	ServerRetryOps bucketstats.Average

	EvictionsByReserve   bucketstats.Total
	EvictionsRequested   bucketstats.Total
	DowngradesRequested  bucketstats.Total

	CommitsShipped bucketstats.Total
	TxnAborted     bucketstats.Total
	TxnCommitted   bucketstats.Total
}

var globals statsStruct

// Up registers the cache's stats group; called once at process start.
func Up() {
	bucketstats.Register("cachestore.cache", "", &globals)
}

// Down unregisters the cache's stats group.
func Down() {
	bucketstats.UnRegister("cachestore.cache", "")
}

func ObjectHit()  { globals.ObjectHit.Increment() }
func ObjectMiss() { globals.ObjectMiss.Increment() }

func BindingHit()  { globals.BindingHit.Increment() }
func BindingMiss() { globals.BindingMiss.Increment() }

// ObjectFetchUsec records how long a getObject/getObjectForUpdate round
// trip to the server took, in microseconds.
func ObjectFetchUsec(usec uint64) { globals.ObjectFetchUsec.Add(usec) }

// BindingFetchUsec records how long a getBinding* round trip took.
func BindingFetchUsec(usec uint64) { globals.BindingFetchUsec.Add(usec) }

// ServerRetryOps records how many retry attempts an RPC needed before it
// succeeded or gave up.
func ServerRetryOps(attempts uint64) { globals.ServerRetryOps.Add(attempts) }

func EvictionByReserve()  { globals.EvictionsByReserve.Increment() }
func EvictionRequested()  { globals.EvictionsRequested.Increment() }
func DowngradeRequested() { globals.DowngradesRequested.Increment() }

func CommitShipped() { globals.CommitsShipped.Increment() }
func TxnAborted()    { globals.TxnAborted.Increment() }
func TxnCommitted()  { globals.TxnCommitted.Increment() }

// CapacitySummary renders a table's occupancy as a human-readable line for
// startup/periodic logging, e.g. "1,024 entries cached of 8,192 (12%)".
func CapacitySummary(used, total int) string {
	pct := 0
	if total > 0 {
		pct = used * 100 / total
	}
	return humanize.Comma(int64(used)) + " entries cached of " + humanize.Comma(int64(total)) +
		" (" + humanize.Comma(int64(pct)) + "%)"
}
