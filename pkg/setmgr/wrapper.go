package setmgr

import (
	"sync"
	"sync/atomic"

	"github.com/hlldsvc/hlld/pkg/hset"
)

// wrapper is the manager-internal handle around a Set (spec §3 "Set
// wrapper"). active, hot, and should_delete are atomic so readers can
// observe them without taking the reader-writer lock; the lock itself
// serializes fault-in/close against concurrent readers of the Set.
type wrapper struct {
	name string
	set  *hset.Set

	active       atomic.Bool
	hot          atomic.Bool
	shouldDelete atomic.Bool

	mu sync.RWMutex
}

// deltaKind distinguishes the three kinds of MVCC delta entries.
type deltaKind int

const (
	deltaCreate deltaKind = iota
	deltaDelete
	deltaBarrier
)

// delta is one entry in the manager's newest-first singly linked delta
// log (spec §3 "MVCC delta"). Barrier entries carry no wrapper.
type delta struct {
	vsn     uint64
	kind    deltaKind
	wrapper *wrapper
	next    atomic.Pointer[delta]
}
