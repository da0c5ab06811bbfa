// Package setmgr implements the MVCC set directory (spec §4.4): two
// directory snapshots reconciled through a newest-first delta log and a
// version barrier, lock-free reads, a background vacuum cycle, and a
// client checkpoint registry bounding how long retired state must be
// kept alive.
package setmgr

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/hlldsvc/hlld/internal/omap"
	"github.com/hlldsvc/hlld/internal/spinlock"
	"github.com/hlldsvc/hlld/pkg/hllconfig"
	"github.com/hlldsvc/hlld/pkg/hset"
)

// Manager is the named-set directory. The zero value is not usable;
// obtain one via [New].
type Manager struct {
	global hllconfig.GlobalConfig
	logger hllconfig.Logger
	hash   func([]byte) uint64

	writeLock sync.Mutex
	vacuumMu  sync.Mutex

	primary    atomic.Pointer[omap.Map[*wrapper]]
	alternate  *omap.Map[*wrapper] // exclusively owned by the vacuum goroutine
	deltaHead  atomic.Pointer[delta]
	currentVsn atomic.Uint64
	primaryVsn atomic.Uint64

	pendingDelete sync.Map // name -> struct{}

	clientsHead atomic.Pointer[clientNode]
	clientsLock spinlock.T
}

// Option customizes Manager construction.
type Option func(*Manager)

// WithLogger overrides the default no-op logger.
func WithLogger(l hllconfig.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithHash overrides the default hash function used by [Manager.AddKeys].
func WithHash(h func([]byte) uint64) Option {
	return func(m *Manager) { m.hash = h }
}

// New creates a manager over global.DataDir, performing boot-time
// discovery of any existing `hlld.*` set directories (spec §4.4
// "Boot-time discovery"): each is opened cold (non-hot, non-discovered)
// and inserted directly into the primary snapshot with no deltas, after
// which the alternate snapshot is initialized as a copy of the primary.
func New(global hllconfig.GlobalConfig, opts ...Option) (*Manager, error) {
	m := &Manager{
		global: global,
		logger: hllconfig.NopLogger{},
		hash:   defaultHash,
	}

	for _, opt := range opts {
		opt(m)
	}

	primary := omap.New[*wrapper]()

	if err := os.MkdirAll(global.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data dir %s: %w", global.DataDir, err)
	}

	entries, err := os.ReadDir(global.DataDir)
	if err != nil {
		return nil, fmt.Errorf("scanning data dir %s: %w", global.DataDir, err)
	}

	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), hllconfig.SetDirPrefix) {
			continue
		}

		name := e.Name()[len(hllconfig.SetDirPrefix):]
		if name == "" {
			continue
		}

		set, err := hset.Open(global, name, false)
		if err != nil {
			m.logger.Printf("setmgr: discovering %s: %v", name, err)
			continue
		}

		w := &wrapper{name: name, set: set}
		w.active.Store(true)

		primary.Insert(name, w)
	}

	m.primary.Store(primary)
	m.alternate = primary.Copy()

	return m, nil
}

func defaultHash(key []byte) uint64 {
	// FNV-1a followed by the murmur3 fmix64 finalizer, used only as a
	// built-in default when the embedder does not supply its own
	// high-quality 64-bit hash (spec §1 out-of-scope lists the hash
	// function as a caller-supplied collaborator). The finalizer mixes
	// the top bits, which the HLL uses as the register index.
	const (
		offset = 14695981039346656037
		prime  = 1099511628211
	)

	h := uint64(offset)
	for _, b := range key {
		h ^= uint64(b)
		h *= prime
	}

	h ^= h >> 33
	h *= 0xff51afd7ed558ccd
	h ^= h >> 33
	h *= 0xc4ceb9fe1a85ec53
	h ^= h >> 33

	return h
}

// pushDelta prepends d onto the delta log. Callers append Create/Delete
// entries under writeLock; the vacuum goroutine appends Barrier entries
// under writeLock too, so no CAS race is possible at the head.
func (m *Manager) pushDelta(d *delta) {
	d.next.Store(m.deltaHead.Load())
	m.deltaHead.Store(d)
}

// find performs the lock-free directory lookup (spec §4.4 "Lock-free
// reads"): check the primary snapshot first (wrapper flags are mutated
// in place, so a primary hit already reflects any later Drop/Clear),
// then, if the primary snapshot is stale, walk the delta log for an
// unmerged Create of name.
func (m *Manager) find(name string) (*wrapper, bool) {
	pm := m.primary.Load()

	if w, ok := pm.Search(name); ok {
		return w, true
	}

	primaryVsn := m.primaryVsn.Load()
	if primaryVsn >= m.currentVsn.Load() {
		return nil, false
	}

	for d := m.deltaHead.Load(); d != nil && d.vsn > primaryVsn; d = d.next.Load() {
		if d.kind == deltaCreate && d.wrapper.name == name {
			return d.wrapper, true
		}
	}

	return nil, false
}

// take is find restricted to active wrappers; callers use it for every
// operation that must not observe an in-progress delete.
func (m *Manager) take(name string) (*wrapper, bool) {
	w, ok := m.find(name)
	if !ok || !w.active.Load() {
		return nil, false
	}

	return w, true
}
