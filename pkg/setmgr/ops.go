package setmgr

import (
	"fmt"
	"strings"

	"github.com/hlldsvc/hlld/pkg/hllconfig"
	"github.com/hlldsvc/hlld/pkg/hset"
)

// Create instantiates a new set (spec §4.4 "Directory operations").
// customCfg, if non-nil, is normalized and persisted before the set is
// opened; otherwise the set derives its configuration from the
// manager's global configuration.
func (m *Manager) Create(name string, customCfg *hllconfig.SetConfig) error {
	m.writeLock.Lock()
	defer m.writeLock.Unlock()

	if w, ok := m.find(name); ok {
		if w.active.Load() {
			return fmt.Errorf("%s: %w", name, ErrAlreadyExists)
		}

		return fmt.Errorf("%s: %w", name, ErrDeleteInProgress)
	}

	if _, pending := m.pendingDelete.Load(name); pending {
		return fmt.Errorf("%s: %w", name, ErrDeleteInProgress)
	}

	if customCfg != nil {
		cfg := *customCfg
		if err := cfg.Normalize(); err != nil {
			return fmt.Errorf("%s: %w: %w", name, err, ErrInternal)
		}

		if err := hset.WriteConfig(m.global.DataDir, name, cfg); err != nil {
			return fmt.Errorf("%s: %w: %w", name, err, ErrInternal)
		}
	}

	set, err := hset.Open(m.global, name, false)
	if err != nil {
		return fmt.Errorf("%s: %w: %w", name, err, ErrInternal)
	}

	w := &wrapper{name: name, set: set}
	w.active.Store(true)
	w.hot.Store(true)

	vsn := m.currentVsn.Add(1)
	m.pushDelta(&delta{vsn: vsn, kind: deltaCreate, wrapper: w})

	return nil
}

// Drop marks the named set inactive and schedules it for reclamation
// with disk cleanup.
func (m *Manager) Drop(name string) error {
	m.writeLock.Lock()
	defer m.writeLock.Unlock()

	w, ok := m.take(name)
	if !ok {
		return fmt.Errorf("%s: %w", name, ErrNotFound)
	}

	w.active.Store(false)
	w.shouldDelete.Store(true)

	vsn := m.currentVsn.Add(1)
	m.pushDelta(&delta{vsn: vsn, kind: deltaDelete, wrapper: w})

	return nil
}

// Clear marks the named set inactive without deleting its on-disk
// state, forcing a rediscover on the next boot/Create. It fails with
// [ErrNotProxied] if the set is currently resident.
func (m *Manager) Clear(name string) error {
	m.writeLock.Lock()
	defer m.writeLock.Unlock()

	w, ok := m.take(name)
	if !ok {
		return fmt.Errorf("%s: %w", name, ErrNotFound)
	}

	if w.set.IsResident() {
		return fmt.Errorf("%s: %w", name, ErrNotProxied)
	}

	w.active.Store(false)
	w.shouldDelete.Store(false)

	vsn := m.currentVsn.Add(1)
	m.pushDelta(&delta{vsn: vsn, kind: deltaDelete, wrapper: w})

	return nil
}

// Flush flushes the named set's pending mutations to disk.
func (m *Manager) Flush(name string) error {
	w, ok := m.take(name)
	if !ok {
		return fmt.Errorf("%s: %w", name, ErrNotFound)
	}

	w.mu.RLock()
	defer w.mu.RUnlock()

	if err := w.set.Flush(); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}

	return nil
}

// SetSize returns the named set's current cardinality estimate.
func (m *Manager) SetSize(name string) (uint64, error) {
	w, ok := m.take(name)
	if !ok {
		return 0, fmt.Errorf("%s: %w", name, ErrNotFound)
	}

	w.mu.RLock()
	defer w.mu.RUnlock()

	size, err := w.set.Size()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}

	return size, nil
}

// AddKeys adds each key to the named set, stopping at the first
// failure. Every successful call marks the wrapper hot.
func (m *Manager) AddKeys(name string, keys [][]byte) error {
	w, ok := m.take(name)
	if !ok {
		return fmt.Errorf("%s: %w", name, ErrNotFound)
	}

	w.mu.RLock()
	defer w.mu.RUnlock()

	for _, k := range keys {
		if err := w.set.Add(k, m.hash); err != nil {
			return fmt.Errorf("%s: %w: %w", name, err, ErrInternal)
		}

		w.hot.Store(true)
	}

	return nil
}

// Unmap pages the named set out to proxied state.
func (m *Manager) Unmap(name string) error {
	w, ok := m.take(name)
	if !ok {
		return fmt.Errorf("%s: %w", name, ErrNotFound)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.set.Close(); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}

	return nil
}

// Cb invokes fn with direct access to the named set's underlying Set,
// under the wrapper's reader lock.
func (m *Manager) Cb(name string, fn func(*hset.Set) error) error {
	w, ok := m.take(name)
	if !ok {
		return fmt.Errorf("%s: %w", name, ErrNotFound)
	}

	w.mu.RLock()
	defer w.mu.RUnlock()

	return fn(w.set)
}

// List emits every active set name satisfying the optional prefix: the
// primary snapshot first, then any unmerged Create deltas not since
// retired (spec §4.4 "list").
func (m *Manager) List(prefix string) []string {
	var out []string

	pm := m.primary.Load()
	pm.Prefix(prefix, func(name string, w *wrapper) bool {
		if w.active.Load() {
			out = append(out, name)
		}

		return true
	})

	primaryVsn := m.primaryVsn.Load()
	if primaryVsn >= m.currentVsn.Load() {
		return out
	}

	for d := m.deltaHead.Load(); d != nil && d.vsn > primaryVsn; d = d.next.Load() {
		if d.kind != deltaCreate {
			continue
		}

		if !d.wrapper.active.Load() {
			continue
		}

		if strings.HasPrefix(d.wrapper.name, prefix) {
			out = append(out, d.wrapper.name)
		}
	}

	return out
}

// ListCold emits every resident set not touched since the previous
// ListCold sweep, atomically clearing each wrapper's hot flag as it
// goes. Unmerged deltas are ignored: new creates are hot by
// construction and pending deletes are irrelevant to cold sweeping.
func (m *Manager) ListCold() []string {
	var out []string

	pm := m.primary.Load()
	pm.All(func(name string, w *wrapper) bool {
		wasHot := w.hot.Swap(false)
		if wasHot {
			return true
		}

		if !w.active.Load() || !w.set.IsResident() {
			return true
		}

		out = append(out, name)

		return true
	})

	return out
}
