// Package omap provides an ordered, name-keyed map used by the set
// manager's MVCC directory.
//
// The real hlld manager keys its directory by a radix tree; this module
// treats that tree abstractly (spec §1, §4.4: "modeled abstractly as an
// ordered map supporting search, insert, delete, copy, iteration over all
// entries, and iteration over a prefix"). Map provides exactly that
// surface over a sorted slice, which is the simplest structure that
// satisfies the ordering and prefix-iteration requirements without
// committing to a specific tree shape. It is not safe for concurrent
// mutation - the manager mutates a snapshot only from its vacuum cycle,
// either before publishing it or after a version barrier shows no reader
// still holds it.
package omap

import (
	"sort"
	"strings"
)

type entry[V any] struct {
	name  string
	value V
}

// Map is an ordered name -> value map, sorted by name.
type Map[V any] struct {
	entries []entry[V]
}

// New returns an empty Map.
func New[V any]() *Map[V] {
	return &Map[V]{}
}

func (m *Map[V]) search(name string) (int, bool) {
	i := sort.Search(len(m.entries), func(i int) bool {
		return m.entries[i].name >= name
	})

	if i < len(m.entries) && m.entries[i].name == name {
		return i, true
	}

	return i, false
}

// Search returns the value stored for name, if any.
func (m *Map[V]) Search(name string) (V, bool) {
	i, ok := m.search(name)
	if !ok {
		var zero V
		return zero, false
	}

	return m.entries[i].value, true
}

// Insert stores value under name, overwriting any existing entry.
func (m *Map[V]) Insert(name string, value V) {
	i, ok := m.search(name)
	if ok {
		m.entries[i].value = value
		return
	}

	m.entries = append(m.entries, entry[V]{})
	copy(m.entries[i+1:], m.entries[i:])
	m.entries[i] = entry[V]{name: name, value: value}
}

// Delete removes name from the map. Reports whether it was present.
func (m *Map[V]) Delete(name string) bool {
	i, ok := m.search(name)
	if !ok {
		return false
	}

	m.entries = append(m.entries[:i], m.entries[i+1:]...)

	return true
}

// Len returns the number of entries.
func (m *Map[V]) Len() int {
	return len(m.entries)
}

// Copy returns a structurally independent copy of m. Values themselves
// are not deep-copied.
func (m *Map[V]) Copy() *Map[V] {
	cp := &Map[V]{entries: make([]entry[V], len(m.entries))}
	copy(cp.entries, m.entries)

	return cp
}

// All iterates every entry in ascending name order. Stops early if yield
// returns false.
func (m *Map[V]) All(yield func(name string, value V) bool) {
	for _, e := range m.entries {
		if !yield(e.name, e.value) {
			return
		}
	}
}

// Prefix iterates every entry whose name starts with prefix, in ascending
// order. Stops early if yield returns false.
func (m *Map[V]) Prefix(prefix string, yield func(name string, value V) bool) {
	start := sort.Search(len(m.entries), func(i int) bool {
		return m.entries[i].name >= prefix
	})

	for _, e := range m.entries[start:] {
		if !strings.HasPrefix(e.name, prefix) {
			return
		}

		if !yield(e.name, e.value) {
			return
		}
	}
}
