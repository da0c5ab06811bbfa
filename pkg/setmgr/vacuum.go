package setmgr

import (
	"time"

	"github.com/hlldsvc/hlld/internal/omap"
)

// barrierPollInterval is how often the vacuum cycle polls for client
// quiescence while waiting on a version barrier (spec §5 "busy-waits
// with 0.5 s sleeps during barrier convergence").
const barrierPollInterval = 500 * time.Millisecond

// Vacuum runs one full vacuum cycle if there is any unapplied state
// (current_vsn != primary_vsn), otherwise it returns immediately. It is
// exported for tests and for embedding without a background worker;
// [workers.VacuumWorker] (pkg/workers) calls it in a loop.
func (m *Manager) Vacuum() {
	m.vacuumMu.Lock()
	defer m.vacuumMu.Unlock()

	if m.currentVsn.Load() == m.primaryVsn.Load() {
		return
	}

	m.vacuumOnce()
}

// vacuumOnce implements the ten-step cycle of spec §4.4 "Vacuum
// worker". Callers must hold vacuumMu.
func (m *Manager) vacuumOnce() {
	primaryVsnBefore := m.primaryVsn.Load()

	unapplied := m.collectUnapplied(primaryVsnBefore)
	if len(unapplied) == 0 {
		return
	}

	if len(unapplied) == 1 && unapplied[0].kind == deltaBarrier {
		m.primaryVsn.Store(unapplied[0].vsn)
		m.trimDeltaLog(unapplied[0].vsn)

		return
	}

	minVsn := min(m.clientsMinVsn(), m.currentVsn.Load())

	applied := applicableDeltas(unapplied, primaryVsnBefore, minVsn)
	if len(applied) == 0 {
		return
	}

	for _, d := range applied {
		if d.kind == deltaDelete {
			m.pendingDelete.Store(d.wrapper.name, struct{}{})
		}
	}

	applyOldestFirst(m.alternate, applied)

	oldPrimary := m.primary.Load()
	m.primary.Store(m.alternate)
	m.alternate = oldPrimary
	m.primaryVsn.Store(minVsn)

	m.awaitBarrier()

	applyOldestFirst(m.alternate, applied)

	for _, d := range applied {
		if d.kind != deltaDelete {
			continue
		}

		w := d.wrapper
		if w.shouldDelete.Load() {
			_ = w.set.Delete()
		} else {
			_ = w.set.Close()
		}
	}

	for _, d := range applied {
		if d.kind == deltaDelete {
			m.pendingDelete.Delete(d.wrapper.name)
		}
	}

	m.trimDeltaLog(minVsn)
}

// collectUnapplied walks the delta log from the current head down to
// (not including) boundary, returning entries newest-first. The head is
// snapshotted once at entry.
func (m *Manager) collectUnapplied(boundary uint64) []*delta {
	var out []*delta

	for d := m.deltaHead.Load(); d != nil && d.vsn > boundary; d = d.next.Load() {
		out = append(out, d)
	}

	return out
}

// applicableDeltas filters unapplied (newest-first) down to entries
// with vsn in (primaryVsnBefore, minVsn], returned oldest-first so that
// a Create/Delete pair for the same name collapses to its final state
// when replayed in order.
func applicableDeltas(unapplied []*delta, primaryVsnBefore, minVsn uint64) []*delta {
	var out []*delta

	for _, d := range unapplied {
		if d.vsn > primaryVsnBefore && d.vsn <= minVsn {
			out = append(out, d)
		}
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}

	return out
}

func applyOldestFirst(target *omap.Map[*wrapper], applied []*delta) {
	for _, d := range applied {
		switch d.kind {
		case deltaCreate:
			target.Insert(d.wrapper.name, d.wrapper)
		case deltaDelete:
			target.Delete(d.wrapper.name)
		case deltaBarrier:
		}
	}
}

// awaitBarrier appends a Barrier delta at a freshly allocated version
// and busy-waits until every client has checkpointed past it. It
// deliberately leaves primary_vsn at min_vsn: bumping it straight to
// barrier_vsn here would hide any Create/Delete that landed in
// (min_vsn, barrier_vsn) during the wait. That gap is closed by the
// special case at the top of vacuumOnce on a later cycle, once the
// barrier is confirmed to be the only unapplied delta left.
func (m *Manager) awaitBarrier() {
	m.writeLock.Lock()
	barrierVsn := m.currentVsn.Add(1)
	m.pushDelta(&delta{vsn: barrierVsn, kind: deltaBarrier})
	m.writeLock.Unlock()

	for m.clientsMinVsn() < barrierVsn {
		time.Sleep(barrierPollInterval)
	}
}

// trimDeltaLog severs the delta log right after the oldest entry with
// vsn > boundary, so every entry at or below boundary - including
// Create/Delete nodes just merged into primary and any Barrier node
// whose wait has already been satisfied - becomes unreachable from
// deltaHead and can be garbage collected (spec §4.4 step 10 "unlink
// reclaimed delta nodes"). Entries above boundary (a Barrier awaiting
// convergence, or Creates/Deletes that landed after this cycle started
// collecting) are left untouched.
//
// trimDeltaLog takes writeLock because pushDelta, its only other
// mutator, does too; this keeps head/next mutations serialized against
// concurrent create/drop/barrier pushes.
func (m *Manager) trimDeltaLog(boundary uint64) {
	m.writeLock.Lock()
	defer m.writeLock.Unlock()

	var last *delta

	for d := m.deltaHead.Load(); d != nil && d.vsn > boundary; d = d.next.Load() {
		last = d
	}

	if last != nil {
		last.next.Store(nil)
		return
	}

	m.deltaHead.Store(nil)
}
