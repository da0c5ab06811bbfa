// Package workers implements the three background loops described in
// spec §4.5 and §9: a mandatory vacuum loop that reclaims dropped sets
// and retires stale delta-log entries, and two optional loops - a
// periodic flush of every set and a periodic unmap of sets that have
// gone cold. All three tick every 250ms (spec §4.5, "wakes every
// 0.25 s"); flush and cold only do their real work every interval
// seconds and checkpoint on every tick so the vacuum loop can make
// progress, and either of the two is disabled outright by passing an
// interval of zero (spec §4.5, "Either worker is disabled by setting
// its interval to 0"). The vacuum loop has no such switch: spec §5/§9
// run it as a standing OS thread for the lifetime of the process.
package workers

import (
	"context"
	"time"

	"github.com/hlldsvc/hlld/pkg/hllconfig"
	"github.com/hlldsvc/hlld/pkg/setmgr"
)

// tickInterval is the worker cadence independent of the work interval
// (spec §4.5, "wakes every 0.25 s").
const tickInterval = 250 * time.Millisecond

// checkpointBatch is how many sets a worker processes between
// re-checkpoints (spec §4.5, "re-checkpointing every 64 sets").
const checkpointBatch = 64

// FlushWorker periodically flushes every set in the manager.
type FlushWorker struct {
	Manager  *setmgr.Manager
	Interval time.Duration
	Logger   hllconfig.Logger
}

// Run executes the flush loop until ctx is canceled. Run returns once
// the current tick finishes; there is no other shutdown signal (spec §5,
// "workers finish their current iteration and exit").
func (w *FlushWorker) Run(ctx context.Context) {
	if w.Interval <= 0 {
		return
	}

	logger := w.logger()
	client := w.Manager.Join()
	defer client.Leave()

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	var sinceFlush time.Duration

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		client.Checkpoint()

		sinceFlush += tickInterval
		if sinceFlush < w.Interval {
			continue
		}

		sinceFlush = 0
		w.flushAll(client, logger)
	}
}

func (w *FlushWorker) flushAll(client *setmgr.Client, logger hllconfig.Logger) {
	names := w.Manager.List("")

	for i, name := range names {
		if err := w.Manager.Flush(name); err != nil {
			logger.Printf("workers: flush %s: %v", name, err)
		}

		if (i+1)%checkpointBatch == 0 {
			client.Checkpoint()
		}
	}
}

func (w *FlushWorker) logger() hllconfig.Logger {
	if w.Logger != nil {
		return w.Logger
	}

	return hllconfig.NopLogger{}
}

// ColdUnmapWorker periodically unmaps sets that have not been touched
// since the previous sweep.
type ColdUnmapWorker struct {
	Manager  *setmgr.Manager
	Interval time.Duration
	Logger   hllconfig.Logger
}

// Run executes the cold-unmap loop until ctx is canceled.
func (w *ColdUnmapWorker) Run(ctx context.Context) {
	if w.Interval <= 0 {
		return
	}

	logger := w.logger()
	client := w.Manager.Join()
	defer client.Leave()

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	var sinceSweep time.Duration

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		client.Checkpoint()

		sinceSweep += tickInterval
		if sinceSweep < w.Interval {
			continue
		}

		sinceSweep = 0
		w.unmapCold(client, logger)
	}
}

func (w *ColdUnmapWorker) unmapCold(client *setmgr.Client, logger hllconfig.Logger) {
	names := w.Manager.ListCold()

	for i, name := range names {
		if err := w.Manager.Unmap(name); err != nil {
			logger.Printf("workers: unmap %s: %v", name, err)
		}

		if (i+1)%checkpointBatch == 0 {
			client.Checkpoint()
		}
	}
}

func (w *ColdUnmapWorker) logger() hllconfig.Logger {
	if w.Logger != nil {
		return w.Logger
	}

	return hllconfig.NopLogger{}
}

// VacuumWorker drives the manager's vacuum cycle in the background. It
// is the Go stand-in for the original's dedicated vacuum_thread
// (set_manager.c's init_set_manager starts one via pthread_create);
// unlike FlushWorker/ColdUnmapWorker it has no interval switch, since
// the spec does not offer a way to disable it (§5 "(b) one vacuum
// thread", §9 "dedicated OS threads for flush/cold/vacuum").
//
// VacuumWorker does not join the manager as a client: it only
// consumes other clients' checkpoints via [setmgr.Manager.Vacuum], it
// never advances one of its own, so joining would pin the barrier
// horizon at whatever version it joined on and stall every vacuum
// cycle forever.
type VacuumWorker struct {
	Manager *setmgr.Manager
	Logger  hllconfig.Logger
}

// Run executes the vacuum loop until ctx is canceled. Each tick calls
// [setmgr.Manager.Vacuum], which is a no-op unless a create/drop is
// pending (spec §4.4 step 1, "Sleep until current_vsn != primary_vsn").
func (w *VacuumWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		w.Manager.Vacuum()
	}
}

// Group starts the vacuum worker plus the two optional workers
// (skipping either of the latter if given a zero interval) and stops
// them when ctx is canceled, returning a function that blocks until
// all three loops have exited.
func Group(ctx context.Context, mgr *setmgr.Manager, global hllconfig.GlobalConfig, logger hllconfig.Logger) (wait func()) {
	done := make(chan struct{}, 3)

	vacuum := &VacuumWorker{Manager: mgr, Logger: logger}
	flush := &FlushWorker{Manager: mgr, Interval: global.FlushInterval, Logger: logger}
	cold := &ColdUnmapWorker{Manager: mgr, Interval: global.ColdInterval, Logger: logger}

	go func() {
		vacuum.Run(ctx)
		done <- struct{}{}
	}()

	go func() {
		flush.Run(ctx)
		done <- struct{}{}
	}()

	go func() {
		cold.Run(ctx)
		done <- struct{}{}
	}()

	return func() {
		<-done
		<-done
		<-done
	}
}
