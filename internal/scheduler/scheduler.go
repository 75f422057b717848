// Package scheduler implements the peer scheduler's work() loop (spec
// §4.6), the reconciler (§4.7), and the reschedule timer (§4.8): the
// central heartbeat that decides, for every pending job, whether to run
// it locally, announce it to peers, or request work from them, and that
// reconciles whichever result — local or remote — arrives first.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rosrad/rtagsd/internal/localworker"
	"github.com/rosrad/rtagsd/internal/peer"
	"github.com/rosrad/rtagsd/internal/preprocess"
	"github.com/rosrad/rtagsd/internal/project"
	"github.com/rosrad/rtagsd/internal/snapshot"
	"github.com/rosrad/rtagsd/internal/storage"
	"github.com/rosrad/rtagsd/internal/wal"
	"github.com/rosrad/rtagsd/pkg/rtags"
)

// StoreFor opens (or returns the cached) symbol store backing a project
// root, so the scheduler doesn't own per-project store lifecycle itself.
type StoreFor func(ctx context.Context, projectRoot string) (*storage.Store, error)

// Metrics is the subset of metrics.Collector the scheduler reports to.
type Metrics interface {
	RecordEnqueue()
	RecordDispatch()
	RecordDispatchRemote()
	RecordCompleted(latencySeconds float64)
	RecordCompletedRemote(latencySeconds float64)
	RecordFailed()
	RecordRescheduled()
	RecordWALAppendError()
	UpdateQueueStats(pending, inFlight int)
	SetKnownPeers(n int)
	ObserveSnapshotWriteDuration(d time.Duration)
}

// Scheduler owns the pending queue, the processing table, and every
// durable transition of the IndexerJob state machine, matching the
// teacher's Controller's single-mutex ownership of all scheduling state.
type Scheduler struct {
	mu sync.Mutex

	opts    rtags.Options
	logger  *slog.Logger
	metrics Metrics

	registry   *project.Registry
	preprocess *preprocess.Pool
	local      *localworker.Pool
	peers      *peer.Manager
	remotes    *peer.RemoteList
	wal        *wal.WAL
	storeFor   StoreFor

	// pending holds jobs in state Ready, waiting for a local slot, a
	// peer announcement, or a remote job request to claim them.
	pending []*rtags.IndexerJob
	// processing holds every job that has left Ready but not yet
	// reached a terminal state, keyed by id for O(1) reconciliation.
	processing map[rtags.JobID]*rtags.IndexerJob
	// byUnit indexes every live IndexerJob wrapping a given Unit, so the
	// reconciler can find and discard a duplicate's loser.
	byUnit map[*rtags.Unit][]rtags.JobID
	// pendingRequests counts, per remote key (peer.Remote.Key()), how
	// many jobs we've asked that peer for but not yet heard an answer
	// on — the sum(pending_job_request_counts) term of §4.6 step 2's
	// free-slot formula, so a slow-to-answer peer's promised capacity
	// isn't also offered out locally or requested again elsewhere.
	pendingRequests map[string]int

	workCh   chan struct{}
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	snapMgr      *snapshot.Manager
	snapInterval time.Duration
}

// New creates a Scheduler. storeFor resolves the symbol store for a job's
// project at commit time.
func New(opts rtags.Options, registry *project.Registry, pp *preprocess.Pool, local *localworker.Pool, peers *peer.Manager, remotes *peer.RemoteList, w *wal.WAL, storeFor StoreFor, m Metrics, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if remotes == nil {
		remotes = &peer.RemoteList{}
	}
	return &Scheduler{
		opts:            opts,
		logger:          logger,
		metrics:         m,
		registry:        registry,
		preprocess:      pp,
		local:           local,
		peers:           peers,
		remotes:         remotes,
		wal:             w,
		storeFor:        storeFor,
		processing:      make(map[rtags.JobID]*rtags.IndexerJob),
		byUnit:          make(map[*rtags.Unit][]rtags.JobID),
		pendingRequests: make(map[string]int),
		workCh:          make(chan struct{}, 1),
		stopCh:          make(chan struct{}),
	}
}

// EnableSnapshots arms the periodic scheduler job-table snapshot (§4.10);
// call before Run. A nil mgr or non-positive interval leaves snapshots
// disabled.
func (s *Scheduler) EnableSnapshots(mgr *snapshot.Manager, interval time.Duration) {
	s.snapMgr = mgr
	s.snapInterval = interval
}

// Run starts the debounced work() loop, the preprocess-result drain, and
// the reschedule timer. Any call to kick() coalesces into the next
// drain, implementing the §4.6 dirty-bit pattern without RAII.
func (s *Scheduler) Run(ctx context.Context) {
	if s.snapMgr != nil {
		go s.RunSnapshotTicker(ctx, s.snapMgr, s.snapInterval)
	}
	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopCh:
				return
			case <-s.workCh:
				s.work(ctx)
			}
		}
	}()
	go func() {
		defer s.wg.Done()
		s.drainPreprocessed(ctx)
	}()
	go s.runRescheduleTimer(ctx)
	if s.metrics != nil {
		go s.reportQueueStats(ctx)
	}

	s.kick()
}

// reportQueueStats periodically refreshes the pending/in-flight gauges;
// it's purely observational, so it runs independent of Stop()'s wg.
func (s *Scheduler) reportQueueStats(ctx context.Context) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.metrics.UpdateQueueStats(s.PendingCount(), s.ProcessingCount())
		}
	}
}

// Stop signals every loop to exit and waits for them.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

// kick schedules a work() pass; multiple kicks before the loop drains
// coalesce into a single trailing call.
func (s *Scheduler) kick() {
	select {
	case s.workCh <- struct{}{}:
	default:
	}
}

// appendWAL records event and, on failure, both logs and counts it —
// every call site treats a WAL write as best-effort-but-observed rather
// than fatal, since the in-memory state transition has already happened.
func (s *Scheduler) appendWAL(t wal.EventType, jobID rtags.JobID, project string, force bool) {
	if err := s.wal.Append(t, jobID, project, force); err != nil {
		s.logger.Error("scheduler: wal append failed", "event", t, "jobID", jobID, "error", err)
		if s.metrics != nil {
			s.metrics.RecordWALAppendError()
		}
	}
}

func (s *Scheduler) drainPreprocessed(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case res, ok := <-s.preprocess.Results():
			if !ok {
				return
			}
			if res.Err != nil {
				s.logger.Warn("scheduler: preprocess failed", "source", res.Unit.SourceFile, "error", res.Err)
				if s.metrics != nil {
					s.metrics.RecordFailed()
				}
				continue
			}
			s.markUnitReady(res.Unit)
			s.kick()
		}
	}
}

// markUnitReady transitions every pending job wrapping unit from
// Preprocessing to Ready (transition 2).
func (s *Scheduler) markUnitReady(unit *rtags.Unit) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, job := range s.pending {
		if job.Unit == unit && job.State == rtags.StatePreprocessing {
			job.State = rtags.StateReady
			s.appendWAL(wal.EventReady, job.ID, job.Project, false)
		}
	}
}

// Submit accepts a new compile command, creating a Queued IndexerJob and
// appending it to the pending queue. If the daemon is networked or
// ForcePreprocessing is set, preprocessing is kicked off immediately
// (transition 1); otherwise the job is marked Ready with its raw source.
func (s *Scheduler) Submit(ctx context.Context, proj *project.Project, unit *rtags.Unit, preprocessCmd []string) (*rtags.IndexerJob, error) {
	job := rtags.NewIndexerJob(proj.Root, unit)

	s.mu.Lock()
	s.pending = append(s.pending, job)
	s.byUnit[unit] = append(s.byUnit[unit], job.ID)
	s.mu.Unlock()

	s.appendWAL(wal.EventQueued, job.ID, job.Project, false)
	if s.metrics != nil {
		s.metrics.RecordEnqueue()
	}

	networked := s.peers != nil
	needsPreprocess := networked || s.opts.Flags.Has(rtags.ForcePreprocessing)
	if needsPreprocess && len(preprocessCmd) > 0 {
		job.State = rtags.StatePreprocessing
		s.appendWAL(wal.EventPreprocessing, job.ID, job.Project, false)
		if err := s.preprocess.Submit(ctx, preprocess.Job{Unit: unit, Command: preprocessCmd}); err != nil {
			return job, fmt.Errorf("scheduler: submit preprocess: %w", err)
		}
	} else {
		job.State = rtags.StateReady
		s.appendWAL(wal.EventReady, job.ID, job.Project, false)
	}

	s.kick()
	return job, nil
}

// Abort marks job Aborted (transition 9): a newer compile command
// superseded it, or its project was unloaded. Subsequent messages
// referencing this id are discarded by the reconciler.
func (s *Scheduler) Abort(job *rtags.IndexerJob) {
	s.mu.Lock()
	job.Abort()
	delete(s.processing, job.ID)
	s.removePending(job.ID)
	s.mu.Unlock()

	if s.local != nil {
		s.local.Kill(job.ID)
	}
	s.appendWAL(wal.EventAborted, job.ID, job.Project, true)
}

// removePending drops id from the pending queue. Caller holds s.mu.
func (s *Scheduler) removePending(id rtags.JobID) {
	for i, j := range s.pending {
		if j.ID == id {
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			return
		}
	}
}

// freeLocalSlots implements §4.6 step 2's free-slot formula: the job-count
// ceiling minus every claim already on it — active local subprocesses,
// in-flight preprocess jobs, and job requests sent to peers we haven't
// heard back from yet.
func (s *Scheduler) freeLocalSlots() int {
	s.mu.Lock()
	pending := 0
	for _, n := range s.pendingRequests {
		pending += n
	}
	s.mu.Unlock()

	busyPreprocess := 0
	if s.preprocess != nil {
		busyPreprocess = s.preprocess.BusyCount()
	}
	free := s.opts.JobCount - busyPreprocess - s.local.ActiveCount() - pending
	if free < 0 {
		free = 0
	}
	return free
}

// PendingCount and ProcessingCount back the /stats diagnostics feed.
func (s *Scheduler) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

func (s *Scheduler) ProcessingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.processing)
}
