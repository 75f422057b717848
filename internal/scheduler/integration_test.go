package scheduler

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rosrad/rtagsd/internal/localworker"
	"github.com/rosrad/rtagsd/internal/project"
	"github.com/rosrad/rtagsd/internal/storage"
	"github.com/rosrad/rtagsd/internal/wal"
	"github.com/rosrad/rtagsd/pkg/protocol"
	"github.com/rosrad/rtagsd/pkg/rtags"
)

// newTestScheduler builds a Scheduler with NoLocalCompiles set and no
// peer transport, so work() never touches s.local or s.peers: the
// pending->processing transition is driven directly by the test,
// exercising the same commit/reconcile paths dispatchLocal would.
func newTestScheduler(t *testing.T) (*Scheduler, string) {
	t.Helper()
	dataDir := t.TempDir()

	w, err := wal.Open(filepath.Join(dataDir, "test.wal"), 10)
	require.NoError(t, err)
	t.Cleanup(func() { w.Close() })

	registry := project.NewRegistry(dataDir, nil)

	storeFor := func(ctx context.Context, root string) (*storage.Store, error) {
		return storage.Open(ctx, dataDir, root)
	}

	// A real Pool, so commitWinner's s.local.Kill(sib.ID) on a
	// duplicate's loser has a live (if subprocess-less) pool to call
	// into rather than a nil pointer.
	local, err := localworker.New(filepath.Join(dataDir, "helper"), filepath.Join(dataDir, "local.sock"), nil, nil, nil)
	require.NoError(t, err)
	t.Cleanup(func() { local.Close() })

	opts := rtags.DefaultOptions()
	opts.Flags = rtags.NoLocalCompiles | rtags.NoJobServer

	return New(opts, registry, nil, local, nil, nil, w, storeFor, nil, nil), dataDir
}

// TestSubmitReachesReadyStandalone exercises transition 1 in standalone
// (non-networked, non-forced-preprocessing) mode: a submitted job goes
// straight to Ready without a preprocess round-trip.
func TestSubmitReachesReadyStandalone(t *testing.T) {
	sched, dataDir := newTestScheduler(t)
	proj := project.NewProject(filepath.Join(dataDir, "proj"))
	unit := rtags.NewUnit("/src/main.cc", "cc -c main.cc")

	job, err := sched.Submit(context.Background(), proj, unit, nil)
	require.NoError(t, err)
	assert.Equal(t, rtags.StateReady, job.State)
	assert.Equal(t, 1, sched.PendingCount())
}

// TestCommitWinnerLocal drives a job through a simulated local dispatch
// and commit, asserting the state machine reaches CompleteLocal and the
// job leaves the processing table.
func TestCommitWinnerLocal(t *testing.T) {
	sched, _ := newTestScheduler(t)
	proj := project.NewProject(filepath.Join(t.TempDir(), "proj"))
	unit := rtags.NewUnit("/src/main.cc", "cc -c main.cc")

	job, err := sched.Submit(context.Background(), proj, unit, nil)
	require.NoError(t, err)

	// Simulate dispatchLocal's transition without a real subprocess.
	sched.mu.Lock()
	sched.removePending(job.ID)
	job.State = rtags.StateDispatchedLocal
	sched.processing[job.ID] = job
	sched.mu.Unlock()

	msg := &protocol.IndexerMessage{JobID: job.ID, Project: proj.Root, Success: true, Symbols: []byte("sym")}
	sched.OnLocalFinished(job.ID, msg, false, "")

	assert.Equal(t, rtags.StateCompleteLocal, job.State)
	assert.True(t, job.Unit.Flags.Any(rtags.CompleteLocal))
	assert.Equal(t, 0, sched.ProcessingCount())
}

// TestDuplicateDispatchFirstWins exercises the commitWinner race (spec
// §4.7): the same Unit dispatched both locally and remotely, with the
// remote result arriving first. The local duplicate must be discarded
// silently rather than double-committed.
func TestDuplicateDispatchFirstWins(t *testing.T) {
	sched, _ := newTestScheduler(t)
	proj := project.NewProject(filepath.Join(t.TempDir(), "proj"))
	unit := rtags.NewUnit("/src/dup.cc", "cc -c dup.cc")

	localJob := rtags.NewIndexerJob(proj.Root, unit)
	remoteJob := rtags.NewIndexerJob(proj.Root, unit)

	sched.mu.Lock()
	localJob.State = rtags.StateDispatchedLocal
	remoteJob.State = rtags.StateDispatchedRemote
	sched.processing[localJob.ID] = localJob
	sched.processing[remoteJob.ID] = remoteJob
	sched.byUnit[unit] = []rtags.JobID{localJob.ID, remoteJob.ID}
	sched.mu.Unlock()

	remoteMsg := protocol.IndexerMessage{JobID: remoteJob.ID, Project: proj.Root, Success: true, Symbols: []byte("remote")}
	sched.OnIndexerResult(nil, remoteMsg)

	assert.Equal(t, rtags.StateCompleteRemote, remoteJob.State)
	assert.True(t, unit.Flags.Any(rtags.CompleteRemote))

	// The local duplicate's finish now arrives second; commitWinner must
	// see CompleteMask already set and drop it silently.
	localMsg := &protocol.IndexerMessage{JobID: localJob.ID, Project: proj.Root, Success: true, Symbols: []byte("local")}
	sched.OnLocalFinished(localJob.ID, localMsg, false, "")

	assert.Equal(t, rtags.StateAborted, localJob.State, "loser should have been aborted by the winner's commit")
	assert.Equal(t, 0, sched.ProcessingCount())
}

// TestAbortRemovesFromPendingAndProcessing covers transition 9: an
// aborted job is dropped from both the pending queue and the
// processing table and cannot be reconciled afterward.
func TestAbortRemovesFromPendingAndProcessing(t *testing.T) {
	sched, _ := newTestScheduler(t)
	proj := project.NewProject(filepath.Join(t.TempDir(), "proj"))
	unit := rtags.NewUnit("/src/abort.cc", "cc -c abort.cc")

	job, err := sched.Submit(context.Background(), proj, unit, nil)
	require.NoError(t, err)

	sched.Abort(job)

	assert.Equal(t, rtags.StateAborted, job.State)
	assert.Equal(t, 0, sched.PendingCount())
	assert.Equal(t, 0, sched.ProcessingCount())

	// A late result for an aborted job must be ignored, not panic.
	msg := &protocol.IndexerMessage{JobID: job.ID, Project: proj.Root, Success: true}
	assert.NotPanics(t, func() {
		sched.OnLocalFinished(job.ID, msg, false, "")
	})
}

// TestCommitWinnerFromRemoteMailsHomeOnly exercises the FromRemote branch
// of commitWinner (spec §9): a job run here on a peer's behalf has both
// Project and Destination set, but its result must be mailed home only,
// never committed into this daemon's own symbol store.
func TestCommitWinnerFromRemoteMailsHomeOnly(t *testing.T) {
	sched, _ := newTestScheduler(t)

	var storeCalls int64
	sched.storeFor = func(ctx context.Context, root string) (*storage.Store, error) {
		atomic.AddInt64(&storeCalls, 1)
		return nil, assert.AnError
	}

	unit := &rtags.Unit{
		SourceFile: "/their/src/main.cc",
		Flags:      rtags.FromRemote,
		Visited:    make(map[string]struct{}),
	}
	job := rtags.NewIndexerJob("their/foreign/project/root", unit)
	job.Destination = "peer.example"
	job.Port = 4242
	job.State = rtags.StateDispatchedLocal

	sched.mu.Lock()
	sched.processing[job.ID] = job
	sched.mu.Unlock()

	msg := &protocol.IndexerMessage{JobID: job.ID, Project: job.Project, Success: true, Symbols: []byte("x")}
	sched.OnLocalFinished(job.ID, msg, false, "")

	assert.Equal(t, rtags.StateCompleteLocal, job.State)

	require.Never(t, func() bool {
		return atomic.LoadInt64(&storeCalls) > 0
	}, 200*time.Millisecond, 20*time.Millisecond, "a FromRemote job's result must never be committed to the local store")
}

// TestHandleCrashGivesUpAfterMaxRetries exercises transition 6's give-up
// branch: once CrashCount exceeds MaxCrashCount, the job is committed with
// an empty result carrying only its own source file, preserving the
// source-to-self dependency edge, instead of vanishing.
func TestHandleCrashGivesUpAfterMaxRetries(t *testing.T) {
	sched, _ := newTestScheduler(t)
	proj := project.NewProject(filepath.Join(t.TempDir(), "proj"))
	unit := rtags.NewUnit("/src/crashy.cc", "cc -c crashy.cc")

	job, err := sched.Submit(context.Background(), proj, unit, nil)
	require.NoError(t, err)

	sched.mu.Lock()
	sched.removePending(job.ID)
	job.State = rtags.StateDispatchedLocal
	job.CrashCount = sched.opts.MaxCrashCount
	sched.processing[job.ID] = job
	sched.mu.Unlock()

	sched.OnLocalFinished(job.ID, nil, true, "segfault")

	assert.Equal(t, rtags.StateCompleteLocal, job.State)
	assert.True(t, job.Unit.Flags.Any(rtags.CompleteLocal))
	assert.Equal(t, 0, sched.ProcessingCount())
}

// TestHandleCrashReschedulesAfterDelay exercises transition 7: a crash
// short of the retry ceiling is requeued as Ready, but only after a short
// delay rather than immediately, so a helper crashing on bad input can't
// spin the work() loop hot.
func TestHandleCrashReschedulesAfterDelay(t *testing.T) {
	sched, _ := newTestScheduler(t)
	proj := project.NewProject(filepath.Join(t.TempDir(), "proj"))
	unit := rtags.NewUnit("/src/flaky.cc", "cc -c flaky.cc")

	job, err := sched.Submit(context.Background(), proj, unit, nil)
	require.NoError(t, err)

	sched.mu.Lock()
	sched.removePending(job.ID)
	job.State = rtags.StateDispatchedLocal
	sched.processing[job.ID] = job
	sched.mu.Unlock()

	sched.OnLocalFinished(job.ID, nil, true, "signal: killed")

	assert.Equal(t, rtags.StateReady, job.State)
	assert.True(t, job.Unit.Flags.Has(rtags.Rescheduled))
	assert.Equal(t, 0, sched.PendingCount(), "requeue must not happen before the retry delay elapses")

	require.Eventually(t, func() bool {
		return sched.PendingCount() == 1
	}, 2*time.Second, 20*time.Millisecond, "job should rejoin pending after the crash retry delay")
}
