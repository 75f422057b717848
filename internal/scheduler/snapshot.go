package scheduler

import (
	"context"
	"time"

	"github.com/rosrad/rtagsd/internal/snapshot"
	"github.com/rosrad/rtagsd/pkg/rtags"
)

// SnapshotData captures every live job in the pending queue and the
// processing table, for the daemon's periodic scheduler snapshot (spec
// §4.10): enough to report what was in flight across a restart, though
// a restart still cannot resume a live subprocess or peer connection.
func (s *Scheduler) SnapshotData() snapshot.Data {
	s.mu.Lock()
	defer s.mu.Unlock()

	jobs := make([]snapshot.JobRecord, 0, len(s.pending)+len(s.processing))
	for _, j := range s.pending {
		jobs = append(jobs, toRecord(j))
	}
	for _, j := range s.processing {
		jobs = append(jobs, toRecord(j))
	}
	return snapshot.Data{WALSeq: s.wal.LastSeq(), Jobs: jobs}
}

func toRecord(j *rtags.IndexerJob) snapshot.JobRecord {
	return snapshot.JobRecord{
		ID:          j.ID,
		Project:     j.Project,
		SourceFile:  j.Unit.SourceFile,
		Source:      j.Unit.Source,
		Flags:       j.Unit.Flags,
		Destination: j.Destination,
		Port:        j.Port,
		StartedAtMS: j.StartedAt.UnixMilli(),
		CrashCount:  j.CrashCount,
	}
}

// RunSnapshotTicker periodically writes SnapshotData to mgr every
// interval until ctx is cancelled or Stop() is called, observing the
// write duration on metrics when set. Intended to run on its own
// goroutine, started alongside Run.
func (s *Scheduler) RunSnapshotTicker(ctx context.Context, mgr *snapshot.Manager, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			start := time.Now()
			if err := mgr.Write(s.SnapshotData()); err != nil {
				s.logger.Error("scheduler: snapshot write failed", "error", err)
				continue
			}
			if s.metrics != nil {
				s.metrics.ObserveSnapshotWriteDuration(time.Since(start))
			}
		}
	}
}
