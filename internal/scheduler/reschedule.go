package scheduler

import (
	"context"
	"time"

	"github.com/rosrad/rtagsd/internal/wal"
	"github.com/rosrad/rtagsd/pkg/rtags"
)

// rescheduleCheckInterval is how often the reschedule timer scans the
// processing table; it does not need to be precise, only bounded.
const rescheduleCheckInterval = 5 * time.Second

// runRescheduleTimer implements §4.8: a remote dispatch that has been
// outstanding longer than RescheduleTimeout gets a duplicate local
// attempt, same Unit, new IndexerJob — genuine duplicate-dispatch,
// exactly once per job, so a flaky or overloaded peer never stalls
// indexing. The remote attempt is left running; commitWinner discards
// whichever side loses.
func (s *Scheduler) runRescheduleTimer(ctx context.Context) {
	ticker := time.NewTicker(rescheduleCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.rescheduleOverdue()
		}
	}
}

func (s *Scheduler) rescheduleOverdue() {
	if s.opts.RescheduleTimeout <= 0 {
		return
	}

	var duplicates []*rtags.IndexerJob
	s.mu.Lock()
	for _, job := range s.processing {
		if job.State != rtags.StateDispatchedRemote {
			continue
		}
		if job.Unit.Flags.Has(rtags.Rescheduled) {
			continue
		}
		if time.Since(job.StartedAt) < s.opts.RescheduleTimeout {
			continue
		}
		job.Unit.Flags = job.Unit.Flags.Set(rtags.Rescheduled)

		dup := rtags.NewIndexerJob(job.Project, job.Unit)
		dup.State = rtags.StateReady
		s.pending = append(s.pending, dup)
		s.byUnit[job.Unit] = append(s.byUnit[job.Unit], dup.ID)
		duplicates = append(duplicates, dup)
	}
	s.mu.Unlock()

	for _, dup := range duplicates {
		s.logger.Info("scheduler: rescheduling overdue remote job locally", "jobID", dup.ID, "source", dup.Unit.SourceFile)
		s.appendWAL(wal.EventRescheduled, dup.ID, dup.Project, false)
		if s.metrics != nil {
			s.metrics.RecordRescheduled()
		}
	}
	if len(duplicates) > 0 {
		s.kick()
	}
}
