package scheduler

import (
	"fmt"

	"github.com/rosrad/rtagsd/internal/snapshot"
	"github.com/rosrad/rtagsd/internal/wal"
	"github.com/rosrad/rtagsd/pkg/rtags"
)

// Restore rebuilds the pending queue from a previously-written scheduler
// snapshot, then replays every WAL record after the snapshot's watermark
// to drop whatever the snapshot didn't know had already reached a
// terminal state before the crash (spec §4.10, Scenario 7). Every
// recovered job re-enters at Ready rather than resuming mid-flight: the
// snapshot doesn't capture preprocessed bytes, and no subprocess or peer
// connection survives a restart regardless. Call before Run.
func (s *Scheduler) Restore(walPath string, data snapshot.Data) error {
	if len(data.Jobs) == 0 {
		return nil
	}

	s.mu.Lock()
	restored := make(map[rtags.JobID]*rtags.IndexerJob, len(data.Jobs))
	for _, rec := range data.Jobs {
		unit := &rtags.Unit{
			Source:     rec.Source,
			SourceFile: rec.SourceFile,
			Flags:      rec.Flags,
			Visited:    make(map[string]struct{}),
		}
		job := rtags.NewIndexerJob(rec.Project, unit)
		job.ID = rec.ID
		job.Destination = rec.Destination
		job.Port = rec.Port
		job.CrashCount = rec.CrashCount
		job.State = rtags.StateReady

		rtags.AdvanceJobIDPast(rec.ID)
		s.pending = append(s.pending, job)
		s.byUnit[unit] = append(s.byUnit[unit], job.ID)
		restored[job.ID] = job
	}
	s.mu.Unlock()

	dropTerminal := func(ev wal.Event) error {
		job, ok := restored[ev.JobID]
		if !ok {
			// A job the snapshot never captured: the WAL's own Event
			// record carries no Unit payload, so there is nothing to
			// reconstruct it from. It is lost, same as any subprocess
			// or peer connection a restart can't resume.
			return nil
		}
		switch ev.Type {
		case wal.EventCompleteLocal, wal.EventCompleteRemote, wal.EventAborted, wal.EventCrashed:
			s.mu.Lock()
			s.removePending(job.ID)
			delete(s.processing, job.ID)
			delete(restored, job.ID)
			s.mu.Unlock()
		}
		return nil
	}

	if err := wal.Replay(walPath, data.WALSeq, dropTerminal); err != nil {
		return fmt.Errorf("scheduler: wal replay: %w", err)
	}

	s.logger.Info("scheduler: restored from snapshot", "recovered", len(restored), "wal_seq", data.WALSeq)
	return nil
}
