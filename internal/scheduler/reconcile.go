package scheduler

import (
	"context"
	"net"
	"time"

	"github.com/rosrad/rtagsd/internal/peer"
	"github.com/rosrad/rtagsd/internal/wal"
	"github.com/rosrad/rtagsd/pkg/protocol"
	"github.com/rosrad/rtagsd/pkg/rtags"
)

// OnLocalFinished is wired as the localworker.Pool's FinishedFunc. It
// implements transitions 5 ("commit local result, discard any losing
// remote duplicate") and 6 ("crash, requeue or give up") of the job
// state machine.
func (s *Scheduler) OnLocalFinished(jobID rtags.JobID, msg *protocol.IndexerMessage, crashed bool, stderr string) {
	s.mu.Lock()
	job, ok := s.processing[jobID]
	s.mu.Unlock()
	if !ok {
		return // already reconciled via the remote side, or aborted
	}
	if job.IsTerminal() {
		return
	}

	if crashed {
		s.handleCrash(job, stderr)
		return
	}

	s.commitWinner(job, msg, rtags.CompleteLocal, wal.EventCompleteLocal)
}

// OnIndexerResult is wired to the peer transport's OnIndexerResult
// handler: a remote daemon we dispatched a job to (via OnJobRequest's
// response) reports its result back over the same connection.
func (s *Scheduler) OnIndexerResult(_ net.Conn, msg protocol.IndexerMessage) {
	s.mu.Lock()
	job, ok := s.processing[msg.JobID]
	s.mu.Unlock()
	if !ok || job.IsTerminal() {
		return
	}

	if !msg.Success {
		s.logger.Warn("scheduler: remote job failed", "jobID", msg.JobID, "error", msg.ErrorText)
		s.requeueRemoteFailure(job)
		return
	}

	s.commitWinner(job, &msg, rtags.CompleteRemote, wal.EventCompleteRemote)
}

// OnJobResponse handles a peer's answer to our job request: each
// WireUnit becomes a FromRemote IndexerJob, run through the same local
// dispatch path but tagged so its result is mailed back to the
// requester's origin rather than committed to our own symbol store.
func (s *Scheduler) OnJobResponse(from peer.Remote, msg protocol.JobResponseMessage) {
	s.mu.Lock()
	delete(s.pendingRequests, from.Key())
	s.mu.Unlock()

	if !msg.IsFinished {
		s.remotes.Add(peer.Remote{Host: from.Host, Port: msg.TCPPort})
	}

	for _, wu := range msg.Units {
		unit := &rtags.Unit{
			Source:       wu.Source,
			SourceFile:   wu.SourceFile,
			CompilerHash: wu.CompilerHash,
			Flags:        wu.Flags.Set(rtags.FromRemote),
			Preprocessed: wu.Preprocessed,
			Visited:      make(map[string]struct{}),
		}
		job := rtags.NewIndexerJob(wu.ProjectRoot, unit)
		job.Destination = from.Host
		job.Port = msg.TCPPort
		job.State = rtags.StateReady

		s.mu.Lock()
		s.pending = append(s.pending, job)
		s.mu.Unlock()
		s.appendWAL(wal.EventReady, job.ID, job.Project, false)
	}
	s.kick()
}

// handleCrash bumps CrashCount and either requeues the job (transition
// 8, Rescheduled) or marks it permanently Crashed once MaxCrashCount is
// exceeded.
func (s *Scheduler) handleCrash(job *rtags.IndexerJob, stderr string) {
	s.mu.Lock()
	job.CrashCount++
	job.Unit.Flags = job.Unit.Flags.Set(rtags.Crashed).Clear(rtags.RunningLocal)
	giveUp := job.CrashCount > s.opts.MaxCrashCount
	if giveUp {
		job.State = rtags.StateCrashed
		delete(s.processing, job.ID)
	} else {
		job.State = rtags.StateReady
		job.Unit.Flags = job.Unit.Flags.Set(rtags.Rescheduled)
		delete(s.processing, job.ID)
	}
	s.mu.Unlock()

	s.logger.Warn("scheduler: job crashed", "jobID", job.ID, "count", job.CrashCount, "giveUp", giveUp, "stderr", stderr)
	s.appendWAL(wal.EventCrashed, job.ID, job.Project, giveUp)

	if giveUp {
		if s.metrics != nil {
			s.metrics.RecordFailed()
		}
		// An exhausted crash retry still commits an empty result
		// preserving the source's self-dependency edge, so the file
		// stays tracked as dirty for a future re-index rather than
		// vanishing from the dependency graph entirely.
		empty := &protocol.IndexerMessage{
			JobID:   job.ID,
			Project: job.Project,
			Visited: []string{job.Unit.SourceFile},
			Success: true,
		}
		s.commitWinner(job, empty, rtags.CompleteLocal, wal.EventCompleteLocal)
		return
	}

	s.appendWAL(wal.EventRescheduled, job.ID, job.Project, false)
	if s.metrics != nil {
		s.metrics.RecordRescheduled()
	}
	// Transition 7: a non-final crash gets a short delay before
	// rejoining the pending queue, so a helper that crashes instantly
	// on bad input doesn't spin the work() loop hot.
	time.AfterFunc(500*time.Millisecond, func() {
		s.mu.Lock()
		s.pending = append(s.pending, job)
		s.mu.Unlock()
		s.kick()
	})
}

// requeueRemoteFailure puts a job whose remote attempt failed back on
// the pending queue so a subsequent pass can try again locally or ship
// it to a different peer.
func (s *Scheduler) requeueRemoteFailure(job *rtags.IndexerJob) {
	s.mu.Lock()
	delete(s.processing, job.ID)
	job.State = rtags.StateReady
	job.Unit.Flags = job.Unit.Flags.Clear(rtags.Remote).Set(rtags.Rescheduled)
	s.pending = append(s.pending, job)
	s.mu.Unlock()
	s.appendWAL(wal.EventRescheduled, job.ID, job.Project, false)
	if s.metrics != nil {
		s.metrics.RecordRescheduled()
	}
	s.kick()
}

// commitWinner is the single first-wins commit path shared by local and
// remote completion: it persists the result, marks the job's completion
// flag, and silently discards every other live job wrapping the same
// Unit — the duplicate-dispatch loser, whichever side it's running on.
func (s *Scheduler) commitWinner(job *rtags.IndexerJob, msg *protocol.IndexerMessage, complete rtags.Flag, event wal.EventType) {
	s.mu.Lock()
	if job.Unit.Flags.Any(rtags.CompleteMask) {
		s.mu.Unlock()
		return // a duplicate already won; this arrival is the loser
	}
	job.Unit.Flags = job.Unit.Flags.Set(complete)
	job.State = stateForComplete(complete)
	siblings := s.byUnit[job.Unit]
	delete(s.processing, job.ID)
	for _, id := range siblings {
		if id == job.ID {
			continue
		}
		if sib, ok := s.processing[id]; ok {
			sib.Abort()
			delete(s.processing, id)
			if sib.Destination == "" {
				s.local.Kill(sib.ID)
			}
		}
	}
	delete(s.byUnit, job.Unit)
	latency := time.Since(job.StartedAt).Seconds()
	s.mu.Unlock()

	s.appendWAL(event, job.ID, job.Project, true)
	if s.metrics != nil {
		if complete == rtags.CompleteRemote {
			s.metrics.RecordCompletedRemote(latency)
		} else {
			s.metrics.RecordCompleted(latency)
		}
	}

	// FromRemote jobs are run here purely on a peer's behalf: the result
	// belongs in their store, not ours, so it is mailed home instead of
	// committed locally even though job.Project and job.Destination are
	// both set (see OnJobResponse).
	if job.Unit.Flags.Has(rtags.FromRemote) {
		if job.Destination != "" {
			go s.mailResultHome(job, msg)
		}
	} else if job.Project != "" && s.storeFor != nil {
		go s.commitToStore(job, msg)
	}
}

func (s *Scheduler) commitToStore(job *rtags.IndexerJob, msg *protocol.IndexerMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	store, err := s.storeFor(ctx, job.Project)
	if err != nil {
		s.logger.Error("scheduler: open store failed", "project", job.Project, "error", err)
		return
	}
	if err := store.CommitResult(ctx, job.ID, job.Unit.SourceFile, msg); err != nil {
		s.logger.Error("scheduler: commit result failed", "jobID", job.ID, "error", err)
	}
}

// mailResultHome ships a FromRemote job's IndexerMessage back to the
// daemon that originally requested it, over a fresh connection.
func (s *Scheduler) mailResultHome(job *rtags.IndexerJob, msg *protocol.IndexerMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	conn, err := s.peers.DialPeer(ctx, peer.Remote{Host: job.Destination, Port: job.Port}, 5*time.Second)
	if err != nil {
		s.logger.Warn("scheduler: mail result home failed", "jobID", job.ID, "destination", job.Destination, "error", err)
		return
	}
	defer conn.Close()
	if err := conn.Send(protocol.TypeIndexer, *msg); err != nil {
		s.logger.Warn("scheduler: send result home failed", "jobID", job.ID, "error", err)
	}
}

func stateForComplete(f rtags.Flag) rtags.JobState {
	if f == rtags.CompleteRemote {
		return rtags.StateCompleteRemote
	}
	return rtags.StateCompleteLocal
}
