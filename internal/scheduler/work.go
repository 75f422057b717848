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

// work is the single entry point for every scheduling decision: drain
// Ready jobs into free local slots, then — if the daemon is networked —
// announce surplus work to peers and request work from them in turn.
// Called from the debounced loop started by Run, never directly.
func (s *Scheduler) work(ctx context.Context) {
	s.dispatchLocal(ctx)

	if s.peers == nil {
		return
	}
	s.announceSurplus(ctx)
	s.requestFromPeers(ctx)
}

// dispatchLocal launches Ready jobs onto free local worker slots, honoring
// NoLocalCompiles and the JobCount ceiling.
func (s *Scheduler) dispatchLocal(ctx context.Context) {
	if s.opts.Flags.Has(rtags.NoLocalCompiles) {
		return
	}

	for {
		free := s.freeLocalSlots()
		if free <= 0 {
			return
		}

		s.mu.Lock()
		job := s.popReady()
		s.mu.Unlock()
		if job == nil {
			return
		}

		s.mu.Lock()
		job.State = rtags.StateDispatchedLocal
		job.StartedAt = time.Now()
		job.Unit.Flags = job.Unit.Flags.Set(rtags.RunningLocal)
		s.processing[job.ID] = job
		s.mu.Unlock()

		s.appendWAL(wal.EventDispatchLocal, job.ID, job.Project, false)
		if s.metrics != nil {
			s.metrics.RecordDispatch()
		}

		if err := s.local.Launch(ctx, job); err != nil {
			s.logger.Error("scheduler: launch local failed", "jobID", job.ID, "error", err)
			s.requeueForLocalFailure(job)
			continue
		}
	}
}

// popReady removes and returns the oldest Ready job in the pending
// queue, or nil. Caller holds s.mu.
func (s *Scheduler) popReady() *rtags.IndexerJob {
	for i, job := range s.pending {
		if job.State == rtags.StateReady {
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			return job
		}
	}
	return nil
}

// requeueForLocalFailure puts a job that failed to even launch back onto
// the pending queue as Ready, so the next work() pass retries it.
func (s *Scheduler) requeueForLocalFailure(job *rtags.IndexerJob) {
	s.mu.Lock()
	delete(s.processing, job.ID)
	job.State = rtags.StateReady
	job.Unit.Flags = job.Unit.Flags.Clear(rtags.RunningLocal)
	s.pending = append(s.pending, job)
	s.mu.Unlock()
}

// announceSurplus tells the coordinator (or, absent one, every known
// peer) that this daemon has jobs free to hand out, once per nonempty
// pending queue; repeated kicks while work remains outstanding don't
// re-announce, mirroring the original's "only announce on transition
// into nonempty" behavior.
func (s *Scheduler) announceSurplus(ctx context.Context) {
	s.mu.Lock()
	hasReady := false
	for _, j := range s.pending {
		if j.State == rtags.StateReady {
			hasReady = true
			break
		}
	}
	s.mu.Unlock()
	if !hasReady {
		return
	}

	if coord := s.peers.Coordinator(); coord != nil {
		coord.Send(protocol.TypeProxyJobAnnouncement, protocol.ProxyJobAnnouncementMessage{Port: uint16(s.opts.TCPPort)})
		return
	}
	s.peers.BroadcastJobAnnouncement(ctx, "", uint16(s.opts.TCPPort), nil)
}

// requestFromPeers pulls work from the next remote in rotation when this
// daemon's own local slots are idle and its pending queue is dry.
func (s *Scheduler) requestFromPeers(ctx context.Context) {
	if s.opts.Flags.Has(rtags.NoJobServer) {
		return
	}
	free := s.freeLocalSlots()
	if free <= 0 {
		return
	}
	s.mu.Lock()
	empty := len(s.pending) == 0
	s.mu.Unlock()
	if !empty {
		return
	}

	r, ok := s.remotes.Next()
	if !ok {
		return
	}

	s.mu.Lock()
	if s.pendingRequests[r.Key()] > 0 {
		s.mu.Unlock()
		return // already have an outstanding request to this peer
	}
	s.mu.Unlock()

	conn, err := s.peers.DialPeer(ctx, r, 5*time.Second)
	if err != nil {
		s.logger.Debug("scheduler: dial peer for job request failed", "remote", r, "error", err)
		s.remotes.Remove(r)
		return
	}
	defer conn.Close()

	s.mu.Lock()
	s.pendingRequests[r.Key()] = free
	s.mu.Unlock()

	if err := conn.Send(protocol.TypeJobRequest, protocol.JobRequestMessage{NumJobs: free}); err != nil {
		s.logger.Debug("scheduler: send job request failed", "remote", r, "error", err)
		s.mu.Lock()
		delete(s.pendingRequests, r.Key())
		s.mu.Unlock()
	}
}

// OnJobAnnouncement handles a peer advertising spare work: it's added to
// the rotation so a future requestFromPeers pass can draw from it.
func (s *Scheduler) OnJobAnnouncement(host string, port uint16) {
	s.remotes.Add(peer.Remote{Host: host, Port: port})
	if s.metrics != nil {
		s.metrics.SetKnownPeers(s.remotes.Len())
	}
	s.kick()
}

// OnJobRequest answers a peer's request for work by handing out up to
// numJobs Ready jobs from the pending queue, marking each Remote and
// FromRemote-for-the-requester so their loser is cleanly discarded if
// the local attempt also completes first.
func (s *Scheduler) OnJobRequest(conn net.Conn, from peer.Remote, numJobs int) {
	s.mu.Lock()
	var units []protocol.WireUnit
	var granted []*rtags.IndexerJob
	for i := 0; i < len(s.pending) && len(granted) < numJobs; {
		job := s.pending[i]
		if job.State != rtags.StateReady || job.Unit.Flags.Has(rtags.FromRemote) || len(job.Unit.Preprocessed) == 0 {
			i++
			continue
		}
		s.pending = append(s.pending[:i], s.pending[i+1:]...)
		job.State = rtags.StateDispatchedRemote
		job.Destination = from.Host
		job.Port = from.Port
		job.Unit.Flags = job.Unit.Flags.Set(rtags.Remote)
		s.processing[job.ID] = job
		granted = append(granted, job)
		units = append(units, protocol.WireUnit{
			Source:       job.Unit.Source,
			SourceFile:   job.Unit.SourceFile,
			CompilerHash: job.Unit.CompilerHash,
			Flags:        job.Unit.Flags,
			Preprocessed: job.Unit.Preprocessed,
			ProjectRoot:  job.Project,
		})
	}
	empty := len(s.pending) == 0
	s.mu.Unlock()

	for _, job := range granted {
		s.appendWAL(wal.EventDispatchRemote, job.ID, job.Project, false)
		if s.metrics != nil {
			s.metrics.RecordDispatchRemote()
		}
	}

	msg := protocol.JobResponseMessage{Units: units, TCPPort: uint16(s.opts.TCPPort), IsFinished: empty}
	frame, err := protocol.Encode(protocol.TypeJobResponse, msg)
	if err != nil {
		s.logger.Error("scheduler: encode job response failed", "error", err)
		return
	}
	if err := protocol.WriteFrame(conn, frame); err != nil {
		s.logger.Debug("scheduler: write job response failed", "error", err)
	}
}
