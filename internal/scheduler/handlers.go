package scheduler

import (
	"context"
	"net"

	"github.com/rosrad/rtagsd/internal/peer"
	"github.com/rosrad/rtagsd/pkg/protocol"
)

// Handlers wires every peer transport callback the scheduler cares about
// into a peer.Handlers value, so cmd/rtagsd can build a peer.Manager in
// one line: peer.NewManager(addr, isCoordinator, sched.Handlers(), log).
func (s *Scheduler) Handlers() peer.Handlers {
	return peer.Handlers{
		OnClientConnected:      s.onClientConnected,
		OnJobAnnouncement:      s.OnJobAnnouncement,
		OnProxyJobAnnouncement: s.onProxyJobAnnouncement,
		OnJobRequest:           s.OnJobRequest,
		OnJobResponse:          s.OnJobResponse,
		OnIndexerResult:        s.OnIndexerResult,
		OnExit:                 s.onExit,
	}
}

func (s *Scheduler) onClientConnected(host string) {
	s.logger.Info("scheduler: peer connected", "host", host)
}

// onProxyJobAnnouncement relays a peer's announcement request to every
// other connected client, filling in the sender's observed address —
// the coordinator-only path used when peers can't reach each other
// directly but can all reach the coordinator.
func (s *Scheduler) onProxyJobAnnouncement(from net.Conn, port uint16) {
	host, _, err := net.SplitHostPort(from.RemoteAddr().String())
	if err != nil {
		host = from.RemoteAddr().String()
	}
	var except *peer.Conn
	if c, ok := from.(*peer.Conn); ok {
		except = c
	}
	s.peers.BroadcastJobAnnouncement(context.Background(), host, port, except)
}

func (s *Scheduler) onExit(from net.Conn, msg protocol.ExitMessage) {
	s.logger.Warn("scheduler: exit requested by peer", "from", from.RemoteAddr(), "code", msg.ExitCode, "forward", msg.Forward)
	s.Stop()
}
