package peer

import (
	"context"
	"log/slog"
	"time"
)

// Reconnector retries ConnectCoordinator with linear backoff
// (5s * successive_failures, per §4.5) until it succeeds or ctx is done.
type Reconnector struct {
	manager *Manager
	logger  *slog.Logger
}

func NewReconnector(m *Manager, logger *slog.Logger) *Reconnector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconnector{manager: m, logger: logger}
}

// Run blocks, attempting to (re)connect to host:port whenever the
// coordinator link is down, until ctx is cancelled.
func (r *Reconnector) Run(ctx context.Context, host string, port uint16, onConnected func(*Conn)) {
	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if r.manager.Coordinator() != nil {
			time.Sleep(500 * time.Millisecond)
			continue
		}

		conn, err := r.manager.ConnectCoordinator(ctx, host, port)
		if err != nil {
			failures++
			backoff := time.Duration(5*failures) * time.Second
			r.logger.Warn("peer: coordinator connect failed, backing off",
				"host", host, "port", port, "failures", failures, "backoff", backoff)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			continue
		}

		failures = 0
		r.logger.Info("peer: coordinator connected", "host", host, "port", port)
		if onConnected != nil {
			onConnected(conn)
		}
	}
}
