package peer

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rosrad/rtagsd/pkg/protocol"
)

// Handlers bundles the scheduler-side callbacks the transport dispatches
// decoded messages to; kept as one struct so Manager's wiring stays a
// single field instead of a handful of optional funcs.
type Handlers struct {
	OnClientConnected       func(host string)
	OnJobAnnouncement       func(host string, port uint16)
	OnProxyJobAnnouncement  func(from net.Conn, port uint16)
	OnJobRequest            func(conn net.Conn, from Remote, numJobs int)
	OnJobResponse           func(from Remote, msg protocol.JobResponseMessage)
	OnIndexerResult         func(from net.Conn, msg protocol.IndexerMessage)
	OnExit                  func(from net.Conn, msg protocol.ExitMessage)
}

// Conn wraps a peer TCP connection with a dedicated writer lock, since
// multiple goroutines (the scheduler loop, the reader dispatch loop) may
// write announcements/requests concurrently.
type Conn struct {
	net.Conn
	mu sync.Mutex
}

// Send gob-encodes and writes msg as a framed message of type t.
func (c *Conn) Send(t protocol.MessageType, msg any) error {
	frame, err := protocol.Encode(t, msg)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return protocol.WriteFrame(c, frame)
}

// Manager owns the TCP listener for incoming peer connections and the
// outgoing connection to a coordinator, if one is known.
type Manager struct {
	logger   *slog.Logger
	handlers Handlers

	listenAddr string
	listener   net.Listener

	mu            sync.Mutex
	coordinator   *Conn
	isCoordinator bool
	clients       map[*Conn]struct{} // connections the coordinator tracks
}

// NewManager creates a transport Manager listening on listenAddr.
func NewManager(listenAddr string, isCoordinator bool, handlers Handlers, logger *slog.Logger) (*Manager, error) {
	if logger == nil {
		logger = slog.Default()
	}
	ln, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return nil, fmt.Errorf("peer: listen %s: %w", listenAddr, err)
	}
	m := &Manager{
		logger:        logger,
		handlers:      handlers,
		listenAddr:    listenAddr,
		listener:      ln,
		isCoordinator: isCoordinator,
		clients:       make(map[*Conn]struct{}),
	}
	return m, nil
}

// Serve accepts peer connections until ctx is cancelled.
func (m *Manager) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		m.listener.Close()
	}()

	for {
		conn, err := m.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return fmt.Errorf("peer: accept: %w", err)
			}
		}
		c := &Conn{Conn: conn}
		if m.isCoordinator {
			m.mu.Lock()
			m.clients[c] = struct{}{}
			m.mu.Unlock()
		}
		go m.readLoop(c)
	}
}

func (m *Manager) readLoop(c *Conn) {
	defer func() {
		c.Close()
		m.mu.Lock()
		delete(m.clients, c)
		if m.coordinator == c {
			m.coordinator = nil
		}
		m.mu.Unlock()
	}()

	for {
		frame, err := protocol.ReadFrame(c)
		if err != nil {
			return
		}
		m.dispatch(c, frame)
	}
}

func (m *Manager) dispatch(c *Conn, frame protocol.Frame) {
	switch frame.Type {
	case protocol.TypeClient:
		if m.handlers.OnClientConnected != nil {
			m.handlers.OnClientConnected(c.RemoteAddr().String())
		}

	case protocol.TypeProxyJobAnnouncement:
		var msg protocol.ProxyJobAnnouncementMessage
		if protocol.Decode(frame, &msg) == nil && m.handlers.OnProxyJobAnnouncement != nil {
			m.handlers.OnProxyJobAnnouncement(c, msg.Port)
		}

	case protocol.TypeJobAnnouncement:
		var msg protocol.JobAnnouncementMessage
		if protocol.Decode(frame, &msg) == nil && m.handlers.OnJobAnnouncement != nil {
			m.handlers.OnJobAnnouncement(msg.Host, msg.Port)
		}

	case protocol.TypeJobRequest:
		var msg protocol.JobRequestMessage
		if protocol.Decode(frame, &msg) == nil && m.handlers.OnJobRequest != nil {
			host, _, _ := net.SplitHostPort(c.RemoteAddr().String())
			m.handlers.OnJobRequest(c, Remote{Host: host}, msg.NumJobs)
		}

	case protocol.TypeJobResponse:
		var msg protocol.JobResponseMessage
		if protocol.Decode(frame, &msg) == nil && m.handlers.OnJobResponse != nil {
			host, _, _ := net.SplitHostPort(c.RemoteAddr().String())
			m.handlers.OnJobResponse(Remote{Host: host, Port: msg.TCPPort}, msg)
		}

	case protocol.TypeIndexer:
		var msg protocol.IndexerMessage
		if protocol.Decode(frame, &msg) == nil && m.handlers.OnIndexerResult != nil {
			m.handlers.OnIndexerResult(c, msg)
		}

	case protocol.TypeExit:
		var msg protocol.ExitMessage
		if protocol.Decode(frame, &msg) == nil && m.handlers.OnExit != nil {
			m.handlers.OnExit(c, msg)
		}

	default:
		m.logger.Warn("peer: unhandled message type", "type", frame.Type)
	}
}

// BroadcastJobAnnouncement relays an announcement to every connected
// client except the originator (coordinator role only).
func (m *Manager) BroadcastJobAnnouncement(ctx context.Context, host string, port uint16, except *Conn) error {
	m.mu.Lock()
	targets := make([]*Conn, 0, len(m.clients))
	for c := range m.clients {
		if c != except {
			targets = append(targets, c)
		}
	}
	m.mu.Unlock()

	g, _ := errgroup.WithContext(ctx)
	for _, c := range targets {
		c := c
		g.Go(func() error {
			return c.Send(protocol.TypeJobAnnouncement, protocol.JobAnnouncementMessage{Host: host, Port: port})
		})
	}
	return g.Wait()
}

// ConnectCoordinator dials host:port and records the connection as the
// coordinator link, sending an initial ClientMessage.
func (m *Manager) ConnectCoordinator(ctx context.Context, host string, port uint16) (*Conn, error) {
	d := net.Dialer{}
	raw, err := d.DialContext(ctx, "tcp", fmt.Sprintf("%s:%d", host, port))
	if err != nil {
		return nil, fmt.Errorf("peer: connect coordinator %s:%d: %w", host, port, err)
	}
	c := &Conn{Conn: raw}
	if err := c.Send(protocol.TypeClient, protocol.ClientMessage{}); err != nil {
		c.Close()
		return nil, err
	}

	m.mu.Lock()
	m.coordinator = c
	m.mu.Unlock()

	go m.readLoop(c)
	return c, nil
}

// Coordinator returns the current coordinator connection, or nil.
func (m *Manager) Coordinator() *Conn {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.coordinator
}

// DialPeer opens a direct connection to r, used to send a JobRequestMessage.
func (m *Manager) DialPeer(ctx context.Context, r Remote, timeout time.Duration) (*Conn, error) {
	d := net.Dialer{Timeout: timeout}
	raw, err := d.DialContext(ctx, "tcp", fmt.Sprintf("%s:%d", r.Host, r.Port))
	if err != nil {
		return nil, fmt.Errorf("peer: dial %s:%d: %w", r.Host, r.Port, err)
	}
	c := &Conn{Conn: raw}
	go m.readLoop(c)
	return c, nil
}

// Close closes the listener and any coordinator connection.
func (m *Manager) Close() error {
	m.mu.Lock()
	coord := m.coordinator
	m.mu.Unlock()
	if coord != nil {
		coord.Close()
	}
	return m.listener.Close()
}
