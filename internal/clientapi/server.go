// Package clientapi serves the local Unix domain socket that cmd/rc
// talks to (spec §6): compile-command submission, query dispatch, and a
// status check, each framed with the same length-prefixed gob Frame the
// peer transport uses, just with the client-facing message set in
// pkg/protocol/client.go.
package clientapi

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"

	"github.com/rosrad/rtagsd/internal/project"
	"github.com/rosrad/rtagsd/internal/query"
	"github.com/rosrad/rtagsd/internal/scheduler"
	"github.com/rosrad/rtagsd/internal/storage"
	"github.com/rosrad/rtagsd/pkg/protocol"
	"github.com/rosrad/rtagsd/pkg/rtags"
)

// Server accepts client connections on a Unix domain socket and routes
// each request to the project registry, the scheduler, or the query
// router.
type Server struct {
	socketPath string
	registry   *project.Registry
	sched      *scheduler.Scheduler
	router     *query.Router
	logger     *slog.Logger

	listener net.Listener
}

// New creates a Server bound to socketPath, removing any stale socket
// file left behind by a previous run.
func New(socketPath string, registry *project.Registry, sched *scheduler.Scheduler, router *query.Router, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	os.Remove(socketPath)
	ln, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("clientapi: listen %s: %w", socketPath, err)
	}
	return &Server{
		socketPath: socketPath,
		registry:   registry,
		sched:      sched,
		router:     router,
		logger:     logger,
		listener:   ln,
	}, nil
}

// Serve accepts connections until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.listener.Close()
	}()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return fmt.Errorf("clientapi: accept: %w", err)
			}
		}
		go s.handle(ctx, conn)
	}
}

// Close removes the socket file.
func (s *Server) Close() error {
	err := s.listener.Close()
	os.Remove(s.socketPath)
	return err
}

func (s *Server) handle(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	frame, err := protocol.ReadFrame(conn)
	if err != nil {
		return
	}

	var resp protocol.ClientResponseMessage
	switch frame.Type {
	case protocol.TypeClientCompile:
		var msg protocol.ClientCompileMessage
		if err := protocol.Decode(frame, &msg); err != nil {
			resp.Error = err.Error()
			break
		}
		resp = s.handleCompile(ctx, msg)

	case protocol.TypeClientQuery:
		var msg protocol.ClientQueryMessage
		if err := protocol.Decode(frame, &msg); err != nil {
			resp.Error = err.Error()
			break
		}
		resp = s.handleQuery(ctx, msg)

	case protocol.TypeClientStatus:
		resp.Pending = s.sched.PendingCount()
		resp.InFlight = s.sched.ProcessingCount()

	case protocol.TypeClientProject:
		var msg protocol.ClientProjectMessage
		if err := protocol.Decode(frame, &msg); err != nil {
			resp.Error = err.Error()
			break
		}
		resp = s.handleProject(msg)

	default:
		resp.Error = fmt.Sprintf("clientapi: unknown request type %d", frame.Type)
	}

	out, err := protocol.Encode(protocol.TypeClientResponse, resp)
	if err != nil {
		s.logger.Error("clientapi: encode response failed", "error", err)
		return
	}
	if err := protocol.WriteFrame(conn, out); err != nil {
		s.logger.Debug("clientapi: write response failed", "error", err)
	}
}

// handleCompile implements §4.1's lazy project creation and the §8
// idempotence property: a fingerprint already known to the project is
// dropped before preprocessing rather than re-queued.
func (s *Server) handleCompile(ctx context.Context, msg protocol.ClientCompileMessage) protocol.ClientResponseMessage {
	proj := s.registry.Load(msg.ProjectRoot)
	proj.Touch()
	fingerprint := fmt.Sprintf("%s\x00%s", msg.SourceFile, msg.Source)
	if proj.HasSource(fingerprint) {
		return protocol.ClientResponseMessage{}
	}
	proj.AddSource(project.Source{Fingerprint: fingerprint, SourceFile: msg.SourceFile, Args: []string{msg.Source}})

	unit := rtags.NewUnit(msg.SourceFile, msg.Source)
	unit.CompilerHash = msg.CompilerHash
	if msg.Dirty {
		unit.Flags = unit.Flags.Set(rtags.Dirty)
	} else {
		unit.Flags = unit.Flags.Set(rtags.Compile)
	}

	preprocessCmd := []string{"/bin/sh", "-c", msg.Source + " -E"}
	if _, err := s.sched.Submit(ctx, proj, unit, preprocessCmd); err != nil {
		return protocol.ClientResponseMessage{Error: err.Error()}
	}
	return protocol.ClientResponseMessage{}
}

// handleProject implements cmd/rc's "project add|remove|list|reload"
// surface (spec §12) over the registry's existing operations.
func (s *Server) handleProject(msg protocol.ClientProjectMessage) protocol.ClientResponseMessage {
	switch msg.Op {
	case "add":
		s.registry.Load(msg.Root)
		return protocol.ClientResponseMessage{}

	case "remove":
		mode := project.Unload
		if msg.Delete {
			mode = project.Delete
		}
		removed := s.registry.Remove(func(root string) bool { return root == msg.Root }, mode)
		return protocol.ClientResponseMessage{Count: len(removed)}

	case "list":
		var roots []string
		for _, p := range s.registry.All() {
			roots = append(roots, p.Root)
		}
		return protocol.ClientResponseMessage{Projects: roots}

	case "reload":
		count, err := s.registry.ReloadKnown()
		if err != nil {
			return protocol.ClientResponseMessage{Error: err.Error()}
		}
		return protocol.ClientResponseMessage{Count: count}

	default:
		return protocol.ClientResponseMessage{Error: fmt.Sprintf("clientapi: unknown project op %q", msg.Op)}
	}
}

func (s *Server) handleQuery(ctx context.Context, msg protocol.ClientQueryMessage) protocol.ClientResponseMessage {
	switch msg.Kind {
	case "follow":
		hits, err := s.router.FollowSymbol(ctx, msg.Path, msg.Line, msg.Col)
		return wireHits(hits, err)
	case "references":
		hits, err := s.router.FindReferences(ctx, msg.Path, msg.Name)
		return wireHits(hits, err)
	case "list":
		hits, err := s.router.ListSymbols(ctx, msg.Path, msg.Prefix, msg.Limit)
		return wireHits(hits, err)
	case "complete":
		hits, err := s.router.Complete(ctx, msg.Path, msg.Prefix, msg.Line, msg.Col)
		return wireHits(hits, err)
	case "rename":
		previews, err := s.router.RenamePreview(ctx, msg.Path, msg.Name, msg.NewName)
		if err != nil {
			return protocol.ClientResponseMessage{Error: err.Error()}
		}
		diffs := make([]protocol.RenameDiff, len(previews))
		for i, p := range previews {
			diffs[i] = protocol.RenameDiff{File: p.File, Diff: p.Diff}
		}
		return protocol.ClientResponseMessage{Diffs: diffs}
	default:
		return protocol.ClientResponseMessage{Error: fmt.Sprintf("clientapi: unknown query kind %q", msg.Kind)}
	}
}

func wireHits(hits []storage.SymbolHit, err error) protocol.ClientResponseMessage {
	if err != nil {
		return protocol.ClientResponseMessage{Error: err.Error()}
	}
	out := make([]protocol.SymbolHit, len(hits))
	for i, h := range hits {
		out[i] = protocol.SymbolHit{Name: h.Name, Kind: h.Kind, File: h.File, Line: h.Line, Col: h.Col}
	}
	return protocol.ClientResponseMessage{Hits: out}
}
