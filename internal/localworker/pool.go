// Package localworker implements the local worker-process pool (spec
// §4.4): for each locally-dispatched job it forks the extractor helper
// binary, streams the Unit to its stdin, answers the helper's visit-file
// handshake, and collects the final IndexerMessage (or crash) the helper
// reports back over a Unix socket connection — the same two-connection
// shape (stdin handoff + a socket back to the daemon) the original
// rtags daemon uses for rp.cpp.
package localworker

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/rosrad/rtagsd/pkg/protocol"
	"github.com/rosrad/rtagsd/pkg/rtags"
)

// VisitFileFunc answers the per-include handshake: should the worker
// parse path for job jobID? The daemon answers yes iff the file is not
// suspended, is new for this job, and the job is still valid.
type VisitFileFunc func(jobID rtags.JobID, path string) bool

// FinishedFunc is invoked once per completed or crashed job, on its own
// goroutine; the scheduler/reconciler do their own locking.
type FinishedFunc func(jobID rtags.JobID, msg *protocol.IndexerMessage, crashed bool, stderr string)

// Pool supervises locally-dispatched IndexerJob subprocesses.
type Pool struct {
	helperPath string
	socketPath string
	logger     *slog.Logger

	onVisitFile VisitFileFunc
	onFinished  FinishedFunc

	listener net.Listener

	mu     sync.Mutex
	active map[rtags.JobID]*exec.Cmd
	wg     sync.WaitGroup
}

// New creates a Pool that spawns helperPath and listens for callbacks on
// a Unix socket at socketPath.
func New(helperPath, socketPath string, onVisitFile VisitFileFunc, onFinished FinishedFunc, logger *slog.Logger) (*Pool, error) {
	if logger == nil {
		logger = slog.Default()
	}
	os.Remove(socketPath)
	ln, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("localworker: listen %s: %w", socketPath, err)
	}

	p := &Pool{
		helperPath:  helperPath,
		socketPath:  socketPath,
		logger:      logger,
		onVisitFile: onVisitFile,
		onFinished:  onFinished,
		listener:    ln,
		active:      make(map[rtags.JobID]*exec.Cmd),
	}

	p.wg.Add(1)
	go p.acceptLoop()
	return p, nil
}

func (p *Pool) acceptLoop() {
	defer p.wg.Done()
	for {
		conn, err := p.listener.Accept()
		if err != nil {
			return // listener closed during Close()
		}
		go p.handleConn(conn)
	}
}

func (p *Pool) handleConn(conn net.Conn) {
	defer conn.Close()

	frame, err := protocol.ReadFrame(conn)
	if err != nil {
		return
	}

	switch frame.Type {
	case protocol.TypeVisitFile:
		var req protocol.VisitFileMessage
		if err := protocol.Decode(frame, &req); err != nil {
			return
		}
		visit := p.onVisitFile(req.JobID, req.FilePath)
		reply, err := protocol.Encode(protocol.TypeVisitFileResponse, protocol.VisitFileResponseMessage{Visit: visit})
		if err != nil {
			return
		}
		protocol.WriteFrame(conn, reply)

	case protocol.TypeIndexer:
		var msg protocol.IndexerMessage
		if err := protocol.Decode(frame, &msg); err != nil {
			return
		}
		p.onFinished(msg.JobID, &msg, false, "")

	default:
		p.logger.Warn("localworker: unexpected message on callback socket", "type", frame.Type)
	}
}

// Launch forks the helper binary for job, streaming its Unit over stdin.
// onLocalJobFinished is called asynchronously once the process exits or
// reports a result, implementing state-machine transitions 5/7 of §4.2.
func (p *Pool) Launch(ctx context.Context, job *rtags.IndexerJob) error {
	cmd := exec.CommandContext(ctx, p.helperPath,
		"--callback-socket", p.socketPath,
		"--job-id", fmt.Sprint(uint64(job.ID)),
		"--project", job.Project,
	)
	cmd.Env = append(os.Environ(), "LIBCLANG_NOTHREADS=1")

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("localworker: stdin pipe: %w", err)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("localworker: start helper: %w", err)
	}

	p.mu.Lock()
	p.active[job.ID] = cmd
	p.mu.Unlock()

	payload := protocol.WireUnit{
		Source:       job.Unit.Source,
		SourceFile:   job.Unit.SourceFile,
		CompilerHash: job.Unit.CompilerHash,
		Flags:        job.Unit.Flags,
		Preprocessed: job.Unit.Preprocessed,
		ProjectRoot:  job.Project,
	}
	if err := gob.NewEncoder(stdin).Encode(payload); err != nil {
		stdin.Close()
		return fmt.Errorf("localworker: write unit: %w", err)
	}
	stdin.Close()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		start := time.Now()
		waitErr := cmd.Wait()

		p.mu.Lock()
		delete(p.active, job.ID)
		p.mu.Unlock()

		crashed := waitErr != nil || stderr.Len() > 0
		if crashed {
			p.logger.Warn("localworker: job crashed",
				"jobID", job.ID, "duration", time.Since(start),
				"error", waitErr, "stderr", stderr.String())
			p.onFinished(job.ID, nil, true, stderr.String())
		}
	}()
	return nil
}

// Kill terminates a live subprocess for jobID, used by Abort.
func (p *Pool) Kill(jobID rtags.JobID) {
	p.mu.Lock()
	cmd, ok := p.active[jobID]
	p.mu.Unlock()
	if ok && cmd.Process != nil {
		cmd.Process.Kill()
	}
}

// ActiveCount returns the number of subprocesses currently running.
func (p *Pool) ActiveCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.active)
}

// Close stops accepting callbacks and removes the socket file.
func (p *Pool) Close() error {
	err := p.listener.Close()
	p.wg.Wait()
	os.Remove(p.socketPath)
	return err
}
