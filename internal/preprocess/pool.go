// Package preprocess implements the bounded worker pool that turns raw
// translation units into preprocessed ones (spec §4.3). It follows the
// teacher's worker.Pool shape (fixed goroutines draining a task channel,
// results returned on a result channel) but bounds concurrency with a
// golang.org/x/sync/semaphore instead of a fixed goroutine count, so the
// ceiling in §4.3 ("max_pending_preprocess_size - (busy+backlog+pending)")
// can be enforced by the caller without the pool itself tracking it.
package preprocess

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/rosrad/rtagsd/pkg/rtags"
)

// ErrPoolClosed is returned by Submit once Stop has been called.
var ErrPoolClosed = errors.New("preprocess: pool is closed")

// Job is a single preprocess request.
type Job struct {
	Unit    *rtags.Unit
	Command []string // preprocess-only compiler invocation, e.g. ["cc", "-E", ...]
}

// Result is the outcome of running a Job.
type Result struct {
	Unit     *rtags.Unit
	Duration time.Duration
	Err      error
}

// Pool runs up to size preprocess jobs concurrently. Pending jobs beyond
// that bound simply block on Submit, which is how §4.3's FIFO-with-ceiling
// behavior is achieved: the scheduler only calls Submit as many times as
// the ceiling allows per work() pass.
type Pool struct {
	sem      *semaphore.Weighted
	resultCh chan Result
	logger   *slog.Logger

	busy    int64 // atomic: jobs currently running, for the §4.6 free-slot formula
	mu      sync.Mutex
	closed  bool
	wg      sync.WaitGroup
	closeCh chan struct{}
}

// NewPool creates a Pool that runs up to size jobs concurrently, buffering
// up to bufferSize results.
func NewPool(size, bufferSize int, logger *slog.Logger) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		sem:      semaphore.NewWeighted(int64(size)),
		resultCh: make(chan Result, bufferSize),
		logger:   logger,
		closeCh:  make(chan struct{}),
	}
}

// Submit runs job's preprocess command once a slot is free, asynchronously.
// It returns immediately; the outcome arrives on Results().
func (p *Pool) Submit(ctx context.Context, job Job) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPoolClosed
	}
	p.mu.Unlock()

	if err := p.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("preprocess: acquire slot: %w", err)
	}

	p.wg.Add(1)
	atomic.AddInt64(&p.busy, 1)
	go func() {
		defer p.wg.Done()
		defer p.sem.Release(1)
		defer atomic.AddInt64(&p.busy, -1)

		start := time.Now()
		out, err := run(ctx, job.Command)
		res := Result{Unit: job.Unit, Duration: time.Since(start)}
		if err != nil {
			res.Err = fmt.Errorf("preprocess: %s: %w", job.Unit.SourceFile, err)
			p.logger.Warn("preprocess job failed", "source", job.Unit.SourceFile, "error", err)
		} else {
			job.Unit.Preprocessed = out
			job.Unit.PreprocessDurationMS = res.Duration.Milliseconds()
		}

		select {
		case p.resultCh <- res:
		case <-p.closeCh:
		}
	}()
	return nil
}

// Results returns the channel of completed preprocess jobs.
func (p *Pool) Results() <-chan Result {
	return p.resultCh
}

// BusyCount reports the number of preprocess jobs currently running,
// the busy_preprocess term of §4.6 step 2's free-slot formula.
func (p *Pool) BusyCount() int {
	return int(atomic.LoadInt64(&p.busy))
}

// Stop waits for in-flight jobs to finish and closes the result channel.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	close(p.closeCh)
	p.wg.Wait()
	close(p.resultCh)
}

func run(ctx context.Context, command []string) ([]byte, error) {
	if len(command) == 0 {
		return nil, fmt.Errorf("empty preprocess command")
	}
	cmd := exec.CommandContext(ctx, command[0], command[1:]...)
	return cmd.Output()
}
