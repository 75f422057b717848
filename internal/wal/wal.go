// Package wal implements the durable write-ahead log backing the
// IndexerJob state machine (spec §4.10, an expansion grounded in the
// teacher's internal/storage/wal): every durable transition is appended
// before it is applied in memory, in batches flushed on a size/time
// threshold or on demand, each record carrying a CRC32 checksum.
package wal

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rosrad/rtagsd/pkg/rtags"
)

// WAL is an append-only, checksummed log of Events.
type WAL struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
	path string
	seq  uint64

	buffer        []Event
	bufferSize    int
	flushInterval time.Duration
	lastFlush     time.Time
}

// Open creates or reopens the WAL file at path, continuing its sequence
// number from the last record on disk.
func Open(path string, bufferSize int) (*WAL, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("wal: open %s: %w", path, err)
	}

	w := &WAL{
		file:          f,
		enc:           json.NewEncoder(f),
		path:          path,
		buffer:        make([]Event, 0, bufferSize),
		bufferSize:    bufferSize,
		flushInterval: time.Second,
		lastFlush:     time.Now(),
	}

	if last, err := lastEvent(path); err == nil && last != nil {
		w.seq = last.Seq
	}
	return w, nil
}

// Append records a transition for jobID/project, flushing immediately if
// force is set, the buffer is full, or the flush interval has elapsed.
func (w *WAL) Append(t EventType, jobID rtags.JobID, project string, force bool) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.seq++
	ev := Event{
		Seq:       w.seq,
		Type:      t,
		JobID:     jobID,
		Project:   project,
		Timestamp: time.Now().UnixMilli(),
	}
	ev.Checksum = CalculateChecksum(t, uint64(jobID), project, w.seq)
	w.buffer = append(w.buffer, ev)

	if force || len(w.buffer) >= w.bufferSize || time.Since(w.lastFlush) > w.flushInterval {
		return w.flushLocked()
	}
	return nil
}

func (w *WAL) flushLocked() error {
	for _, ev := range w.buffer {
		if err := w.enc.Encode(ev); err != nil {
			return fmt.Errorf("wal: encode seq=%d: %w", ev.Seq, err)
		}
	}
	w.buffer = w.buffer[:0]
	w.lastFlush = time.Now()
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("%w: %v", ErrSyncFailed, err)
	}
	return nil
}

// Flush forces any buffered records to disk.
func (w *WAL) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flushLocked()
}

// Replay reads every record after afterSeq from path and calls handler
// with each, in order, verifying its checksum first. A checksum mismatch
// is fatal per spec §7 ("continuing with a gap in the durable log is
// worse than refusing to start").
func Replay(path string, afterSeq uint64, handler EventHandler) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("wal: open for replay: %w", err)
	}
	defer f.Close()

	dec := json.NewDecoder(f)
	for dec.More() {
		var ev Event
		if err := dec.Decode(&ev); err != nil {
			return fmt.Errorf("%w: %v", ErrCorruptedWAL, err)
		}
		if !VerifyChecksum(ev) {
			return fmt.Errorf("%w: seq=%d", ErrChecksumMismatch, ev.Seq)
		}
		if ev.Seq <= afterSeq {
			continue
		}
		if err := handler(ev); err != nil {
			return fmt.Errorf("wal: replay seq=%d: %w", ev.Seq, err)
		}
	}
	return nil
}

// Rotate flushes, closes, renames the current file aside, and starts a
// fresh log with seq reset to 0 — called after a snapshot captures the
// state the rotated-away records described.
func (w *WAL) Rotate() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.flushLocked(); err != nil {
		return err
	}
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("wal: close before rotate: %w", err)
	}

	backup := w.path + "." + time.Now().Format("20060102_150405")
	if err := os.Rename(w.path, backup); err != nil {
		return fmt.Errorf("wal: rotate rename: %w", err)
	}

	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("wal: reopen after rotate: %w", err)
	}
	w.file = f
	w.enc = json.NewEncoder(f)
	w.seq = 0
	w.buffer = w.buffer[:0]
	return nil
}

// Close flushes and closes the underlying file. The WAL must not be used
// afterward.
func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.flushLocked(); err != nil {
		return err
	}
	return w.file.Close()
}

// LastSeq returns the most recently assigned sequence number.
func (w *WAL) LastSeq() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.seq
}

func lastEvent(path string) (*Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var last *Event
	dec := json.NewDecoder(f)
	for dec.More() {
		var ev Event
		if err := dec.Decode(&ev); err != nil {
			break
		}
		e := ev
		last = &e
	}
	return last, nil
}
