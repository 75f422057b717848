package rtags

import (
	"sync/atomic"
	"time"
)

// JobID is a process-wide monotonically increasing job identifier.
type JobID uint64

var nextJobID uint64

// NextJobID allocates the next globally unique JobID for this process.
func NextJobID() JobID {
	return JobID(atomic.AddUint64(&nextJobID, 1))
}

// AdvanceJobIDPast raises the JobID counter so subsequent NextJobID calls
// exceed id, if it doesn't already. Used by restart recovery, which
// re-assigns a restored job its pre-restart ID: without this, the fresh
// process's counter starting back at zero could hand out an ID that
// collides with one still live from before the restart.
func AdvanceJobIDPast(id JobID) {
	for {
		cur := atomic.LoadUint64(&nextJobID)
		if cur >= uint64(id) {
			return
		}
		if atomic.CompareAndSwapUint64(&nextJobID, cur, uint64(id)) {
			return
		}
	}
}

// JobState is the coarse lifecycle stage of an IndexerJob, tracked alongside
// the finer-grained Flag bitmask on the wrapped Unit. The two are kept in
// sync by internal/scheduler: State is what the pending queue and processing
// table key off of, Flag is what gets serialized to peers and to the WAL.
type JobState int

const (
	StateQueued JobState = iota
	StatePreprocessing
	StateReady
	StateDispatchedLocal
	StateDispatchedRemote
	StateCompleteLocal
	StateCompleteRemote
	StateAborted
	StateCrashed
)

func (s JobState) String() string {
	switch s {
	case StateQueued:
		return "Queued"
	case StatePreprocessing:
		return "Preprocessing"
	case StateReady:
		return "Ready"
	case StateDispatchedLocal:
		return "DispatchedLocal"
	case StateDispatchedRemote:
		return "DispatchedRemote"
	case StateCompleteLocal:
		return "CompleteLocal"
	case StateCompleteRemote:
		return "CompleteRemote"
	case StateAborted:
		return "Aborted"
	case StateCrashed:
		return "Crashed"
	default:
		return "Unknown"
	}
}

// IndexerJob is a scheduled attempt to index a Unit. A Unit may be wrapped by
// more than one live IndexerJob at once (the same Unit running locally and on
// a peer simultaneously); each IndexerJob has its own id and its own State,
// but they share the Unit and therefore its Flag bitmask.
type IndexerJob struct {
	ID      JobID
	Unit    *Unit
	Project string // project-root path
	State   JobState

	Destination string // peer host if shipped out; empty if local
	Port        uint16

	// Visited is this job's own contribution to the shared Unit's visited
	// set, kept separately so a losing duplicate's partial visits never
	// pollute the winning result.
	Visited map[string]struct{}

	// BlockedFiles maps file path to the reason a peer reported it as
	// blocked; remote-reply bookkeeping only.
	BlockedFiles map[string]string

	StartedAt time.Time

	CrashCount int
}

// NewIndexerJob creates a Queued job wrapping unit for project.
func NewIndexerJob(project string, unit *Unit) *IndexerJob {
	return &IndexerJob{
		ID:           NextJobID(),
		Unit:         unit,
		Project:      project,
		State:        StateQueued,
		Visited:      make(map[string]struct{}),
		BlockedFiles: make(map[string]string),
	}
}

// IsComplete reports whether the job has reached a terminal winning state.
func (j *IndexerJob) IsComplete() bool {
	return j.Unit.Flags.Any(CompleteMask)
}

// IsTerminal reports whether the job can no longer transition: it has
// completed, crashed past retry, or been aborted.
func (j *IndexerJob) IsTerminal() bool {
	return j.IsComplete() || j.State == StateAborted
}

// Abort marks the job Aborted. Subsequent messages referencing this job's ID
// are bookkeeping-only per the reconciler's drop-silently rule.
func (j *IndexerJob) Abort() {
	j.State = StateAborted
	j.Unit.Flags = j.Unit.Flags.Set(Aborted)
}
