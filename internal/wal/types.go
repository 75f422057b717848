package wal

import "github.com/rosrad/rtagsd/pkg/rtags"

// EventType enumerates the durable state transitions of the IndexerJob
// state machine (spec §4.2) that must survive a daemon restart.
type EventType string

const (
	EventQueued          EventType = "QUEUED"
	EventPreprocessing    EventType = "PREPROCESSING"
	EventReady            EventType = "READY"
	EventDispatchLocal    EventType = "DISPATCH_LOCAL"
	EventDispatchRemote   EventType = "DISPATCH_REMOTE"
	EventCompleteLocal    EventType = "COMPLETE_LOCAL"
	EventCompleteRemote   EventType = "COMPLETE_REMOTE"
	EventCrashed          EventType = "CRASHED"
	EventRescheduled      EventType = "RESCHEDULED"
	EventAborted          EventType = "ABORTED"
)

// Event is a single WAL record. It carries only enough information to
// replay the corresponding state-machine transition; the bulk Unit payload
// (preprocessed bytes, symbol data) is never written to the WAL — only to
// the snapshot and the symbol store, respectively.
type Event struct {
	Seq       uint64      `json:"seq"`
	Type      EventType   `json:"type"`
	JobID     rtags.JobID `json:"job_id"`
	Project   string      `json:"project"`
	Timestamp int64       `json:"timestamp"`
	Checksum  uint32      `json:"checksum"`
}

// EventHandler applies a replayed Event to in-memory state during recovery.
type EventHandler func(event Event) error
