// Package protocol defines the peer-to-peer wire messages of the rtags
// indexing orchestrator (spec §4.5) and the length-prefixed gob framing used
// to exchange them.
//
// The original daemon's message set is framed on an opaque length-prefixed
// binary wire; this port keeps the message vocabulary exactly (one Go type
// per message row in §4.5) and implements the framing with encoding/gob
// rather than a hand-generated protobuf codec, since no .proto definitions
// for this wire were retrieved alongside the teacher repo.
package protocol

import "github.com/rosrad/rtagsd/pkg/rtags"

// MessageType tags the payload carried in a Frame so the receiver can decode
// into the right concrete type before dispatch.
type MessageType uint8

const (
	TypeClient MessageType = iota
	TypeClientConnected
	TypeJobAnnouncement
	TypeProxyJobAnnouncement
	TypeJobRequest
	TypeJobResponse
	TypeIndexer
	TypeVisitFile
	TypeVisitFileResponse
	TypeExit
)

// ClientMessage is sent by a peer to a coordinator immediately on connect.
type ClientMessage struct{}

// ClientConnectedMessage is broadcast by the coordinator to every other
// connected peer when a new client joins.
type ClientConnectedMessage struct {
	PeerHost string
}

// JobAnnouncementMessage advertises that host:port has announceable work.
// Sent by the coordinator to peers, or directly peer-to-peer when no
// coordinator is known.
type JobAnnouncementMessage struct {
	Host string
	Port uint16
}

// ProxyJobAnnouncementMessage asks the coordinator to relay a
// JobAnnouncementMessage on the sender's behalf, filling in the sender's
// observed address.
type ProxyJobAnnouncementMessage struct {
	Port uint16
}

// JobRequestMessage asks the receiving peer for up to NumJobs units of work.
type JobRequestMessage struct {
	NumJobs int
}

// WireUnit is the serializable projection of rtags.Unit shipped between
// peers: only the fields needed to run extraction elsewhere travel over the
// wire.
type WireUnit struct {
	Source       string
	SourceFile   string
	CompilerHash string
	Flags        rtags.Flag
	Preprocessed []byte
	// ProjectRoot is the origin daemon's project root for this unit, so a
	// FromRemote job dispatched here can still resolve its owning project
	// (the suspended-file check, notably) despite running outside that
	// project's own registry.
	ProjectRoot string
}

// JobResponseMessage answers a JobRequestMessage with as many jobs as the
// sender was willing to give up.
type JobResponseMessage struct {
	Units      []WireUnit
	TCPPort    uint16
	IsFinished bool // true once the sender's pending queue was emptied
}

// IndexerMessage carries a completed extraction result, either from a local
// worker back to the daemon, or from a remote daemon back to the job's
// origin.
type IndexerMessage struct {
	JobID       rtags.JobID
	Project     string
	Symbols     []byte // opaque IndexData payload, owned by the extractor
	Diagnostics []rtags.Diagnostic
	Visited     []string
	Success     bool
	ErrorText   string
}

// VisitFileMessage is the worker's per-include query: should I parse this
// file?
type VisitFileMessage struct {
	JobID    rtags.JobID
	FilePath string
}

// VisitFileResponseMessage answers a VisitFileMessage.
type VisitFileResponseMessage struct {
	Visit bool
}

// ExitMessage requests the receiver shut down; Forward indicates whether a
// coordinator should propagate the request to other peers.
type ExitMessage struct {
	ExitCode int
	Forward  bool
}
