package protocol

import "encoding/gob"

// The client-facing vocabulary: exchanged over the Unix domain socket
// between cmd/rc and cmd/rtagsd (spec §6, "Unix/TCP sockets"). Kept as a
// small, separate message set from the peer-to-peer vocabulary above,
// but framed identically (same length-prefixed gob Frame).

const (
	TypeClientCompile MessageType = 100 + iota
	TypeClientQuery
	TypeClientStatus
	TypeClientProject
	TypeClientResponse
)

// ClientCompileMessage submits a compile command for indexing, the
// client-facing entry point to §4.2 transition 1 (Queued).
type ClientCompileMessage struct {
	ProjectRoot  string
	SourceFile   string
	Source       string // compiler command line, verbatim
	CompilerHash string
	Dirty        bool // re-index of an already-open file vs. a fresh compile
}

// ClientQueryMessage is a client's follow-symbol / find-references /
// list-symbols / rename-preview / completion request (spec §4.9).
type ClientQueryMessage struct {
	Kind    string // "follow" | "references" | "list" | "rename" | "complete"
	Path    string
	Line    int
	Col     int
	Name    string // for "references" and "rename" (old name)
	NewName string // for "rename"
	Prefix  string // for "list" and "complete"
	Limit   int
}

// ClientStatusMessage requests the daemon's current scheduling counters
// (isIndexing-style liveness check, spec §8 scenario 1).
type ClientStatusMessage struct{}

// ClientProjectMessage manages the project registry from cmd/rc (spec
// §12's "project add|remove|list|reload"): Op selects the operation,
// Root names the project for add/remove, and Delete controls whether
// remove also drops the project's on-disk snapshot.
type ClientProjectMessage struct {
	Op     string // "add" | "remove" | "list" | "reload"
	Root   string
	Delete bool
}

// SymbolHit mirrors internal/storage.SymbolHit at the wire layer, so
// internal/storage's schema doesn't leak into the client protocol.
type SymbolHit struct {
	Name string
	Kind string
	File string
	Line int
	Col  int
}

// RenameDiff mirrors internal/query.RenamePreview at the wire layer: one
// file's unified-diff preview of a rename-symbol request.
type RenameDiff struct {
	File string
	Diff string
}

// ClientResponseMessage is the single reply shape for every client
// request: an error string (empty on success), optional symbol hits,
// optional rename-preview diffs, and optional status counters.
type ClientResponseMessage struct {
	Error string
	Hits  []SymbolHit
	Diffs []RenameDiff

	Pending  int
	InFlight int
	Peers    int

	Projects []string // for "project list"
	Count    int      // for "project remove"/"project reload"
}

func init() {
	gob.Register(ClientCompileMessage{})
	gob.Register(ClientQueryMessage{})
	gob.Register(ClientStatusMessage{})
	gob.Register(ClientProjectMessage{})
	gob.Register(ClientResponseMessage{})
}
