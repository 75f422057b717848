package rtags

import "time"

// Diagnostic is a single note/warning/error produced while indexing a Unit.
type Diagnostic struct {
	Type     DiagnosticType
	Text     string
	Location string
}

// DiagnosticType mirrors the extractor's note/error/warning classification.
type DiagnosticType uint8

const (
	DiagnosticNote DiagnosticType = iota
	DiagnosticError
	DiagnosticWarning
)

// Unit is a translation-unit work item: a source file, its compiler command
// line, and (once preprocessed) the self-contained preprocessor output that
// the extractor actually parses. A Unit is created once per accepted compile
// command and is shared by every IndexerJob that wraps it (local, remote, or
// both at once under duplicate-dispatch).
type Unit struct {
	Source       string // compiler command line, verbatim
	SourceFile   string // absolute path to the translation unit's source file
	CompilerHash string // identity hash of the compiler used, for cache keys

	Flags Flag

	CreatedAt time.Time

	Preprocessed          []byte // preprocessor output; possibly compressed
	PreprocessDurationMS  int64

	// Visited is the set of file paths this Unit's extraction has reported
	// visiting via the visit-file handshake (internal/localworker).
	Visited map[string]struct{}

	// Diagnostics accumulates notes/warnings/errors from the most recent
	// extraction attempt of this Unit.
	Diagnostics []Diagnostic
}

// NewUnit creates a Unit from a compile command's source path and full
// command line. CompilerHash is left for the caller to fill in once the
// compiler identity is known.
func NewUnit(sourceFile, source string) *Unit {
	return &Unit{
		Source:     source,
		SourceFile: sourceFile,
		CreatedAt:  time.Now(),
		Visited:    make(map[string]struct{}),
	}
}

// MarkVisited records that path contributed to this Unit's most recent
// extraction.
func (u *Unit) MarkVisited(path string) {
	u.Visited[path] = struct{}{}
}
