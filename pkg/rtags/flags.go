package rtags

// Flag is the IndexerJob status bitmask. Several bits are non-exclusive:
// a job may be RunningLocal and Remote at the same time (duplicate-dispatch
// by design), and exactly one of CompleteLocal/CompleteRemote may ever be
// set for a given job.
type Flag uint32

const (
	None Flag = 0

	// Dirty and Compile describe the job's origin and are mutually exclusive
	// within TypeMask.
	Dirty   Flag = 1 << 0
	Compile Flag = 1 << 1

	FromRemote           Flag = 1 << 2 // running here on behalf of a peer
	Remote               Flag = 1 << 3 // shipped out to a peer, still tracked locally
	Rescheduled          Flag = 1 << 4 // already returned to the pending queue once
	RunningLocal         Flag = 1 << 5 // a local worker subprocess is executing
	Crashed              Flag = 1 << 6 // the subprocess exited nonzero or wrote to stderr
	Aborted              Flag = 1 << 7 // explicitly abandoned, results are discarded
	CompleteLocal        Flag = 1 << 8 // a local result was accepted
	CompleteRemote       Flag = 1 << 9 // a remote result was accepted
	PreprocessCompressed Flag = 1 << 10 // unit.Preprocessed bytes are compressed
	HighPriority         Flag = 1 << 11 // advisory: bypass ordering fairness
)

// TypeMask isolates the Dirty/Compile origin bits.
const TypeMask = Dirty | Compile

// CompleteMask isolates the terminal-winning completion bits.
const CompleteMask = CompleteLocal | CompleteRemote

// Has reports whether all bits in want are set in f.
func (f Flag) Has(want Flag) bool { return f&want == want }

// Any reports whether any bit in want is set in f.
func (f Flag) Any(want Flag) bool { return f&want != 0 }

// Set returns f with the given bits set.
func (f Flag) Set(bits Flag) Flag { return f | bits }

// Clear returns f with the given bits cleared.
func (f Flag) Clear(bits Flag) Flag { return f &^ bits }

var flagNames = []struct {
	bit  Flag
	name string
}{
	{Dirty, "Dirty"},
	{Compile, "Compile"},
	{FromRemote, "FromRemote"},
	{Remote, "Remote"},
	{Rescheduled, "Rescheduled"},
	{RunningLocal, "RunningLocal"},
	{Crashed, "Crashed"},
	{Aborted, "Aborted"},
	{CompleteLocal, "CompleteLocal"},
	{CompleteRemote, "CompleteRemote"},
	{PreprocessCompressed, "PreprocessCompressed"},
	{HighPriority, "HighPriority"},
}

// DumpFlags renders a Flag bitmask as a pipe-joined list of set bit names,
// for logging and diagnostics.
func DumpFlags(f Flag) string {
	if f == None {
		return "None"
	}
	out := ""
	for _, fn := range flagNames {
		if f.Has(fn.bit) {
			if out != "" {
				out += "|"
			}
			out += fn.name
		}
	}
	if out == "" {
		return "Unknown"
	}
	return out
}
