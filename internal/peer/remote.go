package peer

import (
	"strconv"
	"sync"
)

// Remote is a known peer daemon, addressable for job requests.
type Remote struct {
	Host string
	Port uint16
}

func (r Remote) key() string {
	return r.Host + ":" + strconv.Itoa(int(r.Port))
}

// Key exposes the round-robin list's identity string so callers outside
// this package (the scheduler's pending-job-request table) can key their
// own per-remote bookkeeping the same way.
func (r Remote) Key() string {
	return r.key()
}

// RemoteList is a round-robin rotation of known peers, replacing the
// teacher-adjacent original's doubly-linked first_remote/last_remote list
// with a slice plus a rotating pop-from-head/append-to-tail pattern, per
// SPEC_FULL.md §9.
type RemoteList struct {
	mu    sync.Mutex
	order []Remote
}

// Add inserts r at the tail if it isn't already known.
func (l *RemoteList) Add(r Remote) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.order {
		if e.key() == r.key() {
			return
		}
	}
	l.order = append(l.order, r)
}

// Remove drops r from the rotation, e.g. on "finished" or disconnect.
func (l *RemoteList) Remove(r Remote) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, e := range l.order {
		if e.key() == r.key() {
			l.order = append(l.order[:i], l.order[i+1:]...)
			return
		}
	}
}

// Next returns the head of the rotation and moves it to the tail, so the
// following call picks a different peer. Reports false if empty.
func (l *RemoteList) Next() (Remote, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.order) == 0 {
		return Remote{}, false
	}
	r := l.order[0]
	l.order = append(l.order[1:], r)
	return r, true
}

// Len returns the number of known remotes.
func (l *RemoteList) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.order)
}

// All returns a snapshot of the rotation, in order.
func (l *RemoteList) All() []Remote {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Remote, len(l.order))
	copy(out, l.order)
	return out
}
