package diagnostics

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// statsSnapshot is one §6 /stats frame: a point-in-time view of the
// scheduler's queue depth, worker saturation, and known-peer count.
type statsSnapshot struct {
	Timestamp      time.Time `json:"timestamp"`
	PendingJobs    int       `json:"pending_jobs"`
	InFlightJobs   int       `json:"in_flight_jobs"`
	ActiveLocal    int       `json:"active_local_workers"`
	LocalCapacity  int       `json:"local_worker_capacity"`
	KnownPeers     int       `json:"known_peers"`
	WALSequence    uint64    `json:"wal_sequence"`
}

type statsHandler struct {
	deps Deps
}

func (h *statsHandler) snapshot() statsSnapshot {
	s := statsSnapshot{
		Timestamp:     time.Now(),
		LocalCapacity: h.deps.JobCap,
	}
	if h.deps.Sched != nil {
		s.PendingJobs = h.deps.Sched.PendingCount()
		s.InFlightJobs = h.deps.Sched.ProcessingCount()
	}
	if h.deps.Local != nil {
		s.ActiveLocal = h.deps.Local.ActiveCount()
	}
	if h.deps.Remotes != nil {
		s.KnownPeers = h.deps.Remotes.Len()
	}
	if h.deps.WAL != nil {
		s.WALSequence = h.deps.WAL.LastSeq()
	}
	return s
}

// stream serves GET /stats as a Server-Sent Events feed: one JSON frame
// on connect, then one every second until the client disconnects.
func (h *statsHandler) stream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	if err := h.writeFrame(w); err != nil {
		return
	}
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if err := h.writeFrame(w); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (h *statsHandler) writeFrame(w http.ResponseWriter) error {
	data, err := json.Marshal(h.snapshot())
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}
