package diagnostics

import (
	"encoding/json"
	"net/http"
)

type healthResponse struct {
	Status        string `json:"status"`
	PendingJobs   int    `json:"pending_jobs"`
	InFlightJobs  int    `json:"in_flight_jobs"`
	ActiveLocal   int    `json:"active_local_workers"`
	LocalCapacity int    `json:"local_worker_capacity"`
	Saturated     bool   `json:"saturated"`
}

// health serves GET /healthz: always 200 while the process is up, with a
// "degraded" status when every local worker slot is busy and the pending
// queue keeps growing past capacity, so a load balancer can deprioritize
// (not kill) an overloaded daemon rather than restart it needlessly.
func (h *statsHandler) health(w http.ResponseWriter, r *http.Request) {
	s := h.snapshot()
	resp := healthResponse{
		Status:        "ok",
		PendingJobs:   s.PendingJobs,
		InFlightJobs:  s.InFlightJobs,
		ActiveLocal:   s.ActiveLocal,
		LocalCapacity: s.LocalCapacity,
	}
	if s.LocalCapacity > 0 && s.ActiveLocal >= s.LocalCapacity && s.PendingJobs > s.LocalCapacity*4 {
		resp.Status = "degraded"
		resp.Saturated = true
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(resp)
}
