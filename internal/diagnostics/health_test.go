package diagnostics

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHealthOKWhenIdle(t *testing.T) {
	h := &statsHandler{deps: Deps{JobCap: 4}}

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	h.health(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := rec.Body.String(); got == "" {
		t.Fatal("expected a JSON body")
	}
}

func TestSnapshotHonorsNilDeps(t *testing.T) {
	h := &statsHandler{}
	s := h.snapshot()
	if s.PendingJobs != 0 || s.InFlightJobs != 0 || s.ActiveLocal != 0 || s.KnownPeers != 0 {
		t.Fatalf("expected zero-value snapshot with nil deps, got %+v", s)
	}
}
