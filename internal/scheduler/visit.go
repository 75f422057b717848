package scheduler

import "github.com/rosrad/rtagsd/pkg/rtags"

// VisitFile answers a local worker's per-include handshake (spec §4.4):
// parse path for jobID only if the job is still live, hasn't already
// visited path this run, and the owning project hasn't suspended path
// (e.g. because it's mid-edit in an open editor buffer).
func (s *Scheduler) VisitFile(jobID rtags.JobID, path string) bool {
	s.mu.Lock()
	job, ok := s.processing[jobID]
	s.mu.Unlock()
	if !ok || job.IsTerminal() {
		return false
	}
	if _, seen := job.Unit.Visited[path]; seen {
		return false
	}

	if s.registry != nil {
		if proj := s.registry.ByRoot(job.Project); proj != nil && proj.IsSuspended(path) {
			return false
		}
	}

	job.Unit.MarkVisited(path)
	job.Visited[path] = struct{}{}
	return true
}
