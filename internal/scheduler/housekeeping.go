package scheduler

import (
	"fmt"

	"github.com/robfig/cron/v3"

	"github.com/rosrad/rtagsd/internal/project"
)

// Housekeeper wraps robfig/cron/v3 (grounded on eargollo-ditto2's
// scheduler.Scheduler) to run the scheduler's two periodic background
// jobs outside the work() heartbeat: the project-inactivity unload sweep
// and WAL rotation (§13.4).
type Housekeeper struct {
	c *cron.Cron
}

// StartHousekeeping schedules unloadSpec (project-inactivity sweep; a
// no-op entry when UnloadTimer is 0) and walRotateSpec (WAL rotation)
// and starts the cron loop. Either spec may be empty to disable that job.
// The caller should Stop() the returned Housekeeper on shutdown.
func (s *Scheduler) StartHousekeeping(unloadSpec, walRotateSpec string) (*Housekeeper, error) {
	c := cron.New()

	if unloadSpec != "" {
		if _, err := c.AddFunc(unloadSpec, s.sweepInactiveProjects); err != nil {
			return nil, fmt.Errorf("scheduler: schedule unload sweep %q: %w", unloadSpec, err)
		}
	}
	if walRotateSpec != "" {
		if _, err := c.AddFunc(walRotateSpec, s.rotateWAL); err != nil {
			return nil, fmt.Errorf("scheduler: schedule wal rotation %q: %w", walRotateSpec, err)
		}
	}

	c.Start()
	return &Housekeeper{c: c}, nil
}

// Stop halts the cron loop, waiting for any in-flight job to finish.
func (h *Housekeeper) Stop() {
	if h == nil || h.c == nil {
		return
	}
	<-h.c.Stop().Done()
}

// sweepInactiveProjects unloads (§4.1 lifecycle) any Loaded project idle
// past opts.UnloadTimer. A project with UnloadTimer == 0 (the default) is
// never swept — the inactivity unload policy is opt-in.
func (s *Scheduler) sweepInactiveProjects() {
	if s.opts.UnloadTimer <= 0 {
		return
	}
	for _, p := range s.registry.All() {
		if p.State() != project.StateLoaded {
			continue
		}
		if p.IdleFor() < s.opts.UnloadTimer {
			continue
		}
		if err := s.registry.PersistSnapshot(p.Root); err != nil {
			s.logger.Error("scheduler: persist snapshot before unload failed", "root", p.Root, "error", err)
		}
		p.SetState(project.StateUnloaded)
		s.logger.Info("scheduler: unloaded inactive project", "root", p.Root, "idle", p.IdleFor())
	}
}

// rotateWAL flushes and rotates the scheduler's write-ahead log so it
// doesn't grow unbounded across a long-lived daemon process.
func (s *Scheduler) rotateWAL() {
	if err := s.wal.Rotate(); err != nil {
		s.logger.Error("scheduler: wal rotation failed", "error", err)
		return
	}
	s.logger.Debug("scheduler: wal rotated")
}
