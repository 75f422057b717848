package project

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// RemoveMode selects whether Remove also deletes the on-disk snapshot.
type RemoveMode int

const (
	Unload RemoveMode = iota
	Delete
)

// Registry maps project root -> Project and tracks the currently
// selected project, matching spec §4.1's public operations.
type Registry struct {
	mu sync.RWMutex

	dataDir string
	logger  *slog.Logger

	projects map[string]*Project
	roots    []string // registration order, so ProjectFor's "first match wins" is deterministic
	current  string
}

// NewRegistry creates an empty Registry backed by dataDir for persisted
// snapshots and the .currentProject sentinel.
func NewRegistry(dataDir string, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		dataDir:  dataDir,
		logger:   logger,
		projects: make(map[string]*Project),
	}
}

// AddProject registers root, creating it lazily if not already known.
func (r *Registry) AddProject(root string) *Project {
	r.mu.Lock()
	if p, ok := r.projects[root]; ok {
		r.mu.Unlock()
		return p
	}
	p := NewProject(root)
	r.projects[root] = p
	r.roots = append(r.roots, root)
	r.mu.Unlock()

	if err := recordKnownRoot(r.dataDir, root); err != nil {
		r.logger.Error("project: record known root failed", "root", root, "error", err)
	}
	return p
}

// Load returns the Project for root, loading its persisted snapshot the
// first time it's needed (spec §4.1's Inited -> Loading -> Loaded chain)
// and reusing the already-loaded Project on every subsequent call. Wired
// from a client's first compile submission against a root and from
// ReloadKnown's startup pass, so a live daemon's projects don't linger at
// Inited forever the way a bare AddProject would leave them.
func (r *Registry) Load(root string) *Project {
	p := r.AddProject(root)
	if p.State() == StateLoaded {
		return p
	}
	p.SetState(StateLoading)
	payload, err := LoadSnapshot(r.dataDir, root, r.logger)
	if err != nil {
		r.logger.Error("project: load snapshot failed", "root", root, "error", err)
	} else if payload != nil {
		if err := p.ImportSources(payload); err != nil {
			r.logger.Error("project: import snapshot failed", "root", root, "error", err)
		}
	}
	p.SetState(StateLoaded)
	return p
}

// PersistSnapshot writes root's current source set to disk, so a later
// Load can pick it back up. Called by the inactivity unload sweep right
// before a project drops to Unloaded.
func (r *Registry) PersistSnapshot(root string) error {
	p := r.ByRoot(root)
	if p == nil {
		return nil
	}
	payload, err := p.ExportSources()
	if err != nil {
		return fmt.Errorf("project: export sources for %s: %w", root, err)
	}
	return WriteSnapshot(r.dataDir, root, payload)
}

// ReloadKnown registers every root ever seen by this data directory (per
// the on-disk roots ledger, since a snapshot's filename alone can't be
// decoded back to its root) and reloads each one's snapshot, returning
// the count successfully reloaded. This is the startup path: unlike the
// sentinel current-project, every project a prior run knew about gets a
// chance to reach StateLoaded again, not just the one marked current.
func (r *Registry) ReloadKnown() (int, error) {
	roots, err := readKnownRoots(r.dataDir)
	if err != nil {
		return 0, err
	}
	for _, root := range roots {
		r.AddProject(root)
	}
	return r.ReloadAll(func(p *Project, payload []byte) error {
		return p.ImportSources(payload)
	})
}

// CurrentProject returns the currently selected project, or nil if none
// has been selected yet.
func (r *Registry) CurrentProject() *Project {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.current == "" {
		return nil
	}
	return r.projects[r.current]
}

// SetCurrent selects project as current and persists the choice to the
// data directory's sentinel file (spec §4.1, §6).
func (r *Registry) SetCurrent(root string) error {
	r.mu.Lock()
	if _, ok := r.projects[root]; !ok {
		r.mu.Unlock()
		return fmt.Errorf("project: unknown root %q", root)
	}
	r.current = root
	r.mu.Unlock()

	return writeCurrentProjectSentinel(r.dataDir, root)
}

// ReloadAll reloads every registered project's snapshot from disk and
// returns the count successfully reloaded.
func (r *Registry) ReloadAll(apply func(p *Project, payload []byte) error) (int, error) {
	r.mu.RLock()
	roots := make([]string, 0, len(r.projects))
	for root := range r.projects {
		roots = append(roots, root)
	}
	r.mu.RUnlock()

	count := 0
	for _, root := range roots {
		p := r.AddProject(root)
		p.SetState(StateLoading)
		payload, err := LoadSnapshot(r.dataDir, root, r.logger)
		if err != nil {
			r.logger.Error("project: reload failed", "root", root, "error", err)
			continue
		}
		if payload != nil {
			if err := apply(p, payload); err != nil {
				r.logger.Error("project: apply snapshot failed", "root", root, "error", err)
				continue
			}
		}
		p.SetState(StateLoaded)
		count++
	}
	return count, nil
}

// Remove unregisters every project matching match, optionally deleting
// its on-disk snapshot (mode == Delete).
func (r *Registry) Remove(match func(root string) bool, mode RemoveMode) []string {
	r.mu.Lock()
	var removed []string
	for root := range r.projects {
		if !match(root) {
			continue
		}
		delete(r.projects, root)
		if r.current == root {
			r.current = ""
		}
		removed = append(removed, root)
	}
	if len(removed) > 0 {
		kept := r.roots[:0:0]
		for _, root := range r.roots {
			if _, ok := r.projects[root]; ok {
				kept = append(kept, root)
			}
		}
		r.roots = kept
	}
	r.mu.Unlock()

	if mode == Delete {
		for _, root := range removed {
			if err := DeleteSnapshot(r.dataDir, root); err != nil {
				r.logger.Error("project: delete snapshot failed", "root", root, "error", err)
			}
			if err := forgetKnownRoot(r.dataDir, root); err != nil {
				r.logger.Error("project: forget known root failed", "root", root, "error", err)
			}
		}
	}
	return removed
}

// ProjectFor implements the §4.1 selection policy: try the explicit
// location path, then the current-file hint; within each, prefer the
// already-selected project to avoid thrashing on shared system headers;
// otherwise the first matching root wins. Falls back to CurrentProject.
func (r *Registry) ProjectFor(location, currentFileHint string) *Project {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, candidate := range []string{location, currentFileHint} {
		if candidate == "" {
			continue
		}
		if r.current != "" {
			if p, ok := r.projects[r.current]; ok && strings.HasPrefix(candidate, r.current) {
				return p
			}
		}
		for _, root := range r.roots {
			if strings.HasPrefix(candidate, root) {
				return r.projects[root]
			}
		}
	}

	if r.current == "" {
		return nil
	}
	return r.projects[r.current]
}

// ByRoot returns the registered project for root, or nil.
func (r *Registry) ByRoot(root string) *Project {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.projects[root]
}

// All returns every registered project, for housekeeping sweeps.
func (r *Registry) All() []*Project {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Project, 0, len(r.projects))
	for _, root := range r.roots {
		if p, ok := r.projects[root]; ok {
			out = append(out, p)
		}
	}
	return out
}
