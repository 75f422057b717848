package project

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProjectSuspendAndVisit(t *testing.T) {
	p := NewProject("/src/proj")
	assert.Equal(t, StateInited, p.State())
	assert.False(t, p.IsSuspended("/src/proj/a.h"))

	p.Suspend("/src/proj/a.h")
	assert.True(t, p.IsSuspended("/src/proj/a.h"))
	assert.True(t, p.IntersectsSuspended(map[string]struct{}{"/src/proj/a.h": {}}))
	assert.False(t, p.IntersectsSuspended(map[string]struct{}{"/src/proj/b.h": {}}))

	p.Unsuspend("/src/proj/a.h")
	assert.False(t, p.IsSuspended("/src/proj/a.h"))
}

func TestProjectSources(t *testing.T) {
	p := NewProject("/src/proj")
	assert.False(t, p.HasSource("fp1"))

	p.AddSource(Source{Fingerprint: "fp1", SourceFile: "main.cc", Args: []string{"-c"}})
	assert.True(t, p.HasSource("fp1"))
	assert.False(t, p.HasSource("fp2"))
}

func TestProjectTouchResetsIdleClock(t *testing.T) {
	p := NewProject("/src/proj")
	assert.Less(t, p.IdleFor(), time.Second, "freshly created project should read as just used")

	p.lastUsed = time.Now().Add(-time.Hour).UnixMilli()
	assert.GreaterOrEqual(t, p.IdleFor(), 59*time.Minute)

	p.Touch()
	assert.Less(t, p.IdleFor(), time.Second)
}

func TestSnapshotRoundTrip(t *testing.T) {
	dataDir := t.TempDir()
	root := "/src/proj"

	payload, err := LoadSnapshot(dataDir, root, nil)
	require.NoError(t, err)
	assert.Nil(t, payload, "no snapshot written yet")

	require.NoError(t, WriteSnapshot(dataDir, root, []byte("blob")))

	got, err := LoadSnapshot(dataDir, root, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte("blob"), got)

	require.NoError(t, DeleteSnapshot(dataDir, root))
	got, err = LoadSnapshot(dataDir, root, nil)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSnapshotDiscardsCorruptPayload(t *testing.T) {
	dataDir := t.TempDir()
	root := "/src/proj"

	path := snapshotPath(dataDir, root)
	require.NoError(t, writeCurrentProjectSentinel(dataDir, "unused")) // ensures dataDir exists
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o644))

	got, err := LoadSnapshot(dataDir, root, slog.New(slog.NewTextHandler(os.Stderr, nil)))
	require.NoError(t, err)
	assert.Nil(t, got, "corrupt snapshot should be discarded, not returned")

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr), "corrupt snapshot file should have been removed")
}

func TestCurrentProjectSentinel(t *testing.T) {
	dataDir := t.TempDir()

	got, err := ReadCurrentProjectSentinel(dataDir)
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, writeCurrentProjectSentinel(dataDir, "/src/proj"))
	got, err = ReadCurrentProjectSentinel(dataDir)
	require.NoError(t, err)
	assert.Equal(t, "/src/proj", got)
}

func TestRegistryAddAndSetCurrent(t *testing.T) {
	dataDir := t.TempDir()
	r := NewRegistry(dataDir, nil)

	assert.Nil(t, r.CurrentProject())

	p := r.AddProject("/src/proj")
	require.NotNil(t, p)
	assert.Same(t, p, r.AddProject("/src/proj"), "AddProject is idempotent per root")

	assert.Error(t, r.SetCurrent("/src/unknown"))

	require.NoError(t, r.SetCurrent("/src/proj"))
	assert.Same(t, p, r.CurrentProject())

	got, err := ReadCurrentProjectSentinel(dataDir)
	require.NoError(t, err)
	assert.Equal(t, "/src/proj", got)
}

func TestRegistryProjectForPrefersCurrent(t *testing.T) {
	r := NewRegistry(t.TempDir(), nil)
	r.AddProject("/src/a")
	r.AddProject("/src/b")
	require.NoError(t, r.SetCurrent("/src/a"))

	got := r.ProjectFor("/src/a/main.cc", "")
	require.NotNil(t, got)
	assert.Equal(t, "/src/a", got.Root)

	got = r.ProjectFor("/src/b/main.cc", "")
	require.NotNil(t, got)
	assert.Equal(t, "/src/b", got.Root)

	got = r.ProjectFor("/nowhere/main.cc", "")
	require.NotNil(t, got, "falls back to current project")
	assert.Equal(t, "/src/a", got.Root)
}

// TestRegistryProjectForNestedRootsIsDeterministic covers §4.1's "first
// match wins" wording for two registered roots that both prefix a query
// path: the outcome must be the same every call, keyed on registration
// order, not on Go's randomized map iteration.
func TestRegistryProjectForNestedRootsIsDeterministic(t *testing.T) {
	r := NewRegistry(t.TempDir(), nil)
	r.AddProject("/src/outer")
	r.AddProject("/src/outer/inner")

	for i := 0; i < 20; i++ {
		got := r.ProjectFor("/src/outer/inner/main.cc", "")
		require.NotNil(t, got)
		assert.Equal(t, "/src/outer", got.Root, "the earliest-registered matching root must win every time")
	}
}

func TestRegistryRemoveUnloadKeepsSnapshot(t *testing.T) {
	dataDir := t.TempDir()
	r := NewRegistry(dataDir, nil)
	r.AddProject("/src/a")
	require.NoError(t, WriteSnapshot(dataDir, "/src/a", []byte("blob")))

	removed := r.Remove(func(root string) bool { return root == "/src/a" }, Unload)
	assert.Equal(t, []string{"/src/a"}, removed)
	assert.Nil(t, r.ByRoot("/src/a"))

	payload, err := LoadSnapshot(dataDir, "/src/a", nil)
	require.NoError(t, err)
	assert.Equal(t, []byte("blob"), payload, "unload must not delete the on-disk snapshot")
}

func TestRegistryRemoveDeleteDropsSnapshot(t *testing.T) {
	dataDir := t.TempDir()
	r := NewRegistry(dataDir, nil)
	r.AddProject("/src/a")
	require.NoError(t, WriteSnapshot(dataDir, "/src/a", []byte("blob")))

	r.Remove(func(root string) bool { return root == "/src/a" }, Delete)

	payload, err := LoadSnapshot(dataDir, "/src/a", nil)
	require.NoError(t, err)
	assert.Nil(t, payload, "delete mode must drop the on-disk snapshot")
}

func TestRegistryReloadAll(t *testing.T) {
	dataDir := t.TempDir()
	r := NewRegistry(dataDir, nil)
	r.AddProject("/src/a")
	require.NoError(t, WriteSnapshot(dataDir, "/src/a", []byte("blob")))

	var applied []byte
	count, err := r.ReloadAll(func(p *Project, payload []byte) error {
		applied = payload
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, []byte("blob"), applied)
	assert.Equal(t, StateLoaded, r.ByRoot("/src/a").State())
}
