package snapshot

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rosrad/rtagsd/pkg/rtags"
)

func TestWriteLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(filepath.Join(dir, "jobs.snapshot"))

	data := Data{
		WALSeq: 42,
		Jobs: []JobRecord{
			{ID: rtags.JobID(1), Project: "/repo", SourceFile: "/repo/a.c", Flags: rtags.Compile},
		},
	}

	require.NoError(t, m.Write(data))

	loaded, err := m.Load()
	require.NoError(t, err)
	assert.Equal(t, schemaVersion, loaded.Version)
	assert.Equal(t, uint64(42), loaded.WALSeq)
	assert.Len(t, loaded.Jobs, 1)
	assert.Equal(t, "/repo/a.c", loaded.Jobs[0].SourceFile)
}

func TestLoadMissingFileReturnsEmpty(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(filepath.Join(dir, "absent.snapshot"))

	data, err := m.Load()
	require.NoError(t, err)
	assert.Equal(t, schemaVersion, data.Version)
	assert.Empty(t, data.Jobs)
}

func TestLoadCorruptFileIsDeletedAndErrors(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "corrupt.snapshot")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o644))

	m := NewManager(path)
	_, err := m.Load()
	require.Error(t, err)

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestWriteIsAtomicNoTempLeftBehind(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "jobs.snapshot")
	m := NewManager(path)

	require.NoError(t, m.Write(Data{WALSeq: 1}))

	_, err := os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}
