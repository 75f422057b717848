package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rosrad/rtagsd/pkg/rtags"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	opts, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, rtags.DefaultOptions(), opts)
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	opts, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, rtags.DefaultOptions(), opts)
}

func TestLoadAppliesOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rtagsd.yaml")
	yaml := `
data_dir: /custom/data
worker:
  job_count: 8
  max_crash_count: 5
peer:
  tcp_port: 9999
  job_server: true
  reschedule_timeout: 30s
wal:
  buffer_size: 200
socket:
  path: /tmp/custom.sock
log:
  level: debug
  format: json
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	opts, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/custom/data", opts.DataDir)
	assert.Equal(t, 8, opts.JobCount)
	assert.Equal(t, 5, opts.MaxCrashCount)
	assert.Equal(t, 9999, opts.TCPPort)
	assert.True(t, opts.Flags.Has(rtags.JobServer))
	assert.Equal(t, 30*time.Second, opts.RescheduleTimeout)
	assert.Equal(t, 200, opts.WALBufferSize)
	assert.Equal(t, "/tmp/custom.sock", opts.SocketPath)
	assert.Equal(t, "debug", opts.LogLevel)
	assert.Equal(t, "json", opts.LogFormat)
}

func TestLoadLeavesUnsetFieldsAtDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rtagsd.yaml")
	require.NoError(t, os.WriteFile(path, []byte("worker:\n  job_count: 2\n"), 0o644))

	opts, err := Load(path)
	require.NoError(t, err)

	defaults := rtags.DefaultOptions()
	assert.Equal(t, 2, opts.JobCount)
	assert.Equal(t, defaults.TCPPort, opts.TCPPort)
	assert.Equal(t, defaults.SocketPath, opts.SocketPath)
}

func TestLoadInvalidYAMLReturnsError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("not: [valid yaml"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadAppliesHousekeepingOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rtagsd.yaml")
	yaml := `
housekeeping:
  unload_timer: 10m
  unload_sweep_cron: "@every 30s"
  wal_rotate_cron: "@every 6h"
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	opts, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 10*time.Minute, opts.UnloadTimer)
	assert.Equal(t, "@every 30s", opts.UnloadSweepCron)
	assert.Equal(t, "@every 6h", opts.WALRotateCron)
}

func TestLoadIgnoresZeroAndMalformedDurations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rtagsd.yaml")
	require.NoError(t, os.WriteFile(path, []byte("peer:\n  reschedule_timeout: not-a-duration\n"), 0o644))

	opts, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, rtags.DefaultOptions().RescheduleTimeout, opts.RescheduleTimeout)
}
