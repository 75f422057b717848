// Package config loads the daemon's on-disk Options, following the
// teacher's zero-value-then-override convention: defaults are applied,
// then a YAML file is unmarshalled on top, then CLI flags (applied by the
// caller) take final precedence.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/rosrad/rtagsd/pkg/rtags"
)

// file is the on-disk shape of the config, grouped by concern the way the
// teacher's internal/cli.Config nests sections.
type file struct {
	DataDir string `yaml:"data_dir"`

	Worker struct {
		JobCount      int `yaml:"job_count"`
		MaxCrashCount int `yaml:"max_crash_count"`
	} `yaml:"worker"`

	Preprocess struct {
		MaxPendingSize int `yaml:"max_pending_size"`
	} `yaml:"preprocess"`

	Peer struct {
		TCPPort           int    `yaml:"tcp_port"`
		MulticastAddress  string `yaml:"multicast_address"`
		MulticastPort     int    `yaml:"multicast_port"`
		MulticastTTL      int    `yaml:"multicast_ttl"`
		RescheduleTimeout string `yaml:"reschedule_timeout"`
		JobServer         bool   `yaml:"job_server"`
		NoLocalCompiles   bool   `yaml:"no_local_compiles"`
	} `yaml:"peer"`

	WAL struct {
		BufferSize int `yaml:"buffer_size"`
	} `yaml:"wal"`

	Snapshot struct {
		Interval string `yaml:"interval"`
	} `yaml:"snapshot"`

	Housekeeping struct {
		UnloadTimer     string `yaml:"unload_timer"`
		UnloadSweepCron string `yaml:"unload_sweep_cron"`
		WALRotateCron   string `yaml:"wal_rotate_cron"`
	} `yaml:"housekeeping"`

	HTTP struct {
		Port int `yaml:"port"`
	} `yaml:"http"`

	Socket struct {
		Path string `yaml:"path"`
	} `yaml:"socket"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// Load reads path, merges it onto rtags.DefaultOptions, and returns the
// resulting Options. A missing file is not an error: the defaults are
// returned unchanged, matching cmd/demo/main.go's loadConfig behavior of
// tolerating an absent config file on first run.
func Load(path string) (rtags.Options, error) {
	opts := rtags.DefaultOptions()

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return opts, nil
		}
		return opts, fmt.Errorf("config: read %s: %w", path, err)
	}

	var f file
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return opts, fmt.Errorf("config: parse %s: %w", path, err)
	}

	applyOverrides(&opts, &f)
	return opts, nil
}

func applyOverrides(opts *rtags.Options, f *file) {
	if f.DataDir != "" {
		opts.DataDir = f.DataDir
	}
	if f.Worker.JobCount > 0 {
		opts.JobCount = f.Worker.JobCount
	}
	if f.Worker.MaxCrashCount > 0 {
		opts.MaxCrashCount = f.Worker.MaxCrashCount
	}
	if f.Preprocess.MaxPendingSize > 0 {
		opts.MaxPendingPreprocessSize = f.Preprocess.MaxPendingSize
	}
	if f.Peer.TCPPort > 0 {
		opts.TCPPort = f.Peer.TCPPort
	}
	if f.Peer.MulticastAddress != "" {
		opts.MulticastAddress = f.Peer.MulticastAddress
	}
	if f.Peer.MulticastPort > 0 {
		opts.MulticastPort = f.Peer.MulticastPort
	}
	if f.Peer.MulticastTTL > 0 {
		opts.MulticastTTL = f.Peer.MulticastTTL
	}
	if d, err := parseDuration(f.Peer.RescheduleTimeout); err == nil && d > 0 {
		opts.RescheduleTimeout = d
	}
	if f.Peer.JobServer {
		opts.Flags = opts.Flags | rtags.JobServer
	}
	if f.Peer.NoLocalCompiles {
		opts.Flags = opts.Flags | rtags.NoLocalCompiles
	}
	if f.WAL.BufferSize > 0 {
		opts.WALBufferSize = f.WAL.BufferSize
	}
	if d, err := parseDuration(f.Snapshot.Interval); err == nil && d > 0 {
		opts.SnapshotInterval = d
	}
	if d, err := parseDuration(f.Housekeeping.UnloadTimer); err == nil && d > 0 {
		opts.UnloadTimer = d
	}
	if f.Housekeeping.UnloadSweepCron != "" {
		opts.UnloadSweepCron = f.Housekeeping.UnloadSweepCron
	}
	if f.Housekeeping.WALRotateCron != "" {
		opts.WALRotateCron = f.Housekeeping.WALRotateCron
	}
	if f.HTTP.Port > 0 {
		opts.HTTPPort = f.HTTP.Port
	}
	if f.Socket.Path != "" {
		opts.SocketPath = f.Socket.Path
	}
	if f.Log.Level != "" {
		opts.LogLevel = f.Log.Level
	}
	if f.Log.Format != "" {
		opts.LogFormat = f.Log.Format
	}
}
