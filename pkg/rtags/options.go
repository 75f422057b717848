package rtags

import "time"

// OptionFlag is the daemon-wide behavior bitmask named in spec §6.
type OptionFlag uint32

const (
	JobServer OptionFlag = 1 << iota
	NoJobServer
	NoLocalCompiles
	ForcePreprocessing
	CompressionAlways
	CompressionRemote
	ClearProjects
	NoStartupCurrentProject
	NoFileManagerWatch
	SeparateDebugAndRelease
)

func (o OptionFlag) Has(bit OptionFlag) bool { return o&bit == bit }

// Options is the daemon's runtime configuration, loaded from YAML by
// internal/config and overridable by CLI flags.
type Options struct {
	DataDir string `yaml:"data_dir"`

	JobCount int `yaml:"job_count"`

	SocketPath        string `yaml:"socket_path"`
	TCPPort           int    `yaml:"tcp_port"`
	HTTPPort          int    `yaml:"http_port"`
	MulticastAddress  string `yaml:"multicast_address"`
	MulticastPort     int    `yaml:"multicast_port"`
	MulticastTTL      int    `yaml:"multicast_ttl"`

	RescheduleTimeout time.Duration `yaml:"reschedule_timeout"`
	UnloadTimer       time.Duration `yaml:"unload_timer"`

	MaxPendingPreprocessSize int `yaml:"max_pending_preprocess_size"`
	CompletionCacheSize      int `yaml:"completion_cache_size"`
	MaxCrashCount            int `yaml:"max_crash_count"`

	VisitFileTimeout      time.Duration `yaml:"visit_file_timeout"`
	IndexerMessageTimeout time.Duration `yaml:"indexer_message_timeout"`

	ExcludeFilters   []string `yaml:"exclude_filters"`
	IgnoredCompilers []string `yaml:"ignored_compilers"`
	DefaultArguments []string `yaml:"default_arguments"`
	IncludePaths     []string `yaml:"include_paths"`

	Flags OptionFlag `yaml:"-"`

	WALBufferSize    int           `yaml:"wal_buffer_size"`
	SnapshotInterval time.Duration `yaml:"snapshot_interval"`

	// UnloadSweepCron and WALRotateCron are robfig/cron/v3 schedule
	// expressions for the periodic housekeeping jobs (§13.4): the
	// project-inactivity unload sweep and WAL rotation. Empty disables
	// that job; UnloadSweepCron is additionally a no-op while
	// UnloadTimer is 0.
	UnloadSweepCron string `yaml:"unload_sweep_cron"`
	WALRotateCron   string `yaml:"wal_rotate_cron"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// DefaultOptions returns the baseline configuration applied before a YAML
// file or CLI flags are layered on top, mirroring the teacher's pattern of
// zero-value-then-override in cmd/demo/main.go's loadConfig.
func DefaultOptions() Options {
	return Options{
		DataDir:                  "~/.rtags",
		JobCount:                 4,
		SocketPath:               "~/.rtags/rtagsd.sock",
		TCPPort:                  12526,
		HTTPPort:                 12527,
		MulticastAddress:         "237.50.50.50",
		MulticastPort:            12528,
		MulticastTTL:             1,
		RescheduleTimeout:        15 * time.Second,
		UnloadTimer:              0,
		MaxPendingPreprocessSize: 100,
		CompletionCacheSize:      10,
		MaxCrashCount:            3,
		VisitFileTimeout:         5 * time.Second,
		IndexerMessageTimeout:    10 * time.Second,
		WALBufferSize:            1000,
		SnapshotInterval:         30 * time.Second,
		UnloadSweepCron:          "@every 1m",
		WALRotateCron:            "@every 1h",
		LogLevel:                 "info",
		LogFormat:                "text",
	}
}
