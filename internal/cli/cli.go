// Package cli builds the Cobra command tree for rtagsd, following the
// teacher's root-command-plus-subcommands shape: a persistent --config
// flag, a "run" command that starts the daemon, and a "status" command
// that queries a running daemon's Unix socket.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rosrad/rtagsd/internal/clientapi"
	"github.com/rosrad/rtagsd/internal/config"
	"github.com/rosrad/rtagsd/internal/diagnostics"
	"github.com/rosrad/rtagsd/internal/localworker"
	"github.com/rosrad/rtagsd/internal/mcpsrv"
	"github.com/rosrad/rtagsd/internal/metrics"
	"github.com/rosrad/rtagsd/internal/peer"
	"github.com/rosrad/rtagsd/internal/preprocess"
	"github.com/rosrad/rtagsd/internal/project"
	"github.com/rosrad/rtagsd/internal/query"
	"github.com/rosrad/rtagsd/internal/scheduler"
	"github.com/rosrad/rtagsd/internal/snapshot"
	"github.com/rosrad/rtagsd/internal/storage"
	"github.com/rosrad/rtagsd/internal/wal"
	"github.com/rosrad/rtagsd/pkg/protocol"
	"github.com/rosrad/rtagsd/pkg/rtags"
)

// BuildCLI assembles the rtagsd root command and its subcommands.
func BuildCLI() *cobra.Command {
	var configPath string
	var helperPath string

	root := &cobra.Command{
		Use:     "rtagsd",
		Short:   "distributed source-code indexing daemon",
		Version: "1.0.0",
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to YAML config file")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "start the indexing daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := config.Load(configPath)
			if err != nil {
				return err
			}
			return runDaemon(opts, helperPath)
		},
	}
	runCmd.Flags().StringVar(&helperPath, "helper", "rtags-helper", "path to the extractor helper binary")

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "report a running daemon's scheduling counters",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := config.Load(configPath)
			if err != nil {
				return err
			}
			resp, err := SendRequest(ExpandHome(opts.SocketPath), protocol.TypeClientStatus, protocol.ClientStatusMessage{})
			if err != nil {
				return err
			}
			fmt.Printf("pending=%d in_flight=%d peers=%d\n", resp.Pending, resp.InFlight, resp.Peers)
			return nil
		},
	}

	mcpCmd := &cobra.Command{
		Use:   "mcp",
		Short: "serve follow-symbol/references/list/rename as MCP tools over stdio, proxied to a running daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := config.Load(configPath)
			if err != nil {
				return err
			}
			srv := mcpsrv.New(ExpandHome(opts.SocketPath))
			return srv.Serve(cmd.Context())
		},
	}

	root.AddCommand(runCmd, statusCmd, mcpCmd)
	return root
}

// SendRequest dials socketPath, sends a single framed request, and
// decodes the daemon's ClientResponseMessage. Shared by "rtagsd status"
// and cmd/rc.
func SendRequest(socketPath string, t protocol.MessageType, msg any) (protocol.ClientResponseMessage, error) {
	conn, err := net.DialTimeout("unix", socketPath, 5*time.Second)
	if err != nil {
		return protocol.ClientResponseMessage{}, fmt.Errorf("cli: dial %s: %w", socketPath, err)
	}
	defer conn.Close()

	frame, err := protocol.Encode(t, msg)
	if err != nil {
		return protocol.ClientResponseMessage{}, err
	}
	if err := protocol.WriteFrame(conn, frame); err != nil {
		return protocol.ClientResponseMessage{}, err
	}

	reply, err := protocol.ReadFrame(conn)
	if err != nil {
		return protocol.ClientResponseMessage{}, err
	}
	var resp protocol.ClientResponseMessage
	if err := protocol.Decode(reply, &resp); err != nil {
		return protocol.ClientResponseMessage{}, err
	}
	if resp.Error != "" {
		return resp, fmt.Errorf("rtagsd: %s", resp.Error)
	}
	return resp, nil
}

// runDaemon wires every component named in the daemon's data-flow
// diagram and blocks until SIGINT/SIGTERM, following the teacher's
// "build everything, then block on signal" shape.
func runDaemon(opts rtags.Options, helperPath string) error {
	logger := newLogger(opts)
	slog.SetDefault(logger)

	dataDir := ExpandHome(opts.DataDir)
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("rtagsd: create data dir: %w", err)
	}
	socketPath := ExpandHome(opts.SocketPath)
	if err := os.MkdirAll(filepath.Dir(socketPath), 0o755); err != nil {
		return fmt.Errorf("rtagsd: create socket dir: %w", err)
	}

	metricsCollector := metrics.NewCollector()

	registry := project.NewRegistry(dataDir, logger)
	if _, err := registry.ReloadKnown(); err != nil {
		logger.Warn("rtagsd: reload known projects failed", "error", err)
	}
	if current, err := project.ReadCurrentProjectSentinel(dataDir); err == nil && current != "" && !opts.Flags.Has(rtags.NoStartupCurrentProject) {
		registry.Load(current)
		registry.SetCurrent(current)
	}

	walPath := filepath.Join(dataDir, "rtagsd.wal")
	walInstance, err := wal.Open(walPath, opts.WALBufferSize)
	if err != nil {
		return fmt.Errorf("rtagsd: open wal: %w", err)
	}
	defer walInstance.Close()

	preprocessPool := preprocess.NewPool(opts.JobCount, opts.MaxPendingPreprocessSize, logger)
	defer preprocessPool.Stop()

	stores := newStoreCache(dataDir)
	defer stores.closeAll()

	// sched is assigned once the scheduler is constructed; localworker's
	// and peer's callbacks close over the pointer rather than a value so
	// they can be wired before the scheduler itself exists.
	var sched *scheduler.Scheduler

	localPool, err := localworker.New(helperPath, filepath.Join(dataDir, "localworker.sock"),
		func(jobID rtags.JobID, path string) bool { return sched.VisitFile(jobID, path) },
		func(jobID rtags.JobID, msg *protocol.IndexerMessage, crashed bool, stderr string) {
			sched.OnLocalFinished(jobID, msg, crashed, stderr)
		},
		logger)
	if err != nil {
		return fmt.Errorf("rtagsd: start local worker pool: %w", err)
	}
	defer localPool.Close()

	isCoordinator := opts.Flags.Has(rtags.JobServer)
	handlers := peer.Handlers{
		OnClientConnected:      func(host string) { sched.Handlers().OnClientConnected(host) },
		OnJobAnnouncement:      func(host string, port uint16) { sched.Handlers().OnJobAnnouncement(host, port) },
		OnProxyJobAnnouncement: func(from net.Conn, port uint16) { sched.Handlers().OnProxyJobAnnouncement(from, port) },
		OnJobRequest:           func(conn net.Conn, from peer.Remote, n int) { sched.Handlers().OnJobRequest(conn, from, n) },
		OnJobResponse:          func(from peer.Remote, msg protocol.JobResponseMessage) { sched.Handlers().OnJobResponse(from, msg) },
		OnIndexerResult:        func(conn net.Conn, msg protocol.IndexerMessage) { sched.Handlers().OnIndexerResult(conn, msg) },
		OnExit:                 func(conn net.Conn, msg protocol.ExitMessage) { sched.Handlers().OnExit(conn, msg) },
	}
	var peerManager *peer.Manager
	var remotes *peer.RemoteList
	if !opts.Flags.Has(rtags.NoJobServer) {
		peerManager, err = peer.NewManager(fmt.Sprintf(":%d", opts.TCPPort), isCoordinator, handlers, logger)
		if err != nil {
			return fmt.Errorf("rtagsd: start peer transport: %w", err)
		}
		defer peerManager.Close()
		remotes = &peer.RemoteList{}
	}

	sched = scheduler.New(opts, registry, preprocessPool, localPool, peerManager, remotes, walInstance, stores.open, metricsCollector, logger)
	snapMgr := snapshot.NewManager(filepath.Join(dataDir, "scheduler.snapshot"))
	if data, err := snapMgr.Load(); err == nil && len(data.Jobs) > 0 {
		logger.Info("rtagsd: previous snapshot found", "jobs", len(data.Jobs), "wal_seq", data.WALSeq)
		if err := sched.Restore(walPath, data); err != nil {
			return fmt.Errorf("rtagsd: restore from snapshot: %w", err)
		}
	}
	sched.EnableSnapshots(snapMgr, opts.SnapshotInterval)

	housekeeper, err := sched.StartHousekeeping(opts.UnloadSweepCron, opts.WALRotateCron)
	if err != nil {
		return fmt.Errorf("rtagsd: start housekeeping: %w", err)
	}
	defer housekeeper.Stop()

	router := query.New(registry, stores.open)

	apiServer, err := clientapi.New(socketPath, registry, sched, router, logger)
	if err != nil {
		return fmt.Errorf("rtagsd: start client api: %w", err)
	}
	defer apiServer.Close()

	diagServer := diagnostics.New(fmt.Sprintf(":%d", opts.HTTPPort), diagnostics.Deps{
		Sched:   sched,
		Local:   localPool,
		Remotes: remotes,
		WAL:     walInstance,
		JobCap:  opts.JobCount,
	}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sched.Run(ctx)
	defer sched.Stop()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); apiServer.Serve(ctx) }()
	go func() { defer wg.Done(); diagServer.Run(ctx) }()

	if peerManager != nil {
		wg.Add(1)
		go func() { defer wg.Done(); peerManager.Serve(ctx) }()
		runPeerDiscovery(ctx, opts, peerManager, isCoordinator, logger)
	}

	logger.Info("rtagsd: ready", "socket", socketPath, "tcp_port", opts.TCPPort, "http_port", opts.HTTPPort, "coordinator", isCoordinator)
	<-ctx.Done()
	logger.Info("rtagsd: shutting down")
	wg.Wait()
	return nil
}

// runPeerDiscovery starts the multicast probe/reply loop and, for a
// non-coordinator daemon, the linear-backoff coordinator reconnector
// once a coordinator's address is learned from a reply.
func runPeerDiscovery(ctx context.Context, opts rtags.Options, m *peer.Manager, isCoordinator bool, logger *slog.Logger) {
	disc, err := peer.NewDiscoverer(opts.MulticastAddress, opts.MulticastPort, opts.MulticastTTL, logger)
	if err != nil {
		logger.Warn("rtagsd: multicast discovery disabled", "error", err)
		return
	}
	go func() {
		<-ctx.Done()
		disc.Close()
	}()

	reconnector := peer.NewReconnector(m, logger)
	var reconnectOnce sync.Once

	go disc.Listen(ctx, func(from *net.UDPAddr) {
		if isCoordinator {
			host, _, _ := net.SplitHostPort(from.String())
			disc.Reply(from, host, uint16(opts.TCPPort))
		}
	}, func(reply peer.CoordinatorReply) {
		if isCoordinator {
			return
		}
		reconnectOnce.Do(func() {
			go reconnector.Run(ctx, reply.Host, reply.Port, nil)
		})
	})

	if isCoordinator {
		return
	}

	ticker := time.NewTicker(10 * time.Second)
	go func() {
		defer ticker.Stop()
		disc.Probe()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if m.Coordinator() == nil {
					disc.Probe()
				}
			}
		}
	}()
}

func newLogger(opts rtags.Options) *slog.Logger {
	level := slog.LevelInfo
	switch opts.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	handlerOpts := &slog.HandlerOptions{Level: level}
	if opts.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, handlerOpts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, handlerOpts))
}

func ExpandHome(path string) string {
	if len(path) >= 2 && path[:2] == "~/" {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}

// storeCache caches one open storage.Store per project root, shared by
// the scheduler's commit path and the query router so both read and
// write the same database handle.
type storeCache struct {
	dataDir string

	mu     sync.Mutex
	stores map[string]*storage.Store
}

func newStoreCache(dataDir string) *storeCache {
	return &storeCache{dataDir: dataDir, stores: make(map[string]*storage.Store)}
}

func (c *storeCache) open(ctx context.Context, root string) (*storage.Store, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.stores[root]; ok {
		return s, nil
	}
	s, err := storage.Open(ctx, c.dataDir, root)
	if err != nil {
		return nil, err
	}
	c.stores[root] = s
	return s, nil
}

func (c *storeCache) closeAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range c.stores {
		s.Close()
	}
}
