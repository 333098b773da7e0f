// Package serve runs the iscpctl daemon: a shared device registry reachable
// over a Unix socket.
package serve

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"iscpctl/internal/discovery"
	"iscpctl/internal/remote"
	"iscpctl/internal/rpc"
	"iscpctl/internal/store"
	"iscpctl/pkg/config"
	"iscpctl/pkg/logger"
)

// Run starts the daemon and blocks until SIGINT or SIGTERM.
func Run(configPath string) error {
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log := logger.Init(cfg.Remote.LogLevel)

	timeout, err := cfg.Remote.ParseDiscoverTimeout()
	if err != nil {
		return fmt.Errorf("parsing discover timeout: %w", err)
	}

	// Ensure database directory exists
	dbDir := filepath.Dir(cfg.Daemon.DBPath)
	if err := os.MkdirAll(dbDir, 0700); err != nil {
		return fmt.Errorf("creating database directory %s: %w", dbDir, err)
	}

	// Ensure RPC socket directory exists
	sockDir := filepath.Dir(cfg.Daemon.RPCSocket)
	if err := os.MkdirAll(sockDir, 0700); err != nil {
		return fmt.Errorf("creating socket directory %s: %w", sockDir, err)
	}

	db, err := store.New(cfg.Daemon.DBPath, log)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer db.Close()

	reg := remote.LoadFrom(cfg.Remote.SnapshotPath, log)
	finder := discovery.New(log)
	finder.ListenPort = cfg.Remote.DiscoverPort
	finder.TargetPort = cfg.Remote.DiscoverPort
	reg.Finder = finder

	svc := rpc.NewService(remote.NewShared(reg), db, cfg.Remote.SnapshotPath, log)
	listener, err := rpc.StartServer(cfg.Daemon.RPCSocket, svc, log)
	if err != nil {
		return fmt.Errorf("starting RPC server: %w", err)
	}
	defer listener.Close()

	log.Info().
		Str("db_path", cfg.Daemon.DBPath).
		Str("snapshot", cfg.Remote.SnapshotPath).
		Int("devices", reg.Len()).
		Dur("discover_timeout", timeout).
		Msg("Starting iscpctl daemon")

	// Fill an empty registry in the background so the socket is usable at once.
	if reg.Len() == 0 {
		go func() {
			var reply rpc.DevicesReply
			if err := svc.Discover(&rpc.DiscoverArgs{Timeout: timeout}, &reply); err != nil {
				log.Warn().Err(err).Msg("Initial discovery failed")
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	log.Info().Str("signal", sig.String()).Msg("Shutting down")
	return nil
}
