package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/ipc-subnet/subnet-agent/internal/chainrpc"
	"github.com/ipc-subnet/subnet-agent/internal/config"
	"github.com/ipc-subnet/subnet-agent/internal/daemon"
	"github.com/ipc-subnet/subnet-agent/internal/identity"
	"github.com/ipc-subnet/subnet-agent/internal/metrics"
	"github.com/ipc-subnet/subnet-agent/internal/rpcpool"
	"github.com/ipc-subnet/subnet-agent/internal/subnetid"
	"github.com/ipc-subnet/subnet-agent/internal/supervisor"
	"github.com/ipc-subnet/subnet-agent/internal/termcolor"
	"github.com/ipc-subnet/subnet-agent/internal/watchdog"
)

// runDaemon implements the daemon subcommand named in spec.md §6: load the
// TOML config, start the Subnet Supervisor and the JSON-RPC control
// server, and block until SIGINT/SIGTERM.
func runDaemon(args []string) {
	fs := flag.NewFlagSet("daemon", flag.ExitOnError)
	configFile := fs.String("config-file", "", "path to the TOML configuration file (required)")
	fs.Parse(args)

	if *configFile == "" {
		fmt.Fprintln(os.Stderr, "daemon: --config-file is required")
		os.Exit(1)
	}

	if err := runDaemonWithConfig(*configFile); err != nil {
		termcolor.Red("subnet-agentd: %v", err)
		os.Exit(1)
	}
}

func runDaemonWithConfig(configFile string) error {
	log := slog.Default()

	cfg, err := config.NewReloadableConfig(configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if keyPath := cfg.Current().Server().IdentityKeyPath; keyPath != "" {
		peerID, err := identity.PeerIDFromKeyFile(keyPath)
		if err != nil {
			return fmt.Errorf("load identity: %w", err)
		}
		log.Info("agent identity loaded", "peer_id", peerID.String())
	}

	m := metrics.NewMetrics(version, runtime.Version())

	factory := func(sub config.Subnet) *chainrpc.Client {
		transport := chainrpc.NewHTTPTransport(sub.JSONRPCAPIHTTP, sub.AuthToken)
		return chainrpc.New(transport, chainrpc.DefaultConfig(), log)
	}
	pool := rpcpool.New(cfg, factory)
	resolve := func(id subnetid.ID) (supervisor.RPC, error) { return pool.Get(id) }
	sup := supervisor.New(cfg, resolve, log)

	srv := daemon.NewServer(cfg, configFile, pool, factory, log)
	srv.SetInstrumentation(m)
	srv.SetAuthToken(cfg.Current().Server().AuthToken)
	if err := srv.Start(); err != nil {
		return fmt.Errorf("start json-rpc server: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	supervisorDone := make(chan error, 1)
	go func() { supervisorDone <- sup.Run(ctx) }()

	watchdogCtx, cancelWatchdog := context.WithCancel(ctx)
	defer cancelWatchdog()
	go watchdog.Run(watchdogCtx, watchdog.Config{Interval: 30 * time.Second}, []watchdog.HealthCheck{
		{Name: "json-rpc-listener", Check: func() error {
			if srv.Listener() == nil {
				return fmt.Errorf("listener not bound")
			}
			return nil
		}},
	})

	termcolor.Green("subnet-agentd listening on %s", cfg.Current().Server().JSONRPCAddress)

	<-ctx.Done()
	log.Info("shutdown signal received")

	srv.Stop()

	select {
	case err := <-supervisorDone:
		if err != nil {
			return fmt.Errorf("supervisor: %w", err)
		}
	case <-time.After(10 * time.Second):
		log.Warn("supervisor did not shut down within timeout")
	}

	termcolor.Faint("subnet-agentd stopped\n")
	return nil
}
