package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bfsfs/bfs/internal/logger"
	"github.com/bfsfs/bfs/pkg/channel"
	"github.com/bfsfs/bfs/pkg/clientcache"
	"github.com/bfsfs/bfs/pkg/config"
	"github.com/bfsfs/bfs/pkg/metrics"
)

var mountCmd = &cobra.Command{
	Use:   "mount <mountpoint> [fuse-flags...]",
	Short: "Mount a BFS share and run the client write-back cache",
	Long: `mount connects to the configured BFS server, brings up the
client-side write-back file cache and its background congestion writer,
and blocks until interrupted.

The mountpoint is the only argument this command interprets. Further
positional arguments are passed through to the FUSE host unexamined.
Flag-style FUSE options (such as -o) are parsed as bfsclient flags and
rejected as unknown unless they follow a "--" separator.`,
	Args:               cobra.MinimumNArgs(1),
	DisableFlagParsing: false,
	RunE:               runMount,
}

func runMount(cmd *cobra.Command, args []string) error {
	mountpoint := args[0]
	fuseArgs := args[1:]

	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := logger.Init(logger.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format, Output: cfg.Logging.Output}); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	sa, err := cfg.ClientLayer.ServerSA.Build()
	if err != nil {
		return fmt.Errorf("build security association: %w", err)
	}

	addr := fmt.Sprintf("%s:%d", cfg.ClientLayer.ServerIP, cfg.ClientLayer.ServerPort)
	ch, err := channel.Connect(addr, sa)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", addr, err)
	}
	defer ch.Close()

	if err := ch.Send(clientcache.EncodeInitRequest(cfg.ClientLayer.DoMkfs)); err != nil {
		return fmt.Errorf("init: %w", err)
	}
	initResp, err := ch.Recv()
	if err != nil {
		return fmt.Errorf("init: %w", err)
	}
	if _, err := clientcache.DecodeInitResponse(initResp); err != nil {
		return fmt.Errorf("init: %w", err)
	}
	if cfg.ClientLayer.DoMkfs {
		logger.Info("server reported filesystem initialized", "mountpoint", mountpoint)
	}

	var clientMetrics *metrics.ClientMetrics
	if cfg.ClientLayer.MetricsEnabled {
		metrics.InitRegistry()
		clientMetrics = metrics.NewClientMetrics()
	}

	cache := clientcache.New(ch, cfg.ClientLayer.StagingDir, cfg.ClientLayer.DirectIO, clientMetrics)

	writer := clientcache.NewBackgroundWriter(cache)
	writer.OnFatal = func(err error) {
		logger.Error("background writer failed fatally", logger.Err(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	writer.Start(ctx)
	defer writer.Stop()

	logger.Info("bfsclient mounted", "mountpoint", mountpoint, "server", addr, "direct_io", cfg.ClientLayer.DirectIO)
	if len(fuseArgs) > 0 {
		logger.Info("passing through fuse arguments", "args", fuseArgs)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutdown signal received, unmounting", "mountpoint", mountpoint)
	return nil
}
