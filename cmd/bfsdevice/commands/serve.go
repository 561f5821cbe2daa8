package commands

import (
	"fmt"
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/bfsfs/bfs/internal/logger"
	"github.com/bfsfs/bfs/pkg/config"
	"github.com/bfsfs/bfs/pkg/device"
	"github.com/bfsfs/bfs/pkg/metrics"
)

var (
	deviceID uint32
	logFile  string
	verbose  bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve a configured block device",
	Long: `serve opens the local block device identified by --device-id and
accepts device-protocol connections from the one peer configured for it.

Exit code 0 on clean shutdown (SIGINT), non-zero on a fatal initialization
or I/O error.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().Uint32VarP(&deviceID, "device-id", "d", 0, "device id to serve (required)")
	serveCmd.Flags().StringVarP(&logFile, "logfile", "l", "", "path to log file (default: stderr)")
	serveCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	_ = serveCmd.MarkFlagRequired("device-id")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logCfg := logger.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format, Output: cfg.Logging.Output}
	if logFile != "" {
		logCfg.Output = logFile
	}
	if verbose {
		logCfg.Level = "DEBUG"
	}
	if err := logger.Init(logCfg); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	dc, err := findDevice(cfg, deviceID)
	if err != nil {
		return err
	}
	if dc.Type != "local" {
		return fmt.Errorf("device %d is configured as %q, not local; bfsdevice only serves local devices", deviceID, dc.Type)
	}

	sa, err := dc.SA.Build()
	if err != nil {
		return fmt.Errorf("build security association: %w", err)
	}

	numBlocks := uint64(dc.Size) / device.BlockSize
	local, err := device.OpenLocalDevice(dc.DeviceID, dc.Path, numBlocks)
	if err != nil {
		return fmt.Errorf("open local device: %w", err)
	}
	defer local.Close()

	if cfg.BlockLayer.MetricsEnabled {
		metrics.InitRegistry()
		if cfg.BlockLayer.MetricsPort != 0 {
			go serveMetrics(cfg.BlockLayer.MetricsPort)
		}
	}

	daemon := device.NewDaemon(local, sa, dc.UserID)
	stop := daemon.NotifyShutdownOnSignal()
	defer stop()

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", dc.Port))
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	defer listener.Close()

	logger.Info("bfsdevice serving", "device_id", dc.DeviceID, "path", dc.Path, "num_blocks", numBlocks, "port", dc.Port)

	if err := daemon.Serve(listener); err != nil {
		logger.Error("daemon stopped", logger.Err(err))
		return err
	}
	logger.Info("daemon stopped cleanly")
	return nil
}

func findDevice(cfg *config.Config, id uint32) (config.DeviceConfig, error) {
	for _, d := range cfg.DeviceLayer.Devices {
		if d.DeviceID == id {
			return d, nil
		}
	}
	return config.DeviceConfig{}, fmt.Errorf("no device with id %d in configuration", id)
}

func serveMetrics(port int) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}))
	addr := fmt.Sprintf(":%d", port)
	logger.Info("metrics endpoint listening", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("metrics server stopped", logger.Err(err))
	}
}
