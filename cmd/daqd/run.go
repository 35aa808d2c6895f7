package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/fastdaq/daqcore"
	"github.com/fastdaq/daqcore/driver/sim"
	"github.com/fastdaq/daqcore/internal/bus"
	"github.com/fastdaq/daqcore/internal/config"
	"github.com/fastdaq/daqcore/internal/logging"
	"github.com/fastdaq/daqcore/internal/obsprom"
	"github.com/fastdaq/daqcore/internal/transport"
	"github.com/fastdaq/daqcore/internal/trigger"
)

var (
	runNATSURL         string
	runMetricsAddr     string
	runRegisterSubject string
	runWriterSubject   string
	runVerbose         bool
	runCollectTimeout  time.Duration
	runConfigPath      string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the simulated fleet end to end against a NATS broker",
	Long: `Run starts a simulated device fleet, a trigger sync client, and the
online writer, and drives them until interrupted.

Example usage:

  daqd run --nats-url nats://localhost:4222 --metrics-addr :9090`,
	RunE: runFleet,
}

func init() {
	runCmd.Flags().StringVar(&runNATSURL, "nats-url", "nats://127.0.0.1:4222",
		"NATS server URL for the trigger sync client and online writer")
	runCmd.Flags().StringVar(&runMetricsAddr, "metrics-addr", ":9090",
		"address for the Prometheus /metrics endpoint")
	runCmd.Flags().StringVar(&runRegisterSubject, "register-subject", "daq.trigger.register",
		"NATS subject the trigger master listens on for client registration")
	runCmd.Flags().StringVar(&runWriterSubject, "writer-subject", "daq.writer.events",
		"NATS subject the online writer publishes framed bundles to")
	runCmd.Flags().BoolVarP(&runVerbose, "verbose", "v", false, "enable debug logging")
	runCmd.Flags().DurationVar(&runCollectTimeout, "collect-timeout", 2*time.Second,
		"how long Collect waits for every worker to report an event before giving up")
	runCmd.Flags().StringVar(&runConfigPath, "config", "",
		"path to a JSON config tree (per-worker settings under workers.<name>, writer settings under writers.online); defaults are used if omitted")
}

func runFleet(cmd *cobra.Command, args []string) error {
	logConfig := logging.DefaultConfig()
	if runVerbose {
		logConfig.Level = logging.LevelDebug
	}
	logger := logging.NewLogger(logConfig)
	logging.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := daqcore.NewRegistry(logger)

	promRegistry := prometheus.NewRegistry()
	obs := obsprom.NewObserver(promRegistry)
	metricsServer := obsprom.NewServer(runMetricsAddr, promRegistry)
	go func() {
		if err := metricsServer.Start(ctx); err != nil {
			logger.Error("metrics server stopped", "error", err)
		}
	}()
	logger.Info("metrics server listening", "addr", metricsServer.Addr())

	// sis3302 is a VME-class device: its driver is a bus.Arbiter-backed
	// BusDigitizer rather than a Digitizer, so the shared-bus poll/rearm
	// and timestamp bit-layout decode paths are exercised end to end.
	sis3302Regs := sim.NewRegisters()
	sis3302Arbiter := bus.NewArbiter(os.DevNull, sis3302Regs, logger.WithFields("component", "bus", "device", "sis3302-0"))
	sis3302 := daqcore.NewWorker[daqcore.Sis3302](
		sim.NewBusDigitizer(sis3302Arbiter, sis3302Regs, 0x30000000, 20*time.Millisecond),
		daqcore.WorkerConfig{Name: "sis3302-0", Logger: logger.WithFields("worker", "sis3302-0"), Obs: obs},
	)
	drs4 := daqcore.NewWorker[daqcore.Drs4](
		sim.NewDigitizer(20*time.Millisecond, simDrs4Generator()),
		daqcore.WorkerConfig{Name: "drs4-0", Logger: logger.WithFields("worker", "drs4-0"), Obs: obs},
	)
	caen1785 := daqcore.NewWorker[daqcore.Caen1785](
		sim.NewDigitizer(20*time.Millisecond, simCaen1785Generator()),
		daqcore.WorkerConfig{Name: "caen1785-0", Logger: logger.WithFields("worker", "caen1785-0"), Obs: obs},
	)

	registry.Add(daqcore.AsHandle(sis3302))
	registry.Add(daqcore.AsHandle(drs4))
	registry.Add(daqcore.AsHandle(caen1785))

	cfgTree := loadConfigTree(runConfigPath, logger)
	registry.LoadConfigs(cfgTree)

	onlineCfg := cfgTree.Sub("writers").Sub("online")

	nc, err := transport.Connect(runNATSURL, "daqd-writer")
	if err != nil {
		return err
	}
	defer nc.Close()

	sender := transport.NewNATSSender(nc, runWriterSubject, onlineCfg.Int("high_water_mark", 10))
	writer := daqcore.NewWriter(daqcore.WriterConfig{
		Sender:         sender,
		MaxTraceLength: onlineCfg.Int("max_trace_length", -1),
		Logger:         logger.WithFields("component", "writer"),
		Obs:            obs,
	})
	writer.LoadConfig(onlineCfg)

	syncClient := trigger.New(nc, runRegisterSubject, logger.WithFields("component", "sync"))
	syncClient.LoadConfig(cfgTree.Sub("trigger"))

	if err := syncClient.InitSockets(); err != nil {
		return err
	}
	syncClient.LaunchThreads()
	defer syncClient.Close()

	registry.StartRun()
	defer registry.StopRun()

	writer.StartWriter()
	defer writer.StopWriter()

	syncClient.SetReady(true)

	logger.Info("daqd fleet running", "workers", len(registry.Workers()))

	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down")
			writer.EndOfBatch(false)
			return nil
		default:
		}

		if !syncClient.HasTrigger() {
			time.Sleep(5 * time.Millisecond)
			continue
		}

		bundle, err := daqcore.Collect(ctx, registry, runCollectTimeout)
		if err != nil {
			logger.Warn("incomplete bundle", "error", err)
		}
		registry.FlushEventData()
		if writer.PushData([]daqcore.Bundle{bundle}) == 0 {
			logger.Warn("writer queue full, dropped bundle")
		}
	}
}

// loadConfigTree loads the full JSON config document at path, covering
// both the per-worker "workers.<name>" sections and "writers.online".
// A missing or unreadable path is not fatal: the returned tree is
// empty, and every caller reads through its accessors' documented
// defaults.
func loadConfigTree(path string, logger *logging.Logger) *config.Tree {
	if path == "" {
		return config.NewTree(nil, logger)
	}
	tree, err := config.Load(path, logger)
	if err != nil {
		logger.Warn("failed to load config, using defaults", "path", path, "error", err)
		return config.NewTree(nil, logger)
	}
	return tree
}
