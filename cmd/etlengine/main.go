package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/dataforge/etlengine/pkg/api"
	"github.com/dataforge/etlengine/pkg/common/config"
	"github.com/dataforge/etlengine/pkg/common/metrics"
	"github.com/dataforge/etlengine/pkg/monitor"
	"github.com/dataforge/etlengine/pkg/optimizer"
	"github.com/dataforge/etlengine/pkg/orchestrator"
)

var (
	cfgFile string
	logger  *zap.Logger
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "etlengine",
	Short: "ETL Engine",
	Long:  `Etlengine runs configured pipelines through an execution orchestrator, serving a read-only status/control API until signaled.`,
	RunE:  run,
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is /etc/etlengine/etlengine.yaml)")
}

func initConfig() {
	var err error
	logger, err = zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
}

// buildLogger replaces the bootstrap logger with one honoring cfg's
// configured level, once the engine configuration has been loaded.
func buildLogger(level string) (*zap.Logger, error) {
	lvl := zapcore.InfoLevel
	_ = lvl.UnmarshalText([]byte(level))

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}

func run(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.LoadEngineConfig(cfgFile)
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	if lg, err := buildLogger(cfg.LogLevel); err == nil {
		logger = lg
	}
	defer logger.Sync()

	logger.Info("Starting etlengine",
		zap.String("log_level", cfg.LogLevel),
		zap.Int("metrics_port", cfg.MetricsPort),
		zap.Bool("api_enabled", cfg.APIEnabled),
		zap.Int("api_port", cfg.APIPort),
		zap.Duration("scheduler_tick", cfg.SchedulerTick),
	)

	bus := orchestrator.NewEventBus(logger)
	engine := orchestrator.New(bus, logger)
	if cfg.SchedulerTick > 0 {
		engine.Scheduler().SetTickInterval(cfg.SchedulerTick)
	}
	engine.SetMetrics(metrics.NewMetricsCollector("engine"))

	mon := monitor.New()
	opt := optimizer.New(mon, 0)

	var apiServer *api.Server
	if cfg.APIEnabled {
		addr := fmt.Sprintf(":%d", cfg.APIPort)
		apiServer = api.NewServer(addr, engine, mon, opt, logger)
		apiServer.Start()
	}

	go engine.Scheduler().Start(ctx)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("etlengine started successfully")

	<-sigCh
	logger.Info("Received shutdown signal, stopping etlengine...")
	cancel()
	engine.Scheduler().Stop()

	if apiServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := apiServer.Stop(shutdownCtx); err != nil {
			logger.Error("Error stopping API server", zap.Error(err))
			return err
		}
	}

	logger.Info("etlengine stopped successfully")
	return nil
}
