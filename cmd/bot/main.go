package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/shard-legends/farm-bot/internal/api"
	"github.com/shard-legends/farm-bot/internal/catalog"
	"github.com/shard-legends/farm-bot/internal/config"
	"github.com/shard-legends/farm-bot/internal/farm"
	"github.com/shard-legends/farm-bot/internal/monitor"
	"github.com/shard-legends/farm-bot/internal/render"
	"github.com/shard-legends/farm-bot/internal/signer"
	"github.com/shard-legends/farm-bot/internal/transport"
	"github.com/shard-legends/farm-bot/pkg/logger"
	"github.com/shard-legends/farm-bot/pkg/metrics"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Set via -ldflags at build time
var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:     "farm-bot",
		Short:   "farm-bot automates planting, harvesting and boosting of farm slots",
		Version: version,
		Long: `farm-bot keeps a configured set of farm slots productive: it harvests
mature crops, replants emptied slots, maintains boosters and tops up
consumables from the shop, all through the game's signed RPC API.`,
	}

	rootCmd.AddCommand(runCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the reconciliation loop",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run()
		},
	}
}

func run() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize logger
	if err := logger.Init(cfg.Logging.Level, cfg.Logging.Encoding); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Sync()

	token, err := cfg.ResolveToken()
	if err != nil {
		return err
	}

	cat, err := catalog.Load(cfg.Catalog.Path)
	if err != nil {
		return err
	}

	tracked, err := cfg.TrackedSlots()
	if err != nil {
		return err
	}

	runID := uuid.NewString()
	metrics.BotInfo.WithLabelValues(version, runID).Set(1)

	startTime := time.Now()
	go func() {
		for {
			metrics.BotUptime.Set(time.Since(startTime).Seconds())
			time.Sleep(10 * time.Second)
		}
	}()

	// Wire the transport and remote client
	sg := signer.New("")
	tr := transport.NewClient(transport.Config{
		BaseURL:        cfg.Remote.BaseURL,
		Token:          token,
		Origin:         cfg.Remote.Origin,
		Referer:        cfg.Remote.Referer,
		ClientID:       cfg.Remote.ClientID,
		Timeout:        cfg.Transport.Timeout,
		MaxAttempts:    cfg.Transport.MaxAttempts,
		RetryBaseDelay: cfg.Transport.RetryBaseDelay,
	}, sg, logger.Get())
	client := api.NewClient(tr, logger.Get())

	// Wire the farm core
	registry := farm.NewRegistry(tracked)
	gate := farm.NewInventoryGate(client, cat, logger.Get())

	var sink farm.Sink = render.Nop{}
	if cfg.Logging.Encoding == "console" {
		sink = render.NewConsole(5 * time.Second)
	}

	keeper := farm.NewKeeper(client, registry, gate, cat, sink, farm.Options{
		SeedKey:       cfg.Farm.SeedKey,
		BoosterKey:    cfg.Farm.BoosterKey,
		SeedMinBuy:    cfg.Farm.SeedMinBuy,
		BoosterMinBuy: cfg.Farm.BoosterMinBuy,
		TickInterval:  cfg.Farm.TickInterval,
		RefreshGrace:  cfg.Farm.RefreshGrace,
	}, logger.Get())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start monitor server in background
	if cfg.Monitor.Enabled {
		monitorServer := monitor.NewServer(cfg.Monitor.Host, cfg.Monitor.Port, keeper, cfg.Farm.TickInterval)
		go func() {
			if err := monitorServer.Start(); err != nil {
				logger.Error("Monitor server failed", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := monitorServer.Shutdown(shutdownCtx); err != nil {
				logger.Error("Monitor server forced to shutdown", zap.Error(err))
			}
		}()
	}

	logger.Info("Starting farm bot",
		zap.String("version", version),
		zap.String("run_id", runID),
		zap.Ints("slots", tracked))

	// Startup precondition: the loop only starts from a known snapshot
	if err := keeper.Bootstrap(ctx); err != nil {
		return fmt.Errorf("startup precondition failed: %w", err)
	}

	if err := keeper.Run(ctx); err != nil {
		return err
	}

	logger.Info("Farm bot exited")
	return nil
}
