package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dzexpress/shipping/internal/orchestrator"
	"github.com/dzexpress/shipping/internal/server"
	"github.com/dzexpress/shipping/internal/telemetry"
	"github.com/dzexpress/shipping/internal/vault"
)

var version = "0.0.1"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "shipping",
	Short:   "DZ Express Shipping - Multi-courier delivery integration service",
	Version: version,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, err := telemetry.NewLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	tracerShutdown, err := initTracer(ctx, cfg)
	if err != nil {
		logger.Warn("Failed to initialize tracer", zap.Error(err))
	} else {
		defer tracerShutdown(ctx)
	}

	vaultSecret := cfg.VaultSecret
	if vaultSecret == "" {
		logger.Warn("VAULT_SECRET not set, using development-only secret")
		vaultSecret = devVaultSecret
	}
	v, err := vault.New(vaultSecret)
	if err != nil {
		return fmt.Errorf("credential vault: %w", err)
	}

	st, cleanup, err := initStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	registry := initCourierRegistry(cfg, logger)
	metrics := telemetry.NewMetrics()
	orch := orchestrator.New(st, registry, v, logger, metrics, cfg.BulkRateLimit)

	logger.Info("Starting DZ Express Shipping",
		zap.Int("port", cfg.Port),
		zap.Int("metrics_port", cfg.MetricsPort),
		zap.String("version", cfg.Version),
		zap.Strings("couriers", registry.Names()),
	)

	srv := server.New(server.Config{
		Port:               cfg.Port,
		MetricsPort:        cfg.MetricsPort,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		CORSAllowCookies:   cfg.CORSAllowCookies,
	}, st, v, registry, orch, logger)

	if err := srv.Run(ctx); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}
