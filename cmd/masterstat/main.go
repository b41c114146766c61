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

	"github.com/jonguttman/MasterStat/internal/config"
	"github.com/jonguttman/MasterStat/internal/logging"
	"github.com/jonguttman/MasterStat/internal/server"
)

var (
	flagConfig  string
	flagPort    int
	flagToken   string
	flagDataDir string
)

func main() {
	root := newRootCommand()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "masterstat",
		Short: "Thermostat time-series acquisition and repair service",
		Long: `masterstat polls a SmartThings thermostat and its paired outlet,
records samples to a durable local history, and reconstructs any
missed intervals from the device event stream.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          run,
	}
	cmd.Flags().StringVarP(&flagConfig, "config", "c", "", "path to YAML config file")
	cmd.Flags().IntVarP(&flagPort, "port", "p", 0, "HTTP listen port (overrides config)")
	cmd.Flags().StringVar(&flagToken, "pat", "", "SmartThings personal access token (overrides config)")
	cmd.Flags().StringVar(&flagDataDir, "data-dir", "", "directory for history files (overrides config)")
	return cmd
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return err
	}
	if flagPort != 0 {
		cfg.Server.Port = flagPort
	}
	if flagToken != "" {
		cfg.API.Token = flagToken
	}
	if flagDataDir != "" {
		cfg.History.DataDir = flagDataDir
	}
	if cfg.API.Token == "" {
		if pat := os.Getenv("SMARTTHINGS_PAT"); pat != "" {
			cfg.API.Token = pat
		}
	}
	if err := cfg.ValidateAll(); err != nil {
		return err
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer logger.Sync()

	srv, err := server.New(cfg, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(ctx) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Stop(shutdownCtx); err != nil {
			logger.Warn("shutdown incomplete", zap.Error(err))
			return err
		}
		logger.Info("shutdown complete")
		return nil
	}
}
