package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/newthinker/candlescope/internal/app"
	"github.com/newthinker/candlescope/internal/config"
	"github.com/newthinker/candlescope/internal/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	templatesDir string
	watchConfig  bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the candlescope server",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&templatesDir, "templates", "", "override the embedded HTML templates with this directory")
	serveCmd.Flags().BoolVar(&watchConfig, "watch", true, "reload symbols and aliases when the config file changes")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	// Initialize logger
	log := logger.Must(debug)
	defer log.Sync()

	cfg, err := loadConfig(log)
	if err != nil {
		return err
	}

	log.Info("starting candlescope server",
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port),
		zap.String("source", cfg.Source.Type),
	)

	a, err := app.New(cfg, log, app.Options{TemplatesDir: templatesDir})
	if err != nil {
		return fmt.Errorf("creating app: %w", err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Warn("closing storage", zap.Error(err))
		}
	}()

	// Wait for shutdown signal
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfgFile != "" && watchConfig {
		err := config.Watch(cfgFile, func(next *config.Config, err error) {
			if err != nil {
				log.Error("config reload rejected", zap.Error(err))
				return
			}
			log.Info("config file changed, applying")
			a.ApplyConfig(ctx, next)
		})
		if err != nil {
			return fmt.Errorf("watching config: %w", err)
		}
	}

	if err := a.Start(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	log.Info("candlescope stopped")
	return nil
}
