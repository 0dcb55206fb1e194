package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/YaganovValera/analytics-system/services/venue-client/internal/app"
	"github.com/YaganovValera/analytics-system/services/venue-client/internal/config"
	"github.com/YaganovValera/analytics-system/services/venue-client/pkg/logger"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "venue-client: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		cfgFile     string
		printConfig bool
	)

	root := &cobra.Command{
		Use:           "venue-client",
		Short:         "Venue price session: subscriptions, live prices, sinks",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// 1. Конфиг
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			if printConfig || cfg.Logging.DevMode {
				cfg.Print()
			}

			// 2. Логгер
			log, err := logger.New(cfg.Logging)
			if err != nil {
				return fmt.Errorf("logger init: %w", err)
			}
			defer log.Sync()

			// 3. Контекст с отменой по сигналам
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			log.Info("starting service",
				zap.String("service.name", cfg.ServiceName),
				zap.String("service.version", cfg.ServiceVersion),
			)

			// 4. Запуск
			if err := app.Run(ctx, cfg, log); err != nil {
				log.Error("application exited with error", zap.Error(err))
				return err
			}
			log.Info("shutdown complete")
			return nil
		},
	}

	root.Flags().StringVar(&cfgFile, "config", "", "path to config file (YAML); empty: ENV and defaults only")
	root.Flags().BoolVar(&printConfig, "print-config", false, "print effective configuration on start")
	return root
}
