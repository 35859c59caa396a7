package cmd

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/atspilot/atspilot/internal/logger"
	"github.com/atspilot/atspilot/internal/scheduler"
	"github.com/atspilot/atspilot/internal/settings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Scan jobs on a schedule until interrupted",
	Run: func(cmd *cobra.Command, _ []string) {
		watch(cmd)
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().Duration("every", 0, "scan interval, overrides the account's scan frequency")
}

func watch(cmd *cobra.Command) {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	interval, err := watchInterval(cmd, config, logger)
	if err != nil {
		logger.Fatal("resolving the scan interval", zap.Error(err))
	}

	watcher, err := scheduler.New(interval, func(ctx context.Context) error {
		_, err := scanOnce(ctx, config, logger)
		return err
	}, logger)
	if err != nil {
		logger.Fatal("building the watcher", zap.Error(err))
	}

	logger.Info("watching for new jobs", zap.Duration("interval", interval))

	if err := watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("watcher stopped", zap.Error(err))
	}

	logger.Info("exiting", zap.String("reason", "interrupted"))
}

// watchInterval picks the scan interval: an explicit --every flag wins,
// otherwise the account's scan frequency is used.
func watchInterval(cmd *cobra.Command, config *Config, logger *zap.Logger) (time.Duration, error) {
	every, err := cmd.Flags().GetDuration("every")
	if err != nil {
		return 0, err
	}

	if every > 0 {
		return every, nil
	}

	session, err := currentSession(cmd, config, logger)
	if err != nil {
		return 0, errors.New("no --every flag given and no session to read the scan frequency from, run 'atspilot login' or pass --every")
	}

	anonKey, err := config.authAnonKey()
	if err != nil {
		return 0, err
	}

	client := settings.NewClient(config.authURL(), anonKey, logger)

	current, err := client.Get(cmd.Context(), session)
	if err != nil {
		return 0, err
	}

	interval := current.ScanFrequency.Interval()
	if interval == 0 {
		return 0, errors.New("automatic scans are off for this account, set a frequency with 'atspilot settings --frequency' or pass --every")
	}

	return interval, nil
}
