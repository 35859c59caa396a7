package cmd

import (
	"log"
	"time"

	"github.com/atspilot/atspilot/internal/logger"
	"github.com/atspilot/atspilot/internal/store"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recently finished runs from local history",
	Run: func(cmd *cobra.Command, _ []string) {
		history(cmd)
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().IntP("limit", "n", 10, "how many runs to show (at most 100)")
}

func history(cmd *cobra.Command) {
	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	path, err := store.DefaultPath()
	if err != nil {
		logger.Fatal("resolving history path", zap.Error(err))
	}

	db, err := store.Open(path)
	if err != nil {
		logger.Fatal("opening history", zap.Error(err))
	}
	defer db.Close()

	limit, err := cmd.Flags().GetInt("limit")
	if err != nil {
		logger.Fatal("reading the limit flag", zap.Error(err))
	}

	runs, err := db.RecentRuns(cmd.Context(), limit)
	if err != nil {
		logger.Fatal("listing runs", zap.Error(err))
	}

	if len(runs) == 0 {
		logger.Info("exiting", zap.String("reason", "no recorded runs yet"))
		return
	}

	for _, rec := range runs {
		fields := []zap.Field{
			zap.String("run_id", rec.RunID),
			zap.String("mode", rec.Mode),
			zap.String("status", rec.Status),
			zap.String("finished", rec.FinishedAt.Format(time.RFC3339)),
		}

		if rec.Error != "" {
			fields = append(fields, zap.String("error", rec.Error))
		}

		logger.Info("run", fields...)
	}
}
