package cmd

import (
	"encoding/json"
	"log"

	"github.com/atspilot/atspilot/internal/jobs"
	"github.com/atspilot/atspilot/internal/logger"
	"github.com/atspilot/atspilot/internal/store"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Show job listings: the sample feed, or the results of a recorded run",
	Run: func(cmd *cobra.Command, _ []string) {
		showJobs(cmd)
	},
}

func init() {
	rootCmd.AddCommand(jobsCmd)

	jobsCmd.Flags().String("run", "", "show the listings recorded for this run id")
	jobsCmd.Flags().Bool("report", false, "group listings per company instead of listing them")
}

func showJobs(cmd *cobra.Command) {
	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	listings, err := loadListings(cmd)
	if err != nil {
		logger.Fatal("loading listings", zap.Error(err))
	}

	if listings.Len() == 0 {
		logger.Info("exiting", zap.String("reason", "no listings recorded for this run"))
		return
	}

	listings.SortByScore()

	if cmd.Flag("report").Value.String() == "true" {
		pretty, _ := json.MarshalIndent(listings.ReportByCompany(), "", "  ")
		logger.Info(string(pretty), zap.Int("listings count", listings.Len()))
		return
	}

	for _, job := range listings.Items {
		logger.Info("listing",
			zap.String("title", job.Title),
			zap.String("company", job.Company),
			zap.String("location", job.Location),
			zap.Int("ats_score", job.ATSScore),
			zap.String("apply_url", job.ApplyURL),
		)
	}
}

func loadListings(cmd *cobra.Command) (*jobs.Jobs, error) {
	runID := cmd.Flag("run").Value.String()
	if runID == "" {
		return jobs.FallbackFeed(), nil
	}

	path, err := store.DefaultPath()
	if err != nil {
		return nil, err
	}

	history, err := store.Open(path)
	if err != nil {
		return nil, err
	}
	defer history.Close()

	return history.JobsForRun(cmd.Context(), runID)
}
