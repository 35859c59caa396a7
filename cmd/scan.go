package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/atspilot/atspilot/internal/backend"
	"github.com/atspilot/atspilot/internal/jobs"
	"github.com/atspilot/atspilot/internal/logger"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	PromptYes             = "Yes"
	PromptNo              = "No"
	PromptReportByCompany = "Report by companies"
	PromptJobsToFile      = "Dump listings to file"
	PromptDone            = "Done"
)

var errExit = errors.New("exit requested")

var scanPrompt = promptui.Select{
	Label: "Scrape the latest jobs with ATS score for your resume?",
	Items: []string{PromptYes, PromptNo},
}

var listingsPrompt = promptui.Select{
	Label: "What next?",
	Items: []string{PromptReportByCompany, PromptJobsToFile, PromptDone},
}

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Upload your resume and scan fresh job listings with ATS scores",
	Run: func(cmd *cobra.Command, _ []string) {
		scan(cmd)
	},
}

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().StringP("resume", "r", "", "path to the resume file to upload (pdf)")
	scanCmd.Flags().BoolP("auto-aprove", "y", false, "do not ask for confirmation before scanning")

	viper.BindPFlag("resume.file", scanCmd.Flags().Lookup("resume"))
}

// scan is the main command for the cli.
func scan(cmd *cobra.Command) {
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

	logger.Info("starting the atspilot", zap.String("version", version))

	// do not bother error since there is a valid parseable config
	pretty, _ := json.MarshalIndent(config, "", "  ")
	logger.Debug(fmt.Sprintf("starting with config: \n %s", pretty))

	if cmd.Flag("auto-aprove").Value.String() == "false" {
		_, answer, err := scanPrompt.Run()
		if err != nil {
			logger.Fatal("exiting", zap.Error(err))
		}

		if answer != PromptYes {
			logger.Info("exiting", zap.String("reason", "got no from prompt"))
			return
		}
	}

	listings, err := scanOnce(ctx, config, logger)
	if err != nil {
		logger.Fatal("scanning jobs", zap.Error(err))
	}

	if listings.Len() == 0 {
		logger.Info("exiting", zap.String("reason", "no listings found for this resume"))
		return
	}

	listings.SortByScore()

	for _, job := range listings.Items {
		logger.Info("found listing",
			zap.String("title", job.Title),
			zap.String("company", job.Company),
			zap.String("location", job.Location),
			zap.Int("ats_score", job.ATSScore),
			zap.String("apply_url", job.ApplyURL),
		)
	}

	for {
		if err := handleListingsAction(listings, logger); err != nil {
			if errors.Is(err, errExit) {
				return
			}
			logger.Fatal("exiting", zap.Error(err))
		}
	}
}

// scanOnce runs one scan_jobs run end to end and returns the decoded
// listings. Shared with the watch command.
func scanOnce(ctx context.Context, config *Config, logger *zap.Logger) (*jobs.Jobs, error) {
	resumeFile := viper.GetString("resume.file")
	if resumeFile == "" && config.Resume != nil {
		resumeFile = config.Resume.File
	}

	payload, file, err := resumePayload(resumeFile, "")
	if err != nil {
		return nil, err
	}
	defer file.Close()

	client := backend.New(config.backendURL(), logger)

	started := time.Now()

	logger.Info("uploading the resume", zap.String("file", resumeFile))

	run, err := executeRun(ctx, client, logger, config, backend.ModeScanJobs, payload)
	if err != nil {
		return nil, err
	}

	listings, err := jobs.FromRunPayload(run.Raw)
	if err != nil {
		return nil, fmt.Errorf("reading run results: %w", err)
	}

	logger.Info("scan finished",
		zap.String("run_id", run.ID),
		zap.Int("count", listings.Len()),
	)

	recordRun(ctx, logger, backend.ModeScanJobs, run, started, listings)

	return listings, nil
}

func handleListingsAction(listings *jobs.Jobs, logger *zap.Logger) error {
	_, action, err := listingsPrompt.Run()
	if err != nil {
		return err
	}

	switch action {
	case PromptReportByCompany:
		pretty, _ := json.MarshalIndent(listings.ReportByCompany(), "", "  ")
		logger.Info(string(pretty), zap.Int("listings count", listings.Len()))
		return nil
	case PromptJobsToFile:
		filename, err := listings.DumpToTmpFile()
		if err != nil {
			return fmt.Errorf("dump results to file: %w", err)
		}
		logger.Info("dumping result to file", zap.String("filename", filename))
		return nil
	case PromptDone:
		return errExit
	default:
		return fmt.Errorf("invalid action: %s", action)
	}
}
