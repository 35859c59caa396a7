package cmd

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/atspilot/atspilot/internal/backend"
	"github.com/atspilot/atspilot/internal/logger"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// minJDLength is the smallest job description worth matching against. The
// backend does not enforce it, so the gate lives here.
const minJDLength = 300

var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Check your resume's ATS score against a specific job description",
	Run: func(cmd *cobra.Command, _ []string) {
		match(cmd)
	},
}

func init() {
	rootCmd.AddCommand(matchCmd)

	matchCmd.Flags().StringP("resume", "r", "", "path to the resume file to upload (pdf)")
	matchCmd.Flags().StringP("jd", "t", "", "path to a file with the job description text")
}

func match(cmd *cobra.Command) {
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

	jdText, err := readJD(cmd.Flag("jd").Value.String())
	if err != nil {
		logger.Fatal("reading the job description", zap.Error(err))
	}

	resumeFile := cmd.Flag("resume").Value.String()
	if resumeFile == "" {
		resumeFile = viper.GetString("resume.file")
	}
	if resumeFile == "" && config.Resume != nil {
		resumeFile = config.Resume.File
	}

	payload, file, err := resumePayload(resumeFile, jdText)
	if err != nil {
		logger.Fatal("preparing the resume", zap.Error(err))
	}
	defer file.Close()

	client := backend.New(config.backendURL(), logger)

	started := time.Now()

	logger.Info("matching the resume against the job description",
		zap.String("file", resumeFile),
		zap.Int("jd_length", len(jdText)),
	)

	run, err := executeRun(ctx, client, logger, config, backend.ModeJDMatch, payload)
	if err != nil {
		logger.Fatal("matching failed", zap.Error(err))
	}

	recordRun(ctx, logger, backend.ModeJDMatch, run, started, nil)

	// do not bother error since the payload came out of a json decoder
	pretty, _ := json.MarshalIndent(run.Raw, "", "  ")
	logger.Info(string(pretty), zap.String("run_id", run.ID))
}

// readJD loads the job description text and enforces the minimum length.
func readJD(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("a job description file is required, pass --jd")
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}

	text := strings.TrimSpace(string(raw))
	if len(text) < minJDLength {
		return "", fmt.Errorf("job description is too short: %d characters, need at least %d", len(text), minJDLength)
	}

	return text, nil
}
