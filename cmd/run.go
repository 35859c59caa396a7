package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/atspilot/atspilot/internal/backend"
	"github.com/atspilot/atspilot/internal/jobs"
	"github.com/atspilot/atspilot/internal/runs"
	"github.com/atspilot/atspilot/internal/store"

	"go.uber.org/zap"
)

type runOutcome struct {
	runID string
	run   *backend.Run
	err   error
}

// executeRun submits one backend run and blocks until its single terminal
// outcome arrives. Cancelling ctx tears the run down.
func executeRun(ctx context.Context, client *backend.Client, logger *zap.Logger, config *Config, mode backend.Mode, payload *backend.RunPayload) (*backend.Run, error) {
	outcome := make(chan runOutcome, 1)

	events := runs.Events{
		NavigateToResults: func(runID string, run *backend.Run) {
			outcome <- runOutcome{runID: runID, run: run}
		},
		ResultReady: func(run *backend.Run) {
			outcome <- runOutcome{runID: run.ID, run: run}
		},
		Failed: func(message string) {
			outcome <- runOutcome{err: errors.New(message)}
		},
		BusyChanged: func(busy bool) {
			if busy {
				logger.Info("run submitted, polling the backend")
			}
		},
	}

	var opts []runs.Option
	if d := config.maxRunDuration(); d > 0 {
		opts = append(opts, runs.WithMaxRunDuration(d))
	}

	orchestrator := runs.New(client, events, logger, opts...)
	defer orchestrator.Close()

	orchestrator.StartRun(ctx, mode, payload)

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case out := <-outcome:
		if out.err != nil {
			return nil, out.err
		}

		return out.run, nil
	}
}

// resumePayload builds the multipart payload from a resume file on disk.
// The caller owns closing the returned file.
func resumePayload(path, jdText string) (*backend.RunPayload, *os.File, error) {
	if path == "" {
		return nil, nil, errors.New("a resume file is required, set resume.file in config or pass --resume")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening resume %s: %w", path, err)
	}

	return &backend.RunPayload{
		FileName: filepath.Base(path),
		File:     file,
		JDText:   jdText,
	}, file, nil
}

// recordRun persists a finished run and its listings into local history.
// History is best effort; failures are logged, not fatal.
func recordRun(ctx context.Context, logger *zap.Logger, mode backend.Mode, run *backend.Run, started time.Time, listings *jobs.Jobs) {
	if run == nil || run.ID == "" {
		return
	}

	path, err := store.DefaultPath()
	if err != nil {
		logger.Warn("resolving history path", zap.Error(err))
		return
	}

	history, err := store.Open(path)
	if err != nil {
		logger.Warn("opening history", zap.Error(err))
		return
	}
	defer history.Close()

	rec := &store.RunRecord{
		RunID:      run.ID,
		Mode:       string(mode),
		Status:     string(run.Status),
		Error:      backend.ErrorMessage(run.Raw, ""),
		CreatedAt:  started,
		FinishedAt: time.Now(),
	}

	if err := history.RecordRun(ctx, rec); err != nil {
		logger.Warn("recording run", zap.Error(err))
		return
	}

	if listings == nil || listings.Len() == 0 {
		return
	}

	if err := history.SaveJobs(ctx, run.ID, listings); err != nil {
		logger.Warn("recording listings", zap.Error(err))
	}
}
