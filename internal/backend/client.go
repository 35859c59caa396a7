// Package backend implements the HTTP client for the external job-processing
// service: starting resume runs and fetching their status. The service's
// response shapes are not contractually fixed, so all payload mapping is
// tolerant (see run.go).
package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const userAgent = "atspilot (github.com/atspilot/atspilot)"

var (
	// ErrNoBaseURL is returned before any network call when the backend
	// address is not configured.
	ErrNoBaseURL = errors.New("backend base url is not configured")

	// ErrNoRunID is returned when a creation response carries no usable
	// run identifier at any of the accepted field paths.
	ErrNoRunID = errors.New("backend did not return a run id")
)

type Client struct {
	logger     *zap.Logger
	HTTPClient *http.Client
	UserAgent  string
	APIURL     string
}

// New creates a backend client. baseURL may be empty; calls will then fail
// with ErrNoBaseURL without touching the network.
func New(baseURL string, logger *zap.Logger) *Client {
	return &Client{
		logger: logger,
		APIURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		UserAgent: userAgent,
	}
}

// Configured reports whether a base URL is set.
func (c *Client) Configured() bool {
	return c.APIURL != ""
}

// CreateRun submits a new run of the given mode and returns the backend
// issued run identifier. The payload file is required; JDText is sent only
// for the jd_match mode.
func (c *Client) CreateRun(ctx context.Context, mode Mode, payload *RunPayload) (string, error) {
	if !c.Configured() {
		return "", ErrNoBaseURL
	}

	if payload == nil || payload.File == nil {
		return "", errors.New("run payload requires a file")
	}

	body, err := c.postMultipart(ctx, c.APIURL+mode.CreatePath(), mode, payload)
	if err != nil {
		return "", fmt.Errorf("create %s run: %w", mode, err)
	}

	runID := ExtractRunID(body)
	if runID == "" {
		return "", ErrNoRunID
	}

	c.logger.Debug("run created", zap.String("run_id", runID), zap.String("mode", string(mode)))

	return runID, nil
}

// GetRun fetches the current state of a run.
func (c *Client) GetRun(ctx context.Context, runID string) (*Run, error) {
	if !c.Configured() {
		return nil, ErrNoBaseURL
	}

	if runID == "" {
		return nil, errors.New("run id is required")
	}

	body, err := c.getJSON(ctx, fmt.Sprintf("%s/runs/%s", c.APIURL, runID))
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", runID, err)
	}

	raw := ExtractRun(body)

	return &Run{
		ID:     runID,
		Status: NormalizeStatus(raw["status"]),
		Raw:    raw,
	}, nil
}
