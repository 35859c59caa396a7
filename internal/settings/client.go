package settings

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/atspilot/atspilot/internal/auth"

	"go.uber.org/zap"
)

const table = "user_settings"

// Client reads and writes settings rows through the provider's REST data
// API. Requests carry the project key plus the user's bearer token; row
// level security on the provider side scopes them to the session's user.
type Client struct {
	logger     *zap.Logger
	HTTPClient *http.Client
	APIURL     string
	anonKey    string
}

func NewClient(baseURL, anonKey string, logger *zap.Logger) *Client {
	return &Client{
		logger:  logger,
		APIURL:  strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		anonKey: anonKey,
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

type row struct {
	UserID string `json:"user_id"`
	Settings
}

// Get fetches the session user's settings, falling back to defaults when no
// row exists yet.
func (c *Client) Get(ctx context.Context, session *auth.Session) (Settings, error) {
	defaults := Defaults()

	if session == nil || session.User.ID == "" {
		return defaults, auth.ErrNotLoggedIn
	}

	endpoint := fmt.Sprintf("%s/rest/v1/%s?user_id=eq.%s&limit=1", c.APIURL, table, url.QueryEscape(session.User.ID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return defaults, err
	}

	data, err := c.do(req, session)
	if err != nil {
		return defaults, fmt.Errorf("fetch settings: %w", err)
	}

	var rows []row
	if err := json.Unmarshal(data, &rows); err != nil {
		return defaults, fmt.Errorf("fetch settings: decode: %w", err)
	}

	if len(rows) == 0 {
		return defaults, nil
	}

	got := rows[0].Settings
	if !got.ScanFrequency.Valid() {
		got.ScanFrequency = FreqUnset
	}

	return got, nil
}

// Save upserts the session user's settings row.
func (c *Client) Save(ctx context.Context, session *auth.Session, s Settings) error {
	if session == nil || session.User.ID == "" {
		return auth.ErrNotLoggedIn
	}

	if !s.ScanFrequency.Valid() {
		return fmt.Errorf("unknown scan frequency: %q", s.ScanFrequency)
	}

	payload, err := json.Marshal(row{UserID: session.User.ID, Settings: s})
	if err != nil {
		return err
	}

	endpoint := fmt.Sprintf("%s/rest/v1/%s?on_conflict=user_id", c.APIURL, table)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "resolution=merge-duplicates")

	if _, err := c.do(req, session); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}

	return nil
}

func (c *Client) do(req *http.Request, session *auth.Session) ([]byte, error) {
	if c.APIURL == "" {
		return nil, errors.New("auth provider url is not configured")
	}

	req.Header.Set("apikey", c.anonKey)
	req.Header.Set("Authorization", "Bearer "+session.AccessToken)

	c.logger.Debug("settings request",
		zap.String("method", req.Method),
		zap.String("url", req.URL.String()),
	)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		var apiErr struct {
			Message string `json:"message"`
		}
		_ = json.Unmarshal(data, &apiErr)

		if apiErr.Message != "" {
			return nil, fmt.Errorf("%s", apiErr.Message)
		}

		return nil, fmt.Errorf("request failed (%d)", resp.StatusCode)
	}

	return data, nil
}
