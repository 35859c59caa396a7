// Package auth talks to the hosted authentication provider at its boundary:
// exchanging an OAuth code for a session and refreshing it. Provider
// internals (the OAuth dance itself, cookie storage) stay on the provider
// side.
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

var ErrNotLoggedIn = errors.New("not logged in")

// User is the authenticated identity attached to a session.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Session holds the provider-issued tokens.
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	User         User      `json:"user"`
}

// Expired reports whether the access token needs a refresh. A small margin
// keeps a token from expiring mid-request.
func (s *Session) Expired() bool {
	if s == nil || s.AccessToken == "" {
		return true
	}

	return time.Now().After(s.ExpiresAt.Add(-30 * time.Second))
}

type Client struct {
	logger     *zap.Logger
	HTTPClient *http.Client
	APIURL     string
	anonKey    string
}

// NewClient creates a provider client. anonKey is the project's public API
// key, sent with every request.
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

// Configured reports whether a provider address is set.
func (c *Client) Configured() bool {
	return c.APIURL != ""
}

// AnonKey exposes the public API key for sibling provider clients.
func (c *Client) AnonKey() string {
	return c.anonKey
}

// ExchangeCode trades an OAuth authorization code for a session.
func (c *Client) ExchangeCode(ctx context.Context, code string) (*Session, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, errors.New("authorization code is required")
	}

	return c.token(ctx, "pkce", map[string]string{"auth_code": code})
}

// Refresh obtains a fresh session from a refresh token.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return nil, ErrNotLoggedIn
	}

	return c.token(ctx, "refresh_token", map[string]string{"refresh_token": refreshToken})
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	User         User   `json:"user"`
}

func (c *Client) token(ctx context.Context, grantType string, body map[string]string) (*Session, error) {
	if !c.Configured() {
		return nil, errors.New("auth provider url is not configured")
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/auth/v1/token?grant_type=%s", c.APIURL, grantType)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", c.anonKey)

	c.logger.Debug("auth request", zap.String("grant_type", grantType))

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error            string `json:"error"`
			ErrorDescription string `json:"error_description"`
			Message          string `json:"msg"`
		}
		_ = json.Unmarshal(data, &apiErr)

		for _, msg := range []string{apiErr.ErrorDescription, apiErr.Message, apiErr.Error} {
			if msg != "" {
				return nil, fmt.Errorf("auth provider: %s", msg)
			}
		}

		return nil, fmt.Errorf("auth provider: request failed (%d)", resp.StatusCode)
	}

	var token tokenResponse
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("auth provider: decode token response: %w", err)
	}

	if token.AccessToken == "" {
		return nil, errors.New("auth provider: response carries no access token")
	}

	return &Session{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    time.Now().Add(time.Duration(token.ExpiresIn) * time.Second),
		User:         token.User,
	}, nil
}
