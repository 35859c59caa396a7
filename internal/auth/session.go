package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultSessionPath returns the session file location under the user's
// home.
func DefaultSessionPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}

	return filepath.Join(home, ".atspilot", "session.json"), nil
}

// SaveSession persists the session. The file carries tokens, so it is
// written user-readable only.
func SaveSession(path string, session *Session) error {
	if session == nil {
		return errors.New("session is required")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("session: mkdir %s: %w", filepath.Dir(path), err)
	}

	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return err
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("session: write %s: %w", path, err)
	}

	return nil
}

// LoadSession reads a persisted session. A missing file maps to
// ErrNotLoggedIn.
func LoadSession(path string) (*Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotLoggedIn
		}

		return nil, fmt.Errorf("session: read %s: %w", path, err)
	}

	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("session: parse %s: %w", path, err)
	}

	if session.AccessToken == "" {
		return nil, ErrNotLoggedIn
	}

	return &session, nil
}

// ClearSession removes the persisted session. Clearing an absent session is
// a no-op.
func ClearSession(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("session: remove %s: %w", path, err)
	}

	return nil
}
