package settings

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/atspilot/atspilot/internal/auth"

	"go.uber.org/zap"
)

func session() *auth.Session {
	return &auth.Session{
		AccessToken: "at",
		ExpiresAt:   time.Now().Add(time.Hour),
		User:        auth.User{ID: "u1", Email: "user@example.com"},
	}
}

func TestScanFrequencyInterval(t *testing.T) {
	cases := map[ScanFrequency]time.Duration{
		FreqUnset:       0,
		FreqHourly:      time.Hour,
		FreqEvery2Hours: 2 * time.Hour,
		FreqDaily:       24 * time.Hour,
	}

	for freq, want := range cases {
		if got := freq.Interval(); got != want {
			t.Fatalf("Interval(%q) = %v, want %v", freq, got, want)
		}
	}

	if ScanFrequency("weekly").Valid() {
		t.Fatalf("unexpected frequency accepted")
	}
}

func TestGetReturnsDefaultsWithoutRow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("user_id"); got != "eq.u1" {
			t.Fatalf("unexpected user filter: %q", got)
		}

		if got := r.Header.Get("Authorization"); got != "Bearer at" {
			t.Fatalf("missing bearer token, got %q", got)
		}

		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "anon-key", zap.NewNop())

	got, err := c.Get(context.Background(), session())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got != Defaults() {
		t.Fatalf("expected defaults, got %+v", got)
	}
}

func TestGetDecodesRow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`[{"user_id":"u1","scan_frequency":"daily","email_alerts":false,"telegram_alerts":true,"sms_alerts":false}]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "anon-key", zap.NewNop())

	got, err := c.Get(context.Background(), session())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got.ScanFrequency != FreqDaily || !got.TelegramAlerts || got.EmailAlerts {
		t.Fatalf("unexpected settings: %+v", got)
	}
}

func TestGetNormalizesUnknownFrequency(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`[{"user_id":"u1","scan_frequency":"fortnightly","email_alerts":true}]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "anon-key", zap.NewNop())

	got, err := c.Get(context.Background(), session())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got.ScanFrequency != FreqUnset {
		t.Fatalf("expected unknown frequency to normalize to unset, got %q", got.ScanFrequency)
	}
}

func TestSaveUpserts(t *testing.T) {
	var gotPrefer string
	var gotRow map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPrefer = r.Header.Get("Prefer")

		if err := json.NewDecoder(r.Body).Decode(&gotRow); err != nil {
			t.Fatalf("decoding row: %v", err)
		}

		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "anon-key", zap.NewNop())

	err := c.Save(context.Background(), session(), Settings{
		ScanFrequency: FreqHourly,
		EmailAlerts:   true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gotPrefer != "resolution=merge-duplicates" {
		t.Fatalf("expected an upsert, got Prefer=%q", gotPrefer)
	}

	if gotRow["user_id"] != "u1" || gotRow["scan_frequency"] != "hourly" {
		t.Fatalf("unexpected row: %v", gotRow)
	}
}

func TestSaveRejectsUnknownFrequency(t *testing.T) {
	c := NewClient("http://localhost:0", "anon-key", zap.NewNop())

	if err := c.Save(context.Background(), session(), Settings{ScanFrequency: "weekly"}); err == nil {
		t.Fatalf("expected an error for an unknown frequency")
	}
}

func TestRequiresSession(t *testing.T) {
	c := NewClient("http://localhost:0", "anon-key", zap.NewNop())

	if _, err := c.Get(context.Background(), nil); err == nil {
		t.Fatalf("expected an error without a session")
	}

	if err := c.Save(context.Background(), nil, Defaults()); err == nil {
		t.Fatalf("expected an error without a session")
	}
}
