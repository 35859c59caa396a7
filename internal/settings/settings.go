// Package settings stores per-user preferences in the auth provider's data
// API: scan frequency and alert channels.
package settings

import "time"

// ScanFrequency controls how often the background watcher starts scan runs.
type ScanFrequency string

const (
	FreqUnset       ScanFrequency = ""
	FreqHourly      ScanFrequency = "hourly"
	FreqEvery2Hours ScanFrequency = "every_2_hours"
	FreqDaily       ScanFrequency = "daily"
)

// Valid reports whether f is a known frequency. The unset value is valid;
// it means the watcher stays off.
func (f ScanFrequency) Valid() bool {
	switch f {
	case FreqUnset, FreqHourly, FreqEvery2Hours, FreqDaily:
		return true
	}

	return false
}

// Interval returns the scan period, or zero when unset.
func (f ScanFrequency) Interval() time.Duration {
	switch f {
	case FreqHourly:
		return time.Hour
	case FreqEvery2Hours:
		return 2 * time.Hour
	case FreqDaily:
		return 24 * time.Hour
	}

	return 0
}

// Settings are the persisted user preferences.
type Settings struct {
	ScanFrequency  ScanFrequency `json:"scan_frequency"`
	EmailAlerts    bool          `json:"email_alerts"`
	TelegramAlerts bool          `json:"telegram_alerts"`
	SMSAlerts      bool          `json:"sms_alerts"`
}

// Defaults mirror a fresh account: email alerts on, everything else off.
func Defaults() Settings {
	return Settings{
		ScanFrequency: FreqUnset,
		EmailAlerts:   true,
	}
}
