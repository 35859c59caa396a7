package cmd

import (
	"log"

	"github.com/atspilot/atspilot/internal/logger"
	"github.com/atspilot/atspilot/internal/settings"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show or change scan frequency and alert channels",
	Run: func(cmd *cobra.Command, _ []string) {
		manageSettings(cmd)
	},
}

func init() {
	rootCmd.AddCommand(settingsCmd)

	settingsCmd.Flags().String("frequency", "", "automatic scan frequency: hourly, every_2_hours or daily")
	settingsCmd.Flags().Bool("email-alerts", false, "send new-listing alerts by email")
	settingsCmd.Flags().Bool("telegram-alerts", false, "send new-listing alerts to telegram")
	settingsCmd.Flags().Bool("sms-alerts", false, "send new-listing alerts by sms")
	settingsCmd.Flags().BoolP("interactive", "i", false, "pick the scan frequency from a menu")
}

func manageSettings(cmd *cobra.Command) {
	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	session, err := currentSession(cmd, config, logger)
	if err != nil {
		logger.Fatal("loading the session", zap.Error(err), zap.String("hint", "run 'atspilot login' first"))
	}

	anonKey, err := config.authAnonKey()
	if err != nil {
		logger.Fatal("loading auth provider api key", zap.Error(err))
	}

	client := settings.NewClient(config.authURL(), anonKey, logger)

	current, err := client.Get(cmd.Context(), session)
	if err != nil {
		logger.Fatal("fetching settings", zap.Error(err))
	}

	updated, changed, err := applySettingsFlags(cmd, current)
	if err != nil {
		logger.Fatal("reading flags", zap.Error(err))
	}

	if changed {
		if err := client.Save(cmd.Context(), session, updated); err != nil {
			logger.Fatal("saving settings", zap.Error(err))
		}

		logger.Info("settings saved")
		current = updated
	}

	logger.Info("settings",
		zap.String("scan_frequency", string(current.ScanFrequency)),
		zap.Bool("email_alerts", current.EmailAlerts),
		zap.Bool("telegram_alerts", current.TelegramAlerts),
		zap.Bool("sms_alerts", current.SMSAlerts),
	)
}

// applySettingsFlags overlays explicitly passed flags onto the current
// settings and reports whether anything changed.
func applySettingsFlags(cmd *cobra.Command, current settings.Settings) (settings.Settings, bool, error) {
	changed := false

	if cmd.Flag("interactive").Value.String() == "true" {
		prompt := promptui.Select{
			Label: "How often should atspilot scan for new jobs?",
			Items: []string{
				string(settings.FreqHourly),
				string(settings.FreqEvery2Hours),
				string(settings.FreqDaily),
			},
		}

		_, picked, err := prompt.Run()
		if err != nil {
			return current, false, err
		}

		current.ScanFrequency = settings.ScanFrequency(picked)
		changed = true
	}

	if cmd.Flags().Changed("frequency") {
		current.ScanFrequency = settings.ScanFrequency(cmd.Flag("frequency").Value.String())
		changed = true
	}

	for flag, target := range map[string]*bool{
		"email-alerts":    &current.EmailAlerts,
		"telegram-alerts": &current.TelegramAlerts,
		"sms-alerts":      &current.SMSAlerts,
	} {
		if !cmd.Flags().Changed(flag) {
			continue
		}

		v, err := cmd.Flags().GetBool(flag)
		if err != nil {
			return current, false, err
		}

		*target = v
		changed = true
	}

	return current, changed, nil
}
