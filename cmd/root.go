package cmd

import (
	"errors"
	"log"
	"time"

	"github.com/atspilot/atspilot/internal/auth"
	"github.com/atspilot/atspilot/internal/secrets"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	app = "atspilot"
)

type Config struct {
	Backend *BackendConfig `mapstructure:"backend"`
	Auth    *AuthConfig    `mapstructure:"auth"`
	Resume  *ResumeConfig  `mapstructure:"resume"`
	AI      *AIConfig      `mapstructure:"ai"`
}

type BackendConfig struct {
	URL string `mapstructure:"url"`
	// MaxRunDuration force-fails a run locally when the backend never
	// reports a terminal status. Zero keeps polling indefinitely.
	MaxRunDuration time.Duration `mapstructure:"max-run-duration"`
}

type AuthConfig struct {
	URL         string `mapstructure:"url"`
	AnonKey     string `mapstructure:"anon-key"`
	AnonKeyFile string `mapstructure:"anon-key-file"`
	SessionFile string `mapstructure:"session-file"`
}

type ResumeConfig struct {
	File string `mapstructure:"file"`
}

type AIConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Provider string        `mapstructure:"provider"`
	Gemini   *GeminiConfig `mapstructure:"gemini"`
}

type GeminiConfig struct {
	APIKey     string `mapstructure:"api-key"`
	APIKeyFile string `mapstructure:"api-key-file"`
	Model      string `mapstructure:"model"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "atspilot is a job-search assistant: scan jobs for your resume, check ATS scores, and track results",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	if err := viper.BindEnv("backend.url", "ATSPILOT_BACKEND_URL"); err != nil {
		log.Fatalf("binding ATSPILOT_BACKEND_URL environment variable: %v", err)
	}

	if err := viper.BindEnv("auth.url", "ATSPILOT_AUTH_URL"); err != nil {
		log.Fatalf("binding ATSPILOT_AUTH_URL environment variable: %v", err)
	}

	if err := viper.BindEnv("auth.anon-key-file", "ATSPILOT_AUTH_KEY_FILE"); err != nil {
		log.Fatalf("binding ATSPILOT_AUTH_KEY_FILE environment variable: %v", err)
	}

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is atspilot.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app + ".yaml")
		viper.SetConfigType("yaml")
	}

	// A missing default config is fine; everything can come from flags and
	// environment variables. An explicitly given file must parse.
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile == "" && errors.As(err, &notFound) {
			return
		}

		log.Fatal(err)
	}
}

func getConfig() (*Config, error) {
	var config *Config
	if err := viper.Unmarshal(&config); err != nil {
		return config, err
	}

	if config == nil {
		config = &Config{}
	}

	return config, nil
}

// backendURL resolves the backend address from config or environment.
func (c *Config) backendURL() string {
	if c != nil && c.Backend != nil && c.Backend.URL != "" {
		return c.Backend.URL
	}

	return viper.GetString("backend.url")
}

func (c *Config) maxRunDuration() time.Duration {
	if c != nil && c.Backend != nil {
		return c.Backend.MaxRunDuration
	}

	return 0
}

func (c *Config) authURL() string {
	if c != nil && c.Auth != nil && c.Auth.URL != "" {
		return c.Auth.URL
	}

	return viper.GetString("auth.url")
}

// authAnonKey loads the provider's public API key.
func (c *Config) authAnonKey() (string, error) {
	var value, file string
	if c != nil && c.Auth != nil {
		value = c.Auth.AnonKey
		file = c.Auth.AnonKeyFile
	}

	if file == "" {
		file = viper.GetString("auth.anon-key-file")
	}

	return secrets.Load(secrets.Source{
		Name:  "auth provider api key",
		Value: value,
		File:  file,
	})
}

func (c *Config) sessionPath() (string, error) {
	if c != nil && c.Auth != nil && c.Auth.SessionFile != "" {
		return c.Auth.SessionFile, nil
	}

	return auth.DefaultSessionPath()
}

// currentSession loads the persisted session, refreshing it through the
// provider when the access token has expired.
func currentSession(cmd *cobra.Command, config *Config, logger *zap.Logger) (*auth.Session, error) {
	path, err := config.sessionPath()
	if err != nil {
		return nil, err
	}

	session, err := auth.LoadSession(path)
	if err != nil {
		return nil, err
	}

	if !session.Expired() {
		return session, nil
	}

	anonKey, err := config.authAnonKey()
	if err != nil {
		return nil, err
	}

	client := auth.NewClient(config.authURL(), anonKey, logger)

	refreshed, err := client.Refresh(cmd.Context(), session.RefreshToken)
	if err != nil {
		return nil, err
	}

	if err := auth.SaveSession(path, refreshed); err != nil {
		logger.Warn("persisting refreshed session", zap.Error(err))
	}

	return refreshed, nil
}
