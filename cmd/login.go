package cmd

import (
	"log"

	"github.com/atspilot/atspilot/internal/auth"
	"github.com/atspilot/atspilot/internal/logger"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Exchange a sign-in code for a session and store it locally",
	Run: func(cmd *cobra.Command, _ []string) {
		login(cmd)
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored session",
	Run: func(cmd *cobra.Command, _ []string) {
		logout(cmd)
	},
}

func init() {
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)

	loginCmd.Flags().String("code", "", "the one-time code from the sign-in redirect")
}

func login(cmd *cobra.Command) {
	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	code := cmd.Flag("code").Value.String()
	if code == "" {
		logger.Fatal("a sign-in code is required, pass --code")
	}

	anonKey, err := config.authAnonKey()
	if err != nil {
		logger.Fatal(
			"loading auth provider api key",
			zap.Error(err),
			zap.String("hint", "set ATSPILOT_AUTH_KEY_FILE environment variable or the 'auth.anon-key-file' key in the configuration file"),
		)
	}

	client := auth.NewClient(config.authURL(), anonKey, logger)
	if !client.Configured() {
		logger.Fatal("auth provider url is not configured", zap.String("hint", "set auth.url or ATSPILOT_AUTH_URL"))
	}

	session, err := client.ExchangeCode(cmd.Context(), code)
	if err != nil {
		logger.Fatal("exchanging the sign-in code", zap.Error(err))
	}

	path, err := config.sessionPath()
	if err != nil {
		logger.Fatal("resolving session path", zap.Error(err))
	}

	if err := auth.SaveSession(path, session); err != nil {
		logger.Fatal("persisting the session", zap.Error(err))
	}

	logger.Info("logged in", zap.String("email", session.User.Email))
}

func logout(_ *cobra.Command) {
	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	path, err := config.sessionPath()
	if err != nil {
		logger.Fatal("resolving session path", zap.Error(err))
	}

	if err := auth.ClearSession(path); err != nil {
		logger.Fatal("clearing the session", zap.Error(err))
	}

	logger.Info("logged out")
}
