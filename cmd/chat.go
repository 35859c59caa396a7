package cmd

import (
	"bufio"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/atspilot/atspilot/internal/assistant"
	"github.com/atspilot/atspilot/internal/assistant/gemini"
	"github.com/atspilot/atspilot/internal/logger"
	"github.com/atspilot/atspilot/internal/secrets"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Talk to the job-search assistant",
	Run: func(cmd *cobra.Command, _ []string) {
		chat(cmd)
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
}

func chat(cmd *cobra.Command) {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	responder, err := newResponder(cmd, config, logger)
	if err != nil {
		logger.Fatal("building the assistant", zap.Error(err))
	}

	conversation := assistant.NewConversation()

	logger.Info("chat started", zap.String("hint", "type your question, or 'exit' to leave"))

	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("you> ")

		if !scanner.Scan() {
			break
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}

		if input == "exit" || input == "quit" {
			break
		}

		reply, err := responder.Reply(ctx, conversation.Messages, input)
		if err != nil {
			if ctx.Err() != nil {
				break
			}

			logger.Error("assistant failed", zap.Error(err))
			continue
		}

		conversation.Append(assistant.RoleUser, input)
		conversation.Append(assistant.RoleAssistant, reply)

		fmt.Printf("assistant> %s\n", reply)
	}

	logger.Info("chat finished", zap.Int("messages", len(conversation.Messages)))
}

// newResponder picks the assistant backend: gemini when configured and
// enabled, the canned responder otherwise.
func newResponder(cmd *cobra.Command, config *Config, logger *zap.Logger) (assistant.Responder, error) {
	ai := config.AI
	if ai == nil || !ai.Enabled {
		return assistant.NewCanned(), nil
	}

	provider := strings.TrimSpace(strings.ToLower(ai.Provider))
	if provider != "" && provider != "gemini" {
		return nil, fmt.Errorf("unsupported ai provider: %s", ai.Provider)
	}

	if ai.Gemini == nil {
		return nil, fmt.Errorf("gemini configuration is required when the assistant is enabled")
	}

	apiKey, err := secrets.Load(secrets.Source{
		Name:  "gemini api key",
		Value: ai.Gemini.APIKey,
		File:  ai.Gemini.APIKeyFile,
	})
	if err != nil {
		return nil, fmt.Errorf("%w (set ai.gemini.api-key-file)", err)
	}

	return gemini.New(cmd.Context(), apiKey, ai.Gemini.Model, logger)
}
