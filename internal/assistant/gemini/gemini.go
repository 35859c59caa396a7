// Package gemini implements the assistant responder on top of the Gemini
// API.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/atspilot/atspilot/internal/assistant"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

const (
	defaultModel = "gemini-2.5-flash"

	// Only the tail of long conversations is sent along.
	maxHistoryTurns = 20
)

const systemPreamble = `You are a job-search assistant. The user is working on
their resume, ATS scores, and job applications. Answer concisely and stay on
the topics of jobs, skills, resumes, and interviews.`

type Responder struct {
	client    *genai.Client
	modelName string
	logger    *zap.Logger
}

// New creates a Gemini-backed responder.
func New(ctx context.Context, apiKey, model string, logger *zap.Logger) (*Responder, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	if model = strings.TrimSpace(model); model == "" {
		model = defaultModel
	}

	return &Responder{client: client, modelName: model, logger: logger}, nil
}

func (r *Responder) Model() string {
	return r.modelName
}

func (r *Responder) Reply(ctx context.Context, history []assistant.Message, input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", errors.New("message must not be empty")
	}

	prompt := buildPrompt(history, input)

	r.logger.Debug("assistant request",
		zap.String("model", r.modelName),
		zap.Int("history_turns", len(history)),
	)

	resp, err := r.client.Models.GenerateContent(ctx, r.modelName, genai.Text(prompt), nil)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}

	var builder strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil {
				continue
			}
			text := strings.TrimSpace(part.Text)
			if text == "" {
				continue
			}
			if builder.Len() > 0 {
				builder.WriteString("\n")
			}
			builder.WriteString(text)
		}
	}

	output := strings.TrimSpace(builder.String())
	if output == "" {
		return "", errors.New("gemini api returned empty response")
	}

	return output, nil
}

func buildPrompt(history []assistant.Message, input string) string {
	var b strings.Builder

	b.WriteString(systemPreamble)
	b.WriteString("\n\n")

	if len(history) > maxHistoryTurns {
		history = history[len(history)-maxHistoryTurns:]
	}

	for _, msg := range history {
		text := strings.TrimSpace(msg.Text)
		if text == "" {
			continue
		}

		fmt.Fprintf(&b, "%s: %s\n", msg.Role, text)
	}

	fmt.Fprintf(&b, "%s: %s\n%s:", assistant.RoleUser, input, assistant.RoleAssistant)

	return b.String()
}
