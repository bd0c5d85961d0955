// Package openai implements the interpretation provider on any
// OpenAI-compatible chat completion endpoint, including DeepSeek-style
// deployments behind a custom base URL.
package openai

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	goopenai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/talentroute/assessd/internal/ai"
	"github.com/talentroute/assessd/internal/scoring"
)

const (
	providerName = "openai"
	defaultModel = "gpt-4o-mini"
)

type chatCompleter interface {
	CreateChatCompletion(ctx context.Context, req goopenai.ChatCompletionRequest) (goopenai.ChatCompletionResponse, error)
}

// Interpreter calls a chat completion endpoint to interpret score profiles.
type Interpreter struct {
	client chatCompleter
	model  string
	logger *zap.Logger
}

// New creates an interpreter. baseURL overrides the default OpenAI endpoint
// for compatible providers.
func New(apiKey, baseURL, model string, logger *zap.Logger) (*Interpreter, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("openai api key is required")
	}

	config := goopenai.DefaultConfig(apiKey)
	if baseURL = strings.TrimSpace(baseURL); baseURL != "" {
		config.BaseURL = baseURL
	}

	if model = strings.TrimSpace(model); model == "" {
		model = defaultModel
	}

	return &Interpreter{
		client: goopenai.NewClientWithConfig(config),
		model:  model,
		logger: logger,
	}, nil
}

// Model returns the configured model name.
func (i *Interpreter) Model() string { return i.model }

func (i *Interpreter) Interpret(ctx context.Context, profile *scoring.Profile) (*ai.Interpretation, error) {
	system, message, err := ai.BuildPrompt(profile)
	if err != nil {
		return nil, &ai.ProviderError{Provider: providerName, Err: err}
	}

	i.logger.Debug("openai interpretation request",
		zap.String("instrument_id", profile.InstrumentID),
		zap.String("model", i.model),
	)

	resp, err := i.client.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model: i.model,
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleSystem, Content: system},
			{Role: goopenai.ChatMessageRoleUser, Content: message},
		},
	})
	if err != nil {
		return nil, &ai.ProviderError{
			Provider:  providerName,
			Err:       err,
			Transient: isTemporary(err),
		}
	}

	if len(resp.Choices) == 0 {
		return nil, &ai.ProviderError{
			Provider: providerName,
			Err:      errors.New("chat completion returned no choices"),
		}
	}

	interpretation := ai.ParseInterpretation(resp.Choices[0].Message.Content)
	interpretation.Provider = providerName + "/" + i.model
	interpretation.GeneratedAt = time.Now().UTC()
	return interpretation, nil
}

func isTemporary(err error) bool {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests ||
			apiErr.HTTPStatusCode >= http.StatusInternalServerError
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode >= http.StatusInternalServerError
	}
	return false
}
