package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strings"

	"github.com/Lllllllleong/adt1extractor/internal/failure"
	openai "github.com/sashabaranov/go-openai"
)

const (
	// GeminiBaseURL is Google's OpenAI-compatible endpoint for the Gemini API.
	GeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai"
	DefaultModel  = "gemini-2.0-flash"

	DefaultTemperature float32 = 0.2
)

// OpenAIConfig holds settings for an OpenAI-compatible chat endpoint.
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	HTTPClient  *http.Client
}

// OpenAIClient runs prompts through the chat completions API.
type OpenAIClient struct {
	api         *openai.Client
	model       string
	temperature float32
}

// NewOpenAIClient validates cfg and builds a client. It makes no network call.
func NewOpenAIClient(cfg OpenAIConfig) (*OpenAIClient, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("llm: %w: API key is required", failure.ErrConfiguration)
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = GeminiBaseURL
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultModel
	}
	// go-openai omits a zero temperature from the request and the server
	// then applies its own default, so 0 is sent as the smallest positive value.
	temp := cfg.Temperature
	if temp <= 0 {
		temp = math.SmallestNonzeroFloat32
	}

	openaiCfg := openai.DefaultConfig(apiKey)
	openaiCfg.BaseURL = baseURL
	if cfg.HTTPClient != nil {
		openaiCfg.HTTPClient = cfg.HTTPClient
	}

	return &OpenAIClient{
		api:         openai.NewClientWithConfig(openaiCfg),
		model:       model,
		temperature: temp,
	}, nil
}

// Complete sends a single system+user exchange and returns the first choice.
func (c *OpenAIClient) Complete(ctx context.Context, p Prompt) (string, error) {
	logCtx := slog.With("prompt", p.Name, "model", c.model)

	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if p.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: p.System})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: p.User})

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: c.temperature,
	})
	if err != nil {
		logCtx.Error("Chat completion failed.", "error", err)
		return "", classifyOpenAIError(p.Name, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("llm %s: %w: empty response", p.Name, failure.ErrRemoteService)
	}

	logCtx.Debug("Chat completion received.", "finishReason", resp.Choices[0].FinishReason, "totalTokens", resp.Usage.TotalTokens)
	return resp.Choices[0].Message.Content, nil
}

func classifyOpenAIError(name string, err error) error {
	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return fmt.Errorf("llm %s: %w: %v", name, failure.ErrAuthentication, err)
	}
	return fmt.Errorf("llm %s: %w: %v", name, failure.ErrRemoteService, err)
}
