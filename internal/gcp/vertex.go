package gcp

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"cloud.google.com/go/vertexai/genai"
	"github.com/Lllllllleong/adt1extractor/internal/failure"
	"github.com/Lllllllleong/adt1extractor/internal/llm"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// VertexConfig holds settings for the Vertex AI backend.
type VertexConfig struct {
	ProjectID       string
	Region          string
	Model           string
	Temperature     float32
	CredentialsFile string
}

// VertexCompleter runs prompts against a Gemini model on Vertex AI.
// Authentication uses Application Default Credentials unless CredentialsFile is set.
type VertexCompleter struct {
	baseClient  *genai.Client
	model       string
	temperature float32
}

var _ llm.Completer = (*VertexCompleter)(nil)

// NewVertexCompleter creates the underlying genai client.
func NewVertexCompleter(ctx context.Context, cfg VertexConfig) (*VertexCompleter, error) {
	if cfg.ProjectID == "" || cfg.Region == "" {
		return nil, fmt.Errorf("NewVertexCompleter: %w: projectID and region cannot be empty", failure.ErrConfiguration)
	}
	model := cfg.Model
	if model == "" {
		model = llm.DefaultModel
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	baseClient, err := genai.NewClient(ctx, cfg.ProjectID, cfg.Region, opts...)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", classifyVertexError(err))
	}

	return &VertexCompleter{
		baseClient:  baseClient,
		model:       model,
		temperature: cfg.Temperature,
	}, nil
}

// Complete configures a model with the prompt's system instruction and sends the user message.
func (c *VertexCompleter) Complete(ctx context.Context, p llm.Prompt) (string, error) {
	logCtx := slog.With("prompt", p.Name, "model", c.model)

	model := c.baseClient.GenerativeModel(c.model)
	if p.System != "" {
		model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(p.System)},
		}
	}
	model.GenerationConfig.Temperature = genai.Ptr(c.temperature)

	resp, err := model.GenerateContent(ctx, genai.Text(p.User))
	if err != nil {
		logCtx.Error("Call to Vertex AI failed.", "error", err)
		return "", fmt.Errorf("llm %s: %w", p.Name, classifyVertexError(err))
	}

	text, ok := responseText(resp)
	if !ok {
		return "", fmt.Errorf("llm %s: %w: gemini returned no candidates", p.Name, failure.ErrRemoteService)
	}
	return text, nil
}

// Close releases the genai client.
func (c *VertexCompleter) Close() error {
	if c.baseClient != nil {
		return c.baseClient.Close()
	}
	return nil
}

// responseText concatenates the text parts of the first candidate.
func responseText(resp *genai.GenerateContentResponse) (string, bool) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", false
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			b.WriteString(string(txt))
		}
	}
	return b.String(), true
}

func classifyVertexError(err error) error {
	switch status.Code(err) {
	case codes.Unauthenticated, codes.PermissionDenied:
		return fmt.Errorf("%w: %v", failure.ErrAuthentication, err)
	default:
		return fmt.Errorf("%w: %v", failure.ErrRemoteService, err)
	}
}
