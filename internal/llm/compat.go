package llm

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"tagger-backend/internal/config"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// CompatClient talks to any OpenAI-compatible endpoint (vLLM, LM Studio,
// llama.cpp server) through langchaingo, pointed at the configured base URL.
type CompatClient struct {
	llm       *openai.LLM
	model     string
	temp      float64
	maxTokens int
}

func NewCompatClient(cfg config.LanguageConfig) (*CompatClient, error) {
	token := os.Getenv("OPENAI_API_KEY")
	if token == "" {
		// Self-hosted OpenAI-compatible servers accept any key.
		token = "unused"
	}

	client, err := openai.New(
		openai.WithToken(token),
		openai.WithModel(cfg.Model),
		openai.WithBaseURL(cfg.BaseURL),
	)
	if err != nil {
		return nil, fmt.Errorf("could not create OpenAI-compatible client: %v", err)
	}

	return &CompatClient{
		llm:       client,
		model:     cfg.Model,
		temp:      cfg.Temperature,
		maxTokens: cfg.MaxTokens,
	}, nil
}

func (c *CompatClient) Invoke(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, invokeTimeout)
	defer cancel()

	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}

	opts := []llms.CallOption{llms.WithTemperature(c.temp)}
	if c.maxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(c.maxTokens))
	}

	resp, err := c.llm.GenerateContent(ctx, messages, opts...)
	if err != nil {
		slog.Error("openai-compatible endpoint error", "model", c.model, "error", err)
		return "", &InvocationError{Provider: config.ProviderCompat, Model: c.model, Err: err}
	}

	if len(resp.Choices) == 0 {
		return "", &InvocationError{Provider: config.ProviderCompat, Model: c.model, Err: fmt.Errorf("model returned no choices")}
	}

	return resp.Choices[0].Content, nil
}
