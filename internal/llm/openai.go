package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"tagger-backend/internal/config"

	openai "github.com/openai/openai-go"
)

// OpenAIClient calls the OpenAI chat completion endpoint. The API key is read
// from OPENAI_API_KEY by the underlying client.
type OpenAIClient struct {
	client    openai.Client
	model     string
	temp      float64
	maxTokens int
}

func NewOpenAIClient(cfg config.LanguageConfig) *OpenAIClient {
	return &OpenAIClient{
		client:    openai.NewClient(),
		model:     cfg.Model,
		temp:      cfg.Temperature,
		maxTokens: cfg.MaxTokens,
	}
}

func (o *OpenAIClient) Invoke(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, invokeTimeout)
	defer cancel()

	chatReq := openai.ChatCompletionNewParams{
		Model:       o.model,
		Messages:    []openai.ChatCompletionMessageParamUnion{openai.UserMessage(prompt)},
		Temperature: openai.Float(o.temp),
	}
	if o.maxTokens > 0 {
		chatReq.MaxTokens = openai.Int(int64(o.maxTokens))
	}

	res, err := o.client.Chat.Completions.New(ctx, chatReq)
	if err != nil {
		slog.Error("openai error: chat completions failed", "model", o.model, "error", err)

		var apierr *openai.Error
		status := 0
		if errors.As(err, &apierr) {
			status = apierr.StatusCode
		}
		return "", &InvocationError{Provider: config.ProviderOpenAI, Model: o.model, StatusCode: status, Err: err}
	}

	if len(res.Choices) == 0 {
		return "", &InvocationError{Provider: config.ProviderOpenAI, Model: o.model, Err: fmt.Errorf("model returned no choices")}
	}

	return res.Choices[0].Message.Content, nil
}
