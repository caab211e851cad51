package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"tagger-backend/internal/config"

	"github.com/go-resty/resty/v2"
)

// OllamaClient calls a local ollama server through its native generate API.
type OllamaClient struct {
	client    *resty.Client
	model     string
	temp      float64
	maxTokens int
}

func NewOllamaClient(cfg config.LanguageConfig) *OllamaClient {
	return &OllamaClient{
		client:    resty.New().SetBaseURL(cfg.BaseURL),
		model:     cfg.Model,
		temp:      cfg.Temperature,
		maxTokens: cfg.MaxTokens,
	}
}

type ollamaGenerateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
}

func (o *OllamaClient) Invoke(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, invokeTimeout)
	defer cancel()

	options := map[string]any{"temperature": o.temp}
	if o.maxTokens > 0 {
		options["num_predict"] = o.maxTokens
	}

	res, err := o.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(ollamaGenerateRequest{Model: o.model, Prompt: prompt, Stream: false, Options: options}).
		Post("/api/generate")

	if err != nil {
		slog.Error("unable to reach ollama", "model", o.model, "error", err)
		return "", &InvocationError{Provider: config.ProviderOllama, Model: o.model, Err: err}
	}

	if !res.IsSuccess() {
		slog.Error("ollama returned error", "model", o.model, "status_code", res.StatusCode(), "body", res.String())
		return "", &InvocationError{
			Provider:   config.ProviderOllama,
			Model:      o.model,
			StatusCode: res.StatusCode(),
			Err:        fmt.Errorf("unexpected response from ollama: %s", res.String()),
		}
	}

	var reply ollamaGenerateResponse
	if err := json.Unmarshal(res.Body(), &reply); err != nil {
		slog.Error("error parsing response from ollama", "model", o.model, "error", err)
		return "", &InvocationError{Provider: config.ProviderOllama, Model: o.model, Err: fmt.Errorf("error parsing ollama response: %w", err)}
	}

	return reply.Response, nil
}
