package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/STRATINT/echoloop/internal/apperrors"
	"github.com/STRATINT/echoloop/internal/inference"
)

const serviceName = "openai"

// ErrInvalidCredentials means the generation API key is missing or rejected.
var ErrInvalidCredentials = errors.New("generation credentials missing or rejected")

// Request is a single chat completion call.
type Request struct {
	Operation string
	System    string
	User      string
	MaxTokens int
	JSON      bool
}

// TextGenerator produces raw model output for a request.
type TextGenerator interface {
	GenerateText(ctx context.Context, req Request) (string, error)
	CheckCredentials(ctx context.Context) error
}

// OpenAIConfig holds configuration for OpenAI API usage.
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	Timeout     time.Duration
	Retry       RetryPolicy
}

// OpenAIGenerator calls the OpenAI chat completions API.
type OpenAIGenerator struct {
	client          *openai.Client
	config          OpenAIConfig
	logger          *slog.Logger
	inferenceLogger *inference.Logger
}

// NewOpenAIGenerator creates a generator. inferenceLogger may be nil.
func NewOpenAIGenerator(cfg OpenAIConfig, logger *slog.Logger, inferenceLogger *inference.Logger) *OpenAIGenerator {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}

	return &OpenAIGenerator{
		client:          openai.NewClientWithConfig(clientCfg),
		config:          cfg,
		logger:          logger,
		inferenceLogger: inferenceLogger,
	}
}

// GenerateText runs one chat completion, retrying rate limits and upstream
// failures according to the configured policy.
func (g *OpenAIGenerator) GenerateText(ctx context.Context, req Request) (string, error) {
	request := g.buildRequest(req)

	var content string
	err := Retry(ctx, g.config.Retry, func() error {
		apiCtx, cancel := context.WithTimeout(ctx, g.config.Timeout)
		defer cancel()

		start := time.Now()
		resp, err := g.client.CreateChatCompletion(apiCtx, request)
		latency := time.Since(start)

		var usage inference.Usage
		if err == nil {
			usage = inference.Usage{
				PromptTokens:     resp.Usage.PromptTokens,
				CompletionTokens: resp.Usage.CompletionTokens,
				TotalTokens:      resp.Usage.TotalTokens,
			}
		}
		g.inferenceLogger.Record(ctx, inference.Call{
			Model:     g.config.Model,
			Operation: req.Operation,
			Usage:     usage,
			Latency:   latency,
			Err:       err,
			Metadata: map[string]interface{}{
				"temperature": g.config.Temperature,
				"max_tokens":  req.MaxTokens,
			},
		})

		if err != nil {
			g.logger.Warn("openai call failed", "operation", req.Operation, "error", err)
			return classifyOpenAIError(err)
		}
		if len(resp.Choices) == 0 {
			return errors.New("no response from openai")
		}

		content = resp.Choices[0].Message.Content
		g.logger.Debug("openai generate text response",
			"operation", req.Operation,
			"model", g.config.Model,
			"content_length", len(content),
			"finish_reason", resp.Choices[0].FinishReason,
			"latency_ms", latency.Milliseconds())
		return nil
	})
	if err != nil {
		return "", apperrors.Transport(serviceName, req.Operation, statusOf(err), err)
	}
	return content, nil
}

func (g *OpenAIGenerator) buildRequest(req Request) openai.ChatCompletionRequest {
	model := strings.ToLower(g.config.Model)
	isReasoningModel := strings.HasPrefix(model, "o1") ||
		strings.HasPrefix(model, "o3") ||
		strings.HasPrefix(model, "o4") ||
		strings.HasPrefix(model, "gpt-5")

	if isReasoningModel {
		// Reasoning models reject temperature, system messages and JSON mode.
		return openai.ChatCompletionRequest{
			Model:               g.config.Model,
			MaxCompletionTokens: req.MaxTokens,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleUser, Content: req.System + "\n\n" + req.User},
			},
		}
	}

	request := openai.ChatCompletionRequest{
		Model:               g.config.Model,
		Temperature:         g.config.Temperature,
		MaxCompletionTokens: req.MaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.System},
			{Role: openai.ChatMessageRoleUser, Content: req.User},
		},
	}
	if req.JSON {
		request.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}
	return request
}

// CheckCredentials verifies the API key by listing models. A missing or
// rejected key yields ErrInvalidCredentials; anything else is a TransportError.
func (g *OpenAIGenerator) CheckCredentials(ctx context.Context) error {
	if strings.TrimSpace(g.config.APIKey) == "" {
		return ErrInvalidCredentials
	}

	apiCtx, cancel := context.WithTimeout(ctx, g.config.Timeout)
	defer cancel()

	if _, err := g.client.ListModels(apiCtx); err != nil {
		status := statusOf(err)
		if status == http.StatusUnauthorized || status == http.StatusForbidden {
			return fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
		}
		return apperrors.Transport(serviceName, "list models", status, err)
	}
	return nil
}

func statusOf(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}
