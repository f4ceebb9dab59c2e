package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/teslashibe/voicegate/internal/httpc"
)

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// OpenAI is a chat provider for any OpenAI-compatible API
// (OpenAI, Ollama, vLLM, Groq, ...).
type OpenAI struct {
	config  *Config
	logger  *slog.Logger
	baseURL string
}

// NewOpenAI creates a chat provider. The API key is optional so local
// servers work; the hosted OpenAI endpoint requires one.
func NewOpenAI(opts ...Option) (*OpenAI, error) {
	cfg := DefaultConfig()
	cfg.BaseURL = defaultOpenAIBaseURL
	cfg.Model = "gpt-4o-mini"
	cfg.Apply(opts...)

	if cfg.APIKey == "" && strings.HasPrefix(cfg.BaseURL, defaultOpenAIBaseURL) {
		return nil, ErrNoAPIKey
	}

	return &OpenAI{
		config:  cfg,
		logger:  cfg.Logger.With("component", "llm.openai"),
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
	}, nil
}

// Name implements Provider.
func (o *OpenAI) Name() string { return ProviderOpenAI }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
	User        string        `json:"user,omitempty"`
}

type chatCompletionResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// Generate sends a single-turn chat completion.
func (o *OpenAI) Generate(ctx context.Context, req *Request) (string, error) {
	start := time.Now()

	messages := make([]chatMessage, 0, 2)
	if o.config.SystemPrompt != "" {
		messages = append(messages, chatMessage{Role: "system", Content: o.config.SystemPrompt})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.Prompt})

	payload := chatCompletionRequest{
		Model:       o.config.Model,
		Messages:    messages,
		MaxTokens:   o.config.MaxTokens,
		Temperature: o.config.Temperature,
		User:        req.Identity,
	}

	headers := map[string]string{}
	if o.config.APIKey != "" {
		headers["Authorization"] = "Bearer " + o.config.APIKey
	}

	var result chatCompletionResponse
	if err := httpc.PostJSON(ctx, o.config.HTTPClient, o.baseURL+"/chat/completions", payload, headers, &result); err != nil {
		return "", WrapError(ProviderOpenAI, err)
	}
	if len(result.Choices) == 0 {
		return "", WrapError(ProviderOpenAI, fmt.Errorf("no choices returned"))
	}

	content := result.Choices[0].Message.Content
	o.logger.Debug("generated",
		"model", result.Model,
		"finish_reason", result.Choices[0].FinishReason,
		"total_tokens", result.Usage.TotalTokens,
		"latency_ms", time.Since(start).Milliseconds())
	return content, nil
}

var _ Provider = (*OpenAI)(nil)
