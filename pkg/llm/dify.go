package llm

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/teslashibe/voicegate/internal/httpc"
)

// Dify calls a Dify chat application in blocking mode. Each call starts a
// new conversation.
type Dify struct {
	config  *Config
	logger  *slog.Logger
	baseURL string
}

// NewDify creates a Dify provider.
func NewDify(opts ...Option) (*Dify, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	if cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	if cfg.BaseURL == "" {
		return nil, ErrNoBaseURL
	}

	return &Dify{
		config:  cfg,
		logger:  cfg.Logger.With("component", "llm.dify"),
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
	}, nil
}

// Name implements Provider.
func (d *Dify) Name() string { return ProviderDify }

type difyRequest struct {
	Inputs         map[string]any `json:"inputs"`
	Query          string         `json:"query"`
	ResponseMode   string         `json:"response_mode"`
	User           string         `json:"user"`
	ConversationID string         `json:"conversation_id"`
}

type difyResponse struct {
	Answer         string `json:"answer"`
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id"`
}

// Generate posts to /v1/chat-messages and returns the answer.
func (d *Dify) Generate(ctx context.Context, req *Request) (string, error) {
	start := time.Now()

	payload := difyRequest{
		Inputs:       map[string]any{},
		Query:        req.Prompt,
		ResponseMode: "blocking",
		User:         req.Identity,
	}
	headers := map[string]string{"Authorization": "Bearer " + d.config.APIKey}

	var resp difyResponse
	if err := httpc.PostJSON(ctx, d.config.HTTPClient, d.baseURL+"/v1/chat-messages", payload, headers, &resp); err != nil {
		return "", WrapError(ProviderDify, err)
	}
	if strings.TrimSpace(resp.Answer) == "" {
		return "", WrapError(ProviderDify, ErrEmptyResponse)
	}

	d.logger.Debug("generated",
		"chars", len(resp.Answer),
		"message_id", resp.MessageID,
		"latency_ms", time.Since(start).Milliseconds())
	return resp.Answer, nil
}

var _ Provider = (*Dify)(nil)
