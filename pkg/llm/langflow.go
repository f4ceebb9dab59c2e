package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/teslashibe/voicegate/internal/httpc"
)

// Langflow runs a Langflow flow through /api/v1/run.
type Langflow struct {
	config   *Config
	logger   *slog.Logger
	endpoint string
}

// NewLangflow creates a Langflow provider. A named endpoint takes precedence
// over the flow id.
func NewLangflow(opts ...Option) (*Langflow, error) {
	cfg := DefaultConfig()
	cfg.BaseURL = "http://localhost:7860"
	cfg.Apply(opts...)

	if cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	target := cfg.Endpoint
	if target == "" {
		target = cfg.FlowID
	}
	if target == "" {
		return nil, ErrNoFlow
	}

	return &Langflow{
		config:   cfg,
		logger:   cfg.Logger.With("component", "llm.langflow"),
		endpoint: strings.TrimRight(cfg.BaseURL, "/") + "/api/v1/run/" + url.PathEscape(target),
	}, nil
}

// Name implements Provider.
func (l *Langflow) Name() string { return ProviderLangflow }

// Generate runs the flow with a chat input and extracts the chat output.
func (l *Langflow) Generate(ctx context.Context, req *Request) (string, error) {
	start := time.Now()

	payload := map[string]any{
		"input_value": req.Prompt,
		"output_type": "chat",
		"input_type":  "chat",
		"tweaks":      map[string]any{},
	}
	headers := map[string]string{"x-api-key": l.config.APIKey}

	var raw json.RawMessage
	if err := httpc.PostJSON(ctx, l.config.HTTPClient, l.endpoint, payload, headers, &raw); err != nil {
		return "", WrapError(ProviderLangflow, err)
	}

	text, err := extractLangflowText(raw)
	if err != nil {
		l.logger.Warn("unparseable response", "body", truncate(string(raw), 500))
		return "", WrapError(ProviderLangflow, err)
	}

	l.logger.Debug("generated", "chars", len(text), "latency_ms", time.Since(start).Milliseconds())
	return text, nil
}

// extractLangflowText tries the response shapes Langflow versions emit, in order:
//
//	outputs[0].outputs[0].results.message(.text)
//	outputs[0].results.message(.text)
//	outputs[0].message(.text)
//	message(.text)
//	text
func extractLangflowText(raw []byte) (string, error) {
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}

	if outputs, ok := data["outputs"].([]any); ok && len(outputs) > 0 {
		if first, ok := outputs[0].(map[string]any); ok {
			if nested, ok := first["outputs"].([]any); ok && len(nested) > 0 {
				if inner, ok := nested[0].(map[string]any); ok {
					if s, ok := messageText(dig(inner, "results", "message")); ok {
						return s, nil
					}
				}
			}
			if s, ok := messageText(dig(first, "results", "message")); ok {
				return s, nil
			}
			if s, ok := messageText(first["message"]); ok {
				return s, nil
			}
		}
	}

	if s, ok := messageText(data["message"]); ok {
		return s, nil
	}
	if s, ok := data["text"].(string); ok {
		return strings.TrimSpace(s), nil
	}
	return "", ErrUnrecognizedResponse
}

func dig(m map[string]any, keys ...string) any {
	var cur any = m
	for _, k := range keys {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = obj[k]
	}
	return cur
}

// messageText accepts either a bare string or an object with a text field.
func messageText(v any) (string, bool) {
	switch m := v.(type) {
	case string:
		return strings.TrimSpace(m), true
	case map[string]any:
		if s, ok := m["text"].(string); ok {
			return strings.TrimSpace(s), true
		}
	}
	return "", false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

var _ Provider = (*Langflow)(nil)
