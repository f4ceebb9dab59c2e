package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/teslashibe/voicegate/internal/httpc"
	"github.com/teslashibe/voicegate/pkg/audio"
)

const providerWatson = "watson"

// Watson implements Provider for IBM Watson Speech to Text.
type Watson struct {
	config  *Config
	logger  *slog.Logger
	baseURL string
}

// NewWatson creates a Watson recognizer. BaseURL is the service instance URL.
func NewWatson(opts ...Option) (*Watson, error) {
	cfg := DefaultConfig()
	cfg.Model = "en-US_BroadbandModel"
	cfg.Apply(opts...)

	if cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	if cfg.BaseURL == "" {
		return nil, ErrNoBaseURL
	}

	return &Watson{
		config:  cfg,
		logger:  cfg.Logger.With("component", "stt.watson"),
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
	}, nil
}

// Name implements Provider.
func (w *Watson) Name() string { return providerWatson }

// Transcribe posts the WAV clip and joins the best alternative of each result.
func (w *Watson) Transcribe(ctx context.Context, clip *audio.Clip) (string, error) {
	endpoint := w.baseURL + "/v1/recognize?" + url.Values{"model": {w.config.Model}}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(clip.WAV))
	if err != nil {
		return "", WrapError(providerWatson, err)
	}
	req.SetBasicAuth("apikey", w.config.APIKey)
	req.Header.Set("Content-Type", "audio/wav")
	req.Header.Set("User-Agent", httpc.UserAgent)

	body, err := httpc.Read(w.config.HTTPClient, req)
	if err != nil {
		return "", WrapError(providerWatson, err)
	}

	var resp struct {
		Results []struct {
			Alternatives []struct {
				Transcript string `json:"transcript"`
			} `json:"alternatives"`
		} `json:"results"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", WrapError(providerWatson, fmt.Errorf("decode response: %w", err))
	}

	parts := make([]string, 0, len(resp.Results))
	for _, r := range resp.Results {
		if len(r.Alternatives) > 0 {
			parts = append(parts, strings.TrimSpace(r.Alternatives[0].Transcript))
		}
	}
	return strings.Join(parts, " "), nil
}

var _ Provider = (*Watson)(nil)
