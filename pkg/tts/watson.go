package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/teslashibe/voicegate/pkg/audio"
)

const providerWatson = "watson"

// Watson implements Provider for IBM Watson Text to Speech.
// BaseURL is the service instance URL; the API key is sent with basic auth.
type Watson struct {
	config  *Config
	logger  *slog.Logger
	baseURL string
}

// NewWatson creates a Watson TTS provider.
func NewWatson(opts ...Option) (*Watson, error) {
	cfg := DefaultConfig()
	cfg.VoiceID = "en-US_AllisonV3Voice"
	cfg.Apply(opts...)

	if err := cfg.Validate(false); err != nil {
		return nil, err
	}
	if cfg.BaseURL == "" {
		return nil, ErrNoBaseURL
	}

	return &Watson{
		config:  cfg,
		logger:  cfg.Logger.With("component", "tts.watson"),
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
	}, nil
}

// Name implements Provider.
func (w *Watson) Name() string { return providerWatson }

// Synthesize requests audio/wav from the service.
func (w *Watson) Synthesize(ctx context.Context, text string) (*AudioResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, WrapError(providerWatson, ErrEmptyText)
	}
	start := time.Now()

	endpoint := w.baseURL + "/v1/synthesize?" + url.Values{"voice": {w.config.VoiceID}}.Encode()
	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return nil, WrapError(providerWatson, fmt.Errorf("marshal payload: %w", err))
	}

	wav, err := doWithRetry(ctx, w.config, w.logger, providerWatson, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.SetBasicAuth("apikey", w.config.APIKey)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "audio/wav")
		return req, nil
	})
	if err != nil {
		return nil, err
	}

	pcm, format, err := audio.DecodeWAV(wav)
	if err != nil {
		return nil, WrapError(providerWatson, fmt.Errorf("decode wav: %w", err))
	}
	if len(pcm) == 0 {
		return nil, WrapError(providerWatson, ErrEmptyAudio)
	}

	latency := time.Since(start).Milliseconds()
	w.logger.Debug("synthesized audio", "chars", len(text), "bytes", len(wav), "latency_ms", latency)

	return &AudioResult{
		Audio:     wav,
		Format:    audio.Format{Encoding: audio.EncodingWAV, SampleRate: format.SampleRate, Channels: format.Channels},
		Duration:  pcmDuration(len(pcm)/max(format.Channels, 1), format.SampleRate),
		CharCount: len(text),
		LatencyMs: latency,
	}, nil
}

var _ Provider = (*Watson)(nil)
