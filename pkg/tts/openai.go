package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/teslashibe/voicegate/pkg/audio"
)

const (
	openAITTSURL   = "https://api.openai.com/v1/audio/speech"
	providerOpenAI = "openai"

	// openAIPCMRate is fixed by the API for response_format=pcm.
	openAIPCMRate = 24000
)

// Defaults for the speech endpoint.
const (
	// VoiceShimmer is the default voice.
	VoiceShimmer = "shimmer"

	// ModelTTS1 is the standard, lower-latency speech model.
	ModelTTS1 = "tts-1"
)

// OpenAI calls /v1/audio/speech with response_format=pcm.
type OpenAI struct {
	config  *Config
	logger  *slog.Logger
	baseURL string
}

// NewOpenAI creates an OpenAI TTS provider. It requires an API key.
func NewOpenAI(opts ...Option) (*OpenAI, error) {
	cfg := DefaultConfig()
	cfg.ModelID = ModelTTS1
	cfg.VoiceID = VoiceShimmer
	cfg.Apply(opts...)

	if err := cfg.Validate(false); err != nil {
		return nil, err
	}
	if cfg.VoiceID == "" {
		cfg.VoiceID = VoiceShimmer
	}
	if cfg.ModelID == "" {
		cfg.ModelID = ModelTTS1
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = openAITTSURL
	}

	return &OpenAI{
		config:  cfg,
		logger:  cfg.Logger.With("component", "tts.openai"),
		baseURL: baseURL,
	}, nil
}

// Name implements Provider.
func (o *OpenAI) Name() string { return providerOpenAI }

// Synthesize converts text to 24kHz PCM16.
func (o *OpenAI) Synthesize(ctx context.Context, text string) (*AudioResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, WrapError(providerOpenAI, ErrEmptyText)
	}
	start := time.Now()

	body, err := json.Marshal(openAISpeechRequest{
		Model:  o.config.ModelID,
		Voice:  o.config.VoiceID,
		Input:  text,
		Format: "pcm",
	})
	if err != nil {
		return nil, WrapError(providerOpenAI, fmt.Errorf("marshal payload: %w", err))
	}

	pcm, err := doWithRetry(ctx, o.config, o.logger, providerOpenAI, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+o.config.APIKey)
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		return nil, err
	}
	if len(pcm) == 0 {
		return nil, WrapError(providerOpenAI, ErrEmptyAudio)
	}

	latency := time.Since(start).Milliseconds()
	o.logger.Debug("synthesized", "chars", len(text), "bytes", len(pcm), "latency_ms", latency)

	return &AudioResult{
		Audio:     pcm,
		Format:    audio.Format{Encoding: audio.EncodingPCM16, SampleRate: openAIPCMRate, Channels: 1},
		Duration:  pcmDuration(len(pcm), openAIPCMRate),
		CharCount: len(text),
		LatencyMs: latency,
	}, nil
}

// openAISpeechRequest is the body of /v1/audio/speech.
type openAISpeechRequest struct {
	Model  string `json:"model"`
	Voice  string `json:"voice"`
	Input  string `json:"input"`
	Format string `json:"response_format"`
}

// Verify OpenAI implements Provider at compile time.
var _ Provider = (*OpenAI)(nil)
