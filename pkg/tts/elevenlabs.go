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

const (
	elevenLabsBaseURL  = "https://api.elevenlabs.io/v1"
	providerElevenLabs = "elevenlabs"
)

// ModelFlashV2_5 is the low-latency multilingual model.
const ModelFlashV2_5 = "eleven_flash_v2_5"

// ElevenLabs synthesizes through the text-to-speech endpoint as raw PCM.
type ElevenLabs struct {
	config  *Config
	logger  *slog.Logger
	baseURL string
}

// NewElevenLabs requires an API key and a voice. Unsupported sample rates
// fall back to 24kHz.
func NewElevenLabs(opts ...Option) (*ElevenLabs, error) {
	cfg := DefaultConfig()
	cfg.ModelID = ModelFlashV2_5
	cfg.Apply(opts...)

	if err := cfg.Validate(true); err != nil {
		return nil, err
	}
	switch cfg.SampleRate {
	case 16000, 22050, 24000, 44100:
	default:
		cfg.SampleRate = 24000
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = elevenLabsBaseURL
	}

	return &ElevenLabs{
		config:  cfg,
		logger:  cfg.Logger.With("component", "tts.elevenlabs"),
		baseURL: strings.TrimRight(baseURL, "/"),
	}, nil
}

// Name implements Provider.
func (e *ElevenLabs) Name() string { return providerElevenLabs }

// Synthesize converts text to raw PCM16 at the configured rate.
func (e *ElevenLabs) Synthesize(ctx context.Context, text string) (*AudioResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, WrapError(providerElevenLabs, ErrEmptyText)
	}
	start := time.Now()

	endpoint := fmt.Sprintf("%s/text-to-speech/%s?%s", e.baseURL, url.PathEscape(e.config.VoiceID),
		url.Values{"output_format": {e.outputFormat()}}.Encode())

	body, err := json.Marshal(elevenLabsRequest{Text: text, ModelID: e.config.ModelID, Voice: e.config.Voice})
	if err != nil {
		return nil, WrapError(providerElevenLabs, fmt.Errorf("marshal payload: %w", err))
	}

	pcm, err := doWithRetry(ctx, e.config, e.logger, providerElevenLabs, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("xi-api-key", e.config.APIKey)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "audio/pcm")
		return req, nil
	})
	if err != nil {
		return nil, err
	}
	if len(pcm) == 0 {
		return nil, WrapError(providerElevenLabs, ErrEmptyAudio)
	}

	latency := time.Since(start).Milliseconds()
	e.logger.Debug("synthesized", "chars", len(text), "bytes", len(pcm), "latency_ms", latency)

	return &AudioResult{
		Audio:     pcm,
		Format:    audio.Format{Encoding: audio.EncodingPCM16, SampleRate: e.config.SampleRate, Channels: 1},
		Duration:  pcmDuration(len(pcm), e.config.SampleRate),
		CharCount: len(text),
		LatencyMs: latency,
	}, nil
}

// elevenLabsRequest is the body of /text-to-speech/{voice}.
type elevenLabsRequest struct {
	Text    string        `json:"text"`
	ModelID string        `json:"model_id"`
	Voice   VoiceSettings `json:"voice_settings"`
}

func (e *ElevenLabs) outputFormat() string {
	return fmt.Sprintf("pcm_%d", e.config.SampleRate)
}

// Verify ElevenLabs implements Provider at compile time.
var _ Provider = (*ElevenLabs)(nil)
