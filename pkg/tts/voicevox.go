package tts

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/teslashibe/voicegate/pkg/audio"
)

const (
	voicevoxBaseURL  = "http://localhost:50021"
	providerVoicevox = "voicevox"
)

// Voicevox synthesizes with a local VOICEVOX engine. The engine needs no
// credentials; VoiceID holds the numeric speaker id.
type Voicevox struct {
	config  *Config
	logger  *slog.Logger
	baseURL string
	speaker int
}

// NewVoicevox creates a VOICEVOX provider. The speaker defaults to 1.
func NewVoicevox(opts ...Option) (*Voicevox, error) {
	cfg := DefaultConfig()
	cfg.VoiceID = "1"
	cfg.Apply(opts...)

	speaker, err := strconv.Atoi(cfg.VoiceID)
	if err != nil {
		return nil, fmt.Errorf("tts: voicevox speaker must be numeric: %q", cfg.VoiceID)
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = voicevoxBaseURL
	}

	return &Voicevox{
		config:  cfg,
		logger:  cfg.Logger.With("component", "tts.voicevox"),
		baseURL: strings.TrimRight(baseURL, "/"),
		speaker: speaker,
	}, nil
}

// Name implements Provider.
func (v *Voicevox) Name() string { return providerVoicevox }

// Synthesize runs the two-step audio_query then synthesis exchange and
// returns the engine's WAV output.
func (v *Voicevox) Synthesize(ctx context.Context, text string) (*AudioResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, WrapError(providerVoicevox, ErrEmptyText)
	}
	start := time.Now()
	speaker := strconv.Itoa(v.speaker)

	queryURL := v.baseURL + "/audio_query?" + url.Values{"text": {text}, "speaker": {speaker}}.Encode()
	query, err := doWithRetry(ctx, v.config, v.logger, providerVoicevox, func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodPost, queryURL, nil)
	})
	if err != nil {
		return nil, err
	}

	synthURL := v.baseURL + "/synthesis?" + url.Values{"speaker": {speaker}}.Encode()
	wav, err := doWithRetry(ctx, v.config, v.logger, providerVoicevox, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, synthURL, bytes.NewReader(query))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "audio/wav")
		return req, nil
	})
	if err != nil {
		return nil, err
	}

	pcm, format, err := audio.DecodeWAV(wav)
	if err != nil {
		return nil, WrapError(providerVoicevox, fmt.Errorf("decode wav: %w", err))
	}
	if len(pcm) == 0 {
		return nil, WrapError(providerVoicevox, ErrEmptyAudio)
	}

	latency := time.Since(start).Milliseconds()
	v.logger.Debug("synthesized audio", "chars", len(text), "bytes", len(wav), "latency_ms", latency, "speaker", v.speaker)

	return &AudioResult{
		Audio:     wav,
		Format:    audio.Format{Encoding: audio.EncodingWAV, SampleRate: format.SampleRate, Channels: format.Channels},
		Duration:  pcmDuration(len(pcm)/max(format.Channels, 1), format.SampleRate),
		CharCount: len(text),
		LatencyMs: latency,
	}, nil
}

var _ Provider = (*Voicevox)(nil)
