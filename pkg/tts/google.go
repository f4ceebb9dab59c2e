package tts

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"google.golang.org/api/option"
	texttospeech "google.golang.org/api/texttospeech/v1"

	"github.com/teslashibe/voicegate/internal/gcp"
	"github.com/teslashibe/voicegate/pkg/audio"
)

const providerGoogle = "google"

// Google implements Provider for Google Cloud Text-to-Speech. It authenticates
// with an API key, a service-account file or application default credentials.
type Google struct {
	config *Config
	logger *slog.Logger

	mu  sync.Mutex
	svc *texttospeech.Service
}

// NewGoogle creates a Google TTS provider. The service is created lazily.
func NewGoogle(opts ...Option) (*Google, error) {
	cfg := DefaultConfig()
	cfg.LanguageCode = "en-US"
	cfg.Apply(opts...)

	return &Google{config: cfg, logger: cfg.Logger.With("component", "tts.google")}, nil
}

// Name implements Provider.
func (g *Google) Name() string { return providerGoogle }

// Synthesize requests LINEAR16, which the API returns as a WAV file.
func (g *Google) Synthesize(ctx context.Context, text string) (*AudioResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, WrapError(providerGoogle, ErrEmptyText)
	}
	svc, err := g.service()
	if err != nil {
		return nil, WrapError(providerGoogle, err)
	}
	start := time.Now()

	req := &texttospeech.SynthesizeSpeechRequest{
		Input: &texttospeech.SynthesisInput{Text: text},
		Voice: &texttospeech.VoiceSelectionParams{
			LanguageCode: g.config.LanguageCode,
			Name:         g.config.VoiceID,
		},
		AudioConfig: &texttospeech.AudioConfig{
			AudioEncoding:   "LINEAR16",
			SampleRateHertz: int64(g.config.SampleRate),
		},
	}

	resp, err := svc.Text.Synthesize(req).Context(ctx).Do()
	if err != nil {
		return nil, WrapError(providerGoogle, err)
	}

	wav, err := base64.StdEncoding.DecodeString(resp.AudioContent)
	if err != nil {
		return nil, WrapError(providerGoogle, fmt.Errorf("decode audio content: %w", err))
	}
	pcm, format, err := audio.DecodeWAV(wav)
	if err != nil {
		return nil, WrapError(providerGoogle, fmt.Errorf("decode wav: %w", err))
	}
	if len(pcm) == 0 {
		return nil, WrapError(providerGoogle, ErrEmptyAudio)
	}

	latency := time.Since(start).Milliseconds()
	g.logger.Debug("synthesized audio", "chars", len(text), "bytes", len(wav), "latency_ms", latency)

	return &AudioResult{
		Audio:     wav,
		Format:    audio.Format{Encoding: audio.EncodingWAV, SampleRate: format.SampleRate, Channels: format.Channels},
		Duration:  pcmDuration(len(pcm)/max(format.Channels, 1), format.SampleRate),
		CharCount: len(text),
		LatencyMs: latency,
	}, nil
}

// service is built once on context.Background, which the credentials keep
// for every token refresh. Calls pass their own context through Do.
func (g *Google) service() (*texttospeech.Service, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.svc != nil {
		return g.svc, nil
	}
	opts, err := gcp.ClientOptions(g.config.APIKey, g.config.CredentialsFile)
	if err != nil {
		return nil, err
	}
	if g.config.BaseURL != "" {
		opts = append(opts, option.WithEndpoint(g.config.BaseURL))
	}
	svc, err := texttospeech.NewService(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("create texttospeech service: %w", err)
	}
	g.svc = svc
	return svc, nil
}

var _ Provider = (*Google)(nil)
