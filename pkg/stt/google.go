package stt

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"google.golang.org/api/option"
	speech "google.golang.org/api/speech/v1"

	"github.com/teslashibe/voicegate/internal/gcp"
	"github.com/teslashibe/voicegate/pkg/audio"
)

const providerGoogle = "google"

// Google implements Provider for Google Cloud Speech-to-Text.
type Google struct {
	config *Config
	logger *slog.Logger

	mu  sync.Mutex
	svc *speech.Service
}

// NewGoogle creates a Google recognizer. The service is created lazily.
func NewGoogle(opts ...Option) (*Google, error) {
	cfg := DefaultConfig()
	cfg.Language = "en-US"
	cfg.Apply(opts...)
	return &Google{config: cfg, logger: cfg.Logger.With("component", "stt.google")}, nil
}

// Name implements Provider.
func (g *Google) Name() string { return providerGoogle }

// Transcribe sends the clip's PCM as LINEAR16 in a synchronous recognize call.
func (g *Google) Transcribe(ctx context.Context, clip *audio.Clip) (string, error) {
	pcm, err := clip.PCM()
	if err != nil {
		return "", WrapError(providerGoogle, err)
	}
	svc, err := g.service()
	if err != nil {
		return "", WrapError(providerGoogle, err)
	}

	req := &speech.RecognizeRequest{
		Config: &speech.RecognitionConfig{
			Encoding:        "LINEAR16",
			SampleRateHertz: int64(clip.SampleRate),
			LanguageCode:    g.config.Language,
		},
		Audio: &speech.RecognitionAudio{Content: base64.StdEncoding.EncodeToString(pcm)},
	}

	resp, err := svc.Speech.Recognize(req).Context(ctx).Do()
	if err != nil {
		return "", WrapError(providerGoogle, err)
	}

	var parts []string
	for _, r := range resp.Results {
		if len(r.Alternatives) > 0 {
			parts = append(parts, strings.TrimSpace(r.Alternatives[0].Transcript))
		}
	}
	return strings.Join(parts, " "), nil
}

// service is built once on context.Background, which the credentials keep
// for every token refresh. Calls pass their own context through Do.
func (g *Google) service() (*speech.Service, error) {
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
	svc, err := speech.NewService(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("create speech service: %w", err)
	}
	g.svc = svc
	return svc, nil
}

var _ Provider = (*Google)(nil)
