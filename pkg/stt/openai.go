package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/teslashibe/voicegate/internal/httpc"
	"github.com/teslashibe/voicegate/pkg/audio"
)

const (
	openAITranscriptionURL = "https://api.openai.com/v1/audio/transcriptions"
	providerOpenAI         = "openai"
)

// OpenAI implements Provider with the hosted Whisper transcription API.
type OpenAI struct {
	config  *Config
	logger  *slog.Logger
	baseURL string
}

// NewOpenAI creates an OpenAI recognizer.
func NewOpenAI(opts ...Option) (*OpenAI, error) {
	cfg := DefaultConfig()
	cfg.Model = "whisper-1"
	cfg.Apply(opts...)

	if cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = openAITranscriptionURL
	}

	return &OpenAI{config: cfg, logger: cfg.Logger.With("component", "stt.openai"), baseURL: baseURL}, nil
}

// Name implements Provider.
func (o *OpenAI) Name() string { return providerOpenAI }

// Transcribe uploads the clip as multipart form data.
func (o *OpenAI) Transcribe(ctx context.Context, clip *audio.Clip) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	fw, err := mw.CreateFormFile("file", "clip.wav")
	if err != nil {
		return "", WrapError(providerOpenAI, err)
	}
	if _, err := fw.Write(clip.WAV); err != nil {
		return "", WrapError(providerOpenAI, err)
	}
	fields := map[string]string{"model": o.config.Model, "response_format": "json"}
	if lang := o.config.Language; lang != "" {
		if i := strings.IndexByte(lang, '-'); i > 0 {
			lang = lang[:i]
		}
		fields["language"] = lang
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return "", WrapError(providerOpenAI, err)
		}
	}
	if err := mw.Close(); err != nil {
		return "", WrapError(providerOpenAI, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL, &buf)
	if err != nil {
		return "", WrapError(providerOpenAI, err)
	}
	req.Header.Set("Authorization", "Bearer "+o.config.APIKey)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("User-Agent", httpc.UserAgent)

	body, err := httpc.Read(o.config.HTTPClient, req)
	if err != nil {
		return "", WrapError(providerOpenAI, err)
	}

	var resp struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", WrapError(providerOpenAI, fmt.Errorf("decode response: %w", err))
	}
	return strings.TrimSpace(resp.Text), nil
}

var _ Provider = (*OpenAI)(nil)
