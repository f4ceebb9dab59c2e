package tts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/polly"
	pollytypes "github.com/aws/aws-sdk-go-v2/service/polly/types"
	"github.com/aws/smithy-go"

	"github.com/teslashibe/voicegate/pkg/audio"
)

const providerPolly = "polly"

// pollySynthClient is the slice of the Polly API used here.
type pollySynthClient interface {
	SynthesizeSpeech(ctx context.Context, params *polly.SynthesizeSpeechInput, optFns ...func(*polly.Options)) (*polly.SynthesizeSpeechOutput, error)
}

// Polly implements Provider for Amazon Polly. Credentials come from the
// standard AWS chain (env, shared config, instance role).
type Polly struct {
	config *Config
	logger *slog.Logger

	mu     sync.Mutex
	client pollySynthClient
}

// NewPolly creates a Polly provider. The AWS client is resolved lazily on
// first use so construction never touches the network.
func NewPolly(opts ...Option) (*Polly, error) {
	cfg := DefaultConfig()
	cfg.Region = "us-east-1"
	cfg.VoiceID = "Joanna"
	cfg.Engine = "neural"
	cfg.SampleRate = 16000
	cfg.Apply(opts...)

	// Polly PCM supports only 8kHz and 16kHz.
	if cfg.SampleRate != 8000 {
		cfg.SampleRate = 16000
	}
	if strings.TrimSpace(cfg.VoiceID) == "" {
		return nil, ErrNoVoiceID
	}

	return &Polly{config: cfg, logger: cfg.Logger.With("component", "tts.polly")}, nil
}

// newPollyWithClient is used by tests to inject a fake client.
func newPollyWithClient(client pollySynthClient, opts ...Option) (*Polly, error) {
	p, err := NewPolly(opts...)
	if err != nil {
		return nil, err
	}
	p.client = client
	return p, nil
}

// Name implements Provider.
func (p *Polly) Name() string { return providerPolly }

// Synthesize requests PCM16 mono audio.
func (p *Polly) Synthesize(ctx context.Context, text string) (*AudioResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, WrapError(providerPolly, ErrEmptyText)
	}
	client, err := p.resolveClient(ctx)
	if err != nil {
		return nil, WrapError(providerPolly, err)
	}
	start := time.Now()

	engine := pollytypes.EngineStandard
	if strings.EqualFold(p.config.Engine, "neural") {
		engine = pollytypes.EngineNeural
	}

	input := &polly.SynthesizeSpeechInput{
		Engine:       engine,
		OutputFormat: pollytypes.OutputFormatPcm,
		SampleRate:   aws.String(strconv.Itoa(p.config.SampleRate)),
		Text:         aws.String(text),
		TextType:     pollytypes.TextTypeText,
		VoiceId:      pollytypes.VoiceId(p.config.VoiceID),
	}
	if p.config.LanguageCode != "" {
		input.LanguageCode = pollytypes.LanguageCode(p.config.LanguageCode)
	}

	out, err := client.SynthesizeSpeech(ctx, input)
	if err != nil {
		return nil, pollyError(err)
	}
	if out == nil || out.AudioStream == nil {
		return nil, WrapError(providerPolly, ErrEmptyAudio)
	}
	defer out.AudioStream.Close()

	pcm, err := io.ReadAll(out.AudioStream)
	if err != nil {
		return nil, WrapError(providerPolly, fmt.Errorf("read audio stream: %w", err))
	}
	if len(pcm) == 0 {
		return nil, WrapError(providerPolly, ErrEmptyAudio)
	}

	latency := time.Since(start).Milliseconds()
	p.logger.Debug("synthesized audio", "chars", len(text), "bytes", len(pcm), "latency_ms", latency, "voice", p.config.VoiceID)

	return &AudioResult{
		Audio:     pcm,
		Format:    audio.Format{Encoding: audio.EncodingPCM16, SampleRate: p.config.SampleRate, Channels: 1},
		Duration:  pcmDuration(len(pcm), p.config.SampleRate),
		CharCount: len(text),
		LatencyMs: latency,
	}, nil
}

func (p *Polly) resolveClient(ctx context.Context) (pollySynthClient, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.client != nil {
		return p.client, nil
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(p.config.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	p.client = polly.NewFromConfig(awsCfg)
	return p.client, nil
}

// pollyError maps smithy API errors onto APIError so callers can inspect
// the service error code.
func pollyError(err error) error {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return WrapError(providerPolly, err)
	}

	status := 500
	switch apiErr.ErrorCode() {
	case "TooManyRequestsException", "ThrottlingException":
		status = 429
	case "InvalidSsmlException", "TextLengthExceededException", "LexiconNotFoundException",
		"MarksNotSupportedForFormatException", "InvalidSampleRateException":
		status = 400
	case "UnrecognizedClientException", "AccessDeniedException":
		status = 403
	}
	return &APIError{
		StatusCode: status,
		Message:    apiErr.ErrorMessage(),
		Code:       apiErr.ErrorCode(),
		Provider:   providerPolly,
	}
}

var _ Provider = (*Polly)(nil)
