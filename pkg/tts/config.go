package tts

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/teslashibe/voicegate/internal/httpc"
	"github.com/teslashibe/voicegate/internal/log"
)

// Config is shared by every provider; each one reads the fields it needs.
type Config struct {
	APIKey          string
	BaseURL         string
	CredentialsFile string
	Region          string

	VoiceID      string
	ModelID      string
	LanguageCode string
	Engine       string
	SampleRate   int
	Voice        VoiceSettings

	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration

	HTTPClient *http.Client
	Logger     *slog.Logger
}

// VoiceSettings are the ElevenLabs expressiveness knobs.
type VoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
	SpeakerBoost    bool    `json:"use_speaker_boost"`
}

// Option is a functional option for configuring TTS providers.
type Option func(*Config)

// WithAPIKey sets the API key for the provider.
func WithAPIKey(key string) Option {
	return func(c *Config) { c.APIKey = key }
}

// WithBaseURL overrides the default API base URL.
func WithBaseURL(u string) Option {
	return func(c *Config) { c.BaseURL = u }
}

// WithCredentialsFile sets a service-account JSON file (Google).
func WithCredentialsFile(p string) Option {
	return func(c *Config) { c.CredentialsFile = p }
}

// WithRegion sets the cloud region (Polly).
func WithRegion(region string) Option {
	return func(c *Config) { c.Region = region }
}

// WithVoice sets the voice ID or name.
func WithVoice(id string) Option {
	return func(c *Config) { c.VoiceID = id }
}

// WithModel sets the model ID.
func WithModel(id string) Option {
	return func(c *Config) { c.ModelID = id }
}

// WithLanguage sets the language code, e.g. "ja-JP".
func WithLanguage(code string) Option {
	return func(c *Config) { c.LanguageCode = code }
}

// WithSampleRate sets the requested output sample rate.
func WithSampleRate(rate int) Option {
	return func(c *Config) { c.SampleRate = rate }
}

// WithTimeout sets the request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) { c.Timeout = d }
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Config) { c.HTTPClient = h }
}

// WithLogger sets the structured logger for the provider.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// WithEngine selects the Polly engine ("standard" or "neural").
func WithEngine(engine string) Option {
	return func(c *Config) { c.Engine = engine }
}

// WithRetry retries throttled and 5xx responses n times, backing off
// linearly from delay.
func WithRetry(n int, delay time.Duration) Option {
	return func(c *Config) {
		c.MaxRetries = n
		c.RetryDelay = delay
	}
}

// DefaultConfig is the baseline each constructor starts from.
func DefaultConfig() *Config {
	return &Config{
		SampleRate: 24000,
		Voice:      VoiceSettings{Stability: 0.5, SimilarityBoost: 0.75, SpeakerBoost: true},
		Timeout:    30 * time.Second,
		MaxRetries: 1,
		RetryDelay: 200 * time.Millisecond,
	}
}

// Apply runs opts and fills the client and logger.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
	c.Logger = log.Or(c.Logger)
	if c.HTTPClient == nil {
		c.HTTPClient = httpc.NewClient(c.Timeout)
	}
}

// Validate requires an API key, and a voice when needVoice is set.
func (c *Config) Validate(needVoice bool) error {
	if c.APIKey == "" {
		return ErrNoAPIKey
	}
	if needVoice && c.VoiceID == "" {
		return ErrNoVoiceID
	}
	return nil
}
