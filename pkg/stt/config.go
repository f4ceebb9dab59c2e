package stt

import (
	"log/slog"
	"net/http"
	"time"
)

// Config holds recognition provider configuration.
type Config struct {
	APIKey          string
	BaseURL         string
	CredentialsFile string

	// Model is the backend model: a ggml file for whisper.cpp, a Watson
	// model name, or an OpenAI model id.
	Model    string
	Language string

	// BinaryPath is the whisper.cpp CLI executable.
	BinaryPath string

	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Option is a functional option for configuring recognition providers.
type Option func(*Config)

// WithAPIKey sets the API key.
func WithAPIKey(key string) Option {
	return func(c *Config) { c.APIKey = key }
}

// WithBaseURL overrides the service URL.
func WithBaseURL(url string) Option {
	return func(c *Config) { c.BaseURL = url }
}

// WithCredentialsFile sets a service-account JSON file (Google).
func WithCredentialsFile(path string) Option {
	return func(c *Config) { c.CredentialsFile = path }
}

// WithModel sets the model.
func WithModel(model string) Option {
	return func(c *Config) { c.Model = model }
}

// WithLanguage sets the spoken language, e.g. "ja" or "ja-JP".
func WithLanguage(lang string) Option {
	return func(c *Config) { c.Language = lang }
}

// WithBinary sets the whisper.cpp executable.
func WithBinary(path string) Option {
	return func(c *Config) { c.BinaryPath = path }
}

// WithTimeout sets the request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) { c.Timeout = d }
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Config) { c.HTTPClient = client }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// DefaultConfig returns defaults shared by all providers.
func DefaultConfig() *Config {
	return &Config{
		Language: "en",
		Timeout:  30 * time.Second,
		Logger:   slog.Default(),
	}
}

// Apply applies functional options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
}
