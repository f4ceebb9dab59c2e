// Package config loads the process configuration for voicegate.
//
// Values come from built-in defaults, then an optional YAML file, then the
// environment (a .env file in the working directory is loaded first). The
// resulting Config is built once at startup and passed to constructors.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/teslashibe/voicegate/pkg/chain"
)

// Default configuration values.
const (
	DefaultHost            = "0.0.0.0"
	DefaultPort            = 8080
	DefaultLLMProvider     = "dify"
	DefaultLLMTimeout      = 60 * time.Second
	DefaultMaxPromptLength = 1000
	DefaultExternalWait    = 3 * time.Second
	DefaultLocalWait       = time.Second
	DefaultQuietDuration   = 30 * time.Minute
	DefaultHumAfter        = 10 * time.Minute
	DefaultWebhookTimeout  = 10 * time.Second
	DefaultWebhookRetries  = 3
	DefaultAgentVersion    = "1.0"
)

// Config is the root configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	LogLevel string         `yaml:"log_level"`
	Gate     GateConfig     `yaml:"gate"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	LLM      LLMConfig      `yaml:"llm"`
	STT      STTConfig      `yaml:"stt"`
	TTS      TTSConfig      `yaml:"tts"`
	Mic      MicConfig      `yaml:"mic"`
	Idle     IdleConfig     `yaml:"idle"`
	Webhook  WebhookConfig  `yaml:"outgoing_webhook"`
	Google   GoogleConfig   `yaml:"google"`

	warnings []string
}

// ServerConfig is the inbound HTTP listener.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// GateConfig holds the wait budgets for the exclusive access gate.
type GateConfig struct {
	ExternalWait time.Duration `yaml:"external_wait"`
	LocalWait    time.Duration `yaml:"local_wait"`
}

// PipelineConfig holds the fixed turn messages.
type PipelineConfig struct {
	MaxPromptLength  int           `yaml:"max_prompt_length"`
	TooLongMessage   string        `yaml:"too_long_message"`
	EmptyMessage     string        `yaml:"empty_message"`
	NoAnswerMessage  string        `yaml:"no_answer_message"`
	ApologyMessage   string        `yaml:"apology_message"`
	StartupMessage   string        `yaml:"startup_message"`
	DefaultUserID    string        `yaml:"default_user_id"`
	SynthesisTimeout time.Duration `yaml:"synthesis_timeout"`
}

// LLMConfig selects and configures the generation backend.
type LLMConfig struct {
	Provider string          `yaml:"provider"`
	Timeout  time.Duration   `yaml:"timeout"`
	Dify     DifyConfig      `yaml:"dify"`
	Langflow LangflowConfig  `yaml:"langflow"`
	OpenAI   OpenAILLMConfig `yaml:"openai"`
}

// DifyConfig configures the Dify backend.
type DifyConfig struct {
	Enabled bool   `yaml:"enabled"`
	APIKey  string `yaml:"api_key"`
	AppID   string `yaml:"app_id"`
	BaseURL string `yaml:"base_url"`
	UserID  string `yaml:"user_id"`
}

// LangflowConfig configures the Langflow backend.
type LangflowConfig struct {
	Enabled  bool   `yaml:"enabled"`
	APIKey   string `yaml:"api_key"`
	BaseURL  string `yaml:"base_url"`
	FlowID   string `yaml:"flow_id"`
	Endpoint string `yaml:"endpoint"`
}

// OpenAILLMConfig configures an OpenAI-compatible chat backend.
type OpenAILLMConfig struct {
	Enabled      bool   `yaml:"enabled"`
	APIKey       string `yaml:"api_key"`
	BaseURL      string `yaml:"base_url"`
	Model        string `yaml:"model"`
	SystemPrompt string `yaml:"system_prompt"`
}

// ProviderConfig is one recognition or synthesis provider slot.
type ProviderConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Priority int    `yaml:"priority"`
	APIKey   string `yaml:"api_key"`
	URL      string `yaml:"url"`
	Model    string `yaml:"model"`
	Voice    string `yaml:"voice"`
	Language string `yaml:"language"`
	Region   string `yaml:"region"`
	Engine   string `yaml:"engine"`
	Binary   string `yaml:"binary"`
}

// STTConfig holds the recognition providers.
type STTConfig struct {
	ProviderTimeout time.Duration  `yaml:"provider_timeout"`
	WhisperLocal    ProviderConfig `yaml:"whisper_local"`
	Watson          ProviderConfig `yaml:"watson"`
	OpenAI          ProviderConfig `yaml:"openai"`
	Google          ProviderConfig `yaml:"google"`
}

// TTSConfig holds the synthesis providers.
type TTSConfig struct {
	ProviderTimeout time.Duration  `yaml:"provider_timeout"`
	Voicevox        ProviderConfig `yaml:"voicevox"`
	Watson          ProviderConfig `yaml:"watson"`
	OpenAI          ProviderConfig `yaml:"openai"`
	ElevenLabs      ProviderConfig `yaml:"elevenlabs"`
	Polly           ProviderConfig `yaml:"polly"`
	Google          ProviderConfig `yaml:"google"`
}

// MicConfig controls the background capture loop.
type MicConfig struct {
	Enabled       bool          `yaml:"enabled"`
	SampleRate    int           `yaml:"sample_rate"`
	ListenTimeout time.Duration `yaml:"listen_timeout"`
	PhraseLimit   time.Duration `yaml:"phrase_limit"`
	Threshold     float64       `yaml:"threshold"`
}

// IdleConfig controls quiet mode, idle phrases and wake markers.
type IdleConfig struct {
	WakeMarkers       []string      `yaml:"wake_markers"`
	QuietTrigger      string        `yaml:"quiet_trigger"`
	QuietDuration     time.Duration `yaml:"quiet_duration"`
	QuietAnnouncement string        `yaml:"quiet_announcement"`
	TerminatePhrases  []string      `yaml:"terminate_phrases"`
	FarewellMessage   string        `yaml:"farewell_message"`
	ClarifyPrompt     string        `yaml:"clarify_prompt"`
	Interval          time.Duration `yaml:"interval"`
	HumAfter          time.Duration `yaml:"hum_after"`
	IdlePhrases       []string      `yaml:"idle_phrases"`
	HumPhrases        []string      `yaml:"hum_phrases"`
}

// WebhookConfig configures the outgoing turn notification.
type WebhookConfig struct {
	Enabled      bool          `yaml:"enabled"`
	URL          string        `yaml:"url"`
	AuthToken    string        `yaml:"auth_token"`
	Timeout      time.Duration `yaml:"timeout"`
	RetryCount   int           `yaml:"retry_count"`
	RetryDelay   time.Duration `yaml:"retry_delay"`
	Workers      int           `yaml:"workers"`
	QueueSize    int           `yaml:"queue_size"`
	AgentVersion string        `yaml:"agent_version"`
}

// GoogleConfig holds credentials shared by the Google providers.
type GoogleConfig struct {
	APIKey          string `yaml:"api_key"`
	CredentialsFile string `yaml:"credentials_file"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server:   ServerConfig{Host: DefaultHost, Port: DefaultPort},
		LogLevel: "info",
		Gate:     GateConfig{ExternalWait: DefaultExternalWait, LocalWait: DefaultLocalWait},
		Pipeline: PipelineConfig{
			MaxPromptLength:  DefaultMaxPromptLength,
			TooLongMessage:   "プロンプトが長すぎます。最大{max}文字までです。",
			EmptyMessage:     "入力が空です。",
			NoAnswerMessage:  "AIは応答を生成しませんでした。",
			ApologyMessage:   "申し訳ありません、応答を取得できませんでした。",
			StartupMessage:   "システムを起動しました。",
			SynthesisTimeout: 30 * time.Second,
		},
		LLM: LLMConfig{
			Provider: DefaultLLMProvider,
			Timeout:  DefaultLLMTimeout,
			Dify:     DifyConfig{Enabled: true},
			Langflow: LangflowConfig{Enabled: true, BaseURL: "http://localhost:7860"},
			OpenAI:   OpenAILLMConfig{Model: "gpt-4o-mini"},
		},
		STT: STTConfig{
			ProviderTimeout: 30 * time.Second,
			WhisperLocal:    ProviderConfig{Priority: 10, Binary: "whisper-cli", Language: "ja"},
			Watson:          ProviderConfig{Priority: 20},
			OpenAI:          ProviderConfig{Priority: 30, Model: "whisper-1", Language: "ja"},
			Google:          ProviderConfig{Priority: 40, Language: "ja-JP"},
		},
		TTS: TTSConfig{
			ProviderTimeout: 20 * time.Second,
			Voicevox:        ProviderConfig{Priority: 10, URL: "http://localhost:50021", Voice: "3"},
			Watson:          ProviderConfig{Priority: 20},
			OpenAI:          ProviderConfig{Priority: 30, Voice: "alloy"},
			ElevenLabs:      ProviderConfig{Priority: 40},
			Polly:           ProviderConfig{Priority: 50, Voice: "Mizuki", Region: "us-east-1"},
			Google:          ProviderConfig{Priority: 60, Language: "ja-JP"},
		},
		Mic: MicConfig{
			Enabled:       true,
			SampleRate:    16000,
			ListenTimeout: 5 * time.Second,
			PhraseLimit:   10 * time.Second,
			Threshold:     0.001,
		},
		Idle: IdleConfig{
			WakeMarkers:       []string{"ai"},
			QuietTrigger:      "静かにして",
			QuietDuration:     DefaultQuietDuration,
			QuietAnnouncement: "承知いたしました。{minutes}分間、小声で口ずさんで休憩していますね。ご集中ください。",
			TerminatePhrases:  []string{"さようなら", "おわり"},
			FarewellMessage:   "さようなら。またお話ししましょう!",
			ClarifyPrompt:     "何かご用でしょうか?",
			HumAfter:          DefaultHumAfter,
		},
		Webhook: WebhookConfig{
			Timeout:      DefaultWebhookTimeout,
			RetryCount:   DefaultWebhookRetries,
			RetryDelay:   time.Second,
			Workers:      2,
			QueueSize:    64,
			AgentVersion: DefaultAgentVersion,
		},
	}
}

// Load builds the configuration. path may be empty; a missing .env is ignored.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("config: load .env: %w", err)
	}

	cfg := Default()
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return &Error{Field: path, Message: fmt.Sprintf("invalid YAML: %v", err)}
	}
	return nil
}

// STTSpecs returns the recognition provider slots in declaration order.
func (c *Config) STTSpecs() []chain.Spec {
	return []chain.Spec{
		{Name: "whisper-local", Enabled: c.STT.WhisperLocal.Enabled, Priority: c.STT.WhisperLocal.Priority},
		{Name: "watson", Enabled: c.STT.Watson.Enabled, Priority: c.STT.Watson.Priority},
		{Name: "openai", Enabled: c.STT.OpenAI.Enabled, Priority: c.STT.OpenAI.Priority},
		{Name: "google", Enabled: c.STT.Google.Enabled, Priority: c.STT.Google.Priority},
	}
}

// TTSSpecs returns the synthesis provider slots in declaration order.
func (c *Config) TTSSpecs() []chain.Spec {
	return []chain.Spec{
		{Name: "voicevox", Enabled: c.TTS.Voicevox.Enabled, Priority: c.TTS.Voicevox.Priority},
		{Name: "watson", Enabled: c.TTS.Watson.Enabled, Priority: c.TTS.Watson.Priority},
		{Name: "openai", Enabled: c.TTS.OpenAI.Enabled, Priority: c.TTS.OpenAI.Priority},
		{Name: "elevenlabs", Enabled: c.TTS.ElevenLabs.Enabled, Priority: c.TTS.ElevenLabs.Priority},
		{Name: "polly", Enabled: c.TTS.Polly.Enabled, Priority: c.TTS.Polly.Priority},
		{Name: "google", Enabled: c.TTS.Google.Enabled, Priority: c.TTS.Google.Priority},
	}
}

// STTProvider returns the slot for a recognition provider name.
func (c *Config) STTProvider(name string) (ProviderConfig, bool) {
	switch name {
	case "whisper-local":
		return c.STT.WhisperLocal, true
	case "watson":
		return c.STT.Watson, true
	case "openai":
		return c.STT.OpenAI, true
	case "google":
		return c.STT.Google, true
	}
	return ProviderConfig{}, false
}

// TTSProvider returns the slot for a synthesis provider name.
func (c *Config) TTSProvider(name string) (ProviderConfig, bool) {
	switch name {
	case "voicevox":
		return c.TTS.Voicevox, true
	case "watson":
		return c.TTS.Watson, true
	case "openai":
		return c.TTS.OpenAI, true
	case "elevenlabs":
		return c.TTS.ElevenLabs, true
	case "polly":
		return c.TTS.Polly, true
	case "google":
		return c.TTS.Google, true
	}
	return ProviderConfig{}, false
}

// LLMEnabled reports whether the selected generation provider is switched on.
func (c *Config) LLMEnabled() bool {
	switch c.LLM.Provider {
	case "dify":
		return c.LLM.Dify.Enabled
	case "langflow":
		return c.LLM.Langflow.Enabled
	case "openai":
		return c.LLM.OpenAI.Enabled
	}
	return false
}

// Error is a configuration failure. It is fatal at startup.
type Error struct {
	Field   string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}
