package agent

import (
	"fmt"
	"log/slog"

	"github.com/teslashibe/voicegate/internal/config"
	"github.com/teslashibe/voicegate/pkg/chain"
	"github.com/teslashibe/voicegate/pkg/llm"
	"github.com/teslashibe/voicegate/pkg/stt"
	"github.com/teslashibe/voicegate/pkg/tts"
)

// BuildSTT constructs the enabled recognition providers in priority order.
func BuildSTT(cfg *config.Config, logger *slog.Logger) ([]stt.Provider, error) {
	var out []stt.Provider
	for _, spec := range chain.Order(cfg.STTSpecs()) {
		pc, _ := cfg.STTProvider(spec.Name)
		opts := []stt.Option{stt.WithLogger(logger)}
		if cfg.STT.ProviderTimeout > 0 {
			opts = append(opts, stt.WithTimeout(cfg.STT.ProviderTimeout))
		}
		if pc.APIKey != "" {
			opts = append(opts, stt.WithAPIKey(pc.APIKey))
		}
		if pc.URL != "" {
			opts = append(opts, stt.WithBaseURL(pc.URL))
		}
		if pc.Model != "" {
			opts = append(opts, stt.WithModel(pc.Model))
		}
		if pc.Language != "" {
			opts = append(opts, stt.WithLanguage(pc.Language))
		}
		if pc.Binary != "" {
			opts = append(opts, stt.WithBinary(pc.Binary))
		}

		var (
			p   stt.Provider
			err error
		)
		switch spec.Name {
		case "whisper-local":
			p, err = stt.NewWhisperLocal(opts...)
		case "watson":
			p, err = stt.NewWatson(opts...)
		case "openai":
			p, err = stt.NewOpenAI(opts...)
		case "google":
			p, err = stt.NewGoogle(append(opts, googleSTT(cfg, pc)...)...)
		default:
			err = fmt.Errorf("unknown provider")
		}
		if err != nil {
			return nil, fmt.Errorf("stt %s: %w", spec.Name, err)
		}
		out = append(out, p)
	}
	return out, nil
}

func googleSTT(cfg *config.Config, pc config.ProviderConfig) []stt.Option {
	var opts []stt.Option
	if pc.APIKey == "" && cfg.Google.APIKey != "" {
		opts = append(opts, stt.WithAPIKey(cfg.Google.APIKey))
	}
	if cfg.Google.CredentialsFile != "" {
		opts = append(opts, stt.WithCredentialsFile(cfg.Google.CredentialsFile))
	}
	return opts
}

// BuildTTS constructs the enabled synthesis providers in priority order.
func BuildTTS(cfg *config.Config, logger *slog.Logger) ([]tts.Provider, error) {
	var out []tts.Provider
	for _, spec := range chain.Order(cfg.TTSSpecs()) {
		pc, _ := cfg.TTSProvider(spec.Name)
		opts := []tts.Option{tts.WithLogger(logger)}
		if cfg.TTS.ProviderTimeout > 0 {
			opts = append(opts, tts.WithTimeout(cfg.TTS.ProviderTimeout))
		}
		if pc.APIKey != "" {
			opts = append(opts, tts.WithAPIKey(pc.APIKey))
		}
		if pc.URL != "" {
			opts = append(opts, tts.WithBaseURL(pc.URL))
		}
		if pc.Voice != "" {
			opts = append(opts, tts.WithVoice(pc.Voice))
		}
		if pc.Model != "" {
			opts = append(opts, tts.WithModel(pc.Model))
		}
		if pc.Language != "" {
			opts = append(opts, tts.WithLanguage(pc.Language))
		}
		if pc.Region != "" {
			opts = append(opts, tts.WithRegion(pc.Region))
		}
		if pc.Engine != "" {
			opts = append(opts, tts.WithEngine(pc.Engine))
		}

		var (
			p   tts.Provider
			err error
		)
		switch spec.Name {
		case "voicevox":
			p, err = tts.NewVoicevox(opts...)
		case "watson":
			p, err = tts.NewWatson(opts...)
		case "openai":
			p, err = tts.NewOpenAI(opts...)
		case "elevenlabs":
			p, err = tts.NewElevenLabs(opts...)
		case "polly":
			p, err = tts.NewPolly(opts...)
		case "google":
			p, err = tts.NewGoogle(append(opts, googleTTS(cfg, pc)...)...)
		default:
			err = fmt.Errorf("unknown provider")
		}
		if err != nil {
			return nil, fmt.Errorf("tts %s: %w", spec.Name, err)
		}
		out = append(out, p)
	}
	return out, nil
}

func googleTTS(cfg *config.Config, pc config.ProviderConfig) []tts.Option {
	var opts []tts.Option
	if pc.APIKey == "" && cfg.Google.APIKey != "" {
		opts = append(opts, tts.WithAPIKey(cfg.Google.APIKey))
	}
	if cfg.Google.CredentialsFile != "" {
		opts = append(opts, tts.WithCredentialsFile(cfg.Google.CredentialsFile))
	}
	return opts
}

// BuildLLM constructs the single configured generation provider.
func BuildLLM(cfg *config.Config, logger *slog.Logger) ([]llm.Provider, error) {
	opts := []llm.Option{llm.WithLogger(logger)}
	if cfg.LLM.Timeout > 0 {
		opts = append(opts, llm.WithTimeout(cfg.LLM.Timeout))
	}

	var (
		p   llm.Provider
		err error
	)
	switch cfg.LLM.Provider {
	case llm.ProviderDify:
		d := cfg.LLM.Dify
		p, err = llm.NewDify(append(opts,
			llm.WithBaseURL(d.BaseURL),
			llm.WithAPIKey(d.APIKey),
			llm.WithAppID(d.AppID))...)
	case llm.ProviderLangflow:
		l := cfg.LLM.Langflow
		if l.BaseURL != "" {
			opts = append(opts, llm.WithBaseURL(l.BaseURL))
		}
		p, err = llm.NewLangflow(append(opts,
			llm.WithAPIKey(l.APIKey),
			llm.WithFlow(l.FlowID, l.Endpoint))...)
	case llm.ProviderOpenAI:
		o := cfg.LLM.OpenAI
		if o.BaseURL != "" {
			opts = append(opts, llm.WithBaseURL(o.BaseURL))
		}
		if o.Model != "" {
			opts = append(opts, llm.WithModel(o.Model))
		}
		p, err = llm.NewOpenAI(append(opts,
			llm.WithAPIKey(o.APIKey),
			llm.WithSystemPrompt(o.SystemPrompt))...)
	default:
		err = fmt.Errorf("unknown provider %q", cfg.LLM.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("llm %s: %w", cfg.LLM.Provider, err)
	}
	return []llm.Provider{p}, nil
}

// DefaultIdentity is the user id sent with turns that carry none.
func DefaultIdentity(cfg *config.Config) string {
	switch {
	case cfg.Pipeline.DefaultUserID != "":
		return cfg.Pipeline.DefaultUserID
	case cfg.LLM.Dify.UserID != "":
		return cfg.LLM.Dify.UserID
	default:
		return "webhook_user"
	}
}
