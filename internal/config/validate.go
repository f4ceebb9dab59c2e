package config

import (
	"fmt"

	"github.com/teslashibe/voicegate/pkg/chain"
	"github.com/teslashibe/voicegate/pkg/llm"
)

// Validate normalizes c and returns the first configuration failure as *Error.
// An enabled outgoing webhook without a URL is switched off and recorded in
// Warnings rather than failing.
func (c *Config) Validate() error {
	c.normalize()
	if errs := c.problems(); len(errs) > 0 {
		return errs[0]
	}
	return nil
}

// Warnings returns the notes recorded by the last Validate or Check call.
func (c *Config) Warnings() []string {
	return c.warnings
}

func (c *Config) normalize() {
	c.warnings = nil
	if c.Webhook.Enabled && c.Webhook.URL == "" {
		c.Webhook.Enabled = false
		c.warnings = append(c.warnings, "outgoing webhook enabled without URL; disabled")
	}
	if c.Webhook.RetryCount < 1 {
		c.Webhook.RetryCount = 1
	}
	if c.Webhook.Workers < 1 {
		c.Webhook.Workers = 1
	}
}

// problems collects every failure so Check can report them all.
func (c *Config) problems() []*Error {
	var errs []*Error
	add := func(field, format string, args ...any) {
		errs = append(errs, &Error{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		add("SERVER_PORT", "out of range: %d", c.Server.Port)
	}
	if c.Gate.ExternalWait <= 0 || c.Gate.LocalWait <= 0 {
		add("gate", "wait budgets must be positive")
	}
	if c.Pipeline.MaxPromptLength <= 0 {
		add("pipeline.max_prompt_length", "must be positive")
	}

	switch {
	case !llm.Known(c.LLM.Provider):
		add("LLM_PROVIDER", "unknown provider %q; use dify, langflow or openai", c.LLM.Provider)
	case !c.LLMEnabled():
		add("LLM_PROVIDER", "%q selected but not enabled", c.LLM.Provider)
	default:
		c.llmProblems(add)
	}

	for _, s := range chain.Order(c.STTSpecs()) {
		p, _ := c.STTProvider(s.Name)
		if missing := sttMissing(s.Name, p); missing != "" {
			add("stt."+s.Name, "enabled but %s is not set", missing)
		}
	}
	for _, s := range chain.Order(c.TTSSpecs()) {
		p, _ := c.TTSProvider(s.Name)
		if missing := ttsMissing(s.Name, p); missing != "" {
			add("tts."+s.Name, "enabled but %s is not set", missing)
		}
	}

	if len(chain.Order(c.TTSSpecs())) == 0 {
		add("tts", "no synthesis provider enabled")
	}
	if c.Mic.Enabled && len(chain.Order(c.STTSpecs())) == 0 {
		add("stt", "no recognition provider enabled and the microphone loop is on")
	}
	return errs
}

func (c *Config) llmProblems(add func(field, format string, args ...any)) {
	switch c.LLM.Provider {
	case llm.ProviderDify:
		d := c.LLM.Dify
		if d.APIKey == "" || d.AppID == "" || d.BaseURL == "" || d.UserID == "" {
			add("dify", "DIFY_API_KEY, DIFY_APP_ID, DIFY_BASE_URL and DIFY_USER_ID are all required")
		}
	case llm.ProviderLangflow:
		l := c.LLM.Langflow
		if l.APIKey == "" {
			add("LANGFLOW_API_KEY", "required for langflow")
		}
		if l.FlowID == "" && l.Endpoint == "" {
			add("LANGFLOW_FLOW_ID", "required for langflow")
		}
	case llm.ProviderOpenAI:
		o := c.LLM.OpenAI
		if o.APIKey == "" && o.BaseURL == "" {
			add("OPENAI_API_KEY", "required unless OPENAI_LLM_BASE_URL points at a local server")
		}
		if o.Model == "" {
			add("OPENAI_LLM_MODEL", "required")
		}
	}
}

func sttMissing(name string, p ProviderConfig) string {
	switch name {
	case "whisper-local":
		if p.Model == "" {
			return "WHISPER_LOCAL_MODEL"
		}
	case "watson":
		switch {
		case p.APIKey == "":
			return "WATSON_STT_API_KEY"
		case p.URL == "":
			return "WATSON_STT_URL"
		case p.Model == "":
			return "WATSON_STT_MODEL"
		}
	case "openai":
		if p.APIKey == "" {
			return "OPENAI_API_KEY"
		}
	}
	return ""
}

func ttsMissing(name string, p ProviderConfig) string {
	switch name {
	case "voicevox":
		if p.URL == "" {
			return "VOICEVOX_BASE_URL"
		}
	case "watson":
		switch {
		case p.APIKey == "":
			return "WATSON_TTS_API_KEY"
		case p.URL == "":
			return "WATSON_TTS_URL"
		case p.Voice == "":
			return "WATSON_TTS_VOICE"
		}
	case "openai":
		if p.APIKey == "" {
			return "OPENAI_API_KEY"
		}
	case "elevenlabs":
		switch {
		case p.APIKey == "":
			return "ELEVENLABS_API_KEY"
		case p.Voice == "":
			return "ELEVENLABS_VOICE_ID"
		}
	case "polly":
		if p.Region == "" {
			return "POLLY_REGION"
		}
	}
	return ""
}

// Report is the consistency summary served by the health endpoint.
type Report struct {
	STT             []string `json:"stt"`
	LLM             string   `json:"llm"`
	TTS             []string `json:"tts"`
	OutgoingWebhook bool     `json:"outgoing_webhook"`
	MicLoop         bool     `json:"mic_loop"`
	Consistent      bool     `json:"consistent"`
	Issues          []string `json:"issues,omitempty"`
	Warnings        []string `json:"warnings,omitempty"`
}

// Check reports the effective provider chains and every consistency problem.
func (c *Config) Check() Report {
	c.normalize()
	r := Report{
		STT:             chain.Names(chain.Order(c.STTSpecs())),
		LLM:             c.LLM.Provider,
		TTS:             chain.Names(chain.Order(c.TTSSpecs())),
		OutgoingWebhook: c.Webhook.Enabled,
		MicLoop:         c.Mic.Enabled,
		Warnings:        c.warnings,
	}
	for _, e := range c.problems() {
		r.Issues = append(r.Issues, e.Error())
	}
	r.Consistent = len(r.Issues) == 0
	return r
}
