package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// env reads typed values and keeps the first parse failure.
type env struct {
	lookup LookupFunc
	err    error
}

func (e *env) get(key string) (string, bool) {
	v, ok := e.lookup(key)
	if !ok {
		return "", false
	}
	return strings.TrimSpace(v), true
}

func (e *env) fail(key, msg string) {
	if e.err == nil {
		e.err = &Error{Field: key, Message: msg}
	}
}

func (e *env) str(key string, dst *string) {
	if v, ok := e.get(key); ok && v != "" {
		*dst = v
	}
}

func (e *env) boolean(key string, dst *bool) {
	v, ok := e.get(key)
	if !ok || v == "" {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.fail(key, fmt.Sprintf("not a boolean: %q", v))
		return
	}
	*dst = b
}

func (e *env) integer(key string, dst *int) {
	v, ok := e.get(key)
	if !ok || v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.fail(key, fmt.Sprintf("not an integer: %q", v))
		return
	}
	*dst = n
}

func (e *env) duration(key string, unit time.Duration, dst *time.Duration) {
	v, ok := e.get(key)
	if !ok || v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		e.fail(key, fmt.Sprintf("not a non-negative integer: %q", v))
		return
	}
	*dst = time.Duration(n) * unit
}

// list splits a comma separated value, trimming and dropping blanks.
func (e *env) list(key string, lower bool, dst *[]string) {
	v, ok := e.get(key)
	if !ok {
		return
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if lower {
			part = strings.ToLower(part)
		}
		if part != "" {
			out = append(out, part)
		}
	}
	*dst = out
}

// numbered reads PREFIX_1, PREFIX_2, ... until the first unset key.
// Blank values are skipped without ending the sequence.
func (e *env) numbered(prefix string, dst *[]string) {
	var out []string
	found := false
	for i := 1; ; i++ {
		v, ok := e.get(fmt.Sprintf("%s_%d", prefix, i))
		if !ok {
			break
		}
		found = true
		if v != "" {
			out = append(out, v)
		}
	}
	if found {
		*dst = out
	}
}

func (e *env) provider(prefix string, p *ProviderConfig) {
	e.integer(prefix+"_PRIORITY", &p.Priority)
}

// applyEnv overlays environment variables onto c.
func (c *Config) applyEnv(lookup LookupFunc) error {
	e := &env{lookup: lookup}

	e.str("SERVER_HOST", &c.Server.Host)
	e.integer("SERVER_PORT", &c.Server.Port)
	e.str("LOG_LEVEL", &c.LogLevel)
	e.boolean("MIC_ENABLED", &c.Mic.Enabled)

	// Generation
	if v, ok := e.get("LLM_PROVIDER"); ok && v != "" {
		c.LLM.Provider = strings.ToLower(v)
	}
	e.duration("LLM_TIMEOUT", time.Second, &c.LLM.Timeout)
	e.boolean("ENABLE_DIFY", &c.LLM.Dify.Enabled)
	e.str("DIFY_API_KEY", &c.LLM.Dify.APIKey)
	e.str("DIFY_APP_ID", &c.LLM.Dify.AppID)
	e.str("DIFY_BASE_URL", &c.LLM.Dify.BaseURL)
	e.str("DIFY_USER_ID", &c.LLM.Dify.UserID)
	e.boolean("ENABLE_LANGFLOW", &c.LLM.Langflow.Enabled)
	e.str("LANGFLOW_API_KEY", &c.LLM.Langflow.APIKey)
	e.str("LANGFLOW_BASE_URL", &c.LLM.Langflow.BaseURL)
	e.str("LANGFLOW_FLOW_ID", &c.LLM.Langflow.FlowID)
	e.str("LANGFLOW_ENDPOINT", &c.LLM.Langflow.Endpoint)
	e.boolean("ENABLE_OPENAI_LLM", &c.LLM.OpenAI.Enabled)
	e.str("OPENAI_API_KEY", &c.LLM.OpenAI.APIKey)
	e.str("OPENAI_LLM_API_KEY", &c.LLM.OpenAI.APIKey)
	e.str("OPENAI_LLM_BASE_URL", &c.LLM.OpenAI.BaseURL)
	e.str("OPENAI_LLM_MODEL", &c.LLM.OpenAI.Model)
	e.str("OPENAI_LLM_SYSTEM_PROMPT", &c.LLM.OpenAI.SystemPrompt)

	// Recognition
	e.boolean("ENABLE_WHISPER_LOCAL", &c.STT.WhisperLocal.Enabled)
	e.str("WHISPER_LOCAL_MODEL", &c.STT.WhisperLocal.Model)
	e.str("WHISPER_BINARY", &c.STT.WhisperLocal.Binary)
	e.str("WHISPER_LANGUAGE", &c.STT.WhisperLocal.Language)
	e.provider("WHISPER_LOCAL", &c.STT.WhisperLocal)

	e.boolean("ENABLE_WATSON_STT", &c.STT.Watson.Enabled)
	e.str("WATSON_STT_API_KEY", &c.STT.Watson.APIKey)
	e.str("WATSON_STT_URL", &c.STT.Watson.URL)
	e.str("WATSON_STT_MODEL", &c.STT.Watson.Model)
	e.provider("WATSON_STT", &c.STT.Watson)

	e.boolean("ENABLE_OPENAI_STT", &c.STT.OpenAI.Enabled)
	e.str("OPENAI_API_KEY", &c.STT.OpenAI.APIKey)
	e.str("OPENAI_STT_MODEL", &c.STT.OpenAI.Model)
	e.provider("OPENAI_STT", &c.STT.OpenAI)

	e.boolean("ENABLE_GOOGLE_STT", &c.STT.Google.Enabled)
	e.str("GOOGLE_STT_LANGUAGE", &c.STT.Google.Language)
	e.provider("GOOGLE_STT", &c.STT.Google)

	// Synthesis
	e.boolean("ENABLE_VOICEVOX", &c.TTS.Voicevox.Enabled)
	e.str("VOICEVOX_BASE_URL", &c.TTS.Voicevox.URL)
	e.str("VOICEVOX_SPEAKER_ID", &c.TTS.Voicevox.Voice)
	e.provider("VOICEVOX", &c.TTS.Voicevox)

	e.boolean("ENABLE_WATSON_TTS", &c.TTS.Watson.Enabled)
	e.str("WATSON_TTS_API_KEY", &c.TTS.Watson.APIKey)
	e.str("WATSON_TTS_URL", &c.TTS.Watson.URL)
	e.str("WATSON_TTS_VOICE", &c.TTS.Watson.Voice)
	e.provider("WATSON_TTS", &c.TTS.Watson)

	e.boolean("ENABLE_OPENAI_TTS", &c.TTS.OpenAI.Enabled)
	e.str("OPENAI_API_KEY", &c.TTS.OpenAI.APIKey)
	e.str("OPENAI_TTS_VOICE", &c.TTS.OpenAI.Voice)
	e.str("OPENAI_TTS_MODEL", &c.TTS.OpenAI.Model)
	e.provider("OPENAI_TTS", &c.TTS.OpenAI)

	e.boolean("ENABLE_ELEVENLABS", &c.TTS.ElevenLabs.Enabled)
	e.str("ELEVENLABS_API_KEY", &c.TTS.ElevenLabs.APIKey)
	e.str("ELEVENLABS_VOICE_ID", &c.TTS.ElevenLabs.Voice)
	e.str("ELEVENLABS_MODEL_ID", &c.TTS.ElevenLabs.Model)
	e.provider("ELEVENLABS", &c.TTS.ElevenLabs)

	e.boolean("ENABLE_POLLY", &c.TTS.Polly.Enabled)
	e.str("AWS_REGION", &c.TTS.Polly.Region)
	e.str("POLLY_REGION", &c.TTS.Polly.Region)
	e.str("POLLY_VOICE_ID", &c.TTS.Polly.Voice)
	e.str("POLLY_ENGINE", &c.TTS.Polly.Engine)
	e.str("POLLY_LANGUAGE", &c.TTS.Polly.Language)
	e.provider("POLLY", &c.TTS.Polly)

	e.boolean("ENABLE_GOOGLE_TTS", &c.TTS.Google.Enabled)
	e.str("GOOGLE_TTS_VOICE", &c.TTS.Google.Voice)
	e.str("GOOGLE_TTS_LANGUAGE", &c.TTS.Google.Language)
	e.provider("GOOGLE_TTS", &c.TTS.Google)

	e.str("GOOGLE_API_KEY", &c.Google.APIKey)
	e.str("GOOGLE_APPLICATION_CREDENTIALS", &c.Google.CredentialsFile)

	// Background loop
	e.list("WAKE_WORDS_LIST", true, &c.Idle.WakeMarkers)
	e.str("QUIET_KEYWORD", &c.Idle.QuietTrigger)
	e.duration("QUIET_DURATION_MINUTES", time.Minute, &c.Idle.QuietDuration)
	e.list("TERMINATE_KEYWORDS", true, &c.Idle.TerminatePhrases)
	e.duration("IDLE_CHAT_INTERVAL_MINUTES", time.Minute, &c.Idle.Interval)
	e.numbered("IDLE_SENTENCE", &c.Idle.IdlePhrases)
	e.numbered("HUM_SENTENCE", &c.Idle.HumPhrases)

	// Outgoing webhook
	e.boolean("ENABLE_OUTGOING_WEBHOOK", &c.Webhook.Enabled)
	e.str("OUTGOING_WEBHOOK_URL", &c.Webhook.URL)
	e.str("OUTGOING_WEBHOOK_AUTH_TOKEN", &c.Webhook.AuthToken)
	e.duration("OUTGOING_WEBHOOK_TIMEOUT", time.Second, &c.Webhook.Timeout)
	e.integer("OUTGOING_WEBHOOK_RETRY_COUNT", &c.Webhook.RetryCount)

	return e.err
}
