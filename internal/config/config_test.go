package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mapLookup(m map[string]string) LookupFunc {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

// valid returns a configuration that passes Validate.
func valid() Config {
	c := Default()
	c.LLM.Dify = DifyConfig{Enabled: true, APIKey: "k", AppID: "app", BaseURL: "https://api.dify.ai", UserID: "u"}
	c.STT.OpenAI.Enabled = true
	c.STT.OpenAI.APIKey = "sk"
	c.TTS.Voicevox.Enabled = true
	return c
}

func TestDefaults(t *testing.T) {
	c := Default()
	assert.Equal(t, "0.0.0.0:8080", c.Server.Addr())
	assert.Equal(t, "dify", c.LLM.Provider)
	assert.Equal(t, 60*time.Second, c.LLM.Timeout)
	assert.Equal(t, 3*time.Second, c.Gate.ExternalWait)
	assert.Equal(t, time.Second, c.Gate.LocalWait)
	assert.Equal(t, 1000, c.Pipeline.MaxPromptLength)
	assert.Equal(t, 30*time.Minute, c.Idle.QuietDuration)
	assert.Equal(t, []string{"ai"}, c.Idle.WakeMarkers)
	assert.Equal(t, 3, c.Webhook.RetryCount)
	assert.Zero(t, c.Idle.Interval)
}

func TestApplyEnv(t *testing.T) {
	c := Default()
	err := c.applyEnv(mapLookup(map[string]string{
		"LLM_PROVIDER":               " Langflow ",
		"LLM_TIMEOUT":                "45",
		"ENABLE_LANGFLOW":            "True",
		"LANGFLOW_API_KEY":           "lf",
		"LANGFLOW_FLOW_ID":           "flow",
		"ENABLE_WATSON_STT":          "true",
		"WATSON_STT_PRIORITY":        "5",
		"WAKE_WORDS_LIST":            " AI , Assistant ,,",
		"QUIET_DURATION_MINUTES":     "15",
		"IDLE_CHAT_INTERVAL_MINUTES": "2",
		"IDLE_SENTENCE_1":            "one",
		"IDLE_SENTENCE_2":            "  ",
		"IDLE_SENTENCE_3":            "three",
		"IDLE_SENTENCE_5":            "unreachable",
		"HUM_SENTENCE_1":             "la la",
		"TERMINATE_KEYWORDS":         "Bye,Goodbye",
		"OUTGOING_WEBHOOK_TIMEOUT":   "4",
		"SERVER_PORT":                "9000",
	}))
	require.NoError(t, err)

	assert.Equal(t, "langflow", c.LLM.Provider)
	assert.Equal(t, 45*time.Second, c.LLM.Timeout)
	assert.True(t, c.LLM.Langflow.Enabled)
	assert.Equal(t, "flow", c.LLM.Langflow.FlowID)
	assert.True(t, c.STT.Watson.Enabled)
	assert.Equal(t, 5, c.STT.Watson.Priority)
	assert.Equal(t, []string{"ai", "assistant"}, c.Idle.WakeMarkers)
	assert.Equal(t, 15*time.Minute, c.Idle.QuietDuration)
	assert.Equal(t, 2*time.Minute, c.Idle.Interval)
	assert.Equal(t, []string{"one", "three"}, c.Idle.IdlePhrases)
	assert.Equal(t, []string{"la la"}, c.Idle.HumPhrases)
	assert.Equal(t, []string{"bye", "goodbye"}, c.Idle.TerminatePhrases)
	assert.Equal(t, 4*time.Second, c.Webhook.Timeout)
	assert.Equal(t, 9000, c.Server.Port)
}

func TestApplyEnvOpenAIKeyShared(t *testing.T) {
	c := Default()
	require.NoError(t, c.applyEnv(mapLookup(map[string]string{"OPENAI_API_KEY": "sk"})))
	assert.Equal(t, "sk", c.STT.OpenAI.APIKey)
	assert.Equal(t, "sk", c.TTS.OpenAI.APIKey)
	assert.Equal(t, "sk", c.LLM.OpenAI.APIKey)
}

func TestApplyEnvRejectsBadNumbers(t *testing.T) {
	tests := map[string]string{
		"SERVER_PORT":            "eighty",
		"LLM_TIMEOUT":            "-1",
		"QUIET_DURATION_MINUTES": "soon",
		"ENABLE_DIFY":            "maybe",
	}
	for key, val := range tests {
		t.Run(key, func(t *testing.T) {
			c := Default()
			err := c.applyEnv(mapLookup(map[string]string{key: val}))
			var cfgErr *Error
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, key, cfgErr.Field)
		})
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "voicegate.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 7000
gate:
  external_wait: 5s
idle:
  wake_markers: [hey]
  idle_phrases: [a, b]
llm:
  provider: openai
`), 0o600))

	t.Setenv("SERVER_PORT", "7100")

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7100, c.Server.Port)
	assert.Equal(t, 5*time.Second, c.Gate.ExternalWait)
	assert.Equal(t, []string{"hey"}, c.Idle.WakeMarkers)
	assert.Equal(t, []string{"a", "b"}, c.Idle.IdlePhrases)
	assert.Equal(t, "openai", c.LLM.Provider)
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [unclosed"), 0o600))

	_, err := Load(path)
	var cfgErr *Error
	assert.ErrorAs(t, err, &cfgErr)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"valid", func(*Config) {}, ""},
		{"unknown llm", func(c *Config) { c.LLM.Provider = "gemini" }, "LLM_PROVIDER"},
		{"llm not enabled", func(c *Config) { c.LLM.Dify.Enabled = false }, "LLM_PROVIDER"},
		{"dify missing user", func(c *Config) { c.LLM.Dify.UserID = "" }, "dify"},
		{"langflow missing flow", func(c *Config) {
			c.LLM.Provider = "langflow"
			c.LLM.Langflow.APIKey = "k"
		}, "LANGFLOW_FLOW_ID"},
		{"no tts", func(c *Config) { c.TTS.Voicevox.Enabled = false }, "tts"},
		{"no stt with mic", func(c *Config) { c.STT.OpenAI.Enabled = false }, "stt"},
		{"watson stt without model", func(c *Config) {
			c.STT.Watson = ProviderConfig{Enabled: true, APIKey: "k", URL: "https://w"}
		}, "stt.watson"},
		{"elevenlabs without voice", func(c *Config) {
			c.TTS.ElevenLabs = ProviderConfig{Enabled: true, APIKey: "k"}
		}, "tts.elevenlabs"},
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "SERVER_PORT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(&c)
			err := c.Validate()
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			var cfgErr *Error
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}
}

func TestValidateNoSTTWithoutMic(t *testing.T) {
	c := valid()
	c.STT.OpenAI.Enabled = false
	c.Mic.Enabled = false
	assert.NoError(t, c.Validate())
}

func TestValidateDisablesWebhookWithoutURL(t *testing.T) {
	c := valid()
	c.Webhook.Enabled = true
	require.NoError(t, c.Validate())
	assert.False(t, c.Webhook.Enabled)
	assert.Len(t, c.Warnings(), 1)
}

func TestCheck(t *testing.T) {
	c := valid()
	c.TTS.Polly.Enabled = true
	c.TTS.Polly.Priority = 1

	r := c.Check()
	assert.True(t, r.Consistent)
	assert.Equal(t, []string{"openai"}, r.STT)
	assert.Equal(t, []string{"polly", "voicevox"}, r.TTS)
	assert.Equal(t, "dify", r.LLM)

	c.LLM.Dify.Enabled = false
	c.TTS.Watson.Enabled = true
	r = c.Check()
	assert.False(t, r.Consistent)
	assert.Len(t, r.Issues, 2)
}
