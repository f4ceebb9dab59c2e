package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/voicegate/internal/config"
)

func init() {
	color.NoColor = true
}

func TestRenderReport(t *testing.T) {
	var buf bytes.Buffer
	renderReport(&buf, config.Report{
		STT:        []string{"whisper-local", "openai"},
		LLM:        "dify",
		TTS:        []string{"voicevox"},
		MicLoop:    true,
		Consistent: true,
		Warnings:   []string{"outgoing webhook enabled without URL; disabled"},
	})

	out := buf.String()
	assert.Contains(t, out, "whisper-local -> openai")
	assert.Contains(t, out, "outgoing webhook")
	assert.Contains(t, out, "warning: outgoing webhook enabled without URL")
	assert.Contains(t, out, "configuration OK")
}

func TestRenderReportIssues(t *testing.T) {
	var buf bytes.Buffer
	renderReport(&buf, config.Report{LLM: "dify", Issues: []string{"dify: missing DIFY_API_KEY"}})

	out := buf.String()
	assert.Contains(t, out, "stt")
	assert.Contains(t, out, "(none)")
	assert.Contains(t, out, "issue: dify: missing DIFY_API_KEY")
	assert.NotContains(t, out, "configuration OK")
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "voicegate.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestCheckCommand(t *testing.T) {
	path := writeConfig(t, `
llm:
  provider: dify
  dify:
    enabled: true
    api_key: k
    app_id: app
    base_url: http://dify.local
    user_id: u
tts:
  voicevox:
    enabled: true
mic:
  enabled: false
`)

	var buf bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&buf)
	cmd.SetArgs([]string{"check", "--config", path})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "configuration OK")
	assert.Contains(t, buf.String(), "voicevox")
}

func TestCheckCommandInconsistent(t *testing.T) {
	path := writeConfig(t, `
llm:
  provider: nope
`)

	var buf bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&buf)
	cmd.SetArgs([]string{"check", "--config", path, "--json"})
	err := cmd.Execute()

	var cerr *config.Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "LLM_PROVIDER", cerr.Field)
	assert.Contains(t, buf.String(), `"consistent": false`)
}

func TestLoadConfigNoMic(t *testing.T) {
	cfg, err := loadConfig(&rootOptions{configPath: writeConfig(t, "log_level: debug\n"), noMic: true, logLevel: "warn"})
	require.NoError(t, err)
	assert.False(t, cfg.Mic.Enabled)
	assert.Equal(t, "warn", cfg.LogLevel)
}
