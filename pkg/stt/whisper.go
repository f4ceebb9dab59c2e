package stt

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/teslashibe/voicegate/pkg/audio"
)

const providerWhisperLocal = "whisper-local"

// WhisperLocal runs the whisper.cpp CLI on a temporary WAV file.
type WhisperLocal struct {
	config *Config
	logger *slog.Logger
}

// NewWhisperLocal checks that the binary and model exist.
func NewWhisperLocal(opts ...Option) (*WhisperLocal, error) {
	cfg := DefaultConfig()
	cfg.BinaryPath = "whisper-cli"
	cfg.Apply(opts...)

	if cfg.Model == "" {
		return nil, ErrNoModel
	}
	if _, err := os.Stat(cfg.Model); err != nil {
		return nil, fmt.Errorf("stt: whisper model: %w", err)
	}
	bin, err := exec.LookPath(cfg.BinaryPath)
	if err != nil {
		return nil, fmt.Errorf("stt: whisper binary %q not found: %w", cfg.BinaryPath, err)
	}
	cfg.BinaryPath = bin

	return &WhisperLocal{config: cfg, logger: cfg.Logger.With("component", "stt.whisper")}, nil
}

// Name implements Provider.
func (w *WhisperLocal) Name() string { return providerWhisperLocal }

// Transcribe writes the clip to disk and returns the CLI's plain-text output.
func (w *WhisperLocal) Transcribe(ctx context.Context, clip *audio.Clip) (string, error) {
	f, err := os.CreateTemp("", "voicegate-*.wav")
	if err != nil {
		return "", WrapError(providerWhisperLocal, err)
	}
	defer os.Remove(f.Name())

	if _, err := f.Write(clip.WAV); err != nil {
		f.Close()
		return "", WrapError(providerWhisperLocal, err)
	}
	if err := f.Close(); err != nil {
		return "", WrapError(providerWhisperLocal, err)
	}

	start := time.Now()
	cmd := exec.CommandContext(ctx, w.config.BinaryPath, w.args(f.Name())...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", WrapError(providerWhisperLocal, ctx.Err())
		}
		msg := strings.TrimSpace(stderr.String())
		if len(msg) > 200 {
			msg = msg[len(msg)-200:]
		}
		return "", WrapError(providerWhisperLocal, errors.Join(err, errors.New(msg)))
	}

	text := strings.TrimSpace(stdout.String())
	w.logger.Debug("transcribed", "chars", len(text), "latency_ms", time.Since(start).Milliseconds())
	return text, nil
}

func (w *WhisperLocal) args(path string) []string {
	args := []string{"-m", w.config.Model, "-f", path, "-nt", "-np"}
	if lang := w.config.Language; lang != "" {
		// whisper.cpp wants the bare language code.
		if i := strings.IndexByte(lang, '-'); i > 0 {
			lang = lang[:i]
		}
		args = append(args, "-l", lang)
	}
	return args
}

var _ Provider = (*WhisperLocal)(nil)
