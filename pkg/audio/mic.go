package audio

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"

	"github.com/teslashibe/voicegate/internal/log"
)

// MicConfig bounds a single capture.
type MicConfig struct {
	SampleRate int
	FrameSize  int

	// ListenTimeout is how long to wait for speech to start.
	ListenTimeout time.Duration
	// PhraseLimit caps the length of one utterance.
	PhraseLimit time.Duration
	// SilenceHold ends the utterance after this much trailing silence.
	SilenceHold time.Duration
	// Threshold is the energy (see CalculateRMS) separating speech from silence.
	Threshold float64
}

// DefaultMicConfig returns 16kHz capture with a 5s listen timeout and a 10s phrase limit.
func DefaultMicConfig() MicConfig {
	return MicConfig{
		SampleRate:    16000,
		FrameSize:     512,
		ListenTimeout: 5 * time.Second,
		PhraseLimit:   10 * time.Second,
		SilenceHold:   800 * time.Millisecond,
		Threshold:     0.001,
	}
}

func (c MicConfig) withDefaults() MicConfig {
	d := DefaultMicConfig()
	if c.SampleRate <= 0 {
		c.SampleRate = d.SampleRate
	}
	if c.FrameSize <= 0 {
		c.FrameSize = d.FrameSize
	}
	if c.ListenTimeout <= 0 {
		c.ListenTimeout = d.ListenTimeout
	}
	if c.PhraseLimit <= 0 {
		c.PhraseLimit = d.PhraseLimit
	}
	if c.SilenceHold <= 0 {
		c.SilenceHold = d.SilenceHold
	}
	if c.Threshold <= 0 {
		c.Threshold = d.Threshold
	}
	return c
}

// PortAudioMic captures from the default input device.
type PortAudioMic struct {
	cfg    MicConfig
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
}

// NewPortAudioMic initialises PortAudio. Call Close to release it.
func NewPortAudioMic(cfg MicConfig, logger *slog.Logger) (*PortAudioMic, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("init portaudio: %w", err)
	}
	cfg = cfg.withDefaults()
	logger = log.Or(logger).With("component", "audio.mic")
	logger.Debug("input device ready", "sample_rate", cfg.SampleRate, "frame_size", cfg.FrameSize)
	return &PortAudioMic{cfg: cfg, logger: logger}, nil
}

// Capture records one utterance. It returns ErrNoSpeech when nothing was
// said within the listen timeout.
func (m *PortAudioMic) Capture(ctx context.Context) (*Clip, error) {
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}

	buf := make([]int16, m.cfg.FrameSize)
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(m.cfg.SampleRate), len(buf), buf)
	if err != nil {
		return nil, fmt.Errorf("open input stream: %w", err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return nil, fmt.Errorf("start input stream: %w", err)
	}
	defer stream.Stop()

	reader := frameFunc(func() ([]int16, error) {
		if err := stream.Read(); err != nil {
			return nil, err
		}
		return buf, nil
	})

	samples, err := record(ctx, reader, m.cfg)
	if err != nil {
		return nil, err
	}
	clip := NewClip(samples, m.cfg.SampleRate)
	m.logger.Debug("captured utterance", "duration", clip.Duration)
	return clip, nil
}

// Close terminates PortAudio.
func (m *PortAudioMic) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	return portaudio.Terminate()
}

type frameReader interface {
	ReadFrame() ([]int16, error)
}

type frameFunc func() ([]int16, error)

func (f frameFunc) ReadFrame() ([]int16, error) { return f() }

// record runs energy-based endpointing over frames from r. Time is measured
// in captured audio, not wall clock, so a stalled device cannot stretch it.
func record(ctx context.Context, r frameReader, cfg MicConfig) ([]int16, error) {
	cfg = cfg.withDefaults()

	var (
		out       []int16
		prev      []int16
		started   bool
		waited    time.Duration
		recorded  time.Duration
		silentFor time.Duration
	)

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		frame, err := r.ReadFrame()
		if err != nil {
			return nil, fmt.Errorf("read input frame: %w", err)
		}
		if len(frame) == 0 {
			continue
		}
		dur := time.Duration(len(frame)) * time.Second / time.Duration(cfg.SampleRate)
		voiced := CalculateRMS(frame) >= cfg.Threshold

		if !started {
			if !voiced {
				waited += dur
				if waited >= cfg.ListenTimeout {
					return nil, ErrNoSpeech
				}
				prev = append(prev[:0], frame...)
				continue
			}
			started = true
			// Keep one frame of lead-in so the first syllable is not clipped.
			out = append(out, prev...)
		}

		out = append(out, frame...)
		recorded += dur

		if voiced {
			silentFor = 0
		} else {
			silentFor += dur
		}
		if silentFor >= cfg.SilenceHold || recorded >= cfg.PhraseLimit {
			return out, nil
		}
	}
}

var _ Microphone = (*PortAudioMic)(nil)
