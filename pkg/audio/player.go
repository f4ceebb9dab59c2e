package audio

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"

	"github.com/teslashibe/voicegate/internal/log"
)

// Device defaults. oto allows a single context per process, so every provider's
// output is converted to this shape before playback.
const (
	DefaultSampleRate = 24000
	DefaultChannels   = 1
)

// OtoPlayer plays PCM16 and WAV audio on the default output device.
type OtoPlayer struct {
	ctx        *oto.Context
	sampleRate int
	channels   int
	logger     *slog.Logger

	mu     sync.Mutex
	active *oto.Player
}

// NewOtoPlayer opens the output device. sampleRate and channels fall back to
// DefaultSampleRate and DefaultChannels when zero.
func NewOtoPlayer(sampleRate, channels int, logger *slog.Logger) (*OtoPlayer, error) {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	if channels <= 0 {
		channels = DefaultChannels
	}

	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: channels,
		Format:       oto.FormatSignedInt16LE,
	})
	if err != nil {
		return nil, fmt.Errorf("open output device: %w", err)
	}
	<-ready

	logger = log.Or(logger).With("component", "audio.player")
	logger.Debug("output device ready", "sample_rate", sampleRate, "channels", channels)

	return &OtoPlayer{ctx: ctx, sampleRate: sampleRate, channels: channels, logger: logger}, nil
}

// Play decodes data and blocks until it has been played or ctx ends.
func (p *OtoPlayer) Play(ctx context.Context, data []byte, format Format) error {
	pcm, err := p.prepare(data, format)
	if err != nil {
		return err
	}
	if len(pcm) == 0 {
		return nil
	}

	player := p.ctx.NewPlayer(bytes.NewReader(pcm))

	p.mu.Lock()
	p.active = player
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.active = nil
		p.mu.Unlock()
	}()

	player.Play()
	p.logger.Debug("playing", "bytes", len(pcm))

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for player.IsPlaying() {
		select {
		case <-ctx.Done():
			player.Pause()
			_ = player.Close()
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return player.Close()
}

// Stop interrupts the current playback, if any.
func (p *OtoPlayer) Stop() {
	p.mu.Lock()
	active := p.active
	p.mu.Unlock()
	if active != nil {
		active.Pause()
	}
}

func (p *OtoPlayer) prepare(data []byte, format Format) ([]byte, error) {
	switch format.Encoding {
	case EncodingWAV:
		pcm, f, err := DecodeWAV(data)
		if err != nil {
			return nil, err
		}
		return Convert(pcm, f, p.sampleRate, p.channels), nil
	case EncodingPCM16:
		if format.SampleRate == 0 {
			format.SampleRate = p.sampleRate
		}
		if format.Channels == 0 {
			format.Channels = 1
		}
		return Convert(data, format, p.sampleRate, p.channels), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format.Encoding)
	}
}

var _ Player = (*OtoPlayer)(nil)
