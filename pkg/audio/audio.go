// Package audio drives the local sound devices: the speaker every turn is
// played on and the microphone the background loop listens to.
package audio

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors.
var (
	// ErrNoSpeech means a capture ended without any voiced input.
	ErrNoSpeech = errors.New("audio: no speech captured")

	// ErrUnsupportedFormat means the player cannot decode the given encoding.
	ErrUnsupportedFormat = errors.New("audio: unsupported format")

	// ErrClosed is returned by devices after Close.
	ErrClosed = errors.New("audio: device closed")
)

// Encoding identifies how audio bytes are laid out.
type Encoding string

const (
	// EncodingWAV is a RIFF/WAVE container with PCM16 samples.
	EncodingWAV Encoding = "wav"
	// EncodingPCM16 is headerless little-endian signed 16-bit PCM.
	EncodingPCM16 Encoding = "pcm16"
	// EncodingMP3 is accepted from providers but not played.
	EncodingMP3 Encoding = "mp3"
)

// Format describes audio bytes.
type Format struct {
	Encoding   Encoding `json:"encoding"`
	SampleRate int      `json:"sample_rate"`
	Channels   int      `json:"channels"`
}

// Clip is one captured utterance, WAV-encoded so it can be posted to any
// recognition backend as-is.
type Clip struct {
	WAV        []byte
	SampleRate int
	Duration   time.Duration
}

// NewClip wraps mono PCM16 samples captured at sampleRate.
func NewClip(samples []int16, sampleRate int) *Clip {
	return &Clip{
		WAV:        EncodeWAV(SamplesToBytes(samples), sampleRate, 1),
		SampleRate: sampleRate,
		Duration:   time.Duration(len(samples)) * time.Second / time.Duration(sampleRate),
	}
}

// PCM returns the clip's raw samples.
func (c *Clip) PCM() ([]byte, error) {
	pcm, _, err := DecodeWAV(c.WAV)
	return pcm, err
}

// Player plays synthesized speech on the output device. Play blocks until
// playback finishes or ctx ends.
type Player interface {
	Play(ctx context.Context, data []byte, format Format) error
}

// Microphone captures one utterance at a time. Capture returns ErrNoSpeech
// when nothing was said within the listen timeout.
type Microphone interface {
	Capture(ctx context.Context) (*Clip, error)
}
