// Package tts provides the synthesis step of a turn.
//
// Every backend (VOICEVOX, Watson, OpenAI, ElevenLabs, Amazon Polly, Google)
// implements Provider and returns audio the local player can decode: WAV or
// headerless PCM16. Providers are combined into a fallback chain with NewChain:
//
//	v, _ := tts.NewVoicevox(tts.WithBaseURL("http://localhost:50021"))
//	o, _ := tts.NewOpenAI(tts.WithAPIKey(os.Getenv("OPENAI_API_KEY")))
//	c, _ := tts.NewChain([]tts.Provider{v, o})
//
//	res, _ := c.Dispatch(ctx, "Hello world")
//	// res.Value.Audio is ready for audio.Player
package tts

import (
	"context"
	"time"

	"github.com/teslashibe/voicegate/pkg/audio"
	"github.com/teslashibe/voicegate/pkg/chain"
)

// Provider defines the TTS provider interface.
type Provider interface {
	// Name identifies the provider in logs and health output.
	Name() string

	// Synthesize converts text to audio, returning the complete audio buffer.
	Synthesize(ctx context.Context, text string) (*AudioResult, error)
}

// AudioResult represents a complete audio synthesis result.
type AudioResult struct {
	// Audio contains the raw audio data in the specified format.
	Audio []byte

	// Format describes the audio encoding and sample rate.
	Format audio.Format

	// Duration is the estimated audio playback duration.
	Duration time.Duration

	// CharCount is the number of characters synthesized.
	CharCount int

	// LatencyMs is the request latency in milliseconds.
	LatencyMs int64
}

// Usable reports whether the result carries playable audio.
func (r *AudioResult) Usable() bool {
	return r != nil && len(r.Audio) > 0
}

// Link adapts a Provider to a chain slot.
func Link(p Provider) chain.Provider[string, *AudioResult] {
	return chain.Func(p.Name(), p.Synthesize)
}

// NewChain builds the synthesis fallback chain in the given order.
func NewChain(providers []Provider, opts ...chain.Option) (*chain.Chain[string, *AudioResult], error) {
	links := make([]chain.Provider[string, *AudioResult], len(providers))
	for i, p := range providers {
		links[i] = Link(p)
	}
	return chain.New("tts", (*AudioResult).Usable, links, opts...)
}

// pcmDuration estimates playback time of mono PCM16.
func pcmDuration(bytes, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(bytes/2) * time.Second / time.Duration(sampleRate)
}
