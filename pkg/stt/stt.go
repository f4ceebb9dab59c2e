// Package stt provides the recognition step of a turn.
//
// Backends (local whisper.cpp, IBM Watson, OpenAI Whisper, Google
// Speech-to-Text) implement Provider. NewChain combines them into a fallback
// chain whose results are passed through Clean, so a provider that only
// hears "[BLANK_AUDIO]" counts as unusable and the next one is tried.
package stt

import (
	"context"
	"regexp"
	"strings"

	"github.com/teslashibe/voicegate/pkg/audio"
	"github.com/teslashibe/voicegate/pkg/chain"
)

// Provider transcribes one captured utterance.
type Provider interface {
	Name() string
	Transcribe(ctx context.Context, clip *audio.Clip) (string, error)
}

// Link adapts a Provider to a chain slot, cleaning its output.
func Link(p Provider) chain.Provider[*audio.Clip, string] {
	return chain.Func(p.Name(), func(ctx context.Context, clip *audio.Clip) (string, error) {
		if clip == nil || len(clip.WAV) == 0 {
			return "", WrapError(p.Name(), ErrEmptyClip)
		}
		text, err := p.Transcribe(ctx, clip)
		if err != nil {
			return "", err
		}
		return Clean(text), nil
	})
}

// NewChain builds the recognition fallback chain in the given order.
func NewChain(providers []Provider, opts ...chain.Option) (*chain.Chain[*audio.Clip, string], error) {
	links := make([]chain.Provider[*audio.Clip, string], len(providers))
	for i, p := range providers {
		links[i] = Link(p)
	}
	return chain.New("stt", func(s string) bool { return s != "" }, links, opts...)
}

// annotation matches bracketed sound descriptions such as "(keyboard clicking)"
// or "[laughter]".
var annotation = regexp.MustCompile(`[\(\[][a-zA-Z][a-zA-Z_\s]*[\)\]]`)

// timestamp matches whisper segment prefixes like "[00:00:00.000 --> 00:00:05.000]".
var timestamp = regexp.MustCompile(`\[\d{2}:\d{2}[:.\d]*\s*-->\s*\d{2}:\d{2}[:.\d]*\]`)

var hallucinations = map[string]bool{
	"...":                     true,
	"you":                     true,
	"thank you.":              true,
	"thanks for watching!":    true,
	"thank you for watching.": true,
	"ご視聴ありがとうございました":          true,
}

// Clean removes recognizer artifacts: segment timestamps, bracketed sound
// annotations, collapsed whitespace and a few well-known hallucinations.
// It returns "" when nothing spoken remains.
func Clean(s string) string {
	s = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ").Replace(s)
	s = timestamp.ReplaceAllString(s, " ")
	s = annotation.ReplaceAllString(s, " ")
	s = strings.Join(strings.Fields(s), " ")

	if hallucinations[strings.ToLower(s)] {
		return ""
	}
	return s
}
