package stt

import (
	"context"
	"sync"

	"github.com/teslashibe/voicegate/pkg/audio"
)

// Mock implements Provider for testing.
type Mock struct {
	ProviderName string

	// TranscribeFunc is called by Transcribe. If nil, Text is returned.
	TranscribeFunc func(ctx context.Context, clip *audio.Clip) (string, error)
	Text           string

	mu    sync.Mutex
	calls int
}

// NewMock returns a mock that always hears text.
func NewMock(text string) *Mock {
	return &Mock{Text: text}
}

// Name implements Provider.
func (m *Mock) Name() string {
	if m.ProviderName == "" {
		return "mock"
	}
	return m.ProviderName
}

// Transcribe implements Provider.
func (m *Mock) Transcribe(ctx context.Context, clip *audio.Clip) (string, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.TranscribeFunc != nil {
		return m.TranscribeFunc(ctx, clip)
	}
	return m.Text, nil
}

// CallCount returns the number of Transcribe calls.
func (m *Mock) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

var _ Provider = (*Mock)(nil)
