package tts

import (
	"context"
	"sync"
	"time"

	"github.com/teslashibe/voicegate/pkg/audio"
)

// Mock records every request and answers with SynthesizeFunc, or with
// silence roughly as long as the text would take to say.
type Mock struct {
	ProviderName   string
	SynthesizeFunc func(ctx context.Context, text string) (*AudioResult, error)

	mu    sync.Mutex
	calls []MockCall
}

// MockCall is one recorded request.
type MockCall struct {
	Method string
	Text   string
	Time   time.Time
}

// NewMock creates a mock that answers with silence.
func NewMock() *Mock {
	return &Mock{SynthesizeFunc: silence}
}

// WithError returns a mock whose every synthesis fails with err.
func WithError(err error) *Mock {
	return &Mock{SynthesizeFunc: func(context.Context, string) (*AudioResult, error) {
		return nil, err
	}}
}

// WithLatency delays m's answers by d, honoring cancellation.
func WithLatency(m *Mock, d time.Duration) *Mock {
	next := m.SynthesizeFunc
	if next == nil {
		next = silence
	}
	m.SynthesizeFunc = func(ctx context.Context, text string) (*AudioResult, error) {
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-t.C:
			return next(ctx, text)
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return m
}

// 20ms of 24kHz mono PCM16 per character.
func silence(_ context.Context, text string) (*AudioResult, error) {
	n := len([]rune(text))
	return &AudioResult{
		Audio:     make([]byte, n*960),
		Format:    audio.Format{Encoding: audio.EncodingPCM16, SampleRate: 24000, Channels: 1},
		Duration:  time.Duration(n) * 20 * time.Millisecond,
		CharCount: len(text),
	}, nil
}

// Name implements Provider.
func (m *Mock) Name() string {
	if m.ProviderName == "" {
		return "mock"
	}
	return m.ProviderName
}

// Synthesize records the call and answers with SynthesizeFunc.
func (m *Mock) Synthesize(ctx context.Context, text string) (*AudioResult, error) {
	m.mu.Lock()
	m.calls = append(m.calls, MockCall{Method: "Synthesize", Text: text, Time: time.Now()})
	fn := m.SynthesizeFunc
	m.mu.Unlock()

	if fn == nil {
		fn = silence
	}
	return fn(ctx, text)
}

// Calls returns a copy of every recorded call.
func (m *Mock) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockCall(nil), m.calls...)
}

// CallCount returns the number of times method was called.
func (m *Mock) CallCount(method string) int {
	n := 0
	for _, c := range m.Calls() {
		if c.Method == method {
			n++
		}
	}
	return n
}

// LastCall returns nil before the first request.
func (m *Mock) LastCall() *MockCall {
	calls := m.Calls()
	if len(calls) == 0 {
		return nil
	}
	return &calls[len(calls)-1]
}

// Reset clears all recorded calls.
func (m *Mock) Reset() {
	m.mu.Lock()
	m.calls = nil
	m.mu.Unlock()
}

// Verify Mock implements Provider at compile time.
var _ Provider = (*Mock)(nil)
