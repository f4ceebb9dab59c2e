package audio

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// PlayCall records one MockPlayer.Play call.
type PlayCall struct {
	Data   []byte
	Format Format
}

// MockPlayer records playback and tracks how many plays overlap.
type MockPlayer struct {
	PlayFunc func(ctx context.Context, data []byte, format Format) error
	Latency  time.Duration

	mu    sync.Mutex
	calls []PlayCall

	active     atomic.Int32
	maxOverlap atomic.Int32
}

// NewMockPlayer creates a player that accepts everything.
func NewMockPlayer() *MockPlayer {
	return &MockPlayer{}
}

// Play implements Player.
func (m *MockPlayer) Play(ctx context.Context, data []byte, format Format) error {
	n := m.active.Add(1)
	defer m.active.Add(-1)
	for {
		cur := m.maxOverlap.Load()
		if n <= cur || m.maxOverlap.CompareAndSwap(cur, n) {
			break
		}
	}

	m.mu.Lock()
	m.calls = append(m.calls, PlayCall{Data: data, Format: format})
	m.mu.Unlock()

	if m.Latency > 0 {
		select {
		case <-time.After(m.Latency):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if m.PlayFunc != nil {
		return m.PlayFunc(ctx, data, format)
	}
	return nil
}

// Calls returns all recorded plays.
func (m *MockPlayer) Calls() []PlayCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]PlayCall(nil), m.calls...)
}

// CallCount returns the number of plays.
func (m *MockPlayer) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// MaxOverlap returns the highest number of concurrent Play calls observed.
func (m *MockPlayer) MaxOverlap() int {
	return int(m.maxOverlap.Load())
}

// Reset clears recorded calls.
func (m *MockPlayer) Reset() {
	m.mu.Lock()
	m.calls = nil
	m.mu.Unlock()
	m.maxOverlap.Store(0)
}

// MockMicrophone hands out queued clips, then ErrNoSpeech.
type MockMicrophone struct {
	mu       sync.Mutex
	clips    []*Clip
	captures int
}

// NewMockMicrophone creates a microphone that will return clips in order.
func NewMockMicrophone(clips ...*Clip) *MockMicrophone {
	return &MockMicrophone{clips: clips}
}

// Push queues another clip.
func (m *MockMicrophone) Push(c *Clip) {
	m.mu.Lock()
	m.clips = append(m.clips, c)
	m.mu.Unlock()
}

// Capture implements Microphone.
func (m *MockMicrophone) Capture(ctx context.Context) (*Clip, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.captures++
	if len(m.clips) == 0 {
		return nil, ErrNoSpeech
	}
	c := m.clips[0]
	m.clips = m.clips[1:]
	return c, nil
}

// CaptureCount returns how many times Capture was called.
func (m *MockMicrophone) CaptureCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.captures
}

var (
	_ Player     = (*MockPlayer)(nil)
	_ Microphone = (*MockMicrophone)(nil)
)
