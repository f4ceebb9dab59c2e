package llm

import (
	"context"
	"sync"
	"time"
)

// Mock implements Provider for testing.
type Mock struct {
	ProviderName string

	// GenerateFunc is called by Generate. If nil, Reply is returned.
	GenerateFunc func(ctx context.Context, req *Request) (string, error)
	Reply        string

	mu    sync.Mutex
	calls []MockCall
}

// MockCall records one Generate call.
type MockCall struct {
	Request Request
	Time    time.Time
}

// NewMock returns a mock that always replies with reply.
func NewMock(reply string) *Mock {
	return &Mock{Reply: reply}
}

// WithError returns a mock that always fails with err.
func WithError(err error) *Mock {
	return &Mock{GenerateFunc: func(context.Context, *Request) (string, error) { return "", err }}
}

// Name implements Provider.
func (m *Mock) Name() string {
	if m.ProviderName == "" {
		return "mock"
	}
	return m.ProviderName
}

// Generate implements Provider.
func (m *Mock) Generate(ctx context.Context, req *Request) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, MockCall{Request: *req, Time: time.Now()})
	m.mu.Unlock()

	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, req)
	}
	return m.Reply, nil
}

// Calls returns recorded calls.
func (m *Mock) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockCall(nil), m.calls...)
}

// CallCount returns the number of Generate calls.
func (m *Mock) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// LastCall returns the most recent call, or nil.
func (m *Mock) LastCall() *MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		return nil
	}
	c := m.calls[len(m.calls)-1]
	return &c
}

var _ Provider = (*Mock)(nil)
