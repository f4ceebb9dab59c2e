package chain

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/voicegate/internal/log"
)

type countingProvider struct {
	name  string
	calls atomic.Int32
	fn    func(ctx context.Context, in string) (string, error)
}

func (p *countingProvider) Name() string { return p.name }

func (p *countingProvider) Invoke(ctx context.Context, in string) (string, error) {
	p.calls.Add(1)
	return p.fn(ctx, in)
}

func failing(name string) *countingProvider {
	return &countingProvider{name: name, fn: func(context.Context, string) (string, error) {
		return "", errors.New(name + " down")
	}}
}

func returning(name, value string) *countingProvider {
	return &countingProvider{name: name, fn: func(context.Context, string) (string, error) {
		return value, nil
	}}
}

func nonEmpty(s string) bool { return s != "" }

func newChain(t *testing.T, ps []*countingProvider, opts ...Option) *Chain[string, string] {
	t.Helper()
	providers := make([]Provider[string, string], len(ps))
	for i, p := range ps {
		providers[i] = p
	}
	opts = append(opts, WithLogger(log.Discard()))
	c, err := New("test", nonEmpty, providers, opts...)
	require.NoError(t, err)
	return c
}

func TestDispatchFallsThroughToLastProvider(t *testing.T) {
	ps := []*countingProvider{failing("a"), failing("b"), returning("c", "ok")}
	c := newChain(t, ps)

	res, err := c.Dispatch(context.Background(), "in")
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Equal(t, "ok", res.Value)
	assert.Equal(t, "c", res.Provider)

	for _, p := range ps {
		assert.Equal(t, int32(1), p.calls.Load(), "provider %s", p.name)
	}
}

func TestDispatchStopsAtFirstSuccess(t *testing.T) {
	ps := []*countingProvider{returning("a", "first"), returning("b", "second")}
	c := newChain(t, ps)

	res, err := c.Dispatch(context.Background(), "in")
	require.NoError(t, err)
	assert.Equal(t, "first", res.Value)
	assert.Equal(t, int32(0), ps[1].calls.Load())
}

func TestDispatchTreatsEmptyValueAsFailure(t *testing.T) {
	ps := []*countingProvider{returning("a", ""), returning("b", "value")}
	c := newChain(t, ps)

	res, err := c.Dispatch(context.Background(), "in")
	require.NoError(t, err)
	assert.Equal(t, "b", res.Provider)
}

func TestDispatchExhausted(t *testing.T) {
	ps := []*countingProvider{failing("a"), returning("b", "")}
	c := newChain(t, ps)

	res, err := c.Dispatch(context.Background(), "in")
	assert.False(t, res.OK)
	assert.Empty(t, res.Value)
	assert.Empty(t, res.Provider)

	var ce *ChainError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "test", ce.Step)
	assert.Len(t, ce.Errors, 2)
	assert.ErrorIs(t, err, ErrUnusable)

	var pe *ProviderError
	require.ErrorAs(t, ce.Errors[0], &pe)
	assert.Equal(t, "a", pe.Provider)
}

func TestDispatchProviderTimeout(t *testing.T) {
	slow := &countingProvider{name: "slow", fn: func(ctx context.Context, _ string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}}
	c := newChain(t, []*countingProvider{slow, returning("fast", "done")},
		WithProviderTimeout(20*time.Millisecond))

	start := time.Now()
	res, err := c.Dispatch(context.Background(), "in")
	require.NoError(t, err)
	assert.Equal(t, "fast", res.Provider)
	assert.Less(t, time.Since(start), time.Second)
}

func TestDispatchTimeoutErrorIsReported(t *testing.T) {
	slow := &countingProvider{name: "slow", fn: func(ctx context.Context, _ string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}}
	c := newChain(t, []*countingProvider{slow}, WithProviderTimeout(10*time.Millisecond))

	_, err := c.Dispatch(context.Background(), "in")
	assert.ErrorIs(t, err, ErrProviderTimeout)
}

func TestDispatchCancelledContextStopsWalk(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	first := &countingProvider{name: "a", fn: func(context.Context, string) (string, error) {
		cancel()
		return "", errors.New("boom")
	}}
	second := returning("b", "never")
	c := newChain(t, []*countingProvider{first, second})

	res, err := c.Dispatch(ctx, "in")
	assert.False(t, res.OK)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(0), second.calls.Load())
}

func TestNewEmptyChain(t *testing.T) {
	_, err := New[string, string]("stt", nil, nil)
	assert.ErrorIs(t, err, ErrEmptyChain)
}

func TestFuncAndNames(t *testing.T) {
	p := Func("upper", func(_ context.Context, in string) (string, error) { return in + "!", nil })
	c, err := New("x", nil, []Provider[string, string]{p}, WithLogger(log.Discard()))
	require.NoError(t, err)

	assert.Equal(t, []string{"upper"}, c.Names())
	assert.Equal(t, 1, c.Len())
	assert.Equal(t, "x", c.Step())

	res, err := c.Dispatch(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "hi!", res.Value)
}

func TestOrder(t *testing.T) {
	specs := []Spec{
		{Name: "openai", Enabled: true, Priority: 30},
		{Name: "whisper-local", Enabled: true, Priority: 10},
		{Name: "watson", Enabled: false, Priority: 5},
		{Name: "google", Enabled: true, Priority: 30},
	}
	got := Names(Order(specs))
	assert.Equal(t, []string{"whisper-local", "openai", "google"}, got)
}
