// Package chain implements ordered multi-provider fallback.
//
// A Chain walks its providers in priority order and returns the first usable
// result. Transport errors, auth errors and empty values all fall through to
// the next provider; each provider is called at most once per dispatch.
//
// Recognition, generation and synthesis each build one Chain at startup:
//
//	c, err := chain.New("tts", usable, providers, chain.WithProviderTimeout(10*time.Second))
//	res, err := c.Dispatch(ctx, "hello")
//	if res.OK {
//		play(res.Value)
//	}
package chain

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/teslashibe/voicegate/internal/log"
)

// Provider is one backend for a pipeline step.
type Provider[In, Out any] interface {
	// Name identifies the provider in logs, results and health output.
	Name() string

	// Invoke performs the step. A nil error with an unusable value is
	// treated the same as an error.
	Invoke(ctx context.Context, in In) (Out, error)
}

// Dispatcher is the read side of a Chain, accepted by consumers.
type Dispatcher[In, Out any] interface {
	Dispatch(ctx context.Context, in In) (Result[Out], error)
	Names() []string
}

// Result is the outcome of a dispatch. Value and Provider are only set when OK.
type Result[Out any] struct {
	OK       bool
	Value    Out
	Provider string
}

// Chain tries providers in order until one returns a usable value.
type Chain[In, Out any] struct {
	step      string
	providers []Provider[In, Out]
	usable    func(Out) bool
	timeout   time.Duration
	logger    *slog.Logger
}

type settings struct {
	timeout time.Duration
	logger  *slog.Logger
}

// Option configures a Chain.
type Option func(*settings)

// WithProviderTimeout bounds every provider call.
func WithProviderTimeout(d time.Duration) Option {
	return func(s *settings) { s.timeout = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *settings) { s.logger = l }
}

// New creates a chain for step. usable may be nil, in which case any value
// returned without error is accepted. Returns ErrEmptyChain if providers is empty.
func New[In, Out any](step string, usable func(Out) bool, providers []Provider[In, Out], opts ...Option) (*Chain[In, Out], error) {
	if len(providers) == 0 {
		return nil, &ChainError{Step: step, Errors: []error{ErrEmptyChain}}
	}

	var s settings
	for _, opt := range opts {
		opt(&s)
	}
	if usable == nil {
		usable = func(Out) bool { return true }
	}

	return &Chain[In, Out]{
		step:      step,
		providers: append([]Provider[In, Out](nil), providers...),
		usable:    usable,
		timeout:   s.timeout,
		logger:    log.Or(s.logger).With("component", "chain", "step", step),
	}, nil
}

// Dispatch walks the providers and returns the first usable result.
// On exhaustion it returns a zero Result and a *ChainError. If ctx is
// cancelled the walk stops and ctx.Err() is returned.
func (c *Chain[In, Out]) Dispatch(ctx context.Context, in In) (Result[Out], error) {
	var failures []error

	for i, p := range c.providers {
		if err := ctx.Err(); err != nil {
			return Result[Out]{}, err
		}

		out, err := c.invoke(ctx, p, in)
		if err == nil && !c.usable(out) {
			err = ErrUnusable
		}
		if err == nil {
			if i > 0 {
				c.logger.Info("fallback provider succeeded",
					"provider", p.Name(),
					"provider_index", i)
			}
			return Result[Out]{OK: true, Value: out, Provider: p.Name()}, nil
		}

		failures = append(failures, &ProviderError{Provider: p.Name(), Err: err})
		c.logger.Warn("provider failed, trying next",
			"provider", p.Name(),
			"provider_index", i,
			"error", err)

		if ctxErr := ctx.Err(); ctxErr != nil {
			return Result[Out]{}, ctxErr
		}
	}

	return Result[Out]{}, &ChainError{Step: c.step, Errors: failures}
}

func (c *Chain[In, Out]) invoke(ctx context.Context, p Provider[In, Out], in In) (Out, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	out, err := p.Invoke(ctx, in)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return out, errors.Join(ErrProviderTimeout, err)
	}
	return out, err
}

// Step returns the pipeline step name the chain serves.
func (c *Chain[In, Out]) Step() string {
	return c.step
}

// Names returns provider names in dispatch order.
func (c *Chain[In, Out]) Names() []string {
	names := make([]string, len(c.providers))
	for i, p := range c.providers {
		names[i] = p.Name()
	}
	return names
}

// Len returns the number of providers.
func (c *Chain[In, Out]) Len() int {
	return len(c.providers)
}

// Func adapts a plain function to a Provider.
func Func[In, Out any](name string, fn func(context.Context, In) (Out, error)) Provider[In, Out] {
	return funcProvider[In, Out]{name: name, fn: fn}
}

type funcProvider[In, Out any] struct {
	name string
	fn   func(context.Context, In) (Out, error)
}

func (f funcProvider[In, Out]) Name() string { return f.name }

func (f funcProvider[In, Out]) Invoke(ctx context.Context, in In) (Out, error) {
	return f.fn(ctx, in)
}

var _ Dispatcher[string, string] = (*Chain[string, string])(nil)
