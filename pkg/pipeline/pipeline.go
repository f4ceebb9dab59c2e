// Package pipeline runs one conversational turn:
// recognition -> generation -> synthesis -> notification.
//
// The pipeline holds no lock of its own. Callers bracket Run, Recognize and
// Speak with the process-wide gate so at most one turn reaches the output
// device at a time.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/teslashibe/voicegate/internal/log"
	"github.com/teslashibe/voicegate/pkg/audio"
	"github.com/teslashibe/voicegate/pkg/chain"
	"github.com/teslashibe/voicegate/pkg/llm"
	"github.com/teslashibe/voicegate/pkg/tts"
)

// Sentinel errors.
var (
	// ErrNoSpeech means recognition produced no usable text; the turn was dropped.
	ErrNoSpeech = errors.New("pipeline: no speech recognized")

	// ErrNoRecognizer is returned when a turn carrying audio reaches a
	// pipeline built without a recognition chain.
	ErrNoRecognizer = errors.New("pipeline: no recognition chain")
)

// Source tags where a turn came from.
type Source string

const (
	SourceMic     Source = "mic"
	SourceWebhook Source = "webhook"
)

// Turn is one completed request/response cycle.
type Turn struct {
	ID        string    `json:"turn_id"`
	Source    Source    `json:"source"`
	Identity  string    `json:"user_id"`
	Input     string    `json:"user_input"`
	Output    string    `json:"ai_response"`
	Provider  string    `json:"llm_provider"`
	CreatedAt time.Time `json:"created_at"`
	Timings   Timings   `json:"-"`
	// Errors lists the steps that fell back ("llm", "tts").
	Errors []string `json:"errors,omitempty"`
}

// Request starts a turn. Text wins over Audio when both are set, and a
// request with neither is an empty-input turn.
type Request struct {
	Text     string
	Audio    *audio.Clip
	Identity string
	Source   Source
}

// Type aliases for the three step chains.
type (
	Recognizer  = chain.Dispatcher[*audio.Clip, string]
	Generator   = chain.Dispatcher[*llm.Request, string]
	Synthesizer = chain.Dispatcher[string, *tts.AudioResult]
)

// Notifier receives finished turns. Notify must not block.
type Notifier interface {
	Notify(t Turn)
}

// Activity is refreshed whenever a turn completes.
type Activity interface {
	Touch(at time.Time)
}

// EventKind names a turn lifecycle event.
type EventKind string

const (
	EventTurnStarted  EventKind = "turn.started"
	EventTurnFinished EventKind = "turn.finished"
	EventSpoken       EventKind = "spoken"
)

// Event is published to the Observer.
type Event struct {
	Kind EventKind `json:"type"`
	Turn *Turn     `json:"turn,omitempty"`
	Text string    `json:"text,omitempty"`
	Time time.Time `json:"time"`
}

// Observer receives lifecycle events. Observe must not block.
type Observer interface {
	Observe(e Event)
}

// Config holds the fixed messages and limits of a turn.
type Config struct {
	MaxPromptLength  int
	TooLongMessage   string
	EmptyMessage     string
	NoAnswerMessage  string
	ApologyMessage   string
	DefaultIdentity  string
	LLMProvider      string
	LLMTimeout       time.Duration
	SynthesisTimeout time.Duration
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithRecognizer sets the recognition chain.
func WithRecognizer(r Recognizer) Option {
	return func(p *Pipeline) { p.stt = r }
}

// WithNotifier sets the turn notifier.
func WithNotifier(n Notifier) Option {
	return func(p *Pipeline) { p.notifier = n }
}

// WithActivity sets the interaction tracker.
func WithActivity(a Activity) Option {
	return func(p *Pipeline) { p.activity = a }
}

// WithObserver sets the event observer.
func WithObserver(o Observer) Option {
	return func(p *Pipeline) { p.observer = o }
}

// WithMetrics sets the timing collector.
func WithMetrics(m *Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// Pipeline composes the step chains into turns.
type Pipeline struct {
	cfg      Config
	stt      Recognizer
	llm      Generator
	tts      Synthesizer
	player   audio.Player
	notifier Notifier
	activity Activity
	observer Observer
	metrics  *Metrics
	logger   *slog.Logger
	now      func() time.Time
}

// New creates a pipeline. Generation, synthesis and the player are required.
func New(cfg Config, gen Generator, synth Synthesizer, player audio.Player, opts ...Option) (*Pipeline, error) {
	if gen == nil || synth == nil || player == nil {
		return nil, errors.New("pipeline: generator, synthesizer and player are required")
	}
	p := &Pipeline{
		cfg:     cfg,
		llm:     gen,
		tts:     synth,
		player:  player,
		metrics: NewMetrics(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = log.Or(p.logger).With("component", "pipeline")
	return p, nil
}

// Metrics returns the timing collector.
func (p *Pipeline) Metrics() *Metrics {
	return p.metrics
}

// Run executes one turn. It returns ErrNoSpeech (and a nil turn) when
// recognition yields nothing; every later failure falls back to a fixed
// message and still returns the turn.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Turn, error) {
	start := p.now()
	var timings Timings

	input := req.Text
	if input == "" && req.Audio != nil {
		text, err := p.Recognize(ctx, req.Audio)
		if err != nil {
			return nil, err
		}
		input = text
		timings.Recognition = p.now().Sub(start)
	}

	identity := req.Identity
	if identity == "" {
		identity = p.cfg.DefaultIdentity
	}

	turn := &Turn{
		ID:        uuid.NewString(),
		Source:    req.Source,
		Identity:  identity,
		Input:     input,
		CreatedAt: start,
	}
	p.publish(EventTurnStarted, turn, "")
	p.logger.Info("turn started", "turn_id", turn.ID, "source", turn.Source, "input", input)

	genStart := p.now()
	turn.Output, turn.Provider = p.respond(ctx, turn, input, identity)
	timings.Generation = p.now().Sub(genStart)

	synthStart := p.now()
	if err := p.Speak(ctx, turn.Output); err != nil {
		turn.Errors = append(turn.Errors, "tts")
		p.logger.Error("synthesis failed", "turn_id", turn.ID, "error", err)
	}
	timings.Synthesis = p.now().Sub(synthStart)

	end := p.now()
	timings.Total = end.Sub(start)
	turn.Timings = timings
	p.metrics.Record(timings)

	if p.notifier != nil {
		p.notifier.Notify(*turn)
	}
	if p.activity != nil {
		p.activity.Touch(end)
	}

	p.publish(EventTurnFinished, turn, "")
	p.logger.Info("turn finished",
		"turn_id", turn.ID,
		"provider", turn.Provider,
		"latency", timings.FormatLatency())
	return turn, nil
}

// respond produces the reply text. It never fails; fallbacks are fixed messages.
func (p *Pipeline) respond(ctx context.Context, turn *Turn, input, identity string) (string, string) {
	if n := utf8.RuneCountInString(input); n > p.cfg.MaxPromptLength && p.cfg.MaxPromptLength > 0 {
		p.logger.Warn("prompt too long", "turn_id", turn.ID, "runes", n, "max", p.cfg.MaxPromptLength)
		return expand(p.cfg.TooLongMessage, p.cfg.MaxPromptLength), p.cfg.LLMProvider
	}
	if strings.TrimSpace(input) == "" {
		return p.cfg.EmptyMessage, p.cfg.LLMProvider
	}
	prompt := Sanitize(input)

	if p.cfg.LLMTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.LLMTimeout)
		defer cancel()
	}

	res, err := p.llm.Dispatch(ctx, &llm.Request{Prompt: prompt, Identity: identity})
	if err != nil || !res.OK {
		turn.Errors = append(turn.Errors, "llm")
		p.logger.Error("generation failed", "turn_id", turn.ID, "error", err)
		return p.cfg.ApologyMessage, p.cfg.LLMProvider
	}

	text := StripThinking(res.Value)
	if text == "" {
		return p.cfg.NoAnswerMessage, res.Provider
	}
	return text, res.Provider
}

// Recognize runs the recognition chain on clip.
func (p *Pipeline) Recognize(ctx context.Context, clip *audio.Clip) (string, error) {
	if p.stt == nil {
		return "", ErrNoRecognizer
	}
	res, err := p.stt.Dispatch(ctx, clip)
	if err != nil || !res.OK {
		p.logger.Debug("recognition produced nothing", "error", err)
		if err == nil {
			return "", ErrNoSpeech
		}
		return "", fmt.Errorf("%w: %w", ErrNoSpeech, err)
	}
	p.logger.Debug("recognized", "provider", res.Provider, "text", res.Value)
	return res.Value, nil
}

// Speak synthesizes text and plays it on the output device.
func (p *Pipeline) Speak(ctx context.Context, text string) error {
	synthCtx := ctx
	if p.cfg.SynthesisTimeout > 0 {
		var cancel context.CancelFunc
		synthCtx, cancel = context.WithTimeout(ctx, p.cfg.SynthesisTimeout)
		defer cancel()
	}

	res, err := p.tts.Dispatch(synthCtx, text)
	if err != nil {
		return fmt.Errorf("synthesize: %w", err)
	}
	if err := p.player.Play(ctx, res.Value.Audio, res.Value.Format); err != nil {
		return fmt.Errorf("play %s audio: %w", res.Provider, err)
	}
	p.publish(EventSpoken, nil, text)
	return nil
}

func (p *Pipeline) publish(kind EventKind, turn *Turn, text string) {
	if p.observer == nil {
		return
	}
	e := Event{Kind: kind, Text: text, Time: p.now()}
	if turn != nil {
		t := *turn
		e.Turn = &t
	}
	p.observer.Observe(e)
}
