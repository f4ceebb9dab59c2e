package idle

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"

	"github.com/teslashibe/voicegate/internal/log"
	"github.com/teslashibe/voicegate/pkg/audio"
	"github.com/teslashibe/voicegate/pkg/gate"
	"github.com/teslashibe/voicegate/pkg/pipeline"
)

// ErrTerminated is returned by Run after the terminate phrase was heard.
var ErrTerminated = errors.New("idle: terminated by voice command")

// Gate is the exclusive access gate shared with external triggers.
type Gate interface {
	Do(ctx context.Context, wait time.Duration, holder string, fn func() error) error
	TryDo(holder string, fn func()) bool
}

// Pipeline is the part of the turn pipeline the loop drives.
type Pipeline interface {
	Run(ctx context.Context, req pipeline.Request) (*pipeline.Turn, error)
	Recognize(ctx context.Context, clip *audio.Clip) (string, error)
	Speak(ctx context.Context, text string) error
}

// Config configures the loop.
type Config struct {
	Policy
	Commands

	QuietDuration time.Duration
	// QuietAnnouncement may contain {minutes}.
	QuietAnnouncement string
	FarewellMessage   string

	// LocalWait bounds gate acquisition for recognition-driven turns.
	LocalWait time.Duration
	// Identity is sent with mic turns.
	Identity string

	// QuietSleep follows every quiet cycle.
	QuietSleep time.Duration
	// RetrySleep follows a cycle that heard nothing.
	RetrySleep time.Duration
	// BusySleep follows a cycle that lost the gate.
	BusySleep time.Duration
}

func (c Config) withDefaults() Config {
	if c.LocalWait <= 0 {
		c.LocalWait = time.Second
	}
	if c.QuietSleep <= 0 {
		c.QuietSleep = time.Second
	}
	if c.RetrySleep <= 0 {
		c.RetrySleep = 500 * time.Millisecond
	}
	if c.BusySleep <= 0 {
		c.BusySleep = 100 * time.Millisecond
	}
	return c
}

// Option configures a Loop.
type Option func(*Loop)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Loop) { l.now = now }
}

// WithRand replaces rand.IntN for phrase selection.
func WithRand(intn func(n int) int) Option {
	return func(l *Loop) { l.intn = intn }
}

// WithSleep replaces the context-aware sleep between cycles.
func WithSleep(sleep func(ctx context.Context, d time.Duration)) Option {
	return func(l *Loop) { l.sleep = sleep }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loop) { l.logger = logger }
}

// Loop is the background microphone loop.
type Loop struct {
	cfg    Config
	state  *State
	gate   Gate
	mic    audio.Microphone
	pipe   Pipeline
	logger *slog.Logger
	now    func() time.Time
	intn   func(n int) int
	sleep  func(ctx context.Context, d time.Duration)
}

// NewLoop creates a loop. state is shared with the pipeline's activity hook.
func NewLoop(cfg Config, state *State, g Gate, mic audio.Microphone, pipe Pipeline, opts ...Option) *Loop {
	l := &Loop{
		cfg:   cfg.withDefaults(),
		state: state,
		gate:  g,
		mic:   mic,
		pipe:  pipe,
		now:   time.Now,
		intn:  rand.IntN,
		sleep: sleepCtx,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = log.Or(l.logger).With("component", "idle.loop")
	return l
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

// Status is the loop's externally visible state.
type Status struct {
	Phase string `json:"phase"`
	Snapshot
}

// Status evaluates the current phase.
func (l *Loop) Status() Status {
	snap := l.state.Snapshot()
	return Status{Phase: Evaluate(l.now(), snap, l.cfg.Policy).String(), Snapshot: snap}
}

// Run cycles until ctx ends (returning nil) or the terminate phrase is heard
// (returning ErrTerminated).
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Info("background loop started",
		"wake_markers", l.cfg.WakeMarkers,
		"idle_interval", l.cfg.Interval,
		"idle_phrases", len(l.cfg.IdlePhrases),
		"hum_phrases", len(l.cfg.HumPhrases))

	for ctx.Err() == nil {
		if _, err := l.Cycle(ctx); err != nil {
			if errors.Is(err, ErrTerminated) {
				return err
			}
			if ctx.Err() != nil {
				break
			}
			l.logger.Warn("cycle failed", "error", err)
			l.sleep(ctx, l.cfg.RetrySleep)
		}
	}
	l.logger.Info("background loop stopped")
	return nil
}

// Cycle runs one iteration and reports the phase it acted on.
func (l *Loop) Cycle(ctx context.Context) (Phase, error) {
	now := l.now()
	snap := l.state.Snapshot()
	phase := Evaluate(now, snap, l.cfg.Policy)

	switch phase {
	case PhaseQuiet:
		if ShouldHum(now, snap, l.cfg.Policy) {
			l.opportunistic("hum", func() {
				phrase := PickPhrase(l.cfg.HumPhrases, "", l.intn)
				if l.speak(ctx, "hum", phrase) {
					l.state.Touch(l.now())
				}
			})
		}
		l.sleep(ctx, l.cfg.QuietSleep)
		return phase, nil

	case PhaseIdle:
		spoke := false
		l.opportunistic("idle", func() {
			phrase := PickPhrase(l.cfg.IdlePhrases, snap.LastIdlePhrase, l.intn)
			l.logger.Info("idle phrase", "idle_for", now.Sub(snap.LastInteraction).Round(time.Second))
			if l.speak(ctx, "idle", phrase) {
				l.state.RecordIdlePhrase(phrase, l.now())
				spoke = true
			}
		})
		if !spoke {
			l.sleep(ctx, l.cfg.QuietSleep)
		}
		return phase, nil
	}

	return phase, l.listen(ctx)
}

// opportunistic runs fn only if the gate is free right now.
func (l *Loop) opportunistic(what string, fn func()) {
	if !l.gate.TryDo("idle."+what, fn) {
		l.logger.Debug("gate busy, skipping", "action", what)
	}
}

func (l *Loop) speak(ctx context.Context, what, text string) bool {
	if err := l.pipe.Speak(ctx, text); err != nil {
		l.logger.Warn("speak failed", "action", what, "error", err)
		return false
	}
	return true
}

// listen captures one utterance and handles it under the gate.
func (l *Loop) listen(ctx context.Context) error {
	clip, err := l.mic.Capture(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !errors.Is(err, audio.ErrNoSpeech) {
			l.logger.Warn("capture failed", "error", err)
		}
		l.sleep(ctx, l.cfg.RetrySleep)
		return nil
	}

	err = l.gate.Do(ctx, l.cfg.LocalWait, "mic", func() error {
		return l.handle(ctx, clip)
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gate.ErrBusy):
		l.logger.Warn("gate busy, dropping utterance")
		l.sleep(ctx, l.cfg.BusySleep)
		return nil
	default:
		return err
	}
}

// handle runs with the gate held.
func (l *Loop) handle(ctx context.Context, clip *audio.Clip) error {
	text, err := l.pipe.Recognize(ctx, clip)
	if err != nil {
		l.logger.Debug("nothing recognized", "error", err)
		return nil
	}

	action := l.cfg.Decide(text)
	l.logger.Debug("heard", "text", text, "action", action.Kind.String())

	switch action.Kind {
	case ActionQuiet:
		now := l.now()
		l.state.EnterQuiet(now.Add(l.cfg.QuietDuration))
		l.logger.Info("entering quiet mode", "until", now.Add(l.cfg.QuietDuration))
		l.speak(ctx, "quiet", l.quietAnnouncement())
		l.state.Touch(l.now())

	case ActionTerminate:
		l.logger.Info("terminate phrase heard")
		l.speak(ctx, "farewell", l.cfg.FarewellMessage)
		return ErrTerminated

	case ActionTurn:
		_, err := l.pipe.Run(ctx, pipeline.Request{
			Text:     action.Prompt,
			Identity: l.cfg.Identity,
			Source:   pipeline.SourceMic,
		})
		if err != nil {
			l.logger.Warn("turn failed", "error", err)
		}

	default:
		l.logger.Info("no wake marker, ignoring", "text", text)
	}
	return nil
}

func (l *Loop) quietAnnouncement() string {
	minutes := int(l.cfg.QuietDuration / time.Minute)
	return strings.ReplaceAll(l.cfg.QuietAnnouncement, "{minutes}", strconv.Itoa(minutes))
}
