// Package agent assembles the gate, provider chains, pipeline, background
// loop, notifier and web server from a validated configuration, and runs
// them as one unit.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/teslashibe/voicegate/internal/config"
	"github.com/teslashibe/voicegate/internal/log"
	"github.com/teslashibe/voicegate/pkg/audio"
	"github.com/teslashibe/voicegate/pkg/chain"
	"github.com/teslashibe/voicegate/pkg/gate"
	"github.com/teslashibe/voicegate/pkg/hub"
	"github.com/teslashibe/voicegate/pkg/idle"
	"github.com/teslashibe/voicegate/pkg/llm"
	"github.com/teslashibe/voicegate/pkg/notify"
	"github.com/teslashibe/voicegate/pkg/pipeline"
	"github.com/teslashibe/voicegate/pkg/stt"
	"github.com/teslashibe/voicegate/pkg/tts"
	"github.com/teslashibe/voicegate/pkg/web"
)

// ErrTerminated is returned by Run when the terminate phrase stopped the agent.
var ErrTerminated = idle.ErrTerminated

// Option configures an App.
type Option func(*App)

// WithLogger sets the root logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *App) { a.logger = l }
}

// WithPlayer replaces the output device.
func WithPlayer(p audio.Player) Option {
	return func(a *App) { a.player = p }
}

// WithMicrophone replaces the input device.
func WithMicrophone(m audio.Microphone) Option {
	return func(a *App) { a.mic = m }
}

// WithListener serves on ln instead of the configured address.
func WithListener(ln net.Listener) Option {
	return func(a *App) { a.listener = ln }
}

// WithProviders replaces the providers built from configuration. Nil
// slices keep the configured providers for that step.
func WithProviders(recognizers []stt.Provider, generators []llm.Provider, synthesizers []tts.Provider) Option {
	return func(a *App) {
		a.sttProviders = recognizers
		a.llmProviders = generators
		a.ttsProviders = synthesizers
	}
}

// App owns every long-lived component.
type App struct {
	cfg    config.Config
	logger *slog.Logger

	sttProviders []stt.Provider
	llmProviders []llm.Provider
	ttsProviders []tts.Provider

	player   audio.Player
	mic      audio.Microphone
	listener net.Listener

	gate     *gate.Gate
	state    *idle.State
	pipeline *pipeline.Pipeline
	loop     *idle.Loop
	hub      *hub.Hub
	notifier *notify.Notifier
	server   *web.Server

	closers []func()
}

// New validates cfg. A configuration problem is returned as *config.Error.
func New(cfg config.Config, opts ...Option) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	a := &App{cfg: cfg}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = log.Or(a.logger)
	for _, w := range cfg.Warnings() {
		a.logger.Warn("configuration", "warning", w)
	}
	return a, nil
}

// Init builds the components and opens the audio devices.
func (a *App) Init() error {
	if err := a.initProviders(); err != nil {
		return err
	}
	if err := a.initDevices(); err != nil {
		return err
	}
	return a.initCore()
}

func (a *App) initProviders() error {
	var err error
	if a.sttProviders == nil {
		if a.sttProviders, err = BuildSTT(&a.cfg, a.logger); err != nil {
			return err
		}
	}
	if a.llmProviders == nil {
		if a.llmProviders, err = BuildLLM(&a.cfg, a.logger); err != nil {
			return err
		}
	}
	if a.ttsProviders == nil {
		if a.ttsProviders, err = BuildTTS(&a.cfg, a.logger); err != nil {
			return err
		}
	}
	return nil
}

func (a *App) initDevices() error {
	if a.player == nil {
		p, err := audio.NewOtoPlayer(0, 0, a.logger)
		if err != nil {
			return fmt.Errorf("audio output: %w", err)
		}
		a.player = p
		a.closers = append(a.closers, p.Stop)
	}
	if a.cfg.Mic.Enabled && a.mic == nil {
		m, err := audio.NewPortAudioMic(audio.MicConfig{
			SampleRate:    a.cfg.Mic.SampleRate,
			ListenTimeout: a.cfg.Mic.ListenTimeout,
			PhraseLimit:   a.cfg.Mic.PhraseLimit,
			Threshold:     a.cfg.Mic.Threshold,
		}, a.logger)
		if err != nil {
			return fmt.Errorf("audio input: %w", err)
		}
		a.mic = m
		a.closers = append(a.closers, func() { _ = m.Close() })
	}
	return nil
}

func (a *App) initCore() error {
	chainLog := chain.WithLogger(a.logger)

	var opts []pipeline.Option
	if len(a.sttProviders) > 0 {
		recognizer, err := stt.NewChain(a.sttProviders, chainLog, chain.WithProviderTimeout(a.cfg.STT.ProviderTimeout))
		if err != nil {
			return err
		}
		opts = append(opts, pipeline.WithRecognizer(recognizer))
	}
	generator, err := llm.NewChain(a.llmProviders, chainLog)
	if err != nil {
		return err
	}
	synthesizer, err := tts.NewChain(a.ttsProviders, chainLog, chain.WithProviderTimeout(a.cfg.TTS.ProviderTimeout))
	if err != nil {
		return err
	}

	a.gate = gate.New(a.logger)
	a.state = idle.NewState(time.Now())
	a.hub = hub.New(a.logger)

	if w := a.cfg.Webhook; w.Enabled {
		a.notifier, err = notify.New(notify.Config{
			URL:          w.URL,
			AuthToken:    w.AuthToken,
			Timeout:      w.Timeout,
			RetryCount:   w.RetryCount,
			RetryDelay:   w.RetryDelay,
			Workers:      w.Workers,
			QueueSize:    w.QueueSize,
			AgentVersion: w.AgentVersion,
		}, notify.WithLogger(a.logger))
		if err != nil {
			return err
		}
		opts = append(opts, pipeline.WithNotifier(a.notifier))
	}

	opts = append(opts,
		pipeline.WithActivity(a.state),
		pipeline.WithObserver(a.hub),
		pipeline.WithLogger(a.logger))

	p := a.cfg.Pipeline
	a.pipeline, err = pipeline.New(pipeline.Config{
		MaxPromptLength:  p.MaxPromptLength,
		TooLongMessage:   p.TooLongMessage,
		EmptyMessage:     p.EmptyMessage,
		NoAnswerMessage:  p.NoAnswerMessage,
		ApologyMessage:   p.ApologyMessage,
		DefaultIdentity:  DefaultIdentity(&a.cfg),
		LLMProvider:      a.cfg.LLM.Provider,
		LLMTimeout:       a.cfg.LLM.Timeout,
		SynthesisTimeout: p.SynthesisTimeout,
	}, generator, synthesizer, a.player, opts...)
	if err != nil {
		return err
	}

	if a.cfg.Mic.Enabled {
		i := a.cfg.Idle
		a.loop = idle.NewLoop(idle.Config{
			Policy: idle.Policy{
				Interval:    i.Interval,
				HumAfter:    i.HumAfter,
				IdlePhrases: i.IdlePhrases,
				HumPhrases:  i.HumPhrases,
			},
			Commands: idle.Commands{
				WakeMarkers:      i.WakeMarkers,
				QuietTrigger:     i.QuietTrigger,
				TerminatePhrases: i.TerminatePhrases,
				ClarifyPrompt:    i.ClarifyPrompt,
			},
			QuietDuration:     i.QuietDuration,
			QuietAnnouncement: i.QuietAnnouncement,
			FarewellMessage:   i.FarewellMessage,
			LocalWait:         a.cfg.Gate.LocalWait,
			Identity:          DefaultIdentity(&a.cfg),
		}, a.state, a.gate, a.mic, a.pipeline, idle.WithLogger(a.logger))
	}

	report := a.cfg.Check()
	deps := web.Deps{
		Pipeline: a.pipeline,
		Gate:     a.gate,
		Report:   func() config.Report { return report },
		Metrics:  a.pipeline.Metrics(),
		Hub:      a.hub,
	}
	if a.loop != nil {
		deps.Idle = a.loop.Status
	}
	if a.notifier != nil {
		deps.Notify = a.notifier.Stats
	}
	a.server, err = web.New(web.Config{ExternalWait: a.cfg.Gate.ExternalWait}, deps, web.WithLogger(a.logger))
	return err
}

// Run serves until ctx ends (returning nil) or the terminate phrase is
// heard (returning ErrTerminated).
func (a *App) Run(ctx context.Context) error {
	if a.server == nil {
		return errors.New("agent: Run called before Init")
	}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.hub.Run(gctx)
	})

	g.Go(func() error {
		if a.listener != nil {
			return a.server.Serve(a.listener)
		}
		return a.server.Listen(a.cfg.Server.Addr())
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return a.server.Shutdown(sctx)
	})

	a.announceStartup(gctx)

	if a.loop != nil {
		g.Go(func() error {
			return a.loop.Run(gctx)
		})
	} else {
		a.logger.Info("microphone disabled, serving webhook only")
	}

	err := g.Wait()
	if errors.Is(err, ErrTerminated) {
		return ErrTerminated
	}
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func (a *App) announceStartup(ctx context.Context) {
	msg := a.cfg.Pipeline.StartupMessage
	if msg == "" {
		return
	}
	err := a.gate.Do(ctx, a.cfg.Gate.LocalWait, "startup", func() error {
		return a.pipeline.Speak(ctx, msg)
	})
	if err != nil {
		a.logger.Warn("startup announcement failed", "error", err)
	}
}

// Shutdown drains the notifier and releases the audio devices.
func (a *App) Shutdown(ctx context.Context) {
	if a.notifier != nil {
		if err := a.notifier.Close(ctx); err != nil {
			a.logger.Warn("notifier drain incomplete", "error", err)
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// Pipeline exposes the turn pipeline.
func (a *App) Pipeline() *pipeline.Pipeline {
	return a.pipeline
}

// Gate exposes the exclusive access gate.
func (a *App) Gate() *gate.Gate {
	return a.gate
}
