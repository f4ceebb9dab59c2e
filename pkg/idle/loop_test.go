package idle_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/voicegate/internal/log"
	"github.com/teslashibe/voicegate/pkg/audio"
	"github.com/teslashibe/voicegate/pkg/chain"
	"github.com/teslashibe/voicegate/pkg/gate"
	"github.com/teslashibe/voicegate/pkg/idle"
	"github.com/teslashibe/voicegate/pkg/llm"
	"github.com/teslashibe/voicegate/pkg/pipeline"
	"github.com/teslashibe/voicegate/pkg/stt"
	"github.com/teslashibe/voicegate/pkg/tts"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type harness struct {
	clock  *clock
	state  *idle.State
	gate   *gate.Gate
	mic    *audio.MockMicrophone
	heard  []string
	gen    *llm.Mock
	synth  *tts.Mock
	player *audio.MockPlayer
	pipe   *pipeline.Pipeline
	loop   *idle.Loop
	sleeps []time.Duration
}

func testLoopConfig() idle.Config {
	return idle.Config{
		Policy: idle.Policy{
			Interval:    5 * time.Minute,
			HumAfter:    10 * time.Minute,
			IdlePhrases: []string{"anyone there?", "so quiet"},
			HumPhrases:  []string{"hmm hmm"},
		},
		Commands: idle.Commands{
			WakeMarkers:      []string{"assistant"},
			QuietTrigger:     "be quiet",
			TerminatePhrases: []string{"goodbye"},
			ClarifyPrompt:    "yes?",
		},
		QuietDuration:     30 * time.Minute,
		QuietAnnouncement: "quiet for {minutes} minutes",
		FarewellMessage:   "bye",
		LocalWait:         10 * time.Millisecond,
		Identity:          "local",
	}
}

// newHarness wires a real pipeline and gate around mocks. Each pushed
// utterance becomes one captured clip that recognizes as that text.
func newHarness(t *testing.T, utterances ...string) *harness {
	t.Helper()
	return newHarnessWith(t, testLoopConfig(), utterances...)
}

func newHarnessWith(t *testing.T, cfg idle.Config, utterances ...string) *harness {
	t.Helper()
	h := &harness{
		clock:  &clock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)},
		gate:   gate.New(log.Discard()),
		mic:    audio.NewMockMicrophone(),
		gen:    llm.NewMock("sunny"),
		synth:  tts.NewMock(),
		player: audio.NewMockPlayer(),
	}
	h.state = idle.NewState(h.clock.Now())

	var mu sync.Mutex
	hear := &stt.Mock{TranscribeFunc: func(context.Context, *audio.Clip) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		if len(h.heard) == 0 {
			return "", nil
		}
		text := h.heard[0]
		h.heard = h.heard[1:]
		return text, nil
	}}
	for _, u := range utterances {
		h.say(u)
	}

	quiet := chain.WithLogger(log.Discard())
	sttChain, err := stt.NewChain([]stt.Provider{hear}, quiet)
	require.NoError(t, err)
	genChain, err := llm.NewChain([]llm.Provider{h.gen}, quiet)
	require.NoError(t, err)
	synthChain, err := tts.NewChain([]tts.Provider{h.synth}, quiet)
	require.NoError(t, err)

	p, err := pipeline.New(pipeline.Config{MaxPromptLength: 1000, ApologyMessage: "sorry"},
		genChain, synthChain, h.player,
		pipeline.WithRecognizer(sttChain),
		pipeline.WithActivity(h.state),
		pipeline.WithClock(h.clock.Now),
		pipeline.WithLogger(log.Discard()))
	require.NoError(t, err)
	h.pipe = p

	h.loop = idle.NewLoop(cfg, h.state, h.gate, h.mic, p,
		idle.WithClock(h.clock.Now),
		idle.WithRand(func(int) int { return 0 }),
		idle.WithSleep(func(_ context.Context, d time.Duration) { h.sleeps = append(h.sleeps, d) }),
		idle.WithLogger(log.Discard()))
	return h
}

func (h *harness) say(text string) {
	h.heard = append(h.heard, text)
	h.mic.Push(audio.NewClip(make([]int16, 1600), 16000))
}

func TestWakeMarkedSpeechRunsTurn(t *testing.T) {
	h := newHarness(t, "assistant hello weather")

	phase, err := h.loop.Cycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, idle.PhaseActive, phase)

	require.Equal(t, 1, h.gen.CallCount())
	assert.Equal(t, "hello weather", h.gen.LastCall().Request.Prompt)
	assert.Equal(t, "local", h.gen.LastCall().Request.Identity)
	assert.Equal(t, "sunny", h.synth.LastCall().Text)
	assert.False(t, h.gate.Status().Busy)
}

func TestUnmarkedSpeechIgnored(t *testing.T) {
	h := newHarness(t, "hello weather")

	_, err := h.loop.Cycle(context.Background())
	require.NoError(t, err)
	assert.Zero(t, h.gen.CallCount())
	assert.Zero(t, h.player.CallCount())
}

func TestQuietTriggerSuppressesCapture(t *testing.T) {
	cfg := testLoopConfig()
	cfg.Interval = 0
	h := newHarnessWith(t, cfg, "be quiet")

	_, err := h.loop.Cycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "quiet for 30 minutes", h.synth.LastCall().Text)
	assert.Equal(t, "quiet", h.loop.Status().Phase)
	captures := h.mic.CaptureCount()

	h.say("assistant are you there")
	for i := 0; i < 5; i++ {
		h.clock.Advance(time.Minute)
		phase, err := h.loop.Cycle(context.Background())
		require.NoError(t, err)
		assert.Equal(t, idle.PhaseQuiet, phase)
	}
	assert.Equal(t, captures, h.mic.CaptureCount())
	assert.Zero(t, h.gen.CallCount())

	h.clock.Advance(30 * time.Minute)
	phase, err := h.loop.Cycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, idle.PhaseActive, phase)
	assert.Equal(t, captures+1, h.mic.CaptureCount())
	assert.Equal(t, 1, h.gen.CallCount())
}

func TestQuietModeHums(t *testing.T) {
	h := newHarness(t)
	h.state.EnterQuiet(h.clock.Now().Add(time.Hour))

	h.clock.Advance(5 * time.Minute)
	_, err := h.loop.Cycle(context.Background())
	require.NoError(t, err)
	assert.Zero(t, h.player.CallCount())

	h.clock.Advance(5 * time.Minute)
	_, err = h.loop.Cycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, h.player.CallCount())
	assert.Equal(t, "hmm hmm", h.synth.LastCall().Text)
	assert.Equal(t, h.clock.Now(), h.state.Snapshot().LastInteraction)
	assert.Zero(t, h.mic.CaptureCount())
}

func TestIdlePhraseAfterInterval(t *testing.T) {
	h := newHarness(t)
	h.clock.Advance(6 * time.Minute)

	phase, err := h.loop.Cycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, idle.PhaseIdle, phase)
	assert.Equal(t, "anyone there?", h.synth.LastCall().Text)
	assert.Equal(t, "anyone there?", h.state.Snapshot().LastIdlePhrase)

	h.clock.Advance(6 * time.Minute)
	_, err = h.loop.Cycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "so quiet", h.synth.LastCall().Text, "never repeats the previous phrase")
	assert.Zero(t, h.mic.CaptureCount())
}

func TestIdlePhrasesNeverRepeatBackToBack(t *testing.T) {
	cfg := testLoopConfig()
	cfg.IdlePhrases = []string{"anyone there?", "so quiet", "hello?"}
	h := newHarnessWith(t, cfg)
	// Default random source.
	loop := idle.NewLoop(cfg, h.state, h.gate, h.mic, h.pipe,
		idle.WithClock(h.clock.Now),
		idle.WithSleep(func(context.Context, time.Duration) {}),
		idle.WithLogger(log.Discard()))

	const cycles = 50
	for i := 0; i < cycles; i++ {
		h.clock.Advance(6 * time.Minute)
		phase, err := loop.Cycle(context.Background())
		require.NoError(t, err)
		require.Equal(t, idle.PhaseIdle, phase)
	}

	calls := h.synth.Calls()
	require.Len(t, calls, cycles)
	for i := 1; i < len(calls); i++ {
		assert.NotEqual(t, calls[i-1].Text, calls[i].Text, "cycle %d repeated the previous phrase", i)
	}
	assert.Equal(t, calls[len(calls)-1].Text, h.state.Snapshot().LastIdlePhrase)
	assert.Zero(t, h.mic.CaptureCount())
}

func TestIdleSkippedWhenGateBusy(t *testing.T) {
	h := newHarness(t)
	h.clock.Advance(6 * time.Minute)
	require.True(t, h.gate.TryAcquire("webhook"))
	defer h.gate.Release()

	phase, err := h.loop.Cycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, idle.PhaseIdle, phase)
	assert.Zero(t, h.player.CallCount())
	assert.NotEmpty(t, h.sleeps, "busy cycles back off")
}

func TestBusyGateDropsUtterance(t *testing.T) {
	h := newHarness(t, "assistant hello")
	require.True(t, h.gate.TryAcquire("webhook"))

	_, err := h.loop.Cycle(context.Background())
	require.NoError(t, err)
	assert.Zero(t, h.gen.CallCount())
	h.gate.Release()
}

func TestTerminate(t *testing.T) {
	h := newHarness(t, "goodbye")

	err := h.loop.Run(context.Background())
	assert.ErrorIs(t, err, idle.ErrTerminated)
	assert.Equal(t, "bye", h.synth.LastCall().Text)
	assert.False(t, h.gate.Status().Busy)
}

func TestRunStopsOnCancel(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, h.loop.Run(ctx))
}

func TestSpeechFailureDoesNotCountAsInteraction(t *testing.T) {
	h := newHarness(t)
	h.synth.SynthesizeFunc = func(context.Context, string) (*tts.AudioResult, error) {
		return nil, errors.New("down")
	}
	h.clock.Advance(6 * time.Minute)
	before := h.state.Snapshot().LastInteraction

	_, err := h.loop.Cycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, before, h.state.Snapshot().LastInteraction)
	assert.Empty(t, h.state.Snapshot().LastIdlePhrase)
}
