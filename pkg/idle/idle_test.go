package idle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var t0 = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func TestStateTouchIsMonotonic(t *testing.T) {
	s := NewState(t0)
	s.Touch(t0.Add(time.Minute))
	s.Touch(t0)
	assert.Equal(t, t0.Add(time.Minute), s.Snapshot().LastInteraction)
}

func TestStateEnterQuietOnlyExtends(t *testing.T) {
	s := NewState(t0)
	s.EnterQuiet(t0.Add(30 * time.Minute))
	s.EnterQuiet(t0.Add(10 * time.Minute))
	assert.Equal(t, t0.Add(30*time.Minute), s.Snapshot().QuietUntil)
}

func TestRecordIdlePhrase(t *testing.T) {
	s := NewState(t0)
	s.RecordIdlePhrase("hmm", t0.Add(time.Minute))
	snap := s.Snapshot()
	assert.Equal(t, "hmm", snap.LastIdlePhrase)
	assert.Equal(t, t0.Add(time.Minute), snap.LastInteraction)
}

func TestEvaluate(t *testing.T) {
	p := Policy{Interval: 5 * time.Minute, IdlePhrases: []string{"a"}}

	tests := []struct {
		name string
		now  time.Time
		snap Snapshot
		pol  Policy
		want Phase
	}{
		{"fresh", t0.Add(time.Minute), Snapshot{LastInteraction: t0}, p, PhaseActive},
		{"exactly interval", t0.Add(5 * time.Minute), Snapshot{LastInteraction: t0}, p, PhaseActive},
		{"past interval", t0.Add(5*time.Minute + time.Second), Snapshot{LastInteraction: t0}, p, PhaseIdle},
		{"quiet wins", t0.Add(time.Hour), Snapshot{LastInteraction: t0, QuietUntil: t0.Add(2 * time.Hour)}, p, PhaseQuiet},
		{"quiet deadline reached", t0.Add(time.Hour), Snapshot{LastInteraction: t0.Add(time.Hour), QuietUntil: t0.Add(time.Hour)}, p, PhaseActive},
		{"idle disabled", t0.Add(time.Hour), Snapshot{LastInteraction: t0}, Policy{IdlePhrases: []string{"a"}}, PhaseActive},
		{"no phrases", t0.Add(time.Hour), Snapshot{LastInteraction: t0}, Policy{Interval: time.Minute}, PhaseActive},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Evaluate(tt.now, tt.snap, tt.pol))
		})
	}
}

func TestShouldHum(t *testing.T) {
	p := Policy{HumAfter: 10 * time.Minute, HumPhrases: []string{"♪"}}
	snap := Snapshot{LastInteraction: t0}

	assert.False(t, ShouldHum(t0.Add(9*time.Minute), snap, p))
	assert.True(t, ShouldHum(t0.Add(10*time.Minute), snap, p))
	assert.False(t, ShouldHum(t0.Add(time.Hour), snap, Policy{HumAfter: time.Minute}))
}

func TestPickPhraseAvoidsRepeat(t *testing.T) {
	phrases := []string{"a", "b", "c"}
	for i := 0; i < 3; i++ {
		first := func(int) int { return 0 }
		last := func(n int) int { return n - 1 }
		assert.NotEqual(t, phrases[i], PickPhrase(phrases, phrases[i], first))
		assert.NotEqual(t, phrases[i], PickPhrase(phrases, phrases[i], last))
	}
	assert.Equal(t, "only", PickPhrase([]string{"only"}, "only", func(int) int { return 0 }))
	assert.Equal(t, "", PickPhrase(nil, "", func(int) int { return 0 }))
}

func TestPhaseString(t *testing.T) {
	assert.Equal(t, "active", PhaseActive.String())
	assert.Equal(t, "quiet", PhaseQuiet.String())
	assert.Equal(t, "idle", PhaseIdle.String())
}

func TestMatchWake(t *testing.T) {
	markers := []string{"Assistant", "ねえ"}

	tests := []struct {
		in     string
		rest   string
		marker string
		ok     bool
	}{
		{"assistant hello weather", "hello weather", "Assistant", true},
		{"  ASSISTANT, what time is it?", "what time is it?", "Assistant", true},
		{"ねえ、天気は？", "天気は？", "ねえ", true},
		{"assistant", "", "Assistant", true},
		{"hello assistant", "", "", false},
		{"", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			rest, marker, ok := MatchWake(tt.in, markers)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.rest, rest)
			assert.Equal(t, tt.marker, marker)
		})
	}
}

func TestDecide(t *testing.T) {
	c := Commands{
		WakeMarkers:      []string{"assistant"},
		QuietTrigger:     "be quiet",
		TerminatePhrases: []string{"goodbye"},
		ClarifyPrompt:    "yes?",
	}

	tests := []struct {
		in     string
		kind   ActionKind
		prompt string
	}{
		{"assistant hello weather", ActionTurn, "hello weather"},
		{"assistant", ActionTurn, "yes?"},
		{"be quiet", ActionQuiet, ""},
		{"Be quiet.", ActionQuiet, ""},
		{"please be quiet now", ActionIgnore, ""},
		{"assistant please be quiet", ActionQuiet, ""},
		{"goodbye", ActionTerminate, ""},
		{"assistant goodbye then", ActionTerminate, ""},
		{"they said goodbye", ActionIgnore, ""},
		{"what is the weather", ActionIgnore, ""},
		{"  ", ActionIgnore, ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			a := c.Decide(tt.in)
			assert.Equal(t, tt.kind.String(), a.Kind.String())
			assert.Equal(t, tt.prompt, a.Prompt)
		})
	}
}
