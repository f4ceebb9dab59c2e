// Package idle runs the background microphone loop: quiet mode, unprompted
// idle and hum phrases, and wake-marker driven turns.
//
// Which of the three phases applies is a pure function of the clock and two
// timestamps (see Evaluate); the only persisted state is the State object.
package idle

import (
	"sync"
	"time"
)

// Phase is the loop's behaviour for one cycle.
type Phase int

const (
	// PhaseActive listens for a wake-marked utterance.
	PhaseActive Phase = iota
	// PhaseQuiet suppresses recognition until the quiet deadline passes.
	PhaseQuiet
	// PhaseIdle speaks an unprompted idle phrase.
	PhaseIdle
)

func (p Phase) String() string {
	switch p {
	case PhaseQuiet:
		return "quiet"
	case PhaseIdle:
		return "idle"
	default:
		return "active"
	}
}

// Snapshot is a copy of State at one instant.
type Snapshot struct {
	LastInteraction time.Time `json:"last_interaction"`
	QuietUntil      time.Time `json:"quiet_until"`
	LastIdlePhrase  string    `json:"last_idle_phrase,omitempty"`
}

// State holds the idle timers. LastInteraction never moves backwards and
// QuietUntil is only ever extended.
type State struct {
	mu              sync.Mutex
	lastInteraction time.Time
	quietUntil      time.Time
	lastIdlePhrase  string
}

// NewState starts the interaction clock at now.
func NewState(now time.Time) *State {
	return &State{lastInteraction: now}
}

// Touch records an interaction at at.
func (s *State) Touch(at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if at.After(s.lastInteraction) {
		s.lastInteraction = at
	}
}

// EnterQuiet suppresses recognition until until.
func (s *State) EnterQuiet(until time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if until.After(s.quietUntil) {
		s.quietUntil = until
	}
}

// RecordIdlePhrase stores the phrase just spoken and counts it as an interaction.
func (s *State) RecordIdlePhrase(phrase string, at time.Time) {
	s.mu.Lock()
	s.lastIdlePhrase = phrase
	s.mu.Unlock()
	s.Touch(at)
}

// Snapshot returns a consistent copy.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		LastInteraction: s.lastInteraction,
		QuietUntil:      s.quietUntil,
		LastIdlePhrase:  s.lastIdlePhrase,
	}
}

// Policy is the timing configuration Evaluate needs.
type Policy struct {
	// Interval is the inactivity before an idle phrase; zero disables idle phrases.
	Interval time.Duration
	// HumAfter is the inactivity before humming during quiet mode.
	HumAfter    time.Duration
	IdlePhrases []string
	HumPhrases  []string
}

// Evaluate decides the phase for a cycle starting at now.
func Evaluate(now time.Time, s Snapshot, p Policy) Phase {
	if now.Before(s.QuietUntil) {
		return PhaseQuiet
	}
	if p.Interval > 0 && len(p.IdlePhrases) > 0 && now.Sub(s.LastInteraction) > p.Interval {
		return PhaseIdle
	}
	return PhaseActive
}

// ShouldHum reports whether a quiet cycle at now may hum.
func ShouldHum(now time.Time, s Snapshot, p Policy) bool {
	return len(p.HumPhrases) > 0 && now.Sub(s.LastInteraction) >= p.HumAfter
}

// PickPhrase chooses uniformly among phrases other than last, falling back
// to the full set when excluding last leaves nothing. intn is rand.IntN.
func PickPhrase(phrases []string, last string, intn func(n int) int) string {
	if len(phrases) == 0 {
		return ""
	}
	candidates := make([]string, 0, len(phrases))
	for _, p := range phrases {
		if p != last {
			candidates = append(candidates, p)
		}
	}
	if len(candidates) == 0 {
		candidates = phrases
	}
	return candidates[intn(len(candidates))]
}
