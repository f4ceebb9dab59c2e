package pipeline

import (
	"sync"
	"time"
)

// Timings tracks how long each step of one turn took.
type Timings struct {
	Recognition time.Duration
	Generation  time.Duration
	Synthesis   time.Duration
	Total       time.Duration
}

// FormatLatency returns a one-line summary for logs.
func (t Timings) FormatLatency() string {
	return formatDuration(t.Recognition) + " STT | " +
		formatDuration(t.Generation) + " LLM | " +
		formatDuration(t.Synthesis) + " TTS | " +
		formatDuration(t.Total) + " TOTAL"
}

func formatDuration(d time.Duration) string {
	if d == 0 {
		return "---ms"
	}
	return d.Round(time.Millisecond).String()
}

const metricsHistory = 100

// Metrics keeps timings for recent turns. Safe for concurrent use.
type Metrics struct {
	mu      sync.Mutex
	last    Timings
	history []Timings
	turns   int
}

// NewMetrics creates an empty collector.
func NewMetrics() *Metrics {
	return &Metrics{history: make([]Timings, 0, metricsHistory)}
}

// Record archives one turn's timings.
func (m *Metrics) Record(t Timings) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.last = t
	m.turns++
	m.history = append(m.history, t)
	if len(m.history) > metricsHistory {
		m.history = m.history[1:]
	}
}

// Last returns the most recent turn's timings.
func (m *Metrics) Last() Timings {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

// Turns returns how many turns have been recorded since start.
func (m *Metrics) Turns() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.turns
}

// Average returns mean timings over recent turns.
func (m *Metrics) Average() Timings {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.history) == 0 {
		return Timings{}
	}

	var avg Timings
	for _, h := range m.history {
		avg.Recognition += h.Recognition
		avg.Generation += h.Generation
		avg.Synthesis += h.Synthesis
		avg.Total += h.Total
	}

	n := time.Duration(len(m.history))
	avg.Recognition /= n
	avg.Generation /= n
	avg.Synthesis /= n
	avg.Total /= n
	return avg
}
