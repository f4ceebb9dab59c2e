package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSanitize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "hello", "hello"},
		{"quotes", `it's "fine"`, `it\'s \"fine\"`},
		{"comment marker", "# note", `\# note`},
		{"newlines", "a\nb\r\nc\rd", "a [NEWLINE] b [NEWLINE] c [NEWLINE] d"},
		{"already escaped", `\"x\"`, `\"x\"`},
		{"trailing backslash", `a\`, `a\`},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Sanitize(tt.in))
		})
	}
}

func TestSanitizeIdempotent(t *testing.T) {
	inputs := []string{
		`say "hi" # comment` + "\nnext 'line'",
		`\\"`,
		`'''###"""`,
		"日本語の\"引用\"\r\n# です",
	}
	for _, in := range inputs {
		once := Sanitize(in)
		assert.Equal(t, once, Sanitize(once), "input %q", in)
	}
}

func TestStripThinking(t *testing.T) {
	assert.Equal(t, "answer", StripThinking("<think>x</think>answer"))
	assert.Equal(t, "a b", StripThinking("a <Think>\nmulti\nline\n</THINK>b"))
	assert.Equal(t, "a c", StripThinking("a <think>1</think>c<think>2</think>"))
	assert.Equal(t, "", StripThinking("<think>only</think>  "))
	assert.Equal(t, "unclosed <think> stays", StripThinking(" unclosed <think> stays "))
}

func TestExpand(t *testing.T) {
	assert.Equal(t, "max 1000 chars", expand("max {max} chars", 1000))
	assert.Equal(t, "no placeholder", expand("no placeholder", 5))
}

func TestMetrics(t *testing.T) {
	m := NewMetrics()
	assert.Equal(t, Timings{}, m.Average())

	m.Record(Timings{Generation: 100 * time.Millisecond, Total: 200 * time.Millisecond})
	m.Record(Timings{Generation: 300 * time.Millisecond, Total: 400 * time.Millisecond})

	assert.Equal(t, 2, m.Turns())
	assert.Equal(t, 300*time.Millisecond, m.Last().Generation)
	avg := m.Average()
	assert.Equal(t, 200*time.Millisecond, avg.Generation)
	assert.Equal(t, 300*time.Millisecond, avg.Total)

	for i := 0; i < metricsHistory+5; i++ {
		m.Record(Timings{})
	}
	assert.Len(t, m.history, metricsHistory)
}

func TestFormatLatency(t *testing.T) {
	ti := Timings{Generation: 1500 * time.Millisecond}
	assert.Equal(t, "---ms STT | 1.5s LLM | ---ms TTS | ---ms TOTAL", ti.FormatLatency())
}
