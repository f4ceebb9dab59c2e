package idle

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// ActionKind is what the loop does with one recognized utterance.
type ActionKind int

const (
	// ActionIgnore discards speech that was not addressed to the assistant.
	ActionIgnore ActionKind = iota
	// ActionTurn runs a pipeline turn with Action.Prompt.
	ActionTurn
	// ActionQuiet enters quiet mode.
	ActionQuiet
	// ActionTerminate says goodbye and stops the process.
	ActionTerminate
)

func (k ActionKind) String() string {
	switch k {
	case ActionTurn:
		return "turn"
	case ActionQuiet:
		return "quiet"
	case ActionTerminate:
		return "terminate"
	default:
		return "ignore"
	}
}

// Action is the decision for one utterance.
type Action struct {
	Kind   ActionKind
	Prompt string
	Marker string
}

// Commands are the phrases the loop reacts to.
type Commands struct {
	WakeMarkers      []string
	QuietTrigger     string
	TerminatePhrases []string
	ClarifyPrompt    string
}

// Decide classifies recognized text. Wake-marked speech triggers quiet or
// terminate when it contains the phrase; unmarked speech only when it is
// exactly the phrase. Any other wake-marked speech becomes a turn.
func (c Commands) Decide(text string) Action {
	norm := normalize(text)
	if norm == "" {
		return Action{Kind: ActionIgnore}
	}

	rest, marker, marked := MatchWake(text, c.WakeMarkers)
	matches := func(phrase string) bool {
		p := normalize(phrase)
		if p == "" {
			return false
		}
		if marked {
			return strings.Contains(norm, p)
		}
		return norm == p
	}

	if matches(c.QuietTrigger) {
		return Action{Kind: ActionQuiet, Marker: marker}
	}
	for _, t := range c.TerminatePhrases {
		if matches(t) {
			return Action{Kind: ActionTerminate, Marker: marker}
		}
	}
	if !marked {
		return Action{Kind: ActionIgnore}
	}
	if rest == "" {
		rest = c.ClarifyPrompt
	}
	return Action{Kind: ActionTurn, Prompt: rest, Marker: marker}
}

// MatchWake checks markers in order and returns the text after the first
// one that prefixes text, ignoring case and surrounding whitespace. Leading
// punctuation after the marker is dropped ("AI, hello" -> "hello").
func MatchWake(text string, markers []string) (rest, marker string, ok bool) {
	trimmed := strings.TrimSpace(text)
	for _, m := range markers {
		m = strings.TrimSpace(m)
		if m == "" {
			continue
		}
		after, found := cutPrefixFold(trimmed, m)
		if !found {
			continue
		}
		rest = strings.TrimLeftFunc(after, func(r rune) bool {
			return unicode.IsSpace(r) || unicode.IsPunct(r)
		})
		return strings.TrimSpace(rest), m, true
	}
	return "", "", false
}

// cutPrefixFold is strings.CutPrefix with Unicode case folding.
func cutPrefixFold(s, prefix string) (string, bool) {
	for prefix != "" {
		if s == "" {
			return "", false
		}
		pr, pn := utf8.DecodeRuneInString(prefix)
		sr, sn := utf8.DecodeRuneInString(s)
		if pr != sr && unicode.ToLower(pr) != unicode.ToLower(sr) {
			return "", false
		}
		prefix, s = prefix[pn:], s[sn:]
	}
	return s, true
}

// normalize lowercases and trims whitespace and punctuation from both ends.
func normalize(s string) string {
	return strings.TrimFunc(strings.ToLower(s), func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsPunct(r)
	})
}
