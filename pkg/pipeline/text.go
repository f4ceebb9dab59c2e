package pipeline

import (
	"regexp"
	"strconv"
	"strings"
)

var thinkBlock = regexp.MustCompile(`(?is)<think>.*?</think>`)

// StripThinking removes <think>...</think> blocks and trims the result.
func StripThinking(s string) string {
	return strings.TrimSpace(thinkBlock.ReplaceAllString(s, ""))
}

// newlineMarker replaces line breaks so prompts stay on one line.
const newlineMarker = " [NEWLINE] "

var lineBreaks = strings.NewReplacer("\r\n", newlineMarker, "\r", newlineMarker, "\n", newlineMarker)

// Sanitize escapes quote characters and comment markers with a backslash and
// replaces line breaks with a marker. Characters that are already escaped
// are left alone, so Sanitize(Sanitize(s)) == Sanitize(s).
func Sanitize(s string) string {
	s = lineBreaks.Replace(s)

	var b strings.Builder
	b.Grow(len(s) + 8)
	escaped := false
	for _, r := range s {
		switch {
		case escaped:
			escaped = false
		case r == '\\':
			escaped = true
		case r == '\'' || r == '"' || r == '#':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// expand substitutes {max} in a fixed message.
func expand(msg string, max int) string {
	return strings.ReplaceAll(msg, "{max}", strconv.Itoa(max))
}
