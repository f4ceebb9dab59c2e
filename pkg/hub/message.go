// Package hub fans turn lifecycle events out to websocket subscribers
// using a single goroutine that owns the client set.
package hub

import "github.com/teslashibe/voicegate/pkg/pipeline"

// MessageType indicates the websocket frame type.
type MessageType int

const (
	// TextMessage is a JSON-encoded message.
	TextMessage MessageType = iota
	// BinaryMessage is raw binary data, such as synthesized audio.
	BinaryMessage
)

// Message is one frame queued for every client.
type Message struct {
	Type MessageType
	Data []byte
}

// Envelope is the JSON shape streamed for every pipeline event.
type Envelope struct {
	Type     pipeline.EventKind `json:"type"`
	TurnID   string             `json:"turn_id,omitempty"`
	Source   pipeline.Source    `json:"source,omitempty"`
	UserID   string             `json:"user_id,omitempty"`
	Input    string             `json:"user_input,omitempty"`
	Output   string             `json:"ai_response,omitempty"`
	Provider string             `json:"llm_provider,omitempty"`
	Errors   []string           `json:"errors,omitempty"`
	Text     string             `json:"text,omitempty"`
	Time     float64            `json:"timestamp"`
}

// NewEnvelope flattens e for the wire.
func NewEnvelope(e pipeline.Event) Envelope {
	env := Envelope{
		Type: e.Kind,
		Text: e.Text,
		Time: float64(e.Time.UnixMilli()) / 1000,
	}
	if t := e.Turn; t != nil {
		env.TurnID = t.ID
		env.Source = t.Source
		env.UserID = t.Identity
		env.Input = t.Input
		env.Output = t.Output
		env.Provider = t.Provider
		env.Errors = t.Errors
	}
	return env
}
