package assistant

import (
	"encoding/json"
	"fmt"

	"github.com/haivivi/zoocari/pkg/knowledge"
)

// EventType discriminates stream events on the wire.
type EventType string

const (
	EventText  EventType = "text"
	EventAudio EventType = "audio"
	EventDone  EventType = "done"
	EventError EventType = "error"
)

// Event is one element of an answer stream.
//
// A stream carries any number of text and audio events, then exactly one
// done or error event. Audio indexes start at 0 and increase by one per
// audio event.
type Event struct {
	Type EventType

	// Text: a fragment of the answer. Error: the message for the user.
	Content string

	// Audio
	Chunk    []byte
	Sentence string
	Index    int

	// Done
	SessionID  string
	MessageID  string
	Sources    []knowledge.Source
	Followups  []string
	Confidence float64
	Chunks     int
	Rejected   bool
}

func textEvent(s string) Event { return Event{Type: EventText, Content: s} }

func errorEvent(msg string) Event { return Event{Type: EventError, Content: msg} }

func audioEvent(chunk []byte, sentence string, index int) Event {
	return Event{Type: EventAudio, Chunk: chunk, Sentence: sentence, Index: index}
}

// MarshalJSON encodes the event in the shape of its type. Chunk is
// base64-encoded.
func (e Event) MarshalJSON() ([]byte, error) {
	switch e.Type {
	case EventText:
		return json.Marshal(struct {
			Type    EventType `json:"type"`
			Content string    `json:"content"`
		}{e.Type, e.Content})
	case EventAudio:
		return json.Marshal(struct {
			Type     EventType `json:"type"`
			Chunk    []byte    `json:"chunk"`
			Sentence string    `json:"sentence"`
			Index    int       `json:"index"`
		}{e.Type, e.Chunk, e.Sentence, e.Index})
	case EventDone:
		sources := e.Sources
		if sources == nil {
			sources = []knowledge.Source{}
		}
		return json.Marshal(struct {
			Type       EventType          `json:"type"`
			SessionID  string             `json:"session_id,omitempty"`
			MessageID  string             `json:"message_id,omitempty"`
			Sources    []knowledge.Source `json:"sources"`
			Followups  []string           `json:"followup_questions,omitempty"`
			Confidence float64            `json:"confidence"`
			Chunks     int                `json:"chunks"`
			Rejected   bool               `json:"rejected,omitempty"`
		}{e.Type, e.SessionID, e.MessageID, sources, e.Followups, e.Confidence, e.Chunks, e.Rejected})
	case EventError:
		return json.Marshal(struct {
			Type    EventType `json:"type"`
			Message string    `json:"message"`
		}{e.Type, e.Content})
	default:
		return nil, fmt.Errorf("assistant: unknown event type %q", e.Type)
	}
}
