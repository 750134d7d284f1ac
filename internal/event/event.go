// ABOUTME: Semantic event types exchanged over the duplex client connection.
// ABOUTME: Defines the sendMessage client action and the four outbound event shapes.

package event

import "fmt"

// Type tags an outbound event.
type Type string

const (
	// TypeStatus is an informational progress update with no content.
	TypeStatus Type = "status"
	// TypeChunk carries one ordered fragment of the answer.
	TypeChunk Type = "chunk"
	// TypeComplete is the terminal success event carrying the full answer.
	TypeComplete Type = "complete"
	// TypeError is the terminal failure event.
	TypeError Type = "error"
)

// StatusThinking is pushed before the outbound runtime call so the client
// can render an in-progress indicator before any content arrives.
const StatusThinking = "thinking"

// Event is the tagged union pushed to clients. Exactly one of the
// type-specific fields is meaningful for a given Type; SessionID and
// AgentName are correlation fields set by the relay on every event.
type Event struct {
	Type      Type   `json:"type"`
	Status    string `json:"status,omitempty"`
	Text      string `json:"text,omitempty"`
	FullText  string `json:"fullText,omitempty"`
	Message   string `json:"message,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
	AgentName string `json:"agentName,omitempty"`
}

// Status returns an informational status event.
func Status(status string) Event {
	return Event{Type: TypeStatus, Status: status}
}

// Chunk returns an answer-fragment event.
func Chunk(text string) Event {
	return Event{Type: TypeChunk, Text: text}
}

// Complete returns the terminal success event with the accumulated answer.
func Complete(fullText string) Event {
	return Event{Type: TypeComplete, FullText: fullText}
}

// Error returns the terminal failure event.
func Error(message string) Event {
	return Event{Type: TypeError, Message: message}
}

// Errorf returns the terminal failure event with a formatted message.
func Errorf(format string, args ...any) Event {
	return Error(fmt.Sprintf(format, args...))
}

// Terminal reports whether the event ends an invocation's sequence.
func (e Event) Terminal() bool {
	return e.Type == TypeComplete || e.Type == TypeError
}

// ActionSendMessage is the only inbound client action.
const ActionSendMessage = "sendMessage"

// SendMessage is the inbound client action carried as JSON over the
// duplex connection.
type SendMessage struct {
	Action    string `json:"action"`
	Message   string `json:"message"`
	SessionID string `json:"sessionId"`
	UserID    string `json:"userId,omitempty"`
	AgentName string `json:"agentName,omitempty"`
}
