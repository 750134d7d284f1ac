// ABOUTME: Decodes a buffered runtime response body into ordered semantic events.
// ABOUTME: Handles event-record lines, embedded error indicators, and opaque bodies.

package stream

import (
	"encoding/json"
	"strings"

	"github.com/2389/relay-gateway/internal/event"
)

// recordPrefix marks a line carrying one payload of streamed content.
const recordPrefix = "data:"

// Decode parses a fully-buffered runtime response body into the ordered
// event sequence it encodes. Lines with the event-record prefix each
// contribute one payload; payloads are decoded strictly left to right.
//
// Every extracted fragment is emitted as a chunk event and appended to a
// running accumulator. Decoding halts at the first payload carrying an
// error indicator; the resulting error event is the last event and no
// complete event follows. Otherwise the sequence ends with exactly one
// complete event carrying the accumulated text.
//
// A body with no event-record lines at all is treated as a single opaque
// answer: one complete event, no chunks, no structured decoding.
func Decode(body string) []event.Event {
	var events []event.Event
	var full strings.Builder
	matched := false

	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, recordPrefix) {
			continue
		}
		matched = true

		payload := strings.TrimSpace(strings.TrimPrefix(trimmed, recordPrefix))
		if payload == "" {
			continue
		}

		text, errMsg := decodePayload(payload)
		if errMsg != "" {
			return append(events, event.Error(errMsg))
		}
		events = append(events, event.Chunk(text))
		full.WriteString(text)
	}

	if !matched {
		return []event.Event{event.Complete(body)}
	}
	return append(events, event.Complete(full.String()))
}

// decodePayload extracts chunk text from one payload, or an error message
// if the payload carries an error indicator. Shapes are tried in fixed
// priority order: plain string, error-bearing object, content-bearing
// object, opaque fallback.
func decodePayload(payload string) (text, errMsg string) {
	var decoded any
	if err := json.Unmarshal([]byte(payload), &decoded); err != nil {
		// Not structured data; the raw payload is the chunk.
		return payload, ""
	}

	switch v := decoded.(type) {
	case string:
		return v, ""
	case map[string]any:
		return decodeObject(v, payload)
	default:
		// Numbers, booleans, arrays: no known shape, keep the raw payload.
		return payload, ""
	}
}

// decodeObject inspects a structured payload for an explicit error
// indicator, then for known content fields.
func decodeObject(obj map[string]any, payload string) (text, errMsg string) {
	if v, ok := obj["error"]; ok {
		return "", stringify(v)
	}
	if v, ok := obj["error_type"]; ok {
		return "", stringify(v)
	}
	if v, ok := obj["message"]; ok {
		if s := stringify(v); strings.Contains(strings.ToLower(s), "error") {
			return "", s
		}
	}

	for _, field := range []string{"text", "content", "message"} {
		if v, ok := obj[field]; ok {
			return stringify(v), ""
		}
	}

	// No known content field; fall back to the object's JSON form.
	if b, err := json.Marshal(obj); err == nil {
		return string(b), ""
	}
	return payload, ""
}

func stringify(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
