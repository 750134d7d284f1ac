// ABOUTME: Tests for the runtime response body decoder.
// ABOUTME: Validates chunk ordering, error-indicator halting, and opaque fallback.

package stream

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/relay-gateway/internal/event"
)

func TestDecode_StringPayloads(t *testing.T) {
	events := Decode("data: \"Hello\"\ndata: \" world\"")

	require.Len(t, events, 3)
	assert.Equal(t, event.Chunk("Hello"), events[0])
	assert.Equal(t, event.Chunk(" world"), events[1])
	assert.Equal(t, event.Complete("Hello world"), events[2])
}

func TestDecode_ErrorIndicatorHaltsDecoding(t *testing.T) {
	t.Run("error field", func(t *testing.T) {
		events := Decode(`data: {"error":"boom"}`)

		require.Len(t, events, 1)
		assert.Equal(t, event.Error("boom"), events[0])
	})

	t.Run("remaining lines are not processed", func(t *testing.T) {
		body := "data: \"before\"\ndata: {\"error\":\"boom\"}\ndata: \"after\""
		events := Decode(body)

		require.Len(t, events, 2)
		assert.Equal(t, event.Chunk("before"), events[0])
		assert.Equal(t, event.Error("boom"), events[1])
		for _, ev := range events {
			assert.NotEqual(t, event.TypeComplete, ev.Type)
		}
	})

	t.Run("error_type field", func(t *testing.T) {
		events := Decode(`data: {"error_type":"ValidationError"}`)

		require.Len(t, events, 1)
		assert.Equal(t, event.Error("ValidationError"), events[0])
	})

	t.Run("message field containing error", func(t *testing.T) {
		events := Decode(`data: {"message":"internal error: timeout"}`)

		require.Len(t, events, 1)
		assert.Equal(t, event.Error("internal error: timeout"), events[0])
	})

	t.Run("non-string error value is stringified", func(t *testing.T) {
		events := Decode(`data: {"error":{"code":42}}`)

		require.Len(t, events, 1)
		assert.Equal(t, event.TypeError, events[0].Type)
		assert.Equal(t, `{"code":42}`, events[0].Message)
	})
}

func TestDecode_ContentFieldPriority(t *testing.T) {
	t.Run("text wins over content and message", func(t *testing.T) {
		events := Decode(`data: {"text":"a","content":"b","message":"c"}`)

		require.Len(t, events, 2)
		assert.Equal(t, event.Chunk("a"), events[0])
	})

	t.Run("content wins over message", func(t *testing.T) {
		events := Decode(`data: {"content":"b","message":"c"}`)

		require.Len(t, events, 2)
		assert.Equal(t, event.Chunk("b"), events[0])
	})

	t.Run("benign message field is content", func(t *testing.T) {
		events := Decode(`data: {"message":"all good"}`)

		require.Len(t, events, 2)
		assert.Equal(t, event.Chunk("all good"), events[0])
		assert.Equal(t, event.Complete("all good"), events[1])
	})

	t.Run("object without known fields falls back to JSON", func(t *testing.T) {
		events := Decode(`data: {"answer":"42"}`)

		require.Len(t, events, 2)
		assert.Equal(t, event.Chunk(`{"answer":"42"}`), events[0])
	})
}

func TestDecode_OpaqueBody(t *testing.T) {
	events := Decode("plain answer")

	require.Len(t, events, 1)
	assert.Equal(t, event.Complete("plain answer"), events[0])
}

func TestDecode_EmptyPayloadSkipped(t *testing.T) {
	events := Decode("data:\ndata: \"x\"\ndata:   ")

	require.Len(t, events, 2)
	assert.Equal(t, event.Chunk("x"), events[0])
	assert.Equal(t, event.Complete("x"), events[1])
}

func TestDecode_UnparseablePayloadUsedRaw(t *testing.T) {
	events := Decode("data: not json at all")

	require.Len(t, events, 2)
	assert.Equal(t, event.Chunk("not json at all"), events[0])
	assert.Equal(t, event.Complete("not json at all"), events[1])
}

func TestDecode_NonRecordLinesIgnored(t *testing.T) {
	body := "event: message\ndata: \"hi\"\n\nretry: 300"
	events := Decode(body)

	require.Len(t, events, 2)
	assert.Equal(t, event.Chunk("hi"), events[0])
	assert.Equal(t, event.Complete("hi"), events[1])
}

// TestDecode_ChunksConcatenateToFullText checks the ordering invariant:
// joining chunk events in receipt order yields the complete event's text.
func TestDecode_ChunksConcatenateToFullText(t *testing.T) {
	bodies := []string{
		"data: \"one\"\ndata: \"two\"\ndata: \"three\"",
		"data: {\"text\":\"alpha \"}\ndata: {\"content\":\"beta \"}\ndata: \"gamma\"",
		"data: 17\ndata: \" done\"",
	}

	for _, body := range bodies {
		events := Decode(body)
		require.NotEmpty(t, events)

		last := events[len(events)-1]
		require.Equal(t, event.TypeComplete, last.Type)

		var joined strings.Builder
		for _, ev := range events[:len(events)-1] {
			require.Equal(t, event.TypeChunk, ev.Type)
			joined.WriteString(ev.Text)
		}
		assert.Equal(t, last.FullText, joined.String())
	}
}
