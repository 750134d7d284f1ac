// ABOUTME: Tests for the WebSocket gateway boundary.
// ABOUTME: Validates action dispatch, event delivery, auth, and health endpoints.

package gateway

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/relay-gateway/internal/auth"
	"github.com/2389/relay-gateway/internal/config"
	"github.com/2389/relay-gateway/internal/event"
	"github.com/2389/relay-gateway/internal/relay"
)

// echoHandler pushes a scripted event sequence for every message, stamping
// correlation fields the way the real relay does.
type echoHandler struct {
	events []event.Event
	seen   chan relay.Message
}

func (h *echoHandler) Handle(_ context.Context, msg relay.Message, push relay.Pusher) {
	if h.seen != nil {
		h.seen <- msg
	}
	for _, ev := range h.events {
		ev.SessionID = msg.SessionID
		if push.Push(ev) != nil {
			return
		}
	}
}

func testGateway(t *testing.T, cfg *config.Config, handler MessageHandler) (*Gateway, *httptest.Server) {
	t.Helper()
	if cfg == nil {
		cfg = &config.Config{}
		cfg.Server.HTTPAddr = "localhost:0"
		cfg.Runtime.Region = "us-east-1"
		cfg.Runtime.DefaultAgent = "general"
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	gw, err := New(Params{Config: cfg, Handler: handler, Logger: logger})
	require.NoError(t, err)

	srv := httptest.NewServer(gw.httpServer.Handler)
	t.Cleanup(func() {
		gw.hub.CloseAll()
		srv.Close()
	})
	return gw, srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func dial(t *testing.T, url string, header http.Header) *websocket.Conn {
	t.Helper()
	ws, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	return ws
}

func readEvent(t *testing.T, ws *websocket.Conn) event.Event {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, data, err := ws.ReadMessage()
	require.NoError(t, err)

	var ev event.Event
	require.NoError(t, json.Unmarshal(data, &ev))
	return ev
}

func sendAction(t *testing.T, ws *websocket.Conn, action event.SendMessage) {
	t.Helper()
	require.NoError(t, ws.WriteJSON(action))
}

func TestGateway_SendMessageDeliversEvents(t *testing.T) {
	handler := &echoHandler{
		events: []event.Event{
			event.Status(event.StatusThinking),
			event.Chunk("Hello"),
			event.Complete("Hello"),
		},
		seen: make(chan relay.Message, 1),
	}
	_, srv := testGateway(t, nil, handler)

	ws := dial(t, wsURL(srv), nil)
	sendAction(t, ws, event.SendMessage{
		Action:    event.ActionSendMessage,
		Message:   "hi",
		SessionID: "s-1",
		UserID:    "u-1",
		AgentName: "general",
	})

	select {
	case msg := <-handler.seen:
		assert.Equal(t, "hi", msg.Text)
		assert.Equal(t, "s-1", msg.SessionID)
		assert.Equal(t, "u-1", msg.UserID)
		assert.Equal(t, "general", msg.AgentName)
	case <-time.After(5 * time.Second):
		t.Fatal("handler never invoked")
	}

	assert.Equal(t, event.TypeStatus, readEvent(t, ws).Type)
	chunk := readEvent(t, ws)
	assert.Equal(t, event.TypeChunk, chunk.Type)
	assert.Equal(t, "Hello", chunk.Text)
	assert.Equal(t, "s-1", chunk.SessionID)
	assert.Equal(t, event.TypeComplete, readEvent(t, ws).Type)
}

func TestGateway_InvalidActionGetsErrorEvent(t *testing.T) {
	handler := &echoHandler{seen: make(chan relay.Message, 1)}
	_, srv := testGateway(t, nil, handler)

	ws := dial(t, wsURL(srv), nil)

	t.Run("unknown action", func(t *testing.T) {
		sendAction(t, ws, event.SendMessage{Action: "shout", Message: "hi", SessionID: "s-1"})
		ev := readEvent(t, ws)
		assert.Equal(t, event.TypeError, ev.Type)
		assert.Contains(t, ev.Message, "shout")
	})

	t.Run("missing message", func(t *testing.T) {
		sendAction(t, ws, event.SendMessage{Action: event.ActionSendMessage, SessionID: "s-1"})
		ev := readEvent(t, ws)
		assert.Equal(t, event.TypeError, ev.Type)
	})

	t.Run("missing session id", func(t *testing.T) {
		sendAction(t, ws, event.SendMessage{Action: event.ActionSendMessage, Message: "hi"})
		ev := readEvent(t, ws)
		assert.Equal(t, event.TypeError, ev.Type)
	})

	t.Run("connection survives invalid actions", func(t *testing.T) {
		sendAction(t, ws, event.SendMessage{Action: event.ActionSendMessage, Message: "hi", SessionID: "s-1"})
		select {
		case <-handler.seen:
		case <-time.After(5 * time.Second):
			t.Fatal("valid action after invalid ones was not dispatched")
		}
	})
}

func TestGateway_MalformedFrameGetsErrorEvent(t *testing.T) {
	_, srv := testGateway(t, nil, &echoHandler{})

	ws := dial(t, wsURL(srv), nil)
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte("{not json")))

	ev := readEvent(t, ws)
	assert.Equal(t, event.TypeError, ev.Type)
}

func TestGateway_Auth(t *testing.T) {
	cfg := &config.Config{}
	cfg.Server.HTTPAddr = "localhost:0"
	cfg.Runtime.Region = "us-east-1"
	cfg.Runtime.DefaultAgent = "general"
	cfg.Auth.JWTSecret = "test-secret"

	_, srv := testGateway(t, cfg, &echoHandler{})

	verifier, err := auth.NewJWTVerifier([]byte("test-secret"))
	require.NoError(t, err)
	token, err := verifier.Generate("user-9", time.Hour)
	require.NoError(t, err)

	t.Run("missing token rejected", func(t *testing.T) {
		_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
		require.Error(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("bad token rejected", func(t *testing.T) {
		_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv)+"?token=garbage", nil)
		require.Error(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("bearer header accepted", func(t *testing.T) {
		header := http.Header{"Authorization": []string{"Bearer " + token}}
		ws := dial(t, wsURL(srv), header)
		ws.Close()
	})

	t.Run("query token accepted and subject becomes user id", func(t *testing.T) {
		handler := &echoHandler{seen: make(chan relay.Message, 1)}
		_, srv2 := testGateway(t, cfg, handler)

		ws := dial(t, wsURL(srv2)+"?token="+token, nil)
		sendAction(t, ws, event.SendMessage{Action: event.ActionSendMessage, Message: "hi", SessionID: "s-1"})

		select {
		case msg := <-handler.seen:
			assert.Equal(t, "user-9", msg.UserID)
		case <-time.After(5 * time.Second):
			t.Fatal("handler never invoked")
		}
	})
}

func TestGateway_OriginCheck(t *testing.T) {
	cfg := &config.Config{}
	cfg.Server.HTTPAddr = "localhost:0"
	cfg.Runtime.Region = "us-east-1"
	cfg.Runtime.DefaultAgent = "general"
	cfg.Server.AllowedOrigins = []string{"https://app.example.com"}

	_, srv := testGateway(t, cfg, &echoHandler{})

	t.Run("allowed origin", func(t *testing.T) {
		header := http.Header{"Origin": []string{"https://app.example.com"}}
		ws := dial(t, wsURL(srv), header)
		ws.Close()
	})

	t.Run("other origin rejected", func(t *testing.T) {
		header := http.Header{"Origin": []string{"https://evil.example.com"}}
		_, _, err := websocket.DefaultDialer.Dial(wsURL(srv), header)
		require.Error(t, err)
	})

	t.Run("no origin header allowed", func(t *testing.T) {
		ws := dial(t, wsURL(srv), nil)
		ws.Close()
	})
}

func TestGateway_HealthEndpoints(t *testing.T) {
	_, srv := testGateway(t, nil, &echoHandler{})

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ws := dial(t, wsURL(srv), nil)
	defer ws.Close()

	resp2, err := http.Get(srv.URL + "/health/ready")
	require.NoError(t, err)
	defer resp2.Body.Close()
	body, _ := io.ReadAll(resp2.Body)
	assert.Equal(t, http.StatusOK, resp2.StatusCode)
	assert.Contains(t, string(body), "connections")
}

func TestConnPush_AfterCloseFails(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	upgrader := websocket.Upgrader{}

	serverSide := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err == nil {
			serverSide <- ws
		}
	}))
	defer srv.Close()

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer client.Close()

	ws := <-serverSide
	c := newConn("c-1", ws, logger)

	require.NoError(t, c.Push(event.Chunk("still open")))

	c.close()
	err = c.Push(event.Chunk("too late"))
	assert.ErrorIs(t, err, ErrConnClosed)
}

func TestHub_UnregisterUnknownIsNoop(t *testing.T) {
	h := NewHub()
	h.Unregister("missing")
	assert.Equal(t, 0, h.Len())
}
