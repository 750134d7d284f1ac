// ABOUTME: Client-side session owning the duplex connection lifecycle and transcript.
// ABOUTME: Assembles streamed events into messages and reconnects on a fixed interval.

package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/2389/relay-gateway/internal/event"
)

// State is the connection lifecycle state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// Role identifies a transcript message author.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one transcript entry.
type Message struct {
	ID          string
	Role        Role
	Text        string
	IsStreaming bool
	CreatedAt   time.Time
}

// DefaultReconnectInterval is the fixed delay between reconnect attempts.
// The connection target is a single logical endpoint, so there is no
// backoff growth.
const DefaultReconnectInterval = 3 * time.Second

// ErrNotConnected indicates a send on a session without a live connection.
var ErrNotConnected = errors.New("session not connected")

// Config wires a Session.
type Config struct {
	// URL is the gateway WebSocket endpoint, e.g. "ws://host:8080/ws".
	URL string

	// Token is an optional bearer token sent on connect.
	Token string

	// AgentName selects the agent for outgoing messages; empty lets the
	// gateway use its default.
	AgentName string

	// UserID is an optional stable user identifier.
	UserID string

	// ReconnectInterval overrides DefaultReconnectInterval.
	ReconnectInterval time.Duration

	// OnEvent observes every received event, after transcript state has
	// been updated. Optional.
	OnEvent func(ev event.Event)

	// OnStateChange observes lifecycle transitions. Optional.
	OnStateChange func(s State)

	// Dialer overrides the WebSocket dialer. Optional.
	Dialer *websocket.Dialer

	Logger *slog.Logger
}

// Session owns one duplex connection and the conversation assembled over
// it. The session identifier is created once and passed through on every
// message so the remote runtime can keep conversational memory.
type Session struct {
	cfg       Config
	sessionID string
	dialer    *websocket.Dialer
	interval  time.Duration
	logger    *slog.Logger

	mu           sync.Mutex
	state        State
	conn         *websocket.Conn
	transcript   []Message
	pendingID    string // assistant correlation id, "" when none in flight
	status       string // ephemeral thinking indicator
	reconnecting bool
	closed       bool

	writeMu sync.Mutex
}

// New creates a Session with a fresh session identifier. Connect must be
// called before Send.
func New(cfg Config) *Session {
	interval := cfg.ReconnectInterval
	if interval <= 0 {
		interval = DefaultReconnectInterval
	}
	dialer := cfg.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		cfg:       cfg,
		sessionID: uuid.New().String(),
		dialer:    dialer,
		interval:  interval,
		logger:    logger,
		state:     StateDisconnected,
	}
}

// SessionID returns the immutable session identifier.
func (s *Session) SessionID() string {
	return s.sessionID
}

// Connect dials the gateway and starts consuming events. It returns an
// error if the initial dial fails; reconnection after a later disconnect
// is automatic.
func (s *Session) Connect(ctx context.Context) error {
	s.setState(StateConnecting)

	conn, err := s.dial(ctx)
	if err != nil {
		s.setState(StateDisconnected)
		return fmt.Errorf("connecting to gateway: %w", err)
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	s.setState(StateConnected)

	go s.readLoop(conn)
	return nil
}

func (s *Session) dial(ctx context.Context) (*websocket.Conn, error) {
	var header http.Header
	if s.cfg.Token != "" {
		header = http.Header{"Authorization": []string{"Bearer " + s.cfg.Token}}
	}
	conn, _, err := s.dialer.DialContext(ctx, s.cfg.URL, header)
	return conn, err
}

// Close permanently shuts the session down; no reconnect follows.
func (s *Session) Close() error {
	s.mu.Lock()
	s.closed = true
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	s.setState(StateDisconnected)
	if conn != nil {
		return conn.Close()
	}
	return nil
}

// Send appends the user's message to the transcript and transmits the
// sendMessage action. The assistant reply's identifier is allocated here,
// before anything arrives, so later events correlate to it; if a reply is
// already in flight the existing correlation is kept.
func (s *Session) Send(text string) error {
	s.mu.Lock()
	if s.state != StateConnected || s.conn == nil {
		s.mu.Unlock()
		return ErrNotConnected
	}
	if s.pendingID == "" {
		s.pendingID = uuid.New().String()
	}
	s.transcript = append(s.transcript, Message{
		ID:        uuid.New().String(),
		Role:      RoleUser,
		Text:      text,
		CreatedAt: time.Now(),
	})
	conn := s.conn
	s.mu.Unlock()

	action := event.SendMessage{
		Action:    event.ActionSendMessage,
		Message:   text,
		SessionID: s.sessionID,
		UserID:    s.cfg.UserID,
		AgentName: s.cfg.AgentName,
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := conn.WriteJSON(action); err != nil {
		return fmt.Errorf("sending message: %w", err)
	}
	return nil
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// InFlight reports whether an assistant reply is currently expected.
func (s *Session) InFlight() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pendingID != ""
}

// Status returns the ephemeral progress indicator, empty when idle.
func (s *Session) Status() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Transcript returns a copy of the conversation so far.
func (s *Session) Transcript() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.transcript))
	copy(out, s.transcript)
	return out
}

// readLoop consumes events until the connection drops, then hands off to
// the reconnect loop.
func (s *Session) readLoop(conn *websocket.Conn) {
	for {
		var ev event.Event
		if err := conn.ReadJSON(&ev); err != nil {
			s.handleDisconnect(conn, err)
			return
		}
		s.handleEvent(ev)
	}
}

// handleEvent drives the assembly state machine for one received event.
func (s *Session) handleEvent(ev event.Event) {
	s.mu.Lock()
	switch ev.Type {
	case event.TypeStatus:
		s.status = ev.Status

	case event.TypeChunk:
		s.status = ""
		s.appendChunk(ev.Text)

	case event.TypeComplete:
		s.status = ""
		s.finishPending(ev.FullText, false)

	case event.TypeError:
		s.status = ""
		s.finishPending("Error: "+ev.Message, true)
	}
	s.mu.Unlock()

	if s.cfg.OnEvent != nil {
		s.cfg.OnEvent(ev)
	}
}

// appendChunk creates the assistant message on first content or extends
// it. Caller holds s.mu.
func (s *Session) appendChunk(text string) {
	if s.pendingID == "" {
		// Stray content with no send in flight; show it anyway.
		s.pendingID = uuid.New().String()
	}
	if msg := s.pending(); msg != nil {
		msg.Text += text
		return
	}
	s.transcript = append(s.transcript, Message{
		ID:          s.pendingID,
		Role:        RoleAssistant,
		Text:        text,
		IsStreaming: true,
		CreatedAt:   time.Now(),
	})
}

// finishPending terminates the in-flight assistant message and clears the
// correlation so the next send allocates a fresh identifier. Caller holds
// s.mu.
func (s *Session) finishPending(text string, overwrite bool) {
	if s.pendingID == "" {
		return
	}
	msg := s.pending()
	if msg == nil {
		// Terminal event without prior chunks still produces a message.
		s.transcript = append(s.transcript, Message{
			ID:        s.pendingID,
			Role:      RoleAssistant,
			Text:      text,
			CreatedAt: time.Now(),
		})
		s.pendingID = ""
		return
	}
	if overwrite {
		msg.Text = text
	}
	msg.IsStreaming = false
	s.pendingID = ""
}

// pending returns the in-flight assistant message, or nil. Caller holds s.mu.
func (s *Session) pending() *Message {
	for i := range s.transcript {
		if s.transcript[i].ID == s.pendingID {
			return &s.transcript[i]
		}
	}
	return nil
}

// handleDisconnect transitions to connecting and starts the single-flight
// reconnect loop. Overlapping close events from one connection generation
// cannot spawn duplicate loops.
func (s *Session) handleDisconnect(conn *websocket.Conn, cause error) {
	_ = conn.Close()

	s.mu.Lock()
	if s.closed || s.conn != conn {
		s.mu.Unlock()
		return
	}
	s.conn = nil
	alreadyReconnecting := s.reconnecting
	s.reconnecting = true
	s.mu.Unlock()

	s.logger.Debug("connection lost", "error", cause)
	s.setState(StateConnecting)

	if !alreadyReconnecting {
		go s.reconnectLoop()
	}
}

// reconnectLoop retries the dial once per fixed interval until it succeeds
// or the session is closed.
func (s *Session) reconnectLoop() {
	for {
		time.Sleep(s.interval)

		s.mu.Lock()
		if s.closed {
			s.reconnecting = false
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()

		conn, err := s.dial(context.Background())
		if err != nil {
			s.logger.Debug("reconnect attempt failed", "error", err)
			continue
		}

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			_ = conn.Close()
			return
		}
		s.conn = conn
		s.reconnecting = false
		s.mu.Unlock()

		s.setState(StateConnected)
		go s.readLoop(conn)
		return
	}
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	if s.state == state {
		s.mu.Unlock()
		return
	}
	s.state = state
	s.mu.Unlock()

	if s.cfg.OnStateChange != nil {
		s.cfg.OnStateChange(state)
	}
}
