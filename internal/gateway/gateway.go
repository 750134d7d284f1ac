// ABOUTME: Gateway orchestrator owning the HTTP server and the duplex client boundary.
// ABOUTME: Upgrades WebSocket connections and fans inbound messages out to the relay.

package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/2389/relay-gateway/internal/auth"
	"github.com/2389/relay-gateway/internal/config"
	"github.com/2389/relay-gateway/internal/event"
	"github.com/2389/relay-gateway/internal/relay"
)

// MessageHandler relays one inbound user message, pushing the resulting
// event sequence through the given pusher. Implemented by relay.Relay.
type MessageHandler interface {
	Handle(ctx context.Context, msg relay.Message, push relay.Pusher)
}

// Gateway owns the HTTP server, the WebSocket boundary, and connection
// identity. Each inbound sendMessage action spawns one independent relay
// invocation.
type Gateway struct {
	config     *config.Config
	handler    MessageHandler
	hub        *Hub
	verifier   auth.TokenVerifier
	httpServer *http.Server
	upgrader   websocket.Upgrader
	logger     *slog.Logger
}

// Params wires a Gateway's collaborators.
type Params struct {
	Config  *config.Config
	Handler MessageHandler
	Logger  *slog.Logger
}

// New creates a Gateway. Connection auth is enabled iff auth.jwt_secret
// is configured.
func New(p Params) (*Gateway, error) {
	logger := p.Logger.With("component", "gateway")

	g := &Gateway{
		config:  p.Config,
		handler: p.Handler,
		hub:     NewHub(),
		logger:  logger,
	}

	if secret := p.Config.Auth.JWTSecret; secret != "" {
		verifier, err := auth.NewJWTVerifier([]byte(secret))
		if err != nil {
			return nil, fmt.Errorf("creating JWT verifier: %w", err)
		}
		g.verifier = verifier
		logger.Info("connection auth enabled")
	} else {
		logger.Warn("connection auth disabled - no jwt_secret configured")
	}

	g.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     g.checkOrigin,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", g.handleWS)
	mux.HandleFunc("/health", g.handleHealth)
	mux.HandleFunc("/health/ready", g.handleReady)

	g.httpServer = &http.Server{
		Addr:              p.Config.Server.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return g, nil
}

// checkOrigin enforces server.allowed_origins; an empty list allows any.
func (g *Gateway) checkOrigin(r *http.Request) bool {
	allowed := g.config.Server.AllowedOrigins
	if len(allowed) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		// Non-browser clients send no Origin header.
		return true
	}
	for _, o := range allowed {
		if strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}

// Run starts the HTTP server and blocks until the context is canceled.
// Returns nil on graceful shutdown, or an error if the server fails.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening on HTTP address: %w", err)
	}

	errCh := g.startServer(ln)
	serverErr := g.waitForShutdownSignal(ctx, errCh)

	shutdownErr := g.gracefulShutdown()

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// startServer starts the HTTP server in a goroutine, returning its error channel.
func (g *Gateway) startServer(ln net.Listener) chan error {
	errCh := make(chan error, 1)

	go func() {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := g.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	return errCh
}

// waitForShutdownSignal waits for context cancellation or a server error.
func (g *Gateway) waitForShutdownSignal(ctx context.Context, errCh chan error) error {
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
		return nil
	case err := <-errCh:
		g.logger.Error("server error", "error", err)
		return err
	}
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
// Uses context.Background() intentionally since the original context is
// already canceled.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.Shutdown(ctx)
}

// Shutdown stops the HTTP server and closes all client connections.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	err := g.httpServer.Shutdown(ctx)
	g.hub.CloseAll()

	if err != nil {
		return fmt.Errorf("HTTP shutdown: %w", err)
	}
	return nil
}

// handleWS authenticates and upgrades a client connection, then runs its
// read loop until disconnect.
func (g *Gateway) handleWS(w http.ResponseWriter, r *http.Request) {
	userID, ok := g.authorize(w, r)
	if !ok {
		return
	}

	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Debug("upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	conn := newConn(uuid.New().String(), ws, g.logger)
	conn.UserID = userID
	g.hub.Register(conn)
	g.logger.Info("client connected", "conn_id", conn.ID, "remote", r.RemoteAddr, "total", g.hub.Len())

	go conn.writePump()
	g.readLoop(conn)

	g.hub.Unregister(conn.ID)
	g.logger.Info("client disconnected", "conn_id", conn.ID, "total", g.hub.Len())
}

// authorize verifies the bearer token when auth is enabled. Returns the
// token subject and whether the request may proceed.
func (g *Gateway) authorize(w http.ResponseWriter, r *http.Request) (string, bool) {
	if g.verifier == nil {
		return "", true
	}

	token := bearerToken(r)
	if token == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return "", false
	}

	subject, err := g.verifier.Verify(token)
	if err != nil {
		g.logger.Debug("token rejected", "remote", r.RemoteAddr, "error", err)
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return "", false
	}
	return subject, true
}

// bearerToken extracts the token from the Authorization header or the
// token query parameter (browser WebSocket clients cannot set headers).
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

// readLoop consumes inbound action frames until the connection drops.
func (g *Gateway) readLoop(conn *Conn) {
	conn.ws.SetReadLimit(maxMessageSize)
	_ = conn.ws.SetReadDeadline(time.Now().Add(pongWait))
	conn.ws.SetPongHandler(func(string) error {
		return conn.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ws.ReadMessage()
		if err != nil {
			return
		}

		var action event.SendMessage
		if err := json.Unmarshal(data, &action); err != nil {
			_ = conn.Push(event.Error("malformed action"))
			continue
		}

		if err := validateAction(action); err != nil {
			_ = conn.Push(event.Error(err.Error()))
			continue
		}

		go g.dispatch(conn, action)
	}
}

func validateAction(action event.SendMessage) error {
	switch {
	case action.Action != event.ActionSendMessage:
		return fmt.Errorf("unsupported action %q", action.Action)
	case action.Message == "":
		return fmt.Errorf("message is required")
	case action.SessionID == "":
		return fmt.Errorf("sessionId is required")
	}
	return nil
}

// dispatch runs one relay invocation for an inbound message. The context
// is deliberately detached from the connection: once an invocation is in
// flight, a client disconnect does not cancel it.
func (g *Gateway) dispatch(conn *Conn, action event.SendMessage) {
	userID := action.UserID
	if userID == "" {
		userID = conn.UserID
	}

	g.handler.Handle(context.Background(), relay.Message{
		Text:      action.Message,
		SessionID: action.SessionID,
		UserID:    userID,
		AgentName: action.AgentName,
	}, conn)
}

// handleHealth returns 200 OK if the server is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady reports readiness and the open connection count.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "ready (%d connections)", g.hub.Len())
}
