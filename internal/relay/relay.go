// ABOUTME: Orchestrates one user message: resolve, sign, send, decode, push.
// ABOUTME: Carries the candidate-path fallback and the single-terminal-event guarantee.

package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/2389/relay-gateway/internal/event"
	"github.com/2389/relay-gateway/internal/stream"
)

// ErrPathsExhausted indicates every candidate invocation path failed with a
// retryable condition.
var ErrPathsExhausted = errors.New("all runtime invocation paths exhausted")

// StatusError is a non-success, non-404 response from the runtime. It is
// fatal immediately and never retried across candidate paths.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("runtime returned status %d", e.Code)
}

// Resolver maps an agent name to an opaque runtime identifier.
type Resolver interface {
	Resolve(ctx context.Context, agentName string) (string, error)
}

// Signer applies authentication headers to an outbound runtime request.
type Signer interface {
	Sign(ctx context.Context, req *http.Request, body []byte) error
}

// Pusher delivers one event to the originating client connection. A push
// failure means the client is gone; the relay stops delivering but does
// not escalate.
type Pusher interface {
	Push(ev event.Event) error
}

// Message is one inbound user message to relay to a runtime.
type Message struct {
	Text      string
	SessionID string
	UserID    string
	AgentName string
}

// invokeRequest is the outbound runtime request body.
type invokeRequest struct {
	Prompt    string `json:"prompt"`
	SessionID string `json:"sessionId"`
	UserID    string `json:"userId,omitempty"`
}

// Config wires a Relay's collaborators and invocation surface.
type Config struct {
	Resolver Resolver
	Signer   Signer

	// HTTPClient performs the outbound call. Its timeout is the only
	// ceiling on an invocation; agent turns can be long.
	HTTPClient *http.Client

	// Endpoint is the runtime base URL, e.g.
	// "https://bedrock-agentcore.us-west-2.amazonaws.com".
	Endpoint string

	// Paths are candidate path templates tried in priority order; each
	// contains one %s for the escaped runtime identifier. Usually a
	// single entry; the fallback loop stays live for API evolution.
	Paths []string

	// DefaultAgent is used when a message names no agent.
	DefaultAgent string

	Logger *slog.Logger
}

// DefaultPaths is the observed invocation path shape.
var DefaultPaths = []string{"/runtimes/%s/invocations?qualifier=DEFAULT"}

// DefaultTimeout bounds one runtime invocation end to end.
const DefaultTimeout = 15 * time.Minute

// Relay handles inbound user messages. Each Handle call is independent;
// a Relay is safe for concurrent use.
type Relay struct {
	resolver     Resolver
	signer       Signer
	httpClient   *http.Client
	endpoint     string
	paths        []string
	defaultAgent string
	logger       *slog.Logger
}

// New creates a Relay, filling defaults for paths and the HTTP client.
func New(cfg Config) *Relay {
	paths := cfg.Paths
	if len(paths) == 0 {
		paths = DefaultPaths
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{
		resolver:     cfg.Resolver,
		signer:       cfg.Signer,
		httpClient:   client,
		endpoint:     cfg.Endpoint,
		paths:        paths,
		defaultAgent: cfg.DefaultAgent,
		logger:       logger,
	}
}

// Handle relays one user message and pushes the resulting event sequence
// to push. It returns after a terminal event has been delivered or the
// client connection has gone away; exactly one terminal event is pushed
// per invocation unless delivery itself fails.
func (r *Relay) Handle(ctx context.Context, msg Message, push Pusher) {
	agentName := msg.AgentName
	if agentName == "" {
		agentName = r.defaultAgent
	}

	deliver := func(ev event.Event) bool {
		ev.SessionID = msg.SessionID
		ev.AgentName = agentName
		if err := push.Push(ev); err != nil {
			r.logger.Debug("client gone mid-invocation", "session_id", msg.SessionID, "error", err)
			return false
		}
		return true
	}

	runtimeID, err := r.resolver.Resolve(ctx, agentName)
	if err != nil {
		r.logger.Warn("runtime resolution failed", "agent", agentName, "error", err)
		deliver(event.Errorf("agent %q is not available: %v", agentName, err))
		return
	}

	body, err := json.Marshal(invokeRequest{
		Prompt:    msg.Text,
		SessionID: msg.SessionID,
		UserID:    msg.UserID,
	})
	if err != nil {
		deliver(event.Errorf("encoding request: %v", err))
		return
	}

	// Let the client render an in-progress indicator before any data.
	if !deliver(event.Status(event.StatusThinking)) {
		return
	}

	respBody, err := r.invoke(ctx, runtimeID, body)
	if err != nil {
		var statusErr *StatusError
		switch {
		case errors.As(err, &statusErr):
			r.logger.Warn("runtime invocation rejected", "agent", agentName, "status", statusErr.Code)
			deliver(event.Errorf("agent runtime returned status %d", statusErr.Code))
		default:
			r.logger.Error("runtime invocation failed", "agent", agentName, "error", err)
			deliver(event.Errorf("agent runtime unreachable: %v", err))
		}
		return
	}

	for _, ev := range stream.Decode(respBody) {
		if !deliver(ev) {
			return
		}
	}
}

// invoke signs and sends the request, walking the candidate path list.
// A 404 or a transport failure moves to the next candidate; any other
// non-success status is fatal immediately.
func (r *Relay) invoke(ctx context.Context, runtimeID string, body []byte) (string, error) {
	escaped := url.PathEscape(runtimeID)

	var lastErr error
	for _, tmpl := range r.paths {
		pathAndQuery := fmt.Sprintf(tmpl, escaped)

		respBody, err := r.attempt(ctx, pathAndQuery, body)
		if err == nil {
			return respBody, nil
		}

		var statusErr *StatusError
		if errors.As(err, &statusErr) {
			return "", err
		}

		r.logger.Debug("invocation attempt failed, trying next path", "path", pathAndQuery, "error", err)
		lastErr = err
	}

	return "", fmt.Errorf("%w: %v", ErrPathsExhausted, lastErr)
}

// attempt performs one signed POST against a single candidate path.
func (r *Relay) attempt(ctx context.Context, pathAndQuery string, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint+pathAndQuery, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")

	if err := r.signer.Sign(ctx, req, body); err != nil {
		return "", fmt.Errorf("signing request: %w", err)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return "", fmt.Errorf("path not found: %s", pathAndQuery)
	case resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices:
		return "", &StatusError{Code: resp.StatusCode}
	}
	return string(respBody), nil
}
