// Package gateway owns the WebSocket edge of relay-gateway.
//
// # Overview
//
// The gateway accepts browser connections, authenticates them when a JWT
// secret is configured, and parses sendMessage actions off the wire. Each
// action is dispatched to a MessageHandler (the invocation relay) on its
// own goroutine; events the handler produces are pushed back over the
// originating connection in order.
//
// # Connection Model
//
// Every accepted socket becomes a Conn with a buffered outbound channel
// drained by a single write pump, so concurrent invocations never
// interleave partial frames. A Conn whose buffer fills is closed rather
// than blocked; Push reports the failure and the in-flight invocation
// stops delivering.
//
// # Dispatch Semantics
//
// Dispatch deliberately uses a context detached from the connection: a
// client that drops mid-invocation does not cancel the remote agent call.
// The push failure on the dead Conn ends delivery instead.
//
// # HTTP Surface
//
//	GET /ws            WebSocket upgrade (optionally authenticated)
//	GET /health        liveness
//	GET /health/ready  readiness, reports connection count
package gateway
