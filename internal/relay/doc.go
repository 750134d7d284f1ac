// Package relay forwards chat messages to remote agent runtimes and
// streams the decoded reply back to the caller.
//
// One Handle call is one invocation: resolve the agent name to a runtime
// identifier, sign and POST the prompt to the runtime endpoint, decode the
// response stream, and push each semantic event to the originating
// connection in order. Failures before the remote call surface as a single
// error event; a 404 or transport failure on one candidate path falls
// through to the next, while any other non-2xx status is fatal for the
// invocation.
package relay
