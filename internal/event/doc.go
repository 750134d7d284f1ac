// Package event defines the wire vocabulary shared by the gateway and its
// clients: the four streamed event kinds (status, chunk, complete, error)
// and the sendMessage action that starts an invocation.
package event
