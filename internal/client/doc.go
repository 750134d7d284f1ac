// Package client implements the chat session used by terminal and
// embedded clients.
//
// A Session owns one WebSocket connection, the conversation transcript,
// and the correlation between a sent message and the assistant reply
// assembled from streamed events. Lost connections are retried once per
// fixed interval until Close.
package client
