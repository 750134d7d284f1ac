// Package stream decodes agent runtime response bodies into semantic
// events. Runtimes reply with newline-delimited records prefixed "data:";
// each record becomes a chunk, and decoding ends with exactly one terminal
// event: a complete carrying the concatenated text, or an error as soon as
// a record signals one.
package stream
