// Package registry resolves agent names to runtime identifiers, caching
// successful lookups for the process lifetime. The backing source is the
// AWS parameter store; a registry without a source rejects every lookup.
package registry
