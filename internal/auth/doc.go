// Package auth verifies JWT bearer tokens presented on WebSocket upgrade.
// Tokens are signed with HS256 using the configured jwt_secret; auth is
// enabled only when a secret is configured.
package auth
