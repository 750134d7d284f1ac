// Package signer applies AWS SigV4 request signing for calls to the agent
// runtime service. Credentials come from the ambient provider chain and
// are retrieved fresh per request so rotation is picked up.
package signer
