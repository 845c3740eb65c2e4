// Package client is a thin REST client for the gateway, used by the CLI and
// by integration tooling. Gateway error bodies are turned back into
// classified errors, so callers can branch on the same kinds the server uses.
package client
