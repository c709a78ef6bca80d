// Package provider wraps the external language-model provider behind a
// circuit breaker, isolating the rest of the daemon from its failures.
package provider

import "context"

// ChatRequest is the opaque request passed to the provider. Its content is
// not inspected by the circuit breaker.
type ChatRequest struct {
	ChatID string
	Text   string
}

// ChatReply is the provider's response to a ChatRequest.
type ChatReply struct {
	Text string
}

// Provider is the external collaborator this package wraps. Implementers
// live outside the core; the core only ever calls through the breaker.
type Provider interface {
	Chat(ctx context.Context, req ChatRequest) (ChatReply, error)
}
