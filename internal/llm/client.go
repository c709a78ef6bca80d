// Package llm adapts the single external chat-completion provider KenoBot
// talks to. spec.md treats the model provider as an external collaborator
// identified only by the interface the core consumes: send a request,
// get a reply. Everything provider-specific (wire format, auth headers)
// lives behind Client and never leaks past this package.
package llm

import "context"

// Client is implemented by the LLM provider a Delegate calls through.
// KenoBot wires exactly one concrete implementation (AnthropicClient);
// the interface exists so internal/provider can be tested against a fake.
type Client interface {
	// Chat sends a single-turn, non-streaming chat completion request.
	Chat(ctx context.Context, model string, messages []Message) (*ChatResponse, error)
}
