package provider

import (
	"context"
	"fmt"

	"github.com/kenobot/kenobot/internal/llm"
)

// ChatClient is the subset of llm.Client a Delegate needs: a single
// non-streaming chat completion call. llm.Client satisfies this directly.
type ChatClient interface {
	Chat(ctx context.Context, model string, messages []llm.Message) (*llm.ChatResponse, error)
}

// Delegate adapts an llm.Client (in practice *llm.AnthropicClient) to the
// Provider interface the circuit breaker wraps. This package doesn't care
// which provider ChatClient talks to, only that it returns one reply per
// request.
type Delegate struct {
	client ChatClient
	model  string
}

// NewDelegate constructs a Delegate that calls client with the fixed
// model name for every request.
func NewDelegate(client ChatClient, model string) *Delegate {
	return &Delegate{client: client, model: model}
}

// Chat sends req as a single-turn user message and returns the assistant's
// reply text.
func (d *Delegate) Chat(ctx context.Context, req ChatRequest) (ChatReply, error) {
	resp, err := d.client.Chat(ctx, d.model, []llm.Message{{Role: "user", Content: req.Text}})
	if err != nil {
		return ChatReply{}, fmt.Errorf("delegate chat: %w", err)
	}
	return ChatReply{Text: resp.Message.Content}, nil
}
