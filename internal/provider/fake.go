package provider

import "context"

// FakeProvider is a test double satisfying Provider: it either always
// succeeds with a canned reply or always fails with a canned error,
// controlled by the caller. Used by the agentbridge tests, and by
// kenobotd as the provider when no API key is configured.
type FakeProvider struct {
	Reply ChatReply
	Err   error
}

// Chat returns f.Err if set, otherwise f.Reply.
func (f *FakeProvider) Chat(ctx context.Context, req ChatRequest) (ChatReply, error) {
	if f.Err != nil {
		return ChatReply{}, f.Err
	}
	return f.Reply, nil
}
