package llm

import "testing"

func TestChatResponse_ZeroValueSafe(t *testing.T) {
	var resp ChatResponse
	if resp.Done {
		t.Error("zero ChatResponse.Done should be false")
	}
	if resp.InputTokens != 0 || resp.OutputTokens != 0 {
		t.Error("zero ChatResponse token counts should be 0")
	}
	if resp.Message.Content != "" {
		t.Error("zero ChatResponse.Message.Content should be empty")
	}
}
