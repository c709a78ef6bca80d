// Package agentbridge is the default bus-to-provider agent: it
// subscribes to INCOMING_MESSAGE and fires exactly one OUTGOING_MESSAGE
// per turn, carrying the same chatId and channel, by delegating to the
// circuit-breaker-wrapped provider (internal/provider). spec.md §1
// treats "the agent loop itself" as an external collaborator identified
// only by the bus contract it must honor (§6, "Agent collaboration
// contract"); this package is that contract's minimal, swappable
// default implementation, not the agent's content or semantics — a real
// deployment replaces it with its own subscriber satisfying the same
// contract.
package agentbridge

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kenobot/kenobot/internal/bus"
	"github.com/kenobot/kenobot/internal/costtracker"
	"github.com/kenobot/kenobot/internal/provider"
)

// Bridge fires THINKING_START on receipt, calls the provider, and fires
// OUTGOING_MESSAGE with the reply (or an error message on failure — the
// bridge always replies, per spec.md §7: "the agent is expected to also
// fire a user-facing OUTGOING_MESSAGE with an error message, or else the
// caller times out").
type Bridge struct {
	bus         *bus.Bus
	provider    provider.Provider
	costTracker *costtracker.Tracker
	model       string
	timeout     time.Duration
	logger      *slog.Logger
}

// New constructs a Bridge and subscribes it to INCOMING_MESSAGE
// immediately. costTracker may be nil to disable usage accounting.
func New(b *bus.Bus, p provider.Provider, costTracker *costtracker.Tracker, model string, timeout time.Duration, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 25 * time.Second
	}
	br := &Bridge{bus: b, provider: p, costTracker: costTracker, model: model, timeout: timeout, logger: logger}
	b.On(bus.TypeIncomingMessage, br.onIncoming)
	return br
}

func (br *Bridge) onIncoming(sig *bus.Signal) {
	chatID, ok := sig.ChatID()
	if !ok {
		return
	}
	channel, _ := sig.Payload["channel"].(string)
	text, _ := sig.Payload["text"].(string)

	br.bus.Fire(bus.TypeThinkingStart, "agentbridge", sig.TraceID, map[string]any{
		"chatId":  chatID,
		"channel": channel,
	})

	ctx, cancel := context.WithTimeout(context.Background(), br.timeout)
	defer cancel()

	reply, err := br.provider.Chat(ctx, provider.ChatRequest{ChatID: chatID, Text: text})
	if err != nil {
		br.logger.Error("agentbridge: provider call failed", "chatId", chatID, "err", err)
		br.bus.Fire(bus.TypeError, "agentbridge", sig.TraceID, map[string]any{
			"source": "provider",
			"detail": err.Error(),
		})
		br.bus.Fire(bus.TypeOutgoingMessage, "agentbridge", sig.TraceID, map[string]any{
			"text":    fmt.Sprintf("sorry, something went wrong: %v", err),
			"chatId":  chatID,
			"channel": channel,
		})
		return
	}

	if br.costTracker != nil {
		br.costTracker.Record(br.model, len(text)/4, len(reply.Text)/4)
	}

	br.bus.Fire(bus.TypeOutgoingMessage, "agentbridge", sig.TraceID, map[string]any{
		"text":    reply.Text,
		"chatId":  chatID,
		"channel": channel,
	})
}
