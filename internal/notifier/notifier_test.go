package notifier

import (
	"testing"

	"github.com/kenobot/kenobot/internal/bus"
)

func newTestBus(t *testing.T) *bus.Bus {
	t.Helper()
	return bus.New(nil, nil)
}

func TestNotifierDeliversOnUnhealthy(t *testing.T) {
	b := newTestBus(t)
	New(b, "telegram-owner", "telegram", nil)

	var got *bus.Signal
	b.On(bus.TypeOutgoingMessage, func(sig *bus.Signal) { got = sig })

	b.Fire(bus.TypeHealthUnhealthy, "watchdog", "", map[string]any{
		"previous": "HEALTHY",
		"detail":   "provider: circuit open",
	})

	if got == nil {
		t.Fatal("expected an OUTGOING_MESSAGE to be fired")
	}
	if chatID, _ := got.ChatID(); chatID != "telegram-owner" {
		t.Errorf("chatId = %q, want telegram-owner", chatID)
	}
	if ch, _ := got.Payload["channel"].(string); ch != "telegram" {
		t.Errorf("channel = %q, want telegram", ch)
	}
	text, _ := got.Payload["text"].(string)
	if text == "" {
		t.Error("expected non-empty notification text")
	}
}

func TestNotifierDeliversOnRecovery(t *testing.T) {
	b := newTestBus(t)
	New(b, "owner", "api", nil)

	var texts []string
	b.On(bus.TypeOutgoingMessage, func(sig *bus.Signal) {
		if text, ok := sig.Payload["text"].(string); ok {
			texts = append(texts, text)
		}
	})

	b.Fire(bus.TypeHealthDegraded, "watchdog", "", map[string]any{"detail": "rss high"})
	b.Fire(bus.TypeHealthRecovered, "watchdog", "", map[string]any{"detail": ""})

	if len(texts) != 2 {
		t.Fatalf("got %d notifications, want 2: %v", len(texts), texts)
	}
}

func TestNotifierDeliversOnError(t *testing.T) {
	b := newTestBus(t)
	New(b, "owner", "webhook", nil)

	var got *bus.Signal
	b.On(bus.TypeOutgoingMessage, func(sig *bus.Signal) { got = sig })

	b.Emit(bus.TypeError, "bus", "", map[string]any{"source": "handler", "detail": "boom"})

	if got == nil {
		t.Fatal("expected an OUTGOING_MESSAGE for the ERROR signal")
	}
}

func TestNotifierFiresNotificationSignal(t *testing.T) {
	b := newTestBus(t)
	New(b, "owner", "api", nil)

	var notified bool
	b.On(bus.TypeNotification, func(sig *bus.Signal) { notified = true })

	b.Fire(bus.TypeHealthUnhealthy, "watchdog", "", map[string]any{"detail": "x"})

	if !notified {
		t.Error("expected a NOTIFICATION signal alongside the OUTGOING_MESSAGE")
	}
}
