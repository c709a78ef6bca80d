// Package notifier bridges internal system signals to the owner's
// conversation: it subscribes to the watchdog's HEALTH_* transitions
// (and the bus's ERROR signal) and re-fires them as an OUTGOING_MESSAGE
// addressed to a configured owner chatId, so whichever transport adapter
// owns that chatId delivers the notification exactly like an agent reply
// (spec.md §2: "the Notifier translates them into OUTGOING_MESSAGEs to
// the owner").
package notifier

import (
	"fmt"
	"log/slog"

	"github.com/kenobot/kenobot/internal/bus"
)

// Notifier owns no state beyond its bus subscriptions; it is a pure
// translation layer, grounded on the same On/Fire subscription idiom
// internal/correlator and internal/watchdog already use.
type Notifier struct {
	bus     *bus.Bus
	chatID  string
	channel string
	logger  *slog.Logger
}

// New constructs a Notifier that delivers to chatID over channel (the
// owner's configured conversation) and subscribes it to the bus
// immediately to the three HEALTH_* signals and ERROR.
func New(b *bus.Bus, chatID, channel string, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	n := &Notifier{bus: b, chatID: chatID, channel: channel, logger: logger}

	b.On(bus.TypeHealthDegraded, n.onHealthEdge("degraded"))
	b.On(bus.TypeHealthUnhealthy, n.onHealthEdge("unhealthy"))
	b.On(bus.TypeHealthRecovered, n.onHealthEdge("recovered"))
	b.On(bus.TypeError, n.onError)

	return n
}

// onHealthEdge renders a watchdog state transition into a human-readable
// notification and fires it both as NOTIFICATION (for the admin
// websocket and audit trail) and OUTGOING_MESSAGE (for delivery).
func (n *Notifier) onHealthEdge(label string) bus.Handler {
	return func(sig *bus.Signal) {
		detail, _ := sig.Payload["detail"].(string)
		text := fmt.Sprintf("health check %s", label)
		if detail != "" {
			text = fmt.Sprintf("%s: %s", text, detail)
		}
		n.deliver(sig.TraceID, text)
	}
}

// onError surfaces a bus-level ERROR signal (e.g. a panicking handler)
// to the owner. Unlike health edges this fires on every occurrence, not
// just on a state transition, since an ERROR signal has no steady state
// to be edge-triggered against.
func (n *Notifier) onError(sig *bus.Signal) {
	source, _ := sig.Payload["source"].(string)
	detail, _ := sig.Payload["detail"]
	n.deliver(sig.TraceID, fmt.Sprintf("error in %v: %v", source, detail))
}

func (n *Notifier) deliver(traceID, text string) {
	n.logger.Warn("notifying owner", "text", text)
	n.bus.Fire(bus.TypeNotification, "notifier", traceID, map[string]any{
		"chatId": n.chatID,
		"text":   text,
	})
	n.bus.Fire(bus.TypeOutgoingMessage, "notifier", traceID, map[string]any{
		"text":    text,
		"chatId":  n.chatID,
		"channel": n.channel,
	})
}
