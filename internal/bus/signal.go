// Package bus implements the typed publish/subscribe signal bus that all
// runtime components communicate over: handlers register for a closed set
// of signal types, an ordered middleware pipeline observes and may inhibit
// delivery, and subscribers are invoked synchronously in registration
// order.
package bus

import (
	"time"

	"github.com/google/uuid"
)

// Type is a closed-set signal name. Using a defined type instead of bare
// strings lets callers rely on exhaustive switches and lets the dead-signal
// middleware distinguish a typo from an intentionally unhandled type.
type Type string

// Stable signal type names. These cross process and wire boundaries (the
// audit trail, the websocket fan-out) so they must never be renamed once
// published.
const (
	TypeIncomingMessage  Type = "INCOMING_MESSAGE"
	TypeOutgoingMessage  Type = "OUTGOING_MESSAGE"
	TypeThinkingStart    Type = "THINKING_START"
	TypeError            Type = "ERROR"
	TypeHealthDegraded   Type = "HEALTH_DEGRADED"
	TypeHealthUnhealthy  Type = "HEALTH_UNHEALTHY"
	TypeHealthRecovered  Type = "HEALTH_RECOVERED"
	TypeNotification     Type = "NOTIFICATION"
	TypeApprovalProposed Type = "APPROVAL_PROPOSED"
)

// Signal is an immutable record dispatched to subscribers. It is built by
// fire() and never mutated after the middleware pipeline completes, except
// that middleware may read or overwrite TraceID.
type Signal struct {
	Type      Type           `json:"type"`
	Source    string         `json:"source"`
	TraceID   string         `json:"traceId"`
	Timestamp int64          `json:"timestamp"`
	Payload   map[string]any `json:"payload"`
}

// newSignal constructs a Signal with a fresh trace ID unless one is
// supplied. Timestamp is recorded in unix milliseconds.
func newSignal(typ Type, source string, traceID string, payload map[string]any) *Signal {
	if traceID == "" {
		traceID = newTraceID()
	}
	return &Signal{
		Type:      typ,
		Source:    source,
		TraceID:   traceID,
		Timestamp: time.Now().UnixMilli(),
		Payload:   payload,
	}
}

// newTraceID mints a UUIDv7 trace identifier, falling back to UUIDv4 if the
// time-ordered generator is unavailable (clock read failure).
func newTraceID() string {
	if id, err := uuid.NewV7(); err == nil {
		return id.String()
	}
	return uuid.NewString()
}

// ChatID extracts the conversation identifier from a signal payload, if
// present. Most bus consumers only care about this one field.
func (s *Signal) ChatID() (string, bool) {
	v, ok := s.Payload["chatId"]
	if !ok {
		return "", false
	}
	id, ok := v.(string)
	return id, ok
}
