package bus

import (
	"context"
	"log/slog"
	"sync"
)

// quietTypes are logged at debug level instead of info: high-frequency
// signals whose every occurrence is not worth an info-level line.
var quietTypes = map[Type]bool{
	TypeThinkingStart: true,
}

// newLoggingMiddleware logs a structured line per fired signal, at debug
// level for the quiet set and info level otherwise. It never inhibits.
func newLoggingMiddleware(logger *slog.Logger) Middleware {
	return func(sig *Signal) bool {
		level := slog.LevelInfo
		if quietTypes[sig.Type] {
			level = slog.LevelDebug
		}
		logger.Log(context.Background(), level, "signal fired",
			"type", sig.Type, "source", sig.Source, "traceId", sig.TraceID)
		return true
	}
}

// newTraceMiddleware stashes the trace ID of an INCOMING_MESSAGE keyed by
// chatId, and overwrites the trace ID of the matching OUTGOING_MESSAGE so
// that the two signals of a single user turn share one trace ID. The
// stash entry is evicted once consumed.
func newTraceMiddleware() Middleware {
	var mu sync.Mutex
	pending := make(map[string]string) // chatId -> traceId

	return func(sig *Signal) bool {
		chatID, ok := sig.ChatID()
		if !ok {
			return true
		}

		switch sig.Type {
		case TypeIncomingMessage:
			mu.Lock()
			pending[chatID] = sig.TraceID
			mu.Unlock()
		case TypeOutgoingMessage:
			mu.Lock()
			traceID, found := pending[chatID]
			if found {
				delete(pending, chatID)
			}
			mu.Unlock()
			if found {
				sig.TraceID = traceID
			}
		}
		return true
	}
}

// newDeadSignalMiddleware logs a warning when a fired signal has no
// subscribers registered for its type. It runs last in the built-in chain
// so it observes the final signal state, and it never inhibits — a dead
// signal is a diagnostic, not an error.
func newDeadSignalMiddleware(logger *slog.Logger, b *Bus) Middleware {
	return func(sig *Signal) bool {
		if b.HandlerCount(sig.Type) == 0 {
			logger.Warn("signal has no subscribers", "type", sig.Type, "traceId", sig.TraceID)
		}
		return true
	}
}
