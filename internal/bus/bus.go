package bus

import (
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Handler receives a fired Signal. A handler that panics is recovered,
// logged, and converted into an ERROR signal; it never aborts delivery to
// remaining handlers.
type Handler func(*Signal)

// Middleware observes (and may annotate) a Signal before delivery. Returning
// false inhibits delivery entirely: no handler for the signal's type runs,
// and the fire() call reports false. Middleware run in registration order,
// to completion, before any subscriber is invoked.
type Middleware func(*Signal) bool

// Stats is a point-in-time snapshot of bus activity counters.
type Stats struct {
	Fired     uint64
	Inhibited uint64
	ByType    map[Type]uint64
}

type subscription struct {
	handler Handler
	once    bool
}

// Bus is a typed publish/subscribe medium with an ordered middleware
// pipeline. It is an owned value: callers construct one with New and pass
// it by reference to every component that needs to publish or subscribe.
// Nothing about Bus is global or singleton, so multiple independent
// instances may coexist in one process.
type Bus struct {
	logger *slog.Logger

	mu         sync.Mutex
	handlers   map[Type][]*subscription
	middleware []Middleware

	statsMu   sync.Mutex
	fired     uint64
	inhibited uint64
	byType    map[Type]uint64

	metrics *metrics
	audit   *AuditTrail
}

// Option configures a Bus at construction time.
type Option func(*Bus)

// WithAuditTrail enables an append-only on-disk log of every fired signal.
func WithAuditTrail(trail *AuditTrail) Option {
	return func(b *Bus) { b.audit = trail }
}

// New constructs a Bus with the three built-in middlewares installed
// (trace propagation, structured logging, dead-signal detection) and
// Prometheus counters registered against reg. reg may be nil, in which
// case metrics are tracked in-process but not exported.
func New(logger *slog.Logger, reg prometheus.Registerer, opts ...Option) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Bus{
		logger:   logger,
		handlers: make(map[Type][]*subscription),
		byType:   make(map[Type]uint64),
		metrics:  newMetrics(reg),
	}
	for _, opt := range opts {
		opt(b)
	}

	b.Use(newTraceMiddleware())
	b.Use(newLoggingMiddleware(logger))
	b.Use(newDeadSignalMiddleware(logger, b))

	return b
}

// Use appends a middleware to the end of the pipeline.
func (b *Bus) Use(mw Middleware) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.middleware = append(b.middleware, mw)
}

// On registers a handler for typ. There is no bound on the number of
// handlers per type.
func (b *Bus) On(typ Type, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[typ] = append(b.handlers[typ], &subscription{handler: h})
}

// Once registers a handler that is automatically deregistered after its
// first invocation.
func (b *Bus) Once(typ Type, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[typ] = append(b.handlers[typ], &subscription{handler: h, once: true})
}

// Off deregisters the first handler registered for typ whose underlying
// function value matches h. Components that subscribe once for their
// lifetime and are torn down with the bus itself generally never need
// this; it exists mainly for tests.
func (b *Bus) Off(typ Type, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.handlers[typ]
	for i, s := range subs {
		if funcEqual(s.handler, h) {
			b.handlers[typ] = append(subs[:i:i], subs[i+1:]...)
			return
		}
	}
}

// HandlerCount returns the number of handlers currently registered for typ.
func (b *Bus) HandlerCount(typ Type) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.handlers[typ])
}

// Fire constructs a Signal, runs the middleware pipeline, and — unless a
// middleware inhibits delivery — dispatches synchronously to every handler
// registered for typ at the moment dispatch begins. It returns the
// delivered Signal, or false if inhibited.
//
// A handler added concurrently during dispatch does not receive the
// current signal: dispatch snapshots the handler slice up front.
func (b *Bus) Fire(typ Type, source string, traceID string, payload map[string]any) (*Signal, bool) {
	sig := newSignal(typ, source, traceID, payload)

	for _, mw := range b.middleware {
		if !b.runMiddleware(mw, sig) {
			b.recordInhibited(typ)
			return sig, false
		}
	}

	b.recordFired(typ)
	if b.audit != nil {
		b.audit.Append(sig)
	}

	b.dispatch(typ, sig)
	return sig, true
}

// Emit is a low-level bypass that dispatches directly to subscribers
// without running the middleware pipeline. It exists for internal fan-out
// that must not be traced or logged twice (the ERROR signal the bus
// itself emits when a handler panics, for instance).
func (b *Bus) Emit(typ Type, source string, traceID string, payload map[string]any) *Signal {
	sig := newSignal(typ, source, traceID, payload)
	b.dispatch(typ, sig)
	return sig
}

func (b *Bus) dispatch(typ Type, sig *Signal) {
	b.mu.Lock()
	subs := make([]*subscription, len(b.handlers[typ]))
	copy(subs, b.handlers[typ])
	b.mu.Unlock()

	var remaining []*subscription
	for _, s := range subs {
		b.invoke(s.handler, sig)
		if !s.once {
			remaining = append(remaining, s)
		}
	}

	if len(remaining) != len(subs) {
		b.mu.Lock()
		b.handlers[typ] = remaining
		b.mu.Unlock()
	}
}

func (b *Bus) invoke(h Handler, sig *Signal) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("bus handler panicked", "type", sig.Type, "traceId", sig.TraceID, "panic", r)
			b.Emit(TypeError, "bus", sig.TraceID, map[string]any{
				"source": sig.Type,
				"detail": r,
			})
		}
	}()
	h(sig)
}

func (b *Bus) runMiddleware(mw Middleware, sig *Signal) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("bus middleware panicked", "type", sig.Type, "panic", r)
			ok = true // a misbehaving middleware must not inhibit delivery
		}
	}()
	return mw(sig)
}

func (b *Bus) recordFired(typ Type) {
	b.statsMu.Lock()
	b.fired++
	b.byType[typ]++
	b.statsMu.Unlock()
	b.metrics.fired.WithLabelValues(string(typ)).Inc()
}

func (b *Bus) recordInhibited(typ Type) {
	b.statsMu.Lock()
	b.inhibited++
	b.statsMu.Unlock()
	b.metrics.inhibited.WithLabelValues(string(typ)).Inc()
}

// GetStats returns a copy of the bus's activity counters.
func (b *Bus) GetStats() Stats {
	b.statsMu.Lock()
	defer b.statsMu.Unlock()
	byType := make(map[Type]uint64, len(b.byType))
	for k, v := range b.byType {
		byType[k] = v
	}
	return Stats{Fired: b.fired, Inhibited: b.inhibited, ByType: byType}
}

// GetAuditTrail returns the configured audit trail, or nil if none was set.
func (b *Bus) GetAuditTrail() *AuditTrail {
	return b.audit
}

// funcEqual compares two Handlers for identity. Go forbids comparing func
// values directly; this compares the values as reflect-visible pointers,
// which is sufficient for the common case of registering a named function
// once and later passing the same value to Off.
func funcEqual(a, b Handler) bool {
	return reflectFuncEqual(a, b)
}
