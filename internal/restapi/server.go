package restapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kenobot/kenobot/internal/buildinfo"
	"github.com/kenobot/kenobot/internal/bus"
	"github.com/kenobot/kenobot/internal/correlator"
	"github.com/kenobot/kenobot/internal/conversation"
	"github.com/kenobot/kenobot/internal/costtracker"
	"github.com/kenobot/kenobot/internal/ratelimit"
	"github.com/kenobot/kenobot/internal/scheduler"
	"github.com/kenobot/kenobot/internal/sleepcycle"
	"github.com/kenobot/kenobot/internal/watchdog"
)

// Dependencies wires every component the REST API surface fronts. All
// fields are required except Registerer (nil disables /metrics
// registration — the handler still serves, just against the default
// registry) and Logger (nil falls back to slog.Default()).
type Dependencies struct {
	Bus          *bus.Bus
	Correlator   *correlator.Correlator
	Conversation *conversation.Store
	Scheduler    *scheduler.Scheduler
	SleepCycle   *sleepcycle.Supervisor
	Watchdog     *watchdog.Watchdog
	CostTracker  *costtracker.Tracker
	Registerer   prometheus.Registerer

	BearerToken    string
	CORSOrigin     string
	RateLimiter    *ratelimit.Limiter
	RequestTimeout time.Duration

	Logger *slog.Logger
}

// api is the receiver every route handler hangs off of.
type api struct {
	deps Dependencies
}

// NewRouter builds the complete chi.Router: unauthenticated /metrics and
// the bearer-protected /api/v1 tree (rate-limited ahead of auth, per
// spec.md §7 "resource exhaustion... the limiter continues to account").
func NewRouter(deps Dependencies) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.RequestTimeout <= 0 {
		deps.RequestTimeout = 30 * time.Second
	}
	if deps.CORSOrigin == "" {
		deps.CORSOrigin = "*"
	}

	a := &api{deps: deps}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(deps.RequestTimeout))

	if gatherer, ok := deps.Registerer.(prometheus.Gatherer); ok {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	} else {
		r.Handle("/metrics", promhttp.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(cors(deps.CORSOrigin))
		r.Use(rateLimit(deps.RateLimiter))

		// Public: no bearer token required, but still rate-limited (spec.md
		// §4.3: "Rate limiting occurs before auth; public endpoints also
		// count").
		r.Get("/", a.handleRoot)
		r.Get("/health", a.handleHealth)

		r.Group(func(r chi.Router) {
			r.Use(bearerAuth(deps.BearerToken))

			r.Get("/stats", a.handleStats)

			r.Route("/conversations", func(r chi.Router) {
				r.Get("/", a.handleListConversations)
				r.Post("/", a.handleCreateConversation)
				r.Get("/{id}", a.handleGetConversation)
				r.Delete("/{id}", a.handleDeleteConversation)
				r.Get("/{id}/messages", a.handleListMessages)
				r.Post("/{id}/messages", a.handleSendMessage)
			})

			r.Route("/memory", func(r chi.Router) {
				r.Get("/", a.handleMemoryOverview)
				r.Get("/recent", a.handleMemoryRecent)
				r.Get("/working/{sessionId}", a.handleMemoryWorking)
				r.Get("/patterns", a.handleMemoryPatterns)
			})

			r.Route("/scheduler", func(r chi.Router) {
				r.Get("/", a.handleListTasks)
				r.Post("/", a.handleAddTask)
				r.Delete("/{id}", a.handleRemoveTask)
				r.Get("/{id}/executions", a.handleTaskExecutions)
			})

			r.Route("/sleep-cycle", func(r chi.Router) {
				r.Get("/", a.handleSleepCycleStatus)
				r.Post("/run", a.handleSleepCycleRun)
			})

			r.Route("/tasks", func(r chi.Router) {
				r.Get("/active", a.handleActiveTasks)
				r.Get("/{id}/events", a.handleTaskEvents)
			})

			r.Get("/events", a.handleEventsWebSocket)
		})
	})

	return r
}

func (a *api) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, map[string]any{
		"name":    "kenobot",
		"version": buildinfo.Version,
	})
}

// handleHealth is the public liveness probe: a minimal status/timestamp
// pair. The full per-check breakdown lives behind GET /api/v1/stats.
func (a *api) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := a.deps.Watchdog.GetStatus()
	writeData(w, http.StatusOK, map[string]any{
		"status":    status.State,
		"timestamp": time.Now().UnixMilli(),
	})
}

func (a *api) handleStats(w http.ResponseWriter, r *http.Request) {
	status := a.deps.Watchdog.GetStatus()
	checks := make(map[string]any, len(status.Checks))
	for name, res := range status.Checks {
		checks[name] = map[string]any{"status": res.Status, "detail": res.Detail}
	}

	busStats := a.deps.Bus.GetStats()
	writeData(w, http.StatusOK, map[string]any{
		"bus":            busStats,
		"activeTasks":    a.deps.Correlator.Size(),
		"scheduledTasks": a.deps.Scheduler.Size(),
		"cost":           a.deps.CostTracker.Snapshot(),
		"build":          buildinfo.RuntimeInfo(),
		"health": map[string]any{
			"state":  status.State,
			"uptime": status.Uptime.String(),
			"memory": status.Memory,
			"checks": checks,
		},
	})
}
