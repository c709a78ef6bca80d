package restapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kenobot/kenobot/internal/apierr"
)

const (
	defaultRecentDays = 3
	maxRecentDays     = 30
)

// Memory content and semantics are explicitly out of scope (spec.md §1:
// "the content/semantics of memory files... are external collaborators
// identified only by the interfaces the core consumes"). These routes
// expose the one piece of memory-shaped state the core actually owns —
// conversation history — rather than reaching back into the donor's
// deleted memory package for content this system never computes.

func (a *api) handleMemoryOverview(w http.ResponseWriter, r *http.Request) {
	convs, err := a.deps.Conversation.List()
	if err != nil {
		writeAPIErr(w, apierr.New(apierr.CodeInternal, err.Error(), ""))
		return
	}
	writeData(w, http.StatusOK, map[string]any{
		"conversationCount": len(convs),
		"conversations":     convs,
	})
}

func (a *api) handleMemoryRecent(w http.ResponseWriter, r *http.Request) {
	days := defaultRecentDays
	if raw := r.URL.Query().Get("days"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			days = n
		}
	}
	if days < 1 {
		days = 1
	}
	if days > maxRecentDays {
		days = maxRecentDays
	}

	convs, err := a.deps.Conversation.List()
	if err != nil {
		writeAPIErr(w, apierr.New(apierr.CodeInternal, err.Error(), ""))
		return
	}

	cutoff := time.Now().Add(-time.Duration(days) * 24 * time.Hour)
	var recent []any
	for _, c := range convs {
		if c.UpdatedAt.After(cutoff) {
			recent = append(recent, c)
		}
	}
	writeData(w, http.StatusOK, map[string]any{"days": days, "entries": recent})
}

func (a *api) handleMemoryWorking(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")
	messages, err := a.deps.Conversation.Messages(sessionID, defaultMessagesLimit)
	if err != nil {
		writeAPIErr(w, apierr.New(apierr.CodeInternal, err.Error(), ""))
		return
	}
	writeData(w, http.StatusOK, map[string]any{"sessionId": sessionID, "messages": messages})
}

func (a *api) handleMemoryPatterns(w http.ResponseWriter, r *http.Request) {
	// Procedural pattern extraction is squarely the content this system
	// never computes (spec.md §1); the sleep cycle's selfImprovement phase
	// is the closest in-scope analogue, so its last counters stand in here.
	snap := a.deps.SleepCycle.Snapshot()
	writeData(w, http.StatusOK, map[string]any{"patterns": snap.Counters["selfImprovement"]})
}
