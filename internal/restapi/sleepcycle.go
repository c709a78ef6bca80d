package restapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/kenobot/kenobot/internal/sleepcycle"
)

func (a *api) handleSleepCycleStatus(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, a.deps.SleepCycle.Snapshot())
}

// handleSleepCycleRun triggers a run fire-and-forget (spec.md §4.7:
// "explicit /api/v1/sleep-cycle/run posts fire-and-forget"): the HTTP
// response does not await completion and always reports that the run was
// accepted. A run rejected because one is already in progress is not
// reported to the caller.
func (a *api) handleSleepCycleRun(w http.ResponseWriter, r *http.Request) {
	go func() {
		if err := a.deps.SleepCycle.Run(context.Background()); err != nil && !errors.Is(err, sleepcycle.ErrAlreadyRunning) {
			slog.Default().Error("sleep cycle run triggered via API failed", "err", err)
		}
	}()
	writeData(w, http.StatusAccepted, map[string]any{"status": "accepted"})
}
